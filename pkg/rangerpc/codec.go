package rangerpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is advertised on the wire as the content-subtype, so a
// rangerpc client and server always negotiate this codec instead of
// grpc-go's default proto codec (there is no proto.Message here).
const codecName = "rangevault-json"

// jsonCodec marshals request/response structs as JSON instead of
// protobuf. grpc-go only requires encoding.Codec, not proto.Message, so
// plain structs with exported fields and json tags are sufficient.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("rangerpc: marshal: %w", err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("rangerpc: unmarshal: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
