package commitlog

import (
	"bytes"
	"io"
	"testing"

	"github.com/cuemby/rangevault/pkg/rangeerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteData(42, 7, []byte("hello range")))
	require.NoError(t, w.WriteLink(43, 7, "/servers/rs-a1/log/user/0000000012"))
	require.NoError(t, w.WriteEOF(44, 7))

	r := NewReader(&buf)

	b1, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, BlockTypeData, b1.Header.Type())
	assert.Equal(t, int64(42), b1.Header.Revision)
	assert.Equal(t, uint64(7), b1.Header.ClusterID)
	assert.Equal(t, "hello range", string(b1.Payload))

	b2, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, BlockTypeLink, b2.Header.Type())
	assert.Equal(t, "/servers/rs-a1/log/user/0000000012", string(b2.Payload))

	b3, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, BlockTypeEOF, b3.Header.Type())
	assert.Empty(t, b3.Payload)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)

	assert.Equal(t, []string{"/servers/rs-a1/log/user/0000000012"}, r.LinkedLogs())
}

func TestReaderToleratesTruncatedTrailingBlock(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteData(1, 1, []byte("full block")))

	full := buf.Bytes()
	// Simulate a crash mid-append of a second block: write a header with
	// no payload behind it.
	var partial bytes.Buffer
	partial.Write(full)
	w2 := NewWriter(&partial)
	require.NoError(t, w2.WriteData(2, 1, []byte("second block payload")))
	truncated := partial.Bytes()[:len(full)+10] // magic only, no rest of header

	r := NewReader(bytes.NewReader(truncated))
	b1, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "full block", string(b1.Payload))

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderDetectsCorruptPayloadChecksum(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteData(1, 1, []byte("payload")))

	raw := buf.Bytes()
	// Flip a byte inside the payload region, after the header.
	raw[len(raw)-1] ^= 0xff

	r := NewReader(bytes.NewReader(raw))
	_, err := r.Next()
	require.Error(t, err)
	assert.Equal(t, rangeerr.KindCorruptCommitLog, rangeerr.KindOf(err))
}

func TestZeroLengthFragmentIsNotCorrupt(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	_, err := r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestLegacyMagicSkipsClusterID(t *testing.T) {
	h := Header{
		Magic:        MagicFor(BlockTypeData, true),
		DataChecksum: fletcher32([]byte("x")),
		DataLength:   1,
		DataZLength:  1,
		Revision:     5,
	}
	encoded := h.encode()
	assert.Equal(t, baseHeaderLength+8, len(encoded))

	decoded, err := decodeHeader(encoded)
	require.NoError(t, err)
	assert.True(t, decoded.IsLegacy())
	assert.Equal(t, uint64(0), decoded.ClusterID)
	assert.Equal(t, int64(5), decoded.Revision)
}
