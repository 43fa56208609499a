package commitlog

import (
	"bytes"
	"compress/flate"
	"errors"
	"io"

	"github.com/cuemby/rangevault/pkg/rangeerr"
)

// maxBlockPayload bounds how much a single block's declared compressed
// length is trusted before reading: a corrupt DataZLength field must not
// make the reader attempt a multi-gigabyte allocation.
const maxBlockPayload = 256 << 20

// Block is one decoded block: its header plus payload, already
// decompressed and checksum-verified.
type Block struct {
	Header  Header
	Payload []byte
}

// Reader scans a fragment's blocks sequentially. It is not safe for
// concurrent use.
type Reader struct {
	r          io.Reader
	linkedLogs []string
}

// NewReader wraps r, an open handle on one commit-log fragment.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// LinkedLogs returns the directories named by every LINK2 block seen so
// far. The slice grows as Next is called; callers that want the complete
// set should drain Next to io.EOF first.
func (r *Reader) LinkedLogs() []string {
	return r.linkedLogs
}

// Next decodes the next block. It returns io.EOF, with no error wrapping,
// both at a clean end of stream and when the trailing bytes are a
// truncated partial block — a write in progress when the fragment was
// read is expected, not corruption. A verified structural problem (bad
// checksum, or an implausible declared length) returns a *rangeerr.Error
// with rangeerr.KindCorruptCommitLog.
func (r *Reader) Next() (*Block, error) {
	magicBuf := make([]byte, 10)
	n, err := io.ReadFull(r.r, magicBuf)
	if n == 0 && errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		// Any short read here, including io.ErrUnexpectedEOF, is a
		// truncated trailing block: B2, not corruption.
		return nil, io.EOF
	}

	legacy := Magic(magicArray(magicBuf)).IsLegacy()
	restLen := baseHeaderLength - 10 + 8
	if !legacy {
		restLen += 8
	}
	rest := make([]byte, restLen)
	if _, err := io.ReadFull(r.r, rest); err != nil {
		return nil, io.EOF
	}

	full := append(append([]byte{}, magicBuf...), rest...)
	if !checksumOK(full) {
		return nil, rangeerr.New(rangeerr.KindCorruptCommitLog, "commitlog.Next", "header checksum mismatch")
	}
	h, err := decodeHeader(full)
	if err != nil {
		return nil, rangeerr.Wrap(rangeerr.KindCorruptCommitLog, "commitlog.Next", err)
	}

	if h.DataZLength > maxBlockPayload {
		return nil, rangeerr.New(rangeerr.KindCorruptCommitLog, "commitlog.Next", "declared compressed length exceeds sanity ceiling")
	}

	onWire := make([]byte, h.DataZLength)
	if _, err := io.ReadFull(r.r, onWire); err != nil {
		// Trailing block whose payload never finished writing.
		return nil, io.EOF
	}

	payload := onWire
	if h.CompressionType == CompressionFlate && len(onWire) > 0 {
		fr := flate.NewReader(bytes.NewReader(onWire))
		decoded, rerr := io.ReadAll(fr)
		_ = fr.Close()
		if rerr != nil {
			return nil, rangeerr.Wrap(rangeerr.KindCorruptCommitLog, "commitlog.Next", rerr)
		}
		payload = decoded
	}

	if uint32(len(payload)) != h.DataLength {
		return nil, rangeerr.New(rangeerr.KindCorruptCommitLog, "commitlog.Next", "decompressed length does not match header")
	}
	if fletcher32(payload) != h.DataChecksum {
		return nil, rangeerr.New(rangeerr.KindCorruptCommitLog, "commitlog.Next", "payload checksum mismatch")
	}

	if h.Type() == BlockTypeLink {
		r.linkedLogs = append(r.linkedLogs, string(payload))
	}

	return &Block{Header: h, Payload: payload}, nil
}

func magicArray(b []byte) [10]byte {
	var m [10]byte
	copy(m[:], b)
	return m
}
