package commitlog

import (
	"encoding/binary"
)

// baseHeaderLength is the size in bytes of the fields every block header
// carries regardless of format: magic, header length, compression type,
// data checksum, data length, data zlength, header checksum.
const baseHeaderLength = 10 + 1 + 1 + 4 + 4 + 4 + 2

// Header is one block's fixed-size preamble.
type Header struct {
	Magic           Magic
	CompressionType uint8
	DataChecksum    uint32
	DataLength      uint32 // uncompressed payload length
	DataZLength     uint32 // compressed (on-wire) payload length
	Revision        int64
	ClusterID       uint64 // always 0 when IsLegacy()
}

// IsLegacy reports whether this header predates the cluster id field.
func (h Header) IsLegacy() bool { return h.Magic.IsLegacy() }

// Type reports the block kind.
func (h Header) Type() BlockType { return h.Magic.Type() }

// Len returns the total encoded length of this header in bytes.
func (h Header) Len() int {
	if h.IsLegacy() {
		return baseHeaderLength + 8
	}
	return baseHeaderLength + 16
}

// encode serializes the header. The header checksum is computed over every
// preceding byte and written last.
func (h Header) encode() []byte {
	buf := make([]byte, h.Len())
	off := 0
	copy(buf[off:], h.Magic[:])
	off += 10
	buf[off] = uint8(h.Len())
	off++
	buf[off] = h.CompressionType
	off++
	binary.LittleEndian.PutUint32(buf[off:], h.DataChecksum)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.DataLength)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.DataZLength)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], uint64(h.Revision))
	off += 8
	if !h.IsLegacy() {
		binary.LittleEndian.PutUint64(buf[off:], h.ClusterID)
		off += 8
	}
	checksum := fletcher32(buf[:off])
	binary.LittleEndian.PutUint16(buf[off:], uint16(checksum))
	return buf
}

// decodeHeader parses a header from buf, which must be at least long
// enough to hold magic[10] plus the legacy-appropriate remainder. It does
// not validate the checksum; callers check that separately so a mismatch
// can be reported with the raw header still available for diagnostics.
func decodeHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < 10 {
		return h, errShortHeader
	}
	copy(h.Magic[:], buf[:10])
	legacy := h.Magic.IsLegacy()
	need := baseHeaderLength + 8
	if !legacy {
		need = baseHeaderLength + 16
	}
	if len(buf) < need {
		return h, errShortHeader
	}
	off := 10
	off++ // header length byte, recomputed via Len(), not trusted on decode
	h.CompressionType = buf[off]
	off++
	h.DataChecksum = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.DataLength = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.DataZLength = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.Revision = int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	if !legacy {
		h.ClusterID = binary.LittleEndian.Uint64(buf[off:])
		off += 8
	}
	return h, nil
}

// checksumOK recomputes the header checksum over buf[:len(buf)-2] and
// compares it against the low 16 bits stored in the last two bytes.
func checksumOK(buf []byte) bool {
	if len(buf) < 2 {
		return false
	}
	want := binary.LittleEndian.Uint16(buf[len(buf)-2:])
	got := uint16(fletcher32(buf[:len(buf)-2]))
	return want == got
}

var errShortHeader = shortHeaderError{}

type shortHeaderError struct{}

func (shortHeaderError) Error() string { return "commitlog: header shorter than declared format" }
