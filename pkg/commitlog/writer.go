package commitlog

import (
	"bytes"
	"compress/flate"
	"io"
)

// CompressionNone and CompressionFlate are the two compression codes this
// writer understands. Readers tolerate any code byte; they only need
// DataZLength to know how many on-wire bytes to read.
const (
	CompressionNone  uint8 = 0
	CompressionFlate uint8 = 1
)

// Writer appends blocks to an underlying append-only destination (an open
// DFS file handle in production, any io.Writer in tests). It does not
// itself fsync; callers sync explicitly per the append-then-sync contract
// of the fragment format.
type Writer struct {
	w           io.Writer
	legacy      bool
	compression uint8
}

// NewWriter returns a Writer that appends current-format (non-legacy)
// blocks.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, compression: CompressionNone}
}

// WithCompression selects the compression codec used for subsequent
// blocks.
func (w *Writer) WithCompression(codec uint8) *Writer {
	w.compression = codec
	return w
}

// WriteData appends a DATA2 block.
func (w *Writer) WriteData(revision int64, clusterID uint64, payload []byte) error {
	return w.writeBlock(BlockTypeData, revision, clusterID, payload)
}

// WriteLink appends a LINK2 block whose payload names a directory that
// must also be scanned by any reader of this fragment.
func (w *Writer) WriteLink(revision int64, clusterID uint64, logDirectory string) error {
	return w.writeBlock(BlockTypeLink, revision, clusterID, []byte(logDirectory))
}

// WriteEOF appends the terminal marker block for a closed fragment.
func (w *Writer) WriteEOF(revision int64, clusterID uint64) error {
	return w.writeBlock(BlockTypeEOF, revision, clusterID, nil)
}

func (w *Writer) writeBlock(kind BlockType, revision int64, clusterID uint64, payload []byte) error {
	checksum := fletcher32(payload)
	onWire := payload
	codec := w.compression
	if codec == CompressionFlate && len(payload) > 0 {
		var buf bytes.Buffer
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return err
		}
		if _, err := fw.Write(payload); err != nil {
			return err
		}
		if err := fw.Close(); err != nil {
			return err
		}
		onWire = buf.Bytes()
	} else {
		codec = CompressionNone
	}

	h := Header{
		Magic:           MagicFor(kind, w.legacy),
		CompressionType: codec,
		DataChecksum:    checksum,
		DataLength:      uint32(len(payload)),
		DataZLength:     uint32(len(onWire)),
		Revision:        revision,
		ClusterID:       clusterID,
	}
	if _, err := w.w.Write(h.encode()); err != nil {
		return err
	}
	_, err := w.w.Write(onWire)
	return err
}
