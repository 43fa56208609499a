package commitlog

// Magic is the 10-byte tag that opens every block. The final byte is '2'
// for current-format blocks and '1' for legacy blocks written before the
// cluster id field existed.
type Magic [10]byte

// BlockType classifies a block by its magic, ignoring the legacy suffix.
type BlockType int

const (
	BlockTypeData BlockType = iota
	BlockTypeLink
	BlockTypeEOF
)

func (t BlockType) String() string {
	switch t {
	case BlockTypeData:
		return "data"
	case BlockTypeLink:
		return "link"
	case BlockTypeEOF:
		return "eof"
	default:
		return "unknown"
	}
}

var (
	magicDataCurrent = Magic{'D', 'A', 'T', 'A', '-', '-', '-', '-', '-', '2'}
	magicDataLegacy  = Magic{'D', 'A', 'T', 'A', '-', '-', '-', '-', '-', '1'}
	magicLinkCurrent = Magic{'L', 'I', 'N', 'K', '-', '-', '-', '-', '-', '2'}
	magicLinkLegacy  = Magic{'L', 'I', 'N', 'K', '-', '-', '-', '-', '-', '1'}
	magicEOFCurrent  = Magic{'E', 'O', 'F', '-', '-', '-', '-', '-', '-', '2'}
	magicEOFLegacy   = Magic{'E', 'O', 'F', '-', '-', '-', '-', '-', '-', '1'}
)

// MagicFor returns the canonical magic for a block type, current format
// unless legacy is true.
func MagicFor(t BlockType, legacy bool) Magic {
	switch t {
	case BlockTypeLink:
		if legacy {
			return magicLinkLegacy
		}
		return magicLinkCurrent
	case BlockTypeEOF:
		if legacy {
			return magicEOFLegacy
		}
		return magicEOFCurrent
	default:
		if legacy {
			return magicDataLegacy
		}
		return magicDataCurrent
	}
}

// IsLegacy reports whether the magic suffix byte marks a pre-cluster-id
// fragment.
func (m Magic) IsLegacy() bool {
	return m[9] != '2'
}

// Type classifies the magic by its leading bytes, independent of the
// legacy suffix.
func (m Magic) Type() BlockType {
	switch {
	case m[0] == 'L' && m[1] == 'I' && m[2] == 'N' && m[3] == 'K':
		return BlockTypeLink
	case m[0] == 'E' && m[1] == 'O' && m[2] == 'F':
		return BlockTypeEOF
	default:
		return BlockTypeData
	}
}
