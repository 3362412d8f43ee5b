package container

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Layout describes how an extractor frames a container: how large the fixed
// header is and how many bytes follow it.
type Layout interface {
	Name() string
	HeaderSize() int
	Remaining(header []byte) (uint64, error)
}

var (
	// V1 is the current versioned layout.
	V1 Layout = v1Layout{}

	// Legacy is the original [u32 big-endian length][body] layout with no
	// magic, flags or metadata.
	Legacy Layout = legacyLayout{}
)

// LegacyHeaderSize is the size of the legacy length prefix.
const LegacyHeaderSize = 4

type v1Layout struct{}

func (v1Layout) Name() string    { return "v1" }
func (v1Layout) HeaderSize() int { return HeaderSize }

func (v1Layout) Remaining(header []byte) (uint64, error) {
	h, err := ParseHeader(header)
	if err != nil {
		return 0, err
	}
	return h.Remaining()
}

type legacyLayout struct{}

func (legacyLayout) Name() string    { return "legacy" }
func (legacyLayout) HeaderSize() int { return LegacyHeaderSize }

func (legacyLayout) Remaining(header []byte) (uint64, error) {
	if len(header) < LegacyHeaderSize {
		return 0, fmt.Errorf("%w: need %d header bytes, have %d", ErrTruncated, LegacyHeaderSize, len(header))
	}
	return uint64(binary.BigEndian.Uint32(header[:LegacyHeaderSize])), nil
}

// EncodeLegacy frames body in the legacy layout.
func EncodeLegacy(body []byte) ([]byte, error) {
	if uint64(len(body)) > math.MaxUint32 {
		return nil, fmt.Errorf("legacy layout cannot hold %d bytes", len(body))
	}
	out := make([]byte, LegacyHeaderSize, LegacyHeaderSize+len(body))
	binary.BigEndian.PutUint32(out, uint32(len(body)))
	return append(out, body...), nil
}

// DecodeLegacy returns the body of a legacy container.
func DecodeLegacy(data []byte) ([]byte, error) {
	n, err := Legacy.Remaining(data)
	if err != nil {
		return nil, err
	}
	if n > uint64(len(data)) {
		return nil, fmt.Errorf("%w: declared length %d exceeds %d supplied bytes", ErrCorrupt, n, len(data))
	}
	if uint64(len(data)-LegacyHeaderSize) < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, n+LegacyHeaderSize, len(data))
	}
	return data[LegacyHeaderSize : LegacyHeaderSize+int(n)], nil
}
