// Package container implements the self-describing byte layout that is
// embedded into carrier images.
//
// A v1 container is laid out as
//
//	[magic "STSH"][version][flags][cipher][compression][metadata length u16][body length u64]
//	[metadata (CBOR)][body]
//
// with all integers big-endian. The fixed header always comes first so an
// extractor can read HeaderSize bytes, learn how many more bytes follow, and
// stop there.
package container

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// Magic identifies a v1 container.
	Magic = "STSH"

	// Version is the only container version this package writes.
	Version uint8 = 1

	// HeaderSize is the size in bytes of the fixed v1 header.
	HeaderSize = 18

	// MaxMetadataSize is the largest encoded metadata record a header can
	// describe.
	MaxMetadataSize = math.MaxUint16
)

var (
	ErrTruncated = errors.New("container truncated")
	ErrCorrupt   = errors.New("container corrupt")

	// ErrBadMagic is a corrupt container that does not start with Magic.
	// Readers use it to decide whether to fall back to the legacy layout.
	ErrBadMagic = fmt.Errorf("%w: missing magic", ErrCorrupt)
)

// Flags records how the body was produced so extraction can reverse it
// without guessing.
type Flags uint8

const (
	FlagCompressed Flags = 1 << iota
	FlagDirectory
	FlagMetadata
	FlagParity

	knownFlags = FlagCompressed | FlagDirectory | FlagMetadata | FlagParity
)

func (f Flags) Has(flag Flags) bool {
	return f&flag == flag
}

func (f Flags) String() string {
	s := ""
	for _, named := range []struct {
		flag Flags
		name string
	}{
		{FlagCompressed, "compressed"},
		{FlagDirectory, "directory"},
		{FlagMetadata, "metadata"},
		{FlagParity, "parity"},
	} {
		if f.Has(named.flag) {
			if s != "" {
				s += ","
			}
			s += named.name
		}
	}
	if s == "" {
		return "none"
	}
	return s
}

// Header is the fixed-size prefix of a v1 container.
type Header struct {
	Version        uint8
	Flags          Flags
	Cipher         uint8
	Compression    uint8
	MetadataLength uint16
	BodyLength     uint64
}

// Bytes serializes the header into its HeaderSize wire form.
func (h Header) Bytes() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic)
	buf[4] = h.Version
	buf[5] = uint8(h.Flags)
	buf[6] = h.Cipher
	buf[7] = h.Compression
	binary.BigEndian.PutUint16(buf[8:10], h.MetadataLength)
	binary.BigEndian.PutUint64(buf[10:18], h.BodyLength)
	return buf
}

// Remaining is the number of bytes that follow the fixed header.
func (h Header) Remaining() (uint64, error) {
	if h.BodyLength > math.MaxUint64-uint64(h.MetadataLength) {
		return 0, fmt.Errorf("%w: body length %d overflows", ErrCorrupt, h.BodyLength)
	}
	return uint64(h.MetadataLength) + h.BodyLength, nil
}

// ParseHeader reads and validates a fixed v1 header from the start of data.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: need %d header bytes, have %d", ErrTruncated, HeaderSize, len(data))
	}
	if string(data[0:4]) != Magic {
		return Header{}, ErrBadMagic
	}

	h := Header{
		Version:        data[4],
		Flags:          Flags(data[5]),
		Cipher:         data[6],
		Compression:    data[7],
		MetadataLength: binary.BigEndian.Uint16(data[8:10]),
		BodyLength:     binary.BigEndian.Uint64(data[10:18]),
	}

	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, h.Version)
	}
	if h.Flags&^knownFlags != 0 {
		return Header{}, fmt.Errorf("%w: unknown flags %#02x", ErrCorrupt, uint8(h.Flags&^knownFlags))
	}
	if h.Flags.Has(FlagMetadata) != (h.MetadataLength > 0) {
		return Header{}, fmt.Errorf("%w: metadata flag does not match metadata length %d", ErrCorrupt, h.MetadataLength)
	}
	return h, nil
}

// Container is a decoded v1 container.
type Container struct {
	Header
	// Metadata is nil when the header has no FlagMetadata.
	Metadata *Metadata
	Body     []byte
}

// Encode builds a v1 container around body. Version, lengths and
// FlagMetadata are derived from the arguments; the remaining header fields
// are taken from h.
func Encode(body []byte, h Header, meta *Metadata) ([]byte, error) {
	h.Version = Version
	h.Flags &^= FlagMetadata
	h.BodyLength = uint64(len(body))

	var metaBytes []byte
	if meta != nil {
		var err error
		metaBytes, err = meta.Marshal()
		if err != nil {
			return nil, err
		}
		if len(metaBytes) > MaxMetadataSize {
			return nil, fmt.Errorf("metadata is %d bytes, limit is %d", len(metaBytes), MaxMetadataSize)
		}
		h.Flags |= FlagMetadata
	}
	h.MetadataLength = uint16(len(metaBytes))

	out := make([]byte, 0, HeaderSize+len(metaBytes)+len(body))
	out = append(out, h.Bytes()...)
	out = append(out, metaBytes...)
	out = append(out, body...)
	return out, nil
}

// Decode parses a v1 container. Bytes after the declared body are ignored.
func Decode(data []byte) (*Container, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	// A declared length larger than everything we were handed cannot be a
	// short read; it is a non-stego image or garbage.
	if h.BodyLength > uint64(len(data)) {
		return nil, fmt.Errorf("%w: declared body length %d exceeds %d supplied bytes", ErrCorrupt, h.BodyLength, len(data))
	}

	remaining, err := h.Remaining()
	if err != nil {
		return nil, err
	}
	total := HeaderSize + remaining
	if uint64(len(data)) < total {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, total, len(data))
	}

	c := &Container{Header: h}
	metaEnd := HeaderSize + int(h.MetadataLength)
	if h.Flags.Has(FlagMetadata) {
		c.Metadata, err = UnmarshalMetadata(data[HeaderSize:metaEnd])
		if err != nil {
			return nil, err
		}
	}
	c.Body = data[metaEnd:int(total)]
	return c, nil
}
