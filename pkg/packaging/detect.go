package packaging

import (
	"bytes"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/andresmejia3/pngstash/pkg/container"
)

// DetectionStrategy decides how a revealed body was packaged.
type DetectionStrategy interface {
	Name() string
	Detect(body []byte) (*Package, error)
}

// SelectStrategy returns the metadata strategy when h records metadata and
// the sniffing strategy otherwise. A nil header means a legacy container.
func SelectStrategy(h *container.Header, meta *container.Metadata) DetectionStrategy {
	if h != nil && h.Flags.Has(container.FlagMetadata) && meta != nil {
		return MetadataStrategy{Header: *h, Metadata: *meta}
	}
	return SniffStrategy{}
}

// MetadataStrategy trusts the container header.
type MetadataStrategy struct {
	Header   container.Header
	Metadata container.Metadata
}

func (MetadataStrategy) Name() string { return "metadata" }

func (s MetadataStrategy) Detect(body []byte) (*Package, error) {
	p := &Package{
		Body:        body,
		Compressed:  s.Header.Flags.Has(container.FlagCompressed),
		Directory:   s.Header.Flags.Has(container.FlagDirectory),
		Compression: Compression(s.Header.Compression),
		Metadata:    s.Metadata,
	}
	if p.Compressed {
		if _, err := NewCompressor(p.Compression); err != nil {
			return nil, err
		}
	} else if p.Compression != CompressionNone {
		return nil, fmt.Errorf("%w: compression %s recorded without the compressed flag", ErrUnknownMetadata, p.Compression)
	}
	return p, nil
}

// SniffStrategy recognizes compression and tar archives from their magic
// numbers. It only exists to read containers written without metadata.
type SniffStrategy struct{}

func (SniffStrategy) Name() string { return "sniff" }

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

const (
	tarMagicOffset = 257
	tarMagic       = "ustar"
)

func (SniffStrategy) Detect(body []byte) (*Package, error) {
	p := &Package{Body: body}

	inner := body
	switch {
	case bytes.HasPrefix(body, gzipMagic):
		p.Compression = CompressionGzip
	case bytes.HasPrefix(body, zstdMagic):
		p.Compression = CompressionZstd
	case bytes.HasPrefix(body, lz4Magic):
		p.Compression = CompressionLZ4
	}
	if p.Compression != CompressionNone {
		compressor, _ := NewCompressor(p.Compression)
		decoded, err := compressor.Decompress(body, MaxDecodedSize)
		if err != nil {
			// A plain file that happens to start with a magic number.
			log.Debug().Err(err).Str("compression", p.Compression.String()).Msg("Sniffed compression did not decode")
			p.Compression = CompressionNone
		} else {
			p.Compressed = true
			inner = decoded
		}
	}

	p.Directory = IsTar(inner)
	return p, nil
}

// IsTar reports whether data starts with a POSIX or GNU tar header.
func IsTar(data []byte) bool {
	if len(data) < tarMagicOffset+len(tarMagic) {
		return false
	}
	return string(data[tarMagicOffset:tarMagicOffset+len(tarMagic)]) == tarMagic
}
