package pipeline

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/andresmejia3/pngstash/pkg/container"
	"github.com/andresmejia3/pngstash/pkg/crypt"
	"github.com/andresmejia3/pngstash/pkg/packaging"
	"github.com/andresmejia3/pngstash/pkg/stego"
)

// RevealConfig describes one reveal run.
type RevealConfig struct {
	ImagePath string
	// OutputPath is the file to write, or the directory to write into. It
	// defaults to the current directory.
	OutputPath string
	Password   string

	CipherOptions []crypt.Option
	// LegacyCipher decrypts legacy containers, which do not record their
	// cipher. Zero means aes-gcm. It is ignored when Password is empty.
	LegacyCipher crypt.Algorithm

	Progress io.Writer
}

// RevealResult summarizes a successful reveal.
type RevealResult struct {
	OutputPath string
	// Legacy is set when the image held a legacy container.
	Legacy bool
	// Header and Metadata are nil for legacy containers.
	Header   *container.Header
	Metadata *container.Metadata
	// Strategy names the DetectionStrategy used to reverse packaging.
	Strategy string
	// RepairedShards counts parity shards that had to be reconstructed.
	RepairedShards int
}

// extracted is a container read back out of a carrier with its parity
// removed and its digest checked.
type extracted struct {
	header   *container.Header
	metadata *container.Metadata
	blob     []byte
	repaired int
	legacy   bool
}

// extract reads the container from c, falling back to the legacy layout
// when the v1 magic is missing.
func extract(c *stego.Carrier, progress io.Writer) (*extracted, error) {
	data, err := stego.Extract(c, container.V1, stego.WithProgress(progress))
	if errors.Is(err, container.ErrBadMagic) {
		log.Debug().Msg("No v1 magic, trying legacy layout")
		data, err = stego.Extract(c, container.Legacy, stego.WithProgress(progress))
		if err != nil {
			return nil, err
		}
		body, err := container.DecodeLegacy(data)
		if err != nil {
			return nil, err
		}
		return &extracted{blob: body, legacy: true}, nil
	}
	if err != nil {
		return nil, err
	}

	decoded, err := container.Decode(data)
	if err != nil {
		return nil, err
	}
	x := &extracted{
		header:   &decoded.Header,
		metadata: decoded.Metadata,
		blob:     decoded.Body,
	}

	if decoded.Flags.Has(container.FlagParity) {
		x.repaired, err = container.ParityDamage(decoded.Body)
		if err != nil {
			return nil, err
		}
		x.blob, err = container.RemoveParity(decoded.Body)
		if err != nil {
			return nil, err
		}
		if x.repaired > 0 {
			log.Warn().Int("shards", x.repaired).Msg("Repaired damaged parity shards")
		}
	}

	if x.metadata != nil && len(x.metadata.Digest) > 0 && !x.metadata.VerifyDigest(x.blob) {
		return nil, fmt.Errorf("%w: body digest mismatch", container.ErrCorrupt)
	}
	return x, nil
}

// Reveal recovers the payload hidden in cfg.ImagePath.
func Reveal(cfg RevealConfig) (*RevealResult, error) {
	enter(Idle)
	carrier, err := stego.LoadCarrier(cfg.ImagePath)
	if err != nil {
		return nil, fail(Idle, err)
	}
	output := cfg.OutputPath
	if output == "" {
		output = "."
	}

	enter(Extracting)
	x, err := extract(carrier, cfg.Progress)
	if err != nil {
		return nil, fail(Extracting, err)
	}

	enter(Decrypting)
	var algorithm crypt.Algorithm
	switch {
	case !x.legacy:
		algorithm = crypt.Algorithm(x.header.Cipher)
	case cfg.Password == "":
		algorithm = crypt.None
	case cfg.LegacyCipher == crypt.None:
		algorithm = crypt.AESGCM
	default:
		algorithm = cfg.LegacyCipher
	}
	cipher, err := crypt.New(algorithm, cfg.CipherOptions...)
	if err != nil {
		return nil, fail(Decrypting, err)
	}
	plaintext, err := cipher.Decrypt(x.blob, cfg.Password)
	if err != nil {
		return nil, fail(Decrypting, err)
	}

	enter(Depackaging)
	strategy := packaging.SelectStrategy(x.header, x.metadata)
	pkg, err := strategy.Detect(plaintext)
	if err != nil {
		return nil, fail(Depackaging, err)
	}
	written, err := packaging.Unpack(pkg, output)
	if err != nil {
		return nil, fail(Depackaging, err)
	}

	log.Debug().
		Str("output", written).
		Str("strategy", strategy.Name()).
		Bool("legacy", x.legacy).
		Msg("Reveal complete")

	return &RevealResult{
		OutputPath:     written,
		Legacy:         x.legacy,
		Header:         x.header,
		Metadata:       x.metadata,
		Strategy:       strategy.Name(),
		RepairedShards: x.repaired,
	}, nil
}
