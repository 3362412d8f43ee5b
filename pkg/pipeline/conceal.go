package pipeline

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/andresmejia3/pngstash/pkg/capacity"
	"github.com/andresmejia3/pngstash/pkg/container"
	"github.com/andresmejia3/pngstash/pkg/crypt"
	"github.com/andresmejia3/pngstash/pkg/packaging"
	"github.com/andresmejia3/pngstash/pkg/stego"
)

// ConcealConfig describes one conceal run.
type ConcealConfig struct {
	CarrierPath string
	PayloadPath string
	OutputPath  string
	Password    string

	Cipher        crypt.Algorithm
	CipherOptions []crypt.Option
	Packaging     packaging.Options

	// Parity wraps the ciphertext in a Reed-Solomon frame.
	Parity bool
	// DryRun runs every stage but does not write the output image.
	DryRun bool
	// Progress receives embedding progress; nil disables it.
	Progress io.Writer
}

// ConcealResult summarizes a successful conceal.
type ConcealResult struct {
	OutputPath     string
	Header         container.Header
	Metadata       container.Metadata
	Capacity       capacity.Report
	ContainerBytes int
}

// Conceal hides cfg.PayloadPath in cfg.CarrierPath and writes the result to
// cfg.OutputPath. The carrier file is never modified.
func Conceal(cfg ConcealConfig) (*ConcealResult, error) {
	enter(Idle)
	if cfg.OutputPath == "" && !cfg.DryRun {
		return nil, fail(Idle, fmt.Errorf("output path is required"))
	}
	if cfg.OutputPath != "" && samePath(cfg.CarrierPath, cfg.OutputPath) {
		return nil, fail(Idle, ErrOverwritesCarrier)
	}
	carrier, err := stego.LoadCarrier(cfg.CarrierPath)
	if err != nil {
		return nil, fail(Idle, err)
	}
	report, err := carrier.Capacity()
	if err != nil {
		return nil, fail(Idle, err)
	}

	enter(Packaging)
	pkg, err := packaging.Pack(cfg.PayloadPath, cfg.Packaging)
	if err != nil {
		return nil, fail(Packaging, err)
	}

	enter(Encrypting)
	cipher, err := crypt.New(cfg.Cipher, cfg.CipherOptions...)
	if err != nil {
		return nil, fail(Encrypting, err)
	}
	blob, err := cipher.Encrypt(pkg.Body, cfg.Password)
	if err != nil {
		return nil, fail(Encrypting, err)
	}

	enter(Containerizing)
	meta := pkg.Metadata
	meta.Digest = container.Digest(blob)
	header := container.Header{
		Flags:       pkg.Flags(),
		Cipher:      uint8(cipher.Algorithm()),
		Compression: uint8(pkg.Compression),
	}
	body := blob
	if cfg.Parity {
		body, err = container.AddParity(blob)
		if err != nil {
			return nil, fail(Containerizing, err)
		}
		header.Flags |= container.FlagParity
	}
	data, err := container.Encode(body, header, &meta)
	if err != nil {
		return nil, fail(Containerizing, err)
	}
	decoded, err := container.ParseHeader(data)
	if err != nil {
		return nil, fail(Containerizing, err)
	}

	enter(Embedding)
	// Check against the full report so the error names the payload budget.
	if err := report.Check(int64(len(data) - container.HeaderSize)); err != nil {
		return nil, fail(Embedding, err)
	}
	out, err := stego.Embed(carrier, data, stego.WithProgress(cfg.Progress))
	if err != nil {
		return nil, fail(Embedding, err)
	}
	if !cfg.DryRun {
		if err := writeCarrier(out, cfg.OutputPath); err != nil {
			return nil, fail(Embedding, err)
		}
	}

	log.Debug().
		Str("output", cfg.OutputPath).
		Stringer("flags", decoded.Flags).
		Int("containerBytes", len(data)).
		Int64("usableBytes", report.UsableBytes).
		Msg("Conceal complete")

	return &ConcealResult{
		OutputPath:     cfg.OutputPath,
		Header:         decoded,
		Metadata:       meta,
		Capacity:       report,
		ContainerBytes: len(data),
	}, nil
}
