package pipeline

import (
	"errors"
	"fmt"

	"github.com/andresmejia3/pngstash/pkg/capacity"
	"github.com/andresmejia3/pngstash/pkg/container"
	"github.com/andresmejia3/pngstash/pkg/stego"
)

// Info describes a carrier image and, when one is present, the container
// it holds. No password is needed.
type Info struct {
	Width    int
	Height   int
	Channels int
	Capacity capacity.Report
	// CapacityErr is set when the image cannot hold any payload.
	CapacityErr error

	// Header is nil when no v1 container was found.
	Header         *container.Header
	Metadata       *container.Metadata
	ContainerBytes int
}

// Inspect reads the carrier at path and the header and metadata of any v1
// container in it.
func Inspect(path string) (*Info, error) {
	c, err := stego.LoadCarrier(path)
	if err != nil {
		return nil, err
	}
	info := &Info{
		Width:    c.Width(),
		Height:   c.Height(),
		Channels: c.Channels(),
	}
	info.Capacity, info.CapacityErr = c.Capacity()

	data, err := stego.Extract(c, container.V1)
	if err != nil {
		// Nothing hidden, or nothing we can recognise.
		if errors.Is(err, container.ErrCorrupt) || errors.Is(err, container.ErrTruncated) {
			return info, nil
		}
		return nil, err
	}
	decoded, err := container.Decode(data)
	if err != nil {
		return info, nil
	}
	info.Header = &decoded.Header
	info.Metadata = decoded.Metadata
	info.ContainerBytes = len(data)
	return info, nil
}

// VerifyResult is the integrity report for a stego image.
type VerifyResult struct {
	Header         container.Header
	Metadata       *container.Metadata
	RepairedShards int
	// DigestChecked is false when the container carries no digest.
	DigestChecked bool
}

// ErrNoDigest is returned by Verify for containers that cannot be checked.
var ErrNoDigest = errors.New("container has no integrity information")

// Verify extracts the container from path and checks its parity frame and
// body digest. No password is needed.
func Verify(path string) (*VerifyResult, error) {
	c, err := stego.LoadCarrier(path)
	if err != nil {
		return nil, err
	}
	x, err := extract(c, nil)
	if err != nil {
		return nil, err
	}
	if x.legacy {
		return nil, fmt.Errorf("legacy container: %w", ErrNoDigest)
	}

	result := &VerifyResult{
		Header:         *x.header,
		Metadata:       x.metadata,
		RepairedShards: x.repaired,
		DigestChecked:  x.metadata != nil && len(x.metadata.Digest) > 0,
	}
	if !result.DigestChecked && !x.header.Flags.Has(container.FlagParity) {
		return result, ErrNoDigest
	}
	return result, nil
}
