// Package stego embeds byte streams into, and extracts them from, the least
// significant bits of PNG carrier images.
//
// Bits are written most-significant first within each byte, bytes in stream
// order, one bit per colour channel value, visiting channels in row-major
// order. Only the lowest bit of a touched channel changes and channels past
// the end of the data are left exactly as they were.
package stego

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/andresmejia3/pngstash/pkg/capacity"
	"github.com/andresmejia3/pngstash/pkg/container"
)

// Option configures Embed and Extract.
type Option func(*options)

type options struct {
	progress io.Writer
}

// WithProgress renders a progress bar to w.
func WithProgress(w io.Writer) Option {
	return func(o *options) { o.progress = w }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Embed writes data into a copy of c and returns the copy. Capacity is
// checked before anything is modified.
func Embed(c *Carrier, data []byte, opts ...Option) (*Carrier, error) {
	o := buildOptions(opts)

	usable := c.UsableBytes()
	if int64(len(data)) > usable {
		return nil, &capacity.Error{RequiredBytes: int64(len(data)), AvailableBytes: usable}
	}

	log.Debug().
		Int("width", c.width).
		Int("height", c.height).
		Int("channels", c.channels).
		Int64("usableBytes", usable).
		Int("dataBytes", len(data)).
		Msg("Embedding into carrier")

	out := c.Clone()
	stepper := makeImageStepper(out)
	bar := newProgressBar(o.progress, int64(len(data)), "embedding")
	defer bar.Finish()

	for _, b := range data {
		for i := 0; i < 8; i++ {
			offset, err := stepper.next()
			if err != nil {
				return nil, err
			}
			out.pix[offset] = withLSB(out.pix[offset], bitAt(b, i))
		}
		bar.Add(1)
	}
	return out, nil
}

// Extract reads a container from c. It reads layout.HeaderSize() bytes, asks
// the layout how many bytes follow, and reads exactly that many more. The
// returned slice holds the header and everything after it.
func Extract(c *Carrier, layout container.Layout, opts ...Option) ([]byte, error) {
	o := buildOptions(opts)
	stepper := makeImageStepper(c)

	headerSize := layout.HeaderSize()
	if int64(headerSize)*8 > stepper.remainingBits() {
		return nil, fmt.Errorf("%w: carrier holds %d bytes, %s header needs %d",
			container.ErrTruncated, c.UsableBytes(), layout.Name(), headerSize)
	}

	header := make([]byte, headerSize)
	if err := readBytes(c, stepper, header); err != nil {
		return nil, err
	}

	remaining, err := layout.Remaining(header)
	if err != nil {
		return nil, err
	}
	available := stepper.remainingBits() / 8
	if remaining > uint64(available) {
		return nil, fmt.Errorf("%w: %s header declares %d bytes, carrier has %d left",
			container.ErrCorrupt, layout.Name(), remaining, available)
	}

	log.Debug().
		Str("layout", layout.Name()).
		Uint64("declaredBytes", remaining).
		Int64("availableBytes", available).
		Msg("Extracting from carrier")

	out := make([]byte, headerSize+int(remaining))
	copy(out, header)

	bar := newProgressBar(o.progress, int64(remaining), "extracting")
	defer bar.Finish()

	body := out[headerSize:]
	const chunk = 4096
	for start := 0; start < len(body); start += chunk {
		end := min(start+chunk, len(body))
		if err := readBytes(c, stepper, body[start:end]); err != nil {
			return nil, err
		}
		bar.Add(end - start)
	}
	return out, nil
}

func readBytes(c *Carrier, stepper *imageStepper, dst []byte) error {
	for n := range dst {
		var b uint8
		for i := 0; i < 8; i++ {
			offset, err := stepper.next()
			if err != nil {
				return err
			}
			b = b<<1 | c.pix[offset]&1
		}
		dst[n] = b
	}
	return nil
}
