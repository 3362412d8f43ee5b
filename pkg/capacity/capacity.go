// Package capacity predicts how much payload a carrier image can hold and
// how large a carrier a payload needs.
package capacity

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/andresmejia3/pngstash/pkg/container"
)

// ErrTooSmall is returned when a carrier cannot hold a payload.
var ErrTooSmall = errors.New("carrier too small")

// Error carries the numbers behind an ErrTooSmall.
type Error struct {
	RequiredBytes  int64
	AvailableBytes int64
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: need %d bytes, carrier holds %d", ErrTooSmall, e.RequiredBytes, e.AvailableBytes)
}

func (e *Error) Unwrap() error { return ErrTooSmall }

// Report describes the capacity of a carrier. One least-significant bit is
// used per channel value; leftover bits that do not make a whole byte are
// never used.
type Report struct {
	Width               int
	Height              int
	Channels            int
	UsableBits          int64
	UsableBytes         int64
	HeaderOverheadBytes int64
	MaxPayloadBytes     int64
}

// Compute returns the capacity report for a width x height carrier with the
// given number of usable channels per pixel.
func Compute(width, height, channels int) (Report, error) {
	r := Report{
		Width:               width,
		Height:              height,
		Channels:            channels,
		HeaderOverheadBytes: container.HeaderSize,
	}
	if width <= 0 || height <= 0 || channels <= 0 {
		return r, &Error{RequiredBytes: r.HeaderOverheadBytes + 1}
	}

	r.UsableBits = int64(width) * int64(height) * int64(channels)
	r.UsableBytes = r.UsableBits / 8
	r.MaxPayloadBytes = r.UsableBytes - r.HeaderOverheadBytes
	if r.MaxPayloadBytes <= 0 {
		return r, &Error{RequiredBytes: r.HeaderOverheadBytes + 1, AvailableBytes: r.UsableBytes}
	}
	return r, nil
}

// Fits reports whether payloadBytes plus the header overhead fit.
func (r Report) Fits(payloadBytes int64) bool {
	return payloadBytes >= 0 && payloadBytes+r.HeaderOverheadBytes <= r.UsableBytes
}

// Check returns an *Error when payloadBytes does not fit into r.
func (r Report) Check(payloadBytes int64) error {
	if r.Fits(payloadBytes) {
		return nil
	}
	return &Error{RequiredBytes: payloadBytes + r.HeaderOverheadBytes, AvailableBytes: r.UsableBytes}
}

// Utilization is the fraction of usable bytes a payload would occupy.
func (r Report) Utilization(payloadBytes int64) float64 {
	if r.UsableBytes == 0 {
		return math.Inf(1)
	}
	return float64(payloadBytes+r.HeaderOverheadBytes) / float64(r.UsableBytes)
}

// RequiredPixels is the number of pixels needed to hold payloadBytes plus
// the header overhead.
func RequiredPixels(payloadBytes int64, channels int) int64 {
	if channels <= 0 {
		return 0
	}
	bits := (payloadBytes + container.HeaderSize) * 8
	return (bits + int64(channels) - 1) / int64(channels)
}

// MinimumDimensions returns the smallest near-square carrier that can hold
// payloadBytes. The embed path never uses this; it always checks the real
// carrier.
func MinimumDimensions(payloadBytes int64, channels int) (width, height int) {
	pixels := RequiredPixels(payloadBytes, channels)
	if pixels <= 0 {
		return 0, 0
	}
	side := int64(math.Ceil(math.Sqrt(float64(pixels))))
	// Trim a row when a rectangle one pixel shorter still fits.
	h := side
	for h > 1 && side*(h-1) >= pixels {
		h--
	}
	return int(side), int(h)
}

// Suggestion is a carrier size for a common aspect ratio.
type Suggestion struct {
	AspectRatio   string
	Width         int
	Height        int
	Pixels        int64
	CapacityBytes int64
}

var aspectRatios = []struct{ w, h int }{
	{1, 1},
	{4, 3},
	{16, 9},
	{3, 2},
}

// Suggest returns the smallest carrier for each of a few common aspect
// ratios, ordered by pixel count.
func Suggest(payloadBytes int64, channels int) []Suggestion {
	pixels := RequiredPixels(payloadBytes, channels)
	if pixels <= 0 {
		return nil
	}

	suggestions := make([]Suggestion, 0, len(aspectRatios))
	for _, ratio := range aspectRatios {
		w := int64(math.Sqrt(float64(pixels) * float64(ratio.w) / float64(ratio.h)))
		if w < 1 {
			w = 1
		}
		h := w * int64(ratio.h) / int64(ratio.w)
		for w*h < pixels {
			w++
			h = w * int64(ratio.h) / int64(ratio.w)
		}
		suggestions = append(suggestions, Suggestion{
			AspectRatio:   fmt.Sprintf("%d:%d", ratio.w, ratio.h),
			Width:         int(w),
			Height:        int(h),
			Pixels:        w * h,
			CapacityBytes: w * h * int64(channels) / 8,
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Pixels < suggestions[j].Pixels
	})
	return suggestions
}
