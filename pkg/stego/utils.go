package stego

import (
	"image"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
)

// copyImage converts img to NRGBA with its origin at (0, 0). For the opaque
// RGBA images the PNG decoder produces this is lossless.
func copyImage(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	outputImage := image.NewNRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			outputImage.Set(x, y, img.At(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}
	return outputImage
}

func numBitsAvailable(width int, height int, channelSize int, numBitsToUsePerChannel int) int64 {
	if width <= 0 || height <= 0 || channelSize <= 0 || numBitsToUsePerChannel < 1 {
		return 0
	}
	return int64(width) * int64(height) * int64(channelSize) * int64(numBitsToUsePerChannel)
}

// bitAt returns bit i of b counting from the most significant bit.
func bitAt(b uint8, i int) uint8 {
	return (b >> (7 - i)) & 1
}

func withLSB(v uint8, bit uint8) uint8 {
	return v&^1 | bit&1
}

func newProgressBar(w io.Writer, total int64, description string) *progressbar.ProgressBar {
	if w == nil {
		w = io.Discard
	}
	return progressbar.NewOptions64(
		total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(15),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			io.WriteString(w, "\n")
		}),
	)
}
