package stego

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"

	"github.com/andresmejia3/pngstash/pkg/capacity"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrUnreadableFile    = errors.New("unreadable image file")
)

const pngSignature = "\x89PNG\r\n\x1a\n"

// PNG colour types from the IHDR chunk.
const (
	colorTypeGray      = 0
	colorTypeRGB       = 2
	colorTypePalette   = 3
	colorTypeGrayAlpha = 4
	colorTypeRGBA      = 6
)

// Carrier is an 8-bit image held in memory. Greyscale carriers expose one
// channel per pixel; everything else is held as NRGBA and exposes R, G and
// B. Alpha is never addressed.
type Carrier struct {
	img       image.Image
	pix       []uint8
	stride    int
	pixelSize int
	width     int
	height    int
	channels  int
}

// LoadCarrier reads a PNG carrier from disk. The file is not modified.
func LoadCarrier(path string) (*Carrier, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	defer file.Close()

	return ReadCarrier(file)
}

// ReadCarrier decodes a PNG carrier, rejecting anything that is not an
// 8-bit greyscale or truecolour PNG.
func ReadCarrier(r io.Reader) (*Carrier, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	if err := checkPNGHeader(data); err != nil {
		return nil, err
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	return NewCarrier(img)
}

// checkPNGHeader inspects the signature and IHDR chunk directly so bit depth
// can be rejected before decoding; image/png hides it behind a colour model.
func checkPNGHeader(data []byte) error {
	if len(data) < len(pngSignature) || string(data[:len(pngSignature)]) != pngSignature {
		return fmt.Errorf("%w: not a PNG file", ErrUnsupportedFormat)
	}
	// signature(8) + length(4) + "IHDR"(4) + width(4) + height(4) + depth(1) + colour type(1)
	if len(data) < 26 || string(data[12:16]) != "IHDR" {
		return fmt.Errorf("%w: missing IHDR chunk", ErrUnreadableFile)
	}

	depth, colorType := data[24], data[25]
	if depth != 8 {
		return fmt.Errorf("%w: %d-bit PNG, only 8 bits per channel are supported", ErrUnsupportedFormat, depth)
	}
	switch colorType {
	case colorTypeGray, colorTypeRGB, colorTypeGrayAlpha, colorTypeRGBA:
		return nil
	case colorTypePalette:
		return fmt.Errorf("%w: palette PNG", ErrUnsupportedFormat)
	default:
		return fmt.Errorf("%w: PNG colour type %d", ErrUnsupportedFormat, colorType)
	}
}

// NewCarrier wraps an in-memory image. The image is copied.
func NewCarrier(img image.Image) (*Carrier, error) {
	switch src := img.(type) {
	case *image.Gray:
		dst := image.NewGray(image.Rect(0, 0, src.Bounds().Dx(), src.Bounds().Dy()))
		for y := 0; y < dst.Rect.Dy(); y++ {
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+dst.Rect.Dx()], src.Pix[src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y+y):])
		}
		return &Carrier{
			img:       dst,
			pix:       dst.Pix,
			stride:    dst.Stride,
			pixelSize: 1,
			width:     dst.Rect.Dx(),
			height:    dst.Rect.Dy(),
			channels:  1,
		}, nil
	case *image.NRGBA, *image.RGBA:
		dst := copyImage(src)
		return &Carrier{
			img:       dst,
			pix:       dst.Pix,
			stride:    dst.Stride,
			pixelSize: 4,
			width:     dst.Rect.Dx(),
			height:    dst.Rect.Dy(),
			channels:  3,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedFormat, img)
	}
}

func (c *Carrier) Width() int    { return c.width }
func (c *Carrier) Height() int   { return c.height }
func (c *Carrier) Channels() int { return c.channels }

// UsableBytes is the number of whole bytes the carrier's LSBs can hold.
func (c *Carrier) UsableBytes() int64 {
	return numBitsAvailable(c.width, c.height, c.channels, 1) / 8
}

// Capacity returns the capacity report for this carrier.
func (c *Carrier) Capacity() (capacity.Report, error) {
	return capacity.Compute(c.width, c.height, c.channels)
}

// Clone returns a deep copy.
func (c *Carrier) Clone() *Carrier {
	out := *c
	switch img := c.img.(type) {
	case *image.Gray:
		cp := *img
		cp.Pix = append([]uint8(nil), img.Pix...)
		out.img, out.pix = &cp, cp.Pix
	case *image.NRGBA:
		cp := *img
		cp.Pix = append([]uint8(nil), img.Pix...)
		out.img, out.pix = &cp, cp.Pix
	}
	return &out
}

// WritePNG encodes the carrier as PNG.
func (c *Carrier) WritePNG(w io.Writer) error {
	encoder := png.Encoder{CompressionLevel: png.BestCompression}
	return encoder.Encode(w, c.img)
}

// channelOffset is the index into pix of channel ch of pixel (x, y).
func (c *Carrier) channelOffset(x, y, ch int) int {
	return y*c.stride + x*c.pixelSize + ch
}
