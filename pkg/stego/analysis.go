package stego

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
)

// AnalyzeArgs names the images to compare. HeatmapPath may be empty to skip
// writing the heatmap.
type AnalyzeArgs struct {
	OriginalPath string
	StegoPath    string
	HeatmapPath  string
	Progress     io.Writer
}

// AnalysisResult holds metrics about the comparison between two images.
type AnalysisResult struct {
	MSE  float64 // Mean Squared Error
	PSNR float64 // Peak Signal-to-Noise Ratio (dB)

	// ModifiedChannels counts channel values that differ at all.
	ModifiedChannels int64
	// HighBitChanges counts channel values that differ above the lowest
	// bit. LSB embedding never produces any.
	HighBitChanges int64
	// AlphaChanges counts pixels whose alpha differs.
	AlphaChanges int64
}

// Analyze compares an original carrier with a stego image and, when asked,
// writes a heatmap of the modified pixels.
func Analyze(args *AnalyzeArgs) (*AnalysisResult, error) {
	original, err := LoadCarrier(args.OriginalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load original: %w", err)
	}
	stegoImage, err := LoadCarrier(args.StegoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load stego image: %w", err)
	}

	result, heatmap, err := Compare(original, stegoImage, args.Progress)
	if err != nil {
		return nil, err
	}

	if args.HeatmapPath != "" {
		f, err := os.Create(args.HeatmapPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create heatmap file: %w", err)
		}
		defer f.Close()
		if err := png.Encode(f, heatmap); err != nil {
			return nil, fmt.Errorf("failed to write heatmap: %w", err)
		}
	}
	return result, nil
}

// Compare computes difference metrics between two carriers of the same
// shape and returns a heatmap: black for untouched pixels, green shading to
// red as the difference grows.
func Compare(a, b *Carrier, progress io.Writer) (*AnalysisResult, *image.NRGBA, error) {
	if a.width != b.width || a.height != b.height {
		return nil, nil, fmt.Errorf("image dimensions do not match: %dx%d vs %dx%d", a.width, a.height, b.width, b.height)
	}
	if a.channels != b.channels {
		return nil, nil, fmt.Errorf("channel counts do not match: %d vs %d", a.channels, b.channels)
	}

	result := &AnalysisResult{}
	heatmap := image.NewNRGBA(image.Rect(0, 0, a.width, a.height))
	var sumSquaredError float64

	bar := newProgressBar(progress, int64(a.height), "analyzing")
	defer bar.Finish()

	for y := 0; y < a.height; y++ {
		for x := 0; x < a.width; x++ {
			var diffSum float64
			for ch := 0; ch < a.channels; ch++ {
				v1 := a.pix[a.channelOffset(x, y, ch)]
				v2 := b.pix[b.channelOffset(x, y, ch)]
				if v1 == v2 {
					continue
				}
				diff := float64(v1) - float64(v2)
				sumSquaredError += diff * diff
				diffSum += math.Abs(diff)
				result.ModifiedChannels++
				if v1>>1 != v2>>1 {
					result.HighBitChanges++
				}
			}
			if a.pixelSize == 4 && a.pix[a.channelOffset(x, y, 3)] != b.pix[b.channelOffset(x, y, 3)] {
				result.AlphaChanges++
			}

			if diffSum > 0 {
				// A difference of 1 becomes 50 brightness.
				intensity := uint8(math.Min(255, diffSum*50))
				heatmap.SetNRGBA(x, y, color.NRGBA{R: intensity, G: 255 - intensity, A: 255})
			} else {
				heatmap.SetNRGBA(x, y, color.NRGBA{A: 255})
			}
		}
		bar.Add(1)
	}

	samples := float64(a.width) * float64(a.height) * float64(a.channels)
	result.MSE = sumSquaredError / samples
	result.PSNR = 10 * math.Log10((255*255)/result.MSE)
	return result, heatmap, nil
}
