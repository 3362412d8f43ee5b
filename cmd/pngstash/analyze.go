package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/pngstash/pkg/stego"
)

var (
	analyzeFlags struct {
		Original string
		Stego    string
		Heatmap  string
	}
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze the difference between an original and a stego image",
	Long:  `Calculates PSNR (Peak Signal-to-Noise Ratio) and generates a heatmap image highlighting modified pixels.`,
	Run: func(cmd *cobra.Command, args []string) {
		result, err := stego.Analyze(&stego.AnalyzeArgs{
			OriginalPath: analyzeFlags.Original,
			StegoPath:    analyzeFlags.Stego,
			HeatmapPath:  analyzeFlags.Heatmap,
			Progress:     os.Stderr,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Analysis failed")
		}

		fmt.Printf("Analysis Complete:\n")
		fmt.Printf("------------------\n")
		fmt.Printf("MSE (Mean Squared Error):       %.4f\n", result.MSE)
		fmt.Printf("PSNR (Peak Signal-to-Noise):    %.2f dB\n", result.PSNR)
		fmt.Printf("Modified channel values:        %d\n", result.ModifiedChannels)
		if result.HighBitChanges > 0 || result.AlphaChanges > 0 {
			fmt.Println(warningColor(fmt.Sprintf("Changes beyond the lowest bit: %d, alpha changes: %d", result.HighBitChanges, result.AlphaChanges)))
		}
		if analyzeFlags.Heatmap != "" {
			fmt.Printf("Heatmap saved to:               %s\n", analyzeFlags.Heatmap)
		}
		fmt.Printf("\nInterpretation:\n")
		fmt.Printf(" > 30dB: Good quality (hard to detect visually)\n")
		fmt.Printf(" > 40dB: Excellent quality\n")
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVarP(&analyzeFlags.Original, "original", "o", "", "Path to original image (required)")
	analyzeCmd.MarkFlagRequired("original")
	analyzeCmd.Flags().StringVarP(&analyzeFlags.Stego, "stego", "s", "", "Path to stego image (required)")
	analyzeCmd.MarkFlagRequired("stego")
	analyzeCmd.Flags().StringVarP(&analyzeFlags.Heatmap, "heatmap", "d", "heatmap.png", "Output path for the difference heatmap image (empty to skip)")
}
