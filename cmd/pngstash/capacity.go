package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/pngstash/pkg/capacity"
	"github.com/andresmejia3/pngstash/pkg/stego"
)

var (
	capacityFlags struct {
		Image    string
		Channels int
	}
)

var capacityCmd = &cobra.Command{
	Use:   "capacity [path | size]",
	Short: "Calculate image capacity or the image size a payload needs",
	Long: `With --image, prints how many bytes the image can hold. With a file,
directory or size such as "1.5MB", prints the smallest image dimensions that
can hold it. With both, checks whether the payload fits.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if capacityFlags.Image == "" && len(args) == 0 {
			log.Fatal().Msg("provide --image, a payload path or size, or both")
		}
		if capacityFlags.Channels != 1 && capacityFlags.Channels != 3 {
			log.Fatal().Msg("channels must be 1 (greyscale) or 3 (RGB)")
		}

		var report *capacity.Report
		if capacityFlags.Image != "" {
			c, err := stego.LoadCarrier(capacityFlags.Image)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to load image")
			}
			r, err := c.Capacity()
			if err != nil && !errors.Is(err, capacity.ErrTooSmall) {
				log.Fatal().Err(err).Msg("Failed to compute capacity")
			}
			report = &r
			printReport(r)
		}

		if len(args) == 0 {
			return
		}
		payload, err := capacity.Query(args[0])
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to size payload")
		}
		fmt.Printf("\nPayload estimate: %s (includes %s for packaging and encryption)\n",
			capacity.FormatBytes(payload), capacity.FormatBytes(capacity.EnvelopeAllowance))

		if report != nil {
			if err := report.Check(payload); err != nil {
				fmt.Println(errorColor("❌ " + err.Error()))
				os.Exit(1)
			}
			fmt.Printf("%s uses %.1f%% of the image\n", successColor("✅ Fits:"), 100*report.Utilization(payload))
			return
		}

		channels := capacityFlags.Channels
		w, h := capacity.MinimumDimensions(payload, channels)
		fmt.Printf("Minimum dimensions (%d channel(s)): %dx%d\n\n", channels, w, h)

		wtr := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(wtr, "Aspect\tWidth\tHeight\tPixels\tCapacity")
		fmt.Fprintln(wtr, "------\t-----\t------\t------\t--------")
		for _, s := range capacity.Suggest(payload, channels) {
			fmt.Fprintf(wtr, "%s\t%d\t%d\t%d\t%s\n", s.AspectRatio, s.Width, s.Height, s.Pixels, capacity.FormatBytes(s.CapacityBytes))
		}
		wtr.Flush()
	},
}

func printReport(r capacity.Report) {
	wtr := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(wtr, "Dimensions\t%dx%d\n", r.Width, r.Height)
	fmt.Fprintf(wtr, "Channels\t%d\n", r.Channels)
	fmt.Fprintf(wtr, "Usable bits\t%d\n", r.UsableBits)
	fmt.Fprintf(wtr, "Usable bytes\t%d (%s)\n", r.UsableBytes, capacity.FormatBytes(r.UsableBytes))
	fmt.Fprintf(wtr, "Header overhead\t%d bytes\n", r.HeaderOverheadBytes)
	if r.MaxPayloadBytes > 0 {
		fmt.Fprintf(wtr, "Max payload\t%d bytes (%s)\n", r.MaxPayloadBytes, capacity.FormatBytes(r.MaxPayloadBytes))
	} else {
		fmt.Fprintf(wtr, "Max payload\t%s\n", errorColor("none, image too small"))
	}
	wtr.Flush()
}

func init() {
	rootCmd.AddCommand(capacityCmd)

	capacityCmd.Flags().StringVarP(&capacityFlags.Image, "image", "i", "", "Carrier PNG to measure")
	capacityCmd.Flags().IntVarP(&capacityFlags.Channels, "channels", "c", 3, "Usable channels per pixel for dimension suggestions (1 or 3)")
}
