package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/pngstash/pkg/crypt"
	"github.com/andresmejia3/pngstash/pkg/pipeline"
)

var (
	batchFlags struct {
		Image   string
		OutDir  string
		Workers int
	}
)

var batchCmd = &cobra.Command{
	Use:   "batch [payload...]",
	Short: "Conceal several payloads, each in its own copy of one carrier",
	Long:  `Conceals every payload into a separate copy of the carrier image, in parallel. Each output is named after its payload, so payload base names must be unique.`,
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if !cmd.Flags().Changed("workers") {
			batchFlags.Workers = appConfig.Workers
		}
		if batchFlags.Workers < 0 {
			log.Fatal().Msg("number of workers cannot be negative")
		}

		base, err := buildConcealConfig(cmd)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid arguments")
		}
		if base.Cipher != crypt.None {
			base.Password, err = readPassword(concealFlags.Pass, true)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to read passphrase")
			}
		}

		jobs := make([]pipeline.ConcealConfig, 0, len(args))
		for _, payload := range args {
			job := base
			job.CarrierPath = batchFlags.Image
			job.PayloadPath = payload
			name := strings.TrimSuffix(filepath.Base(filepath.Clean(payload)), filepath.Ext(payload))
			job.OutputPath = filepath.Join(batchFlags.OutDir, name+".png")
			jobs = append(jobs, job)
		}

		results, err := pipeline.Batch(jobs, batchFlags.Workers)
		if err != nil {
			log.Fatal().Err(err).Msg("Batch rejected")
		}

		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
				fmt.Printf("%s %s: %v\n", errorColor("❌"), r.Job.PayloadPath, r.Err)
				continue
			}
			fmt.Printf("%s %s -> %s\n", successColor("✅"), r.Job.PayloadPath, r.Result.OutputPath)
		}
		if failed > 0 {
			log.Fatal().Int("failed", failed).Int("total", len(results)).Msg("Batch finished with failures")
		}
	},
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVarP(&batchFlags.Image, "image-path", "i", "", "Path to carrier PNG (required)")
	batchCmd.MarkFlagRequired("image-path")
	batchCmd.Flags().StringVarP(&batchFlags.OutDir, "output-dir", "o", "output", "Directory for the output images")
	batchCmd.Flags().IntVarP(&batchFlags.Workers, "workers", "w", 0, "Number of workers to use for concurrency (default: number of CPUs)")
	addPackagingFlags(batchCmd)
}
