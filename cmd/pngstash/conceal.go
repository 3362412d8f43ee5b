package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/pngstash/pkg/capacity"
	"github.com/andresmejia3/pngstash/pkg/crypt"
	"github.com/andresmejia3/pngstash/pkg/packaging"
	"github.com/andresmejia3/pngstash/pkg/pipeline"
)

var (
	concealFlags struct {
		Image       string
		Pass        string
		File        string
		Out         string
		Cipher      string
		Compression string
		Threshold   float64
		Compress    bool
		Parity      bool
		DryRun      bool
	}
)

var concealCmd = &cobra.Command{
	Use:   "conceal",
	Short: "Conceal a file or directory in an image",
	Run: func(cmd *cobra.Command, args []string) {
		// Default output handling
		if concealFlags.Out == "" && !concealFlags.DryRun {
			concealFlags.Out = filepath.Join("output", "hidden.png")
		}

		cfg, err := buildConcealConfig(cmd)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid arguments")
		}
		cfg.CarrierPath = concealFlags.Image
		cfg.PayloadPath = concealFlags.File
		cfg.OutputPath = concealFlags.Out
		cfg.DryRun = concealFlags.DryRun
		cfg.Progress = os.Stderr

		if cfg.Cipher != crypt.None {
			cfg.Password, err = readPassword(concealFlags.Pass, true)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to read passphrase")
			}
		}

		result, err := pipeline.Conceal(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to conceal payload")
		}

		if cfg.DryRun {
			fmt.Println(successColor("✅ Payload fits."))
		} else {
			fmt.Printf("%s %s\n", successColor("✅ Payload concealed in"), result.OutputPath)
		}
		fmt.Printf("Name:        %s\n", result.Metadata.Name)
		fmt.Printf("Type:        %s (%s)\n", result.Metadata.Type, result.Metadata.MIME)
		fmt.Printf("Flags:       %s\n", result.Header.Flags)
		fmt.Printf("Cipher:      %s\n", crypt.Algorithm(result.Header.Cipher))
		fmt.Printf("Compression: %s\n", packaging.Compression(result.Header.Compression))
		fmt.Printf("Original:    %s\n", capacity.FormatBytes(int64(result.Metadata.Size)))
		fmt.Printf("Embedded:    %s of %s (%.1f%%)\n",
			capacity.FormatBytes(int64(result.ContainerBytes)),
			capacity.FormatBytes(result.Capacity.UsableBytes),
			100*float64(result.ContainerBytes)/float64(result.Capacity.UsableBytes))
	},
}

// buildConcealConfig overlays flags set on the command line onto the config
// file. It is shared by conceal and batch.
func buildConcealConfig(cmd *cobra.Command) (pipeline.ConcealConfig, error) {
	merged := *appConfig
	flags := cmd.Flags()
	if flags.Changed("cipher") {
		merged.Cipher = concealFlags.Cipher
	}
	if flags.Changed("compression") {
		merged.Compression = concealFlags.Compression
	}
	if flags.Changed("threshold") {
		merged.Threshold = concealFlags.Threshold
	}
	if flags.Changed("compress") {
		merged.Compress = concealFlags.Compress
	}
	if flags.Changed("parity") {
		merged.Parity = concealFlags.Parity
	}
	if err := merged.Validate(); err != nil {
		return pipeline.ConcealConfig{}, err
	}

	algorithm, err := merged.CipherAlgorithm()
	if err != nil {
		return pipeline.ConcealConfig{}, err
	}
	opts, err := merged.PackagingOptions()
	if err != nil {
		return pipeline.ConcealConfig{}, err
	}

	return pipeline.ConcealConfig{
		Cipher:        algorithm,
		CipherOptions: merged.CipherOptions(),
		Packaging:     opts,
		Parity:        merged.Parity,
	}, nil
}

// addPackagingFlags registers the flags read by buildConcealConfig.
func addPackagingFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&concealFlags.Pass, "passphrase", "p", "", "Passphrase to encrypt the payload (default: $"+passwordEnvVar+" or prompt)")
	cmd.Flags().StringVarP(&concealFlags.Cipher, "cipher", "c", crypt.AESGCM.String(), "Cipher: none, aes-gcm, xchacha20, age")
	cmd.Flags().StringVar(&concealFlags.Compression, "compression", packaging.CompressionGzip.String(), "Compression: none, gzip, zstd, lz4")
	cmd.Flags().Float64Var(&concealFlags.Threshold, "threshold", packaging.DefaultThreshold, "Keep compression only below this compressed/original ratio")
	cmd.Flags().BoolVarP(&concealFlags.Compress, "compress", "z", true, "Compress data before embedding to save space")
	cmd.Flags().BoolVar(&concealFlags.Parity, "parity", false, "Add Reed-Solomon parity so small damage can be repaired")
}

func init() {
	rootCmd.AddCommand(concealCmd)

	concealCmd.Flags().StringVarP(&concealFlags.Image, "image-path", "i", "", "Path to carrier PNG (required)")
	concealCmd.MarkFlagRequired("image-path")
	concealCmd.Flags().StringVarP(&concealFlags.File, "file", "f", "", "Path to the file or directory to conceal (required)")
	concealCmd.MarkFlagRequired("file")
	concealCmd.Flags().StringVarP(&concealFlags.Out, "output", "o", "", "Output path for the image (default: output/hidden.png)")
	concealCmd.Flags().BoolVar(&concealFlags.DryRun, "dry-run", false, "Check if the payload fits without writing the image")
	addPackagingFlags(concealCmd)
}
