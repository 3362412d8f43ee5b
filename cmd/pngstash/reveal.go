package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/pngstash/pkg/crypt"
	"github.com/andresmejia3/pngstash/pkg/pipeline"
)

var (
	revealFlags struct {
		Image        string
		Pass         string
		Out          string
		LegacyCipher string
		NoPassphrase bool
	}
)

var revealCmd = &cobra.Command{
	Use:   "reveal",
	Short: "Reveal a file or directory hidden in an image",
	Run: func(cmd *cobra.Command, args []string) {
		legacy, err := crypt.ParseAlgorithm(revealFlags.LegacyCipher)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid legacy cipher")
		}

		var password string
		if info, err := pipeline.Inspect(revealFlags.Image); err == nil && info.Header != nil && crypt.Algorithm(info.Header.Cipher) == crypt.None {
			revealFlags.NoPassphrase = true
		}
		if !revealFlags.NoPassphrase {
			password, err = readPassword(revealFlags.Pass, false)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to read passphrase")
			}
		}

		result, err := pipeline.Reveal(pipeline.RevealConfig{
			ImagePath:     revealFlags.Image,
			OutputPath:    revealFlags.Out,
			Password:      password,
			CipherOptions: appConfig.CipherOptions(),
			LegacyCipher:  legacy,
			Progress:      os.Stderr,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to reveal payload")
		}

		fmt.Printf("%s %s\n", successColor("✅ Revealed"), result.OutputPath)
		if m := result.Metadata; m != nil && m.Type != "" {
			fmt.Printf("Type: %s (%s)\n", m.Type, m.MIME)
		}
		if result.Legacy {
			fmt.Println(warningColor("Legacy container: packaging was detected by content sniffing."))
		}
		if result.RepairedShards > 0 {
			fmt.Println(warningColor(fmt.Sprintf("Repaired %d damaged parity shard(s).", result.RepairedShards)))
		}
	},
}

func init() {
	rootCmd.AddCommand(revealCmd)

	revealCmd.Flags().StringVarP(&revealFlags.Image, "image-path", "i", "", "Path to image (required)")
	revealCmd.MarkFlagRequired("image-path")
	revealCmd.Flags().StringVarP(&revealFlags.Pass, "passphrase", "p", "", "Passphrase to decrypt the payload (default: $"+passwordEnvVar+" or prompt)")
	revealCmd.Flags().BoolVar(&revealFlags.NoPassphrase, "no-passphrase", false, "The payload was concealed without encryption")
	revealCmd.Flags().StringVarP(&revealFlags.Out, "output", "o", "", "File to write, or directory to write into (default: current directory)")
	revealCmd.Flags().StringVar(&revealFlags.LegacyCipher, "legacy-cipher", crypt.AESGCM.String(), "Cipher assumed for legacy containers")
}
