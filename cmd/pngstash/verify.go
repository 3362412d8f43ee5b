package main

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/pngstash/pkg/pipeline"
)

var (
	verifyFlags struct {
		Image string
	}
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the integrity of a stego image",
	Long:  `Checks that an image contains a valid container, repairs what Reed-Solomon parity can repair and compares the body against its recorded digest. No passphrase is needed.`,
	Run: func(cmd *cobra.Command, args []string) {
		result, err := pipeline.Verify(verifyFlags.Image)
		if errors.Is(err, pipeline.ErrNoDigest) && result != nil {
			fmt.Println(warningColor("⚠️  Container found but it carries no digest or parity to check."))
			return
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Verification failed")
		}

		fmt.Println(successColor("✅ Image verification successful!"))
		fmt.Printf("Flags:            %s\n", result.Header.Flags)
		fmt.Printf("Body Size:        %d bytes\n", result.Header.BodyLength)
		if result.Metadata != nil {
			fmt.Printf("Name:             %s\n", result.Metadata.Name)
		}
		fmt.Printf("Digest Checked:   %t\n", result.DigestChecked)
		if result.RepairedShards > 0 {
			fmt.Println(warningColor(fmt.Sprintf("Repairable damage in %d shard(s).", result.RepairedShards)))
		}
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVarP(&verifyFlags.Image, "image-path", "i", "", "Path to image (required)")
	verifyCmd.MarkFlagRequired("image-path")
}
