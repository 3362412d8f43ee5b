package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/pngstash/pkg/capacity"
	"github.com/andresmejia3/pngstash/pkg/crypt"
	"github.com/andresmejia3/pngstash/pkg/packaging"
	"github.com/andresmejia3/pngstash/pkg/pipeline"
)

var infoCmd = &cobra.Command{
	Use:   "info [image_path]",
	Short: "Inspect an image and display any container header",
	Long:  `Reads the container header and metadata of a stego image, such as the original name, size, cipher and compression. No passphrase is needed.`,
	Args:  cobra.ExactArgs(1), // Requires exactly one argument: the image path
	RunE: func(cmd *cobra.Command, args []string) error {
		imagePath := args[0]

		info, err := pipeline.Inspect(imagePath)
		if err != nil {
			return fmt.Errorf("failed to get info from %s: %w", imagePath, err)
		}

		fmt.Println("Image Information:")
		fmt.Println("------------------")
		fmt.Printf("Dimensions:       %dx%d\n", info.Width, info.Height)
		fmt.Printf("Channels Used:    %d\n", info.Channels)
		fmt.Printf("Capacity:         %s\n", capacity.FormatBytes(info.Capacity.UsableBytes))

		if info.Header == nil {
			fmt.Println(infoColor("\nNo pngstash container found."))
			return nil
		}

		fmt.Println("\nContainer Header:")
		fmt.Println("-----------------")
		fmt.Printf("Version:          %d\n", info.Header.Version)
		fmt.Printf("Flags:            %s\n", info.Header.Flags)
		fmt.Printf("Cipher:           %s\n", crypt.Algorithm(info.Header.Cipher))
		fmt.Printf("Compression:      %s\n", packaging.Compression(info.Header.Compression))
		fmt.Printf("Body Size:        %d bytes\n", info.Header.BodyLength)
		fmt.Printf("Container Size:   %d bytes\n", info.ContainerBytes)
		if m := info.Metadata; m != nil {
			fmt.Printf("Name:             %s\n", m.Name)
			if m.Type != "" {
				fmt.Printf("Type:             %s\n", m.Type)
				fmt.Printf("MIME:             %s\n", m.MIME)
			}
			fmt.Printf("Original Size:    %s\n", capacity.FormatBytes(int64(m.Size)))
			if m.Files > 0 {
				fmt.Printf("Files:            %d\n", m.Files)
			}
			fmt.Printf("Digest:           %x\n", m.Digest)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
