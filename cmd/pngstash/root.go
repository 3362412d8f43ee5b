package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/pngstash/pkg/config"
)

// Global flags
var (
	verbose    bool
	configPath string
)

// appConfig holds the defaults loaded from the config file.
var appConfig = config.Default()

var (
	infoColor    = color.New(color.FgBlue).SprintFunc()
	successColor = color.New(color.FgGreen).SprintFunc()
	warningColor = color.New(color.FgYellow).SprintFunc()
	errorColor   = color.New(color.FgRed).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:   "pngstash",
	Short: "Hide files and directories in PNG images",
	Long: `pngstash packages a file or directory, encrypts it with a password and
hides it in the least significant bits of a PNG image.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load config")
		}
		appConfig = cfg
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML defaults file (default: $"+config.EnvVar+")")
}
