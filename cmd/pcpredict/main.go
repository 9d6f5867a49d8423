package main

import (
	"errors"
	"io/fs"
	"os"

	"pervious-predictor/internal/cfg"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	envFile  string
	logLevel string
	settings cfg.Settings
)

var rootCmd = &cobra.Command{
	Use:   "pcpredict",
	Short: "Pervious concrete strength and permeability predictor",
	Long: `Predict the compressive strength or permeability of a pervious concrete
mix and explain the prediction with per-feature SHAP contributions.

Available subcommands:
  serve    - Serve the prediction forms and JSON API
  predict  - Run one prediction from the command line
  registry - Manage registered model and scaler versions`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd, predictCmd, registryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the dotenv file and configuration and configures logging.
func setup(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	var err error
	settings, err = cfg.Load()
	if err != nil {
		return err
	}
	if logLevel != "" {
		settings.LogLevel = logLevel
	}
	setupLogging(settings.LogLevel, settings.LogFormat)
	return nil
}

func setupLogging(levelName, format string) {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
