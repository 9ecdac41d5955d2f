package main

import (
	"errors"
	"os"
	"strings"

	"github.com/fgeck/gameserver-console/internal/config"
	"github.com/fgeck/gameserver-console/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Configuration flags.
	configFile string
	verbose    bool
	quiet      bool
	jsonOutput bool
)

var errConfigRequired = errors.New("config file is required")

var rootCmd = &cobra.Command{
	Use:   "gameserver-console",
	Short: "A management console for a dedicated game server",
	Long: `gameserver-console supervises a dedicated game server and handles:
  - Scheduled restarts, broadcast messages, kicks and server locks (RCon)
  - Cron-driven backups of the mission directory
  - Backup retention and restore
  - Telegram notifications

Run "serve" for the long-running console with its HTTP API.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	SilenceUsage: true,
	Version:      Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (required)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "enable quiet mode (errors only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output logs in JSON format")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func setupLogging() {
	// Set output format
	if jsonOutput {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
		output.FormatLevel = func(i interface{}) string {
			if s, ok := i.(string); ok {
				return strings.ToUpper(s)
			}
			return ""
		}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set log level
	switch {
	case quiet:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case verbose:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// loadConfig parses and validates the --config file.
func loadConfig() (*config.Parser, *models.ConsoleConfig, error) {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return nil, nil, errConfigRequired
	}

	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
		return nil, nil, err
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return nil, nil, err
	}

	return parser, cfg, nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
