package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forest6511/acctvault/internal/config"
	"github.com/forest6511/acctvault/internal/logging"
)

var (
	flagConfig    string
	flagDataDir   string
	flagLogLevel  string
	flagLogFormat string

	cfg    *config.Config
	logger logging.Logger = logging.Nop()
)

var rootCmd = &cobra.Command{
	Use:           "acctvault",
	Short:         "acctvault keeps account credentials encrypted on this machine",
	Long:          `A local vault for account credentials with encrypted fields, backups, exports and TOTP codes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	// PersistentPreRunE resolves configuration and the logger before any subcommand.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(config.Flags{
			ConfigFile: flagConfig,
			DataDir:    flagDataDir,
			LogLevel:   flagLogLevel,
			LogFormat:  flagLogFormat,
		})
		if err != nil {
			return err
		}
		cfg = c

		l, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		logger = l
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (.yaml or .toml)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Data directory (default: <user config dir>/"+config.AppDirName+")")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format: text, json")
}
