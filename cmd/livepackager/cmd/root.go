// Package cmd implements the CLI commands for livepackager.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/livepackager/internal/observability"
	"github.com/jmylchreest/livepackager/internal/version"
)

var cliViper = viper.New()

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "livepackager",
	Short:   "Transform demuxed init/media segments into fMP4, TS, or packed-audio output",
	Version: version.Short(),
	Long: `livepackager packages already-demuxed initialization and media segments
into fragmented MP4, MPEG-2 TS, packed audio (ID3-PRIV + ADTS/AC-3), or
timed-text (WebVTT/TTML) output, optionally applying sample-level
encryption (CENC, cbc1, cens, cbcs).

It performs no demuxing, manifest generation, or network I/O; input and
output are caller-supplied files.

Example:
  livepackager package --format fmp4 --track-type video \
    --init init.mp4 --media seg1.m4s --out seg1-out.m4s`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initLogging()
	}

	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

func initConfig() {
	cliViper.SetEnvPrefix("LIVEPACKAGER")
	cliViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	cliViper.AutomaticEnv()
	cliViper.SetDefault("logging.level", "info")
	cliViper.SetDefault("logging.format", "json")
}

func initLogging() error {
	level := cliViper.GetString("logging.level")
	format := cliViper.GetString("logging.format")

	if rootCmd.PersistentFlags().Changed("log-level") {
		level, _ = rootCmd.PersistentFlags().GetString("log-level")
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		format, _ = rootCmd.PersistentFlags().GetString("log-format")
	}

	logCfg := observability.LoggingConfig{
		Level:  strings.ToLower(level),
		Format: strings.ToLower(format),
	}
	if logCfg.Level == "warning" {
		logCfg.Level = "warn"
	}

	logger := observability.NewLoggerWithWriter(logCfg, os.Stderr)
	observability.SetDefault(logger)
	return nil
}
