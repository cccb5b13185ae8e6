// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the alif CLI: plan, search, scrape,
// and serve comparative tradition research.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pdiddy/alif/internal/secrets"
	"github.com/pdiddy/alif/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// secretsDir holds one API key per file.
const secretsDir = ".secrets/"

var (
	logger   *zap.Logger
	logLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	cfg      types.PipelineConfig
)

// rootCmd is the base command for the alif CLI.
var rootCmd = &cobra.Command{
	Use:   "alif",
	Short: "Comparative research across religious and philosophical traditions",
	Long: `alif expands a question into one search query per tradition, searches
authoritative sources for each tradition, scrapes and cleans the pages, and
optionally synthesizes a cited comparative answer.

Use plan to inspect the generated queries, search to run the full pipeline,
and serve to expose the pipeline over HTTP with streamed progress.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		l, err := newLogger(verbose)
		if err != nil {
			return err
		}
		logger = l

		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("decoding configuration: %w", err)
		}
		cfg = cfg.WithDefaults()

		s, err := secrets.Resolve(secretsDir, os.Getenv, logger)
		if err != nil {
			return err
		}
		secrets.Apply(&cfg, s)
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Debug("loaded secrets", zap.Strings("keys", keys))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./alif.yaml or ~/.config/alif/alif.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringSlice("categories", nil, "restrict the run to these category keys")
	viper.BindPFlag("enabled_categories", rootCmd.PersistentFlags().Lookup("categories"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("alif")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "alif"))
		}
	}

	viper.SetEnvPrefix("ALIF")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds a production logger writing to stderr. Commands log
// warnings only unless verbose selects debug; serve raises the level to info.
func newLogger(verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.DisableStacktrace = true
	if verbose {
		logLevel.SetLevel(zap.DebugLevel)
	}
	zc.Level = logLevel
	return zc.Build()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
