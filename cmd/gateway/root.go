package main

import (
	"fmt"
	"os"

	"github.com/Vinayak0987/CareSync-sub001/pkg/config"
	"github.com/Vinayak0987/CareSync-sub001/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "caresync-ledger",
	Short: "CareSync shared order ledger",
	Long: `Runs one process of the CareSync shared order ledger. Every process
keeps its own copy of the order list and converges with the others through
the configured store and broadcast channel.`,
	SilenceUsage: true,
}

// Execute runs the root command. Called once by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config/config.yaml", "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}

// setup loads the configuration and builds the process logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}
