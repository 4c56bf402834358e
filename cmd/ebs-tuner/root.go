package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/ebs-tuner/internal/config"
	"github.com/yairfalse/ebs-tuner/internal/telemetry"
)

var (
	version    = "0.1.0"
	configPath string
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "ebs-tuner",
		Short: "Tune throughput and IOPS of gp3 volumes on tagged EC2 instances",
		Long: `ebs-tuner sets throughput and IOPS on the gp3 EBS volumes attached to
EC2 instances carrying a target tag.

In AWS it runs as a Lambda function triggered by EC2 state-change events.
This CLI runs the same logic once, or as a periodic discovery loop.

Configuration comes from the environment (TARGET_EC2_TAG_KEY,
TARGET_EC2_TAG_VALUE, THROUGHPUT_VALUE, IOPS_VALUE) or a TOML file.`,
		Version:      version,
		SilenceUsage: true,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`ebs-tuner {{.Version}}
`)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML config file (default: read environment)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

// loadConfig reads the TOML file when --config is set, the environment otherwise.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.FromEnv()
}

func setupLogging(cfg *config.Config) (zerolog.Logger, error) {
	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	logger, err := telemetry.NewLogger(cfg.OTEL.ServiceName, level, true)
	if err != nil {
		return logger, err
	}
	log.Logger = logger
	return logger, nil
}
