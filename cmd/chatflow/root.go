package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/chatflow/internal/config"
	"github.com/aretw0/chatflow/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// settings holds every flag, env var and config file value.
var settings = viper.New()

var rootCmd = &cobra.Command{
	Use:           "chatflow",
	Short:         "chatflow runs conversation flows for messaging channels",
	Long:          `chatflow drives contacts through stored conversation flows, one inbound message at a time.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	if err := config.BindFlags(settings, rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}
}

// loadConfig resolves the configuration and the logger built from it.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(settings)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logging.New(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat), nil
}
