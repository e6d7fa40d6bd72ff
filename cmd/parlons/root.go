package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ent0n29/parlons/internal/config"
	"github.com/ent0n29/parlons/internal/logging"
)

type rootOptions struct {
	envFile  string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	serve := newServeCmd(opts)

	cmd := &cobra.Command{
		Use:           "parlons",
		Short:         "French conversation tutor backend",
		Long:          "parlons serves scenario-based French conversations with spoken replies.",
		RunE:          serve.RunE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file to load (default .env, or APP_ENV_FILE)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(serve)
	cmd.AddCommand(newPruneCmd(opts))
	cmd.AddCommand(newScenariosCmd(opts))
	return cmd
}

// load resolves configuration and the root logger, applying flag overrides.
func (o *rootOptions) load() (config.Config, *logging.Logger, error) {
	if envFile := strings.TrimSpace(o.envFile); envFile != "" {
		if err := os.Setenv("APP_ENV_FILE", envFile); err != nil {
			return config.Config{}, nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	if level := strings.TrimSpace(o.logLevel); level != "" {
		cfg.LogLevel = level
	}
	return cfg, logging.NewForFormat(cfg.LogFormat, cfg.LogLevel), nil
}
