package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"auditwatch/internal/app"
	"auditwatch/internal/config"
	"auditwatch/internal/logger"
)

type serveFlags struct {
	configPath string
	logLevel   string
}

func serveCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor and admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), &flags)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&flags.configPath, "config", "c", "", "path to a YAML config file")
	fs.StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config")

	return cmd
}

func serve(parent context.Context, flags *serveFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	logger.Init(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log := logger.WithComponent("main")
		log.Error().Err(err).Msg("startup failed")
		return err
	}
	return a.Run(ctx)
}
