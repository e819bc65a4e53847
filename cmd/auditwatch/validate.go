package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"auditwatch/internal/config"
)

func validateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate a config file, then print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			printSummary(cmd.OutOrStdout(), cfg)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	return cmd
}

func printSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "config OK\n")
	fmt.Fprintf(w, "  http:     %s\n", cfg.HTTP.Addr)
	fmt.Fprintf(w, "  monitor:  every %s, %d targets %v, sampler %s\n",
		cfg.Monitor.Interval, len(cfg.Monitor.Targets), cfg.Monitor.Targets, cfg.Monitor.Sampler)
	fmt.Fprintf(w, "  rules:    %d\n", len(cfg.Rules))
	for _, rc := range cfg.Rules {
		r := rc.Model()
		fmt.Fprintf(w, "    - %s: %s %s %g on %s (%s, cooldown %dm)\n",
			r.ID, r.MetricField, r.Comparator, r.Threshold, r.TargetID, r.Severity, r.CooldownMinutes)
	}
	fmt.Fprintf(w, "  channels: %d\n", len(cfg.Channels))
	for _, cc := range cfg.Channels {
		ch := cc.Model()
		fmt.Fprintf(w, "    - %s (%s, enabled=%t)\n", ch.ID, ch.Kind, ch.Enabled)
	}
	fmt.Fprintf(w, "  kafka: %t  redis: %t  archive: %t\n", cfg.Kafka.Enabled, cfg.Redis.Enabled, cfg.Archive.Enabled)
}
