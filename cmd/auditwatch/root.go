package main

import (
	"github.com/spf13/cobra"
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auditwatch",
		Short: "Health monitoring and alerting for audited government APIs",
		Long: `auditwatch samples the health of monitored APIs on a fixed interval,
evaluates alert rules against every snapshot and fans notifications out to
email, SMS, webhook and chat channels.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(validateCmd())
	return cmd
}
