// Package cli implements the logship command-line interface using cobra.
package cli

import (
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "0.1.0-dev"

// Execute runs the root command.
func Execute() error {
	return rootCmd().Execute()
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logship",
		Short: "Reliable log shipping to external notification sinks",
		Long: `Logship forwards application log records to an external sink
(notifier command, HTTP webhook, or NATS subject) with bounded
queueing, batching, rate limiting, retries, and a circuit breaker, so
a slow or dead sink never blocks or crashes the application.

Quick start:
  my-app 2>&1 | logship ship --config logship.yaml
  tail -f app.log | logship ship --sink webhook --url https://hooks.example.com/logs
  logship check --config logship.yaml
  logship demo --sink stdout`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		shipCmd(),
		checkCmd(),
		demoCmd(),
	)

	return cmd
}
