package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luckyPipewrench/logship/internal/config"
)

func checkCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a logship configuration file",
		Long: `Load and validate a configuration file, reporting the first problem
found. Exits zero when the file is usable.

Example:
  logship check --config logship.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			cmd.Printf("%s: OK\n", configPath)
			cmd.Printf("  sink:       %s\n", cfg.Sink.Type)
			cmd.Printf("  min level:  %s\n", cfg.MinLevel)
			if cfg.Metrics.Listen != "" {
				cmd.Printf("  metrics:    %s\n", cfg.Metrics.Listen)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to logship.yaml")

	return cmd
}
