package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/luckyPipewrench/logship/record"
)

func demoCmd() *cobra.Command {
	var (
		configPath string
		sinkType   string
		command    string
		url        string
		natsURL    string
		subject    string
		interval   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Generate sample log traffic through the pipeline",
		Long: `Run a short simulation that emits records at every level through a
real handler, so a sink configuration can be exercised end to end
before wiring it into an application.

Examples:
  logship demo --sink stdout
  logship demo --config logship.yaml --interval 500ms`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadOrFlagConfig(configPath, sinkType, command, url, natsURL, subject, "debug")
			if err != nil {
				return err
			}

			handler, err := buildHandler(cfg)
			if err != nil {
				return err
			}

			appLog := func(level record.Level, format string, args ...any) {
				handler.Handle(record.New(level, "demo", fmt.Sprintf(format, args...)).
					WithTags("logship", "demo"))
				time.Sleep(interval)
			}

			appLog(record.LevelInfo, "starting application simulation")
			for i := 0; i < 3; i++ {
				appLog(record.LevelInfo, "processing item %d", i)
			}
			appLog(record.LevelWarning, "resource usage is high (80%%)")
			appLog(record.LevelError, "failed to connect to external API")
			appLog(record.LevelCritical, "an unexpected error occurred: %v", fmt.Errorf("division by zero"))
			appLog(record.LevelInfo, "simulation complete")

			closeHandler(handler)
			printStats(cmd, handler)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to logship.yaml")
	cmd.Flags().StringVar(&sinkType, "sink", "", "Sink type: exec, webhook, nats, stdout")
	cmd.Flags().StringVar(&command, "command", "", "Notifier command for the exec sink")
	cmd.Flags().StringVar(&url, "url", "", "Endpoint for the webhook sink")
	cmd.Flags().StringVar(&natsURL, "nats-url", "", "Server URL for the nats sink")
	cmd.Flags().StringVar(&subject, "subject", "", "Subject for the nats sink")
	cmd.Flags().DurationVar(&interval, "interval", 200*time.Millisecond, "Delay between simulated records")

	return cmd
}
