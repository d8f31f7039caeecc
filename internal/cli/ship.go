package cli

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/luckyPipewrench/logship"
	"github.com/luckyPipewrench/logship/internal/config"
	"github.com/luckyPipewrench/logship/record"
)

func shipCmd() *cobra.Command {
	var (
		configPath string
		watch      bool
		loggerName string
		sinkType   string
		command    string
		url        string
		natsURL    string
		subject    string
		minLevel   string
	)

	cmd := &cobra.Command{
		Use:   "ship",
		Short: "Read log lines from stdin and ship them to the sink",
		Long: `Read log lines from stdin, parse their level, and ship them to the
configured sink. A leading level token (DEBUG, INFO, WARNING, ERROR,
CRITICAL) is recognized in common layouts; anything else ships as INFO.

Examples:
  my-app 2>&1 | logship ship --config logship.yaml
  tail -f app.log | logship ship --sink exec --command disgo
  kubectl logs -f my-pod | logship ship --sink nats --nats-url nats://127.0.0.1:4222`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadOrFlagConfig(configPath, sinkType, command, url, natsURL, subject, minLevel)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			handler, err := buildHandler(cfg)
			if err != nil {
				return err
			}

			if cfg.Metrics.Listen != "" {
				go serveMetrics(cfg.Metrics.Listen, handler)
			}

			var reloader *config.Reloader
			if watch && configPath != "" {
				reloader = config.NewReloader(configPath)
				go func() {
					if err := reloader.Start(ctx); err != nil {
						fmt.Fprintf(os.Stderr, "logship: config watcher: %v\n", err)
					}
				}()
				defer reloader.Close()
			}

			lines := make(chan string)
			go func() {
				defer close(lines)
				sc := bufio.NewScanner(os.Stdin)
				sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
				for sc.Scan() {
					lines <- sc.Text()
				}
			}()

			var reloads <-chan *config.Config
			if reloader != nil {
				reloads = reloader.Changes()
			}

		loop:
			for {
				select {
				case <-ctx.Done():
					break loop
				case newCfg, ok := <-reloads:
					if !ok {
						reloads = nil
						continue
					}
					replaced, err := buildHandler(newCfg)
					if err != nil {
						fmt.Fprintf(os.Stderr, "logship: reload rejected: %v\n", err)
						continue
					}
					closeHandler(handler)
					handler = replaced
					fmt.Fprintln(os.Stderr, "logship: configuration reloaded")
				case line, ok := <-lines:
					if !ok {
						break loop
					}
					level, msg := parseLine(line)
					handler.Handle(record.New(level, loggerName, msg))
				}
			}

			closeHandler(handler)
			printStats(cmd, handler)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to logship.yaml")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Reload the config file on change or SIGHUP")
	cmd.Flags().StringVar(&loggerName, "logger", "stdin", "Logger name attached to shipped records")
	cmd.Flags().StringVar(&sinkType, "sink", "", "Sink type: exec, webhook, nats, stdout")
	cmd.Flags().StringVar(&command, "command", "", "Notifier command for the exec sink")
	cmd.Flags().StringVar(&url, "url", "", "Endpoint for the webhook sink")
	cmd.Flags().StringVar(&natsURL, "nats-url", "", "Server URL for the nats sink")
	cmd.Flags().StringVar(&subject, "subject", "", "Subject for the nats sink")
	cmd.Flags().StringVar(&minLevel, "min-level", "", "Minimum level to ship (debug, info, warning, error, critical)")

	return cmd
}

// loadOrFlagConfig loads the config file when given and lets flags
// override the sink selection, so quick pipelines work without a file.
func loadOrFlagConfig(path, sinkType, command, url, natsURL, subject, minLevel string) (*config.Config, error) {
	var cfg *config.Config
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Defaults()
	}

	if sinkType != "" {
		cfg.Sink.Type = sinkType
	}
	if command != "" {
		cfg.Sink.Command = command
	}
	if url != "" {
		cfg.Sink.URL = url
	}
	if natsURL != "" {
		cfg.Sink.NATSURL = natsURL
	}
	if subject != "" {
		cfg.Sink.Subject = subject
	}
	if minLevel != "" {
		cfg.MinLevel = minLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildHandler(cfg *config.Config) (*logship.Handler, error) {
	snk, err := cfg.BuildSink()
	if err != nil {
		return nil, err
	}

	hcfg := cfg.HandlerConfig()
	hcfg.Sink = snk
	handler, err := logship.New(hcfg)
	if err != nil {
		_ = snk.Close()
		return nil, err
	}
	return handler, nil
}

func closeHandler(h *logship.Handler) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.Close(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "logship: shutdown: %v\n", err)
	}
}

func serveMetrics(listen string, h *logship.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h.Metrics().PrometheusHandler())
	mux.HandleFunc("/stats", h.Metrics().StatsHandler())

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "logship: metrics listener: %v\n", err)
	}
}

func printStats(cmd *cobra.Command, h *logship.Handler) {
	stats := h.Stats()
	cmd.PrintErrf("logship: enqueued=%d delivered=%d retried=%d dropped=%d\n",
		stats.Enqueued, stats.DeliveredRecords, stats.Retried, stats.Dropped())
}

// parseLine extracts a leading level token from a log line. Recognized
// layouts: "ERROR msg", "ERROR: msg", "ERROR - msg", "[error] msg".
// Lines without a recognizable level ship as INFO with the full text.
func parseLine(line string) (record.Level, string) {
	trimmed := strings.TrimSpace(line)
	token, rest, found := strings.Cut(trimmed, " ")
	if !found {
		token = trimmed
		rest = ""
	}

	norm := strings.ToUpper(strings.Trim(token, "[]:-"))
	switch norm {
	case "DEBUG", "INFO", "WARNING", "WARN", "ERROR", "CRITICAL", "FATAL":
		rest = strings.TrimSpace(strings.TrimLeft(rest, ":- "))
		if rest == "" {
			return record.ParseLevel(norm), trimmed
		}
		return record.ParseLevel(norm), rest
	default:
		return record.LevelInfo, trimmed
	}
}
