package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/timzifer/cswui/config"
	"github.com/timzifer/cswui/internal/logging"
	"github.com/timzifer/cswui/page"
	"github.com/timzifer/cswui/telemetry"
	"github.com/timzifer/cswui/transport"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to configuration file")
	configCheck := flag.Bool("config-check", false, "Validate configuration and page markup and exit")
	pagePath := flag.String("page", "", "Page to serve, overrides the configured page")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath, *pagePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if *configCheck {
		os.Exit(executeConfigCheck(cfg, os.Stdout))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.HotReload {
		collector, err := newTelemetryCollector(cfg.Telemetry)
		if err != nil {
			fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
			collector = telemetry.Noop()
		}
		if err := runWithHotReload(ctx, *cfgPath, *pagePath, cfg, collector, time.Second); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Fatal().Err(err).Msg("stopped with error")
		}
		return
	}

	logger, cleanup, err := logging.Setup(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup logger")
	}
	defer cleanup()
	log.Logger = logger

	collector, err := newTelemetryCollector(cfg.Telemetry)
	if err != nil {
		logger.Warn().Err(err).Msg("telemetry disabled")
		collector = telemetry.Noop()
	}

	if err := run(ctx, cfg, logger, collector); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("stopped with error")
	}
}

// executeConfigCheck scans the page against an unopened in-memory transport
// and reports every field it would bind.
func executeConfigCheck(cfg *config.Config, out io.Writer) int {
	in, closeIn, err := openPage(cfg.Page)
	if err != nil {
		fmt.Fprintf(out, "page unreadable: %v\n", err)
		return 1
	}
	defer closeIn()

	p, err := page.Load(in, transport.NewMemory(), page.WithDefaultProtocol(cfg.DefaultProtocol), page.WithLogger(zerolog.Nop()))
	if err != nil {
		fmt.Fprintf(out, "page invalid: %v\n", err)
		return 1
	}
	defer p.Close()

	fmt.Fprintf(out, "Transport: %s\n", cfg.Transport.Kind)
	fields := p.Fields()
	if len(fields) == 0 {
		fmt.Fprintln(out, "No fields found.")
	}
	for _, f := range fields {
		fmt.Fprintf(out, "  - %s\n", f.Topic())
	}

	rejected := p.Rejected()
	if len(rejected) == 0 {
		fmt.Fprintln(out, "Configuration check completed successfully.")
		return 0
	}
	fmt.Fprintln(out, "Errors:")
	for _, r := range rejected {
		fmt.Fprintf(out, "  - %s field: %v\n", r.Kind, r.Err)
	}
	fmt.Fprintln(out, "Configuration check completed with errors.")
	return 1
}

func newTelemetryCollector(cfg config.TelemetryConfig) (telemetry.Collector, error) {
	if cfg.Listen == "" {
		return telemetry.Noop(), nil
	}
	collector, err := telemetry.NewPrometheusCollector(nil)
	if err != nil {
		return nil, err
	}
	return collector, nil
}
