package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/timzifer/cswui/config"
	"github.com/timzifer/cswui/internal/logging"
	"github.com/timzifer/cswui/page"
	"github.com/timzifer/cswui/telemetry"
	"github.com/timzifer/cswui/transport"
)

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, collector telemetry.Collector) error {
	if cfg.Telemetry.Listen != "" {
		stop, err := serveMetrics(cfg.Telemetry.Listen, logger)
		if err != nil {
			return fmt.Errorf("start metrics endpoint: %w", err)
		}
		defer stop()
	}

	tr, stopTransport, err := newTransport(ctx, cfg.Transport, logging.Component(logger, "transport"), collector)
	if err != nil {
		return err
	}
	defer stopTransport()

	in, closeIn, err := openPage(cfg.Page)
	if err != nil {
		return err
	}
	p, err := page.Load(in, tr,
		page.WithLogger(logging.Component(logger, "field")),
		page.WithTelemetry(collector),
		page.WithDefaultProtocol(cfg.DefaultProtocol),
	)
	closeIn()
	if err != nil {
		return fmt.Errorf("load page: %w", err)
	}
	defer p.Close()

	if cfg.LiveView.Listen != "" {
		view, err := page.Serve(cfg.LiveView.Listen, p, logging.Component(logger, "live_view"))
		if err != nil {
			return fmt.Errorf("start live view: %w", err)
		}
		defer view.Close()
	}

	return snapshotLoop(ctx, p, cfg.Output, cfg.SnapshotInterval.Duration, logger)
}

// newTransport builds the configured transport. The returned stop function
// closes it and waits for background work to finish.
func newTransport(ctx context.Context, cfg config.TransportConfig, logger zerolog.Logger, collector telemetry.Collector) (transport.Transport, func(), error) {
	opts := []transport.Option{
		transport.WithLogger(logger),
		transport.WithTelemetry(collector),
		transport.WithReconnectInterval(cfg.ReconnectInterval.Duration),
		transport.WithReadLimit(cfg.ReadLimit),
		transport.WithQueueSize(cfg.QueueSize),
	}

	switch cfg.Kind {
	case config.TransportWebsocket:
		sock := transport.NewSocket(cfg.URL, opts...)
		runCtx, cancel := context.WithCancel(ctx)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sock.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, transport.ErrClosed) {
				logger.Error().Err(err).Msg("websocket transport stopped")
			}
		}()
		return sock, func() {
			cancel()
			if err := sock.Close(); err != nil {
				logger.Debug().Err(err).Msg("close websocket transport")
			}
			wg.Wait()
		}, nil
	case config.TransportMQTT:
		m, err := transport.NewMQTT(transport.MQTTSettings{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			TopicPrefix:    cfg.MQTT.TopicPrefix,
			QoS:            cfg.MQTT.QoS,
			ConnectTimeout: cfg.MQTT.ConnectTimeout.Duration,
		}, opts...)
		if err != nil {
			return nil, nil, err
		}
		return m, func() {
			if err := m.Close(); err != nil {
				logger.Debug().Err(err).Msg("close mqtt transport")
			}
		}, nil
	case config.TransportMemory:
		mem := transport.NewMemory()
		mem.Open()
		return mem, mem.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}

func openPage(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open page: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func snapshotLoop(ctx context.Context, p *page.Page, output string, interval time.Duration, logger zerolog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := writeSnapshot(p, output); err != nil {
				logger.Error().Err(err).Msg("final snapshot failed")
			}
			return ctx.Err()
		case <-ticker.C:
			if err := writeSnapshot(p, output); err != nil {
				logger.Error().Err(err).Msg("snapshot failed")
			}
		}
	}
}

// writeSnapshot renders p to output. Files are replaced atomically so
// readers never observe a partial document.
func writeSnapshot(p *page.Page, output string) error {
	if output == "" || output == "-" {
		return p.Render(os.Stdout)
	}
	tmp, err := os.CreateTemp(filepath.Dir(output), "."+filepath.Base(output)+".*")
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := p.Render(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), output); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func serveMetrics(listen string, logger zerolog.Logger) (func(), error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("listen", ln.Addr().String()).Msg("metrics endpoint started")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("shutdown metrics endpoint")
		}
	}, nil
}
