package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/timzifer/cswui/config"
	"github.com/timzifer/cswui/internal/logging"
	"github.com/timzifer/cswui/internal/reload"
	"github.com/timzifer/cswui/telemetry"
)

func loadConfig(path, pageOverride string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if pageOverride != "" {
		cfg.Page = pageOverride
	}
	return cfg, nil
}

// runWithHotReload restarts the transport, page and live view whenever the
// configuration file or the page changes. A change that fails to load keeps
// the running instance.
func runWithHotReload(ctx context.Context, cfgPath, pageOverride string, initialCfg *config.Config, collector telemetry.Collector, interval time.Duration) error {
	if collector == nil {
		collector = telemetry.Noop()
	}
	watcher, err := reload.NewWatcher(cfgPath, initialCfg)
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	cfg := initialCfg
	for {
		logger, cleanup, err := logging.Setup(cfg.Logging)
		if err != nil {
			return err
		}
		log.Logger = logger

		runCtx, cancelRun := context.WithCancel(ctx)
		errCh := make(chan error, 1)
		go func(cfg *config.Config) {
			errCh <- run(runCtx, cfg, logger, collector)
		}(cfg)

		var changed []string

	loop:
		for {
			select {
			case <-ctx.Done():
				cancelRun()
				err := <-errCh
				cleanup()
				if err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return ctx.Err()
			case err := <-errCh:
				cancelRun()
				cleanup()
				return err
			case <-ticker.C:
				changes, err := watcher.Check()
				if err != nil {
					logger.Error().Err(err).Msg("failed to check configuration changes")
					continue
				}
				if len(changes) == 0 {
					continue
				}
				newCfg, err := loadConfig(cfgPath, pageOverride)
				if err != nil {
					logger.Error().Err(err).Msg("failed to reload configuration")
					continue
				}
				cancelRun()
				if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
					logger.Error().Err(err).Msg("stopped with error during reload")
				}
				if err := watcher.Update(cfgPath, newCfg); err != nil {
					logger.Error().Err(err).Msg("failed to update watcher state")
				}
				logger.Info().Strs("files", changes).Msg("reloading")
				cleanup()
				changed = changes
				cfg = newCfg
				break loop
			}
		}

		for _, file := range changed {
			collector.IncReload(file)
		}
	}
}
