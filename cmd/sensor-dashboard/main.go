package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/sensor-dashboard/db"
	"github.com/thatsimonsguy/sensor-dashboard/internal/alerts"
	"github.com/thatsimonsguy/sensor-dashboard/internal/api"
	"github.com/thatsimonsguy/sensor-dashboard/internal/config"
	"github.com/thatsimonsguy/sensor-dashboard/internal/connectivity"
	"github.com/thatsimonsguy/sensor-dashboard/internal/dashboard"
	"github.com/thatsimonsguy/sensor-dashboard/internal/datadog"
	"github.com/thatsimonsguy/sensor-dashboard/internal/logging"
	"github.com/thatsimonsguy/sensor-dashboard/internal/notifications"
	"github.com/thatsimonsguy/sensor-dashboard/internal/poller"
	"github.com/thatsimonsguy/sensor-dashboard/internal/store"
	"github.com/thatsimonsguy/sensor-dashboard/internal/telemetry"
	"github.com/thatsimonsguy/sensor-dashboard/internal/view"
	"github.com/thatsimonsguy/sensor-dashboard/system/shutdown"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)

	log.Info().
		Str("metrics_url", cfg.MetricsURL).
		Dur("refresh_interval", cfg.RefreshInterval).
		Str("state_backend", cfg.StateBackend).
		Msg("Starting sensor dashboard")

	var steps []shutdown.Step

	kv, closeStore, err := openStore(cfg)
	if err != nil {
		shutdown.ShutdownWithError(err, "Failed to open state store", steps...)
	}
	if closeStore != nil {
		steps = append(steps, shutdown.Step{Name: "state store", Close: closeStore})
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMetrics, err := telemetry.NewPrometheusCollector(registry)
	if err != nil {
		shutdown.ShutdownWithError(err, "Failed to register metrics", steps...)
	}
	metrics := telemetry.Collector(promMetrics)

	if cfg.EnableDatadog {
		dd, err := datadog.New(cfg.DDAgentAddr, cfg.DDNamespace, cfg.DDTags)
		if err != nil {
			log.Warn().Err(err).Msg("Datadog disabled, failed to create statsd client")
		} else {
			metrics = telemetry.Multi(promMetrics, dd)
			steps = append(steps, shutdown.Step{Name: "datadog", Close: func() error {
				if err := dd.Flush(); err != nil {
					return err
				}
				return dd.Close()
			}})
		}
	}

	var notifier alerts.Notifier
	if n := notifications.New(cfg.NtfyURL, cfg.NtfyTopic); n.Enabled() {
		notifier = n
	}
	monitor := alerts.NewMonitor(notifier)
	steps = append(steps, shutdown.Step{Name: "notifications", Close: monitor.Close})

	views, err := view.NewRenderer()
	if err != nil {
		shutdown.ShutdownWithError(err, "Failed to parse templates", steps...)
	}

	conn := connectivity.NewTracker(cfg.RefreshInterval, time.Now())
	hub := dashboard.New(views, kv, settingsFrom(&cfg), conn, monitor, metrics)

	fetcher := poller.NewHTTPFetcher(cfg.MetricsURL, cfg.ConnectionTimeout)
	p := poller.New(fetcher, hub, cfg.RefreshInterval, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go p.Run(ctx)
	go hub.WatchConnection(ctx)
	go func() {
		err := config.Watch(ctx, cfg.ConfigFile, func(next *config.Config) {
			hub.Reload(settingsFrom(next))
		})
		if err != nil {
			log.Warn().Err(err).Str("file", cfg.ConfigFile).Msg("Config hot reload disabled")
		}
	}()

	server := api.NewServer(hub, p, registry)
	if err := server.Start(ctx, cfg.ListenAddr); err != nil {
		shutdown.ShutdownWithError(err, "HTTP server failed", steps...)
	}

	log.Info().Msg("Shutting down sensor dashboard")
	shutdown.Shutdown(steps...)
}

func settingsFrom(cfg *config.Config) dashboard.Settings {
	return dashboard.Settings{
		Thresholds:      cfg.Thresholds(),
		Labels:          cfg.Labels(),
		RefreshInterval: cfg.RefreshInterval,
	}
}

// openStore returns the configured key-value store and, for backends holding
// a resource, the func releasing it.
func openStore(cfg config.Config) (store.KV, func() error, error) {
	switch cfg.StateBackend {
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.StatePath), 0755); err != nil {
			return nil, nil, err
		}
		conn, err := db.Open(cfg.StatePath)
		if err != nil {
			return nil, nil, err
		}
		return db.NewKV(conn), conn.Close, nil
	case config.BackendFile:
		if err := os.MkdirAll(filepath.Dir(cfg.StatePath), 0755); err != nil {
			return nil, nil, err
		}
		f, err := store.NewFile(cfg.StatePath)
		return f, nil, err
	default:
		log.Warn().Msg("Using in-memory state, preferences are lost on restart")
		return store.NewMemory(), nil, nil
	}
}
