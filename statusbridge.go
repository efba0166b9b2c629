package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maxpert/statusbridge/admin"
	"github.com/maxpert/statusbridge/bridge"
	"github.com/maxpert/statusbridge/cfg"
	"github.com/maxpert/statusbridge/publisher"
	_ "github.com/maxpert/statusbridge/publisher/sink"
	"github.com/maxpert/statusbridge/telemetry"
	"github.com/maxpert/statusbridge/watch"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	queueSampleInterval = 5 * time.Second
	shutdownTimeout     = 10 * time.Second
)

func main() {
	flag.Parse()

	// Load configuration
	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Setup logging
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Uint64("node_id", cfg.Config.NodeID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("StatusBridge - replication status relay")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	statusBridge := bridge.New()

	// Consumer: relay subscribes before the producer starts so no early change is dropped
	log.Info().Msg("Starting status publisher")
	relay, err := publisher.NewRegistry(publisher.RegistryConfig{
		NodeID:          cfg.Config.NodeID,
		Source:          statusBridge,
		BufferSize:      cfg.Config.Bridge.BufferSize,
		TopicPrefix:     cfg.Config.Publisher.TopicPrefix,
		FilterTokens:    cfg.Config.Publisher.FilterTokens,
		SinkConfigs:     cfg.Config.Publisher.Sinks,
		RetryInitial:    time.Duration(cfg.Config.Publisher.RetryInitialMS) * time.Millisecond,
		RetryMax:        time.Duration(cfg.Config.Publisher.RetryMaxMS) * time.Millisecond,
		RetryMultiplier: cfg.Config.Publisher.RetryMultiplier,
		MaxRetries:      cfg.Config.Publisher.MaxRetries,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize status publisher")
		return
	}
	if err := relay.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start status publisher")
		return
	}
	defer relay.Stop()

	collector := telemetry.NewMetricsCollector(relay, queueSampleInterval)
	collector.Start()
	defer collector.Stop()

	// Producer
	if cfg.Config.Watch.Enabled {
		log.Info().Str("target", cfg.Config.Watch.Target).Msg("Starting upstream watcher")
		watcher, err := watch.NewConnWatcher(watch.Config{
			Target:         cfg.Config.Watch.Target,
			HealthService:  cfg.Config.Watch.HealthService,
			HealthInterval: time.Duration(cfg.Config.Watch.HealthIntervalMS) * time.Millisecond,
			HealthTimeout:  time.Duration(cfg.Config.Watch.HealthTimeoutMS) * time.Millisecond,
		}, statusBridge)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize upstream watcher")
			return
		}
		watcher.Start()
		defer watcher.Stop()
	}

	// Admin API
	if cfg.Config.Admin.Enabled {
		var metrics http.Handler
		if cfg.Config.Prometheus.Enabled {
			metrics = telemetry.GetMetricsHandler()
		}

		handlers := admin.NewAdminHandlers(cfg.Config.NodeID, statusBridge, relay)
		server := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Config.Admin.BindAddress, cfg.Config.Admin.Port),
			Handler:           admin.NewRouter(handlers, metrics),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", server.Addr).Msg("Admin server failed")
				stop()
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Admin server shutdown failed")
			}
		}()

		log.Info().Str("addr", server.Addr).Msg("Admin server listening")
	}

	log.Info().
		Uint64("node_id", cfg.Config.NodeID).
		Bool("watch", cfg.Config.Watch.Enabled).
		Int("sinks", len(cfg.Config.Publisher.Sinks)).
		Msg("StatusBridge started successfully")

	<-ctx.Done()
	log.Info().Msg("Shutting down")
}
