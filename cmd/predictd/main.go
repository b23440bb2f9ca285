package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oncopredict/internal/artifact"
	"oncopredict/internal/cfg"
	"oncopredict/internal/inference"
	"oncopredict/internal/metrics"
	"oncopredict/internal/metricstore"
	"oncopredict/internal/registry"
	"oncopredict/internal/scaler"
	"oncopredict/internal/storage"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Local .env is optional, real deployments set the environment directly
	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c.LogLevel)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	artifacts, err := artifact.NewStore(c.ModelsDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", c.ModelsDir).Msg("artifact store init failed")
	}

	sc := scaler.New()
	if err := sc.LoadFrom(artifacts); err != nil {
		log.Warn().Err(err).Msg("scaler not loaded, predictions unavailable until reload")
	}

	reg := registry.New(artifacts)
	modelMetrics := metricstore.New(artifacts)

	history := initializeStorage(c)
	if history != nil {
		defer history.Close()
	}

	m := metrics.NewWrapper(metrics.New())
	reg.SetObserver(m)
	svc := inference.New(inference.Config{
		DefaultModel: c.DefaultModel,
		CacheSize:    c.CacheSize,
		CacheTTL:     c.CacheTTL,
	}, artifacts, sc, reg, modelMetrics, history, m)

	warmModels(svc)

	startMetricsServer(ctx, c, cancel)

	srv := inference.NewServer(svc, c.ListenPort)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("inference server failed")
			cancel()
		}
	}()

	waitForShutdown(ctx, srv)
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// initializeStorage initializes prediction history if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath != "" {
		store, err := storage.New(c.DataPath)
		if err != nil {
			log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
			return nil
		}
		return store
	}
	return nil
}

// warmModels logs what is available at startup so misconfigured model
// directories surface immediately instead of on the first request.
func warmModels(svc *inference.Service) {
	names := svc.ListAvailableModels()
	if len(names) == 0 {
		log.Warn().Msg("no model artifacts found, /predict will return 404")
		return
	}
	log.Info().Strs("models", names).Msg("model artifacts discovered")
}

// startMetricsServer starts the Prometheus metrics HTTP server
func startMetricsServer(ctx context.Context, c cfg.Settings, cancel context.CancelFunc) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})

		server := &http.Server{
			Addr:         fmt.Sprintf(":%d", c.MetricsPort),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			server.Shutdown(shutdownCtx)
		}()

		log.Info().Int("port", c.MetricsPort).Msg("starting metrics server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
			cancel()
		}
	}()
}

// waitForShutdown waits for shutdown signals and handles graceful shutdown
func waitForShutdown(ctx context.Context, srv *inference.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown timeout, forcing exit")
	}
}
