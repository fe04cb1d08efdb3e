// Command zoed is the conversation core's process entrypoint: it loads
// configuration, wires every store and handler through internal/services,
// and serves the HTTP API (spec §6) until asked to stop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zoe-ai/zoe-core/internal/config"
	"github.com/zoe-ai/zoe-core/internal/observability"
	"github.com/zoe-ai/zoe-core/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		log.Fatal().Err(err).Msg("failed to load config")
	}

	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.InitOTel(ctx, observability.ObsConfig{
		ServiceName:    cfg.Obs.ServiceName,
		ServiceVersion: cfg.Obs.ServiceVersion,
		Environment:    cfg.Obs.Environment,
		OTLP:           cfg.Obs.OTLP,
		Insecure:       cfg.Obs.Insecure,
	})
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdownOTel = nil
	}
	if shutdownOTel != nil {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	svc, err := services.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire services")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := svc.Close(closeCtx); err != nil {
			log.Warn().Err(err).Msg("error during services shutdown")
		}
	}()

	go func() {
		if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("event consumer exited")
		}
	}()

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: svc.Routes(),
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	log.Info().Str("addr", server.Addr).Msg("zoed listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
}
