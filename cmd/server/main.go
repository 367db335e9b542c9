package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/roomly/signaling/internal/adapters/httpapi"
	"github.com/roomly/signaling/internal/config"
	"github.com/roomly/signaling/internal/directory"
	"github.com/roomly/signaling/internal/domain"
	"github.com/roomly/signaling/internal/registry"
	"github.com/roomly/signaling/internal/relay"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Standalone wiring runs against the in-memory directory; the
	// booking application replaces these adapters with its own.
	store := directory.NewInMemory()
	reg := registry.New()
	router := relay.NewRouter(reg, store.Wrap())
	router.Notifier = directory.JoinNotifierFunc(func(room domain.RoomName, id domain.Identity) {
		log.Info().Str("module", "main").Str("room", string(room)).Str("identity", string(id)).Msg("peer joined")
	})

	sweeper := relay.NewSweeper(reg, router, store.Wrap(), cfg.SweepPeriod, cfg.StaleAfter)
	go sweeper.Run(ctx)
	go relay.RunMaintenance(ctx, cfg.MaintenancePeriod, directory.MaintenanceFunc(func(context.Context) error {
		log.Info().Str("module", "main").Msg("maintenance tick")
		return nil
	}))

	api := &httpapi.Server{
		Config:   cfg,
		Registry: reg,
		Relay:    router,
		Profiles: store,
	}
	r := httpapi.SetupRouter(cfg, api)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("signaling server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
