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

	"github.com/quickchat/signaling/internal/adapters/httpapi"
	"github.com/quickchat/signaling/internal/adapters/ws"
	"github.com/quickchat/signaling/internal/chat"
	"github.com/quickchat/signaling/internal/config"
	"github.com/quickchat/signaling/internal/groups"
	"github.com/quickchat/signaling/internal/presence"
	"github.com/quickchat/signaling/internal/relay"
	"github.com/quickchat/signaling/internal/rooms"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	registry := presence.NewRegistry()
	hub := rooms.NewHub()
	memberships := groups.NewStaticService()
	rl := relay.NewRelay(registry)
	deliverer := chat.NewDeliverer(registry, hub)

	ctl := ws.NewController(registry, hub, memberships, rl, cfg)
	r := httpapi.SetupRouter(ctx, cfg, ctl, registry, hub, deliverer)
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
