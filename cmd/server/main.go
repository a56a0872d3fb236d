package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtvoice/internal/adapters/bridge"
	router "github.com/dkeye/rtvoice/internal/adapters/http"
	"github.com/dkeye/rtvoice/internal/app"
	"github.com/dkeye/rtvoice/internal/app/voice"
	"github.com/dkeye/rtvoice/internal/config"
	"github.com/dkeye/rtvoice/internal/core"
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
	zerolog.SetGlobalLevel(cfg.Level())

	if cfg.Secret == "" {
		log.Warn().Msg("secret is empty, using a random cookie secret")
		cfg.Secret = uuid.NewString()
	}

	minter := voice.Minter(cfg)
	reg := app.NewRegistry()
	ctl := &bridge.Controller{
		Registry: reg,
		Policy:   app.SimplePolicy{MaxDropped: cfg.Limits.MaxDropped},
		// Every UI client drives its own session; credentials are minted
		// server side so the API key never reaches the browser.
		NewSession: func(obs core.Observer) (bridge.Session, bridge.Muter, error) {
			s, err := voice.New(cfg, minter, obs)
			if err != nil {
				return nil, nil, err
			}
			return s, s, nil
		},
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.Limits.SendBuffer,
	}

	r := router.SetupRouter(ctx, cfg, router.Deps{Config: minter, Bridge: ctl})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("rtvoice server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	reg.CancelAll()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
