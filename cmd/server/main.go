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

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/CoWatch/internal/adapters/http"
	wssignal "github.com/dkeye/CoWatch/internal/adapters/signal"
	"github.com/dkeye/CoWatch/internal/app"
	"github.com/dkeye/CoWatch/internal/config"
	"github.com/dkeye/CoWatch/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	backend, closeStore, err := store.Open(cfg.State.Backend, cfg.State.SQLitePath, cfg.State.FilePath)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.State.Backend).Msg("failed to open state store")
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error().Err(err).Msg("close state store")
		}
	}()

	clock := clockwork.NewRealClock()
	room, err := app.NewRoom(ctx, backend, backend, app.Options{
		Clock:              clock,
		Policy:             app.PolicyByName(cfg.BackpressurePolicy),
		FlushPeriod:        cfg.FlushPeriod,
		Notifications:      cfg.EnableNotifications,
		AutoPlayNext:       cfg.AutoPlayNext,
		RejectUnknownVideo: cfg.RejectUnknownVideo,
		DelayThreshold:     cfg.NetworkDelayThreshold,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to restore room")
	}

	cfg.Watch(func(next *config.Config) {
		zerolog.SetGlobalLevel(next.Level())
		room.SetNotifications(next.EnableNotifications)
	})

	ctrl := wssignal.NewSignalWSController(room, clock, wssignal.Options{
		ReadLimit:         cfg.ReadLimit,
		PingPeriod:        cfg.PingPeriod,
		WriteTimeout:      cfg.WriteTimeout,
		SendBuffer:        cfg.SendBuffer,
		ChangeVideoLimit:  cfg.ChangeVideoLimit,
		ChangeVideoWindow: cfg.ChangeVideoWindow,
	})

	r := router.SetupRouter(ctx, cfg, room, ctrl)
	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}).Handler(r)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("CoWatch server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Str("addr", addr).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Int("sessions", room.SessionCount()).Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	ctrl.Wait()
	room.Close(shutdownCtx)
	log.Info().Msg("Server exited gracefully")
}
