package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vidar/internal/accounts"
	"vidar/internal/api"
	"vidar/internal/config"
	"vidar/internal/engine"
	"vidar/internal/ledger"
	"vidar/internal/store"
	"vidar/internal/symbol"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "Path to the config file")
	flag.Parse()
	if p := os.Getenv("VIDAR_CONFIG"); p != "" {
		*cfgPath = p
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *cfgPath).Msg("unable to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	setupLogging(cfg.Logging)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	startingCash, err := cfg.StartingCash()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid starting cash")
	}

	// Assemble the exchange and restore the last snapshot, if any.
	exchange := engine.New(
		engine.Config{StartingCash: startingCash},
		accounts.NewStore(),
		ledger.New(),
		symbol.NewRegistry(),
	)
	db, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to open store")
	}
	var state engine.State
	found, err := db.Load("exchange", &state)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load snapshot")
	}
	if found {
		exchange.ImportState(state)
		log.Info().Int("users", len(state.Users)).Int("symbols", len(state.Symbols)).Msg("state restored")
	}

	admin, err := exchange.Bootstrap(cfg.Exchange.AdminUsername)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to bootstrap admin account")
	}
	log.Info().Str("username", admin.Username).Int64("user", admin.ID).Msg("admin account ready")

	srv := api.NewServer(cfg.Server, exchange)
	go func() {
		if err := srv.Run(); err != nil {
			log.Error().Err(err).Msg("api server failed")
			stop()
		}
	}()

	// Periodic snapshots until shutdown.
	go func() {
		ticker := time.NewTicker(cfg.Store.SnapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.Save("exchange", exchange.ExportState()); err != nil {
					log.Error().Err(err).Msg("snapshot failed")
				}
			}
		}
	}()

	// Block on running the server.
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("api shutdown failed")
	}
	if err := db.Save("exchange", exchange.ExportState()); err != nil {
		log.Error().Err(err).Msg("final snapshot failed")
	}
	if err := exchange.Close(); err != nil {
		log.Error().Err(err).Msg("exchange shutdown failed")
	}
	log.Info().Msg("exchange stopped")
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
