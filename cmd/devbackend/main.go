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

	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/fin-dashboard/internal/config"
	"github.com/weiawesome/fin-dashboard/internal/server"
	pkgconfig "github.com/weiawesome/fin-dashboard/pkg/config"
	"github.com/weiawesome/fin-dashboard/pkg/database"
	pkglog "github.com/weiawesome/fin-dashboard/pkg/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load(pkgconfig.GetEnv("FIN_CONFIG_PATH", ""))
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "devbackend",
	})
	logger := pkglog.L()

	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	srv, err := server.New(db, server.Options{
		JWTSecret:      cfg.JWT.Secret,
		AccessDuration: cfg.JWT.AccessDuration,
		Issuer:         cfg.JWT.Issuer,
		MachineID:      cfg.Server.MachineID,
		HistorySize:    cfg.Server.HistorySize,
		Destinations:   cfg.Chat.Destinations,
		WebSocket:      cfg.WebSocket,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database migration completed")

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		srv.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", addr).Msg("devbackend listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down devbackend")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("devbackend stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("devbackend stopped")
}
