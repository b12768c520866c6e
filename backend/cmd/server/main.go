// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emausjovem/comunidade/backend/config"
	"github.com/emausjovem/comunidade/backend/delivery"
	"github.com/emausjovem/comunidade/backend/integration"
	"github.com/emausjovem/comunidade/backend/logger"
	"github.com/emausjovem/comunidade/backend/middleware"
	"github.com/emausjovem/comunidade/backend/storage"
	"github.com/emausjovem/comunidade/backend/storage/memory"
	"github.com/emausjovem/comunidade/backend/storage/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger.Setup(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	broker, closeBroker, err := openBroker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBroker()

	chat, err := integration.NewMessagingIntegration(ctx, &integration.Config{
		Store:            store,
		Broker:           broker,
		JWTSecret:        cfg.JWT.Secret,
		JWTIssuer:        cfg.JWT.Issuer,
		PageLimit:        cfg.Store.PageLimit,
		SendRatePerSec:   cfg.SendLimit.PerSecond,
		SendBurst:        cfg.SendLimit.Burst,
		AllowedOrigins:   cfg.Origins,
		DefaultGroupName: cfg.DefaultGroup,
	})
	if err != nil {
		return err
	}
	defer chat.Shutdown()

	// Setup router
	r := mux.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.Origins))

	chat.RegisterRoutes(r, nil)

	// Health check (no auth required)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := chat.ValidateSetup(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Store unavailable"))
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Port, "env", cfg.Env,
			"postgres", cfg.UsesPostgres(), "redis", cfg.UsesRedis(), "jwt_issuer", cfg.JWT.Issuer)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore picks postgres when DATABASE_URL is set and the in-memory store
// otherwise.
func openStore(ctx context.Context, cfg config.Config) (storage.Store, func(), error) {
	if !cfg.UsesPostgres() {
		slog.Warn("DATABASE_URL not set, using in-memory store")
		return memory.New(), func() {}, nil
	}

	store, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.Store.Timeout)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, func() { store.Close() }, nil
}

// openBroker picks Redis pub/sub when REDIS_URL is set so several server
// instances share events; a single instance uses the in-process hub.
func openBroker(ctx context.Context, cfg config.Config) (delivery.Broker, func(), error) {
	if !cfg.UsesRedis() {
		return delivery.NewHub(), func() {}, nil
	}

	rdb, err := delivery.DialRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return delivery.NewRedis(rdb), func() { rdb.Close() }, nil
}
