// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// SellerDesk marketplace customer support server.
//
// Entry point for the support desk. It:
//  1. Loads multi-account configuration from config.yaml and .env
//  2. Connects to PostgreSQL and Redis
//  3. Builds per-account Selling Partner API clients
//  4. Starts the periodic mailbox ingestion scheduler
//  5. Serves the dashboard API
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/sellerdesk/sellerdesk/internal/ai"
	"github.com/sellerdesk/sellerdesk/internal/api"
	"github.com/sellerdesk/sellerdesk/internal/assemble"
	"github.com/sellerdesk/sellerdesk/internal/catalog"
	"github.com/sellerdesk/sellerdesk/internal/config"
	"github.com/sellerdesk/sellerdesk/internal/delivery"
	"github.com/sellerdesk/sellerdesk/internal/ingest"
	"github.com/sellerdesk/sellerdesk/internal/orders"
	"github.com/sellerdesk/sellerdesk/internal/respond"
	"github.com/sellerdesk/sellerdesk/internal/scheduler"
	"github.com/sellerdesk/sellerdesk/internal/spapi"
	"github.com/sellerdesk/sellerdesk/internal/store"
	"github.com/sellerdesk/sellerdesk/internal/threads"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting sellerdesk")

	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded",
		"accounts", len(cfg.Accounts),
		"fetch_interval", cfg.FetchInterval,
		"lookback", cfg.FetchLookback,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	st, err := store.New(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise store", "error", err)
		os.Exit(1)
	}

	// --- Redis (optional fast-path dedup) ---
	var seen *ingest.SeenFilter
	if opt, err := redis.ParseURL(cfg.RedisURL); err != nil {
		slog.Warn("invalid REDIS_URL, running without seen filter", "error", err)
	} else {
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("Redis unreachable, running without seen filter", "error", err)
		} else {
			seen = ingest.NewSeenFilter(rdb)
			slog.Info("connected to Redis")
		}
	}

	// --- Ingestion pipeline + scheduler ---
	pipeline := ingest.New(ingest.Config{
		Store:    st,
		Seen:     seen,
		Accounts: cfg.Accounts,
		IMAPHost: cfg.IMAPHost,
		Lookback: cfg.FetchLookback,
	})
	sched := scheduler.New(pipeline, cfg.FetchInterval)
	go sched.Run(ctx)

	// --- Selling Partner API clients per account ---
	spClients := spapi.Clients(ctx, cfg)
	slog.Info("selling partner clients built", "accounts", len(spClients))

	productCache := catalog.NewCache(st,
		catalog.NewClient(cfg.SPAPIEndpoint, cfg.MarketplaceID, spClients),
		cfg.ProductCacheTTL, logger)
	orderClient := orders.NewClient(cfg.SPAPIEndpoint, spClients, logger)

	// --- Response lifecycle ---
	assembler := assemble.New(st, productCache, orderClient)
	drafter := ai.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, logger)
	sender := delivery.NewSender(cfg.SMTPHost, logger)
	engine := respond.NewEngine(st, cfg, assembler, drafter, sender, logger)

	// --- HTTP API ---
	threadSvc := threads.NewService(st)
	server := api.NewServer(st, threadSvc, engine, pipeline, cfg, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// --- Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		slog.Error("api server failed", "error", err)
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	slog.Info("sellerdesk stopped")
}
