// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/FocusLocal/pkg/logging"
	"github.com/AleutianAI/FocusLocal/services/focus/middleware"
	"github.com/AleutianAI/FocusLocal/services/focus/observability"
	"github.com/AleutianAI/FocusLocal/services/focus/routes"
	"github.com/AleutianAI/FocusLocal/services/focus/store"
)

func main() {
	port := os.Getenv("FOCUS_PORT")
	if port == "" {
		port = "12310"
	}

	dataDir := os.Getenv("FOCUS_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("FATAL: could not resolve home directory: %v", err)
		}
		dataDir = filepath.Join(home, ".focus", "server")
	}

	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  filepath.Join(dataDir, "logs"),
		Service: "focus-server",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	sessionStore, err := store.Open(store.DefaultConfig(store.PathForUser(dataDir, "sessions")))
	if err != nil {
		log.Fatalf("FATAL: could not open session store: %v", err)
	}
	defer func() {
		if err := sessionStore.Close(); err != nil {
			slog.Error("failed to close session store", "error", err)
		}
	}()

	var provider middleware.AuthProvider = middleware.NopAuthProvider{}
	if token := os.Getenv("FOCUS_API_TOKEN"); token != "" {
		provider = &middleware.StaticTokenProvider{Token: token}
		slog.Info("Using static token authentication")
	} else {
		slog.Info("FOCUS_API_TOKEN not set. Running in local single-user mode.")
	}

	observability.InitMetrics()

	router := gin.Default()
	routes.SetupRoutes(router, routes.Deps{
		Store:       sessionStore,
		Auth:        provider,
		Idempotency: middleware.NewIdempotencyCache(middleware.DefaultIdempotencyTTL),
		Limiter:     middleware.NewRateLimiter(middleware.DefaultRequestsPerMinute, middleware.DefaultBurst),
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Starting the focus server", "port", port, "data_dir", dataDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down the focus server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
}
