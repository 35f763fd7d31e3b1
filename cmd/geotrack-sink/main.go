// SPDX-FileCopyrightText: The geotrack authors
//
// SPDX-License-Identifier: MIT

// Package main implements the geotrack development report sink: a small HTTP
// server that accepts the location reports the tracker submits and serves them
// back for inspection.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/voyago/geotrack/internal/logger"
	"github.com/voyago/geotrack/internal/sink"
)

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer cancel()

	log := logger.New(slog.LevelInfo)

	// A .env file is optional, environment variables win either way
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to load .env file", logger.Err(err))
	}

	addr := flag.String("addr", envOr("GEOTRACK_SINK_ADDR", "localhost:8090"),
		"listen address")
	token := flag.String("token", os.Getenv("GEOTRACK_SINK_TOKEN"),
		"bearer token required for reports, empty disables authentication")
	flag.Parse()

	server := &http.Server{
		Addr:              *addr,
		Handler:           sink.New(log, *token).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to shut down server", logger.Err(err))
		}
	}()

	log.Info("starting geotrack report sink", slog.String("addr", *addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("failed to start server", logger.Err(err))
		os.Exit(1)
	}
	log.Info("shutting down geotrack report sink")
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
