// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/flatironinstitute/stan-playground/services/playground/handlers"
	"github.com/flatironinstitute/stan-playground/services/playground/observability"
	"github.com/flatironinstitute/stan-playground/services/playground/routes"
	"github.com/flatironinstitute/stan-playground/services/playground/summary"
)

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger("api")
	defer logger.Close()

	st, err := openStore()
	if err != nil {
		return err
	}

	cleanup, err := initTracer(config.OTLPEndpoint, "stan-playground-api")
	if err != nil {
		return fmt.Errorf("failed to set up the OTLP tracer: %w", err)
	}
	defer cleanup(context.Background())

	registry := prometheus.NewRegistry()
	metrics := observability.New(registry)

	svc := handlers.NewService(st, newGate(), newRunner(), metrics)
	svc.Summary = summary.Options{ListedOnly: config.ListedOnly}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	routes.SetupRoutes(router, svc, registry)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("playground API listening", "addr", srv.Addr, "dir", config.Dir)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case s := <-sig:
		slog.Info("shutting down", "signal", s.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
