// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/flatironinstitute/stan-playground/services/playground/observability"
	"github.com/flatironinstitute/stan-playground/services/playground/scheduler"
	"github.com/flatironinstitute/stan-playground/services/playground/summary"
)

func runProcess(cmd *cobra.Command, args []string) error {
	logger := newLogger("processor")
	defer logger.Close()

	st, err := openStore()
	if err != nil {
		return err
	}

	cleanup, err := initTracer(config.OTLPEndpoint, "stan-playground-processor")
	if err != nil {
		return fmt.Errorf("failed to set up the OTLP tracer: %w", err)
	}
	defer cleanup(context.Background())

	metrics := observability.New(prometheus.NewRegistry())

	schedConfig := scheduler.DefaultConfig()
	schedConfig.Interval = config.PollInterval
	schedConfig.Summary = summary.Options{ListedOnly: config.ListedOnly}

	sched := scheduler.New(st, newRunner(), metrics, schedConfig)
	sched.Start()
	slog.Info("processor started", "dir", config.Dir, "interval", config.PollInterval.String())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	slog.Info("stopping processor", "signal", s.String())

	// Stop waits for an in-flight pass to finish so a half-processed
	// analysis is not left behind by a clean shutdown.
	sched.Stop()
	return nil
}
