// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flatironinstitute/stan-playground/services/playground/summary"
)

func runSummary(cmd *cobra.Command, args []string) error {
	logger := newLogger("summary")
	defer logger.Close()

	st, err := openStore()
	if err != nil {
		return err
	}

	opts := summary.Options{ListedOnly: config.ListedOnly}
	if err := summary.Build(st, opts); err != nil {
		return err
	}
	if !watchFlag {
		return nil
	}

	w := summary.NewWatcher(st, opts, 500*time.Millisecond)
	if err := w.Start(); err != nil {
		return err
	}
	slog.Info("watching for changes", "dir", config.Dir)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	w.Stop()
	return nil
}
