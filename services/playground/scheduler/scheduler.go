// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package scheduler is the processing loop that advances queued analyses
// to a terminal state.
//
// A single long-running goroutine ticks on a fixed interval; each tick
// is a pure function of the persisted records, which makes the loop
// restartable after a crash and testable with a fake store directory and
// a fake tool runner. The scheduler holds no state between ticks beyond
// its configuration.
//
// Crash consistency: the running status is persisted before any work
// starts, so a crash mid-run leaves the analysis observably stuck in
// running rather than silently re-queued forever or lost. Recovery from
// that is operator intervention (reset to none), by design.
package scheduler

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/flatironinstitute/stan-playground/services/playground/datatypes"
	"github.com/flatironinstitute/stan-playground/services/playground/lifecycle"
	"github.com/flatironinstitute/stan-playground/services/playground/observability"
	"github.com/flatironinstitute/stan-playground/services/playground/runner"
	"github.com/flatironinstitute/stan-playground/services/playground/store"
	"github.com/flatironinstitute/stan-playground/services/playground/summary"
)

// Config holds the scheduler settings.
type Config struct {
	// Interval is the polling period between passes.
	Interval time.Duration
	// Summary selects what the rebuilt projection includes.
	Summary summary.Options
}

// DefaultConfig returns the production defaults: a 10 second poll.
func DefaultConfig() Config {
	return Config{Interval: 10 * time.Second}
}

// Scheduler drives queued analyses through running to completion. It
// coordinates with concurrent command handlers purely through the
// persisted records and atomic saves; there is no shared in-process
// locking.
type Scheduler struct {
	store   *store.Store
	tools   runner.Runner
	metrics *observability.Metrics
	config  Config
	now     func() time.Time

	mu      sync.Mutex
	done    chan struct{}
	stopped chan struct{}
	running bool
}

// New creates a scheduler. metrics may be nil to disable accounting.
func New(s *store.Store, tools runner.Runner, metrics *observability.Metrics, config Config) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	return &Scheduler{
		store:   s,
		tools:   tools,
		metrics: metrics,
		config:  config,
		now:     time.Now,
	}
}

// Start launches the polling loop. Calling Start on a running scheduler
// is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})
	s.running = true
	go s.loop(s.done, s.stopped)
	slog.Info("processing scheduler started", "interval", s.config.Interval)
}

// Stop signals the loop to exit and waits for the current pass to
// finish. An in-flight external run blocks Stop until the tool exits;
// there is no cancellation protocol for a run already started.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.done)
	stopped := s.stopped
	s.running = false
	s.mu.Unlock()
	<-stopped
	slog.Info("processing scheduler stopped")
}

func (s *Scheduler) loop(done, stopped chan struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	for {
		// Run one pass immediately so a restart picks up queued work
		// without waiting a full interval.
		s.Tick(context.Background())
		select {
		case <-done:
			return
		case <-ticker.C:
		}
	}
}

// Tick performs one pass: every queued analysis is run to a terminal
// state. One analysis failing, for any reason, never stops the pass.
func (s *Scheduler) Tick(ctx context.Context) {
	start := s.now()
	ids, err := s.store.ListAnalyses()
	if err != nil {
		slog.Error("scheduler failed to enumerate analyses", "error", err)
		return
	}
	for _, id := range ids {
		info, err := s.store.LoadAnalysis(id)
		if err != nil {
			slog.Warn("scheduler skipping unreadable analysis", "analysis_id", id, "error", err)
			continue
		}
		if info.Status != datatypes.StatusQueued {
			continue
		}
		s.process(ctx, id, info)
	}
	if s.metrics != nil {
		s.metrics.SchedulerTicksTotal.Inc()
		s.metrics.SchedulerTickSeconds.Observe(time.Since(start).Seconds())
	}
}

// process runs one queued analysis. The running status is persisted
// before any work so a crash is diagnosable from the record alone.
func (s *Scheduler) process(ctx context.Context, id string, info datatypes.AnalysisInfo) {
	slog.Info("processing analysis", "analysis_id", id)

	if err := lifecycle.Start(&info, s.now()); err != nil {
		// Raced with a caller reset between load and here; leave it be.
		slog.Warn("analysis no longer queued", "analysis_id", id, "error", err)
		return
	}
	if err := s.store.SaveAnalysis(id, info); err != nil {
		slog.Error("failed to persist running status", "analysis_id", id, "error", err)
		return
	}

	runStart := s.now()
	runErr := s.run(ctx, id)
	elapsed := time.Since(runStart)

	if runErr != nil {
		slog.Error("analysis run failed", "analysis_id", id, "error", runErr)
		if err := lifecycle.Fail(&info, s.now(), runErr.Error()); err != nil {
			slog.Error("failed to record failure", "analysis_id", id, "error", err)
			return
		}
		if s.metrics != nil {
			s.metrics.RunsTotal.WithLabelValues("failed").Inc()
		}
	} else {
		slog.Info("finished analysis", "analysis_id", id, "elapsed", elapsed)
		if err := lifecycle.Complete(&info, s.now()); err != nil {
			slog.Error("failed to record completion", "analysis_id", id, "error", err)
			return
		}
		if s.metrics != nil {
			s.metrics.RunsTotal.WithLabelValues("completed").Inc()
		}
	}
	if s.metrics != nil {
		s.metrics.RunSeconds.Observe(elapsed.Seconds())
	}
	if err := s.store.SaveAnalysis(id, info); err != nil {
		slog.Error("failed to persist run outcome", "analysis_id", id, "error", err)
		return
	}
	if err := summary.Build(s.store, s.config.Summary); err != nil {
		slog.Warn("summary rebuild failed", "error", err)
	}
}

// run executes the sampling for one analysis: validate options, prepare
// a clean output directory, compile the model when no binary is present,
// then sample. Any error becomes the analysis's failure message.
func (s *Scheduler) run(ctx context.Context, id string) error {
	optionsText, err := s.store.ReadAnalysisFile(id, store.OptionsFile)
	if err != nil {
		return err
	}
	opts, err := datatypes.DecodeRunOptions([]byte(optionsText))
	if err != nil {
		return err
	}

	analysisDir, err := s.store.AnalysisDir(id)
	if err != nil {
		return err
	}
	outputDir, err := s.store.ResetOutput(id)
	if err != nil {
		return err
	}

	// Compile on demand: an explicit compile_model command may already
	// have produced the binary, in which case the run reuses it.
	if _, err := os.Stat(filepath.Join(analysisDir, runner.ModelBinary)); err != nil {
		if err := s.tools.CompileModel(ctx, analysisDir); err != nil {
			return err
		}
	}
	return s.tools.Sample(ctx, analysisDir, outputDir, opts)
}
