// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flatironinstitute/stan-playground/services/playground/datatypes"
	"github.com/flatironinstitute/stan-playground/services/playground/runner"
	"github.com/flatironinstitute/stan-playground/services/playground/store"
)

// fakeRunner records invocations and simulates tool outcomes without
// shelling out.
type fakeRunner struct {
	mu          sync.Mutex
	compiled    []string
	sampled     []string
	compileErr  error
	sampleErr   error
	makeBinary  bool
	sampleDelay time.Duration
}

func (f *fakeRunner) CompileModel(_ context.Context, analysisDir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compiled = append(f.compiled, analysisDir)
	if f.compileErr != nil {
		return f.compileErr
	}
	if f.makeBinary {
		return os.WriteFile(filepath.Join(analysisDir, runner.ModelBinary), []byte("bin"), 0o755)
	}
	return nil
}

func (f *fakeRunner) GenerateData(_ context.Context, _ string) error { return nil }

func (f *fakeRunner) Sample(_ context.Context, analysisDir, outputDir string, _ datatypes.RunOptions) error {
	if f.sampleDelay > 0 {
		time.Sleep(f.sampleDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sampled = append(f.sampled, analysisDir)
	if f.sampleErr != nil {
		return f.sampleErr
	}
	return os.WriteFile(filepath.Join(outputDir, "samples.csv"), []byte("x\n1\n"), 0o644)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(t.TempDir())
	require.NoError(t, err)
	return s
}

func queueAnalysis(t *testing.T, s *store.Store, id string) {
	t.Helper()
	require.NoError(t, s.CreateAnalysisTree(id))
	require.NoError(t, s.WriteAnalysisFile(id, store.OptionsFile, "iter_sampling: 200\niter_warmup: 20\n"))
	require.NoError(t, s.SaveAnalysis(id, datatypes.AnalysisInfo{Status: datatypes.StatusQueued}))
}

func TestTick_RunsQueuedToCompleted(t *testing.T) {
	s := newTestStore(t)
	queueAnalysis(t, s, "abc123xy")

	tools := &fakeRunner{makeBinary: true}
	sched := New(s, tools, nil, DefaultConfig())
	sched.Tick(context.Background())

	info, err := s.LoadAnalysis("abc123xy")
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusCompleted, info.Status)
	assert.Nil(t, info.Error)
	assert.NotNil(t, info.TimestampStarted)
	assert.NotNil(t, info.TimestampCompleted)
	assert.Len(t, tools.compiled, 1)
	assert.Len(t, tools.sampled, 1)

	outDir, err := s.OutputDir("abc123xy")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(outDir, "samples.csv"))
	assert.NoError(t, err)

	// the projection reflects the outcome
	_, err = os.Stat(filepath.Join(s.Dir(), store.SummaryFile))
	assert.NoError(t, err)
}

func TestTick_SampleFailureRecordsError(t *testing.T) {
	s := newTestStore(t)
	queueAnalysis(t, s, "abc123xy")

	tools := &fakeRunner{makeBinary: true, sampleErr: errors.New("sampler exited with code 1")}
	sched := New(s, tools, nil, DefaultConfig())
	sched.Tick(context.Background())

	info, err := s.LoadAnalysis("abc123xy")
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusFailed, info.Status)
	require.NotNil(t, info.Error)
	assert.Contains(t, *info.Error, "sampler exited with code 1")
	assert.NotNil(t, info.TimestampFailed)
}

func TestTick_InvalidOptionsFailFast(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateAnalysisTree("abc123xy"))
	require.NoError(t, s.WriteAnalysisFile("abc123xy", store.OptionsFile, "chains: 4\n"))
	require.NoError(t, s.SaveAnalysis("abc123xy", datatypes.AnalysisInfo{Status: datatypes.StatusQueued}))

	tools := &fakeRunner{}
	sched := New(s, tools, nil, DefaultConfig())
	sched.Tick(context.Background())

	info, err := s.LoadAnalysis("abc123xy")
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusFailed, info.Status)
	require.NotNil(t, info.Error)
	assert.Contains(t, *info.Error, "invalid run options")
	assert.Empty(t, tools.sampled, "sampler never invoked on bad options")
}

func TestTick_SkipsNonQueued(t *testing.T) {
	s := newTestStore(t)
	for id, status := range map[string]datatypes.Status{
		"idle1234": datatypes.StatusNone,
		"runn1234": datatypes.StatusRunning,
		"done1234": datatypes.StatusCompleted,
	} {
		require.NoError(t, s.CreateAnalysisTree(id))
		require.NoError(t, s.SaveAnalysis(id, datatypes.AnalysisInfo{Status: status}))
	}

	tools := &fakeRunner{}
	sched := New(s, tools, nil, DefaultConfig())
	sched.Tick(context.Background())

	assert.Empty(t, tools.sampled)
	assert.Empty(t, tools.compiled)
	for id, status := range map[string]datatypes.Status{
		"idle1234": datatypes.StatusNone,
		"runn1234": datatypes.StatusRunning,
		"done1234": datatypes.StatusCompleted,
	} {
		info, err := s.LoadAnalysis(id)
		require.NoError(t, err)
		assert.Equal(t, status, info.Status, id)
	}
}

func TestTick_OneFailureDoesNotStopPass(t *testing.T) {
	s := newTestStore(t)
	queueAnalysis(t, s, "aaa111bb")
	queueAnalysis(t, s, "zzz999yy")
	// break the first (alphabetically) so the second must still run
	require.NoError(t, s.WriteAnalysisFile("aaa111bb", store.OptionsFile, "not valid\n"))

	tools := &fakeRunner{makeBinary: true}
	sched := New(s, tools, nil, DefaultConfig())
	sched.Tick(context.Background())

	first, err := s.LoadAnalysis("aaa111bb")
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusFailed, first.Status)

	second, err := s.LoadAnalysis("zzz999yy")
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusCompleted, second.Status)
}

func TestTick_ReusesExistingBinary(t *testing.T) {
	s := newTestStore(t)
	queueAnalysis(t, s, "abc123xy")
	dir, err := s.AnalysisDir("abc123xy")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, runner.ModelBinary), []byte("bin"), 0o755))

	tools := &fakeRunner{}
	sched := New(s, tools, nil, DefaultConfig())
	sched.Tick(context.Background())

	assert.Empty(t, tools.compiled, "existing binary is reused")
	assert.Len(t, tools.sampled, 1)
}

func TestProcess_PersistsRunningBeforeWork(t *testing.T) {
	s := newTestStore(t)
	queueAnalysis(t, s, "abc123xy")

	var statusDuringRun datatypes.Status
	tools := &fakeRunner{makeBinary: true}
	// observe the persisted record from inside the run via a delayed
	// sample and a concurrent read
	tools.sampleDelay = 100 * time.Millisecond

	sched := New(s, tools, nil, DefaultConfig())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.Tick(context.Background())
	}()

	time.Sleep(50 * time.Millisecond)
	info, err := s.LoadAnalysis("abc123xy")
	require.NoError(t, err)
	statusDuringRun = info.Status
	<-done

	assert.Equal(t, datatypes.StatusRunning, statusDuringRun,
		"running must be on disk before the tool finishes")
}

func TestStartStop(t *testing.T) {
	s := newTestStore(t)
	queueAnalysis(t, s, "abc123xy")

	tools := &fakeRunner{makeBinary: true}
	sched := New(s, tools, nil, Config{Interval: time.Hour})
	sched.Start()
	sched.Start() // idempotent

	// the immediate first pass processes the queued analysis
	require.Eventually(t, func() bool {
		info, err := s.LoadAnalysis("abc123xy")
		return err == nil && info.Status == datatypes.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	sched.Stop()
	sched.Stop() // idempotent
}

func TestNew_DefaultsInterval(t *testing.T) {
	s := newTestStore(t)
	sched := New(s, &fakeRunner{}, nil, Config{})
	assert.Equal(t, 10*time.Second, sched.config.Interval)
}
