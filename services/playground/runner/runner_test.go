// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flatironinstitute/stan-playground/services/playground/datatypes"
	"github.com/flatironinstitute/stan-playground/services/playground/store"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test shells out to unix tools")
	}
}

func TestToolError_Message(t *testing.T) {
	err := &ToolError{Tool: "sampling", ExitCode: 1}
	assert.Equal(t, "sampling exited with code 1", err.Error())

	wrapped := errors.New("signal: killed")
	err = &ToolError{Tool: "compile", ExitCode: -1, Err: wrapped}
	assert.Contains(t, err.Error(), "compile failed")
	assert.ErrorIs(t, err, wrapped)
}

func TestCompileModel_MissingSource(t *testing.T) {
	r := NewExecRunner()
	err := r.CompileModel(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), store.ModelFile)
}

func TestGenerateData_MissingProgram(t *testing.T) {
	r := NewExecRunner()
	err := r.GenerateData(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), store.DataProgramFile)
}

func TestGenerateData_CapturesConsole(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, store.DataProgramFile),
		[]byte("print('hello from data.py')\n"), 0o644))

	// cat stands in for the interpreter: it echoes the program text,
	// which is enough to verify console capture and framing.
	r := &ExecRunner{PythonCommand: "cat"}
	require.NoError(t, r.GenerateData(context.Background(), dir))

	console, err := os.ReadFile(filepath.Join(dir, store.DataConsoleFile))
	require.NoError(t, err)
	out := string(console)
	assert.Contains(t, out, "Executing "+store.DataProgramFile)
	assert.Contains(t, out, "hello from data.py")
	assert.Contains(t, out, consoleSeparator)
	assert.Contains(t, out, "Elapsed time:")
	assert.Contains(t, out, "Return code: 0")
}

func TestGenerateData_NonZeroExit(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, store.DataProgramFile), []byte("x"), 0o644))

	r := &ExecRunner{PythonCommand: "false"}
	err := r.GenerateData(context.Background(), dir)

	var terr *ToolError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "data generation", terr.Tool)
	assert.Equal(t, 1, terr.ExitCode)

	console, readErr := os.ReadFile(filepath.Join(dir, store.DataConsoleFile))
	require.NoError(t, readErr)
	assert.Contains(t, string(console), "Return code: 1")
}

func TestSample_MissingBinary(t *testing.T) {
	r := NewExecRunner()
	opts := datatypes.RunOptions{IterSampling: intPtr(200), IterWarmup: intPtr(20)}
	err := r.Sample(context.Background(), t.TempDir(), t.TempDir(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile the model first")
}

func TestSample_ArgumentConstruction(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	out := t.TempDir()

	// A stub binary that echoes its arguments into the console capture.
	stub := "#!/bin/sh\necho \"$@\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ModelBinary), []byte(stub), 0o755))

	opts := datatypes.RunOptions{
		IterSampling: intPtr(1000),
		IterWarmup:   intPtr(500),
		Chains:       intPtr(4),
		Seed:         intPtr(42),
		SaveWarmup:   boolPtr(true),
	}
	r := NewExecRunner()
	require.NoError(t, r.Sample(context.Background(), dir, out, opts))

	console, err := os.ReadFile(filepath.Join(dir, store.RunConsoleFile))
	require.NoError(t, err)
	got := string(console)
	assert.Contains(t, got, "Starting sampling run")
	assert.Contains(t, got, "sample num_samples=1000 num_warmup=500 save_warmup=1 num_chains=4")
	assert.Contains(t, got, "data file="+store.DataFile)
	assert.Contains(t, got, "random seed=42")
	assert.Contains(t, got, "output file="+filepath.Join(out, "samples.csv"))
}

func TestSample_OptionalArgsOmitted(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()

	stub := "#!/bin/sh\necho \"$@\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ModelBinary), []byte(stub), 0o755))

	opts := datatypes.RunOptions{IterSampling: intPtr(200), IterWarmup: intPtr(20)}
	r := NewExecRunner()
	require.NoError(t, r.Sample(context.Background(), dir, t.TempDir(), opts))

	console, err := os.ReadFile(filepath.Join(dir, store.RunConsoleFile))
	require.NoError(t, err)
	got := string(console)
	assert.NotContains(t, got, "save_warmup")
	assert.NotContains(t, got, "num_chains")
	assert.NotContains(t, got, "random seed")
}
