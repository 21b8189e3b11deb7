// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package runner invokes the external tools that do the heavy lifting:
// the Stan compiler, the caller-supplied data-generation program and the
// sampler. Arguments are fixed by whitelists built from validated
// records; caller text never reaches a shell.
//
// Each invocation captures combined stdout and stderr into a console
// file inside the analysis tree, framed by banner lines (start message,
// timestamp, elapsed time, artifact size, return code) so the console is
// a self-contained account of what happened.
package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/flatironinstitute/stan-playground/services/playground/datatypes"
	"github.com/flatironinstitute/stan-playground/services/playground/store"
)

// ModelBinary is the compiled model executable inside an analysis tree.
const ModelBinary = "model"

const consoleSeparator = "============================"

// ToolError reports a non-zero exit from an external tool. The console
// file holds the full output; Err carries the process-level failure.
type ToolError struct {
	Tool     string
	ExitCode int
	Err      error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Runner abstracts the external tools so the scheduler and the command
// handlers can be exercised with a fake in tests.
type Runner interface {
	// CompileModel compiles main.stan inside the analysis tree, leaving
	// the model binary next to it.
	CompileModel(ctx context.Context, analysisDir string) error
	// GenerateData executes the data-generation program inside the
	// analysis tree, rewriting data.json.
	GenerateData(ctx context.Context, analysisDir string) error
	// Sample runs the compiled model, writing artifacts into outputDir.
	Sample(ctx context.Context, analysisDir, outputDir string, opts datatypes.RunOptions) error
}

// ExecRunner runs the real tools via os/exec.
type ExecRunner struct {
	// CompilerCommand is the Stan compiler binary, default cmdstan_model.
	CompilerCommand string
	// PythonCommand interprets data.py, default python.
	PythonCommand string
}

// NewExecRunner returns a runner with the default tool commands.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{CompilerCommand: "cmdstan_model", PythonCommand: "python"}
}

func (r *ExecRunner) CompileModel(ctx context.Context, analysisDir string) error {
	if _, err := os.Stat(filepath.Join(analysisDir, store.ModelFile)); err != nil {
		return fmt.Errorf("unable to find %s in %s", store.ModelFile, analysisDir)
	}
	cmd := exec.CommandContext(ctx, r.CompilerCommand, store.ModelFile)
	cmd.Dir = analysisDir
	return runWithConsole(cmd, toolInvocation{
		name:         "compile",
		consolePath:  filepath.Join(analysisDir, store.CompileConsoleFile),
		banner:       "Starting compilation",
		artifact:     filepath.Join(analysisDir, ModelBinary),
		artifactName: "Executable",
	})
}

func (r *ExecRunner) GenerateData(ctx context.Context, analysisDir string) error {
	if _, err := os.Stat(filepath.Join(analysisDir, store.DataProgramFile)); err != nil {
		return fmt.Errorf("unable to find %s in %s", store.DataProgramFile, analysisDir)
	}
	cmd := exec.CommandContext(ctx, r.PythonCommand, store.DataProgramFile)
	cmd.Dir = analysisDir
	return runWithConsole(cmd, toolInvocation{
		name:         "data generation",
		consolePath:  filepath.Join(analysisDir, store.DataConsoleFile),
		banner:       "Executing " + store.DataProgramFile,
		artifact:     filepath.Join(analysisDir, store.DataFile),
		artifactName: "Data",
	})
}

// Sample invokes the compiled model with the cmdstan sampling interface.
// Options must already be validated; only their numeric values reach the
// argument list.
func (r *ExecRunner) Sample(ctx context.Context, analysisDir, outputDir string, opts datatypes.RunOptions) error {
	binary := filepath.Join(analysisDir, ModelBinary)
	if _, err := os.Stat(binary); err != nil {
		return fmt.Errorf("model binary not found in %s (compile the model first)", analysisDir)
	}
	args := []string{
		"sample",
		"num_samples=" + strconv.Itoa(*opts.IterSampling),
		"num_warmup=" + strconv.Itoa(*opts.IterWarmup),
	}
	if opts.SaveWarmup != nil && *opts.SaveWarmup {
		args = append(args, "save_warmup=1")
	}
	if opts.Chains != nil {
		args = append(args, "num_chains="+strconv.Itoa(*opts.Chains))
	}
	args = append(args, "data", "file="+store.DataFile)
	if opts.Seed != nil {
		args = append(args, "random", "seed="+strconv.Itoa(*opts.Seed))
	}
	args = append(args, "output", "file="+filepath.Join(outputDir, "samples.csv"))

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = analysisDir
	return runWithConsole(cmd, toolInvocation{
		name:        "sampling",
		consolePath: filepath.Join(analysisDir, store.RunConsoleFile),
		banner:      "Starting sampling run",
	})
}

type toolInvocation struct {
	name         string
	consolePath  string
	banner       string
	artifact     string
	artifactName string
}

// runWithConsole executes cmd with stdout+stderr captured into the
// console file, framed by the banner lines. A non-zero exit is a
// ToolError; the console always records the return code either way.
func runWithConsole(cmd *exec.Cmd, inv toolInvocation) error {
	f, err := os.Create(inv.consolePath)
	if err != nil {
		return fmt.Errorf("create console log %s: %w", inv.consolePath, err)
	}
	defer f.Close()

	fmt.Fprintln(f, inv.banner)
	fmt.Fprintln(f, time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintln(f, consoleSeparator)

	cmd.Stdout = f
	cmd.Stderr = f

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if runErr != nil {
		exitCode = -1
		if ee, ok := runErr.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
	}

	fmt.Fprintln(f, consoleSeparator)
	fmt.Fprintf(f, "Elapsed time: %.2f seconds\n", elapsed.Seconds())
	if inv.artifact != "" {
		if st, err := os.Stat(inv.artifact); err == nil {
			fmt.Fprintf(f, "%s size (bytes): %d\n", inv.artifactName, st.Size())
		}
	}
	fmt.Fprintf(f, "Return code: %d\n", exitCode)

	if runErr != nil {
		return &ToolError{Tool: inv.name, ExitCode: exitCode, Err: runErr}
	}
	return nil
}
