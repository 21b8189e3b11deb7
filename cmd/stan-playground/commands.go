// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/flatironinstitute/stan-playground/pkg/logging"
	"github.com/flatironinstitute/stan-playground/services/playground/accesscode"
	"github.com/flatironinstitute/stan-playground/services/playground/runner"
	"github.com/flatironinstitute/stan-playground/services/playground/store"
)

var (
	configPath  string
	dataDir     string
	listenPort  int
	codeTTL     string
	watchFlag   bool
	listedOnly  bool
	config      Config

	rootCmd = &cobra.Command{
		Use:   "stan-playground",
		Short: "Manage a Stan playground data directory and its services",
		Long: `stan-playground runs the services behind a shared Stan analysis
playground: the HTTP API, the background processor that compiles and
samples queued analyses, and operator utilities for access codes and
the summary projection.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			explicit := cmd.Flags().Changed("config")
			cfg, err := loadConfig(configPath, explicit)
			if err != nil {
				return err
			}
			if dataDir != "" {
				cfg.Dir = dataDir
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = listenPort
			}
			if cmd.Flags().Changed("listed-only") {
				cfg.ListedOnly = listedOnly
			}
			config = cfg
			return nil
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the playground HTTP API",
		RunE:  runServe,
	}

	processCmd = &cobra.Command{
		Use:   "process",
		Short: "Run the background processor that executes queued analyses",
		RunE:  runProcess,
	}

	accessCodeCmd = &cobra.Command{
		Use:   "access-code",
		Short: "Mint an access code and print it to stdout",
		RunE:  runAccessCode,
	}

	summaryCmd = &cobra.Command{
		Use:   "summary",
		Short: "Rebuild the summary projection, optionally watching for changes",
		RunE:  runSummary,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "dir", "", "data directory (overrides config and STAN_PLAYGROUND_DIR)")

	serveCmd.Flags().IntVar(&listenPort, "port", 12500, "HTTP listen port")
	accessCodeCmd.Flags().StringVar(&codeTTL, "ttl", "", "code lifetime, e.g. 30m or 2h (default 1h)")
	summaryCmd.Flags().BoolVar(&watchFlag, "watch", false, "keep running and rebuild on filesystem changes")
	summaryCmd.Flags().BoolVar(&listedOnly, "listed-only", false, "include only listed analyses")
	processCmd.Flags().BoolVar(&listedOnly, "listed-only", false, "include only listed analyses in the summary")

	rootCmd.AddCommand(serveCmd, processCmd, accessCodeCmd, summaryCmd)
}

// openStore validates the config and opens the data directory shared
// by every command.
func openStore() (*store.Store, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return store.New(config.Dir)
}

func newGate() *accesscode.Gate {
	return accesscode.New(filepath.Join(config.Dir, store.AccessCodesFile))
}

func newRunner() *runner.ExecRunner {
	r := runner.NewExecRunner()
	if config.CompilerCommand != "" {
		r.CompilerCommand = config.CompilerCommand
	}
	if config.PythonCommand != "" {
		r.PythonCommand = config.PythonCommand
	}
	return r
}

func newLogger(service string) *logging.Logger {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(config.LogLevel),
		Service: service,
		LogDir:  config.LogDir,
	})
	logger.Install()
	return logger
}
