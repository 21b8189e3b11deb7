// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the command and query surface of the
// playground service.
//
// Every mutating handler follows the same contract: validate identifier
// syntax before any filesystem interaction, authorize through the auth
// package (and the access-code gate where the operation spends compute
// or trust), mutate the entity store under the lifecycle state machine's
// constraints, and on success rebuild the summary projection. Failures
// come back in-band as {success:false, error:...}.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/flatironinstitute/stan-playground/services/playground/accesscode"
	"github.com/flatironinstitute/stan-playground/services/playground/auth"
	"github.com/flatironinstitute/stan-playground/services/playground/datatypes"
	"github.com/flatironinstitute/stan-playground/services/playground/lifecycle"
	"github.com/flatironinstitute/stan-playground/services/playground/observability"
	"github.com/flatironinstitute/stan-playground/services/playground/runner"
	"github.com/flatironinstitute/stan-playground/services/playground/store"
	"github.com/flatironinstitute/stan-playground/services/playground/summary"
)

// Service carries the dependencies shared by every handler.
type Service struct {
	Store   *store.Store
	Gate    *accesscode.Gate
	Tools   runner.Runner
	Metrics *observability.Metrics
	Summary summary.Options

	analysisLocks keyedMutex
}

// keyedMutex serializes the load-modify-save cycle of racing command
// handlers on the same analysis. The scheduler runs in a separate
// process and coordinates through the persisted records alone; this
// mutex only covers callers inside the API process, where two
// concurrent commands would otherwise both pass a lifecycle guard on
// their private copies of the record.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// lock acquires the mutex for key and returns its release func.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// NewService wires the handler dependencies together. Metrics may be
// nil to disable command accounting (tests).
func NewService(s *store.Store, gate *accesscode.Gate, tools runner.Runner, metrics *observability.Metrics) *Service {
	return &Service{Store: s, Gate: gate, Tools: tools, Metrics: metrics}
}

// rebuildSummary refreshes the projection after a successful mutation.
// The rebuild is idempotent, so it runs unconditionally; a failure is
// logged rather than failing the command whose real work already landed.
func (s *Service) rebuildSummary() {
	if err := summary.Build(s.Store, s.Summary); err != nil {
		slog.Warn("summary rebuild failed", "error", err)
	}
}

// fail maps an error onto the standard failure envelope with an HTTP
// status matching its kind. Clients only need the body; the status is
// for proxies and logs.
func (s *Service) fail(c *gin.Context, command string, err error) {
	status := http.StatusInternalServerError
	var transition *lifecycle.InvalidTransitionError
	var toolErr *runner.ToolError
	switch {
	case errors.Is(err, store.ErrInvalidID):
		status = http.StatusBadRequest
	case errors.Is(err, auth.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &transition):
		status = http.StatusConflict
	case errors.As(err, &toolErr):
		status = http.StatusBadGateway
	}
	s.Metrics.ObserveCommand(command, err)
	slog.Warn("command failed", "command", command, "error", err)
	c.JSON(status, datatypes.Fail(err.Error()))
}

// ok records the command outcome and sends body (which must carry
// success:true in its shape).
func (s *Service) ok(c *gin.Context, command string, body any) {
	s.Metrics.ObserveCommand(command, nil)
	c.JSON(http.StatusOK, body)
}
