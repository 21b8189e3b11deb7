// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/flatironinstitute/stan-playground/services/playground/accesscode"
	"github.com/flatironinstitute/stan-playground/services/playground/datatypes"
	"github.com/flatironinstitute/stan-playground/services/playground/middleware"
	"github.com/flatironinstitute/stan-playground/services/playground/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeTools satisfies runner.Runner without shelling out.
type fakeTools struct {
	compileCalls int
	dataCalls    int
	compileErr   error
	dataErr      error
}

func (f *fakeTools) CompileModel(_ context.Context, _ string) error {
	f.compileCalls++
	return f.compileErr
}

func (f *fakeTools) GenerateData(_ context.Context, _ string) error {
	f.dataCalls++
	return f.dataErr
}

func (f *fakeTools) Sample(_ context.Context, _, _ string, _ datatypes.RunOptions) error {
	return nil
}

// testHarness bundles a Service with the routes a handler test needs.
type testHarness struct {
	svc    *Service
	store  *store.Store
	gate   *accesscode.Gate
	tools  *fakeTools
	router *gin.Engine
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	dir := t.TempDir()
	st, err := store.New(dir)
	require.NoError(t, err)
	tools := &fakeTools{}
	gate := accesscode.New(filepath.Join(dir, store.AccessCodesFile))
	svc := NewService(st, gate, tools, nil)

	router := gin.New()
	router.Use(middleware.Identity())
	router.POST("/create", svc.CreateAnalysis())
	router.POST("/clone", svc.CloneAnalysis())
	router.POST("/delete", svc.DeleteAnalysis())
	router.POST("/undelete", svc.UndeleteAnalysis())
	router.POST("/file", svc.SetAnalysisTextFile())
	router.POST("/status", svc.SetAnalysisStatus())
	router.POST("/listed", svc.SetAnalysisListed())
	router.POST("/data", svc.GenerateAnalysisData())
	router.POST("/compile", svc.CompileAnalysisModel())
	router.GET("/analyses/:analysisId/file/:name", svc.GetAnalysisTextFile())

	router.POST("/projects/create", svc.CreateProject())
	router.POST("/projects/delete", svc.DeleteProject())
	router.POST("/projects/file", svc.SetProjectTextFile())
	router.POST("/projects/listed", svc.SetProjectListed())
	router.POST("/analysis-project", svc.SetAnalysisProject())
	router.GET("/projects", svc.GetProjects())
	router.GET("/projects/:projectId/analyses", svc.GetProjectAnalyses())

	return &testHarness{svc: svc, store: st, gate: gate, tools: tools, router: router}
}

// post sends a JSON command as user (empty for anonymous) and decodes
// the response body into a generic map.
func (h *testHarness) post(t *testing.T, path, user string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(middleware.UserIDHeader, user)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	return w.Code, decoded
}

func (h *testHarness) get(t *testing.T, path, user string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if user != "" {
		req.Header.Set(middleware.UserIDHeader, user)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	return w.Code, decoded
}

// createAnalysis is the common setup step: create as user and return
// the new id plus the edit token (empty for owned analyses).
func (h *testHarness) createAnalysis(t *testing.T, user string) (string, string) {
	t.Helper()
	code, body := h.post(t, "/create", user, map[string]any{})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["success"])
	id, _ := body["newAnalysisId"].(string)
	require.NotEmpty(t, id)
	token, _ := body["editToken"].(string)
	return id, token
}

func (h *testHarness) createProject(t *testing.T, user string) string {
	t.Helper()
	code, body := h.post(t, "/projects/create", user, nil)
	require.Equal(t, http.StatusOK, code)
	id, _ := body["project_id"].(string)
	require.NotEmpty(t, id)
	return id
}

func (h *testHarness) issueCode(t *testing.T) string {
	t.Helper()
	code, err := h.gate.Issue(time.Hour)
	require.NoError(t, err)
	return code
}
