// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flatironinstitute/stan-playground/services/playground/auth"
	"github.com/flatironinstitute/stan-playground/services/playground/datatypes"
	"github.com/flatironinstitute/stan-playground/services/playground/lifecycle"
	"github.com/flatironinstitute/stan-playground/services/playground/middleware"
	"github.com/flatironinstitute/stan-playground/services/playground/store"
)

// Default file contents for a freshly created analysis.
const (
	defaultModelText       = "// Stan model goes here"
	defaultDataText        = "{}"
	defaultDescriptionText = "# Untitled"
	defaultOptionsText     = "iter_sampling: 200\niter_warmup: 20\n"
)

// loadAuthorizedAnalysis is the shared preamble of every analysis
// mutation: validate the id, load the record and its stored edit token,
// and check edit rights.
func (s *Service) loadAuthorizedAnalysis(id string, ctx auth.Context) (datatypes.AnalysisInfo, error) {
	info, err := s.Store.LoadAnalysis(id)
	if err != nil {
		return datatypes.AnalysisInfo{}, err
	}
	token, err := s.Store.AnalysisEditToken(id)
	if err != nil {
		return datatypes.AnalysisInfo{}, err
	}
	if err := auth.CanEditAnalysis(info, token, ctx); err != nil {
		return datatypes.AnalysisInfo{}, err
	}
	return info, nil
}

// CreateAnalysis allocates a fresh analysis with default file content.
// Anonymous callers get an edit token back; identified callers own the
// record and need no token.
func (s *Service) CreateAnalysis() gin.HandlerFunc {
	return func(c *gin.Context) {
		const command = "create_analysis"
		var req datatypes.CreateAnalysisRequest
		if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
			s.fail(c, command, fmt.Errorf("%w: %v", store.ErrInvalidID, err))
			return
		}
		var projectID *string
		if req.ProjectID != "" {
			if err := store.ValidateID(req.ProjectID); err != nil {
				s.fail(c, command, err)
				return
			}
			projectID = &req.ProjectID
		}

		id, err := s.Store.NewAnalysisID()
		if err != nil {
			s.fail(c, command, err)
			return
		}
		if err := s.Store.CreateAnalysisTree(id); err != nil {
			s.fail(c, command, err)
			return
		}
		defaults := map[string]string{
			store.ModelFile:       defaultModelText,
			store.DataFile:        defaultDataText,
			store.DescriptionFile: defaultDescriptionText,
			store.OptionsFile:     defaultOptionsText,
		}
		for name, text := range defaults {
			if err := s.Store.WriteAnalysisFile(id, name, text); err != nil {
				s.fail(c, command, err)
				return
			}
		}

		now := time.Now()
		info := datatypes.AnalysisInfo{
			Status:           datatypes.StatusNone,
			ProjectID:        projectID,
			Listed:           false,
			TimestampCreated: datatypes.TimePtr(now),
		}
		info.Touch(now)

		caller := middleware.CallerID(c)
		editToken := ""
		if caller != "" {
			info.OwnerID = &caller
		} else {
			editToken = store.NewEditToken()
			if err := s.Store.WriteAnalysisEditToken(id, editToken); err != nil {
				s.fail(c, command, err)
				return
			}
		}
		if err := s.Store.SaveAnalysis(id, info); err != nil {
			s.fail(c, command, err)
			return
		}
		s.rebuildSummary()
		s.ok(c, command, datatypes.CreateAnalysisResponse{
			Success:       true,
			NewAnalysisID: id,
			EditToken:     editToken,
		})
	}
}

// CloneAnalysis deep-copies an analysis's blob files under a fresh
// identity: no inherited ownership or token, status reset to none, and
// a description heading marked as a copy.
func (s *Service) CloneAnalysis() gin.HandlerFunc {
	return func(c *gin.Context) {
		const command = "clone_analysis"
		var req datatypes.CloneAnalysisRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, command, fmt.Errorf("%w: %v", store.ErrInvalidID, err))
			return
		}
		if !s.Store.AnalysisExists(req.AnalysisID) {
			s.fail(c, command, fmt.Errorf("analysis %s: %w", req.AnalysisID, store.ErrNotFound))
			return
		}

		newID, err := s.Store.NewAnalysisID()
		if err != nil {
			s.fail(c, command, err)
			return
		}
		if err := s.Store.CopyAnalysisTree(req.AnalysisID, newID); err != nil {
			s.fail(c, command, err)
			return
		}

		now := time.Now()
		info := datatypes.AnalysisInfo{
			Status:           datatypes.StatusNone,
			Listed:           false,
			TimestampCreated: datatypes.TimePtr(now),
		}
		info.Touch(now)
		caller := middleware.CallerID(c)
		editToken := ""
		if caller != "" {
			info.OwnerID = &caller
		} else {
			editToken = store.NewEditToken()
			if err := s.Store.WriteAnalysisEditToken(newID, editToken); err != nil {
				s.fail(c, command, err)
				return
			}
		}
		if err := s.Store.SaveAnalysis(newID, info); err != nil {
			s.fail(c, command, err)
			return
		}

		// Mark the copied description so the two are distinguishable in
		// listings: a leading heading line gets " copy" appended.
		description, err := s.Store.ReadAnalysisFile(newID, store.DescriptionFile)
		if err == nil && description != "" {
			lines := strings.Split(description, "\n")
			if strings.HasPrefix(lines[0], "#") {
				lines[0] += " copy"
				if err := s.Store.WriteAnalysisFile(newID, store.DescriptionFile, strings.Join(lines, "\n")); err != nil {
					s.fail(c, command, err)
					return
				}
			}
		}

		s.rebuildSummary()
		s.ok(c, command, datatypes.CreateAnalysisResponse{
			Success:       true,
			NewAnalysisID: newID,
			EditToken:     editToken,
		})
	}
}

// DeleteAnalysis flips the soft-delete flag. Files and status are
// untouched; the record drops out of listings but stays recoverable.
func (s *Service) DeleteAnalysis() gin.HandlerFunc {
	return s.setDeleted("delete_analysis", true)
}

// UndeleteAnalysis clears the soft-delete flag.
func (s *Service) UndeleteAnalysis() gin.HandlerFunc {
	return s.setDeleted("undelete_analysis", false)
}

func (s *Service) setDeleted(command string, deleted bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.AnalysisIDRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, command, fmt.Errorf("%w: %v", store.ErrInvalidID, err))
			return
		}
		defer s.analysisLocks.lock(req.AnalysisID)()
		ctx := auth.Context{UserID: middleware.CallerID(c), EditToken: req.EditToken}
		info, err := s.loadAuthorizedAnalysis(req.AnalysisID, ctx)
		if err != nil {
			s.fail(c, command, err)
			return
		}
		info.Deleted = deleted
		info.Touch(time.Now())
		if err := s.Store.SaveAnalysis(req.AnalysisID, info); err != nil {
			s.fail(c, command, err)
			return
		}
		s.rebuildSummary()
		s.ok(c, command, datatypes.OK())
	}
}

// SetAnalysisTextFile overwrites one of the whitelisted analysis blobs.
func (s *Service) SetAnalysisTextFile() gin.HandlerFunc {
	return func(c *gin.Context) {
		const command = "set_analysis_text_file"
		var req datatypes.SetAnalysisTextFileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, command, fmt.Errorf("%w: %v", store.ErrInvalidID, err))
			return
		}
		if !store.AnalysisTextFiles[req.Name] {
			s.fail(c, command, fmt.Errorf("%w: unexpected file name %q", store.ErrInvalidID, req.Name))
			return
		}
		defer s.analysisLocks.lock(req.AnalysisID)()
		ctx := auth.Context{UserID: middleware.CallerID(c), EditToken: req.EditToken}
		info, err := s.loadAuthorizedAnalysis(req.AnalysisID, ctx)
		if err != nil {
			s.fail(c, command, err)
			return
		}
		if err := s.Store.WriteAnalysisFile(req.AnalysisID, req.Name, req.Text); err != nil {
			s.fail(c, command, err)
			return
		}
		info.Touch(time.Now())
		if err := s.Store.SaveAnalysis(req.AnalysisID, info); err != nil {
			s.fail(c, command, err)
			return
		}
		s.rebuildSummary()
		s.ok(c, command, datatypes.OK())
	}
}

// GetAnalysisTextFile reads one of the whitelisted analysis blobs.
// Analyses are world-readable; authorization guards mutation only.
func (s *Service) GetAnalysisTextFile() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("analysisId")
		name := c.Param("name")
		if err := store.ValidateID(id); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.Fail(err.Error()))
			return
		}
		if !store.AnalysisTextFiles[name] && name != store.RunConsoleFile &&
			name != store.CompileConsoleFile && name != store.DataConsoleFile {
			c.JSON(http.StatusBadRequest, datatypes.Fail(fmt.Sprintf("unexpected file name %q", name)))
			return
		}
		text, err := s.Store.ReadAnalysisFile(id, name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, datatypes.Fail(err.Error()))
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "text": text})
	}
}

// SetAnalysisStatus dispatches caller-invocable lifecycle transitions:
// enqueue (gated by a valid access code) and reset.
func (s *Service) SetAnalysisStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		const command = "set_analysis_status"
		var req datatypes.SetAnalysisStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, command, fmt.Errorf("%w: %v", store.ErrInvalidID, err))
			return
		}
		target, err := datatypes.NormalizeStatus(req.Status)
		if err != nil {
			s.fail(c, command, fmt.Errorf("%w: %v", store.ErrInvalidID, err))
			return
		}
		if !lifecycle.CallerInvocable(target) {
			s.fail(c, command, fmt.Errorf("%w: status %q is not caller-settable", store.ErrInvalidID, target))
			return
		}
		// The transition guard below only sees this handler's copy of
		// the record, so racing commands on one analysis must take
		// turns: of two simultaneous enqueues, exactly one may win.
		defer s.analysisLocks.lock(req.AnalysisID)()
		ctx := auth.Context{UserID: middleware.CallerID(c), EditToken: req.EditToken, AccessCode: req.AccessCode}
		info, err := s.loadAuthorizedAnalysis(req.AnalysisID, ctx)
		if err != nil {
			s.fail(c, command, err)
			return
		}

		now := time.Now()
		switch target {
		case datatypes.StatusQueued:
			// Queueing spends compute, so it requires a fresh capability
			// on top of edit rights.
			if !s.Gate.IsValid(ctx.AccessCode) {
				s.fail(c, command, fmt.Errorf("%w: invalid access code", auth.ErrNotAuthorized))
				return
			}
			if err := lifecycle.Enqueue(&info, now); err != nil {
				s.fail(c, command, err)
				return
			}
		case datatypes.StatusNone:
			if err := lifecycle.Reset(&info, now); err != nil {
				s.fail(c, command, err)
				return
			}
			if err := s.Store.RemoveOutput(req.AnalysisID); err != nil {
				s.fail(c, command, err)
				return
			}
			if err := s.Store.RemoveAnalysisFile(req.AnalysisID, store.RunConsoleFile); err != nil {
				s.fail(c, command, err)
				return
			}
		}

		if err := s.Store.SaveAnalysis(req.AnalysisID, info); err != nil {
			s.fail(c, command, err)
			return
		}
		s.rebuildSummary()
		s.ok(c, command, datatypes.OK())
	}
}

// SetAnalysisListed toggles listing visibility. Listing always needs a
// caller identity; an unowned analysis is claimed by the lister.
func (s *Service) SetAnalysisListed() gin.HandlerFunc {
	return func(c *gin.Context) {
		const command = "set_analysis_listed"
		var req datatypes.SetAnalysisListedRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, command, fmt.Errorf("%w: %v", store.ErrInvalidID, err))
			return
		}
		defer s.analysisLocks.lock(req.AnalysisID)()
		ctx := auth.Context{UserID: middleware.CallerID(c), EditToken: req.EditToken}
		info, err := s.Store.LoadAnalysis(req.AnalysisID)
		if err != nil {
			s.fail(c, command, err)
			return
		}
		if err := auth.CanSetAnalysisListed(info, ctx); err != nil {
			s.fail(c, command, err)
			return
		}
		if info.OwnerID == nil || *info.OwnerID == "" {
			// Claim-on-list: the record stops being anonymous.
			info.OwnerID = &ctx.UserID
		}
		info.Listed = req.Listed
		info.Touch(time.Now())
		if err := s.Store.SaveAnalysis(req.AnalysisID, info); err != nil {
			s.fail(c, command, err)
			return
		}
		s.rebuildSummary()
		s.ok(c, command, datatypes.OK())
	}
}

// GenerateAnalysisData executes the caller-supplied data-generation
// program. Arbitrary code execution, so edit rights alone are not
// enough: a fresh access code is required as well.
func (s *Service) GenerateAnalysisData() gin.HandlerFunc {
	return func(c *gin.Context) {
		const command = "generate_analysis_data"
		var req datatypes.GenerateAnalysisDataRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, command, fmt.Errorf("%w: %v", store.ErrInvalidID, err))
			return
		}
		defer s.analysisLocks.lock(req.AnalysisID)()
		ctx := auth.Context{UserID: middleware.CallerID(c), EditToken: req.EditToken, AccessCode: req.AccessCode}
		info, err := s.loadAuthorizedAnalysis(req.AnalysisID, ctx)
		if err != nil {
			s.fail(c, command, err)
			return
		}
		if !s.Gate.IsValid(ctx.AccessCode) {
			s.fail(c, command, fmt.Errorf("%w: invalid access code", auth.ErrNotAuthorized))
			return
		}
		dir, err := s.Store.AnalysisDir(req.AnalysisID)
		if err != nil {
			s.fail(c, command, err)
			return
		}
		if err := s.Tools.GenerateData(c.Request.Context(), dir); err != nil {
			s.fail(c, command, err)
			return
		}
		info.Touch(time.Now())
		if err := s.Store.SaveAnalysis(req.AnalysisID, info); err != nil {
			s.fail(c, command, err)
			return
		}
		s.rebuildSummary()
		s.ok(c, command, datatypes.OK())
	}
}

// CompileAnalysisModel compiles the model program, leaving the binary in
// the analysis tree for the scheduler to reuse.
func (s *Service) CompileAnalysisModel() gin.HandlerFunc {
	return func(c *gin.Context) {
		const command = "compile_analysis_model"
		var req datatypes.AnalysisIDRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, command, fmt.Errorf("%w: %v", store.ErrInvalidID, err))
			return
		}
		ctx := auth.Context{UserID: middleware.CallerID(c), EditToken: req.EditToken}
		if _, err := s.loadAuthorizedAnalysis(req.AnalysisID, ctx); err != nil {
			s.fail(c, command, err)
			return
		}
		dir, err := s.Store.AnalysisDir(req.AnalysisID)
		if err != nil {
			s.fail(c, command, err)
			return
		}
		if err := s.Tools.CompileModel(c.Request.Context(), dir); err != nil {
			s.fail(c, command, err)
			return
		}
		s.ok(c, command, datatypes.OK())
	}
}
