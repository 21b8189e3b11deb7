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
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flatironinstitute/stan-playground/services/playground/auth"
	"github.com/flatironinstitute/stan-playground/services/playground/datatypes"
	"github.com/flatironinstitute/stan-playground/services/playground/middleware"
	"github.com/flatironinstitute/stan-playground/services/playground/store"
)

const defaultProjectDescription = "# Untitled Project"

// CreateProject allocates a project owned by the caller. There is no
// anonymous-project flow.
func (s *Service) CreateProject() gin.HandlerFunc {
	return func(c *gin.Context) {
		const command = "create_project"
		caller := middleware.CallerID(c)
		if caller == "" {
			s.fail(c, command, fmt.Errorf("%w: project creation requires a caller identity", auth.ErrNotAuthorized))
			return
		}
		id, err := s.Store.NewProjectID()
		if err != nil {
			s.fail(c, command, err)
			return
		}
		now := time.Now()
		info := datatypes.ProjectInfo{
			OwnerID:           &caller,
			Listed:            false,
			Users:             []datatypes.ProjectUser{},
			TimestampCreated:  datatypes.TimePtr(now),
			TimestampModified: datatypes.TimePtr(now),
		}
		if err := s.Store.SaveProject(id, info); err != nil {
			s.fail(c, command, err)
			return
		}
		if err := s.Store.WriteProjectFile(id, store.DescriptionFile, defaultProjectDescription); err != nil {
			s.fail(c, command, err)
			return
		}
		s.ok(c, command, datatypes.CreateProjectResponse{Success: true, ProjectID: id})
	}
}

// DeleteProject removes a project outright (projects are not
// soft-deleted) after nulling project_id on every analysis that
// referenced it, so no analysis is left pointing at a nonexistent
// project. The fix-up runs before the directory removal: a crash in
// between leaves an empty but consistent project, retryable.
func (s *Service) DeleteProject() gin.HandlerFunc {
	return func(c *gin.Context) {
		const command = "delete_project"
		var req datatypes.ProjectIDRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, command, fmt.Errorf("%w: %v", store.ErrInvalidID, err))
			return
		}
		ctx := auth.Context{UserID: middleware.CallerID(c)}
		info, err := s.Store.LoadProject(req.ProjectID)
		if err != nil {
			s.fail(c, command, err)
			return
		}
		if err := auth.CanDeleteProject(info, ctx); err != nil {
			s.fail(c, command, err)
			return
		}

		ids, err := s.Store.ListAnalyses()
		if err != nil {
			s.fail(c, command, err)
			return
		}
		for _, id := range ids {
			if err := s.clearProjectRef(id, req.ProjectID); err != nil {
				s.fail(c, command, err)
				return
			}
		}

		if err := s.Store.RemoveProjectTree(req.ProjectID); err != nil {
			s.fail(c, command, err)
			return
		}
		s.rebuildSummary()
		s.ok(c, command, datatypes.OK())
	}
}

// clearProjectRef nulls project_id on one analysis if it references
// projectID, under that analysis's command lock.
func (s *Service) clearProjectRef(id, projectID string) error {
	defer s.analysisLocks.lock(id)()
	a, err := s.Store.LoadAnalysis(id)
	if err != nil {
		return nil
	}
	if a.ProjectID == nil || *a.ProjectID != projectID {
		return nil
	}
	a.ProjectID = nil
	a.Touch(time.Now())
	return s.Store.SaveAnalysis(id, a)
}

// SetProjectTextFile overwrites a whitelisted project blob (currently
// only the description).
func (s *Service) SetProjectTextFile() gin.HandlerFunc {
	return func(c *gin.Context) {
		const command = "set_project_text_file"
		var req datatypes.SetProjectTextFileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, command, fmt.Errorf("%w: %v", store.ErrInvalidID, err))
			return
		}
		if !store.ProjectTextFiles[req.Name] {
			s.fail(c, command, fmt.Errorf("%w: unexpected file name %q", store.ErrInvalidID, req.Name))
			return
		}
		ctx := auth.Context{UserID: middleware.CallerID(c)}
		info, err := s.Store.LoadProject(req.ProjectID)
		if err != nil {
			s.fail(c, command, err)
			return
		}
		if err := auth.CanEditProject(info, ctx); err != nil {
			s.fail(c, command, err)
			return
		}
		if err := s.Store.WriteProjectFile(req.ProjectID, req.Name, req.Text); err != nil {
			s.fail(c, command, err)
			return
		}
		info.TimestampModified = datatypes.TimePtr(time.Now())
		if err := s.Store.SaveProject(req.ProjectID, info); err != nil {
			s.fail(c, command, err)
			return
		}
		s.ok(c, command, datatypes.OK())
	}
}

// SetProjectListed toggles project visibility.
func (s *Service) SetProjectListed() gin.HandlerFunc {
	return func(c *gin.Context) {
		const command = "set_project_listed"
		var req datatypes.SetProjectListedRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, command, fmt.Errorf("%w: %v", store.ErrInvalidID, err))
			return
		}
		ctx := auth.Context{UserID: middleware.CallerID(c)}
		info, err := s.Store.LoadProject(req.ProjectID)
		if err != nil {
			s.fail(c, command, err)
			return
		}
		if err := auth.CanEditProject(info, ctx); err != nil {
			s.fail(c, command, err)
			return
		}
		info.Listed = req.Listed
		info.TimestampModified = datatypes.TimePtr(time.Now())
		if err := s.Store.SaveProject(req.ProjectID, info); err != nil {
			s.fail(c, command, err)
			return
		}
		s.ok(c, command, datatypes.OK())
	}
}

// SetAnalysisProject writes the analysis→project cross-reference. The
// caller must hold edit rights on the analysis and be a member of the
// target project; clearing the association needs only the analysis
// side.
func (s *Service) SetAnalysisProject() gin.HandlerFunc {
	return func(c *gin.Context) {
		const command = "set_analysis_project"
		var req datatypes.SetAnalysisProjectRequest
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

		// "<None>" is the legacy spelling of "no project".
		if req.ProjectID == "" || req.ProjectID == "<None>" {
			info.ProjectID = nil
		} else {
			project, err := s.Store.LoadProject(req.ProjectID)
			if err != nil {
				s.fail(c, command, err)
				return
			}
			if err := auth.CanEditProject(project, ctx); err != nil {
				s.fail(c, command, err)
				return
			}
			info.ProjectID = &req.ProjectID
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

// GetProjects lists projects. listed_only=true restricts to public
// projects; filter_by_user restricts to a user's projects and is only
// permitted for that user.
func (s *Service) GetProjects() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := middleware.CallerID(c)
		listedOnly := c.Query("listed_only") == "true"
		filterByUser := c.Query("filter_by_user")
		if filterByUser != "" && filterByUser != caller {
			c.JSON(http.StatusForbidden, datatypes.Fail("not authorized to list another user's projects"))
			return
		}

		ids, err := s.Store.ListProjects()
		if err != nil {
			c.JSON(http.StatusInternalServerError, datatypes.Fail(err.Error()))
			return
		}
		projects := []datatypes.ProjectListing{}
		for _, id := range ids {
			info, err := s.Store.LoadProject(id)
			if err != nil {
				continue
			}
			if listedOnly && !info.Listed {
				continue
			}
			if filterByUser != "" && !info.HasUser(filterByUser) {
				continue
			}
			description, _ := s.Store.ReadProjectFile(id, store.DescriptionFile)
			projects = append(projects, datatypes.ProjectListing{
				ProjectID:   id,
				Config:      info,
				Description: description,
			})
		}
		c.JSON(http.StatusOK, datatypes.GetProjectsResponse{Success: true, Projects: projects})
	}
}

// GetProjectAnalyses lists the non-deleted analyses referencing a
// project.
func (s *Service) GetProjectAnalyses() gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Param("projectId")
		if err := store.ValidateID(projectID); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.Fail(err.Error()))
			return
		}
		ids, err := s.Store.ListAnalyses()
		if err != nil {
			c.JSON(http.StatusInternalServerError, datatypes.Fail(err.Error()))
			return
		}
		analyses := []datatypes.AnalysisListing{}
		for _, id := range ids {
			info, err := s.Store.LoadAnalysis(id)
			if err != nil {
				continue
			}
			if info.Deleted {
				continue
			}
			if info.ProjectID == nil || *info.ProjectID != projectID {
				continue
			}
			description, _ := s.Store.ReadAnalysisFile(id, store.DescriptionFile)
			analyses = append(analyses, datatypes.AnalysisListing{
				AnalysisID:  id,
				Config:      info,
				Description: description,
			})
		}
		c.JSON(http.StatusOK, datatypes.GetProjectAnalysesResponse{Success: true, Analyses: analyses})
	}
}
