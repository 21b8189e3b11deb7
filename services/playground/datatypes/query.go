// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// Response is the base result shape every command returns. Failures are
// reported in-band as {success:false, error:...} rather than as
// transport-level faults; the HTTP status stays meaningful but clients
// only need to look at the body.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// OK is the canonical success response.
func OK() Response { return Response{Success: true} }

// Fail wraps an error message into the standard failure shape.
func Fail(msg string) Response { return Response{Success: false, Error: msg} }

// --- Analysis commands ---

type CreateAnalysisRequest struct {
	ProjectID string `json:"project_id,omitempty"`
}

type CreateAnalysisResponse struct {
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
	NewAnalysisID string `json:"newAnalysisId,omitempty"`
	EditToken     string `json:"editToken,omitempty"`
}

type CloneAnalysisRequest struct {
	AnalysisID string `json:"analysis_id" binding:"required"`
}

type AnalysisIDRequest struct {
	AnalysisID string `json:"analysis_id" binding:"required"`
	EditToken  string `json:"edit_token,omitempty"`
}

type SetAnalysisTextFileRequest struct {
	AnalysisID string `json:"analysis_id" binding:"required"`
	EditToken  string `json:"edit_token,omitempty"`
	Name       string `json:"name" binding:"required"`
	Text       string `json:"text"`
}

type SetAnalysisStatusRequest struct {
	AnalysisID string `json:"analysis_id" binding:"required"`
	EditToken  string `json:"edit_token,omitempty"`
	Status     string `json:"status" binding:"required"`
	AccessCode string `json:"access_code,omitempty"`
}

type SetAnalysisListedRequest struct {
	AnalysisID string `json:"analysis_id" binding:"required"`
	EditToken  string `json:"edit_token,omitempty"`
	Listed     bool   `json:"listed"`
}

// SetAnalysisProjectRequest associates an analysis with a project. An
// empty or "<None>" project id clears the association.
type SetAnalysisProjectRequest struct {
	AnalysisID string `json:"analysis_id" binding:"required"`
	EditToken  string `json:"edit_token,omitempty"`
	ProjectID  string `json:"project_id"`
}

type GenerateAnalysisDataRequest struct {
	AnalysisID string `json:"analysis_id" binding:"required"`
	EditToken  string `json:"edit_token,omitempty"`
	AccessCode string `json:"access_code,omitempty"`
}

// --- Project commands ---

type CreateProjectResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
}

type ProjectIDRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
}

type SetProjectTextFileRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
	Name      string `json:"name" binding:"required"`
	Text      string `json:"text"`
}

type SetProjectListedRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
	Listed    bool   `json:"listed"`
}

// --- Listings ---

// ProjectListing is one entry in a get_projects response: the record
// plus the project description text.
type ProjectListing struct {
	ProjectID   string      `json:"project_id"`
	Config      ProjectInfo `json:"config"`
	Description string      `json:"description"`
}

type GetProjectsResponse struct {
	Success  bool             `json:"success"`
	Error    string           `json:"error,omitempty"`
	Projects []ProjectListing `json:"projects"`
}

// AnalysisListing is one entry in a get_project_analyses response.
type AnalysisListing struct {
	AnalysisID  string       `json:"analysis_id"`
	Config      AnalysisInfo `json:"config"`
	Description string       `json:"description"`
}

type GetProjectAnalysesResponse struct {
	Success  bool              `json:"success"`
	Error    string            `json:"error,omitempty"`
	Analyses []AnalysisListing `json:"analyses"`
}
