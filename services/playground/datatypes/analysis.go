// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"time"

	"gopkg.in/yaml.v3"
)

// AnalysisInfo is the persisted record for one analysis
// (analyses/<id>/analysis.yaml).
//
// Timestamps are Unix seconds with sub-second precision, pointer-typed
// because each is meaningful only in particular lifecycle states.
// OwnerID and the on-disk edit token are mutually exclusive editor
// identities: an owned analysis has OwnerID set, an anonymous one has an
// edit token file next to the record instead.
type AnalysisInfo struct {
	Status    Status  `yaml:"status" json:"status"`
	Error     *string `yaml:"error,omitempty" json:"error,omitempty"`
	OwnerID   *string `yaml:"owner_id" json:"owner_id"`
	ProjectID *string `yaml:"project_id,omitempty" json:"project_id,omitempty"`
	Listed    bool    `yaml:"listed" json:"listed"`
	Deleted   bool    `yaml:"deleted,omitempty" json:"deleted,omitempty"`

	TimestampCreated   *float64 `yaml:"timestamp_created,omitempty" json:"timestamp_created,omitempty"`
	TimestampModified  *float64 `yaml:"timestamp_modified,omitempty" json:"timestamp_modified,omitempty"`
	TimestampQueued    *float64 `yaml:"timestamp_queued,omitempty" json:"timestamp_queued,omitempty"`
	TimestampStarted   *float64 `yaml:"timestamp_started,omitempty" json:"timestamp_started,omitempty"`
	TimestampCompleted *float64 `yaml:"timestamp_completed,omitempty" json:"timestamp_completed,omitempty"`
	TimestampFailed    *float64 `yaml:"timestamp_failed,omitempty" json:"timestamp_failed,omitempty"`
}

// analysisInfoDoc mirrors AnalysisInfo with the raw status string and the
// legacy user_id key. Decoding goes through this shape so normalization
// happens at the storage boundary, not at use sites.
type analysisInfoDoc struct {
	Status    string  `yaml:"status"`
	Error     *string `yaml:"error"`
	OwnerID   *string `yaml:"owner_id"`
	UserID    *string `yaml:"user_id"` // legacy spelling of owner_id
	ProjectID *string `yaml:"project_id"`
	Listed    bool    `yaml:"listed"`
	Deleted   bool    `yaml:"deleted"`

	TimestampCreated   *float64 `yaml:"timestamp_created"`
	TimestampModified  *float64 `yaml:"timestamp_modified"`
	TimestampQueued    *float64 `yaml:"timestamp_queued"`
	TimestampStarted   *float64 `yaml:"timestamp_started"`
	TimestampCompleted *float64 `yaml:"timestamp_completed"`
	TimestampFailed    *float64 `yaml:"timestamp_failed"`
}

// DecodeAnalysisInfo parses an analysis.yaml document, normalizing the
// status enum and the legacy user_id field. An empty document decodes to
// a zero record with status none.
func DecodeAnalysisInfo(data []byte) (AnalysisInfo, error) {
	var doc analysisInfoDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return AnalysisInfo{}, err
	}
	status, err := NormalizeStatus(doc.Status)
	if err != nil {
		return AnalysisInfo{}, err
	}
	owner := doc.OwnerID
	if owner == nil {
		owner = doc.UserID
	}
	return AnalysisInfo{
		Status:             status,
		Error:              doc.Error,
		OwnerID:            owner,
		ProjectID:          doc.ProjectID,
		Listed:             doc.Listed,
		Deleted:            doc.Deleted,
		TimestampCreated:   doc.TimestampCreated,
		TimestampModified:  doc.TimestampModified,
		TimestampQueued:    doc.TimestampQueued,
		TimestampStarted:   doc.TimestampStarted,
		TimestampCompleted: doc.TimestampCompleted,
		TimestampFailed:    doc.TimestampFailed,
	}, nil
}

// Encode serializes the record for persistence.
func (a AnalysisInfo) Encode() ([]byte, error) {
	return yaml.Marshal(a)
}

// Touch stamps timestamp_modified with the current time.
func (a *AnalysisInfo) Touch(now time.Time) {
	a.TimestampModified = TimePtr(now)
}

// ClearRunState nulls every run-related timestamp and the error message.
// Used when an analysis is reset to none.
func (a *AnalysisInfo) ClearRunState() {
	a.Error = nil
	a.TimestampQueued = nil
	a.TimestampStarted = nil
	a.TimestampCompleted = nil
	a.TimestampFailed = nil
}

// TimePtr converts a time to the persisted Unix-seconds representation.
func TimePtr(t time.Time) *float64 {
	v := float64(t.UnixNano()) / float64(time.Second)
	return &v
}

// StringPtr returns a pointer to s. Convenience for optional fields.
func StringPtr(s string) *string { return &s }
