// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the persisted record types and the query
// envelopes exchanged with the playground service.
//
// Records are stored as YAML documents on disk (analysis.yaml,
// project.yaml, options.yaml). All decoding goes through this package so
// legacy field spellings are normalized in exactly one place.
package datatypes

import "fmt"

// Status is the lifecycle state of an analysis.
//
// The closed set of states is:
//
//	none → queued → running → {completed | failed}
//
// with none reachable again from completed/failed/queued via an explicit
// reset. The deleted flag on AnalysisInfo is orthogonal to Status.
type Status string

const (
	StatusNone      Status = "none"
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"

	// StatusRequested is a superseded intermediate state from the older
	// two-step queue flow. It is still accepted on decode so old records
	// remain readable, but no new transition produces it.
	StatusRequested Status = "requested"
)

// NormalizeStatus maps a persisted status string onto the closed enum.
// Legacy spellings from older records are folded into their modern
// equivalents: "finished" → completed, "error" → failed. An empty string
// decodes as none (records created before the status field existed).
func NormalizeStatus(raw string) (Status, error) {
	switch raw {
	case "", string(StatusNone):
		return StatusNone, nil
	case string(StatusQueued):
		return StatusQueued, nil
	case string(StatusRunning):
		return StatusRunning, nil
	case string(StatusCompleted), "finished":
		return StatusCompleted, nil
	case string(StatusFailed), "error":
		return StatusFailed, nil
	case string(StatusRequested):
		return StatusRequested, nil
	default:
		return StatusNone, fmt.Errorf("unknown analysis status %q", raw)
	}
}

// Valid reports whether s is a member of the closed status set.
func (s Status) Valid() bool {
	switch s {
	case StatusNone, StatusQueued, StatusRunning, StatusCompleted, StatusFailed, StatusRequested:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal run state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}
