// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package lifecycle is the authoritative status state machine for an
// analysis. Every status change, caller-issued or scheduler-internal,
// goes through the transition functions here; a guard failure is an
// InvalidTransitionError and the record is left untouched.
//
// The guard is also the serialization mechanism between racing commands:
// two callers enqueueing the same analysis both read status none, but
// only the first save wins — the loser reloads, sees queued, and its
// guard check fails instead of silently clobbering state.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/flatironinstitute/stan-playground/services/playground/datatypes"
)

// InvalidTransitionError reports a status change attempted from a state
// the transition table does not permit. It carries both statuses because
// that pair is what an operator needs to diagnose a double submission or
// an attempt to clear state under a running job.
type InvalidTransitionError struct {
	Current   datatypes.Status
	Requested datatypes.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("unable to set status to %q because current status is %q", e.Requested, e.Current)
}

// CallerInvocable reports whether a caller may request the transition to
// target via set_status. Only queued (enqueue) and none (reset) are
// caller-facing; running/completed/failed are scheduler-internal.
func CallerInvocable(target datatypes.Status) bool {
	return target == datatypes.StatusQueued || target == datatypes.StatusNone
}

// Enqueue moves none → queued: clears any prior error and stamps the
// queued and modified times. Authorization and the access-code gate are
// the caller's responsibility; this function only enforces the status
// guard and field effects.
func Enqueue(info *datatypes.AnalysisInfo, now time.Time) error {
	if info.Status != datatypes.StatusNone {
		return &InvalidTransitionError{Current: info.Status, Requested: datatypes.StatusQueued}
	}
	info.Status = datatypes.StatusQueued
	info.Error = nil
	info.TimestampQueued = datatypes.TimePtr(now)
	info.Touch(now)
	return nil
}

// Start moves queued → running (scheduler-internal): stamps the start
// time and clears stale terminal stamps from a previous run.
func Start(info *datatypes.AnalysisInfo, now time.Time) error {
	if info.Status != datatypes.StatusQueued {
		return &InvalidTransitionError{Current: info.Status, Requested: datatypes.StatusRunning}
	}
	info.Status = datatypes.StatusRunning
	info.TimestampStarted = datatypes.TimePtr(now)
	info.TimestampCompleted = nil
	info.TimestampFailed = nil
	info.Touch(now)
	return nil
}

// Complete moves running → completed (scheduler-internal).
func Complete(info *datatypes.AnalysisInfo, now time.Time) error {
	if info.Status != datatypes.StatusRunning {
		return &InvalidTransitionError{Current: info.Status, Requested: datatypes.StatusCompleted}
	}
	info.Status = datatypes.StatusCompleted
	info.TimestampCompleted = datatypes.TimePtr(now)
	info.Touch(now)
	return nil
}

// Fail moves running → failed (scheduler-internal), storing the error
// text verbatim for operator visibility.
func Fail(info *datatypes.AnalysisInfo, now time.Time, message string) error {
	if info.Status != datatypes.StatusRunning {
		return &InvalidTransitionError{Current: info.Status, Requested: datatypes.StatusFailed}
	}
	info.Status = datatypes.StatusFailed
	info.Error = &message
	info.TimestampFailed = datatypes.TimePtr(now)
	info.Touch(now)
	return nil
}

// Reset moves completed/failed/queued → none, nulling every run
// timestamp and the error. The caller removes the output directory and
// the run console log alongside. Resetting from running is forbidden:
// that is the safety net against clearing state under an in-flight job.
// The superseded requested state resets like queued so legacy records
// are recoverable.
func Reset(info *datatypes.AnalysisInfo, now time.Time) error {
	switch info.Status {
	case datatypes.StatusCompleted, datatypes.StatusFailed, datatypes.StatusQueued, datatypes.StatusRequested:
	default:
		return &InvalidTransitionError{Current: info.Status, Requested: datatypes.StatusNone}
	}
	info.Status = datatypes.StatusNone
	info.ClearRunState()
	info.Touch(now)
	return nil
}
