// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package auth decides whether a caller may mutate an analysis or a
// project.
//
// Caller identity is an opaque string taken as given; there is no
// authentication protocol here. Capabilities the caller supplied with
// the request (edit token, access code) travel in an explicit Context
// value rather than as ambient parameters, so every authorization
// decision sees exactly what the caller presented.
package auth

import (
	"errors"
	"fmt"

	"github.com/flatironinstitute/stan-playground/services/playground/datatypes"
)

// ErrNotAuthorized is the kind behind every authorization failure.
// Callers check it with errors.Is; the message carries the specifics.
var ErrNotAuthorized = errors.New("not authorized")

// Context carries the caller identity and any capabilities supplied
// with a single request.
type Context struct {
	// UserID is the opaque caller identity, empty for anonymous callers.
	UserID string
	// EditToken is the secret supplied for editing an anonymous analysis.
	EditToken string
	// AccessCode is the capability supplied for gated operations.
	AccessCode string
}

// Anonymous reports whether the caller has no identity.
func (c Context) Anonymous() bool { return c.UserID == "" }

// CanEditAnalysis authorizes a mutation of an analysis.
//
// An owned analysis is editable only by its owner, regardless of any
// token supplied. An anonymous analysis is editable only when the stored
// edit token is non-empty and matches the supplied one exactly; an
// anonymous record with no stored token is an invariant violation and
// fails closed.
func CanEditAnalysis(info datatypes.AnalysisInfo, storedEditToken string, ctx Context) error {
	if info.OwnerID != nil && *info.OwnerID != "" {
		if ctx.UserID != *info.OwnerID {
			return fmt.Errorf("%w: caller is not the owner of this analysis", ErrNotAuthorized)
		}
		return nil
	}
	if storedEditToken == "" {
		return fmt.Errorf("%w: anonymous analysis has no edit token on record", ErrNotAuthorized)
	}
	if ctx.EditToken != storedEditToken {
		return fmt.Errorf("%w: edit token does not match", ErrNotAuthorized)
	}
	return nil
}

// CanEditProject authorizes a mutation of a project: the caller must be
// the owner or a member.
func CanEditProject(info datatypes.ProjectInfo, ctx Context) error {
	if ctx.Anonymous() {
		return fmt.Errorf("%w: project operations require a caller identity", ErrNotAuthorized)
	}
	if !info.HasUser(ctx.UserID) {
		return fmt.Errorf("%w: caller %s is not a member of this project", ErrNotAuthorized, ctx.UserID)
	}
	return nil
}

// CanSetAnalysisListed authorizes a visibility toggle. Listing requires
// a caller identity even when a token would otherwise permit edits, and
// either an unowned record (claim-on-list) or a matching owner.
func CanSetAnalysisListed(info datatypes.AnalysisInfo, ctx Context) error {
	if ctx.Anonymous() {
		return fmt.Errorf("%w: listing requires a caller identity", ErrNotAuthorized)
	}
	if info.OwnerID != nil && *info.OwnerID != "" && *info.OwnerID != ctx.UserID {
		return fmt.Errorf("%w: analysis is owned by another user", ErrNotAuthorized)
	}
	return nil
}

// CanDeleteProject authorizes project deletion, which is reserved to the
// owner (members may edit but not delete).
func CanDeleteProject(info datatypes.ProjectInfo, ctx Context) error {
	if ctx.Anonymous() {
		return fmt.Errorf("%w: project operations require a caller identity", ErrNotAuthorized)
	}
	if info.OwnerID == nil || *info.OwnerID != ctx.UserID {
		return fmt.Errorf("%w: only the project owner may delete it", ErrNotAuthorized)
	}
	return nil
}
