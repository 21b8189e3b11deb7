// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flatironinstitute/stan-playground/services/playground/datatypes"
)

func owned(owner string) datatypes.AnalysisInfo {
	return datatypes.AnalysisInfo{OwnerID: datatypes.StringPtr(owner)}
}

func TestCanEditAnalysis_Owned(t *testing.T) {
	info := owned("alice")

	assert.NoError(t, CanEditAnalysis(info, "", Context{UserID: "alice"}))
	assert.ErrorIs(t, CanEditAnalysis(info, "", Context{UserID: "bob"}), ErrNotAuthorized)
	assert.ErrorIs(t, CanEditAnalysis(info, "", Context{}), ErrNotAuthorized)

	// a token never overrides ownership
	err := CanEditAnalysis(info, "secrettokenab", Context{EditToken: "secrettokenab"})
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestCanEditAnalysis_Anonymous(t *testing.T) {
	var info datatypes.AnalysisInfo

	assert.NoError(t, CanEditAnalysis(info, "secrettokenab", Context{EditToken: "secrettokenab"}))
	assert.ErrorIs(t, CanEditAnalysis(info, "secrettokenab", Context{EditToken: "wrong"}), ErrNotAuthorized)
	assert.ErrorIs(t, CanEditAnalysis(info, "secrettokenab", Context{}), ErrNotAuthorized)
}

func TestCanEditAnalysis_AnonymousWithoutStoredTokenFailsClosed(t *testing.T) {
	var info datatypes.AnalysisInfo

	assert.ErrorIs(t, CanEditAnalysis(info, "", Context{}), ErrNotAuthorized)
	// even an empty supplied token must not match an empty stored one
	assert.ErrorIs(t, CanEditAnalysis(info, "", Context{EditToken: ""}), ErrNotAuthorized)
}

func TestCanEditAnalysis_EmptyOwnerStringIsAnonymous(t *testing.T) {
	info := owned("")
	assert.NoError(t, CanEditAnalysis(info, "secrettokenab", Context{EditToken: "secrettokenab"}))
}

func TestCanEditProject(t *testing.T) {
	info := datatypes.ProjectInfo{
		OwnerID: datatypes.StringPtr("alice"),
		Users:   []datatypes.ProjectUser{{UserID: "bob"}},
	}

	assert.NoError(t, CanEditProject(info, Context{UserID: "alice"}))
	assert.NoError(t, CanEditProject(info, Context{UserID: "bob"}))
	assert.ErrorIs(t, CanEditProject(info, Context{UserID: "mallory"}), ErrNotAuthorized)
	assert.ErrorIs(t, CanEditProject(info, Context{}), ErrNotAuthorized)
}

func TestCanSetAnalysisListed(t *testing.T) {
	assert.ErrorIs(t, CanSetAnalysisListed(datatypes.AnalysisInfo{}, Context{}), ErrNotAuthorized)

	// unowned analyses may be listed by any identified caller (claim-on-list)
	assert.NoError(t, CanSetAnalysisListed(datatypes.AnalysisInfo{}, Context{UserID: "alice"}))

	assert.NoError(t, CanSetAnalysisListed(owned("alice"), Context{UserID: "alice"}))
	assert.ErrorIs(t, CanSetAnalysisListed(owned("alice"), Context{UserID: "bob"}), ErrNotAuthorized)
}

func TestCanDeleteProject(t *testing.T) {
	info := datatypes.ProjectInfo{
		OwnerID: datatypes.StringPtr("alice"),
		Users:   []datatypes.ProjectUser{{UserID: "bob"}},
	}

	assert.NoError(t, CanDeleteProject(info, Context{UserID: "alice"}))
	assert.ErrorIs(t, CanDeleteProject(info, Context{UserID: "bob"}), ErrNotAuthorized,
		"members may edit but not delete")
	assert.ErrorIs(t, CanDeleteProject(info, Context{}), ErrNotAuthorized)
}

func TestContext_Anonymous(t *testing.T) {
	assert.True(t, Context{}.Anonymous())
	assert.False(t, Context{UserID: "alice"}.Anonymous())
}
