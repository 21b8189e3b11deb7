// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateID(t *testing.T) {
	for _, id := range []string{"abc123xy", "PROJABCD", "with_underscore", "A1"} {
		assert.NoError(t, ValidateID(id), id)
	}
	for _, id := range []string{"", "..", "a/b", "a\\b", "a.b", "a b", "a-b", "héllo"} {
		assert.ErrorIs(t, ValidateID(id), ErrInvalidID, "id=%q", id)
	}
}

func TestNewAnalysisID_Shape(t *testing.T) {
	s := newTestStore(t)
	id, err := s.NewAnalysisID()
	require.NoError(t, err)
	assert.Len(t, id, 8)
	assert.NoError(t, ValidateID(id))
	assert.Equal(t, strings.ToLower(id), id, "analysis ids are lowercase")
}

func TestNewProjectID_Shape(t *testing.T) {
	s := newTestStore(t)
	id, err := s.NewProjectID()
	require.NoError(t, err)
	assert.Len(t, id, 8)
	assert.Equal(t, strings.ToUpper(id), id, "project ids are uppercase")
}

func TestNewEditToken_Shape(t *testing.T) {
	token := NewEditToken()
	assert.Len(t, token, 12)
	for _, c := range token {
		assert.True(t, c >= 'a' && c <= 'z', "token chars are lowercase letters, got %q", c)
	}
}

func TestNewAnalysisID_AvoidsCollisions(t *testing.T) {
	s := newTestStore(t)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id, err := s.NewAnalysisID()
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
		require.NoError(t, s.CreateAnalysisTree(id))
	}
}
