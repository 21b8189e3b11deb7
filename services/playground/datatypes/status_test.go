// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"", StatusNone},
		{"none", StatusNone},
		{"queued", StatusQueued},
		{"running", StatusRunning},
		{"completed", StatusCompleted},
		{"failed", StatusFailed},
		{"requested", StatusRequested},
		// legacy spellings from older records
		{"finished", StatusCompleted},
		{"error", StatusFailed},
	}
	for _, tt := range tests {
		t.Run("raw="+tt.raw, func(t *testing.T) {
			got, err := NormalizeStatus(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeStatus_Unknown(t *testing.T) {
	_, err := NormalizeStatus("exploded")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exploded")
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range []Status{StatusNone, StatusQueued, StatusRunning, StatusCompleted, StatusFailed, StatusRequested} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, Status("finished").Valid(), "legacy spellings are normalized, not valid")
	assert.False(t, Status("").Valid())
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusNone.Terminal())
}
