// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package accesscode

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(t *testing.T, now time.Time) (*Gate, *time.Time) {
	t.Helper()
	clock := now
	g := NewWithClock(filepath.Join(t.TempDir(), ".access_codes.json"), func() time.Time {
		return clock
	})
	return g, &clock
}

func TestIssue_Shape(t *testing.T) {
	now := time.Unix(1700000000, 0)
	g, _ := newTestGate(t, now)

	code, err := g.Issue(time.Hour)
	require.NoError(t, err)

	i := strings.LastIndex(code, ".")
	require.Positive(t, i)
	assert.Len(t, code[:i], 12)
	assert.Equal(t, fmt.Sprintf("%d", now.Add(time.Hour).Unix()), code[i+1:])
}

func TestIssue_ZeroTTLDefaults(t *testing.T) {
	now := time.Unix(1700000000, 0)
	g, _ := newTestGate(t, now)

	code, err := g.Issue(0)
	require.NoError(t, err)
	assert.True(t, g.IsValid(code))
	assert.True(t, strings.HasSuffix(code, fmt.Sprintf(".%d", now.Add(DefaultTTL).Unix())))
}

func TestIsValid_Lifecycle(t *testing.T) {
	g, clock := newTestGate(t, time.Unix(1700000000, 0))

	code, err := g.Issue(time.Hour)
	require.NoError(t, err)

	assert.True(t, g.IsValid(code))

	*clock = clock.Add(2 * time.Hour)
	assert.False(t, g.IsValid(code), "expired code is rejected")
}

func TestIsValid_UnknownCode(t *testing.T) {
	g, _ := newTestGate(t, time.Unix(1700000000, 0))

	// well-formed, unexpired, but never issued by this gate
	forged := fmt.Sprintf("abcdefghijkl.%d", time.Unix(1700000000, 0).Add(time.Hour).Unix())
	assert.False(t, g.IsValid(forged))
}

func TestIsValid_Garbage(t *testing.T) {
	g, _ := newTestGate(t, time.Unix(1700000000, 0))
	assert.False(t, g.IsValid(""))
	assert.False(t, g.IsValid("no-separator"))
	assert.False(t, g.IsValid("secret.notanumber"))
}

func TestIssue_CompactsExpiredCodes(t *testing.T) {
	g, clock := newTestGate(t, time.Unix(1700000000, 0))

	old, err := g.Issue(time.Minute)
	require.NoError(t, err)
	*clock = clock.Add(time.Hour)

	fresh, err := g.Issue(time.Hour)
	require.NoError(t, err)

	data, err := os.ReadFile(g.path)
	require.NoError(t, err)
	var persisted []string
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Equal(t, []string{fresh}, persisted)
	assert.NotContains(t, persisted, old)
}

func TestIssue_MultipleOutstanding(t *testing.T) {
	g, _ := newTestGate(t, time.Unix(1700000000, 0))

	a, err := g.Issue(time.Hour)
	require.NoError(t, err)
	b, err := g.Issue(2 * time.Hour)
	require.NoError(t, err)

	assert.True(t, g.IsValid(a))
	assert.True(t, g.IsValid(b))
}

func TestLoadLive_CorruptFileErrors(t *testing.T) {
	g, _ := newTestGate(t, time.Unix(1700000000, 0))
	require.NoError(t, os.WriteFile(g.path, []byte("{not json"), 0o644))

	_, err := g.Issue(time.Hour)
	assert.Error(t, err)
	assert.False(t, g.IsValid("anything.123"))
}
