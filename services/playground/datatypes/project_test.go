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

func TestProjectInfo_HasUser(t *testing.T) {
	info := ProjectInfo{
		OwnerID: StringPtr("alice"),
		Users: []ProjectUser{
			{UserID: "bob"},
			{UserID: "carol", Role: "viewer"},
		},
	}
	assert.True(t, info.HasUser("alice"), "owner counts as a member")
	assert.True(t, info.HasUser("bob"))
	assert.True(t, info.HasUser("carol"))
	assert.False(t, info.HasUser("mallory"))
	assert.False(t, info.HasUser(""), "anonymous is never a member")
}

func TestProjectInfo_EncodeDecodeRoundTrip(t *testing.T) {
	info := ProjectInfo{
		OwnerID: StringPtr("alice"),
		Listed:  true,
		Users:   []ProjectUser{{UserID: "bob", Role: "editor"}},
	}
	data, err := info.Encode()
	require.NoError(t, err)

	decoded, err := DecodeProjectInfo(data)
	require.NoError(t, err)
	assert.Equal(t, "alice", *decoded.OwnerID)
	assert.True(t, decoded.Listed)
	require.Len(t, decoded.Users, 1)
	assert.Equal(t, "bob", decoded.Users[0].UserID)
	assert.Equal(t, "editor", decoded.Users[0].Role)
}
