// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// ErrInvalidID reports an identifier that failed syntax validation.
// Untrusted identifiers never reach path construction unvalidated.
var ErrInvalidID = errors.New("invalid identifier")

const (
	analysisIDChars = "abcdefghijklmnopqrstuvwxyz0123456789"
	projectIDChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	editTokenChars  = "abcdefghijklmnopqrstuvwxyz"

	analysisIDLen = 8
	projectIDLen  = 8
	editTokenLen  = 12

	// idAttempts bounds rejection sampling against existing directories.
	// With 36^8 possible ids a collision is already negligible; the
	// retry loop makes it impossible short of a full store.
	idAttempts = 20
)

// ValidateID checks the opaque-id charset (alphanumeric or underscore,
// non-empty). Anything else is a traversal risk and is rejected before
// any filesystem interaction.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	for _, c := range id {
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' {
			continue
		}
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// NewAnalysisID allocates a fresh analysis id, rejection-sampled against
// existing analysis directories.
func (s *Store) NewAnalysisID() (string, error) {
	for i := 0; i < idAttempts; i++ {
		id := randomString(analysisIDChars, analysisIDLen)
		if !s.AnalysisExists(id) {
			return id, nil
		}
	}
	return "", errors.New("exhausted attempts allocating an analysis id")
}

// NewProjectID allocates a fresh project id.
func (s *Store) NewProjectID() (string, error) {
	for i := 0; i < idAttempts; i++ {
		id := randomString(projectIDChars, projectIDLen)
		if !s.ProjectExists(id) {
			return id, nil
		}
	}
	return "", errors.New("exhausted attempts allocating a project id")
}

// NewEditToken mints the secret granting edit rights over an anonymous
// analysis.
func NewEditToken() string {
	return randomString(editTokenChars, editTokenLen)
}

func randomString(charset string, n int) string {
	max := big.NewInt(int64(len(charset)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failure means the platform entropy source is
			// broken; nothing sensible to do but stop.
			panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
		}
		out[i] = charset[idx.Int64()]
	}
	return string(out)
}
