// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package accesscode issues and validates the short-lived capability
// tokens required for the two operations that spend compute and trust:
// executing a data-generation program and queueing a run.
//
// A code is "<secret>.<expiry-epoch>". Validation parses the expiry,
// compares against the clock, and requires the code be present in the
// persisted outstanding list — a well-formed code that was never issued
// is invalid. The list is compacted (expired entries dropped) on every
// issue and every check, which bounds its growth without a separate
// sweep. Codes are never individually revoked; they only expire.
package accesscode

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultTTL is how long an issued code stays valid.
const DefaultTTL = time.Hour

const (
	secretChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	secretLen   = 12
)

// Gate persists outstanding codes in a single JSON list at the data
// directory root. The clock is injectable for tests.
type Gate struct {
	path string
	now  func() time.Time
}

// New creates a gate persisting to codesFile (normally
// <dir>/.access_codes.json).
func New(codesFile string) *Gate {
	return &Gate{path: codesFile, now: time.Now}
}

// NewWithClock creates a gate with an injected clock.
func NewWithClock(codesFile string, now func() time.Time) *Gate {
	return &Gate{path: codesFile, now: now}
}

// Issue mints a code valid for ttl (DefaultTTL when ttl is zero or
// negative), appends it to the outstanding list (dropping expired
// entries first) and returns it.
func (g *Gate) Issue(ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	codes, err := g.loadLive()
	if err != nil {
		return "", err
	}
	expiry := g.now().Add(ttl).Unix()
	code := fmt.Sprintf("%s.%d", randomSecret(), expiry)
	codes = append(codes, code)
	if err := g.save(codes); err != nil {
		return "", err
	}
	return code, nil
}

// IsValid reports whether code was issued here and has not expired.
func (g *Gate) IsValid(code string) bool {
	expiry, ok := parseExpiry(code)
	if !ok || !expiry.After(g.now()) {
		return false
	}
	codes, err := g.loadLive()
	if err != nil {
		return false
	}
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// loadLive reads the outstanding list with expired entries dropped.
func (g *Gate) loadLive() ([]string, error) {
	data, err := os.ReadFile(g.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read access codes: %w", err)
	}
	var codes []string
	if err := json.Unmarshal(data, &codes); err != nil {
		return nil, fmt.Errorf("decode access codes: %w", err)
	}
	now := g.now()
	live := codes[:0]
	for _, c := range codes {
		if expiry, ok := parseExpiry(c); ok && expiry.After(now) {
			live = append(live, c)
		}
	}
	return live, nil
}

func (g *Gate) save(codes []string) error {
	if codes == nil {
		codes = []string{}
	}
	data, err := json.Marshal(codes)
	if err != nil {
		return fmt.Errorf("encode access codes: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(g.path), ".access_codes.tmp-*")
	if err != nil {
		return fmt.Errorf("write access codes: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write access codes: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write access codes: %w", err)
	}
	if err := os.Rename(tmp.Name(), g.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write access codes: %w", err)
	}
	return nil
}

func parseExpiry(code string) (time.Time, bool) {
	i := strings.LastIndex(code, ".")
	if i < 0 {
		return time.Time{}, false
	}
	epoch, err := strconv.ParseInt(code[i+1:], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(epoch, 0), true
}

func randomSecret() string {
	max := big.NewInt(int64(len(secretChars)))
	out := make([]byte, secretLen)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
		}
		out[i] = secretChars[idx.Int64()]
	}
	return string(out)
}
