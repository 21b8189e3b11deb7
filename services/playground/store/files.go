// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ReadAnalysisFile returns the named analysis blob. A missing file reads
// as empty: handlers treat absent descriptions and models as empty
// content rather than failing a listing.
func (s *Store) ReadAnalysisFile(id, name string) (string, error) {
	path, err := s.analysisFilePath(id, name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read %s for analysis %s: %w", name, id, err)
	}
	return string(data), nil
}

// WriteAnalysisFile overwrites the named analysis blob atomically. The
// name must be one of the whitelisted text files or a console log.
func (s *Store) WriteAnalysisFile(id, name, text string) error {
	path, err := s.analysisFilePath(id, name)
	if err != nil {
		return err
	}
	return atomicWrite(path, []byte(text))
}

// RemoveAnalysisFile deletes the named analysis blob if present.
func (s *Store) RemoveAnalysisFile(id, name string) error {
	path, err := s.analysisFilePath(id, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s for analysis %s: %w", name, id, err)
	}
	return nil
}

func (s *Store) analysisFilePath(id, name string) (string, error) {
	dir, err := s.AnalysisDir(id)
	if err != nil {
		return "", err
	}
	switch {
	case AnalysisTextFiles[name]:
	case name == RunConsoleFile, name == CompileConsoleFile, name == DataConsoleFile, name == EditTokenFile:
	default:
		return "", fmt.Errorf("%w: unexpected file name %q", ErrInvalidID, name)
	}
	return filepath.Join(dir, name), nil
}

// ReadProjectFile returns the named project blob; missing reads as empty.
func (s *Store) ReadProjectFile(id, name string) (string, error) {
	dir, err := s.ProjectDir(id)
	if err != nil {
		return "", err
	}
	if !ProjectTextFiles[name] {
		return "", fmt.Errorf("%w: unexpected file name %q", ErrInvalidID, name)
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read %s for project %s: %w", name, id, err)
	}
	return string(data), nil
}

// WriteProjectFile overwrites the named project blob atomically.
func (s *Store) WriteProjectFile(id, name, text string) error {
	dir, err := s.ProjectDir(id)
	if err != nil {
		return err
	}
	if !ProjectTextFiles[name] {
		return fmt.Errorf("%w: unexpected file name %q", ErrInvalidID, name)
	}
	return atomicWrite(filepath.Join(dir, name), []byte(text))
}

// AnalysisEditToken reads the secret for an anonymous analysis. Missing
// token reads as empty; authorization fails closed on that.
func (s *Store) AnalysisEditToken(id string) (string, error) {
	return s.ReadAnalysisFile(id, EditTokenFile)
}

// WriteAnalysisEditToken stores the secret with owner-only permissions.
func (s *Store) WriteAnalysisEditToken(id, token string) error {
	path, err := s.analysisFilePath(id, EditTokenFile)
	if err != nil {
		return err
	}
	if err := atomicWrite(path, []byte(token)); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// CreateAnalysisTree makes the directory for a new analysis.
func (s *Store) CreateAnalysisTree(id string) error {
	dir, err := s.AnalysisDir(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create analysis directory %s: %w", id, err)
	}
	return nil
}

// CopyAnalysisTree deep-copies the blob files of one analysis into a new
// tree, skipping the record, the edit token and any console logs: the
// clone gets a fresh identity and a clean run history.
func (s *Store) CopyAnalysisTree(srcID, dstID string) error {
	srcDir, err := s.AnalysisDir(srcID)
	if err != nil {
		return err
	}
	dstDir, err := s.AnalysisDir(dstID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("create analysis directory %s: %w", dstID, err)
	}
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return fmt.Errorf("read analysis directory %s: %w", srcID, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch e.Name() {
		case AnalysisRecordFile, EditTokenFile, RunConsoleFile, CompileConsoleFile, DataConsoleFile:
			continue
		}
		if err := copyFile(filepath.Join(srcDir, e.Name()), filepath.Join(dstDir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// RemoveOutput deletes the scheduler-owned artifact directory.
func (s *Store) RemoveOutput(id string) error {
	dir, err := s.OutputDir(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove output for analysis %s: %w", id, err)
	}
	return nil
}

// ResetOutput recreates a clean artifact directory for a run.
func (s *Store) ResetOutput(id string) (string, error) {
	dir, err := s.OutputDir(id)
	if err != nil {
		return "", err
	}
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clear output for analysis %s: %w", id, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output for analysis %s: %w", id, err)
	}
	return dir, nil
}

// RemoveProjectTree deletes the whole project directory.
func (s *Store) RemoveProjectTree(id string) error {
	dir, err := s.ProjectDir(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove project %s: %w", id, err)
	}
	return nil
}

// AnalysisDataSize returns the size of the data payload in bytes, zero
// if absent.
func (s *Store) AnalysisDataSize(id string) int64 {
	dir, err := s.AnalysisDir(id)
	if err != nil {
		return 0
	}
	st, err := os.Stat(filepath.Join(dir, DataFile))
	if err != nil {
		return 0
	}
	return st.Size()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", dst, err)
	}
	return out.Close()
}
