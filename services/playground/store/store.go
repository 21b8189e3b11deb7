// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store is the durable entity store: analyses and projects as
// directory trees of YAML records and text blobs under a single data
// directory.
//
// Layout:
//
//	analyses/<id>/{analysis.yaml, .edit_token, main.stan, data.json,
//	               data.py, description.md, options.yaml,
//	               run.console.txt, compile.console.txt}
//	projects/<id>/{project.yaml, description.md}
//	output/<id>/            run artifacts, owned by the scheduler
//	.access_codes.json      outstanding access codes
//	summary.json            derived projection
//
// There is no in-process locking shared between the command path and the
// scheduler; every record save is write-temp-then-rename so a concurrent
// reader never observes a half-written document. That atomic save plus
// the lifecycle status guards are the whole coordination story.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/flatironinstitute/stan-playground/services/playground/datatypes"
)

// Analysis blob file names. Only these names are reachable through the
// text-file operations; anything else is rejected before path
// construction.
const (
	AnalysisRecordFile = "analysis.yaml"
	EditTokenFile      = ".edit_token"
	ModelFile          = "main.stan"
	DataFile           = "data.json"
	DataProgramFile    = "data.py"
	DescriptionFile    = "description.md"
	OptionsFile        = "options.yaml"
	RunConsoleFile     = "run.console.txt"
	CompileConsoleFile = "compile.console.txt"
	DataConsoleFile    = "data.console.txt"

	ProjectRecordFile = "project.yaml"

	AccessCodesFile = ".access_codes.json"
	SummaryFile     = "summary.json"
)

// AnalysisTextFiles is the whitelist of caller-writable analysis blobs.
var AnalysisTextFiles = map[string]bool{
	ModelFile:       true,
	DataFile:        true,
	DataProgramFile: true,
	DescriptionFile: true,
	OptionsFile:     true,
}

// ProjectTextFiles is the whitelist of caller-writable project blobs.
var ProjectTextFiles = map[string]bool{
	DescriptionFile: true,
}

// ErrNotFound reports a record whose directory or required document does
// not exist.
var ErrNotFound = errors.New("record not found")

// Store reads and writes the entities under one data directory.
type Store struct {
	dir string
}

// New opens (creating if needed) the data directory layout rooted at dir.
func New(dir string) (*Store, error) {
	for _, sub := range []string{"analyses", "projects", "output"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", sub, err)
		}
	}
	return &Store{dir: dir}, nil
}

// Dir returns the data directory root.
func (s *Store) Dir() string { return s.dir }

// AnalysesDir returns the directory holding all analysis trees.
func (s *Store) AnalysesDir() string { return filepath.Join(s.dir, "analyses") }

// ProjectsDir returns the directory holding all project trees.
func (s *Store) ProjectsDir() string { return filepath.Join(s.dir, "projects") }

// AnalysisDir returns the tree for one analysis after id validation.
func (s *Store) AnalysisDir(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, "analyses", id), nil
}

// ProjectDir returns the tree for one project after id validation.
func (s *Store) ProjectDir(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, "projects", id), nil
}

// OutputDir returns the run-artifact directory for one analysis.
func (s *Store) OutputDir(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, "output", id), nil
}

// AnalysisExists reports whether the analysis tree is present.
func (s *Store) AnalysisExists(id string) bool {
	dir, err := s.AnalysisDir(id)
	if err != nil {
		return false
	}
	st, err := os.Stat(dir)
	return err == nil && st.IsDir()
}

// ProjectExists reports whether the project tree is present.
func (s *Store) ProjectExists(id string) bool {
	dir, err := s.ProjectDir(id)
	if err != nil {
		return false
	}
	st, err := os.Stat(dir)
	return err == nil && st.IsDir()
}

// LoadAnalysis reads the analysis record. A missing record file decodes
// to the zero record (status none); a missing directory is ErrNotFound.
func (s *Store) LoadAnalysis(id string) (datatypes.AnalysisInfo, error) {
	dir, err := s.AnalysisDir(id)
	if err != nil {
		return datatypes.AnalysisInfo{}, err
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return datatypes.AnalysisInfo{}, fmt.Errorf("analysis %s: %w", id, ErrNotFound)
	}
	data, err := os.ReadFile(filepath.Join(dir, AnalysisRecordFile))
	if err != nil {
		if os.IsNotExist(err) {
			return datatypes.AnalysisInfo{Status: datatypes.StatusNone}, nil
		}
		return datatypes.AnalysisInfo{}, fmt.Errorf("read analysis record %s: %w", id, err)
	}
	info, err := datatypes.DecodeAnalysisInfo(data)
	if err != nil {
		return datatypes.AnalysisInfo{}, fmt.Errorf("decode analysis record %s: %w", id, err)
	}
	return info, nil
}

// SaveAnalysis persists the analysis record atomically.
func (s *Store) SaveAnalysis(id string, info datatypes.AnalysisInfo) error {
	dir, err := s.AnalysisDir(id)
	if err != nil {
		return err
	}
	data, err := info.Encode()
	if err != nil {
		return fmt.Errorf("encode analysis record %s: %w", id, err)
	}
	return atomicWrite(filepath.Join(dir, AnalysisRecordFile), data)
}

// LoadProject reads the project record. A missing directory or record
// is ErrNotFound: unlike analyses, a project without its record is not
// a usable entity (every project operation is permission gated on it).
func (s *Store) LoadProject(id string) (datatypes.ProjectInfo, error) {
	dir, err := s.ProjectDir(id)
	if err != nil {
		return datatypes.ProjectInfo{}, err
	}
	data, err := os.ReadFile(filepath.Join(dir, ProjectRecordFile))
	if err != nil {
		if os.IsNotExist(err) {
			return datatypes.ProjectInfo{}, fmt.Errorf("project %s: %w", id, ErrNotFound)
		}
		return datatypes.ProjectInfo{}, fmt.Errorf("read project record %s: %w", id, err)
	}
	info, err := datatypes.DecodeProjectInfo(data)
	if err != nil {
		return datatypes.ProjectInfo{}, fmt.Errorf("decode project record %s: %w", id, err)
	}
	return info, nil
}

// SaveProject persists the project record atomically.
func (s *Store) SaveProject(id string, info datatypes.ProjectInfo) error {
	dir, err := s.ProjectDir(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create project directory %s: %w", id, err)
	}
	data, err := info.Encode()
	if err != nil {
		return fmt.Errorf("encode project record %s: %w", id, err)
	}
	return atomicWrite(filepath.Join(dir, ProjectRecordFile), data)
}

// ListAnalyses returns the ids of every analysis tree, sorted.
func (s *Store) ListAnalyses() ([]string, error) {
	return listDirs(s.AnalysesDir())
}

// ListProjects returns the ids of every project tree, sorted.
func (s *Store) ListProjects() ([]string, error) {
	return listDirs(s.ProjectsDir())
}

func listDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// atomicWrite lands data at path via a temp file and rename so readers
// never see a partial document.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp into %s: %w", path, err)
	}
	return nil
}
