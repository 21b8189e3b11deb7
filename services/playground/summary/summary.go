// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package summary maintains the derived summary.json projection: a
// read-only listing of analyses with their descriptions, model programs
// and options embedded, consumed by external viewers.
//
// The projection is a cache, never a source of truth. Rebuilding is
// idempotent and side-effect-free beyond its own output file, so every
// mutation path invokes it unconditionally instead of tracking dirtiness.
package summary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flatironinstitute/stan-playground/services/playground/datatypes"
	"github.com/flatironinstitute/stan-playground/services/playground/store"
	"gopkg.in/yaml.v3"
)

// Entry is one analysis in the projection.
type Entry struct {
	AnalysisID  string                 `json:"analysis_id"`
	Title       string                 `json:"title"`
	Status      datatypes.Status       `json:"status"`
	DataSize    int64                  `json:"data_size"`
	Info        datatypes.AnalysisInfo `json:"info"`
	Description string                 `json:"description"`
	StanProgram string                 `json:"stan_program"`
	DataProgram string                 `json:"data_program,omitempty"`
	Options     map[string]any         `json:"options"`
}

// Document is the full summary.json payload.
type Document struct {
	Analyses []Entry `json:"analyses"`
}

// Options selects what the projection includes.
type Options struct {
	// ListedOnly restricts the projection to analyses flagged listed.
	// Deleted analyses are excluded either way.
	ListedOnly bool
}

// Build reads every analysis and rewrites summary.json atomically.
func Build(s *store.Store, opts Options) error {
	ids, err := s.ListAnalyses()
	if err != nil {
		return fmt.Errorf("build summary: %w", err)
	}
	doc := Document{Analyses: []Entry{}}
	for _, id := range ids {
		info, err := s.LoadAnalysis(id)
		if err != nil {
			// A malformed record should not take the whole projection
			// down; skip it and let the next rebuild pick it up.
			continue
		}
		if info.Deleted {
			continue
		}
		if opts.ListedOnly && !info.Listed {
			continue
		}
		description, _ := s.ReadAnalysisFile(id, store.DescriptionFile)
		program, _ := s.ReadAnalysisFile(id, store.ModelFile)
		dataProgram, _ := s.ReadAnalysisFile(id, store.DataProgramFile)
		optionsText, _ := s.ReadAnalysisFile(id, store.OptionsFile)

		options := map[string]any{}
		if optionsText != "" {
			if err := yaml.Unmarshal([]byte(optionsText), &options); err != nil {
				options = map[string]any{}
			}
		}

		doc.Analyses = append(doc.Analyses, Entry{
			AnalysisID:  id,
			Title:       TitleFromMarkdown(description),
			Status:      info.Status,
			DataSize:    s.AnalysisDataSize(id),
			Info:        info,
			Description: description,
			StanProgram: program,
			DataProgram: dataProgram,
			Options:     options,
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return writeAtomic(filepath.Join(s.Dir(), store.SummaryFile), data)
}

// TitleFromMarkdown extracts the first heading line, with the leading
// hash marks stripped. No heading means no title.
func TitleFromMarkdown(markdown string) string {
	for _, line := range strings.Split(markdown, "\n") {
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
	}
	return ""
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".summary.tmp-*")
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write summary: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write summary: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
