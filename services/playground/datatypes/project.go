// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "gopkg.in/yaml.v3"

// ProjectUser is a membership entry in a project. Role is a placeholder
// for a future permission model; membership alone grants edit rights.
type ProjectUser struct {
	UserID string `yaml:"user_id" json:"user_id"`
	Role   string `yaml:"role,omitempty" json:"role,omitempty"`
}

// ProjectInfo is the persisted record for one project
// (projects/<id>/project.yaml). Projects always have an owner; there is
// no anonymous-project flow.
type ProjectInfo struct {
	OwnerID           *string       `yaml:"owner_id" json:"owner_id"`
	Listed            bool          `yaml:"listed" json:"listed"`
	Users             []ProjectUser `yaml:"users" json:"users"`
	TimestampCreated  *float64      `yaml:"timestamp_created,omitempty" json:"timestamp_created,omitempty"`
	TimestampModified *float64      `yaml:"timestamp_modified,omitempty" json:"timestamp_modified,omitempty"`
}

// DecodeProjectInfo parses a project.yaml document.
func DecodeProjectInfo(data []byte) (ProjectInfo, error) {
	var info ProjectInfo
	if err := yaml.Unmarshal(data, &info); err != nil {
		return ProjectInfo{}, err
	}
	return info, nil
}

// Encode serializes the record for persistence.
func (p ProjectInfo) Encode() ([]byte, error) {
	return yaml.Marshal(p)
}

// HasUser reports whether userID is the owner or a member of the project.
func (p ProjectInfo) HasUser(userID string) bool {
	if userID == "" {
		return false
	}
	if p.OwnerID != nil && *p.OwnerID == userID {
		return true
	}
	for _, u := range p.Users {
		if u.UserID == userID {
			return true
		}
	}
	return false
}
