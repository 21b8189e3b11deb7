// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// validate is shared across decodes; the validator instance caches
// struct metadata and is safe for concurrent use.
var validate = validator.New()

// RunOptions is the sampler configuration carried in options.yaml.
//
// IterSampling and IterWarmup must be present and positive before a run
// may start; the scheduler validates options before invoking the sampler
// so a malformed document fails an analysis fast with a descriptive
// message rather than invoking the tool with garbage.
type RunOptions struct {
	IterSampling *int  `yaml:"iter_sampling" json:"iter_sampling" validate:"required"`
	IterWarmup   *int  `yaml:"iter_warmup" json:"iter_warmup" validate:"required"`
	Chains       *int  `yaml:"chains,omitempty" json:"chains,omitempty" validate:"omitempty,gte=1"`
	Seed         *int  `yaml:"seed,omitempty" json:"seed,omitempty"`
	SaveWarmup   *bool `yaml:"save_warmup,omitempty" json:"save_warmup,omitempty"`
}

// DecodeRunOptions parses and validates an options.yaml document.
func DecodeRunOptions(data []byte) (RunOptions, error) {
	var opts RunOptions
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return RunOptions{}, fmt.Errorf("malformed options document: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return RunOptions{}, err
	}
	return opts, nil
}

// Validate checks the required numeric fields. Zero or negative
// iteration counts are rejected along with absent ones.
func (o RunOptions) Validate() error {
	if err := validate.Struct(o); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return fmt.Errorf("invalid run options: field %s failed %q", verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid run options: %w", err)
	}
	if *o.IterSampling <= 0 {
		return fmt.Errorf("invalid run options: iter_sampling must be positive, got %d", *o.IterSampling)
	}
	if *o.IterWarmup <= 0 {
		return fmt.Errorf("invalid run options: iter_warmup must be positive, got %d", *o.IterWarmup)
	}
	return nil
}
