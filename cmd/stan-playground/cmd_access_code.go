// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// runAccessCode mints a code and prints it for the operator to hand
// out. This is deliberately a host-side command: whoever can run it
// already owns the data directory.
func runAccessCode(cmd *cobra.Command, args []string) error {
	if _, err := openStore(); err != nil {
		return err
	}

	var ttl time.Duration
	if codeTTL != "" {
		d, err := time.ParseDuration(codeTTL)
		if err != nil {
			return fmt.Errorf("invalid --ttl %q: %w", codeTTL, err)
		}
		ttl = d
	}

	code, err := newGate().Issue(ttl)
	if err != nil {
		return err
	}
	fmt.Println(code)
	return nil
}
