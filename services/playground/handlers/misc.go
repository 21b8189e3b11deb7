// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flatironinstitute/stan-playground/services/playground/datatypes"
)

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Probe is the no-op "test" command clients use to verify the query
// channel end to end. Access codes are deliberately not issuable over
// HTTP; minting one is an operator action done with the CLI on the host
// that owns the data directory.
func (s *Service) Probe() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, datatypes.OK())
	}
}
