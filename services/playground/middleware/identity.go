// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides the request-scoped plumbing for the
// playground service: caller identity extraction and request ids.
//
// There is no authentication protocol here. The caller identity is an
// opaque string taken from a header, trusted as given; the service's
// authorization rules (ownership, edit tokens, access codes) are what
// actually guard mutations.
package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UserIDHeader carries the opaque caller identity.
const UserIDHeader = "X-User-Id"

// RequestIDHeader echoes the per-request id back to the client.
const RequestIDHeader = "X-Request-Id"

const (
	callerKey    = "playground_caller_id"
	requestIDKey = "playground_request_id"
)

// Identity stores the caller identity from the request header in the
// gin context. An absent header means an anonymous caller, which is a
// legitimate state, not an error.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(callerKey, c.GetHeader(UserIDHeader))
		c.Next()
	}
}

// CallerID returns the caller identity for the request, empty for
// anonymous callers.
func CallerID(c *gin.Context) string {
	return c.GetString(callerKey)
}

// RequestID assigns each request a uuid, echoes it in the response
// header and emits one structured log line per request.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)

		start := time.Now()
		c.Next()

		slog.Info("request",
			"request_id", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// GetRequestID returns the id assigned by RequestID, empty if the
// middleware did not run.
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
