// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/flatironinstitute/stan-playground/services/playground/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// consoleMessage is one frame of the console tail stream.
type consoleMessage struct {
	Text string `json:"text"`
	EOF  bool   `json:"eof,omitempty"`
}

// consoleFiles maps the URL name of a console to its on-disk file.
var consoleFiles = map[string]string{
	"run":     store.RunConsoleFile,
	"compile": store.CompileConsoleFile,
	"data":    store.DataConsoleFile,
}

// ConsoleTail streams a console log over a websocket: the current
// content immediately, then appended chunks as the external tool writes
// them. Viewers use this to follow a compile or a sampling run live
// instead of re-polling the whole file.
func (s *Service) ConsoleTail() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("analysisId")
		if err := store.ValidateID(id); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		fileName, ok := consoleFiles[c.Param("console")]
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unknown console name"})
			return
		}
		dir, err := s.Store.AnalysisDir(id)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		path := filepath.Join(dir, fileName)

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade console websocket", "error", err)
			return
		}
		defer ws.Close()

		sessionID := uuid.New().String()
		slog.Info("console tail connected",
			"session_id", sessionID, "analysis_id", id, "console", fileName)

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			_ = ws.WriteJSON(consoleMessage{Text: "", EOF: true})
			return
		}
		defer watcher.Close()
		// Watch the directory rather than the file: the console file is
		// recreated on each run and a file watch would go stale.
		if err := watcher.Add(dir); err != nil {
			_ = ws.WriteJSON(consoleMessage{Text: "", EOF: true})
			return
		}

		// Detect client departure: the read pump fails when the peer
		// goes away.
		clientGone := make(chan struct{})
		go func() {
			defer close(clientGone)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		var offset int64
		send := func() bool {
			chunk, next, err := readFrom(path, offset)
			if err != nil || chunk == "" {
				return true
			}
			offset = next
			return ws.WriteJSON(consoleMessage{Text: chunk}) == nil
		}
		if !send() {
			return
		}

		keepalive := time.NewTicker(30 * time.Second)
		defer keepalive.Stop()
		for {
			select {
			case <-clientGone:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != fileName {
					continue
				}
				if ev.Op.Has(fsnotify.Create) {
					// New run, new file: restart from the beginning.
					offset = 0
				}
				if !send() {
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("console watcher error", "error", err)
			case <-keepalive.C:
				if ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)) != nil {
					return
				}
			}
		}
	}
}

// readFrom returns the file content from offset onward and the new
// offset. A missing file reads as empty at offset zero.
func readFrom(path string, offset int64) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", 0, nil
		}
		return "", offset, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return "", offset, err
	}
	if st.Size() <= offset {
		return "", offset, nil
	}
	if _, err := f.Seek(offset, 0); err != nil {
		return "", offset, err
	}
	buf := make([]byte, st.Size()-offset)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return "", offset, err
	}
	return string(buf[:n]), offset + int64(n), nil
}
