// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package session implements persisted per-session chat history:
// whole-session history files, named with an embedded ISO-8601
// timestamp and an 8-character session suffix, plus the
// {maxAge, maxCount, minRetention} retention sweep that cleans them up
// on a schedule.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/agentturn/internal/orcherr"
	"github.com/kadirpekel/agentturn/internal/turn"
	"github.com/kadirpekel/agentturn/pkg/utils"
)

// FileName builds the on-disk name for a session history file: an
// ISO-8601-ish timestamp (colons aren't portable across filesystems,
// so they're replaced with '-') followed by an 8-character suffix
// derived from the session id.
func FileName(sessionID string, at time.Time) string {
	return fmt.Sprintf("%s-%s.json", at.UTC().Format("2006-01-02T15-04-05"), suffix(sessionID))
}

func suffix(sessionID string) string {
	if len(sessionID) >= 8 {
		return sessionID[:8]
	}
	return sessionID
}

// History is a turn.History backed by a single JSON file, one per
// session. It is append-only in memory and rewritten to disk on every
// Append — acceptable because a session's history is bounded by a
// single conversation, not by long-running server load.
type History struct {
	mu        sync.Mutex
	path      string
	sessionID string
	items     []turn.HistoryItem
}

// New creates or opens a session's history file under dir. sessionID
// should be a fresh uuid.NewString() for a new session, or a known id
// to resume a specific file on disk.
func New(dir, sessionID string, at time.Time) (*History, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	stateDir, err := utils.EnsureStateDir(dir)
	if err != nil {
		return nil, orcherr.New(orcherr.ExecutionFailed, "session.history", "new", "cannot create session directory", err)
	}
	path := filepath.Join(stateDir, FileName(sessionID, at))
	h := &History{path: path, sessionID: sessionID}
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &h.items)
	}
	return h, nil
}

// SessionID reports the id this history was opened with — used by
// Retention to identify the active session's file so it is never
// swept.
func (h *History) SessionID() string { return h.sessionID }

// Path returns the file this history persists to.
func (h *History) Path() string { return h.path }

func (h *History) Append(item turn.HistoryItem) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, item)
	h.persist()
}

func (h *History) Items() []turn.HistoryItem {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]turn.HistoryItem, len(h.items))
	copy(out, h.items)
	return out
}

// persist rewrites the whole file; called with mu held.
func (h *History) persist() {
	data, err := json.MarshalIndent(h.items, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(h.path, data, 0o644)
}

var _ turn.History = (*History)(nil)
