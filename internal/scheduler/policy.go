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

package scheduler

import (
	"sync"
	"sync/atomic"

	"github.com/kadirpekel/agentturn/internal/tool"
)

// ApprovalMode is the process-wide policy governing whether a tool
// call needing confirmation is auto-approved (spec.md §3).
type ApprovalMode int32

const (
	ApprovalDefault ApprovalMode = iota
	ApprovalAutoEditOnly
	ApprovalYolo
)

// ModeHolder is a mutable, concurrency-safe cell for the session's
// current ApprovalMode — mutable by a user command mid-session per
// spec.md §3.
type ModeHolder struct {
	v atomic.Int32
}

// NewModeHolder returns a holder initialized to mode.
func NewModeHolder(mode ApprovalMode) *ModeHolder {
	h := &ModeHolder{}
	h.v.Store(int32(mode))
	return h
}

// Get returns the current mode.
func (h *ModeHolder) Get() ApprovalMode { return ApprovalMode(h.v.Load()) }

// Set changes the current mode.
func (h *ModeHolder) Set(mode ApprovalMode) { h.v.Store(int32(mode)) }

// allowKey identifies an AlwaysAllowSet scope: a tool name paired with
// an optional server name (populated only for McpServerCall
// approvals).
type allowKey struct {
	tool   string
	server string
}

// alwaysAllowSet is the process-lifetime set of (tool, optional
// server) pairs for which future approvals are short-circuited,
// populated by ProceedAlways* outcomes (spec.md §3). Copy-on-write per
// spec.md §5, but since the scheduler actor is the set's only writer,
// a plain mutex-guarded map already gives the same external
// guarantee — readers always see a fully-applied mutation, never a
// partial one.
type alwaysAllowSet struct {
	mu  sync.RWMutex
	set map[allowKey]struct{}
}

func newAlwaysAllowSet() *alwaysAllowSet {
	return &alwaysAllowSet{set: make(map[allowKey]struct{})}
}

func (a *alwaysAllowSet) allow(tool, server string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set[allowKey{tool: tool, server: server}] = struct{}{}
}

// allowed reports whether toolName is pre-approved, either
// unconditionally (ProceedAlwaysSession / ProceedAlwaysForThisTool)
// or for the given server (ProceedAlwaysForThisServer).
func (a *alwaysAllowSet) allowed(toolName, server string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if _, ok := a.set[allowKey{tool: toolName}]; ok {
		return true
	}
	if server != "" {
		if _, ok := a.set[allowKey{tool: toolName, server: server}]; ok {
			return true
		}
	}
	return false
}

// autoApprove decides, given the current mode and allow-list, whether
// a ToolCall whose Invocation asked for confirmation should instead
// proceed immediately (spec.md §4.2 "Approval-mode interpretation").
func autoApprove(mode ApprovalMode, kind tool.Kind, details *tool.ConfirmationDetails, always *alwaysAllowSet, toolName string) bool {
	server := ""
	if details != nil {
		server = details.ServerName
	}
	if always.allowed(toolName, server) {
		return true
	}
	switch mode {
	case ApprovalYolo:
		return true
	case ApprovalAutoEditOnly:
		return kind == tool.KindEdit || kind == tool.KindWrite
	default:
		return false
	}
}
