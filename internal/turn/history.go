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

package turn

import "github.com/kadirpekel/agentturn/internal/llm"

// HistoryItem is one committed entry of the conversation log. Turn's
// History is an append-only log of committed revisions, not a sliding
// token-budgeted window — the in-progress model-text buffer is a
// separate, un-committed slot per spec.md §9's "conversation history
// as mutable array of parts" redesign note.
type HistoryItem struct {
	Role       llm.Role
	Text       string
	ToolCallID string
	ToolName   string
}

// History is the append-only conversation log C3 reads from and
// writes to. internal/session provides the persisted implementation;
// tests use an in-memory slice.
type History interface {
	Append(item HistoryItem)
	Items() []HistoryItem
}

// MemoryHistory is a trivial in-process History, used by tests and by
// any caller that doesn't need persistence.
type MemoryHistory struct {
	items []HistoryItem
}

// NewMemoryHistory returns an empty MemoryHistory.
func NewMemoryHistory() *MemoryHistory { return &MemoryHistory{} }

func (h *MemoryHistory) Append(item HistoryItem) { h.items = append(h.items, item) }

func (h *MemoryHistory) Items() []HistoryItem {
	out := make([]HistoryItem, len(h.items))
	copy(out, h.items)
	return out
}

var _ History = (*MemoryHistory)(nil)
