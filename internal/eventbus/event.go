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

// Package eventbus implements C4: an ordered, typed publication of
// state-change, content, tool-call and artifact events to zero or more
// subscribers.
package eventbus

import "time"

// Kind tags the variant carried by an Event.
type Kind string

const (
	KindStateChange         Kind = "state-change"
	KindContent             Kind = "content"
	KindThought             Kind = "thought"
	KindToolCallUpdate      Kind = "tool-call-update"
	KindToolCallConfirm     Kind = "tool-call-confirmation"
	KindArtifactUpdate      Kind = "artifact-update"
)

// State is the task-level state surfaced in a StateChange event. It
// mirrors the remote A2A TaskState vocabulary at the external
// boundary (spec.md §6), so internal and wire states never drift.
type State string

const (
	StateSubmitted     State = "submitted"
	StateWorking       State = "working"
	StateInputRequired State = "input-required"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
	StateCanceled      State = "canceled"
)

// StateChangeMetadata carries the optional out-of-band fields a
// state-change event may report.
type StateChangeMetadata struct {
	Model    string
	UserTier string
	Error    string
}

// StateChange is published whenever the turn/task-level state
// transitions. Final=true at most once per turn, always last.
type StateChange struct {
	TaskID   string
	NewState State
	Message  string
	Final    bool
	Metadata StateChangeMetadata
}

// Content is a text delta emitted by the model.
type Content struct {
	Text string
}

// Thought is a short structured summary of model reasoning.
type Thought struct {
	Subject     string
	Description string
}

// ToolCallSnapshot is the read-only projection of a scheduler ToolCall
// published on the bus. Revision increases monotonically per call
// identifier so subscribers can detect and ignore stale/duplicate
// deliveries.
type ToolCallSnapshot struct {
	CallID      string
	Status      string
	Description string
	Confirm     *ConfirmationSnapshot
	OutputSoFar string
	IsError     bool
	Display     string
	Revision    uint64
}

// ConfirmationSnapshot is the human-facing projection of
// ConfirmationDetails carried on a tool-call-confirmation event.
type ConfirmationSnapshot struct {
	Kind        string // edit | exec-command | mcp-server-call | info
	Proposal    string // unified diff, command string, or free text
	RootCommand string
	ServerName  string
}

// ArtifactUpdate carries an incremental output chunk for a call.
type ArtifactUpdate struct {
	CallID     string
	Chunk      string
	Append     bool
	LastChunk  bool
}

// Event is the immutable envelope published on the Bus. Exactly one
// of the payload fields is non-nil, selected by Kind.
type Event struct {
	Kind      Kind
	At        time.Time
	StateChg  *StateChange
	Content   *Content
	Thought   *Thought
	ToolCall  *ToolCallSnapshot
	Artifact  *ArtifactUpdate
}

// IsFinalResponse reports whether this event closes out the turn.
func (e Event) IsFinalResponse() bool {
	return e.Kind == KindStateChange && e.StateChg != nil && e.StateChg.Final
}

// HasToolCalls reports whether this event concerns a tool call.
func (e Event) HasToolCalls() bool {
	return (e.Kind == KindToolCallUpdate || e.Kind == KindToolCallConfirm) && e.ToolCall != nil
}
