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

// Package a2a implements the remote Agent-to-Agent wire boundary: a
// single JSON envelope shape streamed over HTTP+JSON/SSE, carrying the
// turn orchestrator's state changes, assistant text and tool output to
// a remote caller.
package a2a

import (
	"context"
	"time"
)

// Agent is anything that can run a task and stream the resulting
// envelopes. internal/consumer/a2a implements this over a turn.Loop.
type Agent interface {
	GetAgentCard() *AgentCard
	ExecuteTask(ctx context.Context, req *TaskRequest) (*Envelope, error)
	ExecuteTaskStreaming(ctx context.Context, req *TaskRequest) (<-chan Envelope, error)
}

// AgentCard advertises one agent's identity and capabilities for
// discovery at GET /agents.
type AgentCard struct {
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Version      string            `json:"version"`
	Capabilities AgentCapabilities `json:"capabilities"`
}

// AgentCapabilities describes what an agent supports.
type AgentCapabilities struct {
	Streaming bool `json:"streaming"`
	MultiTurn bool `json:"multiTurn"`
}

// AgentDirectory is the response body of GET /agents.
type AgentDirectory struct {
	Agents []AgentCard `json:"agents"`
	Total  int         `json:"total"`
}

// TaskRequest submits a turn. TaskID is optional; the server generates
// one when empty. ContextID threads successive requests into the same
// conversation/session for agents that care.
type TaskRequest struct {
	TaskID    string `json:"taskId,omitempty"`
	ContextID string `json:"contextId,omitempty"`
	Text      string `json:"text"`
}

// State is the wire state vocabulary at the remote A2A boundary. It
// mirrors internal/eventbus.State one-for-one so a translation never
// has to reconcile two different spellings of the same value.
type State string

const (
	StateSubmitted     State = "submitted"
	StateWorking       State = "working"
	StateInputRequired State = "input-required"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
	StateCanceled      State = "canceled"
)

// Kind tags what an Envelope carries.
type Kind string

const (
	KindStatus   Kind = "status"
	KindMessage  Kind = "message"
	KindArtifact Kind = "artifact"
)

// Status is the task-level status carried by a "status"-kind Envelope.
type Status struct {
	State     State     `json:"state"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Metadata carries the out-of-band fields a remote consumer needs to
// attribute and render an Envelope.
type Metadata struct {
	CoderAgent string `json:"coderAgent,omitempty"`
	Model      string `json:"model,omitempty"`
	UserTier   string `json:"userTier,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Envelope is the one wire shape every event on the remote A2A
// boundary serializes to: {kind, taskId, contextId, status, final,
// metadata}, plus a Text/Artifact payload selected by Kind.
type Envelope struct {
	Kind      Kind     `json:"kind"`
	TaskID    string   `json:"taskId"`
	ContextID string   `json:"contextId,omitempty"`
	Status    Status   `json:"status"`
	Final     bool     `json:"final"`
	Metadata  Metadata `json:"metadata,omitempty"`

	// Text carries assistant content for Kind == KindMessage.
	Text string `json:"text,omitempty"`

	// Artifact carries tool/call output for Kind == KindArtifact.
	Artifact *Artifact `json:"artifact,omitempty"`
}

// Artifact is one chunk of tool or tool-call output attached to a
// KindArtifact Envelope.
type Artifact struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Text string `json:"text"`
}
