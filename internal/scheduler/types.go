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

// Package scheduler implements C2: the Tool Call Scheduler. A single
// actor goroutine owns the ToolCall map and serializes every state
// transition on its command channel: one scheduler-wide command stream
// carrying Schedule/Confirm/CancelAll/completion messages.
package scheduler

import (
	"context"

	"github.com/kadirpekel/agentturn/internal/tool"
)

// Status is a ToolCall's position in the state machine of spec.md
// §4.2. Boxed (terminal) states are Success, Error, Cancelled.
type Status string

const (
	StatusValidating        Status = "Validating"
	StatusAwaitingApproval   Status = "AwaitingApproval"
	// StatusAwaitingReconfirmation is the explicit sub-state entered by
	// ModifyWithEditor: a fresh ConfirmationDetails has been produced
	// and is awaiting a new decision, distinct from the original
	// AwaitingApproval so the scheduler can suppress exactly one
	// finality signal without a hidden boolean flag (design note 3).
	StatusAwaitingReconfirmation Status = "AwaitingReconfirmation"
	StatusScheduled          Status = "Scheduled"
	StatusExecuting          Status = "Executing"
	StatusSuccess            Status = "Success"
	StatusError              Status = "Error"
	StatusCancelled          Status = "Cancelled"
)

// Terminal reports whether s is one of the boxed states.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// ToolCallRequest is the immutable request C3 hands to Schedule.
type ToolCallRequest struct {
	CallID          string
	ToolName        string
	Args            map[string]any
	PromptID        string
	ClientInitiated bool
}

// Outcome is the user's (or policy's) resolution of an
// AwaitingApproval ToolCall.
type Outcome string

const (
	OutcomeProceedOnce               Outcome = "proceed-once"
	OutcomeProceedAlwaysForThisTool   Outcome = "proceed-always-tool"
	OutcomeProceedAlwaysForThisServer Outcome = "proceed-always-server"
	OutcomeProceedAlwaysSession       Outcome = "proceed-always-session"
	OutcomeCancel                     Outcome = "cancel"
	OutcomeModifyWithEditor           Outcome = "modify-with-editor"
)

// ConfirmPayload carries Outcome-specific data; only NewContent
// (ModifyWithEditor) is currently defined.
type ConfirmPayload struct {
	NewContent map[string]any
}

// Response is a terminal ToolCall's frozen result: response_parts for
// the model, and a typed Display for the human-facing consumer.
type Response struct {
	Parts   map[string]any
	Display tool.Display
	IsError bool
}

// ToolCall is the mutable state record C2 owns, keyed by CallID. All
// mutation happens on the scheduler's actor goroutine; external code
// only ever sees copies (snapshot, or the frozen Response once
// terminal).
type ToolCall struct {
	CallID          string
	ToolName        string
	PromptID        string
	ClientInitiated bool
	Kind            tool.Kind

	Status     Status
	Invocation tool.Invocation
	Confirm    *tool.ConfirmationDetails
	Output     string
	Response   *Response
	Revision   uint64

	args map[string]any // retained for ModifyWithEditor re-entry and loop-detection fingerprinting
	ctx  context.Context
}

func (tc *ToolCall) snapshot(bus revisioner) toolCallSnapshot {
	return toolCallSnapshot{
		callID:      tc.CallID,
		status:      tc.Status,
		description: describe(tc.Invocation),
		confirm:     tc.Confirm,
		output:      tc.Output,
		response:    tc.Response,
		revision:    bus.NextRevision(),
	}
}

func describe(inv tool.Invocation) string {
	if inv == nil {
		return ""
	}
	return inv.Describe()
}

type toolCallSnapshot struct {
	callID      string
	status      Status
	description string
	confirm     *tool.ConfirmationDetails
	output      string
	response    *Response
	revision    uint64
}

type revisioner interface {
	NextRevision() uint64
}
