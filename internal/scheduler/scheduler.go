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
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kadirpekel/agentturn/internal/eventbus"
	"github.com/kadirpekel/agentturn/internal/orcherr"
	"github.com/kadirpekel/agentturn/internal/safety"
	"github.com/kadirpekel/agentturn/internal/tool"
)

// Option configures optional Scheduler behavior.
type Option func(*Scheduler)

// WithLoopDetector wires a fingerprint-based loop detector into
// Schedule; onDetected is invoked (on the actor goroutine, so it must
// not block) whenever a fingerprint trips its threshold.
func WithLoopDetector(d *safety.LoopDetector, onDetected func(callID, toolName string)) Option {
	return func(s *Scheduler) {
		s.loop = d
		s.onLoopDetected = onDetected
	}
}

// actorMsg is a message processed, in receipt order, by the
// scheduler's single actor goroutine — the message-passing
// re-architecture called for in spec.md §9 in place of a shared
// mutable map guarded by ad hoc locking.
type actorMsg interface{ apply(s *Scheduler) }

// Scheduler is C2: the Tool Call Scheduler. It owns the ToolCall map;
// every transition is applied on a single goroutine reading cmds, so
// the map is effectively single-writer even though Schedule/Confirm/
// CancelAll and worker completions are called from arbitrary
// goroutines.
type Scheduler struct {
	registry tool.Registry
	bus      *eventbus.Bus
	mode     *ModeHolder
	always   *alwaysAllowSet

	loop           *safety.LoopDetector
	onLoopDetected func(callID, toolName string)

	pathLocker *pathLocker
	execSlot   chan struct{} // capacity 1: at most one Exec ToolCall runs at a time

	cmds chan actorMsg

	// actor-owned; touched only inside run().
	calls    map[string]*ToolCall
	waiters  []chan struct{}
}

// New returns a running Scheduler bound to registry and bus, under
// the given (mutable) approval mode.
func New(registry tool.Registry, bus *eventbus.Bus, mode *ModeHolder, opts ...Option) *Scheduler {
	s := &Scheduler{
		registry:   registry,
		bus:        bus,
		mode:       mode,
		always:     newAlwaysAllowSet(),
		pathLocker: newPathLocker(),
		execSlot:   make(chan struct{}, 1),
		cmds:       make(chan actorMsg, 64),
		calls:      make(map[string]*ToolCall),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

// Stop shuts down the actor goroutine. Pending ToolCalls are left as
// they are; callers should CancelAll first if a clean shutdown is
// required.
func (s *Scheduler) Stop() { close(s.cmds) }

func (s *Scheduler) run() {
	for msg := range s.cmds {
		msg.apply(s)
	}
}

// ---------------------------------------------------------------------------
// Schedule
// ---------------------------------------------------------------------------

type scheduleMsg struct {
	ctx   context.Context
	batch []ToolCallRequest
}

func (s *Scheduler) Schedule(ctx context.Context, batch []ToolCallRequest) {
	s.cmds <- &scheduleMsg{ctx: ctx, batch: batch}
}

func (m *scheduleMsg) apply(s *Scheduler) {
	for _, req := range m.batch {
		tc := &ToolCall{
			CallID:          req.CallID,
			ToolName:        req.ToolName,
			PromptID:        req.PromptID,
			ClientInitiated: req.ClientInitiated,
			Status:          StatusValidating,
			args:            req.Args,
			ctx:             m.ctx,
		}
		s.calls[req.CallID] = tc

		t, ok := s.registry.Lookup(req.ToolName)
		if !ok {
			s.fail(tc, "unknown tool \""+req.ToolName+"\"")
			continue
		}
		tc.Kind = t.Kind()

		if s.loop != nil && s.loop.Record(tc.Kind, req.ToolName, req.Args) && s.onLoopDetected != nil {
			s.onLoopDetected(req.CallID, req.ToolName)
		}

		inv, err := t.NewInvocation(m.ctx, req.Args)
		if err != nil {
			s.fail(tc, err.Error())
			continue
		}
		tc.Invocation = inv

		details, err := inv.ShouldConfirm(m.ctx)
		if err != nil {
			s.fail(tc, err.Error())
			continue
		}
		tc.Confirm = details

		if details != nil && !autoApprove(s.mode.Get(), tc.Kind, details, s.always, tc.ToolName) {
			s.transition(tc, StatusAwaitingApproval)
			continue
		}
		s.toScheduled(tc)
	}
}

// ---------------------------------------------------------------------------
// Confirm
// ---------------------------------------------------------------------------

type confirmMsg struct {
	callID  string
	outcome Outcome
	payload *ConfirmPayload
	reply   chan error
}

// Confirm resolves an AwaitingApproval (or AwaitingReconfirmation)
// ToolCall. It blocks until the actor has processed it.
func (s *Scheduler) Confirm(callID string, outcome Outcome, payload *ConfirmPayload) error {
	reply := make(chan error, 1)
	s.cmds <- &confirmMsg{callID: callID, outcome: outcome, payload: payload, reply: reply}
	return <-reply
}

func (m *confirmMsg) apply(s *Scheduler) {
	tc, ok := s.calls[m.callID]
	if !ok {
		m.reply <- orcherr.New(orcherr.InvalidParams, "scheduler", "confirm", "unknown call id "+m.callID, nil)
		return
	}
	if tc.Status != StatusAwaitingApproval && tc.Status != StatusAwaitingReconfirmation {
		m.reply <- orcherr.New(orcherr.InvalidParams, "scheduler", "confirm", "call "+m.callID+" is not awaiting approval", nil)
		return
	}

	switch m.outcome {
	case OutcomeCancel:
		s.toCancelled(tc, "Tool call denied by user")

	case OutcomeProceedOnce:
		s.toScheduled(tc)

	case OutcomeProceedAlwaysForThisTool, OutcomeProceedAlwaysSession:
		s.always.allow(tc.ToolName, "")
		s.toScheduled(tc)

	case OutcomeProceedAlwaysForThisServer:
		server := ""
		if tc.Confirm != nil {
			server = tc.Confirm.ServerName
		}
		s.always.allow(tc.ToolName, server)
		s.toScheduled(tc)

	case OutcomeModifyWithEditor:
		t, ok := s.registry.Lookup(tc.ToolName)
		if !ok {
			s.fail(tc, "unknown tool \""+tc.ToolName+"\"")
			break
		}
		var newArgs map[string]any
		if m.payload != nil {
			newArgs = m.payload.NewContent
		}
		inv, err := t.NewInvocation(tc.ctx, newArgs)
		if err != nil {
			s.fail(tc, err.Error())
			break
		}
		details, err := inv.ShouldConfirm(tc.ctx)
		if err != nil {
			s.fail(tc, err.Error())
			break
		}
		tc.Invocation = inv
		tc.args = newArgs
		tc.Confirm = details
		s.transition(tc, StatusAwaitingReconfirmation)

	default:
		m.reply <- orcherr.New(orcherr.InvalidParams, "scheduler", "confirm", "unknown outcome", nil)
		return
	}

	m.reply <- nil
}

// ---------------------------------------------------------------------------
// CancelAll
// ---------------------------------------------------------------------------

type cancelAllMsg struct{ reason string }

func (s *Scheduler) CancelAll(reason string) {
	s.cmds <- &cancelAllMsg{reason: reason}
}

func (m *cancelAllMsg) apply(s *Scheduler) {
	for _, tc := range s.calls {
		if !tc.Status.Terminal() {
			s.toCancelled(tc, m.reason)
		}
	}
}

// ---------------------------------------------------------------------------
// wait_for_quiescence
// ---------------------------------------------------------------------------

type quiescenceMsg struct{ reply chan struct{} }

// WaitForQuiescence blocks until every non-terminal ToolCall has
// resolved, or ctx is done.
func (s *Scheduler) WaitForQuiescence(ctx context.Context) error {
	reply := make(chan struct{})
	s.cmds <- &quiescenceMsg{reply: reply}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *quiescenceMsg) apply(s *Scheduler) {
	if s.pending() == 0 {
		close(m.reply)
		return
	}
	s.waiters = append(s.waiters, m.reply)
}

func (s *Scheduler) pending() int {
	n := 0
	for _, tc := range s.calls {
		if !tc.Status.Terminal() {
			n++
		}
	}
	return n
}

func (s *Scheduler) maybeSignalQuiescence() {
	if s.pending() != 0 {
		return
	}
	for _, w := range s.waiters {
		close(w)
	}
	s.waiters = nil
}

// ---------------------------------------------------------------------------
// CollectResponses
// ---------------------------------------------------------------------------

// ToolCallResult is the read-only outcome C3 collects for a batch
// after quiescence.
type ToolCallResult struct {
	CallID   string
	ToolName string
	Status   Status
	Response *Response
}

type collectMsg struct {
	callIDs []string
	reply   chan []ToolCallResult
}

// CollectResponses returns the terminal outcome for each call id; ids
// with no record, or not yet terminal, are omitted.
func (s *Scheduler) CollectResponses(callIDs []string) []ToolCallResult {
	reply := make(chan []ToolCallResult, 1)
	s.cmds <- &collectMsg{callIDs: callIDs, reply: reply}
	return <-reply
}

func (m *collectMsg) apply(s *Scheduler) {
	out := make([]ToolCallResult, 0, len(m.callIDs))
	for _, id := range m.callIDs {
		tc, ok := s.calls[id]
		if !ok || tc.Response == nil {
			continue
		}
		out = append(out, ToolCallResult{CallID: tc.CallID, ToolName: tc.ToolName, Status: tc.Status, Response: tc.Response})
	}
	m.reply <- out
}

// ---------------------------------------------------------------------------
// Worker completion
// ---------------------------------------------------------------------------

type completionMsg struct {
	callID string
	result *tool.Result
	err    error
}

func (m *completionMsg) apply(s *Scheduler) {
	tc, ok := s.calls[m.callID]
	if !ok || tc.Status.Terminal() {
		// Late completion for a call already resolved by cancel_all, or
		// an id the scheduler never knew about — discard, per spec.md
		// §8's "no subsequent event modifies a terminal ToolCall".
		return
	}
	if m.err != nil {
		if errors.Is(m.err, context.Canceled) {
			s.toCancelled(tc, "cancelled")
		} else {
			s.toError(tc, m.err.Error(), tool.Display{Kind: tool.DisplayPlainText, Text: m.err.Error()})
		}
		return
	}
	if m.result.IsError {
		s.toError(tc, m.result.Display.Text, m.result.Display)
		return
	}
	tc.Response = &Response{Parts: m.result.ResponseParts, Display: m.result.Display}
	s.transition(tc, StatusSuccess)
	s.maybeSignalQuiescence()
}

// ---------------------------------------------------------------------------
// Transition helpers (actor-goroutine only)
// ---------------------------------------------------------------------------

func (s *Scheduler) toScheduled(tc *ToolCall) {
	s.transition(tc, StatusScheduled)
	s.transition(tc, StatusExecuting)
	go s.execute(tc)
}

func (s *Scheduler) toCancelled(tc *ToolCall, reason string) {
	tc.Response = &Response{
		Parts:   map[string]any{"functionResponse": map[string]any{"error": reason}},
		Display: tool.Display{Kind: tool.DisplayPlainText, Text: reason},
		IsError: true,
	}
	s.transition(tc, StatusCancelled)
	s.maybeSignalQuiescence()
}

func (s *Scheduler) toError(tc *ToolCall, message string, display tool.Display) {
	tc.Response = &Response{
		Parts:   map[string]any{"functionResponse": map[string]any{"error": message}},
		Display: display,
		IsError: true,
	}
	s.transition(tc, StatusError)
	s.maybeSignalQuiescence()
}

func (s *Scheduler) fail(tc *ToolCall, message string) {
	s.toError(tc, message, tool.Display{Kind: tool.DisplayPlainText, Text: message})
}

// transition applies newStatus, suppressing a no-op re-assertion of
// the same status (spec.md §4.2), and publishes the resulting
// snapshot on C4.
func (s *Scheduler) transition(tc *ToolCall, newStatus Status) {
	if tc.Status == newStatus {
		return
	}
	tc.Status = newStatus
	snap := tc.snapshot(s.bus)

	kind := eventbus.KindToolCallUpdate
	if newStatus == StatusAwaitingApproval || newStatus == StatusAwaitingReconfirmation {
		kind = eventbus.KindToolCallConfirm
	}
	s.bus.Publish(eventbus.Event{
		Kind: kind,
		At:   time.Now(),
		ToolCall: &eventbus.ToolCallSnapshot{
			CallID:      snap.callID,
			Status:      string(snap.status),
			Description: snap.description,
			Confirm:     confirmationSnapshot(snap.confirm),
			OutputSoFar: snap.output,
			IsError:     snap.response != nil && snap.response.IsError,
			Display:     displayText(snap.response),
			Revision:    snap.revision,
		},
	})
}

func confirmationSnapshot(d *tool.ConfirmationDetails) *eventbus.ConfirmationSnapshot {
	if d == nil {
		return nil
	}
	proposal := d.Info
	switch d.Variant {
	case tool.VariantEdit:
		proposal = d.UnifiedDiff
	case tool.VariantExecCommand:
		proposal = d.Command
	case tool.VariantMcpServerCall:
		proposal = d.ToolName
	}
	return &eventbus.ConfirmationSnapshot{
		Kind:        string(d.Variant),
		Proposal:    proposal,
		RootCommand: d.RootCommand,
		ServerName:  d.ServerName,
	}
}

func displayText(r *Response) string {
	if r == nil {
		return ""
	}
	if r.Display.Diff != "" {
		return r.Display.Diff
	}
	return r.Display.Text
}

// ---------------------------------------------------------------------------
// Worker execution
// ---------------------------------------------------------------------------

func (s *Scheduler) execute(tc *ToolCall) {
	if tc.Kind == tool.KindExec {
		select {
		case s.execSlot <- struct{}{}:
			defer func() { <-s.execSlot }()
		case <-tc.ctx.Done():
			s.cmds <- &completionMsg{callID: tc.CallID, err: tc.ctx.Err()}
			return
		}
	}

	if (tc.Kind == tool.KindEdit || tc.Kind == tool.KindWrite) && tc.Confirm != nil && tc.Confirm.Path != "" {
		unlock := s.pathLocker.acquire(tc.Confirm.Path)
		defer unlock()
	}

	onChunk := func(chunk string) {
		s.bus.Publish(eventbus.Event{
			Kind: eventbus.KindArtifactUpdate,
			At:   time.Now(),
			Artifact: &eventbus.ArtifactUpdate{
				CallID: tc.CallID,
				Chunk:  chunk,
				Append: true,
			},
		})
	}

	result, err := tc.Invocation.Execute(tc.ctx, onChunk)
	if err != nil {
		slog.Debug("scheduler: tool execution failed", "call_id", tc.CallID, "tool", tc.ToolName, "error", err)
	}
	s.cmds <- &completionMsg{callID: tc.CallID, result: result, err: err}
}
