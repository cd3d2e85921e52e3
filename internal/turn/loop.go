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

// Package turn implements C3: the Turn Loop. Loop.Submit drives one
// user turn — prompt, model stream, tool scheduling, response
// resubmission — until the model stream finishes without further tool
// calls, publishing every observable step on the C4 event bus instead
// of returning a single aggregate result, since callers (terminal,
// remote A2A) need incremental progress, not just a final answer.
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/agentturn/internal/eventbus"
	"github.com/kadirpekel/agentturn/internal/llm"
	"github.com/kadirpekel/agentturn/internal/orcherr"
	"github.com/kadirpekel/agentturn/internal/safety"
	"github.com/kadirpekel/agentturn/internal/scheduler"
	"github.com/kadirpekel/agentturn/internal/tool"
)

// splittableLength bounds how large the in-progress model-text buffer
// may grow before it is committed to history and a fresh buffer
// started, to bound re-render cost for any observer (spec.md §4.3
// step 4).
const splittableLength = 4000

// ConsentFunc asks the user a yes/no question via C4 (or whatever
// surface the caller wired up) and blocks for the answer.
type ConsentFunc func(ctx context.Context, question string) bool

// Loop is C3: the Turn Loop.
type Loop struct {
	bus      *eventbus.Bus
	sched    *scheduler.Scheduler
	registry tool.Registry
	client   llm.Client
	fallback *safety.ModelFallback
	loop     *safety.LoopDetector
	history  History

	resolveSlash ScheduleToolResolver

	// QuotaConsent is asked before switching to the fallback model on a
	// persistent quota error. LoopConsent is asked before disabling
	// loop detection for the session. Both default to "always decline"
	// if left nil.
	QuotaConsent ConsentFunc
	LoopConsent  ConsentFunc
}

// New returns a Loop wired to its collaborators.
func New(bus *eventbus.Bus, sched *scheduler.Scheduler, registry tool.Registry, client llm.Client, fallback *safety.ModelFallback, detector *safety.LoopDetector, history History, resolveSlash ScheduleToolResolver) *Loop {
	return &Loop{
		bus:          bus,
		sched:        sched,
		registry:     registry,
		client:       client,
		fallback:     fallback,
		loop:         detector,
		history:      history,
		resolveSlash: resolveSlash,
	}
}

// Submit drives one user turn to completion. taskID identifies the
// turn at the event-bus boundary; promptID is reused across the
// continuation requests spawned by tool-call resubmission.
func (l *Loop) Submit(ctx context.Context, taskID, promptID, userText string) (llm.FinishReason, error) {
	intent := Classify(userText, l.resolveSlash)

	switch intent.Kind {
	case IntentSlashCommand:
		l.publishFinal(taskID, "", "")
		return llm.FinishStop, nil

	case IntentScheduleTool:
		if err := l.runDirectTool(ctx, taskID, promptID, intent.ToolName, intent.ToolArgs); err != nil {
			return "", err
		}
		l.publishFinal(taskID, "", "")
		return llm.FinishStop, nil

	case IntentShellMode:
		if err := l.runDirectTool(ctx, taskID, promptID, "shell", map[string]any{"command": intent.Command}); err != nil {
			return "", err
		}
		l.publishFinal(taskID, "", "")
		return llm.FinishStop, nil
	}

	l.history.Append(HistoryItem{Role: llm.RoleUser, Text: intent.Text})
	return l.runModelLoop(ctx, taskID, promptID)
}

// runDirectTool implements "Slash-commands that resolve to
// schedule_tool go directly to C2 and do NOT invoke the model"
// (spec.md §4.3 step 1), reused for shell-mode input too.
func (l *Loop) runDirectTool(ctx context.Context, taskID, promptID, toolName string, args map[string]any) error {
	callID := uuid.NewString()
	l.sched.Schedule(ctx, []scheduler.ToolCallRequest{{
		CallID:          callID,
		ToolName:        toolName,
		Args:            args,
		PromptID:        promptID,
		ClientInitiated: true,
	}})
	if err := l.sched.WaitForQuiescence(ctx); err != nil {
		l.sched.CancelAll("user cancelled")
		return err
	}
	for _, r := range l.sched.CollectResponses([]string{callID}) {
		l.appendToolResponse(r)
	}
	return nil
}

// runModelLoop implements spec.md §4.3 steps 3-9: stream the model,
// schedule any requested tool calls, resubmit their responses, and
// repeat until the model stops requesting tools.
func (l *Loop) runModelLoop(ctx context.Context, taskID, promptID string) (llm.FinishReason, error) {
	for {
		l.bus.Publish(eventbus.Event{
			Kind: eventbus.KindStateChange,
			At:   time.Now(),
			StateChg: &eventbus.StateChange{
				TaskID:   taskID,
				NewState: eventbus.StateWorking,
				Metadata: eventbus.StateChangeMetadata{Model: l.activeModel()},
			},
		})

		req := l.buildRequest()
		stream, err := l.client.Stream(ctx, req)
		if err != nil {
			if l.fallback != nil && l.fallback.ShouldOfferFallback(err) && l.offerFallback(ctx) {
				continue
			}
			l.publishFailed(taskID, err.Error())
			return "", err
		}

		finish, toolCalls, streamErr := l.consume(ctx, taskID, stream)
		_ = stream.Close()

		if streamErr != nil {
			if errors.Is(streamErr, context.Canceled) {
				l.sched.CancelAll("user cancelled")
				l.publishFinal(taskID, eventbus.StateCanceled, "")
				return "", streamErr
			}
			if l.fallback != nil && l.fallback.ShouldOfferFallback(streamErr) && l.offerFallback(ctx) {
				continue
			}
			l.publishFailed(taskID, streamErr.Error())
			return "", streamErr
		}

		if len(toolCalls) == 0 {
			l.publishFinal(taskID, "", "")
			return finish, nil
		}

		results, allCancelled, err := l.scheduleBatch(ctx, promptID, toolCalls)
		if err != nil {
			l.publishFinal(taskID, eventbus.StateCanceled, "")
			return "", err
		}
		for _, r := range results {
			l.appendToolResponse(r)
		}
		if allCancelled {
			// spec.md §4.3 step 7: preserve causality without spending
			// quota — do not resubmit to the model this turn.
			l.publishFinal(taskID, "", "")
			return llm.FinishStop, nil
		}
	}
}

// consume drains one model stream until its single Finished event (or
// an error / cancellation), accumulating content into history-sized
// chunks and collecting tool-call requests for the batch.
func (l *Loop) consume(ctx context.Context, taskID string, stream llm.Stream) (llm.FinishReason, []llm.ToolCallRequest, error) {
	var buf strings.Builder
	var toolCalls []llm.ToolCallRequest

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		l.history.Append(HistoryItem{Role: llm.RoleAssistant, Text: buf.String()})
		buf.Reset()
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return "", toolCalls, ctx.Err()
		default:
		}

		ev, err := stream.Next(ctx)
		if err != nil {
			flush()
			return "", toolCalls, err
		}

		switch ev.Kind {
		case llm.EventContent:
			buf.WriteString(ev.Text)
			l.bus.Publish(eventbus.Event{Kind: eventbus.KindContent, At: time.Now(), Content: &eventbus.Content{Text: ev.Text}})
			if buf.Len() >= splittableLength {
				flush()
			}

		case llm.EventThought:
			l.bus.Publish(eventbus.Event{Kind: eventbus.KindThought, At: time.Now(), Thought: &eventbus.Thought{
				Subject: ev.Thought.Subject, Description: ev.Thought.Description,
			}})

		case llm.EventToolCallRequest:
			toolCalls = append(toolCalls, ev.ToolCall)

		case llm.EventCitation:
			l.bus.Publish(eventbus.Event{Kind: eventbus.KindContent, At: time.Now(), Content: &eventbus.Content{Text: ev.Citation}})

		case llm.EventChatCompressed:
			l.bus.Publish(eventbus.Event{Kind: eventbus.KindStateChange, At: time.Now(), StateChg: &eventbus.StateChange{
				TaskID: taskID, NewState: eventbus.StateWorking,
				Message: fmt.Sprintf("conversation compressed: %d -> %d tokens", ev.Before, ev.After),
			}})

		case llm.EventContextWindowWillOverflow:
			l.bus.Publish(eventbus.Event{Kind: eventbus.KindStateChange, At: time.Now(), StateChg: &eventbus.StateChange{
				TaskID: taskID, NewState: eventbus.StateWorking,
				Message: fmt.Sprintf("context window may overflow: estimated %d, remaining %d", ev.Estimated, ev.Remaining),
			}})

		case llm.EventLoopDetected:
			flush()
			disable := l.LoopConsent != nil && l.LoopConsent(ctx, "the model repeated the same tool call; disable loop detection for this session?")
			if disable && l.loop != nil {
				l.loop.Disable()
			}
			return "", toolCalls, orcherr.New(orcherr.LoopDetected, "turn", "consume", "loop detected", nil)

		case llm.EventMaxSessionTurns:
			flush()
			return "", toolCalls, orcherr.New(orcherr.ContextOverflow, "turn", "consume", "max session turns reached", nil)

		case llm.EventRetry:
			// No observable action; the adapter is retrying internally.

		case llm.EventUserCancelled:
			flush()
			return "", toolCalls, context.Canceled

		case llm.EventInvalidStream:
			flush()
			return "", toolCalls, orcherr.New(orcherr.StreamProtocolError, "turn", "consume", "malformed stream event", ev.Err)

		case llm.EventError:
			flush()
			return "", toolCalls, ev.Err

		case llm.EventFinished:
			flush()
			return ev.Finish, toolCalls, nil
		}
	}
}

// scheduleBatch hands a batch of model-requested tool calls to C2,
// waits for quiescence, and reports whether every call in the batch
// ended Cancelled (spec.md §4.3 step 7).
func (l *Loop) scheduleBatch(ctx context.Context, promptID string, calls []llm.ToolCallRequest) ([]scheduler.ToolCallResult, bool, error) {
	batch := make([]scheduler.ToolCallRequest, 0, len(calls))
	ids := make([]string, 0, len(calls))
	for _, c := range calls {
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		batch = append(batch, scheduler.ToolCallRequest{
			CallID:   id,
			ToolName: c.Name,
			Args:     c.Args,
			PromptID: promptID,
		})
		ids = append(ids, id)
	}

	l.sched.Schedule(ctx, batch)
	if err := l.sched.WaitForQuiescence(ctx); err != nil {
		l.sched.CancelAll("user cancelled")
		return nil, false, err
	}

	results := l.sched.CollectResponses(ids)
	allCancelled := len(results) == len(ids)
	for _, r := range results {
		if r.Status != scheduler.StatusCancelled {
			allCancelled = false
			break
		}
	}
	return results, allCancelled, nil
}

func (l *Loop) appendToolResponse(r scheduler.ToolCallResult) {
	text := ""
	if r.Response != nil {
		text = responseText(r.Response)
	}
	l.history.Append(HistoryItem{Role: llm.RoleTool, Text: text, ToolCallID: r.CallID, ToolName: r.ToolName})
}

func responseText(r *scheduler.Response) string {
	if fr, ok := r.Parts["functionResponse"]; ok {
		if m, ok := fr.(map[string]any); ok {
			if e, ok := m["error"].(string); ok {
				return e
			}
		}
	}
	return r.Display.Text
}

func (l *Loop) offerFallback(ctx context.Context) bool {
	if l.QuotaConsent == nil {
		return false
	}
	if !l.QuotaConsent(ctx, "the premium model is out of quota; fall back to the secondary model?") {
		return false
	}
	l.fallback.Switch()
	return true
}

func (l *Loop) activeModel() string {
	if l.fallback == nil {
		return ""
	}
	return l.fallback.ActiveModel()
}

func (l *Loop) buildRequest() llm.Request {
	req := llm.Request{Model: l.activeModel()}
	for _, item := range l.history.Items() {
		req.Messages = append(req.Messages, llm.Message{
			Role: item.Role, Text: item.Text, ToolCallID: item.ToolCallID, ToolName: item.ToolName,
		})
	}
	for _, t := range l.registry.All() {
		req.Tools = append(req.Tools, llm.ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return req
}

func (l *Loop) publishFinal(taskID string, state eventbus.State, message string) {
	if state == "" {
		state = eventbus.StateInputRequired
	}
	l.bus.Publish(eventbus.Event{
		Kind: eventbus.KindStateChange,
		At:   time.Now(),
		StateChg: &eventbus.StateChange{
			TaskID: taskID, NewState: state, Message: message, Final: true,
			Metadata: eventbus.StateChangeMetadata{Model: l.activeModel()},
		},
	})
}

func (l *Loop) publishFailed(taskID, errMsg string) {
	l.bus.Publish(eventbus.Event{
		Kind: eventbus.KindStateChange,
		At:   time.Now(),
		StateChg: &eventbus.StateChange{
			TaskID: taskID, NewState: eventbus.StateFailed, Final: true,
			Metadata: eventbus.StateChangeMetadata{Model: l.activeModel(), Error: errMsg},
		},
	})
}
