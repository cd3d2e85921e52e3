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

// Package a2a is the remote Agent-to-Agent event-bus consumer (spec.md
// §6's "Remote A2A protocol" surface): it implements pkg/a2a.Agent by
// driving internal/turn.Loop for each incoming task and translating C4
// events into the wire envelope pkg/a2a.Server serves over
// HTTP+JSON/SSE.
package a2a

import (
	"context"
	"fmt"
	"time"

	"github.com/kadirpekel/agentturn/internal/eventbus"
	"github.com/kadirpekel/agentturn/internal/turn"
	wireapi "github.com/kadirpekel/agentturn/pkg/a2a"
)

// stateMap translates C4's internal State vocabulary to pkg/a2a's
// wire State. Both sides spell "input-required" with a hyphen (see
// eventbus.State's doc comment), so this is a direct 1:1 lookup, kept
// as a map rather than a cast so a State either side adds later fails
// closed (falls through to wireapi.StateWorking) instead of silently
// compiling as a different wire value.
var stateMap = map[eventbus.State]wireapi.State{
	eventbus.StateSubmitted:     wireapi.StateSubmitted,
	eventbus.StateWorking:       wireapi.StateWorking,
	eventbus.StateInputRequired: wireapi.StateInputRequired,
	eventbus.StateCompleted:     wireapi.StateCompleted,
	eventbus.StateFailed:        wireapi.StateFailed,
	eventbus.StateCanceled:      wireapi.StateCanceled,
}

// Agent wraps a turn.Loop as a wireapi.Agent, so pkg/a2a.Server can
// host the orchestrator over HTTP+JSON.
type Agent struct {
	card *wireapi.AgentCard
	bus  *eventbus.Bus
	loop *turn.Loop
}

// New returns an Agent that drives loop for every task, publishing and
// consuming events on bus.
func New(card *wireapi.AgentCard, bus *eventbus.Bus, loop *turn.Loop) *Agent {
	return &Agent{card: card, bus: bus, loop: loop}
}

// GetAgentCard implements wireapi.Agent.
func (a *Agent) GetAgentCard() *wireapi.AgentCard { return a.card }

// ExecuteTask implements wireapi.Agent: runs the task to completion
// and returns its final Envelope, without incremental streaming.
func (a *Agent) ExecuteTask(ctx context.Context, req *wireapi.TaskRequest) (*wireapi.Envelope, error) {
	events, err := a.ExecuteTaskStreaming(ctx, req)
	if err != nil {
		return nil, err
	}
	var last wireapi.Envelope
	for env := range events {
		last = env
	}
	return &last, nil
}

// ExecuteTaskStreaming implements wireapi.Agent: subscribes to the bus
// for this task's id, drives the turn loop in the background, and
// translates every C4 event scoped to this task into a wireapi.
// Envelope on the returned channel, which is closed once the turn
// reaches its final state-change.
func (a *Agent) ExecuteTaskStreaming(ctx context.Context, req *wireapi.TaskRequest) (<-chan wireapi.Envelope, error) {
	taskID := req.TaskID
	subID := "a2a-" + taskID
	sub := a.bus.Subscribe(subID)
	out := make(chan wireapi.Envelope, 16)
	promptID := taskID

	go func() {
		defer close(out)
		defer a.bus.Unsubscribe(subID)

		done := make(chan struct{})
		go func() {
			defer close(done)
			if _, err := a.loop.Submit(ctx, taskID, promptID, req.Text); err != nil {
				out <- wireapi.FailureEnvelope(taskID, req.ContextID, err.Error(), time.Now(), wireapi.Metadata{CoderAgent: a.card.Name})
			}
		}()

		for {
			select {
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				env, final := a.translate(taskID, req.ContextID, ev)
				if env != nil {
					out <- *env
				}
				if final {
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// translate maps one eventbus.Event onto the wire Envelope shape for
// taskID. State-change events carrying another TaskID are filtered
// out; content, artifact and tool-call events are not filtered and are
// stamped with taskID. final reports whether this was the turn's
// terminating event.
func (a *Agent) translate(taskID, contextID string, ev eventbus.Event) (*wireapi.Envelope, bool) {
	switch ev.Kind {
	case eventbus.KindStateChange:
		sc := ev.StateChg
		if sc.TaskID != "" && sc.TaskID != taskID {
			return nil, false
		}
		state, ok := stateMap[sc.NewState]
		if !ok {
			state = wireapi.StateWorking
		}
		meta := wireapi.Metadata{
			CoderAgent: a.card.Name,
			Model:      sc.Metadata.Model,
			UserTier:   sc.Metadata.UserTier,
			Error:      sc.Metadata.Error,
		}
		env := wireapi.NewStatusEnvelope(taskID, contextID, state, sc.Message, sc.Final, ev.At, meta)
		return &env, sc.Final

	case eventbus.KindContent:
		env := wireapi.NewMessageEnvelope(taskID, contextID, ev.Content.Text, ev.At)
		return &env, false

	case eventbus.KindArtifactUpdate, eventbus.KindToolCallUpdate, eventbus.KindToolCallConfirm:
		env := toolEventToArtifactEnvelope(taskID, contextID, ev)
		return &env, false

	default:
		return nil, false
	}
}

func toolEventToArtifactEnvelope(taskID, contextID string, ev eventbus.Event) wireapi.Envelope {
	var id, name, text string
	switch ev.Kind {
	case eventbus.KindArtifactUpdate:
		id, name, text = ev.Artifact.CallID, "tool-output", ev.Artifact.Chunk
	case eventbus.KindToolCallUpdate, eventbus.KindToolCallConfirm:
		tc := ev.ToolCall
		id = tc.CallID
		name = "tool-call"
		text = fmt.Sprintf("%s: %s", tc.Status, tc.Description)
	}
	return wireapi.NewArtifactEnvelope(taskID, contextID, wireapi.Artifact{ID: id, Name: name, Text: text}, ev.At)
}
