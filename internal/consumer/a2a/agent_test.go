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

package a2a

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentturn/internal/eventbus"
	wireapi "github.com/kadirpekel/agentturn/pkg/a2a"
)

func TestTranslate_StateChangeMapsToStatusEnvelope(t *testing.T) {
	a := &Agent{card: &wireapi.AgentCard{Name: "agentturn"}}
	ev := eventbus.Event{
		Kind: eventbus.KindStateChange,
		At:   time.Now(),
		StateChg: &eventbus.StateChange{
			TaskID:   "task-1",
			NewState: eventbus.StateInputRequired,
			Message:  "awaiting approval",
			Final:    false,
		},
	}
	env, final := a.translate("task-1", "ctx-1", ev)
	require.NotNil(t, env)
	assert.False(t, final)
	assert.Equal(t, wireapi.KindStatus, env.Kind)
	assert.Equal(t, wireapi.StateInputRequired, env.Status.State)
	assert.Equal(t, "input-required", string(env.Status.State))
	assert.Equal(t, "awaiting approval", env.Status.Message)
	assert.Equal(t, "agentturn", env.Metadata.CoderAgent)
}

func TestTranslate_FinalStateChangeReportsFinal(t *testing.T) {
	a := &Agent{card: &wireapi.AgentCard{Name: "agentturn"}}
	ev := eventbus.Event{
		Kind: eventbus.KindStateChange,
		At:   time.Now(),
		StateChg: &eventbus.StateChange{
			TaskID:   "task-1",
			NewState: eventbus.StateCompleted,
			Final:    true,
		},
	}
	env, final := a.translate("task-1", "", ev)
	require.NotNil(t, env)
	assert.True(t, final)
	assert.True(t, env.Final)
	assert.Equal(t, wireapi.StateCompleted, env.Status.State)
}

func TestTranslate_FiltersEnvelopesForOtherTasks(t *testing.T) {
	a := &Agent{card: &wireapi.AgentCard{Name: "agentturn"}}
	ev := eventbus.Event{
		Kind: eventbus.KindStateChange,
		At:   time.Now(),
		StateChg: &eventbus.StateChange{
			TaskID:   "other-task",
			NewState: eventbus.StateWorking,
		},
	}
	env, final := a.translate("task-1", "", ev)
	assert.Nil(t, env)
	assert.False(t, final)
}

func TestTranslate_ContentBecomesMessageEnvelope(t *testing.T) {
	a := &Agent{card: &wireapi.AgentCard{Name: "agentturn"}}
	ev := eventbus.Event{
		Kind:    eventbus.KindContent,
		At:      time.Now(),
		Content: &eventbus.Content{Text: "partial answer"},
	}
	env, final := a.translate("task-1", "", ev)
	require.NotNil(t, env)
	assert.False(t, final)
	assert.Equal(t, wireapi.KindMessage, env.Kind)
	assert.Equal(t, "partial answer", env.Text)
}

func TestTranslate_ToolCallBecomesArtifactEnvelope(t *testing.T) {
	a := &Agent{card: &wireapi.AgentCard{Name: "agentturn"}}
	ev := eventbus.Event{
		Kind: eventbus.KindToolCallUpdate,
		At:   time.Now(),
		ToolCall: &eventbus.ToolCallSnapshot{
			CallID:      "call-1",
			Status:      "Success",
			Description: "read_file(a.txt)",
		},
	}
	env, final := a.translate("task-1", "", ev)
	require.NotNil(t, env)
	assert.False(t, final)
	assert.Equal(t, wireapi.KindArtifact, env.Kind)
	require.NotNil(t, env.Artifact)
	assert.Equal(t, "call-1", env.Artifact.ID)
}

func TestTranslate_StateChangeCarriesMetadata(t *testing.T) {
	a := &Agent{card: &wireapi.AgentCard{Name: "agentturn"}}
	ev := eventbus.Event{
		Kind: eventbus.KindStateChange,
		At:   time.Now(),
		StateChg: &eventbus.StateChange{
			TaskID:   "task-1",
			NewState: eventbus.StateFailed,
			Final:    true,
			Metadata: eventbus.StateChangeMetadata{Model: "claude", UserTier: "pro", Error: "quota exceeded"},
		},
	}
	env, final := a.translate("task-1", "", ev)
	require.NotNil(t, env)
	assert.True(t, final)
	assert.Equal(t, "claude", env.Metadata.Model)
	assert.Equal(t, "pro", env.Metadata.UserTier)
	assert.Equal(t, "quota exceeded", env.Metadata.Error)
}

func TestNew_ReturnsAgentExposingCard(t *testing.T) {
	bus := eventbus.New()
	card := &wireapi.AgentCard{Name: "agentturn"}
	agent := New(card, bus, nil)
	assert.Equal(t, card, agent.GetAgentCard())
}
