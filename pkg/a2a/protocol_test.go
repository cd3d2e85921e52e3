package a2a

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateInputRequired_WireSpelling(t *testing.T) {
	// spec.md §6 mandates the hyphenated spelling at the wire boundary;
	// internal/eventbus.State uses the same spelling so a translation
	// never has to reconcile two different strings for one state.
	assert.Equal(t, State("input-required"), StateInputRequired)
}

func TestEnvelope_JSONRoundTrip(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	env := Envelope{
		Kind:      KindStatus,
		TaskID:    "t1",
		ContextID: "ctx1",
		Status:    Status{State: StateInputRequired, Message: "awaiting confirmation", Timestamp: at},
		Final:     true,
		Metadata:  Metadata{CoderAgent: "agentturn", Model: "claude", UserTier: "pro"},
	}

	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"input-required"`)
	assert.Contains(t, string(data), `"taskId":"t1"`)
	assert.Contains(t, string(data), `"contextId":"ctx1"`)
	assert.Contains(t, string(data), `"final":true`)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, env, decoded)
}

func TestEnvelope_OmitsEmptyMetadataError(t *testing.T) {
	env := Envelope{Kind: KindMessage, TaskID: "t1", Text: "hello"}
	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"error"`)
	assert.Contains(t, string(data), `"text":"hello"`)
}

func TestAgentDirectory_JSON(t *testing.T) {
	dir := AgentDirectory{
		Agents: []AgentCard{{Name: "agentturn", Capabilities: AgentCapabilities{Streaming: true}}},
		Total:  1,
	}
	data, err := json.Marshal(dir)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name":"agentturn"`)
	assert.Contains(t, string(data), `"streaming":true`)
}
