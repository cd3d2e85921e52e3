package a2a

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewStatusEnvelope(t *testing.T) {
	at := time.Now()
	env := NewStatusEnvelope("t1", "ctx1", StateWorking, "running", false, at, Metadata{CoderAgent: "agentturn"})
	assert.Equal(t, KindStatus, env.Kind)
	assert.Equal(t, "t1", env.TaskID)
	assert.Equal(t, StateWorking, env.Status.State)
	assert.False(t, env.Final)
	assert.Equal(t, "agentturn", env.Metadata.CoderAgent)
}

func TestNewMessageEnvelope(t *testing.T) {
	env := NewMessageEnvelope("t1", "ctx1", "hello", time.Now())
	assert.Equal(t, KindMessage, env.Kind)
	assert.Equal(t, "hello", env.Text)
}

func TestNewArtifactEnvelope(t *testing.T) {
	env := NewArtifactEnvelope("t1", "ctx1", Artifact{ID: "c1", Name: "tool-output", Text: "ok"}, time.Now())
	assert.Equal(t, KindArtifact, env.Kind)
	require := assert.New(t)
	require.NotNil(env.Artifact)
	require.Equal("c1", env.Artifact.ID)
}

func TestFailureEnvelope(t *testing.T) {
	env := FailureEnvelope("t1", "ctx1", "boom", time.Now(), Metadata{CoderAgent: "agentturn"})
	assert.Equal(t, StateFailed, env.Status.State)
	assert.True(t, env.Final)
	assert.Equal(t, "boom", env.Metadata.Error)
	assert.Equal(t, "boom", env.Status.Message)
}
