package a2a

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClientServer(t *testing.T, agent *fakeAgent) (*Client, func()) {
	t.Helper()
	s := NewServer(&ServerConfig{})
	require.NoError(t, s.RegisterAgent("agentturn", agent, "public"))
	srv := httptest.NewServer(s.Handler())
	client := NewClient(&ClientConfig{BaseURL: srv.URL})
	return client, srv.Close
}

func TestClient_ListAgents(t *testing.T) {
	agent := &fakeAgent{card: AgentCard{Name: "agentturn", Capabilities: AgentCapabilities{Streaming: true}}}
	client, closeFn := newTestClientServer(t, agent)
	defer closeFn()

	dir, err := client.ListAgents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, dir.Total)
	assert.Equal(t, "agentturn", dir.Agents[0].Name)
}

func TestClient_GetAgentCard(t *testing.T) {
	agent := &fakeAgent{card: AgentCard{Name: "agentturn", Version: "1.0.0"}}
	client, closeFn := newTestClientServer(t, agent)
	defer closeFn()

	card, err := client.GetAgentCard(context.Background(), "agentturn")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", card.Version)
}

func TestClient_SubmitTask(t *testing.T) {
	final := NewStatusEnvelope("t1", "", StateCompleted, "done", true, time.Now(), Metadata{})
	agent := &fakeAgent{card: AgentCard{Name: "agentturn"}, envs: []Envelope{final}}
	client, closeFn := newTestClientServer(t, agent)
	defer closeFn()

	env, err := client.SubmitTask(context.Background(), "agentturn", &TaskRequest{TaskID: "t1", Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, env.Status.State)
}

func TestClient_StreamTask(t *testing.T) {
	envs := []Envelope{
		NewStatusEnvelope("t1", "", StateWorking, "", false, time.Now(), Metadata{}),
		NewMessageEnvelope("t1", "", "hi there", time.Now()),
		NewStatusEnvelope("t1", "", StateCompleted, "", true, time.Now(), Metadata{}),
	}
	agent := &fakeAgent{card: AgentCard{Name: "agentturn"}, envs: envs}
	client, closeFn := newTestClientServer(t, agent)
	defer closeFn()

	ch, err := client.StreamTask(context.Background(), "agentturn", &TaskRequest{TaskID: "t1", Text: "hi"})
	require.NoError(t, err)

	var got []Envelope
	for env := range ch {
		got = append(got, env)
	}
	require.Len(t, got, 3)
	assert.Equal(t, "hi there", got[1].Text)
	assert.True(t, got[2].Final)
}

func TestClient_GetTask_NotFound(t *testing.T) {
	agent := &fakeAgent{card: AgentCard{Name: "agentturn"}}
	client, closeFn := newTestClientServer(t, agent)
	defer closeFn()

	_, err := client.GetTask(context.Background(), "agentturn", "missing")
	assert.Error(t, err)
}

func TestClient_CancelTask(t *testing.T) {
	agent := &fakeAgent{card: AgentCard{Name: "agentturn"}}
	s := NewServer(&ServerConfig{})
	require.NoError(t, s.RegisterAgent("agentturn", agent, "public"))
	s.storeTask("t1", taskRecord{cancel: func() {}})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	client := NewClient(&ClientConfig{BaseURL: srv.URL})

	env, err := client.CancelTask(context.Background(), "agentturn", "t1")
	require.NoError(t, err)
	assert.Equal(t, StateCanceled, env.Status.State)
}

func TestNewClient_DefaultConfig(t *testing.T) {
	client := NewClient(nil)
	require.NotNil(t, client)
	assert.Empty(t, client.baseURL)
}
