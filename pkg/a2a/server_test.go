package a2a

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAgent emits a scripted sequence of Envelopes for every task, so
// server tests exercise the HTTP layer without a real turn.Loop.
type fakeAgent struct {
	card  AgentCard
	envs  []Envelope
	err   error
	calls []TaskRequest
}

func (a *fakeAgent) GetAgentCard() *AgentCard { return &a.card }

func (a *fakeAgent) ExecuteTask(ctx context.Context, req *TaskRequest) (*Envelope, error) {
	a.calls = append(a.calls, *req)
	if a.err != nil {
		return nil, a.err
	}
	last := a.envs[len(a.envs)-1]
	return &last, nil
}

func (a *fakeAgent) ExecuteTaskStreaming(ctx context.Context, req *TaskRequest) (<-chan Envelope, error) {
	a.calls = append(a.calls, *req)
	if a.err != nil {
		return nil, a.err
	}
	out := make(chan Envelope, len(a.envs))
	for _, e := range a.envs {
		out <- e
	}
	close(out)
	return out, nil
}

func newTestServer(t *testing.T, agentID string, agent *fakeAgent) *Server {
	t.Helper()
	s := NewServer(&ServerConfig{Host: "127.0.0.1", Port: 0})
	require.NoError(t, s.RegisterAgent(agentID, agent, "public"))
	return s
}

func TestServer_ListAgents(t *testing.T) {
	agent := &fakeAgent{card: AgentCard{Name: "agentturn"}}
	s := newTestServer(t, "agentturn", agent)

	req := httptest.NewRequest(http.MethodGet, "/agents", nil)
	w := httptest.NewRecorder()
	s.handleListAgents(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var dir AgentDirectory
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dir))
	assert.Equal(t, 1, dir.Total)
	assert.Equal(t, "agentturn", dir.Agents[0].Name)
}

func TestServer_ListAgents_HidesPrivate(t *testing.T) {
	agent := &fakeAgent{card: AgentCard{Name: "internal-only"}}
	s := NewServer(&ServerConfig{})
	require.NoError(t, s.RegisterAgent("internal", agent, "private"))

	req := httptest.NewRequest(http.MethodGet, "/agents", nil)
	w := httptest.NewRecorder()
	s.handleListAgents(w, req)

	var dir AgentDirectory
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dir))
	assert.Equal(t, 0, dir.Total)
}

func TestServer_GetAgentCard_NotFound(t *testing.T) {
	s := NewServer(&ServerConfig{})
	req := httptest.NewRequest(http.MethodGet, "/agents/missing", nil)
	w := httptest.NewRecorder()
	s.handleAgentRoutes(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_HandleTaskSubmit(t *testing.T) {
	final := NewStatusEnvelope("t1", "", StateCompleted, "done", true, time.Now(), Metadata{})
	agent := &fakeAgent{card: AgentCard{Name: "agentturn"}, envs: []Envelope{final}}
	s := newTestServer(t, "agentturn", agent)

	body, _ := json.Marshal(TaskRequest{TaskID: "t1", Text: "hello"})
	req := httptest.NewRequest(http.MethodPost, "/agents/agentturn/tasks", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.handleAgentRoutes(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, StateCompleted, env.Status.State)
	require.Len(t, agent.calls, 1)
	assert.Equal(t, "hello", agent.calls[0].Text)
}

func TestServer_HandleTaskSubmit_AgentError(t *testing.T) {
	agent := &fakeAgent{card: AgentCard{Name: "agentturn"}, err: assert.AnError}
	s := newTestServer(t, "agentturn", agent)

	body, _ := json.Marshal(TaskRequest{TaskID: "t1", Text: "hello"})
	req := httptest.NewRequest(http.MethodPost, "/agents/agentturn/tasks", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.handleAgentRoutes(w, req)

	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, StateFailed, env.Status.State)
	assert.True(t, env.Final)
}

func TestServer_HandleTaskStream(t *testing.T) {
	envs := []Envelope{
		NewStatusEnvelope("t1", "", StateWorking, "", false, time.Now(), Metadata{}),
		NewMessageEnvelope("t1", "", "hi", time.Now()),
		NewStatusEnvelope("t1", "", StateCompleted, "", true, time.Now(), Metadata{}),
	}
	agent := &fakeAgent{card: AgentCard{Name: "agentturn"}, envs: envs}
	s := newTestServer(t, "agentturn", agent)

	body, _ := json.Marshal(TaskRequest{TaskID: "t1", Text: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/agents/agentturn/tasks/stream", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.handleAgentRoutes(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	scanner := bufio.NewScanner(w.Body)
	var dataLines []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))
		}
	}
	require.Len(t, dataLines, 3)
	var last Envelope
	require.NoError(t, json.Unmarshal([]byte(dataLines[2]), &last))
	assert.True(t, last.Final)
}

func TestServer_HandleTaskGet_NotFound(t *testing.T) {
	s := NewServer(&ServerConfig{})
	req := httptest.NewRequest(http.MethodGet, "/agents/agentturn/tasks/missing", nil)
	w := httptest.NewRecorder()
	s.handleAgentRoutes(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_HandleTaskCancel(t *testing.T) {
	agent := &fakeAgent{card: AgentCard{Name: "agentturn"}}
	s := newTestServer(t, "agentturn", agent)
	s.storeTask("t1", taskRecord{cancel: func() {}})

	req := httptest.NewRequest(http.MethodPost, "/agents/agentturn/tasks/t1/cancel", nil)
	w := httptest.NewRecorder()
	s.handleAgentRoutes(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, StateCanceled, env.Status.State)
}

func TestServer_SetAuthValidator(t *testing.T) {
	s := NewServer(&ServerConfig{})
	s.SetAuthValidator(&mockAuthValidator{})
	assert.NotNil(t, s.authValidator)
}

type mockAuthValidator struct{}

func (m *mockAuthValidator) HTTPMiddleware(next http.Handler) http.Handler { return next }

func (m *mockAuthValidator) ValidateToken(ctx context.Context, tokenString string) (interface{}, error) {
	return nil, nil
}
