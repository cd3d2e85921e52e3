package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/agentturn/pkg/observability"
)

// Server hosts one or more Agents over HTTP+JSON/SSE, per spec.md §6's
// remote A2A protocol surface: agent discovery, task submission, and
// envelope streaming.
type Server struct {
	host            string
	port            int
	baseURL         string
	agents          map[string]Agent
	agentCards      map[string]*AgentCard
	agentVisibility map[string]string // "public" or "private"
	tasks           map[string]*taskRecord
	mu              sync.RWMutex
	httpServer      *http.Server
	authValidator   AuthValidator
	middleware      func(http.Handler) http.Handler
}

type taskRecord struct {
	last   Envelope
	cancel context.CancelFunc
}

// AuthValidator optionally gates every /agents/ and /tasks/ request
// behind bearer-token validation.
type AuthValidator interface {
	HTTPMiddleware(next http.Handler) http.Handler
	ValidateToken(ctx context.Context, tokenString string) (interface{}, error)
}

// ServerConfig configures a Server's listen address.
type ServerConfig struct {
	Host    string `yaml:"host" json:"host"`
	Port    int    `yaml:"port" json:"port"`
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// ServerOption configures optional Server behavior.
type ServerOption func(*Server)

// WithObservability records HTTP request traces and metrics via the
// supplied tracer/metrics, either of which may be nil.
func WithObservability(tracer *observability.Tracer, metrics *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.middleware = observability.HTTPMiddleware(tracer, metrics)
	}
}

// NewServer returns a Server ready to have agents registered on it.
func NewServer(cfg *ServerConfig, opts ...ServerOption) *Server {
	s := &Server{
		host:            cfg.Host,
		port:            cfg.Port,
		baseURL:         cfg.BaseURL,
		agents:          make(map[string]Agent),
		agentCards:      make(map[string]*AgentCard),
		agentVisibility: make(map[string]string),
		tasks:           make(map[string]*taskRecord),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetAuthValidator installs token validation on every agent/task route.
func (s *Server) SetAuthValidator(validator AuthValidator) {
	s.authValidator = validator
}

// RegisterAgent makes agent reachable at /agents/{agentID}, with
// visibility "public" (listed in discovery) or "private" (left out of
// discovery, and rejected as unknown by the card, task-submission and
// task-streaming routes).
func (s *Server) RegisterAgent(agentID string, agent Agent, visibility string) error {
	if agentID == "" {
		return fmt.Errorf("a2a: agent id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[agentID] = agent
	s.agentCards[agentID] = agent.GetAgentCard()
	s.agentVisibility[agentID] = visibility
	return nil
}

// Handler returns the server's full routing tree, wrapped in CORS and
// (if configured) observability and auth middleware. Exposed so tests
// can drive the server through httptest without binding a socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/agents", s.handleListAgents)

	if s.authValidator != nil {
		mux.Handle("/agents/", s.authValidator.HTTPMiddleware(http.HandlerFunc(s.handleAgentRoutes)))
	} else {
		mux.HandleFunc("/agents/", s.handleAgentRoutes)
	}

	handler := s.corsMiddleware(http.Handler(mux))
	if s.middleware != nil {
		handler = s.middleware(handler)
	}
	return handler
}

// Start begins serving until the process is interrupted or Stop is
// called; it blocks, returning http.ErrServerClosed on graceful stop.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: s.Handler(),
	}
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// handleListAgents serves GET /agents: the directory of public agents.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	agents := make([]AgentCard, 0, len(s.agentCards))
	for id, card := range s.agentCards {
		if s.agentVisibility[id] == "public" {
			agents = append(agents, *card)
		}
	}
	respondJSON(w, http.StatusOK, AgentDirectory{Agents: agents, Total: len(agents)})
}

// handleAgentRoutes dispatches /agents/{agentID}[/tasks[/...]].
func (s *Server) handleAgentRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/agents/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "agent id required", http.StatusBadRequest)
		return
	}
	agentID := parts[0]

	switch {
	case len(parts) == 1:
		s.handleGetAgentCard(w, r, agentID)
	case len(parts) == 2 && parts[1] == "tasks":
		s.handleTaskSubmit(w, r, agentID)
	case len(parts) == 3 && parts[1] == "tasks" && parts[2] == "stream":
		s.handleTaskStream(w, r, agentID)
	case len(parts) == 3 && parts[1] == "tasks":
		s.handleTaskGet(w, r, agentID, parts[2])
	case len(parts) == 4 && parts[1] == "tasks" && parts[3] == "cancel":
		s.handleTaskCancel(w, r, agentID, parts[2])
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) handleGetAgentCard(w http.ResponseWriter, r *http.Request, agentID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.RLock()
	card, exists := s.agentCards[agentID]
	visibility := s.agentVisibility[agentID]
	s.mu.RUnlock()
	if !exists || visibility == "private" {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, card)
}

func (s *Server) lookupAgent(agentID string) (Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, exists := s.agents[agentID]
	if !exists || s.agentVisibility[agentID] == "private" {
		return nil, false
	}
	return agent, true
}

// handleTaskSubmit implements POST /agents/{agentID}/tasks: run the
// task to completion and return its final Envelope.
func (s *Server) handleTaskSubmit(w http.ResponseWriter, r *http.Request, agentID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	agent, ok := s.lookupAgent(agentID)
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}

	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TaskID == "" {
		req.TaskID = uuid.New().String()
	}

	ctx, cancel := context.WithCancel(r.Context())
	s.storeTask(req.TaskID, taskRecord{cancel: cancel})

	env, err := agent.ExecuteTask(ctx, &req)
	cancel()
	if err != nil {
		env = FailureEnvelope(req.TaskID, req.ContextID, err.Error(), time.Now(), Metadata{})
	}
	s.updateTask(req.TaskID, env)
	respondJSON(w, http.StatusOK, env)
}

// handleTaskStream implements POST /agents/{agentID}/tasks/stream: run
// the task, relaying every Envelope to the client over SSE.
func (s *Server) handleTaskStream(w http.ResponseWriter, r *http.Request, agentID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	agent, ok := s.lookupAgent(agentID)
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}

	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TaskID == "" {
		req.TaskID = uuid.New().String()
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	s.storeTask(req.TaskID, taskRecord{cancel: cancel})

	events, err := agent.ExecuteTaskStreaming(ctx, &req)
	if err != nil {
		env := FailureEnvelope(req.TaskID, req.ContextID, err.Error(), time.Now(), Metadata{})
		s.updateTask(req.TaskID, env)
		sendSSE(w, flusher, env)
		return
	}
	for env := range events {
		s.updateTask(req.TaskID, env)
		sendSSE(w, flusher, env)
	}
}

// handleTaskGet implements GET /agents/{agentID}/tasks/{taskID}: the
// last Envelope observed for taskID.
func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request, agentID, taskID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.RLock()
	rec, exists := s.tasks[taskID]
	s.mu.RUnlock()
	if !exists {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, rec.last)
}

// handleTaskCancel implements POST /agents/{agentID}/tasks/{taskID}/cancel.
func (s *Server) handleTaskCancel(w http.ResponseWriter, r *http.Request, agentID, taskID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	rec, exists := s.tasks[taskID]
	s.mu.Unlock()
	if !exists {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	rec.cancel()
	env := NewStatusEnvelope(taskID, "", StateCanceled, "canceled by client", true, time.Now(), Metadata{})
	s.updateTask(taskID, env)
	respondJSON(w, http.StatusOK, env)
}

func (s *Server) storeTask(taskID string, rec taskRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[taskID] = &rec
}

func (s *Server) updateTask(taskID string, env Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, exists := s.tasks[taskID]
	if !exists {
		rec = &taskRecord{}
		s.tasks[taskID] = rec
	}
	rec.last = env
}

func sendSSE(w http.ResponseWriter, flusher http.Flusher, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\n", env.Kind)
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
