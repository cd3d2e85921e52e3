package a2a

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kadirpekel/agentturn/pkg/httpclient"
)

// Client talks to a remote orchestrator's A2A server: discovery, task
// submission, and envelope streaming. Transport goes through
// pkg/httpclient so transient 429/5xx responses from a remote
// orchestrator are retried with backoff.
type Client struct {
	baseURL string
	http    *httpclient.Client
	token   string
}

// ClientConfig configures a Client. A zero value dials nothing until
// BaseURL is set.
type ClientConfig struct {
	BaseURL string
	Token   string // optional bearer token, sent as Authorization
}

// NewClient returns a Client; cfg may be nil to accept defaults
// (empty BaseURL, every call then needs a request built around an
// absolute URL).
func NewClient(cfg *ClientConfig) *Client {
	c := &Client{http: httpclient.New(httpclient.WithMaxRetries(3))}
	if cfg != nil {
		c.baseURL = strings.TrimSuffix(cfg.BaseURL, "/")
		c.token = cfg.Token
	}
	return c
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var r *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("a2a client: marshal request: %w", err)
		}
		r = bytes.NewReader(data)
	} else {
		r = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// ListAgents fetches the remote agent directory (GET /agents).
func (c *Client) ListAgents(ctx context.Context) (*AgentDirectory, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/agents", nil)
	if err != nil {
		return nil, err
	}
	var dir AgentDirectory
	if err := c.doJSON(req, &dir); err != nil {
		return nil, err
	}
	return &dir, nil
}

// GetAgentCard fetches one agent's card (GET /agents/{agentID}).
func (c *Client) GetAgentCard(ctx context.Context, agentID string) (*AgentCard, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/agents/"+agentID, nil)
	if err != nil {
		return nil, err
	}
	var card AgentCard
	if err := c.doJSON(req, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// SubmitTask runs req to completion and returns the final Envelope
// (POST /agents/{agentID}/tasks).
func (c *Client) SubmitTask(ctx context.Context, agentID string, req *TaskRequest) (*Envelope, error) {
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/agents/"+agentID+"/tasks", req)
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := c.doJSON(httpReq, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// StreamTask submits req and relays every Envelope the remote
// orchestrator emits over SSE, closing the channel when the stream
// ends or ctx is canceled (POST /agents/{agentID}/tasks/stream).
func (c *Client) StreamTask(ctx context.Context, agentID string, req *TaskRequest) (<-chan Envelope, error) {
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/agents/"+agentID+"/tasks/stream", req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("a2a client: stream task: HTTP %d", resp.StatusCode)
	}

	out := make(chan Envelope, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var env Envelope
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &env); err != nil {
				continue
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
			if env.Final {
				return
			}
		}
	}()
	return out, nil
}

// GetTask fetches the last known Envelope for taskID (GET
// /agents/{agentID}/tasks/{taskID}).
func (c *Client) GetTask(ctx context.Context, agentID, taskID string) (*Envelope, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/agents/"+agentID+"/tasks/"+taskID, nil)
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := c.doJSON(req, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// CancelTask cancels a running task (POST
// /agents/{agentID}/tasks/{taskID}/cancel).
func (c *Client) CancelTask(ctx context.Context, agentID, taskID string) (*Envelope, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/agents/"+agentID+"/tasks/"+taskID+"/cancel", nil)
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := c.doJSON(req, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (c *Client) doJSON(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("a2a client: %s %s: HTTP %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
