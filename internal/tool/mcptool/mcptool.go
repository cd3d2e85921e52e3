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

// Package mcptool wires an MCP (Model Context Protocol) stdio server
// into C1's Registry: connect lazily, list the remote tools on each
// Tools call, and
// expose each as a Tool whose ConfirmationDetails variant is
// McpServerCall.
package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kadirpekel/agentturn/internal/orcherr"
	"github.com/kadirpekel/agentturn/internal/tool"
)

// Config configures a stdio MCP server connection.
type Config struct {
	ServerName string
	Command    string
	Args       []string
	Env        map[string]string
}

// Toolset lazily connects to an MCP server over stdio and exposes its
// tools as C1 Tool descriptors.
type Toolset struct {
	cfg Config

	mu        sync.Mutex
	client    *client.Client
	connected bool
}

// New returns an unconnected Toolset for cfg.
func New(cfg Config) *Toolset {
	return &Toolset{cfg: cfg}
}

// Tools connects (on first call) and returns one Tool per remote MCP
// tool definition.
func (t *Toolset) Tools(ctx context.Context) ([]tool.Tool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		if err := t.connect(ctx); err != nil {
			return nil, fmt.Errorf("mcptool: connect %q: %w", t.cfg.ServerName, err)
		}
	}

	listResp, err := t.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcptool: list tools on %q: %w", t.cfg.ServerName, err)
	}

	out := make([]tool.Tool, 0, len(listResp.Tools))
	for _, def := range listResp.Tools {
		out = append(out, &mcpTool{
			toolset: t,
			server:  t.cfg.ServerName,
			name:    def.Name,
			desc:    def.Description,
			schema:  convertSchema(def.InputSchema),
		})
	}
	return out, nil
}

// Close shuts down the underlying MCP client, if connected.
func (t *Toolset) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	t.connected = false
	return err
}

func (t *Toolset) connect(ctx context.Context) error {
	env := make([]string, 0, len(t.cfg.Env))
	for k, v := range t.cfg.Env {
		env = append(env, k+"="+v)
	}

	c, err := client.NewStdioMCPClient(t.cfg.Command, env, t.cfg.Args...)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "agentturn", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	t.client = c
	t.connected = true
	return nil
}

func (t *Toolset) call(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	t.mu.Lock()
	c := t.client
	t.mu.Unlock()
	if c == nil {
		return nil, fmt.Errorf("mcptool: %q not connected", t.cfg.ServerName)
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return c.CallTool(ctx, req)
}

// mcpTool is the C1 Tool descriptor for one remote MCP tool definition.
type mcpTool struct {
	toolset *Toolset
	server  string
	name    string
	desc    string
	schema  map[string]any
}

func (w *mcpTool) Name() string             { return w.name }
func (w *mcpTool) DisplayName() string       { return w.name }
func (w *mcpTool) Description() string       { return w.desc }
func (w *mcpTool) Kind() tool.Kind           { return tool.KindOther }
func (w *mcpTool) Capabilities() tool.Capabilities {
	return tool.Capabilities{}
}
func (w *mcpTool) Schema() tool.Schema { return tool.Schema(w.schema) }

func (w *mcpTool) NewInvocation(ctx context.Context, args map[string]any) (tool.Invocation, error) {
	return &mcpInvocation{toolset: w.toolset, server: w.server, name: w.name, args: args}, nil
}

type mcpInvocation struct {
	toolset *Toolset
	server  string
	name    string
	args    map[string]any
}

func (i *mcpInvocation) Kind() tool.Kind { return tool.KindOther }
func (i *mcpInvocation) Describe() string {
	return fmt.Sprintf("Call `%s` on MCP server `%s`", i.name, i.server)
}

func (i *mcpInvocation) ShouldConfirm(ctx context.Context) (*tool.ConfirmationDetails, error) {
	return &tool.ConfirmationDetails{
		Variant:    tool.VariantMcpServerCall,
		ServerName: i.server,
		ToolName:   i.name,
	}, nil
}

func (i *mcpInvocation) Execute(ctx context.Context, onChunk tool.ChunkFunc) (*tool.Result, error) {
	resp, err := i.toolset.call(ctx, i.name, i.args)
	if err != nil {
		return nil, orcherr.New(orcherr.ExecutionFailed, "tool.mcptool", "execute", err.Error(), err)
	}

	var texts []string
	for _, c := range resp.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	joined := ""
	for n, t := range texts {
		if n > 0 {
			joined += "\n"
		}
		joined += t
	}

	if resp.IsError {
		return &tool.Result{
			IsError:       true,
			ResponseParts: map[string]any{"error": joined},
			Display:       tool.Display{Kind: tool.DisplayMCP, Text: joined},
		}, nil
	}
	return &tool.Result{
		ResponseParts: map[string]any{"result": joined},
		Display:       tool.Display{Kind: tool.DisplayMCP, Text: joined},
	}, nil
}

func convertSchema(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]any
	_ = json.Unmarshal(data, &out)
	return out
}
