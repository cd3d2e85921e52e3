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

// Package tool implements C1: Tool Registry & Invocation. A Registry
// resolves a tool name to a declarative Tool descriptor; a Tool
// validates arguments into a bound Invocation.
package tool

import "context"

// Kind tags a Tool's side-effect category, used by the scheduler for
// serialization and approval-mode decisions (AutoEditOnly auto-
// approves Edit/Write; exploratory-state loop-detection thresholds
// differ for Think/Search vs Edit/Exec).
type Kind string

const (
	KindEdit   Kind = "edit"
	KindWrite  Kind = "write"
	KindExec   Kind = "exec"
	KindSearch Kind = "search"
	KindThink  Kind = "think"
	KindRead   Kind = "read"
	KindOther  Kind = "other"
)

// Capabilities describes a Tool's output behavior.
type Capabilities struct {
	StreamsOutput bool // emits incremental output via on_output_chunk
	EmitsMarkdown bool // display representation should render as markdown
}

// Schema is a JSON-schema-like description of a tool's arguments.
// Kept as a raw map rather than a typed struct because tool
// definitions (including MCP-sourced ones) arrive as JSON.
type Schema map[string]any

// Tool is a declarative descriptor: name, description, schema, and a
// factory that validates arguments into an Invocation.
type Tool interface {
	Name() string
	DisplayName() string
	Description() string
	Schema() Schema
	Kind() Kind
	Capabilities() Capabilities

	// NewInvocation validates args and returns a bound Invocation.
	// Validation failures are reported as *orcherr.Error{Kind:
	// InvalidParams} — synchronously, before any confirmation is
	// solicited.
	NewInvocation(ctx context.Context, args map[string]any) (Invocation, error)
}

// ChunkFunc is invoked zero or more times during Execute with
// incremental output text.
type ChunkFunc func(chunk string)

// Invocation is a tool bound to validated arguments, ready to confirm
// or execute (spec.md §4.1).
type Invocation interface {
	// Describe returns a one-line human summary, e.g. "Replace 2
	// occurrences in `src/x.rs`".
	Describe() string

	// ShouldConfirm may perform read-only I/O (e.g. compute a diff) to
	// build approval material. Returns (nil, nil) if the tool needs no
	// confirmation for this invocation.
	ShouldConfirm(ctx context.Context) (*ConfirmationDetails, error)

	// Execute performs the side effect. onChunk may be called any
	// number of times with incremental text before the final Result is
	// returned.
	Execute(ctx context.Context, onChunk ChunkFunc) (*Result, error)

	Kind() Kind
}

// ConfirmationDetails is the tagged variant describing what an
// Invocation intends to do, used to build user approval material
// (spec.md §3).
type ConfirmationDetails struct {
	Variant ConfirmationVariant

	// Edit variant.
	Path      string
	UnifiedDiff string

	// ExecCommand variant.
	Command     string
	RootCommand string // classified prefix, from C5's extractBaseCommand

	// McpServerCall variant.
	ServerName string
	ToolName   string

	// Info variant / shared human-readable text.
	Info string
}

// ConfirmationVariant selects which fields of ConfirmationDetails are
// populated.
type ConfirmationVariant string

const (
	VariantEdit          ConfirmationVariant = "edit"
	VariantExecCommand   ConfirmationVariant = "exec-command"
	VariantMcpServerCall ConfirmationVariant = "mcp-server-call"
	VariantInfo          ConfirmationVariant = "info"
)

// Display is the human-facing representation of a Result, typed so
// consumers can render plain text, a diff, or MCP structured content
// without string-sniffing.
type Display struct {
	Kind DisplayKind
	Text string
	Diff string
}

// DisplayKind selects how a Display should be rendered.
type DisplayKind string

const (
	DisplayPlainText DisplayKind = "plain-text"
	DisplayFileDiff  DisplayKind = "file-diff"
	DisplayMCP       DisplayKind = "mcp-structured"
)

// Result is the outcome of Execute: response_parts (model-facing,
// opaque) and a typed Display (human-facing).
type Result struct {
	ResponseParts map[string]any
	Display       Display
	IsError       bool
}

// Registry resolves tool names to Tool descriptors.
type Registry interface {
	Lookup(name string) (Tool, bool)
	All() []Tool
	Register(t Tool) error
}
