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

// Package fstool implements the read_file, write_file and edit_file
// tools (spec.md §4.6): every path argument resolves through
// internal/safety.WorkspaceRoots before the tool touches disk, rather
// than trusting a single tool-owned working directory.
package fstool

import (
	"context"
	"fmt"
	"os"

	"github.com/aymanbagabas/go-udiff"

	"github.com/kadirpekel/agentturn/internal/orcherr"
	"github.com/kadirpekel/agentturn/internal/safety"
	"github.com/kadirpekel/agentturn/internal/tool"
)

func invalidParams(arg string, err error) error {
	return orcherr.New(orcherr.InvalidParams, "tool.fstool", "validate", arg+": "+err.Error(), err)
}

// NewReadFile returns the read_file Tool.
func NewReadFile(roots *safety.WorkspaceRoots) tool.Tool {
	return &readFileTool{roots: roots}
}

// NewWriteFile returns the write_file Tool.
func NewWriteFile(roots *safety.WorkspaceRoots) tool.Tool {
	return &writeFileTool{roots: roots}
}

// NewEditFile returns the edit_file Tool.
func NewEditFile(roots *safety.WorkspaceRoots) tool.Tool {
	return &editFileTool{roots: roots}
}

// ---------------------------------------------------------------------------
// read_file
// ---------------------------------------------------------------------------

type readFileTool struct{ roots *safety.WorkspaceRoots }

func (t *readFileTool) Name() string        { return "read_file" }
func (t *readFileTool) DisplayName() string { return "Read File" }
func (t *readFileTool) Description() string {
	return "Reads the contents of a file within the workspace."
}
func (t *readFileTool) Kind() tool.Kind { return tool.KindRead }
func (t *readFileTool) Capabilities() tool.Capabilities {
	return tool.Capabilities{}
}
func (t *readFileTool) Schema() tool.Schema {
	return tool.Schema{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string"},
		},
		"required": []string{"path"},
	}
}

func (t *readFileTool) NewInvocation(ctx context.Context, args map[string]any) (tool.Invocation, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	resolved, err := t.roots.Resolve(path, safety.ResolveOpts{WantFile: true})
	if err != nil {
		return nil, err
	}
	return &readFileInvocation{path: resolved, original: path}, nil
}

type readFileInvocation struct {
	path     string
	original string
}

func (i *readFileInvocation) Describe() string { return fmt.Sprintf("Read `%s`", i.original) }
func (i *readFileInvocation) Kind() tool.Kind  { return tool.KindRead }

func (i *readFileInvocation) ShouldConfirm(ctx context.Context) (*tool.ConfirmationDetails, error) {
	return nil, nil
}

func (i *readFileInvocation) Execute(ctx context.Context, onChunk tool.ChunkFunc) (*tool.Result, error) {
	data, err := os.ReadFile(i.path)
	if err != nil {
		return &tool.Result{
			IsError:       true,
			ResponseParts: map[string]any{"error": err.Error()},
			Display:       tool.Display{Kind: tool.DisplayPlainText, Text: err.Error()},
		}, nil
	}
	return &tool.Result{
		ResponseParts: map[string]any{"content": string(data)},
		Display:       tool.Display{Kind: tool.DisplayPlainText, Text: string(data)},
	}, nil
}

// ---------------------------------------------------------------------------
// write_file
// ---------------------------------------------------------------------------

type writeFileTool struct{ roots *safety.WorkspaceRoots }

func (t *writeFileTool) Name() string        { return "write_file" }
func (t *writeFileTool) DisplayName() string { return "Write File" }
func (t *writeFileTool) Description() string {
	return "Creates or overwrites a file within the workspace with the given content."
}
func (t *writeFileTool) Kind() tool.Kind             { return tool.KindWrite }
func (t *writeFileTool) Capabilities() tool.Capabilities { return tool.Capabilities{} }
func (t *writeFileTool) Schema() tool.Schema {
	return tool.Schema{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string"},
			"content": map[string]any{"type": "string"},
		},
		"required": []string{"path", "content"},
	}
}

func (t *writeFileTool) NewInvocation(ctx context.Context, args map[string]any) (tool.Invocation, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return nil, err
	}
	resolved, err := t.roots.Resolve(path, safety.ResolveOpts{AllowCreate: true})
	if err != nil {
		return nil, err
	}
	old := ""
	if existing, err := os.ReadFile(resolved); err == nil {
		old = string(existing)
	}
	return &editInvocation{path: resolved, original: path, oldContent: old, newContent: content, write: true}, nil
}

// ---------------------------------------------------------------------------
// edit_file
// ---------------------------------------------------------------------------

type editFileTool struct{ roots *safety.WorkspaceRoots }

func (t *editFileTool) Name() string        { return "edit_file" }
func (t *editFileTool) DisplayName() string { return "Edit File" }
func (t *editFileTool) Description() string {
	return "Replaces an exact occurrence of old_string with new_string in a file."
}
func (t *editFileTool) Kind() tool.Kind             { return tool.KindEdit }
func (t *editFileTool) Capabilities() tool.Capabilities { return tool.Capabilities{EmitsMarkdown: true} }
func (t *editFileTool) Schema() tool.Schema {
	return tool.Schema{
		"type": "object",
		"properties": map[string]any{
			"path":       map[string]any{"type": "string"},
			"old_string": map[string]any{"type": "string"},
			"new_string": map[string]any{"type": "string"},
		},
		"required": []string{"path", "old_string", "new_string"},
	}
}

func (t *editFileTool) NewInvocation(ctx context.Context, args map[string]any) (tool.Invocation, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	oldStr, err := stringArg(args, "old_string")
	if err != nil {
		return nil, err
	}
	newStr, err := stringArg(args, "new_string")
	if err != nil {
		return nil, err
	}
	resolved, err := t.roots.Resolve(path, safety.ResolveOpts{WantFile: true})
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, invalidParams(path, err)
	}
	current := string(data)
	n := countOccurrences(current, oldStr)
	if n != 1 {
		return nil, invalidParams(path, fmt.Errorf("old_string occurs %d times, expected exactly 1", n))
	}
	updated := replaceOnce(current, oldStr, newStr)
	return &editInvocation{path: resolved, original: path, oldContent: current, newContent: updated}, nil
}

// editInvocation backs both write_file (write=true, no pre-existing-content
// requirement) and edit_file (replacement already computed into
// newContent). Both produce an Edit ConfirmationDetails carrying a unified
// diff, computed before the write so approval sees the exact change.
type editInvocation struct {
	path       string
	original   string
	oldContent string
	newContent string
	write      bool
}

func (i *editInvocation) Kind() tool.Kind {
	if i.write {
		return tool.KindWrite
	}
	return tool.KindEdit
}

func (i *editInvocation) Describe() string {
	if i.write {
		return fmt.Sprintf("Write `%s`", i.original)
	}
	return fmt.Sprintf("Edit `%s`", i.original)
}

func (i *editInvocation) ShouldConfirm(ctx context.Context) (*tool.ConfirmationDetails, error) {
	diff := udiff.Unified(i.original, i.original, i.oldContent, i.newContent)
	return &tool.ConfirmationDetails{
		Variant:     tool.VariantEdit,
		Path:        i.path,
		UnifiedDiff: diff,
	}, nil
}

func (i *editInvocation) Execute(ctx context.Context, onChunk tool.ChunkFunc) (*tool.Result, error) {
	if err := os.WriteFile(i.path, []byte(i.newContent), 0o644); err != nil {
		return &tool.Result{
			IsError:       true,
			ResponseParts: map[string]any{"error": err.Error()},
			Display:       tool.Display{Kind: tool.DisplayPlainText, Text: err.Error()},
		}, nil
	}
	diff := udiff.Unified(i.original, i.original, i.oldContent, i.newContent)
	return &tool.Result{
		ResponseParts: map[string]any{"status": "ok", "path": i.original},
		Display:       tool.Display{Kind: tool.DisplayFileDiff, Diff: diff},
	}, nil
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", invalidParams(key, fmt.Errorf("missing required argument %q", key))
	}
	s, ok := v.(string)
	if !ok {
		return "", invalidParams(key, fmt.Errorf("argument %q must be a string", key))
	}
	return s, nil
}

func countOccurrences(s, sub string) int {
	if sub == "" {
		return 0
	}
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
			i += len(sub) - 1
		}
	}
	return count
}

func replaceOnce(s, old, new string) string {
	idx := indexOf(s, old)
	if idx < 0 {
		return s
	}
	return s[:idx] + new + s[idx+len(old):]
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
