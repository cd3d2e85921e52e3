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

// Package searchtool implements the search_files tool (spec.md §4.6):
// a read-only recursive content grep, no confirmation required
// (Kind=Search).
package searchtool

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/kadirpekel/agentturn/internal/orcherr"
	"github.com/kadirpekel/agentturn/internal/safety"
	"github.com/kadirpekel/agentturn/internal/tool"
)

const maxMatches = 500

// New returns the search_files Tool rooted at roots.WorkingDir.
func New(roots *safety.WorkspaceRoots) tool.Tool {
	return &searchTool{roots: roots}
}

type searchTool struct{ roots *safety.WorkspaceRoots }

func (t *searchTool) Name() string        { return "search_files" }
func (t *searchTool) DisplayName() string { return "Search Files" }
func (t *searchTool) Description() string {
	return "Searches file contents under the workspace for a regular expression."
}
func (t *searchTool) Kind() tool.Kind                { return tool.KindSearch }
func (t *searchTool) Capabilities() tool.Capabilities { return tool.Capabilities{} }
func (t *searchTool) Schema() tool.Schema {
	return tool.Schema{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{"type": "string"},
			"path":    map[string]any{"type": "string"},
		},
		"required": []string{"pattern"},
	}
}

func (t *searchTool) NewInvocation(ctx context.Context, args map[string]any) (tool.Invocation, error) {
	patternStr, ok := args["pattern"].(string)
	if !ok || patternStr == "" {
		return nil, orcherr.New(orcherr.InvalidParams, "tool.searchtool", "validate", "missing required argument \"pattern\"", nil)
	}
	re, err := regexp.Compile(patternStr)
	if err != nil {
		return nil, orcherr.New(orcherr.InvalidParams, "tool.searchtool", "validate", "invalid regular expression: "+err.Error(), err)
	}

	root := t.roots.WorkingDir
	if p, ok := args["path"].(string); ok && p != "" {
		resolved, err := t.roots.Resolve(p, safety.ResolveOpts{WantDir: true})
		if err != nil {
			return nil, err
		}
		root = resolved
	}

	return &searchInvocation{pattern: re, patternStr: patternStr, root: root}, nil
}

type searchInvocation struct {
	pattern    *regexp.Regexp
	patternStr string
	root       string
}

func (i *searchInvocation) Kind() tool.Kind { return tool.KindSearch }
func (i *searchInvocation) Describe() string {
	return fmt.Sprintf("Search for `%s` in `%s`", i.patternStr, i.root)
}

func (i *searchInvocation) ShouldConfirm(ctx context.Context) (*tool.ConfirmationDetails, error) {
	return nil, nil
}

func (i *searchInvocation) Execute(ctx context.Context, onChunk tool.ChunkFunc) (*tool.Result, error) {
	var matches []string
	err := filepath.WalkDir(i.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if len(matches) >= maxMatches {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if i.pattern.MatchString(scanner.Text()) {
				rel, _ := filepath.Rel(i.root, path)
				matches = append(matches, fmt.Sprintf("%s:%d: %s", rel, lineNo, scanner.Text()))
				if len(matches) >= maxMatches {
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("%d matches", len(matches))
	if len(matches) > 0 {
		joined := ""
		for _, m := range matches {
			joined += m + "\n"
		}
		text = joined
	}
	return &tool.Result{
		ResponseParts: map[string]any{"matches": matches},
		Display:       tool.Display{Kind: tool.DisplayPlainText, Text: text},
	}, nil
}
