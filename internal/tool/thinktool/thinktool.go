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

// Package thinktool implements the think tool (spec.md §4.6): a
// side-effect-free scratchpad the model uses to record intermediate
// reasoning. It never requires confirmation and is exempted from the
// tighter loop-detection threshold applied to editing tools (spec.md
// §4.5: exploratory states get a larger repeat threshold).
package thinktool

import (
	"context"
	"fmt"

	"github.com/kadirpekel/agentturn/internal/orcherr"
	"github.com/kadirpekel/agentturn/internal/tool"
)

// New returns the think Tool.
func New() tool.Tool { return &thinkTool{} }

type thinkTool struct{}

func (t *thinkTool) Name() string        { return "think" }
func (t *thinkTool) DisplayName() string { return "Think" }
func (t *thinkTool) Description() string {
	return "Records a thought. Has no effect on the workspace; use it to reason before acting."
}
func (t *thinkTool) Kind() tool.Kind                { return tool.KindThink }
func (t *thinkTool) Capabilities() tool.Capabilities { return tool.Capabilities{} }
func (t *thinkTool) Schema() tool.Schema {
	return tool.Schema{
		"type": "object",
		"properties": map[string]any{
			"thought": map[string]any{"type": "string"},
		},
		"required": []string{"thought"},
	}
}

func (t *thinkTool) NewInvocation(ctx context.Context, args map[string]any) (tool.Invocation, error) {
	thought, ok := args["thought"].(string)
	if !ok || thought == "" {
		return nil, orcherr.New(orcherr.InvalidParams, "tool.thinktool", "validate", "missing required argument \"thought\"", nil)
	}
	return &thinkInvocation{thought: thought}, nil
}

type thinkInvocation struct{ thought string }

func (i *thinkInvocation) Kind() tool.Kind  { return tool.KindThink }
func (i *thinkInvocation) Describe() string { return "Think" }

func (i *thinkInvocation) ShouldConfirm(ctx context.Context) (*tool.ConfirmationDetails, error) {
	return nil, nil
}

func (i *thinkInvocation) Execute(ctx context.Context, onChunk tool.ChunkFunc) (*tool.Result, error) {
	return &tool.Result{
		ResponseParts: map[string]any{"acknowledged": true},
		Display:       tool.Display{Kind: tool.DisplayPlainText, Text: fmt.Sprintf("Thought: %s", i.thought)},
	}, nil
}
