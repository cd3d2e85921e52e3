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

// Package exectool implements the shell tool (spec.md §4.6): it
// streams combined stdout/stderr incrementally and classifies the
// command through internal/safety before confirmation is solicited.
package exectool

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"

	"github.com/kadirpekel/agentturn/internal/orcherr"
	"github.com/kadirpekel/agentturn/internal/safety"
	"github.com/kadirpekel/agentturn/internal/tool"
)

// New returns the shell Tool, bound to policy for command classification
// and workingDir as the command's cwd.
func New(policy *safety.CommandPolicy, workingDir string) tool.Tool {
	return &shellTool{policy: policy, workingDir: workingDir}
}

type shellTool struct {
	policy     *safety.CommandPolicy
	workingDir string
}

func (t *shellTool) Name() string        { return "shell" }
func (t *shellTool) DisplayName() string { return "Shell" }
func (t *shellTool) Description() string {
	return "Runs a shell command in the session's working directory."
}
func (t *shellTool) Kind() tool.Kind { return tool.KindExec }
func (t *shellTool) Capabilities() tool.Capabilities {
	return tool.Capabilities{StreamsOutput: true}
}
func (t *shellTool) Schema() tool.Schema {
	return tool.Schema{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{"type": "string"},
		},
		"required": []string{"command"},
	}
}

func (t *shellTool) NewInvocation(ctx context.Context, args map[string]any) (tool.Invocation, error) {
	raw, ok := args["command"]
	if !ok {
		return nil, orcherr.New(orcherr.InvalidParams, "tool.exectool", "validate", "missing required argument \"command\"", nil)
	}
	command, ok := raw.(string)
	if !ok {
		return nil, orcherr.New(orcherr.InvalidParams, "tool.exectool", "validate", "\"command\" must be a string", nil)
	}

	class := t.policy.Classify(command)
	if class.Blocked {
		return nil, safety.PolicyBlockedError(command)
	}
	return &shellInvocation{
		command:    command,
		workingDir: t.workingDir,
		class:      class,
	}, nil
}

type shellInvocation struct {
	command    string
	workingDir string
	class      safety.CommandClass
}

func (i *shellInvocation) Kind() tool.Kind  { return tool.KindExec }
func (i *shellInvocation) Describe() string { return fmt.Sprintf("Run `%s`", i.command) }

func (i *shellInvocation) ShouldConfirm(ctx context.Context) (*tool.ConfirmationDetails, error) {
	if !i.class.RequiresApproval {
		return nil, nil
	}
	return &tool.ConfirmationDetails{
		Variant:     tool.VariantExecCommand,
		Command:     i.command,
		RootCommand: i.class.RootCommand,
	}, nil
}

// Execute runs the command through /bin/sh -c, streaming combined
// stdout+stderr line-by-line via onChunk. The caller (the scheduler) is
// responsible for serializing concurrent Exec invocations per spec.md §5.
func (i *shellInvocation) Execute(ctx context.Context, onChunk tool.ChunkFunc) (*tool.Result, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", i.command)
	cmd.Dir = i.workingDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return &tool.Result{
			IsError:       true,
			ResponseParts: map[string]any{"error": err.Error()},
			Display:       tool.Display{Kind: tool.DisplayPlainText, Text: err.Error()},
		}, nil
	}

	var output []byte
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text() + "\n"
		output = append(output, line...)
		if onChunk != nil {
			onChunk(line)
		}
	}

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if waitErr != nil {
		return &tool.Result{
			IsError: true,
			ResponseParts: map[string]any{
				"error":  waitErr.Error(),
				"output": string(output),
			},
			Display: tool.Display{Kind: tool.DisplayPlainText, Text: string(output)},
		}, nil
	}
	return &tool.Result{
		ResponseParts: map[string]any{"output": string(output)},
		Display:       tool.Display{Kind: tool.DisplayPlainText, Text: string(output)},
	}, nil
}
