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

// Package openaiadapter implements internal/llm.Client against
// github.com/sashabaranov/go-openai's streaming chat completion API,
// grounded in nexus's internal/agent/providers/openai.go
// (CreateChatCompletionStream + processStream's per-index tool-call
// accumulation).
package openaiadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	openailib "github.com/sashabaranov/go-openai"

	"github.com/kadirpekel/agentturn/internal/llm"
)

// Adapter wraps an *openailib.Client as an llm.Client.
type Adapter struct {
	client *openailib.Client
}

// New wraps an existing go-openai client. Callers construct the
// client (openailib.NewClient / NewClientWithConfig) so that base URL
// and auth are configured independently of this package.
func New(client *openailib.Client) *Adapter {
	return &Adapter{client: client}
}

func (a *Adapter) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	chatReq := openailib.ChatCompletionRequest{
		Model:    req.Model,
		Messages: convertMessages(req),
		Stream:   true,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertTools(req.Tools)
	}

	stream, err := a.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openaiadapter: create stream: %w", err)
	}
	return &openaiStream{raw: stream, toolCalls: make(map[int]*partialToolCall)}, nil
}

func convertMessages(req llm.Request) []openailib.ChatCompletionMessage {
	out := make([]openailib.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, openailib.ChatCompletionMessage{Role: openailib.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		msg := openailib.ChatCompletionMessage{Role: string(m.Role), Content: m.Text}
		if m.Role == llm.RoleTool {
			msg.ToolCallID = m.ToolCallID
		}
		out = append(out, msg)
	}
	return out
}

func convertTools(schemas []llm.ToolSchema) []openailib.Tool {
	out := make([]openailib.Tool, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, openailib.Tool{
			Type: openailib.ToolTypeFunction,
			Function: &openailib.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return out
}

// partialToolCall accumulates a tool call's streamed argument
// fragments, keyed by the delta's index the way nexus's processStream
// does — go-openai streams function arguments as successive string
// fragments rather than one shot.
type partialToolCall struct {
	id   string
	name string
	args string
}

type openaiStream struct {
	raw       *openailib.ChatCompletionStream
	toolCalls map[int]*partialToolCall
	// flushed tracks tool calls already emitted as EventToolCallRequest
	// so a late finish-reason doesn't re-emit them.
	flushed map[int]bool
}

func (s *openaiStream) Next(ctx context.Context) (llm.Event, error) {
	select {
	case <-ctx.Done():
		return llm.Event{}, ctx.Err()
	default:
	}

	resp, err := s.raw.Recv()
	if err != nil {
		if err == io.EOF {
			return s.flushPendingToolCalls(), nil
		}
		return llm.Event{Kind: llm.EventError, At: time.Now(), Err: err}, nil
	}
	if len(resp.Choices) == 0 {
		return llm.Event{Kind: llm.EventContent, At: time.Now()}, nil
	}

	choice := resp.Choices[0]
	delta := choice.Delta

	if len(delta.ToolCalls) > 0 {
		s.accumulateToolCalls(delta.ToolCalls)
	}

	switch {
	case delta.Content != "":
		return llm.Event{Kind: llm.EventContent, At: time.Now(), Text: delta.Content}, nil
	case choice.FinishReason == openailib.FinishReasonToolCalls:
		if ev, ok := s.nextFlushableToolCall(); ok {
			return ev, nil
		}
		return llm.Event{Kind: llm.EventFinished, At: time.Now(), Finish: llm.FinishUnexpectedToolCall}, nil
	case choice.FinishReason != "":
		return llm.Event{Kind: llm.EventFinished, At: time.Now(), Finish: mapFinishReason(choice.FinishReason)}, nil
	default:
		return llm.Event{Kind: llm.EventContent, At: time.Now()}, nil
	}
}

func (s *openaiStream) accumulateToolCalls(deltas []openailib.ToolCall) {
	for _, tc := range deltas {
		idx := 0
		if tc.Index != nil {
			idx = *tc.Index
		}
		p, ok := s.toolCalls[idx]
		if !ok {
			p = &partialToolCall{}
			s.toolCalls[idx] = p
		}
		if tc.ID != "" {
			p.id = tc.ID
		}
		if tc.Function.Name != "" {
			p.name = tc.Function.Name
		}
		p.args += tc.Function.Arguments
	}
}

// nextFlushableToolCall emits one complete, not-yet-flushed tool call
// per Next call so the scheduler sees each as a distinct event, the
// way the tagged EventToolCallRequest union expects one request per
// event.
func (s *openaiStream) nextFlushableToolCall() (llm.Event, bool) {
	if s.flushed == nil {
		s.flushed = make(map[int]bool)
	}
	for idx, p := range s.toolCalls {
		if s.flushed[idx] || p.id == "" || p.name == "" {
			continue
		}
		s.flushed[idx] = true
		return llm.Event{
			Kind: llm.EventToolCallRequest,
			At:   time.Now(),
			ToolCall: llm.ToolCallRequest{
				ID:   p.id,
				Name: p.name,
				Args: decodeArgs(p.args),
			},
		}, true
	}
	return llm.Event{}, false
}

func (s *openaiStream) flushPendingToolCalls() llm.Event {
	if ev, ok := s.nextFlushableToolCall(); ok {
		return ev
	}
	return llm.Event{Kind: llm.EventFinished, At: time.Now(), Finish: llm.FinishStop}
}

func decodeArgs(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{}
	}
	return out
}

func mapFinishReason(r openailib.FinishReason) llm.FinishReason {
	switch r {
	case openailib.FinishReasonStop:
		return llm.FinishStop
	case openailib.FinishReasonLength:
		return llm.FinishMaxTokens
	case openailib.FinishReasonContentFilter:
		return llm.FinishSafety
	case openailib.FinishReasonToolCalls, openailib.FinishReasonFunctionCall:
		return llm.FinishUnexpectedToolCall
	default:
		return llm.FinishOther
	}
}

func (s *openaiStream) Close() error { return s.raw.Close() }

var _ llm.Client = (*Adapter)(nil)
var _ llm.Stream = (*openaiStream)(nil)
