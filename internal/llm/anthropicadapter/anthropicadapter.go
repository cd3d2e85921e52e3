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

// Package anthropicadapter implements internal/llm.Client against
// github.com/anthropics/anthropic-sdk-go's Messages streaming API,
// grounded in goa-ai's features/model/anthropic/{client,stream}.go
// (ssestream.Stream[MessageStreamEventUnion] consumed on a background
// goroutine, content-block index tracked per tool_use/text block).
package anthropicadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/kadirpekel/agentturn/internal/llm"
)

// MessagesClient is the subset of *sdk.MessageService this adapter
// needs, so tests can substitute a fake stream.
type MessagesClient interface {
	NewStreaming(ctx context.Context, body sdk.MessageNewParams) *sdk.MessageStreamResponse
}

// Adapter wraps an Anthropic Messages client as an llm.Client.
type Adapter struct {
	msg       MessagesClient
	maxTokens int64
}

// New wraps an existing Anthropic Messages client.
func New(msg MessagesClient, maxTokens int64) *Adapter {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Adapter{msg: msg, maxTokens: maxTokens}
}

func (a *Adapter) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: a.maxTokens,
		Messages:  convertMessages(req),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	raw := a.msg.NewStreaming(ctx, params)
	if raw == nil {
		return nil, fmt.Errorf("anthropicadapter: nil stream returned")
	}

	s := &anthropicStream{
		ctx:        ctx,
		raw:        raw,
		events:     make(chan llm.Event, 32),
		toolBlocks: make(map[int64]*toolBlock),
	}
	go s.pump()
	return s, nil
}

func convertMessages(req llm.Request) []sdk.MessageParam {
	out := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleUser:
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Text)))
		case llm.RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Text)))
		case llm.RoleTool:
			out = append(out, sdk.NewUserMessage(sdk.NewToolResultBlock(m.ToolCallID, m.Text, false)))
		}
	}
	return out
}

func convertTools(schemas []llm.ToolSchema) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{
			Properties: s.Parameters["properties"],
		}, s.Name))
	}
	return out
}

// toolBlock accumulates a streamed tool_use content block's
// partial_json fragments, by content-block index, mirroring goa-ai's
// toolBuffer.
type toolBlock struct {
	id   string
	name string
	json string
}

type anthropicStream struct {
	ctx        context.Context
	raw        *sdk.MessageStreamResponse
	events     chan llm.Event
	toolBlocks map[int64]*toolBlock
	stopReason string
}

// pump drains the SDK's SSE stream on a background goroutine and
// translates each event into the llm.Event union, the way goa-ai's
// anthropicStreamer.run does.
func (s *anthropicStream) pump() {
	defer close(s.events)
	for s.raw.Next() {
		ev := s.raw.Current()
		s.handle(ev)
		select {
		case <-s.ctx.Done():
			return
		default:
		}
	}
	if err := s.raw.Err(); err != nil {
		s.emit(llm.Event{Kind: llm.EventError, At: time.Now(), Err: err})
	}
}

func (s *anthropicStream) emit(ev llm.Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func (s *anthropicStream) handle(event sdk.MessageStreamEventUnion) {
	switch variant := event.AsAny().(type) {
	case sdk.ContentBlockStartEvent:
		if tu, ok := variant.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
			s.toolBlocks[variant.Index] = &toolBlock{id: tu.ID, name: tu.Name}
		}

	case sdk.ContentBlockDeltaEvent:
		switch delta := variant.Delta.AsAny().(type) {
		case sdk.TextDelta:
			if delta.Text != "" {
				s.emit(llm.Event{Kind: llm.EventContent, At: time.Now(), Text: delta.Text})
			}
		case sdk.InputJSONDelta:
			if tb, ok := s.toolBlocks[variant.Index]; ok {
				tb.json += delta.PartialJSON
			}
		case sdk.ThinkingDelta:
			if delta.Thinking != "" {
				s.emit(llm.Event{Kind: llm.EventThought, At: time.Now(), Thought: llm.ThoughtSummary{Description: delta.Thinking}})
			}
		}

	case sdk.ContentBlockStopEvent:
		if tb, ok := s.toolBlocks[variant.Index]; ok {
			delete(s.toolBlocks, variant.Index)
			s.emit(llm.Event{
				Kind: llm.EventToolCallRequest,
				At:   time.Now(),
				ToolCall: llm.ToolCallRequest{
					ID:   tb.id,
					Name: tb.name,
					Args: decodeArgs(tb.json),
				},
			})
		}

	case sdk.MessageDeltaEvent:
		s.stopReason = string(variant.Delta.StopReason)

	case sdk.MessageStopEvent:
		s.emit(llm.Event{Kind: llm.EventFinished, At: time.Now(), Finish: mapStopReason(s.stopReason)})
	}
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

func mapStopReason(r string) llm.FinishReason {
	switch r {
	case "end_turn", "stop_sequence":
		return llm.FinishStop
	case "max_tokens":
		return llm.FinishMaxTokens
	case "tool_use":
		return llm.FinishUnexpectedToolCall
	default:
		return llm.FinishOther
	}
}

func (s *anthropicStream) Next(ctx context.Context) (llm.Event, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return llm.Event{Kind: llm.EventFinished, At: time.Now(), Finish: llm.FinishStop}, nil
		}
		return ev, nil
	case <-ctx.Done():
		return llm.Event{}, ctx.Err()
	}
}

func (s *anthropicStream) Close() error { return s.raw.Close() }

var _ llm.Client = (*Adapter)(nil)
var _ llm.Stream = (*anthropicStream)(nil)
