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

package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentturn/internal/eventbus"
	"github.com/kadirpekel/agentturn/internal/tool"
)

// fakeTool/fakeInvocation let tests drive the state machine without
// touching the filesystem or a shell.
type fakeTool struct {
	name       string
	kind       tool.Kind
	confirm    *tool.ConfirmationDetails // nil means no confirmation needed
	execDelay  time.Duration
	execErr    error
	resultErr  bool
	newInvErr  error
}

func (f *fakeTool) Name() string                  { return f.name }
func (f *fakeTool) DisplayName() string            { return f.name }
func (f *fakeTool) Description() string            { return "" }
func (f *fakeTool) Kind() tool.Kind                { return f.kind }
func (f *fakeTool) Capabilities() tool.Capabilities { return tool.Capabilities{} }
func (f *fakeTool) Schema() tool.Schema             { return tool.Schema{} }

func (f *fakeTool) NewInvocation(ctx context.Context, args map[string]any) (tool.Invocation, error) {
	if f.newInvErr != nil {
		return nil, f.newInvErr
	}
	return &fakeInvocation{t: f}, nil
}

type fakeInvocation struct{ t *fakeTool }

func (i *fakeInvocation) Kind() tool.Kind  { return i.t.kind }
func (i *fakeInvocation) Describe() string { return "fake " + i.t.name }

func (i *fakeInvocation) ShouldConfirm(ctx context.Context) (*tool.ConfirmationDetails, error) {
	return i.t.confirm, nil
}

func (i *fakeInvocation) Execute(ctx context.Context, onChunk tool.ChunkFunc) (*tool.Result, error) {
	if i.t.execDelay > 0 {
		select {
		case <-time.After(i.t.execDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if i.t.execErr != nil {
		return nil, i.t.execErr
	}
	if i.t.resultErr {
		return &tool.Result{IsError: true, Display: tool.Display{Text: "boom"}}, nil
	}
	if onChunk != nil {
		onChunk("partial")
	}
	return &tool.Result{ResponseParts: map[string]any{"ok": true}, Display: tool.Display{Text: "done"}}, nil
}

type fakeRegistry struct {
	mu    sync.Mutex
	tools map[string]tool.Tool
}

func newFakeRegistry(tools ...tool.Tool) *fakeRegistry {
	r := &fakeRegistry{tools: make(map[string]tool.Tool)}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

func (r *fakeRegistry) Lookup(name string) (tool.Tool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tools[name]
	return t, ok
}
func (r *fakeRegistry) All() []tool.Tool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]tool.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}
func (r *fakeRegistry) Register(t tool.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	return nil
}

func drain(t *testing.T, sub *eventbus.Subscriber, n int, timeout time.Duration) []eventbus.Event {
	t.Helper()
	out := make([]eventbus.Event, 0, n)
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case ev := <-sub.Events():
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, got %d", n, len(out))
		}
	}
	return out
}

func TestSchedule_EditApprovedThenExecutes(t *testing.T) {
	editTool := &fakeTool{name: "edit_file", kind: tool.KindEdit, confirm: &tool.ConfirmationDetails{Variant: tool.VariantEdit, Path: "/work/a.txt", UnifiedDiff: "-foo\n+bar"}}
	reg := newFakeRegistry(editTool)
	bus := eventbus.New()
	sub := bus.Subscribe("test")
	s := New(reg, bus, NewModeHolder(ApprovalDefault))
	defer s.Stop()

	ctx := context.Background()
	s.Schedule(ctx, []ToolCallRequest{{CallID: "c1", ToolName: "edit_file", Args: map[string]any{}}})

	evs := drain(t, sub, 1, time.Second)
	require.Equal(t, eventbus.KindToolCallConfirm, evs[0].Kind)
	assert.Equal(t, "AwaitingApproval", evs[0].ToolCall.Status)

	require.NoError(t, s.Confirm("c1", OutcomeProceedOnce, nil))
	require.NoError(t, s.WaitForQuiescence(context.Background()))

	results := s.CollectResponses([]string{"c1"})
	require.Len(t, results, 1)
	assert.Equal(t, StatusSuccess, results[0].Status)
	assert.False(t, results[0].Response.IsError)
}

func TestSchedule_EditDenied(t *testing.T) {
	editTool := &fakeTool{name: "edit_file", kind: tool.KindEdit, confirm: &tool.ConfirmationDetails{Variant: tool.VariantEdit, Path: "/work/a.txt"}}
	reg := newFakeRegistry(editTool)
	bus := eventbus.New()
	s := New(reg, bus, NewModeHolder(ApprovalDefault))
	defer s.Stop()

	s.Schedule(context.Background(), []ToolCallRequest{{CallID: "c1", ToolName: "edit_file"}})
	require.NoError(t, s.Confirm("c1", OutcomeCancel, nil))
	require.NoError(t, s.WaitForQuiescence(context.Background()))

	results := s.CollectResponses([]string{"c1"})
	require.Len(t, results, 1)
	assert.Equal(t, StatusCancelled, results[0].Status)
	assert.True(t, results[0].Response.IsError)
	fr, ok := results[0].Response.Parts["functionResponse"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Tool call denied by user", fr["error"])
}

func TestSchedule_YoloParallelReads(t *testing.T) {
	readX := &fakeTool{name: "read_x", kind: tool.KindRead, execDelay: 20 * time.Millisecond}
	readY := &fakeTool{name: "read_y", kind: tool.KindRead, execDelay: 20 * time.Millisecond}
	reg := newFakeRegistry(readX, readY)
	bus := eventbus.New()
	s := New(reg, bus, NewModeHolder(ApprovalYolo))
	defer s.Stop()

	s.Schedule(context.Background(), []ToolCallRequest{
		{CallID: "x", ToolName: "read_x"},
		{CallID: "y", ToolName: "read_y"},
	})

	require.NoError(t, s.WaitForQuiescence(context.Background()))
	results := s.CollectResponses([]string{"x", "y"})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, StatusSuccess, r.Status)
	}
}

func TestSchedule_CancellationMidExecution(t *testing.T) {
	slow := &fakeTool{name: "shell", kind: tool.KindExec, execDelay: 5 * time.Second}
	reg := newFakeRegistry(slow)
	bus := eventbus.New()
	s := New(reg, bus, NewModeHolder(ApprovalYolo))
	defer s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	s.Schedule(ctx, []ToolCallRequest{{CallID: "c1", ToolName: "shell"}})

	time.Sleep(20 * time.Millisecond)
	cancel()
	s.CancelAll("user cancelled")

	require.NoError(t, s.WaitForQuiescence(context.Background()))
	results := s.CollectResponses([]string{"c1"})
	require.Len(t, results, 1)
	assert.Equal(t, StatusCancelled, results[0].Status)
}

func TestConfirm_ModifyWithEditorEntersReconfirmation(t *testing.T) {
	editTool := &fakeTool{name: "edit_file", kind: tool.KindEdit, confirm: &tool.ConfirmationDetails{Variant: tool.VariantEdit, Path: "/work/a.txt"}}
	reg := newFakeRegistry(editTool)
	bus := eventbus.New()
	sub := bus.Subscribe("test")
	s := New(reg, bus, NewModeHolder(ApprovalDefault))
	defer s.Stop()

	s.Schedule(context.Background(), []ToolCallRequest{{CallID: "c1", ToolName: "edit_file"}})
	drain(t, sub, 1, time.Second) // initial AwaitingApproval

	require.NoError(t, s.Confirm("c1", OutcomeModifyWithEditor, &ConfirmPayload{NewContent: map[string]any{"new_string": "baz"}}))
	evs := drain(t, sub, 1, time.Second)
	assert.Equal(t, "AwaitingReconfirmation", evs[0].ToolCall.Status)

	require.NoError(t, s.Confirm("c1", OutcomeProceedOnce, nil))
	require.NoError(t, s.WaitForQuiescence(context.Background()))
	results := s.CollectResponses([]string{"c1"})
	require.Len(t, results, 1)
	assert.Equal(t, StatusSuccess, results[0].Status)
}

func TestSchedule_AutoEditOnlyModeSkipsConfirmation(t *testing.T) {
	editTool := &fakeTool{name: "edit_file", kind: tool.KindEdit, confirm: &tool.ConfirmationDetails{Variant: tool.VariantEdit, Path: "/work/a.txt"}}
	reg := newFakeRegistry(editTool)
	bus := eventbus.New()
	s := New(reg, bus, NewModeHolder(ApprovalAutoEditOnly))
	defer s.Stop()

	s.Schedule(context.Background(), []ToolCallRequest{{CallID: "c1", ToolName: "edit_file"}})
	require.NoError(t, s.WaitForQuiescence(context.Background()))
	results := s.CollectResponses([]string{"c1"})
	require.Len(t, results, 1)
	assert.Equal(t, StatusSuccess, results[0].Status)
}
