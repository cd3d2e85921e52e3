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

package exectool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentturn/internal/safety"
	"github.com/kadirpekel/agentturn/internal/tool"
)

func TestShell_RunsAndStreamsOutput(t *testing.T) {
	policy := safety.NewCommandPolicy(nil)
	shell := New(policy, t.TempDir())

	inv, err := shell.NewInvocation(context.Background(), map[string]any{"command": "echo hi"})
	require.NoError(t, err)

	details, err := inv.ShouldConfirm(context.Background())
	require.NoError(t, err)
	require.NotNil(t, details, "unallow-listed command should require approval")
	assert.Equal(t, tool.VariantExecCommand, details.Variant)
	assert.Equal(t, "echo", details.RootCommand)

	var chunks []string
	res, err := inv.Execute(context.Background(), func(c string) { chunks = append(chunks, c) })
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, res.ResponseParts["output"], "hi")
	assert.NotEmpty(t, chunks)
}

func TestShell_AllowListedSkipsConfirmation(t *testing.T) {
	policy := safety.NewCommandPolicy([]string{"echo"})
	shell := New(policy, t.TempDir())

	inv, err := shell.NewInvocation(context.Background(), map[string]any{"command": "echo hi"})
	require.NoError(t, err)

	details, err := inv.ShouldConfirm(context.Background())
	require.NoError(t, err)
	assert.Nil(t, details)
}

func TestShell_BlocksDangerousCommand(t *testing.T) {
	policy := safety.NewCommandPolicy(nil)
	shell := New(policy, t.TempDir())

	_, err := shell.NewInvocation(context.Background(), map[string]any{"command": "rm -rf /"})
	require.Error(t, err)
}
