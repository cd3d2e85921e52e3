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

package wiring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentturn/internal/config"
)

func TestBuild_RegistersCoreToolsAndStartsSweep(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Model.Premium = "claude-test"
	cfg.Global.WorkingDir = dir
	cfg.Global.HistoryDir = dir

	stack, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer stack.Close()

	names := make(map[string]bool)
	for _, tl := range stack.Registry.All() {
		names[tl.Name()] = true
	}
	for _, want := range []string{"read_file", "write_file", "edit_file", "search_files", "shell", "think"} {
		assert.True(t, names[want], "expected tool %q to be registered", want)
	}
	assert.NotNil(t, stack.Loop)
	assert.NotNil(t, stack.History)
	assert.NotNil(t, stack.sweeper)
}

func TestBuild_RejectsUnknownProvider(t *testing.T) {
	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Model.Premium = "x"
	cfg.Model.Provider = "does-not-exist"
	cfg.Global.HistoryDir = t.TempDir()

	_, err := Build(context.Background(), cfg, nil)
	require.Error(t, err)
}
