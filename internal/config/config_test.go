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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentturn/internal/scheduler"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agentturn.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "model:\n  premium: claude-sonnet\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.Global.ApprovalMode)
	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, int64(4096), cfg.Model.MaxTokens)
	assert.Equal(t, "30d", cfg.Retention.MaxAge)
	assert.Equal(t, scheduler.ApprovalDefault, cfg.ApprovalMode())
}

func TestLoad_RejectsUnknownApprovalMode(t *testing.T) {
	path := writeConfig(t, "global:\n  approval_mode: reckless\nmodel:\n  premium: claude-sonnet\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestLoad_RejectsMissingPremiumModel(t *testing.T) {
	path := writeConfig(t, "model:\n  provider: openai\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	path := writeConfig(t, "model:\n  provider: cohere\n  premium: command-r\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestLoad_RejectsA2AWithNegativePort(t *testing.T) {
	path := writeConfig(t, "model:\n  premium: claude-sonnet\na2a:\n  enabled: true\n  port: -1\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestApprovalMode_TranslatesEveryKnob(t *testing.T) {
	for knob, want := range map[string]scheduler.ApprovalMode{
		"default":   scheduler.ApprovalDefault,
		"auto-edit": scheduler.ApprovalAutoEditOnly,
		"yolo":      scheduler.ApprovalYolo,
	} {
		c := &Config{Global: GlobalSettings{ApprovalMode: knob}}
		assert.Equal(t, want, c.ApprovalMode())
	}
}
