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

// Package config loads the orchestrator's unified YAML configuration:
// one struct per sub-concern, defaulted and validated as a whole by
// Config.SetDefaults()/Validate() (which call observability.Config's
// own pair), loaded in one pass via gopkg.in/yaml.v3 and optionally
// hot-reloaded with fsnotify watching its source file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/agentturn/internal/scheduler"
	"github.com/kadirpekel/agentturn/internal/session"
	"github.com/kadirpekel/agentturn/pkg/observability"
)

// ErrInvalid wraps every error Validate returns, so callers (notably
// cmd/agentturn) can map a bad configuration to spec.md §6's exit code
// 2 via errors.Is, distinct from exit code 1's "unrecoverable error".
var ErrInvalid = errors.New("invalid configuration")

// Config is the orchestrator's single unified configuration object.
type Config struct {
	Global        GlobalSettings         `yaml:"global"`
	Model         ModelSettings          `yaml:"model"`
	Retention     session.RetentionConfig `yaml:"retention"`
	Observability observability.Config   `yaml:"observability"`
	A2A           A2ASettings            `yaml:"a2a"`
	MCP           []MCPServerSettings    `yaml:"mcp_servers"`
}

// GlobalSettings holds the process-wide knobs that aren't specific to
// any one collaborator.
type GlobalSettings struct {
	ApprovalMode    string   `yaml:"approval_mode"` // "default" | "auto-edit" | "yolo"
	WorkingDir      string   `yaml:"working_dir"`
	WorkspaceRoots  []string `yaml:"workspace_roots"`
	AllowedCommands []string `yaml:"allowed_commands"`
	HistoryDir      string   `yaml:"history_dir"`
}

// ModelSettings names the premium/fallback model pair and which
// provider adapter to construct.
type ModelSettings struct {
	Provider    string `yaml:"provider"` // "openai" | "anthropic"
	Premium     string `yaml:"premium"`
	Fallback    string `yaml:"fallback"`
	APIKeyEnv   string `yaml:"api_key_env"`
	MaxTokens   int64  `yaml:"max_tokens"`
}

// A2ASettings configures the remote A2A consumer surface (spec.md
// §6's "Remote A2A protocol" event-bus consumer).
type A2ASettings struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`
}

// MCPServerSettings configures one stdio MCP tool source.
type MCPServerSettings struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

// SetDefaults fills in zero-valued fields of every section with
// sensible defaults, delegating the observability section to
// observability.Config.SetDefaults.
func (c *Config) SetDefaults() {
	if c.Global.ApprovalMode == "" {
		c.Global.ApprovalMode = "default"
	}
	if c.Global.WorkingDir == "" {
		c.Global.WorkingDir = "."
	}
	if c.Global.HistoryDir == "" {
		c.Global.HistoryDir = ".agentturn/sessions"
	}
	if c.Model.Provider == "" {
		c.Model.Provider = "anthropic"
	}
	if c.Model.MaxTokens == 0 {
		c.Model.MaxTokens = 4096
	}
	if c.Retention.MaxAge == "" {
		c.Retention.MaxAge = "30d"
	}
	if c.Retention.MaxCount == 0 {
		c.Retention.MaxCount = 200
	}
	if c.Retention.MinRetention == 0 {
		c.Retention.MinRetention = 10
	}
	if c.A2A.Host == "" {
		c.A2A.Host = "127.0.0.1"
	}
	if c.A2A.Port == 0 {
		c.A2A.Port = 8080
	}
	c.Observability.SetDefaults()
}

// Validate reports a config-error (exit code 2 per spec.md §6) if the
// loaded configuration is unusable.
func (c *Config) Validate() error {
	switch c.Global.ApprovalMode {
	case "default", "auto-edit", "yolo":
	default:
		return fmt.Errorf("config: global.approval_mode must be one of default|auto-edit|yolo, got %q: %w", c.Global.ApprovalMode, ErrInvalid)
	}
	switch strings.ToLower(c.Model.Provider) {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("config: model.provider must be one of openai|anthropic, got %q: %w", c.Model.Provider, ErrInvalid)
	}
	if c.Model.Premium == "" {
		return fmt.Errorf("config: model.premium must be set: %w", ErrInvalid)
	}
	if c.A2A.Enabled && c.A2A.Port <= 0 {
		return fmt.Errorf("config: a2a.port must be positive when a2a.enabled: %w", ErrInvalid)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("%w: %w", err, ErrInvalid)
	}
	return nil
}

// ApprovalMode translates the config's string knob into
// scheduler.ApprovalMode.
func (c *Config) ApprovalMode() scheduler.ApprovalMode {
	switch c.Global.ApprovalMode {
	case "auto-edit":
		return scheduler.ApprovalAutoEditOnly
	case "yolo":
		return scheduler.ApprovalYolo
	default:
		return scheduler.ApprovalDefault
	}
}

// Load reads and parses a YAML config file, applying defaults and
// validating the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
