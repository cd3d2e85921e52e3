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

// Package wiring assembles C1-C5 plus an LLM adapter from a loaded
// Config into one running orchestrator stack. Kept separate from
// cmd/agentturn so both the "serve" (A2A) and "chat"
// (terminal) entrypoints share one assembly path.
package wiring

import (
	"context"
	"fmt"
	"os"
	"time"

	openailib "github.com/sashabaranov/go-openai"
	"github.com/robfig/cron/v3"

	sdk "github.com/anthropics/anthropic-sdk-go"
	sdkoption "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kadirpekel/agentturn/internal/config"
	"github.com/kadirpekel/agentturn/internal/eventbus"
	"github.com/kadirpekel/agentturn/internal/llm"
	"github.com/kadirpekel/agentturn/internal/llm/anthropicadapter"
	"github.com/kadirpekel/agentturn/internal/llm/openaiadapter"
	"github.com/kadirpekel/agentturn/internal/safety"
	"github.com/kadirpekel/agentturn/internal/scheduler"
	"github.com/kadirpekel/agentturn/internal/session"
	"github.com/kadirpekel/agentturn/internal/tool"
	"github.com/kadirpekel/agentturn/internal/tool/exectool"
	"github.com/kadirpekel/agentturn/internal/tool/fstool"
	"github.com/kadirpekel/agentturn/internal/tool/mcptool"
	"github.com/kadirpekel/agentturn/internal/tool/searchtool"
	"github.com/kadirpekel/agentturn/internal/tool/thinktool"
	"github.com/kadirpekel/agentturn/internal/turn"
	"github.com/kadirpekel/agentturn/pkg/observability"
)

// Stack bundles every collaborator one turn needs, plus the pieces a
// caller uses to drive consent prompts and persistence.
type Stack struct {
	Bus           *eventbus.Bus
	Registry      tool.Registry
	Scheduler     *scheduler.Scheduler
	Loop          *turn.Loop
	Mode          *scheduler.ModeHolder
	Fallback      *safety.ModelFallback
	LoopDet       *safety.LoopDetector
	History       *session.History
	Observability *observability.Manager
	sweeper       *cron.Cron
}

// Close stops any background resources the Stack owns: the
// retention-sweep cron and the observability Manager's exporters. Safe
// to call on a Stack whose sweeper was never started.
func (s *Stack) Close() {
	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	if s.Observability != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Observability.Shutdown(ctx)
	}
}

// Build assembles a Stack from cfg. history may be nil, in which case
// an on-disk session.History is opened under cfg.Global.HistoryDir.
func Build(ctx context.Context, cfg *config.Config, history *session.History) (*Stack, error) {
	bus := eventbus.New()
	registry := tool.NewRegistry()

	roots := safety.NewWorkspaceRoots(cfg.Global.WorkingDir, cfg.Global.WorkspaceRoots, os.TempDir())
	cmdPolicy := safety.NewCommandPolicy(cfg.Global.AllowedCommands)
	loopDet := safety.NewLoopDetector()

	for _, t := range []tool.Tool{
		fstool.NewReadFile(roots),
		fstool.NewWriteFile(roots),
		fstool.NewEditFile(roots),
		searchtool.New(roots),
		exectool.New(cmdPolicy, cfg.Global.WorkingDir),
		thinktool.New(),
	} {
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("wiring: register tool: %w", err)
		}
	}

	for _, m := range cfg.MCP {
		toolset := mcptool.New(mcptool.Config{ServerName: m.Name, Command: m.Command, Args: m.Args, Env: m.Env})
		tools, err := toolset.Tools(ctx)
		if err != nil {
			return nil, fmt.Errorf("wiring: connect mcp server %q: %w", m.Name, err)
		}
		for _, t := range tools {
			if err := registry.Register(t); err != nil {
				return nil, fmt.Errorf("wiring: register mcp tool: %w", err)
			}
		}
	}

	mode := scheduler.NewModeHolder(cfg.ApprovalMode())

	sched := scheduler.New(registry, bus, mode, scheduler.WithLoopDetector(loopDet, func(callID, toolName string) {
		bus.Publish(eventbus.Event{
			Kind: eventbus.KindStateChange,
			At:   time.Now(),
			StateChg: &eventbus.StateChange{
				TaskID:   callID,
				NewState: eventbus.StateWorking,
				Message:  "loop detected: " + toolName + " repeated beyond threshold",
			},
		})
	}))

	client, err := buildLLMClient(cfg)
	if err != nil {
		return nil, err
	}
	fallback := safety.NewModelFallback(cfg.Model.Premium, cfg.Model.Fallback)

	if history == nil {
		var herr error
		history, herr = session.New(cfg.Global.HistoryDir, "", time.Now())
		if herr != nil {
			return nil, herr
		}
	}

	loop := turn.New(bus, sched, registry, client, fallback, loopDet, history, nil)

	var sweeper *cron.Cron
	if cfg.Retention.Valid() {
		var err error
		sweeper, err = session.ScheduleSweeps(cfg.Global.HistoryDir, cfg.Retention, history.SessionID, "")
		if err != nil {
			return nil, fmt.Errorf("wiring: schedule retention sweep: %w", err)
		}
	}

	obsCfg := cfg.Observability
	obs, err := observability.NewManager(ctx, &obsCfg)
	if err != nil {
		return nil, fmt.Errorf("wiring: build observability manager: %w", err)
	}

	return &Stack{
		Bus: bus, Registry: registry, Scheduler: sched, Loop: loop,
		Mode: mode, Fallback: fallback, LoopDet: loopDet, History: history,
		Observability: obs, sweeper: sweeper,
	}, nil
}

func buildLLMClient(cfg *config.Config) (llm.Client, error) {
	apiKey := os.Getenv(cfg.Model.APIKeyEnv)
	switch cfg.Model.Provider {
	case "openai":
		if cfg.Model.APIKeyEnv == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		c := openailib.NewClient(apiKey)
		return openaiadapter.New(c), nil
	case "anthropic":
		if cfg.Model.APIKeyEnv == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		c := sdk.NewClient(sdkoption.WithAPIKey(apiKey))
		return anthropicadapter.New(&c.Messages, cfg.Model.MaxTokens), nil
	default:
		return nil, fmt.Errorf("wiring: unknown model provider %q", cfg.Model.Provider)
	}
}
