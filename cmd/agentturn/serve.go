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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	agentturn "github.com/kadirpekel/agentturn"
	"github.com/kadirpekel/agentturn/internal/config"
	a2aconsumer "github.com/kadirpekel/agentturn/internal/consumer/a2a"
	"github.com/kadirpekel/agentturn/internal/consumer/term"
	"github.com/kadirpekel/agentturn/internal/wiring"
	wireapi "github.com/kadirpekel/agentturn/pkg/a2a"
)

// ServeCmd hosts the orchestrator as a remote A2A agent over
// HTTP+JSON: build the stack, wrap it in an A2A-compliant agent,
// register it, and serve until signalled.
type ServeCmd struct {
	DevBridge bool `help:"Also serve a websocket live-feed of bus events for local development." default:"false"`
	DevBridgePort int `help:"Port for the dev websocket bridge." default:"8090"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if !cfg.A2A.Enabled {
		return fmt.Errorf("serve: a2a.enabled is false in %s", cli.Config)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stack, err := wiring.Build(ctx, cfg, nil)
	if err != nil {
		return fmt.Errorf("serve: build stack: %w", err)
	}
	defer stack.Close()

	card := &wireapi.AgentCard{
		Name:        "agentturn",
		Description: "Agent turn orchestrator: streaming LLM turns over a scheduled tool pool.",
		Version:     agentturn.GetVersion().Version,
		Capabilities: wireapi.AgentCapabilities{
			Streaming: true,
			MultiTurn: true,
		},
	}
	agent := a2aconsumer.New(card, stack.Bus, stack.Loop)

	server := wireapi.NewServer(&wireapi.ServerConfig{
		Host:    cfg.A2A.Host,
		Port:    cfg.A2A.Port,
		BaseURL: cfg.A2A.BaseURL,
	}, wireapi.WithObservability(stack.Observability.Tracer(), stack.Observability.Metrics()))
	if err := server.RegisterAgent("agentturn", agent, "public"); err != nil {
		return fmt.Errorf("serve: register agent: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var devServer *http.Server
	if c.DevBridge {
		bridge := term.NewBridge(stack.Bus, "dev-bridge")
		devServer = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.A2A.Host, c.DevBridgePort),
			Handler: bridge,
		}
		go func() {
			if err := devServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Warn("serve: dev bridge stopped", "error", err)
			}
		}()
		slog.Info("serve: dev websocket bridge listening", "addr", devServer.Addr)
	}

	slog.Info("serve: a2a server listening", "host", cfg.A2A.Host, "port", cfg.A2A.Port)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if devServer != nil {
		_ = devServer.Shutdown(shutdownCtx)
	}
	return server.Stop(shutdownCtx)
}
