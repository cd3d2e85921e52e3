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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/kadirpekel/agentturn/internal/config"
	"github.com/kadirpekel/agentturn/internal/consumer/term"
	"github.com/kadirpekel/agentturn/internal/wiring"
)

// ChatCmd runs an interactive terminal session: one turn.Loop.Submit
// per line of stdin, with a term.Renderer draining C4 in the
// background.
type ChatCmd struct{}

func (c *ChatCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stack, err := wiring.Build(ctx, cfg, nil)
	if err != nil {
		return fmt.Errorf("chat: build stack: %w", err)
	}
	defer stack.Close()

	taskID := uuid.NewString()
	renderSubID := "chat-render-" + taskID
	renderer := term.NewRenderer(stack.Bus, renderSubID, slog.Default())
	go renderer.Run()
	defer renderer.Stop(renderSubID)

	fmt.Println("agentturn chat — Ctrl-D to exit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		promptID := uuid.NewString()
		if _, err := stack.Loop.Submit(ctx, taskID, promptID, line); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			fmt.Fprintln(os.Stderr, "agentturn:", err)
		}
		fmt.Println()
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
