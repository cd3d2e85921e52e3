// Package agentturn provides an agent turn orchestrator: it drives one
// user turn across a streaming LLM and a pool of side-effectful tools,
// coordinating tool scheduling, approval policy, and event delivery
// the way a terminal agent or a remote A2A agent needs them.
//
// # Quick Start
//
// Install agentturn:
//
//	go install github.com/kadirpekel/agentturn/cmd/agentturn@latest
//
// Validate a configuration and start an interactive session:
//
//	agentturn validate --config agentturn.yaml
//	agentturn chat --config agentturn.yaml
//
// Or host the orchestrator as a remote A2A agent:
//
//	agentturn serve --config agentturn.yaml
//
// # Using as a Go Library
//
// Import specific packages to embed the orchestrator in another
// program:
//
//	import (
//	    "github.com/kadirpekel/agentturn/internal/wiring"
//	    "github.com/kadirpekel/agentturn/internal/turn"
//	    "github.com/kadirpekel/agentturn/internal/eventbus"
//	)
//
// # Key Components
//
//   - Tool registry and invocation: a schema-validated catalog of
//     side-effectful tools (file edits, shell commands, search).
//   - Tool call scheduler: an actor-style scheduler enforcing approval
//     policy, concurrency limits, and cancellation across in-flight
//     tool calls.
//   - Turn loop: drives one user turn across a streaming LLM client,
//     batching and awaiting tool results before resubmitting.
//   - Event bus: a synchronous, per-subscriber-backpressured channel of
//     turn state for any number of consumers (terminal, A2A, dev tools).
//   - Safety and policy gate: workspace path containment, command
//     classification, loop detection, and model-quota fallback.
//
// # Architecture
//
//	User/Client → consumer (terminal or A2A) → turn.Loop → scheduler + LLM client
//	                                                  ↓
//	                                              event bus → consumers
//
// # License
//
// Apache License 2.0 - see LICENSE for details.
package agentturn
