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

// Package term is the interactive-terminal event-bus consumer
// (spec.md §6's "Interactive terminal" surface): it subscribes to C4
// and renders every event synchronously as structured console output,
// printing task status lines rather than driving a full TUI — terminal
// *rendering* beyond that is out of scope per spec.md §1. A lightweight
// gorilla/websocket broadcaster is also offered for a local dev bridge
// (e.g. a browser-based live viewer), fanning each published event out
// to every connected client.
package term

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"net/http"

	"github.com/kadirpekel/agentturn/internal/eventbus"
)

// Renderer drains a Bus subscription until Stop is called or the
// subscription channel closes: content and artifact chunks are printed
// to stdout as they arrive, and state, thought and tool-call events are
// written as one-line summaries to the given logger.
type Renderer struct {
	bus *eventbus.Bus
	sub *eventbus.Subscriber
	log *slog.Logger
}

// NewRenderer subscribes id to bus and returns a Renderer ready to
// Run.
func NewRenderer(bus *eventbus.Bus, id string, log *slog.Logger) *Renderer {
	if log == nil {
		log = slog.Default()
	}
	return &Renderer{bus: bus, sub: bus.Subscribe(id), log: log}
}

// Run blocks, rendering events until the subscription is closed.
func (r *Renderer) Run() {
	for ev := range r.sub.Events() {
		r.render(ev)
	}
}

// Stop unsubscribes from the bus, terminating Run's loop.
func (r *Renderer) Stop(id string) { r.bus.Unsubscribe(id) }

func (r *Renderer) render(ev eventbus.Event) {
	switch ev.Kind {
	case eventbus.KindStateChange:
		sc := ev.StateChg
		r.log.Info("state", "task", sc.TaskID, "state", sc.NewState, "final", sc.Final, "msg", sc.Message, "model", sc.Metadata.Model)
	case eventbus.KindContent:
		fmt.Print(ev.Content.Text)
	case eventbus.KindThought:
		r.log.Debug("thought", "subject", ev.Thought.Subject, "description", ev.Thought.Description)
	case eventbus.KindToolCallUpdate, eventbus.KindToolCallConfirm:
		tc := ev.ToolCall
		r.log.Info("tool", "call_id", tc.CallID, "status", tc.Status, "desc", tc.Description, "revision", tc.Revision)
	case eventbus.KindArtifactUpdate:
		art := ev.Artifact
		fmt.Print(art.Chunk)
	}
}

// Bridge rebroadcasts every Bus event to any number of connected
// websocket clients as JSON, for a local dev viewer. It never blocks
// the bus: each client has its own bounded outbox, and a slow client
// is dropped rather than allowed to back up delivery to the others.
type Bridge struct {
	bus      *eventbus.Bus
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan eventbus.Event
}

// NewBridge subscribes id to bus and returns an http.Handler that
// upgrades incoming requests to websocket connections and streams
// events to them.
func NewBridge(bus *eventbus.Bus, id string) *Bridge {
	b := &Bridge{
		bus:     bus,
		clients: make(map[*websocket.Conn]chan eventbus.Event),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true }, // local dev bridge only
		},
	}
	sub := bus.Subscribe(id)
	go b.fanOut(sub)
	return b
}

func (b *Bridge) fanOut(sub *eventbus.Subscriber) {
	for ev := range sub.Events() {
		b.mu.Lock()
		for conn, out := range b.clients {
			select {
			case out <- ev:
			default:
				slog.Warn("term: dropping slow websocket client", "remote", conn.RemoteAddr())
				close(out)
				delete(b.clients, conn)
			}
		}
		b.mu.Unlock()
	}
}

// ServeHTTP implements http.Handler, upgrading the connection and
// writing each event as a JSON text frame until the client
// disconnects.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := b.upgrader.Upgrade(w, req, nil)
	if err != nil {
		slog.Warn("term: websocket upgrade failed", "error", err)
		return
	}
	out := make(chan eventbus.Event, 32)
	b.mu.Lock()
	b.clients[conn] = out
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.clients, conn)
		b.mu.Unlock()
		_ = conn.Close()
	}()

	for ev := range out {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}
