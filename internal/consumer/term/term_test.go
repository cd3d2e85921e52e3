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

package term

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentturn/internal/eventbus"
)

func TestRenderer_DrainsUntilUnsubscribe(t *testing.T) {
	bus := eventbus.New()
	r := NewRenderer(bus, "term-test", nil)

	done := make(chan struct{})
	go func() {
		r.Run()
		close(done)
	}()

	bus.Publish(eventbus.Event{
		Kind: eventbus.KindContent,
		At:   time.Now(),
		Content: &eventbus.Content{Text: "hello"},
	})

	r.Stop("term-test")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestBridge_StreamsEventsAsJSON(t *testing.T) {
	bus := eventbus.New()
	bridge := NewBridge(bus, "bridge-test")

	srv := httptest.NewServer(bridge)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		bus.Publish(eventbus.Event{
			Kind: eventbus.KindContent,
			At:   time.Now(),
			Content: &eventbus.Content{Text: "ping"},
		})
		_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		var ev eventbus.Event
		if err := conn.ReadJSON(&ev); err != nil {
			return false
		}
		return ev.Kind == eventbus.KindContent && ev.Content != nil && ev.Content.Text == "ping"
	}, 3*time.Second, 50*time.Millisecond)
}

func TestBridge_RejectsNonUpgradeRequestsGracefully(t *testing.T) {
	bus := eventbus.New()
	bridge := NewBridge(bus, "bridge-test-2")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	bridge.ServeHTTP(rec, req)

	// No panic, and no successful upgrade without the websocket handshake headers.
	require.NotEqual(t, http.StatusSwitchingProtocols, rec.Code)
}
