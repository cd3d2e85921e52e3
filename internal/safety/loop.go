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

package safety

import (
	"crypto/md5" //nolint:gosec // used only for fingerprint dedup, not security
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"

	"github.com/kadirpekel/agentturn/internal/tool"
)

// loopWindowSize bounds how far back LoopDetector looks for a
// recurring fingerprint, grounded in the sliding-window approach of
// Pocket-Omega's loop_detector.go (there: last 8 tool steps).
const loopWindowSize = 8

// LoopDetector watches a sliding window of recent tool-call
// fingerprints (tool name + normalized-argument digest) and reports
// when one recurs beyond a per-kind threshold. Exploratory kinds
// (read/search/think) get a larger threshold than editing kinds
// (edit/write/exec), since repeated reads are often legitimate but
// repeated edits of the same arguments rarely are (spec.md §4.5).
type LoopDetector struct {
	mu sync.Mutex

	window   []fingerprintEntry
	disabled bool

	exploratoryThreshold int
	editingThreshold     int
}

type fingerprintEntry struct {
	kind        tool.Kind
	fingerprint string
}

// NewLoopDetector returns a detector with sensible defaults: a
// fingerprint must recur 5 times within the window to trip for an
// exploratory kind, 3 times for an editing kind.
func NewLoopDetector() *LoopDetector {
	return &LoopDetector{exploratoryThreshold: 5, editingThreshold: 3}
}

// Disable turns off detection for the remainder of the session, per
// the user's response to a surfaced LoopDetected confirmation
// (spec.md §4.3: "ask whether to disable loop detection").
func (d *LoopDetector) Disable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disabled = true
}

// Record folds one tool call into the window and reports whether its
// fingerprint has now recurred often enough to trip the threshold for
// its kind.
func (d *LoopDetector) Record(kind tool.Kind, name string, args map[string]any) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	fp := Fingerprint(name, args)
	d.window = append(d.window, fingerprintEntry{kind: kind, fingerprint: fp})
	if len(d.window) > loopWindowSize {
		d.window = d.window[len(d.window)-loopWindowSize:]
	}
	if d.disabled {
		return false
	}

	threshold := d.editingThreshold
	if isExploratory(kind) {
		threshold = d.exploratoryThreshold
	}

	count := 0
	for _, e := range d.window {
		if e.fingerprint == fp {
			count++
		}
	}
	return count >= threshold
}

func isExploratory(k tool.Kind) bool {
	switch k {
	case tool.KindRead, tool.KindSearch, tool.KindThink:
		return true
	default:
		return false
	}
}

// Fingerprint hashes a tool name together with its arguments,
// normalized by marshaling through a key-sorted map so that argument
// ordering never affects the digest.
func Fingerprint(name string, args map[string]any) string {
	normalized := normalizeArgs(args)
	data, err := json.Marshal(normalized)
	if err != nil {
		data = []byte(name)
	}
	sum := md5.Sum(append([]byte(name+"\x00"), data...)) //nolint:gosec
	return name + ":" + hex.EncodeToString(sum[:])
}

// normalizeArgs rebuilds args as a slice of key/value pairs sorted by
// key, so json.Marshal produces a stable byte sequence regardless of
// Go's randomized map iteration order.
func normalizeArgs(args map[string]any) []any {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		out = append(out, k, args[k])
	}
	return out
}
