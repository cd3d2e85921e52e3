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
	"errors"
	"sync"

	"github.com/kadirpekel/agentturn/pkg/httpclient"
)

// ModelFallback tracks the session's active model identifier and
// switches it, on consent, when the premium model reports a
// persistent quota exhaustion (the same RetryableError shape an LLM
// adapter surfaces on HTTP 429). Per spec.md's setFlashFallbackHandler: C3
// calls Handle on a quota error and halts the in-flight retry
// regardless of the outcome.
type ModelFallback struct {
	mu          sync.RWMutex
	premium     string
	fallback    string
	activeModel string
}

// NewModelFallback returns a tracker starting on premium, with
// fallback available once the user consents.
func NewModelFallback(premium, fallback string) *ModelFallback {
	return &ModelFallback{premium: premium, fallback: fallback, activeModel: premium}
}

// ActiveModel returns the model identifier the next LLM request
// should use.
func (f *ModelFallback) ActiveModel() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.activeModel
}

// IsOnFallback reports whether the session has already switched off
// the premium model.
func (f *ModelFallback) IsOnFallback() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.activeModel == f.fallback
}

// ShouldOfferFallback reports whether err is a quota-exhaustion
// signal from the premium model worth asking the user about. It
// never fires once the session is already on the fallback model —
// there's nowhere further to fall back to.
func (f *ModelFallback) ShouldOfferFallback(err error) bool {
	if f.IsOnFallback() {
		return false
	}
	var retryable *httpclient.RetryableError
	if !errors.As(err, &retryable) {
		return false
	}
	return retryable.StatusCode == 429
}

// Switch rewrites the session's active model identifier to the
// fallback and returns it. Per spec.md §4.3, this is called only
// after the user has confirmed via C4; the in-flight call that
// triggered it always stops retrying, whether or not the user
// consents — Switch's return value is what C3 resubmits with, a
// no-op call (consent declined) simply leaves ActiveModel unchanged.
func (f *ModelFallback) Switch() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeModel = f.fallback
	return f.activeModel
}
