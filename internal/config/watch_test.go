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
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "model:\n  premium: claude-sonnet\n  max_tokens: 111\n")

	loaded := make(chan *Config, 4)
	w, err := Watch(path, func(c *Config) { loaded <- c }, nil)
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("model:\n  premium: claude-sonnet\n  max_tokens: 222\n"), 0o644))

	select {
	case cfg := <-loaded:
		require.Equal(t, int64(222), cfg.Model.MaxTokens)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatch_InvalidReloadKeepsPreviousViaOnError(t *testing.T) {
	path := writeConfig(t, "model:\n  premium: claude-sonnet\n")

	errs := make(chan error, 4)
	w, err := Watch(path, func(*Config) {}, func(e error) { errs <- e })
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("model:\n  provider: not-a-real-provider\n  premium: x\n"), 0o644))

	select {
	case e := <-errs:
		require.Error(t, e)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload error")
	}
}
