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

package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScheduleSweeps_RunsOnConfiguredSchedule(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "2000-01-01T00-00-00Z-abcdefgh.json")
	require.NoError(t, os.WriteFile(stale, []byte("[]"), 0o644))
	oldTime := time.Now().Add(-365 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(stale, oldTime, oldTime))

	cfg := RetentionConfig{MaxAge: "1d", MaxCount: 100, MinRetention: 0}

	cr, err := ScheduleSweeps(dir, cfg, func() string { return "" }, "* * * * * *")
	require.NoError(t, err)
	defer cr.Stop()

	require.Eventually(t, func() bool {
		_, err := os.Stat(stale)
		return os.IsNotExist(err)
	}, 5*time.Second, 50*time.Millisecond)
}

func TestScheduleSweeps_DefaultsToHourlySchedule(t *testing.T) {
	dir := t.TempDir()
	cr, err := ScheduleSweeps(dir, RetentionConfig{}, func() string { return "" }, "")
	require.NoError(t, err)
	defer cr.Stop()
	require.Len(t, cr.Entries(), 1)
}
