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
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the retention sweep once an hour, which is
// frequent enough that MaxAge/MaxCount stay close to their configured
// bounds without the sweep itself becoming a noticeable cost.
const DefaultSweepSchedule = "@hourly"

// ScheduleSweeps starts a background cron.Cron that runs Sweep(dir, c,
// activeSessionID(), time.Now()) on schedule, until the returned
// *cron.Cron is stopped. activeSessionID is called fresh on every
// tick since the active session can change across the process
// lifetime (e.g. a long-running "serve" process handling many tasks).
func ScheduleSweeps(dir string, c RetentionConfig, activeSessionID func() string, schedule string) (*cron.Cron, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	cr := cron.New(cron.WithSeconds())
	_, err := cr.AddFunc(schedule, func() {
		if err := Sweep(dir, c, activeSessionID(), time.Now()); err != nil {
			slog.Warn("session: scheduled retention sweep failed", "dir", dir, "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	cr.Start()
	return cr, nil
}
