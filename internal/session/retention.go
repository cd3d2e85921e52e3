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
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RetentionConfig is spec.md §6's {maxAge, maxCount, minRetention}
// policy. MaxAge is a value+unit string ("h"|"d"|"w"|"m"), an integer
// greater than zero.
type RetentionConfig struct {
	MaxAge       string
	MaxCount     int
	MinRetention int
}

var maxAgePattern = regexp.MustCompile(`^(\d+)(h|d|w|m)$`)

// Valid reports whether c is a usable retention policy. An invalid
// configuration disables cleanup entirely (spec.md §6).
func (c RetentionConfig) Valid() bool {
	if c.MaxAge == "" {
		return false
	}
	m := maxAgePattern.FindStringSubmatch(c.MaxAge)
	if m == nil {
		return false
	}
	n, err := strconv.Atoi(m[1])
	return err == nil && n > 0
}

func (c RetentionConfig) maxAgeDuration() time.Duration {
	m := maxAgePattern.FindStringSubmatch(c.MaxAge)
	n, _ := strconv.Atoi(m[1])
	switch m[2] {
	case "h":
		return time.Duration(n) * time.Hour
	case "d":
		return time.Duration(n) * 24 * time.Hour
	case "w":
		return time.Duration(n) * 7 * 24 * time.Hour
	case "m":
		return time.Duration(n) * 30 * 24 * time.Hour
	default:
		return 0
	}
}

// Sweep deletes session history files under dir older than
// c.MaxAge, keeping at least c.MinRetention most-recent files and
// never more than c.MaxCount total, and never the file belonging to
// activeSessionID regardless of age or count (spec.md §8 "Retention
// cleanup never deletes the session file whose id == active session
// id"). Invalid c is a no-op, per spec.md §6.
func Sweep(dir string, c RetentionConfig, activeSessionID string, now time.Time) error {
	if !c.Valid() {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	type file struct {
		path    string
		modTime time.Time
		isFinal bool
	}
	var files []file
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, file{
			path:    filepath.Join(dir, e.Name()),
			modTime: info.ModTime(),
			isFinal: strings.Contains(e.Name(), suffix(activeSessionID)) && activeSessionID != "",
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })

	maxAge := c.maxAgeDuration()
	minKeep := c.MinRetention
	if minKeep < 0 {
		minKeep = 0
	}

	var deleted int
	for i, f := range files {
		if f.isFinal {
			continue
		}
		if i < minKeep {
			continue
		}
		overCount := c.MaxCount > 0 && i >= c.MaxCount
		overAge := now.Sub(f.modTime) > maxAge
		if !overCount && !overAge {
			continue
		}
		if err := os.Remove(f.path); err != nil {
			slog.Warn("session: retention sweep failed to remove file", "path", f.path, "error", err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		slog.Info("session: retention sweep removed history files", "count", deleted, "dir", dir)
	}
	return nil
}
