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
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file on disk change: an fsnotify.Watcher on
// the config path re-reads the file on every Write/Create event, with
// no debouncing.
type Watcher struct {
	path    string
	fsw     *fsnotify.Watcher
	onLoad  func(*Config)
	onError func(error)
	done    chan struct{}
}

// Watch starts watching path for changes, invoking onLoad with each
// successfully reloaded Config. Callers must call Stop when done.
func Watch(path string, onLoad func(*Config), onError func(error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w := &Watcher{path: path, fsw: fsw, onLoad: onLoad, onError: onError, done: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			// Editors often replace a file (write temp + rename) rather than
			// writing in place; Write or Create both indicate "re-read me".
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				if w.onError != nil {
					w.onError(err)
				} else {
					slog.Warn("config: reload failed, keeping previous configuration", "path", w.path, "error", err)
				}
				continue
			}
			if w.onLoad != nil {
				w.onLoad(cfg)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}
		case <-w.done:
			return
		}
	}
}

// Stop closes the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	close(w.done)
	_ = w.fsw.Close()
}
