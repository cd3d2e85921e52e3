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

// Package safety implements C5: path resolution, command
// classification, loop detection and model/quota fallback. Path and
// command checks follow the same validate-before-invoke shape used by
// the filesystem and shell tools,
// generalized from a single tool's working directory to the
// orchestrator's full set of workspace roots.
package safety

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/kadirpekel/agentturn/internal/orcherr"
)

// WorkspaceRoots resolves and validates LLM-supplied paths against a
// session's working directory and declared workspace roots
// (spec.md §4.5).
type WorkspaceRoots struct {
	WorkingDir string
	Roots      []string
	TempDir    string
}

// NewWorkspaceRoots builds a WorkspaceRoots rooted at workingDir, with
// any additional roots (already-absolute) appended.
func NewWorkspaceRoots(workingDir string, extraRoots []string, tempDir string) *WorkspaceRoots {
	roots := make([]string, 0, len(extraRoots)+1)
	abs, err := filepath.Abs(workingDir)
	if err != nil {
		abs = workingDir
	}
	roots = append(roots, abs)
	for _, r := range extraRoots {
		if ra, err := filepath.Abs(r); err == nil {
			roots = append(roots, ra)
		}
	}
	return &WorkspaceRoots{WorkingDir: abs, Roots: roots, TempDir: tempDir}
}

// ResolveOpts controls Resolve's handling of missing paths.
type ResolveOpts struct {
	// AllowCreate permits a missing leaf (the tool itself will create
	// it, e.g. write_file); search-for-ambiguous-match is skipped.
	AllowCreate bool
	// WantDir requires the resolved path to be a directory; WantFile
	// requires a regular file. Both false means "don't enforce type".
	WantDir  bool
	WantFile bool
}

// Resolve implements spec.md §4.5's three-step path resolution: tilde
// expansion + relative resolution, existence/ambiguity check,
// symlink-aware workspace-containment check, then type enforcement.
func (w *WorkspaceRoots) Resolve(path string, opts ResolveOpts) (string, error) {
	expanded, err := expandTilde(path)
	if err != nil {
		return "", orcherr.New(orcherr.InvalidParams, "safety.path", "resolve", "cannot expand ~: "+err.Error(), err)
	}

	candidate := expanded
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(w.WorkingDir, candidate)
	}
	candidate = filepath.Clean(candidate)

	if _, err := os.Lstat(candidate); err != nil {
		if !os.IsNotExist(err) {
			return "", orcherr.New(orcherr.FileNotFound, "safety.path", "resolve", path, err)
		}
		if opts.AllowCreate {
			if perr := w.containedInWorkspace(nearestExistingAncestor(candidate)); perr != nil {
				return "", perr
			}
			return candidate, nil
		}
		match, err := w.searchUnambiguous(filepath.Base(candidate))
		if err != nil {
			return "", err
		}
		candidate = match
	}

	resolved, err := w.resolveSymlinks(candidate)
	if err != nil {
		return "", err
	}
	if err := w.containedInWorkspace(resolved); err != nil {
		return "", err
	}

	if opts.WantDir || opts.WantFile {
		info, err := os.Stat(resolved)
		if err != nil {
			return "", orcherr.New(orcherr.FileNotFound, "safety.path", "resolve", path, err)
		}
		if opts.WantDir && !info.IsDir() {
			return "", orcherr.New(orcherr.InvalidParams, "safety.path", "resolve", path+" is not a directory", nil)
		}
		if opts.WantFile && info.IsDir() {
			return "", orcherr.New(orcherr.InvalidParams, "safety.path", "resolve", path+" is a directory, expected a file", nil)
		}
	}

	return resolved, nil
}

func (w *WorkspaceRoots) resolveSymlinks(path string) (string, error) {
	target := nearestExistingAncestor(path)
	resolved, err := filepath.EvalSymlinks(target)
	if err != nil {
		return "", orcherr.New(orcherr.FileNotFound, "safety.path", "resolve", path, err)
	}
	if target != path {
		rest, rerr := filepath.Rel(target, path)
		if rerr != nil {
			return "", orcherr.New(orcherr.PathNotInWorkspace, "safety.path", "resolve", path, rerr)
		}
		resolved = filepath.Join(resolved, rest)
	}
	return resolved, nil
}

func (w *WorkspaceRoots) containedInWorkspace(path string) error {
	candidates := append([]string{}, w.Roots...)
	if w.TempDir != "" {
		candidates = append(candidates, w.TempDir)
	}
	for _, root := range candidates {
		if root == "" {
			continue
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel == "." || (!strings.HasPrefix(rel, "..") && rel != "..") {
			return nil
		}
	}
	return orcherr.New(orcherr.PathNotInWorkspace, "safety.path", "resolve", path, nil)
}

// searchUnambiguous looks for exactly one file named base anywhere
// under the workspace roots.
func (w *WorkspaceRoots) searchUnambiguous(base string) (string, error) {
	var matches []string
	for _, root := range w.Roots {
		_ = filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
			if err != nil || d == nil {
				return nil
			}
			if d.Name() == base {
				matches = append(matches, p)
			}
			return nil
		})
	}
	switch len(matches) {
	case 0:
		return "", orcherr.New(orcherr.FileNotFound, "safety.path", "search", base, nil)
	case 1:
		return matches[0], nil
	default:
		return "", orcherr.New(orcherr.PathAmbiguous, "safety.path", "search", base, nil)
	}
}

func nearestExistingAncestor(path string) string {
	cur := path
	for {
		if _, err := os.Lstat(cur); err == nil {
			return cur
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return cur
		}
		cur = parent
	}
}

func expandTilde(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	if path == "~" {
		return u.HomeDir, nil
	}
	return filepath.Join(u.HomeDir, path[2:]), nil
}
