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

package searchtool

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentturn/internal/safety"
)

func TestSearch_FindsMatchesAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("func TODO() {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.go"), []byte("package b\n"), 0o644))

	roots := &safety.WorkspaceRoots{WorkingDir: dir, Roots: []string{dir}}
	st := New(roots)

	inv, err := st.NewInvocation(context.Background(), map[string]any{"pattern": "TODO"})
	require.NoError(t, err)

	res, err := inv.Execute(context.Background(), nil)
	require.NoError(t, err)
	matches, ok := res.ResponseParts["matches"].([]string)
	require.True(t, ok)
	assert.Len(t, matches, 1)
	assert.Contains(t, matches[0], "a.go")
}

func TestSearch_RejectsInvalidRegex(t *testing.T) {
	dir := t.TempDir()
	roots := &safety.WorkspaceRoots{WorkingDir: dir, Roots: []string{dir}}
	st := New(roots)

	_, err := st.NewInvocation(context.Background(), map[string]any{"pattern": "("})
	require.Error(t, err)
}
