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

package thinktool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThink_NeverConfirmsAndEchoesThought(t *testing.T) {
	th := New()
	inv, err := th.NewInvocation(context.Background(), map[string]any{"thought": "plan the refactor"})
	require.NoError(t, err)

	details, err := inv.ShouldConfirm(context.Background())
	require.NoError(t, err)
	assert.Nil(t, details)

	res, err := inv.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, res.Display.Text, "plan the refactor")
}

func TestThink_RejectsMissingThought(t *testing.T) {
	th := New()
	_, err := th.NewInvocation(context.Background(), map[string]any{})
	require.Error(t, err)
}
