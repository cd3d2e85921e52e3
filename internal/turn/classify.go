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

package turn

import "strings"

// IntentKind is the result of classifying raw user input before it
// reaches the model (spec.md §4.3 step 1).
type IntentKind string

const (
	// IntentFreeForm is ordinary text handed to the model.
	IntentFreeForm IntentKind = "free-form"
	// IntentSlashCommand is UI-only and never reaches the model.
	IntentSlashCommand IntentKind = "slash-command"
	// IntentScheduleTool is a slash-command that resolves directly to a
	// tool call, bypassing the model entirely.
	IntentScheduleTool IntentKind = "schedule-tool"
	// IntentShellMode is a "!"-prefixed line meant to run directly as a
	// shell command rather than go through the model.
	IntentShellMode IntentKind = "shell-mode"
	// IntentAtMention is input containing an "@" reference. The text
	// goes to the model as is: the referenced path is not read and the
	// reference is not expanded.
	IntentAtMention IntentKind = "at-mention"
)

// Intent is the classification of one piece of user input.
type Intent struct {
	Kind IntentKind
	// ToolName/ToolArgs are populated for IntentScheduleTool.
	ToolName string
	ToolArgs map[string]any
	// Command is populated for IntentShellMode (the command to run).
	Command string
	// Text is the trimmed input text to hand to the model for
	// IntentFreeForm / IntentAtMention.
	Text string
}

// ScheduleToolResolver resolves a slash-command's arguments to a
// direct tool invocation, when the command is registered as one
// (e.g. "/read foo.txt" -> read_file{path: "foo.txt"}).
type ScheduleToolResolver func(command, args string) (toolName string, toolArgs map[string]any, ok bool)

// Classify implements spec.md §4.3 step 1. resolver may be nil, in
// which case slash-commands never resolve to a direct tool call and
// are treated as UI-only.
func Classify(input string, resolver ScheduleToolResolver) Intent {
	trimmed := strings.TrimSpace(input)

	if strings.HasPrefix(trimmed, "/") {
		command, rest, _ := strings.Cut(strings.TrimPrefix(trimmed, "/"), " ")
		if resolver != nil {
			if name, args, ok := resolver(command, rest); ok {
				return Intent{Kind: IntentScheduleTool, ToolName: name, ToolArgs: args}
			}
		}
		return Intent{Kind: IntentSlashCommand, Text: trimmed}
	}

	if strings.HasPrefix(trimmed, "!") {
		return Intent{Kind: IntentShellMode, Command: strings.TrimSpace(strings.TrimPrefix(trimmed, "!"))}
	}

	if strings.Contains(trimmed, "@") {
		return Intent{Kind: IntentAtMention, Text: trimmed}
	}

	return Intent{Kind: IntentFreeForm, Text: trimmed}
}
