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

// Package orcherr defines the orchestrator's error taxonomy: semantic
// kinds rather than a type hierarchy, each carrying the component that
// raised it and the underlying cause.
package orcherr

import "fmt"

// Kind is a semantic error classification. It is not a type hierarchy:
// callers switch on Kind, not on the concrete Go type.
type Kind string

const (
	InvalidParams       Kind = "invalid_params"
	FileNotFound        Kind = "file_not_found"
	PathAmbiguous       Kind = "path_ambiguous"
	PathNotInWorkspace  Kind = "path_not_in_workspace"
	ExecutionFailed     Kind = "execution_failed"
	Cancelled           Kind = "cancelled"
	UnauthorizedLLM     Kind = "unauthorized_llm"
	QuotaExceeded       Kind = "quota_exceeded"
	LoopDetected        Kind = "loop_detected"
	ContextOverflow     Kind = "context_overflow"
	PolicyBlocked       Kind = "policy_blocked"
	StreamProtocolError Kind = "stream_protocol_error"
)

// Error is the orchestrator's typed error envelope: a
// {Component, Action, Message, Err} shape that carries enough context
// to render a useful message without losing the wrapped cause.
type Error struct {
	Kind      Kind
	Component string
	Action    string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s %s: %s: %v", e.Component, e.Action, string(e.Kind), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s %s: %s", e.Component, e.Action, string(e.Kind), e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so
// callers can do errors.Is(err, orcherr.New(orcherr.FileNotFound, ...))
// style comparisons by kind via As + Kind check, or more simply
// errors.As and switch on Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error.
func New(kind Kind, component, action, message string, err error) *Error {
	return &Error{Kind: kind, Component: component, Action: action, Message: message, Err: err}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error,
// returning ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
