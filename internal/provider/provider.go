// Copyright 2024 Interview Questions Project
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

// Package provider sends prompts to OpenAI-compatible chat completion
// endpoints and classifies their failures.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Completer turns a prompt into raw completion text
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// TransportError is a failure to get any response: DNS, connect, reset,
// timeout or an open circuit. It is worth retrying after a pause.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Retryable reports that transport failures may succeed later
func (e *TransportError) Retryable() bool {
	return true
}

// UpstreamError is a response the provider produced but that is unusable:
// a non-2xx status or an empty completion (StatusCode 0).
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: upstream error: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: upstream error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsTransport reports whether err is or wraps a TransportError
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsUpstream reports whether err is or wraps an UpstreamError
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
