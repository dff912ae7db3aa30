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

package generator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/your-org/interview-questions/internal/provider"
)

// errIncomplete ends an attempt that did not reach the requested count
var errIncomplete = errors.New("not enough unique questions yet")

// ConfigError reports an engine that cannot run, such as no providers
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Message
}

// ValidationError reports a malformed generation request
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ProviderError is an attempt where the primary and, when configured, the
// fallback provider both failed
type ProviderError struct {
	Primary  error
	Fallback error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString("primary provider failed: ")
	b.WriteString(e.Primary.Error())
	if e.Fallback != nil {
		b.WriteString("; fallback provider failed: ")
		b.WriteString(e.Fallback.Error())
	} else {
		b.WriteString("; no fallback provider configured")
	}
	return b.String()
}

// Unwrap returns both provider failures
func (e *ProviderError) Unwrap() []error {
	if e.Fallback == nil {
		return []error{e.Primary}
	}
	return []error{e.Primary, e.Fallback}
}

// HasTransport reports whether either failure was a transport failure
func (e *ProviderError) HasTransport() bool {
	return provider.IsTransport(e.Primary) || (e.Fallback != nil && provider.IsTransport(e.Fallback))
}

// ExhaustionError is returned when the attempt budget ran out before the
// requested number of unique questions was reached
type ExhaustionError struct {
	Obtained  int
	Requested int
	Attempts  int
	// Last is the most recent provider failure, if any
	Last error
}

func (e *ExhaustionError) Error() string {
	msg := fmt.Sprintf("generated only %d of %d unique questions after %d attempts",
		e.Obtained, e.Requested, e.Attempts)
	if e.Last != nil {
		msg += ": " + e.Last.Error()
	}
	return msg
}

// Unwrap returns the last provider failure
func (e *ExhaustionError) Unwrap() error {
	return e.Last
}
