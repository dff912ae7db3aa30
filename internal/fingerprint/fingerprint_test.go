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

package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"whitespace only", " \t\n ", ""},
		{"punctuation and case", "Hello, World!", "hello world"},
		{"collapses interior whitespace", "What   is\ta\n\nclosure?", "what is a closure"},
		{"punctuation between spaces", "a , b", "a b"},
		{"punctuation between letters", "don't", "dont"},
		{"keeps digits and underscore", "HTTP/2 vs snake_case", "http2 vs snake_case"},
		{"drops non-ascii letters", "Café résumé", "caf rsum"},
		{"only punctuation", "?!...", ""},
		{"trims edges", "   Explain REST.   ", "explain rest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Hello, World!",
		"  What is   a Closure?? ",
		"Explain the CAP theorem (consistency, availability, partition-tolerance).",
		"",
		"Ünïcödé   text here",
	}

	for _, input := range inputs {
		once := Normalize(input)
		assert.Equal(t, once, Normalize(once), "normalize should be idempotent for %q", input)
	}
}

func TestNormalizeNearDuplicatesCollapse(t *testing.T) {
	assert.Equal(t, Normalize("hello world"), Normalize("Hello, World!"))
	assert.Equal(t, Of("What is a closure?"), Of("what is a CLOSURE"))
}

func TestHashGoldenValues(t *testing.T) {
	// Values must stay stable across releases; stored history depends on them.
	assert.Equal(t, uint32(5381), Hash(""))
	assert.Equal(t, uint32(894552257), Hash("hello world"))
	assert.Equal(t, uint32(1159549491), Of("What is a closure?"))
	assert.Equal(t, uint32(1003347605), Of("What is a promise?"))
}

func TestHashDeterministic(t *testing.T) {
	text := Normalize("Describe how you would design a rate limiter.")
	first := Hash(text)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Hash(text))
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "894552257", Format(Hash("hello world")))
	assert.Equal(t, "0", Format(0))
	assert.Equal(t, "4294967295", Format(^uint32(0)))
}

func TestNewCandidate(t *testing.T) {
	c := NewCandidate("  What is a Promise?  ")

	assert.Equal(t, "What is a Promise?", c.Text)
	assert.Equal(t, "what is a promise", c.Normalized)
	assert.Equal(t, uint32(1003347605), c.Fingerprint)
}

func TestSet(t *testing.T) {
	s := NewSet(1, 2)
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has(1))
	assert.False(t, s.Has(3))

	assert.True(t, s.Add(3))
	assert.False(t, s.Add(3), "adding an existing fingerprint should report false")
	assert.Equal(t, 3, s.Len())

	other := NewSet(3, 4, 5)
	s.Union(other)
	assert.Equal(t, 5, s.Len())
	assert.Equal(t, 3, other.Len(), "union must not modify the argument")

	assert.True(t, s.AddText("What is a closure?"))
	assert.False(t, s.AddText("what is a closure"))
}
