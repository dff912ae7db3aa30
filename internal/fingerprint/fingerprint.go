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

// Package fingerprint canonicalizes question text and derives the 32-bit
// identity used to detect repeated questions across interview sessions.
package fingerprint

import (
	"strconv"
	"strings"
	"unicode"
)

// djb2 seed and multiplier
const (
	hashSeed       uint32 = 5381
	hashMultiplier uint32 = 33
)

// Normalize strips everything but word characters and whitespace, lowercases
// the result and collapses whitespace runs to a single space.
// Word characters are ASCII letters, digits and underscore.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	pendingSpace := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
		case isWordChar(r):
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			if r >= 'A' && r <= 'Z' {
				r += 'a' - 'A'
			}
			b.WriteRune(r)
		}
	}

	return b.String()
}

func isWordChar(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

// Hash returns the djb2 hash (h*33 + c, 32-bit wraparound) of the bytes of
// normalizedText. Collisions are possible and are treated as a repeat.
func Hash(normalizedText string) uint32 {
	h := hashSeed
	for i := 0; i < len(normalizedText); i++ {
		h = h*hashMultiplier + uint32(normalizedText[i])
	}
	return h
}

// Of normalizes text and hashes it
func Of(text string) uint32 {
	return Hash(Normalize(text))
}

// Format renders a fingerprint as its decimal string form
func Format(fp uint32) string {
	return strconv.FormatUint(uint64(fp), 10)
}

// Candidate is a parsed question together with its dedup identity
type Candidate struct {
	Text        string
	Normalized  string
	Fingerprint uint32
}

// NewCandidate builds a Candidate from raw question text
func NewCandidate(text string) Candidate {
	text = strings.TrimSpace(text)
	normalized := Normalize(text)
	return Candidate{
		Text:        text,
		Normalized:  normalized,
		Fingerprint: Hash(normalized),
	}
}

// Set holds fingerprints already considered used. The zero value is not
// usable; create one with NewSet.
type Set struct {
	items map[uint32]struct{}
}

// NewSet creates a set seeded with the given fingerprints
func NewSet(fps ...uint32) Set {
	s := Set{items: make(map[uint32]struct{}, len(fps))}
	for _, fp := range fps {
		s.items[fp] = struct{}{}
	}
	return s
}

// Add inserts fp and reports whether it was not already present
func (s Set) Add(fp uint32) bool {
	if _, exists := s.items[fp]; exists {
		return false
	}
	s.items[fp] = struct{}{}
	return true
}

// Has reports whether fp is in the set
func (s Set) Has(fp uint32) bool {
	_, exists := s.items[fp]
	return exists
}

// Len returns the number of fingerprints in the set
func (s Set) Len() int {
	return len(s.items)
}

// Union adds every fingerprint of other into s
func (s Set) Union(other Set) {
	for fp := range other.items {
		s.items[fp] = struct{}{}
	}
}

// AddText fingerprints text and adds it, reporting whether it was new
func (s Set) AddText(text string) bool {
	return s.Add(Of(text))
}
