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

// Package extract recovers JSON objects from free-form model output and pulls
// question texts out of them.
package extract

import (
	"encoding/json"
	"strings"
)

// ExtractJSON returns the first well-formed JSON object found in raw, or nil.
//
// The span from the first '{' to the last '}' is tried first. When that does
// not parse (typically trailing commentary containing braces), the input is
// scanned for balanced top-level objects and the first one that parses is
// returned. An object that is never closed is not repaired.
func ExtractJSON(raw string) map[string]any {
	start := strings.Index(raw, "{")
	if start == -1 {
		return nil
	}

	if end := strings.LastIndex(raw, "}"); end > start {
		if obj, ok := parseObject(raw[start : end+1]); ok {
			return obj
		}
	}

	return scanBalanced(raw[start:])
}

// scanBalanced walks s tracking brace depth. Quotes are only tracked inside an
// object so stray quotes in surrounding prose do not hide the JSON.
func scanBalanced(s string) map[string]any {
	depth := 0
	open := -1
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if depth > 0 {
			if escaped {
				escaped = false
				continue
			}
			if inString {
				switch ch {
				case '\\':
					escaped = true
				case '"':
					inString = false
				}
				continue
			}
			if ch == '"' {
				inString = true
				continue
			}
		}

		switch ch {
		case '{':
			if depth == 0 {
				open = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				if obj, ok := parseObject(s[open : i+1]); ok {
					return obj
				}
				open = -1
			}
		}
	}

	return nil
}

func parseObject(span string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(span), &obj); err != nil {
		return nil, false
	}
	if obj == nil {
		return nil, false
	}
	return obj, true
}
