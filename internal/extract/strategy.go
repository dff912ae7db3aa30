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

package extract

import (
	"sort"
	"strings"
)

// Strategy pulls question texts out of a parsed object. Extract returns nil
// when the object does not have the shape the strategy understands.
type Strategy struct {
	Name    string
	Extract func(obj map[string]any) []string
}

const (
	// StrategyQuestionsArray reads {"questions": [...]}
	StrategyQuestionsArray = "questions-array"
	// StrategySingleQuestion reads {"question": "..."}
	StrategySingleQuestion = "single-question"
	// StrategyStringFields reads every string-valued top-level field
	StrategyStringFields = "string-fields"
)

// DefaultStrategies is the order in which object shapes are tried
var DefaultStrategies = []Strategy{
	{Name: StrategyQuestionsArray, Extract: questionsArray},
	{Name: StrategySingleQuestion, Extract: singleQuestion},
	{Name: StrategyStringFields, Extract: stringFields},
}

// Candidates runs DefaultStrategies against obj
func Candidates(obj map[string]any) ([]string, string) {
	return CandidatesWith(obj, DefaultStrategies)
}

// CandidatesWith returns the texts produced by the first strategy yielding a
// non-empty result, along with that strategy's name. A nil object or an
// object no strategy recognizes yields no texts and an empty name.
func CandidatesWith(obj map[string]any, strategies []Strategy) ([]string, string) {
	if obj == nil {
		return nil, ""
	}

	for _, strategy := range strategies {
		if texts := strategy.Extract(obj); len(texts) > 0 {
			return texts, strategy.Name
		}
	}

	return nil, ""
}

func questionsArray(obj map[string]any) []string {
	items, ok := obj["questions"].([]any)
	if !ok {
		return nil
	}

	var texts []string
	for _, item := range items {
		switch v := item.(type) {
		case string:
			texts = appendNonBlank(texts, v)
		case map[string]any:
			if q, ok := v["question"].(string); ok {
				texts = appendNonBlank(texts, q)
			} else if q, ok := v["text"].(string); ok {
				texts = appendNonBlank(texts, q)
			}
		}
	}
	return texts
}

func singleQuestion(obj map[string]any) []string {
	q, ok := obj["question"].(string)
	if !ok {
		return nil
	}
	return appendNonBlank(nil, q)
}

func stringFields(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var texts []string
	for _, k := range keys {
		if s, ok := obj[k].(string); ok {
			texts = appendNonBlank(texts, s)
		}
	}
	return texts
}

func appendNonBlank(texts []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return texts
	}
	return append(texts, s)
}
