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
	"fmt"
	"strings"
)

// Difficulty tiers derived from the topic text
const (
	DifficultyEasy     = "easy"
	DifficultyHard     = "hard"
	DifficultyBalanced = "balanced"
)

// DetectDifficulty picks a tier from keywords in the topic
func DetectDifficulty(topic string) string {
	t := strings.ToLower(topic)
	switch {
	case strings.Contains(t, "easy"):
		return DifficultyEasy
	case strings.Contains(t, "hard"), strings.Contains(t, "expert"):
		return DifficultyHard
	default:
		return DifficultyBalanced
	}
}

func difficultyDirective(difficulty string) string {
	switch difficulty {
	case DifficultyEasy:
		return "Focus on fundamentals. Ask definitional questions about core concepts " +
			"that a junior candidate should be able to answer, such as \"What is...\" or \"Explain the difference between...\"."
	case DifficultyHard:
		return "Focus on architecture and real-world scenarios. Ask questions about design trade-offs, " +
			"scaling, failure handling and debugging that require senior-level experience."
	default:
		return "Use a balanced mid-level style. Mix conceptual questions with practical " +
			"questions about how and when to apply each concept."
	}
}

// BuildPrompt renders the completion prompt for count questions on topic.
// avoid lists recent questions the new ones must differ from.
func BuildPrompt(topic string, count int, avoid []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are an experienced technical interviewer. Generate %d unique interview questions about %q.\n\n",
		count, strings.TrimSpace(topic))
	b.WriteString(difficultyDirective(DetectDifficulty(topic)))
	b.WriteString("\n\nEach question must be self-contained, specific and phrased differently from the others.\n")

	if len(avoid) > 0 {
		b.WriteString("\nThe new questions must be completely different from these already asked questions:\n")
		for _, q := range avoid {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}

	b.WriteString("\nRespond with JSON only, in exactly this shape:\n")
	b.WriteString(`{"questions":[{"question":"..."}]}`)
	b.WriteString("\n")

	return b.String()
}
