// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"regexp"
	"strings"
)

const thoughtPrefix = "Thought: "

// Patterns are tried in order; the first match wins.
var (
	thoughtBeforeAction = regexp.MustCompile(`Thought:\s?([\s\S]*?)\s?(?:Action)`)
	thoughtBeforeFinal  = regexp.MustCompile(`Thought:\s?([\s\S]*?)\s?(?:FINAL_ANSWER)`)
	thoughtToEnd        = regexp.MustCompile(`Thought:\s?([\s\S]*?)$`)
	finalAnswer         = regexp.MustCompile(`FINAL_ANSWER:\s?([\s\S]*)`)
)

// Segments splits an llm event into the agent's reasoning and its answer.
// An empty field means the segment is absent.
type Segments struct {
	Thought     string
	FinalAnswer string
}

// Empty reports whether neither segment is present.
func (s Segments) Empty() bool {
	return s.Thought == "" && s.FinalAnswer == ""
}

// ExtractSegments is a display heuristic over ReAct-style agent output.
// It is applied to finished llm events and has no effect on message state.
func ExtractSegments(text string) Segments {
	var seg Segments

	for _, re := range []*regexp.Regexp{thoughtBeforeAction, thoughtBeforeFinal, thoughtToEnd} {
		if m := re.FindStringSubmatch(text); m != nil {
			seg.Thought = m[1]
			break
		}
	}

	if m := finalAnswer.FindStringSubmatch(text); m != nil {
		seg.FinalAnswer = m[1]
		return seg
	}

	// Text that is, or is becoming, a thought has no answer yet.
	if strings.HasPrefix(text, thoughtPrefix) || strings.HasPrefix(thoughtPrefix, text) {
		return seg
	}
	seg.FinalAnswer = text
	return seg
}
