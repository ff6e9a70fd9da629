// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
)

// SupportedAppendixLanguages lists the fence languages recognised in
// appendix events, in extraction order.
var SupportedAppendixLanguages = []string{
	"sql",
	"jsx",
	"json",
	"clingov_url",
	"yaml",
	"plotly",
	"ImageURL",
}

var appendixPatterns = func() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(SupportedAppendixLanguages))
	for _, lang := range SupportedAppendixLanguages {
		out[lang] = regexp.MustCompile("```" + regexp.QuoteMeta(lang) + `([\s\S]*?)` + "```")
	}
	return out
}()

// ToolAppendixData is a fenced block pulled out of an appendix event.
// It is always derived from the events and never stored.
type ToolAppendixData struct {
	Value    string
	Language string
	Title    string
	Event    MessageEvent
}

// ExtractAppendices derives the appendix blocks of a message. Languages are
// visited in SupportedAppendixLanguages order; the default title counter
// restarts for each language.
func ExtractAppendices(events []MessageEvent) []ToolAppendixData {
	var out []ToolAppendixData
	for _, lang := range SupportedAppendixLanguages {
		re := appendixPatterns[lang]
		idx := 1
		for _, ev := range events {
			if ev.Kind().Kind != DataAppendix {
				continue
			}
			for _, m := range re.FindAllStringSubmatch(ev.Data, -1) {
				title := ev.Metadata[MetaTitle]
				if title == "" {
					title = "Appendix " + strconv.Itoa(idx)
				}
				out = append(out, ToolAppendixData{
					Value:    strings.TrimSpace(strings.Replace(m[1], "\n", " ", 1)),
					Language: lang,
					Title:    title,
					Event:    ev,
				})
				idx++
			}
		}
	}
	return out
}

// Lexer returns a chroma lexer for an appendix language. Languages without
// a lexer map to chroma's fallback lexer.
func Lexer(lang string) chroma.Lexer {
	var l chroma.Lexer
	switch lang {
	case "clingov_url", "ImageURL", "plotly":
		l = lexers.Fallback
	default:
		l = lexers.Get(lang)
	}
	if l == nil {
		l = lexers.Fallback
	}
	return chroma.Coalesce(l)
}
