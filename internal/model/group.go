// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "sort"

// ToolGroups holds a message's events split by the tool that produced them.
type ToolGroups struct {
	// Tools lists tool names in order of first appearance.
	Tools  []string
	ByTool map[string][]MessageEvent
	Other  []MessageEvent
}

// GroupToolEvents splits events by their tool metadata. Events without a
// tool go to Other. Arrival order is kept within every group.
func GroupToolEvents(events []MessageEvent) ToolGroups {
	g := ToolGroups{ByTool: make(map[string][]MessageEvent)}
	for _, ev := range events {
		tool := ev.Metadata[MetaTool]
		if tool == "" {
			g.Other = append(g.Other, ev)
			continue
		}
		if _, seen := g.ByTool[tool]; !seen {
			g.Tools = append(g.Tools, tool)
		}
		g.ByTool[tool] = append(g.ByTool[tool], ev)
	}
	return g
}

// SortByStep returns a copy of events ordered by numeric step. Events
// without a step follow those with one, in their original order.
func SortByStep(events []MessageEvent) []MessageEvent {
	out := make([]MessageEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		si, okI := out[i].Step()
		sj, okJ := out[j].Step()
		switch {
		case okI && okJ:
			return si < sj
		case okI:
			return true
		default:
			return false
		}
	})
	return out
}
