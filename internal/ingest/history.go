// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingest

import (
	"github.com/jeranaias/agentchat/internal/agent"
	"github.com/jeranaias/agentchat/internal/model"
)

// BuildHistory converts a conversation's messages into the history sent to
// the agent, oldest first. The message with id exclude (the new placeholder)
// is left out.
func BuildHistory(msgs []*model.Message, exclude string) []agent.ChatMessage {
	out := make([]agent.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == exclude {
			continue
		}
		out = append(out, agent.ChatMessage{
			Role:    m.CreatorRole,
			Content: m.HistoryContent(),
		})
	}
	return out
}
