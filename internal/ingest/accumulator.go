// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingest

import (
	"github.com/jeranaias/agentchat/internal/agent"
	"github.com/jeranaias/agentchat/internal/model"
	"github.com/jeranaias/agentchat/internal/storage"
)

// accumulator applies records to one LOADING agent message. It keeps the
// working content locally; the stream goroutine is its only writer.
type accumulator struct {
	store     *storage.MessageStore
	messageID string
	content   string
}

// apply performs the transition for rec and reports whether the message
// changed. Records without data are ignored.
func (a *accumulator) apply(rec agent.Record) bool {
	if rec.Data == "" {
		return false
	}

	switch rec.Type().Kind {
	case model.DataSignal:
		return a.applySignal(rec)
	case model.DataLLM:
		a.content += rec.Data
		return a.store.Update(a.messageID, storage.MessagePatch{Content: storage.StringPtr(a.content)})
	}

	// action, appendix, text and unrecognised types are kept verbatim
	return a.appendEvent(rec.Event())
}

func (a *accumulator) applySignal(rec agent.Record) bool {
	switch rec.Signal().Kind {
	case model.SignalStart:
		runID := rec.RunID()
		if runID == "" {
			return false
		}
		return a.store.Update(a.messageID, storage.MessagePatch{RunID: storage.StringPtr(runID)})
	case model.SignalLLMEnd:
		return a.flush()
	}

	// TOOL_END and unrecognised signals are kept verbatim
	return a.appendEvent(rec.Event())
}

// flush moves the working content into an llm event. Empty content is left
// alone so repeated LLM_END signals add nothing.
func (a *accumulator) flush() bool {
	if a.content == "" {
		return false
	}
	ev := model.NewEvent(a.content, model.DataTypeLLM, nil)
	a.content = ""
	return a.store.Update(a.messageID, storage.MessagePatch{
		Content:      storage.StringPtr(""),
		AppendEvents: []model.MessageEvent{ev},
	})
}

func (a *accumulator) appendEvent(ev model.MessageEvent) bool {
	return a.store.Update(a.messageID, storage.MessagePatch{
		AppendEvents: []model.MessageEvent{ev},
	})
}
