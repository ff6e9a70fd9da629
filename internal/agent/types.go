// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package agent provides the HTTP client for the conversational agent backend.
package agent

import (
	"github.com/jeranaias/agentchat/internal/model"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ChatMessage is one history entry sent to the agent.
type ChatMessage struct {
	Role    model.Role `json:"role"`
	Content string     `json:"content"`
}

// ChatRequest is the body of POST /chat/agent.
type ChatRequest struct {
	Messages       []ChatMessage       `json:"messages"`
	APIKey         string              `json:"api_key,omitempty"`
	OrgID          string              `json:"org_id,omitempty"`
	ConversationID string              `json:"conversation_id"`
	NewMessageID   string              `json:"new_message_id"`
	UserEmail      string              `json:"user_email"`
	Settings       *model.UserSettings `json:"settings,omitempty"`
}

// FeedbackRequest is the body of POST /statistics/feedback.
type FeedbackRequest struct {
	ConversationID string              `json:"conversation_id"`
	MessageID      string              `json:"message_id"`
	User           string              `json:"user"`
	Score          int                 `json:"score"`
	Comment        string              `json:"comment"`
	Key            string              `json:"key"`
	PreviousID     string              `json:"previous_id,omitempty"`
	Settings       *model.UserSettings `json:"settings,omitempty"`
}

// =============================================================================
// STREAM RECORD
// =============================================================================

// Record is one decoded line of the agent stream.
type Record struct {
	Data     string
	DataType string
	Metadata map[string]string
}

// Type returns the parsed data type.
func (r Record) Type() model.DataType {
	return model.ParseDataType(r.DataType)
}

// Signal returns the parsed signal value. Only meaningful for signal records.
func (r Record) Signal() model.Signal {
	return model.ParseSignal(r.Data)
}

// RunID returns the run identifier carried in the metadata, if any.
func (r Record) RunID() string {
	return r.Metadata[model.MetaRunID]
}

// Event converts the record into a message event.
func (r Record) Event() model.MessageEvent {
	return model.NewEvent(r.Data, r.DataType, r.Metadata)
}

// StreamStats holds counters collected while reading a stream.
type StreamStats struct {
	Lines     int
	Records   int
	Malformed int
	Oversized int
}
