// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/agentchat/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role identifies who created a message.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAgent:
		return "Agent"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// STATUS
// =============================================================================

// Status is the lifecycle state of a message.
// LOADING is the only state that may change; the others are terminal.
type Status string

const (
	StatusLoading   Status = "LOADING"
	StatusDone      Status = "DONE"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// IsTerminal reports whether the status can no longer change.
func (s Status) IsTerminal() bool {
	return s != StatusLoading
}

// Valid reports whether s is one of the four known states.
func (s Status) Valid() bool {
	switch s {
	case StatusLoading, StatusDone, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// =============================================================================
// MESSAGE EVENT
// =============================================================================

// Metadata keys with meaning to the client.
const (
	MetaRunID = "run_id"
	MetaStep  = "step"
	MetaTitle = "title"
	MetaTool  = "tool"
)

// MessageEvent is one entry of a message's event log. Events are never
// modified after they are appended.
type MessageEvent struct {
	Data     string            `json:"data"`
	DataType string            `json:"data_type"`
	Metadata map[string]string `json:"metadata"`
}

// NewEvent creates an event with a copy of metadata.
func NewEvent(data, dataType string, metadata map[string]string) MessageEvent {
	return MessageEvent{
		Data:     data,
		DataType: dataType,
		Metadata: copyMetadata(metadata),
	}
}

// Kind returns the parsed data type of the event.
func (e MessageEvent) Kind() DataType {
	return ParseDataType(e.DataType)
}

// Step returns the numeric step metadata, if any.
func (e MessageEvent) Step() (int, bool) {
	raw, ok := e.Metadata[MetaStep]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Clone returns a deep copy of the event.
func (e MessageEvent) Clone() MessageEvent {
	e.Metadata = copyMetadata(e.Metadata)
	return e
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single turn in a conversation.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId"`
	CreatorID      string         `json:"creatorId"`
	CreatorRole    Role           `json:"creatorRole"`
	CreatedAt      time.Time      `json:"createdAt"`
	Content        string         `json:"content"`
	Events         []MessageEvent `json:"events"`
	Status         Status         `json:"status"`
	Feedback       *Feedback      `json:"feedback,omitempty"`
	RunID          string         `json:"runId,omitempty"`
}

// NewUserMessage creates a finished user message.
func NewUserMessage(conversationID, creatorID, content string, now time.Time) *Message {
	return &Message{
		ID:             NewID(),
		ConversationID: conversationID,
		CreatorID:      creatorID,
		CreatorRole:    RoleUser,
		CreatedAt:      now,
		Content:        content,
		Events:         []MessageEvent{},
		Status:         StatusDone,
	}
}

// NewAgentMessage creates the LOADING placeholder that a stream fills in.
func NewAgentMessage(conversationID, agentID string, now time.Time) *Message {
	return &Message{
		ID:             NewID(),
		ConversationID: conversationID,
		CreatorID:      agentID,
		CreatorRole:    RoleAgent,
		CreatedAt:      now,
		Events:         []MessageEvent{},
		Status:         StatusLoading,
	}
}

// IsLoading reports whether the message is still being streamed.
func (m *Message) IsLoading() bool {
	return m.Status == StatusLoading
}

// IsUser reports whether the message was written by the user.
func (m *Message) IsUser() bool {
	return m.CreatorRole == RoleUser
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	c.Events = make([]MessageEvent, len(m.Events))
	for i, ev := range m.Events {
		c.Events[i] = ev.Clone()
	}
	if m.Feedback != nil {
		fb := *m.Feedback
		c.Feedback = &fb
	}
	return &c
}

// HistoryContent returns the text sent back to the agent for this message:
// the live content followed by the llm events joined by newlines.
func (m *Message) HistoryContent() string {
	var llm []string
	for _, ev := range m.Events {
		if ev.Kind().Kind == DataLLM {
			llm = append(llm, ev.Data)
		}
	}
	return m.Content + strings.Join(llm, "\n")
}

// Text returns the readable answer of the message. For agent messages the
// llm events are joined; any unflushed content comes last.
func (m *Message) Text() string {
	var sb strings.Builder
	for _, ev := range m.Events {
		if ev.Kind().Kind != DataLLM {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(ev.Data)
	}
	if m.Content != "" {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(m.Content)
	}
	return sb.String()
}

// Preview returns a single-line preview of the message text.
func (m *Message) Preview(maxLen int) string {
	text := util.CollapseSpace(m.Text())
	if maxLen <= 0 {
		return text
	}
	return util.TruncateRunes(text, maxLen)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// NewID returns a fresh random identifier.
func NewID() string {
	return uuid.NewString()
}

func copyMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
