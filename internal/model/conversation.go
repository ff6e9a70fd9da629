// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"time"
)

// Agent identifiers assigned to conversations.
const (
	DefaultAgentID = "general-bot"
	SQLAgentID     = "sql-chat-bot"
)

// TitleLayout formats the default title of a new conversation.
const TitleLayout = "15:04:05"

// Conversation is a chat thread bound to one agent.
type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	AgentID      string    `json:"agentId"`
	CreatedAt    time.Time `json:"createdAt"`
	ConnectionID string    `json:"connectionId,omitempty"`
	DatabaseName string    `json:"databaseName,omitempty"`
}

// NewConversation creates a conversation titled by its creation time.
func NewConversation(agentID string, now time.Time) *Conversation {
	if agentID == "" {
		agentID = DefaultAgentID
	}
	return &Conversation{
		ID:        NewID(),
		Title:     now.Format(TitleLayout),
		AgentID:   agentID,
		CreatedAt: now,
	}
}

// AgentForConnection returns the agent a legacy conversation was using.
func AgentForConnection(connectionID string) string {
	if connectionID != "" {
		return SQLAgentID
	}
	return DefaultAgentID
}

// Clone returns a copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// ConversationMeta is a lightweight summary used by listings.
type ConversationMeta struct {
	ID           string
	Title        string
	AgentID      string
	CreatedAt    time.Time
	MessageCount int
	Loading      bool
	Preview      string
}
