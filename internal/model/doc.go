// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the domain types shared by the transport, the
// ingestion engine and the stores.
//
// # Key Types
//
//   - Conversation: A chat thread owned by an agent
//   - Message: One turn, either the user's prompt or the agent's answer
//   - MessageEvent: An immutable entry in a message's event log
//   - DataType, Signal: Closed variants over the stream's discriminant tags
//   - Status: The LOADING -> DONE | FAILED | CANCELLED state machine
//   - ToolAppendixData: Code blocks derived from appendix events
//
// # Usage
//
// Create the two messages of a new turn:
//
//	conv := model.NewConversation(model.DefaultAgentID, time.Now())
//	user := model.NewUserMessage(conv.ID, "local-user", "hi", time.Now())
//	agent := model.NewAgentMessage(conv.ID, conv.AgentID, time.Now())
//
// Derive render-time views from a finished message:
//
//	appendices := model.ExtractAppendices(agent.Events)
//	seg := model.ExtractSegments(agent.Events[0].Data)
package model
