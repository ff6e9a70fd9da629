// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage holds conversations and messages in memory and persists them.
//
// The in-memory stores are the single source of truth while the program
// runs. A Backend makes them durable as one versioned snapshot per
// conversation.
//
// # Key Types
//
//   - MessageStore: messages of every conversation, with change observers
//   - ConversationStore: conversation list and the current selection
//   - SettingsStore: user settings sent with every agent request
//   - Backend: FileBackend (JSON files) or SQLiteBackend
//   - Repository: stores plus a backend, with load-time migration
//
// # Usage
//
// Open a repository and save a conversation after changing it:
//
//	backend, err := storage.OpenBackend("file", dataDir)
//	repo, report, err := storage.Open(ctx, backend, logger)
//	conv := repo.Conversations.Create("", model.DefaultAgentID)
//	err = repo.SaveConversation(ctx, conv.ID)
//
// # Schema Versions
//
// Snapshots carry schema_version. Older snapshots are migrated on load and
// rewritten; newer ones are skipped with ErrSchemaTooNew.
package storage
