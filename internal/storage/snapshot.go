// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage holds conversations and messages in memory and persists them.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/jeranaias/agentchat/internal/model"
)

// CurrentSchemaVersion is the snapshot layout written by this build.
//
//	0: conversations without agentId
//	1: agentId present
//	2: every message has events, event metadata and a status
const CurrentSchemaVersion = 2

// StaleFailureMessage replaces the content of a message that was still
// waiting for its first token when the previous session ended.
const StaleFailureMessage = "Failed to send the message."

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is the persisted form of one conversation and its messages.
type Snapshot struct {
	SchemaVersion int                  `json:"schema_version"`
	Conversation  *model.Conversation  `json:"conversation"`
	Messages      []*model.Message     `json:"messages"`
	Queries       []*model.QueryResult `json:"queries,omitempty"`
}

// EncodeSnapshot serialises a snapshot at the current schema version.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	if s == nil || s.Conversation == nil {
		return nil, fmt.Errorf("encode snapshot: %w", ErrInvalidID)
	}
	out := *s
	out.SchemaVersion = CurrentSchemaVersion
	if out.Messages == nil {
		out.Messages = []*model.Message{}
	}
	return json.MarshalIndent(&out, "", "  ")
}

// DecodeSnapshot parses a blob and upgrades it to CurrentSchemaVersion.
// migrated reports whether any migration ran, in which case the caller
// should write the blob back.
func DecodeSnapshot(data []byte) (snap *Snapshot, migrated bool, err error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Conversation == nil || s.Conversation.ID == "" {
		return nil, false, fmt.Errorf("decode snapshot: missing conversation")
	}
	migrated, err = Migrate(&s)
	if err != nil {
		return nil, false, err
	}
	return &s, migrated, nil
}

// =============================================================================
// MIGRATIONS
// =============================================================================

// migrations[v] upgrades a snapshot from version v to v+1.
var migrations = map[int]func(*Snapshot){
	0: migrateAgentID,
	1: migrateMessageDefaults,
}

// Migrate upgrades s in place, one version at a time. Snapshots written by
// a newer build are rejected with ErrSchemaTooNew.
func Migrate(s *Snapshot) (bool, error) {
	if s.SchemaVersion > CurrentSchemaVersion {
		return false, &StoreError{
			Message: ErrSchemaTooNew.Message,
			ID:      fmt.Sprintf("%s (version %d)", s.Conversation.ID, s.SchemaVersion),
		}
	}
	if s.SchemaVersion < 0 {
		s.SchemaVersion = 0
	}

	changed := false
	for s.SchemaVersion < CurrentSchemaVersion {
		migrations[s.SchemaVersion](s)
		s.SchemaVersion++
		changed = true
	}
	return changed, nil
}

// migrateAgentID assigns the agent implied by the conversation's database
// connection.
func migrateAgentID(s *Snapshot) {
	s.Conversation.AgentID = model.AgentForConnection(s.Conversation.ConnectionID)
}

// migrateMessageDefaults fills fields older snapshots could leave out.
// Messages saved without an id get a fresh one.
func migrateMessageDefaults(s *Snapshot) {
	msgs := s.Messages[:0]
	for _, m := range s.Messages {
		if m == nil {
			continue
		}
		if m.ID == "" {
			m.ID = model.NewID()
		}
		if m.Events == nil {
			m.Events = []model.MessageEvent{}
		}
		for i := range m.Events {
			if m.Events[i].Metadata == nil {
				m.Events[i].Metadata = map[string]string{}
			}
		}
		if m.Status == "" {
			m.Status = model.StatusDone
		}
		if m.ConversationID == "" {
			m.ConversationID = s.Conversation.ID
		}
		msgs = append(msgs, m)
	}
	s.Messages = msgs
}

// =============================================================================
// STALE RECOVERY
// =============================================================================

// RecoverStale settles messages left LOADING by a previous session. One that
// never received content fails; one with partial content is kept as DONE.
// It returns the number of messages changed.
func RecoverStale(s *Snapshot) int {
	n := 0
	for _, m := range s.Messages {
		if m.Status != model.StatusLoading {
			continue
		}
		if m.Content == "" && len(m.Events) == 0 {
			m.Status = model.StatusFailed
			m.Content = StaleFailureMessage
		} else {
			m.Status = model.StatusDone
		}
		n++
	}
	return n
}
