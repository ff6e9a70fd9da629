// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage holds conversations and messages in memory and persists them.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/agentchat/internal/model"
)

// previewLength bounds ConversationMeta.Preview, in runes.
const previewLength = 50

// LoadReport summarises what Open found in the backend.
type LoadReport struct {
	Loaded    int      // snapshots loaded
	Migrated  int      // snapshots upgraded and rewritten
	Recovered int      // stale LOADING messages settled
	Skipped   []string // ids of unreadable or too-new snapshots
}

// =============================================================================
// REPOSITORY
// =============================================================================

// Repository ties the in-memory stores to a persistence backend.
type Repository struct {
	Messages      *MessageStore
	Conversations *ConversationStore
	Settings      *SettingsStore
	Queries       *QueryStore

	backend Backend
	logger  logrus.FieldLogger

	// saveMu serialises snapshot writes so an older snapshot cannot land
	// after a newer one. It also guards written.
	saveMu sync.Mutex

	// written holds the digest of the last blob read or written per
	// conversation, so Reload can ignore our own writes.
	written map[string][sha256.Size]byte
}

// NewRepository creates empty stores on top of backend without loading.
func NewRepository(backend Backend, logger logrus.FieldLogger) *Repository {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Repository{
		Messages:      NewMessageStore(),
		Conversations: NewConversationStore(),
		Settings:      NewSettingsStore(),
		Queries:       NewQueryStore(),
		backend:       backend,
		written:       make(map[string][sha256.Size]byte),
		logger:        logger.WithField("backend", backend.Name()),
	}
}

// Open loads every snapshot from backend. Old snapshots are migrated,
// stale LOADING messages are settled, and anything changed is written
// back. Unreadable snapshots are skipped and listed in the report.
func Open(ctx context.Context, backend Backend, logger logrus.FieldLogger) (*Repository, *LoadReport, error) {
	r := NewRepository(backend, logger)
	report := &LoadReport{}

	blobs, err := backend.LoadAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load conversations: %w", err)
	}

	ids := make([]string, 0, len(blobs))
	for id := range blobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		snap, migrated, err := DecodeSnapshot(blobs[id])
		if err != nil {
			r.logger.WithError(err).WithField("conversation_id", id).Warn("Skipping unreadable conversation")
			report.Skipped = append(report.Skipped, id)
			continue
		}
		recovered := RecoverStale(snap)
		if err := r.install(snap); err != nil {
			r.logger.WithError(err).WithField("conversation_id", id).Warn("Skipping conversation")
			report.Skipped = append(report.Skipped, id)
			continue
		}

		r.written[id] = sha256.Sum256(blobs[id])

		report.Loaded++
		report.Recovered += recovered
		if migrated {
			report.Migrated++
		}
		if migrated || recovered > 0 {
			if err := r.SaveConversation(ctx, snap.Conversation.ID); err != nil {
				r.logger.WithError(err).WithField("conversation_id", id).Warn("Failed to rewrite conversation")
			}
		}
	}

	if err := r.loadSettings(ctx); err != nil {
		r.logger.WithError(err).Warn("Ignoring unreadable settings")
	}

	r.logger.WithFields(logrus.Fields{
		"loaded":    report.Loaded,
		"migrated":  report.Migrated,
		"recovered": report.Recovered,
		"skipped":   len(report.Skipped),
	}).Debug("Conversations loaded")

	return r, report, nil
}

// install adds a decoded snapshot to the stores. It is all or nothing: if
// any message is rejected, everything it added is removed again and a
// conversation it replaced is restored.
func (r *Repository) install(snap *Snapshot) (err error) {
	convID := snap.Conversation.ID
	prev, _ := r.Conversations.Get(convID)
	if err := r.Conversations.Put(snap.Conversation); err != nil {
		return err
	}

	added := make(map[string]bool, len(snap.Messages))
	defer func() {
		if err == nil {
			return
		}
		r.Messages.Clear(func(m model.Message) bool { return !added[m.ID] })
		if prev != nil {
			r.Conversations.Put(prev)
		} else {
			r.Conversations.Delete(convID)
		}
	}()

	for _, msg := range snap.Messages {
		if msg.ConversationID != convID {
			return fmt.Errorf("message %s belongs to %q: %w", msg.ID, msg.ConversationID, ErrInvalidID)
		}
		if err := r.Messages.Add(msg); err != nil {
			return err
		}
		added[msg.ID] = true
	}
	for _, q := range snap.Queries {
		if !added[q.MessageID] || q.ConversationID != convID {
			continue
		}
		if err := r.Queries.Put(q); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) loadSettings(ctx context.Context) error {
	blob, err := r.backend.LoadSettings(ctx)
	if err != nil || blob == nil {
		return err
	}
	var s model.Settings
	if err := json.Unmarshal(blob, &s); err != nil {
		return err
	}
	r.Settings.Replace(s)
	return nil
}

// Snapshot builds the persisted form of a conversation.
func (r *Repository) Snapshot(conversationID string) (*Snapshot, error) {
	conv, err := r.Conversations.Get(conversationID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		SchemaVersion: CurrentSchemaVersion,
		Conversation:  conv,
		Messages:      r.Messages.ListByConversation(conversationID),
		Queries:       r.Queries.ListByConversation(conversationID),
	}, nil
}

// SaveConversation writes the current state of a conversation.
func (r *Repository) SaveConversation(ctx context.Context, conversationID string) error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	snap, err := r.Snapshot(conversationID)
	if err != nil {
		return err
	}
	blob, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := r.backend.Save(ctx, conversationID, blob); err != nil {
		return fmt.Errorf("save conversation %s: %w", conversationID, err)
	}
	r.written[conversationID] = sha256.Sum256(blob)
	return nil
}

// DeleteConversation removes a conversation and its messages.
func (r *Repository) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := r.Conversations.Delete(conversationID); err != nil {
		return err
	}
	r.Messages.RemoveConversation(conversationID)
	r.Queries.RemoveConversation(conversationID)

	r.saveMu.Lock()
	defer r.saveMu.Unlock()
	delete(r.written, conversationID)
	if err := r.backend.Delete(ctx, conversationID); err != nil {
		return fmt.Errorf("delete conversation %s: %w", conversationID, err)
	}
	return nil
}

// ClearConversation drops a conversation's messages but keeps the
// conversation itself. A message still in flight is kept.
func (r *Repository) ClearConversation(ctx context.Context, conversationID string) (int, error) {
	if !r.Conversations.Exists(conversationID) {
		return 0, withID(ErrConversationNotFound, conversationID)
	}
	n := r.Messages.Clear(func(m model.Message) bool {
		return m.ConversationID != conversationID || m.Status == model.StatusLoading
	})
	r.Queries.Retain(func(q *model.QueryResult) bool {
		_, ok := r.Messages.Status(q.MessageID)
		return q.ConversationID != conversationID || ok
	})
	return n, r.SaveConversation(ctx, conversationID)
}

// =============================================================================
// RELOAD
// =============================================================================

// ReloadOutcome describes what Reload did with a conversation.
type ReloadOutcome int

const (
	ReloadUnchanged ReloadOutcome = iota // stored blob matches memory
	ReloadUpdated                        // memory replaced by the stored snapshot
	ReloadRemoved                        // deleted from the backend, dropped from memory
	ReloadBusy                           // a message is in flight here; left alone
)

// String returns the name of the outcome.
func (o ReloadOutcome) String() string {
	switch o {
	case ReloadUnchanged:
		return "unchanged"
	case ReloadUpdated:
		return "updated"
	case ReloadRemoved:
		return "removed"
	case ReloadBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Reload replaces the in-memory copy of a conversation with what the
// backend holds, picking up writes made by another process. Blobs this
// repository wrote itself are ignored, as is any conversation with a
// LOADING message. A snapshot that cannot be decoded or installed leaves
// memory unchanged.
func (r *Repository) Reload(ctx context.Context, conversationID string) (ReloadOutcome, error) {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	if _, busy := r.Messages.LoadingMessage(conversationID); busy {
		return ReloadBusy, nil
	}

	blob, err := r.backend.Load(ctx, conversationID)
	if err != nil {
		return ReloadUnchanged, fmt.Errorf("reload conversation %s: %w", conversationID, err)
	}
	if blob == nil {
		delete(r.written, conversationID)
		if err := r.Conversations.Delete(conversationID); err != nil {
			return ReloadUnchanged, nil
		}
		r.Messages.RemoveConversation(conversationID)
		r.Queries.RemoveConversation(conversationID)
		return ReloadRemoved, nil
	}

	digest := sha256.Sum256(blob)
	if prev, ok := r.written[conversationID]; ok && prev == digest {
		return ReloadUnchanged, nil
	}

	snap, _, err := DecodeSnapshot(blob)
	if err != nil {
		return ReloadUnchanged, err
	}
	if snap.Conversation.ID != conversationID {
		return ReloadUnchanged, fmt.Errorf("reload conversation %s: snapshot holds %s: %w",
			conversationID, snap.Conversation.ID, ErrInvalidID)
	}

	old, _ := r.Snapshot(conversationID)
	r.Messages.RemoveConversation(conversationID)
	r.Queries.RemoveConversation(conversationID)
	if err := r.install(snap); err != nil {
		if old != nil {
			if rerr := r.install(old); rerr != nil {
				r.logger.WithError(rerr).WithField("conversation_id", conversationID).Error("Failed to restore conversation")
			}
		}
		return ReloadUnchanged, err
	}
	r.written[conversationID] = digest
	return ReloadUpdated, nil
}

// ClearAll deletes every conversation.
func (r *Repository) ClearAll(ctx context.Context) error {
	var errs []error
	for _, conv := range r.Conversations.List() {
		if err := r.DeleteConversation(ctx, conv.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SaveSettings writes the current settings.
func (r *Repository) SaveSettings(ctx context.Context) error {
	blob, err := json.Marshal(r.Settings.Get())
	if err != nil {
		return err
	}
	return r.backend.SaveSettings(ctx, blob)
}

// Metas lists conversations with their message counts, newest first.
func (r *Repository) Metas() []model.ConversationMeta {
	convs := r.Conversations.List()
	out := make([]model.ConversationMeta, 0, len(convs))
	for i := len(convs) - 1; i >= 0; i-- {
		conv := convs[i]
		msgs := r.Messages.ListByConversation(conv.ID)
		meta := model.ConversationMeta{
			ID:           conv.ID,
			Title:        conv.Title,
			AgentID:      conv.AgentID,
			CreatedAt:    conv.CreatedAt,
			MessageCount: len(msgs),
		}
		for _, m := range msgs {
			if m.IsLoading() {
				meta.Loading = true
			}
			if m.IsUser() && meta.Preview == "" {
				meta.Preview = m.Preview(previewLength)
			}
		}
		out = append(out, meta)
	}
	return out
}

// BackendName returns the name of the underlying backend.
func (r *Repository) BackendName() string { return r.backend.Name() }

// Close releases the backend.
func (r *Repository) Close() error {
	return r.backend.Close()
}
