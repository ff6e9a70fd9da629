// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"sort"
	"sync"

	"github.com/jeranaias/agentchat/internal/model"
)

// =============================================================================
// QUERY CACHE
// =============================================================================

// QueryStore caches SQL results keyed by conversation, message and
// statement. It is safe for concurrent use.
type QueryStore struct {
	mu    sync.RWMutex
	byKey map[string]*model.QueryResult
}

// NewQueryStore creates an empty cache.
func NewQueryStore() *QueryStore {
	return &QueryStore{byKey: make(map[string]*model.QueryResult)}
}

// Put stores a result, replacing any earlier one for the same key.
func (s *QueryStore) Put(r *model.QueryResult) error {
	if r == nil || r.ConversationID == "" || r.MessageID == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	s.byKey[r.Key()] = r.Clone()
	s.mu.Unlock()
	return nil
}

// Get returns the cached result of a statement, if any.
func (s *QueryStore) Get(conversationID, messageID, statement string) (*model.QueryResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.byKey[model.QueryKey(conversationID, messageID, statement)]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// ListByConversation returns a conversation's results, oldest first.
func (s *QueryStore) ListByConversation(conversationID string) []*model.QueryResult {
	s.mu.RLock()
	var out []*model.QueryResult
	for _, r := range s.byKey {
		if r.ConversationID == conversationID {
			out = append(out, r.Clone())
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Key() < out[j].Key()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Retain drops every result for which keep returns false and returns how
// many were removed.
func (s *QueryStore) Retain(keep func(*model.QueryResult) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, r := range s.byKey {
		if !keep(r) {
			delete(s.byKey, key)
			n++
		}
	}
	return n
}

// RemoveConversation drops every result of a conversation.
func (s *QueryStore) RemoveConversation(conversationID string) int {
	return s.Retain(func(r *model.QueryResult) bool {
		return r.ConversationID != conversationID
	})
}

// Reset empties the cache.
func (s *QueryStore) Reset() {
	s.mu.Lock()
	s.byKey = make(map[string]*model.QueryResult)
	s.mu.Unlock()
}
