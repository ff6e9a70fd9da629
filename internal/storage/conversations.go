// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage holds conversations and messages in memory and persists them.
package storage

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/agentchat/internal/model"
)

// =============================================================================
// CONVERSATION PATCH
// =============================================================================

// ConversationPatch describes a partial update. Nil fields are left unchanged.
type ConversationPatch struct {
	Title        *string
	AgentID      *string
	ConnectionID *string
	DatabaseName *string
}

// =============================================================================
// CONVERSATION STORE
// =============================================================================

// ConversationStore keeps the conversation list and tracks which one is
// current. It is safe for concurrent use.
type ConversationStore struct {
	mu      sync.RWMutex
	byID    map[string]*model.Conversation
	order   []string
	current string

	// Now stamps new conversations (default: time.Now)
	Now func() time.Time
}

// NewConversationStore creates an empty store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		byID: make(map[string]*model.Conversation),
		Now:  time.Now,
	}
}

// Create adds a new conversation and makes it current. An empty title
// defaults to the creation time; an empty agent to model.DefaultAgentID.
func (s *ConversationStore) Create(title, agentID string) *model.Conversation {
	conv := model.NewConversation(agentID, s.Now())
	if t := strings.TrimSpace(title); t != "" {
		conv.Title = t
	}

	s.mu.Lock()
	s.byID[conv.ID] = conv
	s.order = append(s.order, conv.ID)
	s.current = conv.ID
	s.mu.Unlock()

	return conv.Clone()
}

// Put inserts or replaces a conversation without changing the current one.
func (s *ConversationStore) Put(conv *model.Conversation) error {
	if conv == nil || conv.ID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[conv.ID]; !exists {
		s.order = append(s.order, conv.ID)
	}
	s.byID[conv.ID] = conv.Clone()
	return nil
}

// Get returns a copy of a conversation.
func (s *ConversationStore) Get(id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.byID[id]
	if !ok {
		return nil, withID(ErrConversationNotFound, id)
	}
	return conv.Clone(), nil
}

// Exists reports whether a conversation with id is present.
func (s *ConversationStore) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok
}

// List returns all conversations, oldest first.
func (s *ConversationStore) List() []*model.Conversation {
	s.mu.RLock()
	out := make([]*model.Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Update applies patch to a conversation.
func (s *ConversationStore) Update(id string, patch ConversationPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[id]
	if !ok {
		return withID(ErrConversationNotFound, id)
	}
	if patch.Title != nil {
		conv.Title = *patch.Title
	}
	if patch.AgentID != nil {
		conv.AgentID = *patch.AgentID
	}
	if patch.ConnectionID != nil {
		conv.ConnectionID = *patch.ConnectionID
	}
	if patch.DatabaseName != nil {
		conv.DatabaseName = *patch.DatabaseName
	}
	return nil
}

// Delete removes a conversation. Deleting the current conversation leaves
// no conversation current.
func (s *ConversationStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return withID(ErrConversationNotFound, id)
	}
	delete(s.byID, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.current == id {
		s.current = ""
	}
	return nil
}

// SetCurrent selects the current conversation. An empty id clears it.
func (s *ConversationStore) SetCurrent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if _, ok := s.byID[id]; !ok {
			return withID(ErrConversationNotFound, id)
		}
	}
	s.current = id
	return nil
}

// Current returns the current conversation, if one is selected.
func (s *ConversationStore) Current() (*model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.byID[s.current]
	if !ok {
		return nil, false
	}
	return conv.Clone(), true
}

// Resolve finds a conversation by full id or by a unique id prefix.
func (s *ConversationStore) Resolve(ref string) (*model.Conversation, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, withID(ErrConversationNotFound, ref)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if conv, ok := s.byID[ref]; ok {
		return conv.Clone(), nil
	}
	var match *model.Conversation
	for _, id := range s.order {
		if strings.HasPrefix(id, ref) {
			if match != nil {
				return nil, &StoreError{Message: "ambiguous conversation id", ID: ref}
			}
			match = s.byID[id]
		}
	}
	if match == nil {
		return nil, withID(ErrConversationNotFound, ref)
	}
	return match.Clone(), nil
}
