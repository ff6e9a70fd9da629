// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage holds conversations and messages in memory and persists them.
package storage

import (
	"strings"
	"sync"

	"github.com/jeranaias/agentchat/internal/model"
)

// =============================================================================
// CHANGE NOTIFICATION
// =============================================================================

// ChangeKind describes what happened to a message.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeUpdated
	ChangeRemoved
)

// String returns the name of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeUpdated:
		return "updated"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Change is delivered to observers after every mutation.
type Change struct {
	Kind           ChangeKind
	MessageID      string
	ConversationID string
	Status         model.Status
}

// Observer receives store changes. Observers run on the goroutine that made
// the change, after the store lock is released.
type Observer func(Change)

// =============================================================================
// MESSAGE PATCH
// =============================================================================

// MessagePatch describes a partial update. Nil fields are left unchanged.
// AppendEvents are added to the end of the event log.
type MessagePatch struct {
	Content      *string
	Status       *model.Status
	RunID        *string
	AppendEvents []model.MessageEvent
	Feedback     *model.Feedback
}

// StringPtr returns a pointer to s, for building patches.
func StringPtr(s string) *string { return &s }

// StatusPtr returns a pointer to s, for building patches.
func StatusPtr(s model.Status) *model.Status { return &s }

// =============================================================================
// MESSAGE STORE
// =============================================================================

// MessageStore is the in-memory message list shared by every conversation.
// All methods are safe for concurrent use and reads return deep copies.
type MessageStore struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*model.Message

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int
}

// NewMessageStore creates an empty store.
func NewMessageStore() *MessageStore {
	return &MessageStore{
		byID:      make(map[string]*model.Message),
		observers: make(map[int]Observer),
	}
}

// Add appends a message. A second LOADING message in the same conversation
// is rejected with ErrConversationBusy.
func (s *MessageStore) Add(msg *model.Message) error {
	if msg == nil || msg.ID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	if _, exists := s.byID[msg.ID]; exists {
		s.mu.Unlock()
		return withID(ErrDuplicateMessage, msg.ID)
	}
	if msg.Status == model.StatusLoading {
		if _, busy := s.loadingLocked(msg.ConversationID); busy {
			s.mu.Unlock()
			return withID(ErrConversationBusy, msg.ConversationID)
		}
	}
	stored := msg.Clone()
	if stored.Events == nil {
		stored.Events = []model.MessageEvent{}
	}
	s.byID[stored.ID] = stored
	s.order = append(s.order, stored.ID)
	change := Change{Kind: ChangeAdded, MessageID: stored.ID, ConversationID: stored.ConversationID, Status: stored.Status}
	s.mu.Unlock()

	s.notify(change)
	return nil
}

// Update merges patch into the message with the given id and reports
// whether a message was found. A missing id is not an error.
//
// Once a message is terminal only Feedback is applied; every other field
// of the patch is ignored.
func (s *MessageStore) Update(id string, patch MessagePatch) bool {
	s.mu.Lock()
	msg, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return false
	}

	if !msg.Status.IsTerminal() {
		if patch.Content != nil {
			msg.Content = *patch.Content
		}
		if patch.RunID != nil {
			msg.RunID = *patch.RunID
		}
		for _, ev := range patch.AppendEvents {
			msg.Events = append(msg.Events, ev.Clone())
		}
		if patch.Status != nil {
			msg.Status = *patch.Status
		}
	}
	if patch.Feedback != nil {
		fb := *patch.Feedback
		msg.Feedback = &fb
	}
	change := Change{Kind: ChangeUpdated, MessageID: msg.ID, ConversationID: msg.ConversationID, Status: msg.Status}
	s.mu.Unlock()

	s.notify(change)
	return true
}

// AttachFeedback sets the feedback of a message in any state.
func (s *MessageStore) AttachFeedback(id string, fb *model.Feedback) error {
	if fb == nil {
		return nil
	}
	if !s.Update(id, MessagePatch{Feedback: fb}) {
		return withID(ErrMessageNotFound, id)
	}
	return nil
}

// Clear keeps only the messages for which keep returns true and returns
// how many were removed.
func (s *MessageStore) Clear(keep func(model.Message) bool) int {
	s.mu.Lock()
	var (
		order   []string
		changes []Change
	)
	for _, id := range s.order {
		msg := s.byID[id]
		if keep(*msg) {
			order = append(order, id)
			continue
		}
		delete(s.byID, id)
		changes = append(changes, Change{Kind: ChangeRemoved, MessageID: id, ConversationID: msg.ConversationID, Status: msg.Status})
	}
	s.order = order
	s.mu.Unlock()

	for _, c := range changes {
		s.notify(c)
	}
	return len(changes)
}

// RemoveConversation drops every message of a conversation.
func (s *MessageStore) RemoveConversation(conversationID string) int {
	return s.Clear(func(m model.Message) bool {
		return m.ConversationID != conversationID
	})
}

// Get returns a copy of one message.
func (s *MessageStore) Get(id string) (*model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return msg.Clone(), true
}

// Resolve finds a message by full id or by a unique id prefix.
func (s *MessageStore) Resolve(ref string) (*model.Message, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, withID(ErrMessageNotFound, ref)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if msg, ok := s.byID[ref]; ok {
		return msg.Clone(), nil
	}
	var match *model.Message
	for _, id := range s.order {
		if strings.HasPrefix(id, ref) {
			if match != nil {
				return nil, &StoreError{Message: "ambiguous message id", ID: ref}
			}
			match = s.byID[id]
		}
	}
	if match == nil {
		return nil, withID(ErrMessageNotFound, ref)
	}
	return match.Clone(), nil
}

// Status returns the current status of a message without copying it.
func (s *MessageStore) Status(id string) (model.Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.byID[id]
	if !ok {
		return "", false
	}
	return msg.Status, true
}

// ListByConversation returns the conversation's messages in arrival order.
func (s *MessageStore) ListByConversation(conversationID string) []*model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Message
	for _, id := range s.order {
		if msg := s.byID[id]; msg.ConversationID == conversationID {
			out = append(out, msg.Clone())
		}
	}
	return out
}

// All returns every message in arrival order.
func (s *MessageStore) All() []*model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Message, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

// Count returns the number of messages in a conversation.
func (s *MessageStore) Count(conversationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, id := range s.order {
		if s.byID[id].ConversationID == conversationID {
			n++
		}
	}
	return n
}

// LoadingMessage returns the conversation's in-flight message, if any.
func (s *MessageStore) LoadingMessage(conversationID string) (*model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.loadingLocked(conversationID)
	if !ok {
		return nil, false
	}
	return msg.Clone(), true
}

func (s *MessageStore) loadingLocked(conversationID string) (*model.Message, bool) {
	for _, id := range s.order {
		msg := s.byID[id]
		if msg.ConversationID == conversationID && msg.Status == model.StatusLoading {
			return msg, true
		}
	}
	return nil, false
}

// =============================================================================
// OBSERVERS
// =============================================================================

// Subscribe registers fn for change notifications and returns a function
// that unregisters it.
func (s *MessageStore) Subscribe(fn Observer) func() {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.observers, id)
			s.obsMu.Unlock()
		})
	}
}

func (s *MessageStore) notify(c Change) {
	s.obsMu.Lock()
	fns := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
