// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ingest turns agent stream records into message state.
package ingest

import (
	"context"
	"sync"
)

// =============================================================================
// CANCEL REGISTRY (THREAD-SAFE)
// =============================================================================

// streamCloser is the part of a record stream the registry needs.
type streamCloser interface {
	Close() error
}

type inflight struct {
	cancel    context.CancelFunc
	stream    streamCloser
	cancelled bool
}

// cancelRegistry maps in-flight agent message ids to the context and stream
// serving them. Cancel may arrive from any goroutine, including before the
// stream has been opened.
type cancelRegistry struct {
	mu      sync.Mutex
	entries map[string]*inflight
}

func newCancelRegistry() *cancelRegistry {
	return &cancelRegistry{entries: make(map[string]*inflight)}
}

// register records the cancel function for a message's request context.
func (r *cancelRegistry) register(messageID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[messageID] = &inflight{cancel: cancel}
}

// attach stores the opened stream. If the message was cancelled while the
// request was being opened, the stream is closed at once and attach
// returns false.
func (r *cancelRegistry) attach(messageID string, stream streamCloser) bool {
	r.mu.Lock()
	entry, ok := r.entries[messageID]
	if ok && !entry.cancelled {
		entry.stream = stream
		r.mu.Unlock()
		return true
	}
	r.mu.Unlock()

	stream.Close()
	return false
}

// cancel aborts the request context and closes the stream, if any.
// Safe to call multiple times or for unknown ids.
func (r *cancelRegistry) cancel(messageID string) bool {
	r.mu.Lock()
	entry, ok := r.entries[messageID]
	if !ok || entry.cancelled {
		r.mu.Unlock()
		return false
	}
	entry.cancelled = true
	stream := entry.stream
	cancel := entry.cancel
	r.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
	if cancel != nil {
		cancel()
	}
	return true
}

// remove drops the entry and releases its context.
func (r *cancelRegistry) remove(messageID string) {
	r.mu.Lock()
	entry, ok := r.entries[messageID]
	delete(r.entries, messageID)
	r.mu.Unlock()

	if ok && entry.cancel != nil {
		entry.cancel() // Always cancel to prevent context leaks
	}
}

// active returns the number of registered messages.
func (r *cancelRegistry) active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
