// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Saver writes a conversation to durable storage.
// *storage.Repository satisfies it.
type Saver interface {
	SaveConversation(ctx context.Context, conversationID string) error
}

// persister throttles durable saves per conversation. The in-memory store is
// always current; only the write to disk is rate limited.
type persister struct {
	saver    Saver
	interval time.Duration
	logger   logrus.FieldLogger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newPersister(saver Saver, interval time.Duration, logger logrus.FieldLogger) *persister {
	return &persister{
		saver:    saver,
		interval: interval,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (p *persister) limiter(conversationID string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	lim, ok := p.limiters[conversationID]
	if !ok {
		limit := rate.Inf
		if p.interval > 0 {
			limit = rate.Every(p.interval)
		}
		lim = rate.NewLimiter(limit, 1)
		p.limiters[conversationID] = lim
	}
	return lim
}

// touch saves the conversation if its limiter allows it.
func (p *persister) touch(ctx context.Context, conversationID string) {
	if p.saver == nil {
		return
	}
	if p.limiter(conversationID).Allow() {
		p.save(ctx, conversationID)
	}
}

// flush saves unconditionally. Used on terminal transitions.
func (p *persister) flush(ctx context.Context, conversationID string) {
	if p.saver == nil {
		return
	}
	p.save(ctx, conversationID)

	p.mu.Lock()
	delete(p.limiters, conversationID)
	p.mu.Unlock()
}

func (p *persister) save(ctx context.Context, conversationID string) {
	// The caller's cancellation must not lose the final state.
	if err := p.saver.SaveConversation(context.WithoutCancel(ctx), conversationID); err != nil {
		p.logger.WithError(err).WithField("conversation_id", conversationID).Warn("Failed to persist conversation")
	}
}
