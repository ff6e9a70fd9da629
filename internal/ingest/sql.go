// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/agentchat/internal/model"
	"github.com/jeranaias/agentchat/internal/storage"
)

var (
	// ErrNoSQL is returned by RunSQL when the message has no sql appendix
	// at the requested position.
	ErrNoSQL = errors.New("ingest: no sql appendix")

	// ErrUnsafeStatement is returned by RunSQL for a statement that is not
	// a SELECT or WITH query unless Force is set.
	ErrUnsafeStatement = errors.New("ingest: statement is not a read-only query")
)

// SQLRequest selects a sql appendix of an agent message.
type SQLRequest struct {
	MessageID string

	// Index is the 1-based position among the message's sql appendices.
	// Zero selects the first.
	Index int

	// Force runs statements other than SELECT and WITH.
	Force bool

	// Refresh runs the statement even when a cached result exists.
	Refresh bool
}

// SQLResult is the outcome of RunSQL.
type SQLResult struct {
	Appendix model.ToolAppendixData
	Query    *model.QueryResult
	Cached   bool
}

// RunSQL executes a sql appendix of an agent message and caches the result
// under the conversation, message and statement. A cached result is returned
// without contacting the backend. Results the backend refused are returned
// but not cached.
func (e *Engine) RunSQL(ctx context.Context, req SQLRequest) (*SQLResult, error) {
	msg, ok := e.messages.Get(req.MessageID)
	if !ok {
		return nil, storage.ErrMessageNotFound
	}

	apps := model.SQLAppendices(msg.Events)
	index := req.Index
	if index == 0 {
		index = 1
	}
	if index < 1 || index > len(apps) {
		return nil, fmt.Errorf("%w: message %s has %d, wanted #%d", ErrNoSQL, msg.ID, len(apps), index)
	}
	app := apps[index-1]
	res := &SQLResult{Appendix: app}

	if !req.Refresh {
		if cached, ok := e.queries.Get(msg.ConversationID, msg.ID, app.Value); ok {
			res.Query = cached
			res.Cached = true
			return res, nil
		}
	}

	if !req.Force && !model.IsSelectStatement(app.Value) {
		return nil, ErrUnsafeStatement
	}

	q, err := e.client.ExecuteSQL(ctx, app.Value)
	if err != nil {
		return nil, err
	}
	q.ConversationID = msg.ConversationID
	q.MessageID = msg.ID
	res.Query = q

	log := e.logger.WithFields(logrus.Fields{
		"conversation_id": msg.ConversationID,
		"message_id":      msg.ID,
		"rows":            len(q.Rows),
	})
	if q.Failed() {
		log.WithField("reason", q.Error).Info("SQL statement refused")
		return res, nil
	}
	if err := e.queries.Put(q); err != nil {
		return nil, err
	}
	log.Debug("SQL result cached")

	e.persist.flush(ctx, msg.ConversationID)
	return res, nil
}
