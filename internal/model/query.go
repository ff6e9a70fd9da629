// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// QUERY RESULT
// =============================================================================

// QueryResult is the outcome of running one SQL appendix statement against
// the agent's database. Results are cached per conversation, message and
// statement.
type QueryResult struct {
	ConversationID string     `json:"conversationId"`
	MessageID      string     `json:"messageId"`
	Statement      string     `json:"statement"`
	Columns        []string   `json:"columns,omitempty"`
	Rows           [][]string `json:"rows,omitempty"`
	AffectedRows   *int       `json:"affectedRows,omitempty"`
	Error          string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// QueryKey builds the cache key of a statement run for a message.
func QueryKey(conversationID, messageID, statement string) string {
	return conversationID + "_" + messageID + "_" + statement
}

// Key returns the cache key of the result.
func (r *QueryResult) Key() string {
	return QueryKey(r.ConversationID, r.MessageID, r.Statement)
}

// Failed reports whether the statement was rejected or raised an error.
func (r *QueryResult) Failed() bool {
	return r.Error != ""
}

// FirstRow returns the first result row keyed by column, or nil.
func (r *QueryResult) FirstRow() map[string]string {
	if len(r.Rows) == 0 {
		return nil
	}
	row := make(map[string]string, len(r.Columns))
	for i, col := range r.Columns {
		if i < len(r.Rows[0]) {
			row[col] = r.Rows[0][i]
		}
	}
	return row
}

// Summary returns the error, the affected row count, or an empty string
// when the result is a plain row set.
func (r *QueryResult) Summary() string {
	switch {
	case r.Error != "":
		return r.Error
	case r.AffectedRows != nil:
		return fmt.Sprintf("%d rows affected.", *r.AffectedRows)
	default:
		return ""
	}
}

// Clone returns a deep copy of the result.
func (r *QueryResult) Clone() *QueryResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Columns = append([]string(nil), r.Columns...)
	if r.Rows != nil {
		out.Rows = make([][]string, len(r.Rows))
		for i, row := range r.Rows {
			out.Rows[i] = append([]string(nil), row...)
		}
	}
	if r.AffectedRows != nil {
		n := *r.AffectedRows
		out.AffectedRows = &n
	}
	return &out
}

// IsSelectStatement reports whether a statement only reads data. Only these
// run without explicit confirmation.
func IsSelectStatement(statement string) bool {
	s := strings.ToUpper(strings.TrimSpace(statement))
	return strings.HasPrefix(s, "SELECT") || strings.HasPrefix(s, "WITH")
}

// SQLAppendices returns the sql appendix blocks of a message in order.
func SQLAppendices(events []MessageEvent) []ToolAppendixData {
	var out []ToolAppendixData
	for _, app := range ExtractAppendices(events) {
		if app.Language == "sql" {
			out = append(out, app)
		}
	}
	return out
}
