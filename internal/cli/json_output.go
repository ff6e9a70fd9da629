// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - JSON output for --json mode.
//
// Every command prints one JSONResponse on stdout. Human-readable
// progress goes to stderr.
package cli

import (
	"encoding/json"
	"io"
	"time"

	"github.com/jeranaias/agentchat/internal/agent"
	"github.com/jeranaias/agentchat/internal/ingest"
	"github.com/jeranaias/agentchat/internal/model"
)

// JSONResponse is the envelope for all --json output.
type JSONResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data"`
	Error     *string     `json:"error"`
	Timestamp string      `json:"timestamp"`
	Command   string      `json:"command,omitempty"`
}

// NewJSONResponse creates a successful response.
func NewJSONResponse(command string, data interface{}) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponseStr creates a failed response that still carries data.
func NewJSONErrorResponseStr(command, errMsg string, data interface{}) *JSONResponse {
	return &JSONResponse{
		Success:   false,
		Data:      data,
		Error:     &errMsg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Fprint writes the response as indented JSON.
func (r *JSONResponse) Fprint(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// =============================================================================
// COMMAND DATA
// =============================================================================

// VersionData is the data of `version --json`.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// AskData is the data of `ask --json`.
type AskData struct {
	ConversationID string               `json:"conversation_id"`
	MessageID      string               `json:"message_id"`
	RunID          string               `json:"run_id,omitempty"`
	Status         model.Status         `json:"status"`
	Answer         string               `json:"answer"`
	Events         []model.MessageEvent `json:"events"`
	Records        int                  `json:"records"`
	Malformed      int                  `json:"malformed,omitempty"`
}

func newAskData(conversationID string, msg *model.Message, stats agent.StreamStats) AskData {
	events := msg.Events
	if events == nil {
		events = []model.MessageEvent{}
	}
	return AskData{
		ConversationID: conversationID,
		MessageID:      msg.ID,
		RunID:          msg.RunID,
		Status:         msg.Status,
		Answer:         msg.Text(),
		Events:         events,
		Records:        stats.Records,
		Malformed:      stats.Malformed,
	}
}

// ConversationData is one row of `conversations list --json`.
type ConversationData struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	AgentID      string    `json:"agent_id"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
	Loading      bool      `json:"loading"`
	Current      bool      `json:"current"`
	Preview      string    `json:"preview,omitempty"`
}

// RunData is the data of `run status|cancel --json`.
type RunData struct {
	RunID     string `json:"run_id"`
	Running   *bool  `json:"running,omitempty"`
	Cancelled *bool  `json:"cancelled,omitempty"`
}

// SQLData is the data of `run sql --json`.
type SQLData struct {
	ConversationID string     `json:"conversation_id"`
	MessageID      string     `json:"message_id"`
	Title          string     `json:"title"`
	Statement      string     `json:"statement"`
	Cached         bool       `json:"cached"`
	Columns        []string   `json:"columns"`
	Rows           [][]string `json:"rows"`
	AffectedRows   *int       `json:"affected_rows,omitempty"`
	Error          string     `json:"error,omitempty"`
}

func newSQLData(res *ingest.SQLResult) SQLData {
	q := res.Query
	data := SQLData{
		ConversationID: q.ConversationID,
		MessageID:      q.MessageID,
		Title:          res.Appendix.Title,
		Statement:      q.Statement,
		Cached:         res.Cached,
		Columns:        q.Columns,
		Rows:           q.Rows,
		AffectedRows:   q.AffectedRows,
		Error:          q.Error,
	}
	if data.Columns == nil {
		data.Columns = []string{}
	}
	if data.Rows == nil {
		data.Rows = [][]string{}
	}
	return data
}
