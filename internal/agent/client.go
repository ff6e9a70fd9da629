// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package agent provides the HTTP client for the conversational agent backend.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/jeranaias/agentchat/internal/model"
)

// DefaultBaseURL is the agent API root used when none is configured.
const DefaultBaseURL = "http://127.0.0.1:9090/api/v1"

// maxResponseBody caps how much of a non-streaming response is read.
const maxResponseBody = 8 << 20

// maxErrorBody caps how much of a failed stream response is read.
const maxErrorBody = 64 * 1024

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the agent client.
type ClientConfig struct {
	// BaseURL is the API root (default: http://127.0.0.1:9090/api/v1)
	BaseURL string

	// APIKey and OrgID are forwarded in the chat body when set.
	APIKey string
	OrgID  string

	// UserEmail identifies the user to the backend (default: "no-auth")
	UserEmail string

	// Timeout for non-streaming requests (default: 30s).
	// Streams are bounded only by the caller's context.
	Timeout time.Duration

	// Logger receives diagnostic output (default: logrus standard logger)
	Logger logrus.FieldLogger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:   DefaultBaseURL,
		UserEmail: "no-auth",
		Timeout:   30 * time.Second,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the agent API. It is safe for concurrent use.
//
// Example:
//
//	client := agent.NewClient(nil)
//	running, err := client.RunStatus(ctx, runID)
type Client struct {
	config       *ClientConfig
	httpClient   *http.Client
	streamClient *http.Client
	logger       logrus.FieldLogger
}

// NewClient creates a client. Zero fields of config take their defaults.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	cfg := *config
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.UserEmail == "" {
		cfg.UserEmail = "no-auth"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	return &Client{
		config:       &cfg,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		streamClient: &http.Client{},
		logger:       cfg.Logger,
	}
}

// Config returns the effective configuration.
func (c *Client) Config() ClientConfig {
	return *c.config
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.config.BaseURL + "/" + strings.Join(escaped, "/")
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// Open starts a chat request and returns the record stream. Credentials and
// the user email from the client config fill any empty request fields.
//
// Errors are always *TransportError: either the backend could not be reached
// or it answered with a non-2xx status.
func (c *Client) Open(ctx context.Context, req ChatRequest) (*RecordStream, error) {
	if req.APIKey == "" {
		req.APIKey = c.config.APIKey
	}
	if req.OrgID == "" {
		req.OrgID = c.config.OrgID
	}
	if req.UserEmail == "" {
		req.UserEmail = c.config.UserEmail
	}
	if req.Messages == nil {
		req.Messages = []ChatMessage{}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &TransportError{Cause: &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}}
	}

	streamCtx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.endpoint("chat", "agent"), bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, &TransportError{Cause: &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		cancel()
		if isTimeout(err) {
			return nil, &TransportError{Cause: ErrTimeout}
		}
		return nil, &TransportError{Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		cancel()
		return nil, &TransportError{
			HTTPStatus:    resp.StatusCode,
			ServerMessage: gjson.GetBytes(raw, "error.message").String(),
		}
	}

	c.logger.WithFields(logrus.Fields{
		"conversation_id": req.ConversationID,
		"message_id":      req.NewMessageID,
	}).Debug("agent stream opened")

	return NewRecordStream(resp.Body, cancel, c.logger), nil
}

// =============================================================================
// RUN CONTROL
// =============================================================================

// CancelRun asks the backend to stop a run.
func (c *Client) CancelRun(ctx context.Context, runID string) (bool, error) {
	return c.getBool(ctx, c.endpoint("chat", "run", runID, "cancel"))
}

// RunStatus reports whether a run is still executing on the backend.
func (c *Client) RunStatus(ctx context.Context, runID string) (bool, error) {
	return c.getBool(ctx, c.endpoint("chat", "run", runID, "status"))
}

func (c *Client) getBool(ctx context.Context, target string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Accept", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return false, err
	}

	res := gjson.ParseBytes(bytes.TrimSpace(raw))
	if res.Type != gjson.True && res.Type != gjson.False {
		return false, &ClientError{Type: ErrTypeInvalidResponse, Message: "expected boolean response, got " + string(raw)}
	}
	return res.Bool(), nil
}

// =============================================================================
// FEEDBACK
// =============================================================================

// SendFeedback records a rating for an agent message. Empty Key and User
// default to the user feedback key and the configured user email.
func (c *Client) SendFeedback(ctx context.Context, fb FeedbackRequest) (*model.Feedback, error) {
	if fb.Key == "" {
		fb.Key = model.FeedbackKey
	}
	if fb.User == "" {
		fb.User = c.config.UserEmail
	}

	body, err := json.Marshal(fb)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("statistics", "feedback"), bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}

	return parseFeedback(raw)
}

// Timestamp layouts the backend has been seen to use.
var feedbackTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// parseFeedback decodes a feedback response. The backend serialises
// timestamps with or without a zone, so they are parsed by hand.
func parseFeedback(raw []byte) (*model.Feedback, error) {
	if !gjson.ValidBytes(raw) {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response"}
	}
	res := gjson.ParseBytes(raw)
	if !res.IsObject() || !res.Get("id").Exists() {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "feedback response has no id"}
	}

	fb := &model.Feedback{
		ID:         res.Get("id").String(),
		RunID:      res.Get("run_id").String(),
		Key:        res.Get("key").String(),
		Comment:    res.Get("comment").String(),
		CreatedAt:  parseFeedbackTime(res.Get("created_at").String()),
		ModifiedAt: parseFeedbackTime(res.Get("modified_at").String()),
	}
	if score := res.Get("score"); score.Type == gjson.Number {
		v := score.Float()
		fb.Score = &v
	} else if score.Type == gjson.True || score.Type == gjson.False {
		v := 0.0
		if score.Bool() {
			v = 1
		}
		fb.Score = &v
	}
	return fb, nil
}

func parseFeedbackTime(s string) time.Time {
	for _, layout := range feedbackTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// =============================================================================
// SQL EXECUTION
// =============================================================================

// ExecuteSQL runs a statement against the agent's database. A statement the
// backend refuses or fails to run is not an error: the returned result
// carries the backend's message in Error. Errors are reserved for transport
// failures and malformed responses.
func (c *Client) ExecuteSQL(ctx context.Context, statement string) (*model.QueryResult, error) {
	target := c.endpoint("sql", "execute") + "?" + url.Values{"statement": {statement}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Accept", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}

	result, err := parseExecution(raw)
	if err != nil {
		return nil, err
	}
	result.Statement = statement
	result.CreatedAt = time.Now()

	c.logger.WithFields(logrus.Fields{
		"rows":   len(result.Rows),
		"failed": result.Failed(),
	}).Debug("sql statement executed")
	return result, nil
}

// parseExecution decodes the {"data": ..., "message": ...} envelope of the
// sql endpoint. A null data object means the backend refused the statement.
func parseExecution(raw []byte) (*model.QueryResult, error) {
	if !gjson.ValidBytes(raw) {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response"}
	}
	res := gjson.ParseBytes(raw)
	if !res.IsObject() {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "sql response is not an object"}
	}

	result := &model.QueryResult{}
	data := res.Get("data")
	if !data.IsObject() {
		result.Error = res.Get("message").String()
		if result.Error == "" {
			result.Error = "statement was not executed"
		}
		return result, nil
	}

	if e := data.Get("error"); e.Exists() && e.Type != gjson.Null {
		result.Error = e.String()
	}
	if n := data.Get("affected_rows"); n.Type == gjson.Number {
		v := int(n.Int())
		result.AffectedRows = &v
	}

	seen := map[string]int{}
	var rows []map[string]string
	data.Get("raw_result").ForEach(func(_, row gjson.Result) bool {
		values := map[string]string{}
		row.ForEach(func(col, v gjson.Result) bool {
			name := col.String()
			if _, ok := seen[name]; !ok {
				seen[name] = len(result.Columns)
				result.Columns = append(result.Columns, name)
			}
			values[name] = cellString(v)
			return true
		})
		rows = append(rows, values)
		return true
	})
	for _, values := range rows {
		row := make([]string, len(result.Columns))
		for name, v := range values {
			row[seen[name]] = v
		}
		result.Rows = append(result.Rows, row)
	}
	return result, nil
}

func cellString(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return "NULL"
	case gjson.JSON:
		return v.Raw
	default:
		return v.String()
	}
}

// do sends a non-streaming request and returns the body of a 2xx response.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, &ClientError{Type: ErrTypeConnection, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		if isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to read response", Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = gjson.GetBytes(raw, "detail").String()
		}
		if msg == "" {
			msg = resp.Status
		}
		return nil, &ClientError{Type: ErrTypeHTTPStatus, Message: "agent request failed: " + msg}
	}
	return raw, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
