// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ingest turns agent stream records into message state.
package ingest

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/agentchat/internal/agent"
	"github.com/jeranaias/agentchat/internal/model"
	"github.com/jeranaias/agentchat/internal/storage"
)

// LostConnectionMessage replaces the content of a message whose stream
// failed before anything was received.
const LostConnectionMessage = "The connection to the agent was lost."

// cancelRunTimeout bounds the out-of-band run cancellation call.
const cancelRunTimeout = 10 * time.Second

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrConversationBusy is returned by Send while the conversation still
	// has a message in flight.
	ErrConversationBusy = storage.ErrConversationBusy

	// ErrEmptyPrompt is returned by Send for a blank prompt.
	ErrEmptyPrompt = errors.New("ingest: empty prompt")
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Streamer is the agent backend as seen by the engine.
// *agent.Client satisfies it.
type Streamer interface {
	Open(ctx context.Context, req agent.ChatRequest) (*agent.RecordStream, error)
	CancelRun(ctx context.Context, runID string) (bool, error)
	SendFeedback(ctx context.Context, req agent.FeedbackRequest) (*model.Feedback, error)
	ExecuteSQL(ctx context.Context, statement string) (*model.QueryResult, error)
}

// Config holds engine options. Zero values are usable.
type Config struct {
	// UserID is the creator id of user messages and the feedback user.
	UserID string

	// AgentID is used for conversations Send has to create.
	AgentID string

	// PersistInterval is the minimum time between saves of one conversation
	// while a stream is running. Zero saves after every record.
	PersistInterval time.Duration

	// Now stamps new messages (default: time.Now)
	Now func() time.Time

	Logger logrus.FieldLogger
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine drives agent turns: it admits a prompt, streams the agent's answer
// into the message store and handles cancellation and feedback.
type Engine struct {
	messages      *storage.MessageStore
	conversations *storage.ConversationStore
	settings      *storage.SettingsStore
	queries       *storage.QueryStore
	client        Streamer

	cancels *cancelRegistry
	persist *persister
	cfg     Config
	logger  logrus.FieldLogger

	// admitMu makes the busy check and the message inserts of Send atomic.
	admitMu sync.Mutex

	// bg tracks fire-and-forget run cancellations.
	bg sync.WaitGroup
}

// NewEngine creates an engine over the repository's stores.
func NewEngine(repo *storage.Repository, client Streamer, cfg Config) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.AgentID == "" {
		cfg.AgentID = model.DefaultAgentID
	}

	return &Engine{
		messages:      repo.Messages,
		conversations: repo.Conversations,
		settings:      repo.Settings,
		queries:       repo.Queries,
		client:        client,
		cancels:       newCancelRegistry(),
		persist:       newPersister(repo, cfg.PersistInterval, cfg.Logger),
		cfg:           cfg,
		logger:        cfg.Logger,
	}
}

// SendRequest is one user turn.
type SendRequest struct {
	// ConversationID selects the conversation. Empty or unknown ids create
	// a new conversation.
	ConversationID string
	Prompt         string
	// UserID overrides Config.UserID for this turn.
	UserID string
}

// Result is the outcome of Send.
type Result struct {
	Conversation *model.Conversation
	User         *model.Message
	Agent        *model.Message
	Stats        agent.StreamStats
	// Created reports whether Send created the conversation.
	Created bool
}

// Send runs one agent turn to completion and returns the final state of the
// agent message. Transport and stream failures are recorded on the message
// as FAILED rather than returned; the error is only for local problems such
// as a busy conversation.
func (e *Engine) Send(ctx context.Context, req SendRequest) (*Result, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	userID := req.UserID
	if userID == "" {
		userID = e.cfg.UserID
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	res, err := e.admit(req.ConversationID, userID, prompt, cancel)
	if err != nil {
		return nil, err
	}
	conv, agentMsg := res.Conversation, res.Agent
	defer e.cancels.remove(agentMsg.ID)

	log := e.logger.WithFields(logrus.Fields{
		"conversation_id": conv.ID,
		"message_id":      agentMsg.ID,
	})

	settings := e.settings.Get().Wire()
	chatReq := agent.ChatRequest{
		Messages:       BuildHistory(e.messages.ListByConversation(conv.ID), agentMsg.ID),
		ConversationID: conv.ID,
		NewMessageID:   agentMsg.ID,
		Settings:       &settings,
	}

	e.persist.touch(ctx, conv.ID)

	stream, err := e.client.Open(streamCtx, chatReq)
	if err != nil {
		text := agent.GenericFailureMessage
		var te *agent.TransportError
		if errors.As(err, &te) {
			text = te.UserMessage()
		}
		log.WithError(err).Warn("Agent request failed")
		e.messages.Update(agentMsg.ID, storage.MessagePatch{
			Content: storage.StringPtr(text),
			Status:  storage.StatusPtr(model.StatusFailed),
		})
		return e.finish(ctx, res, agent.StreamStats{}), nil
	}
	defer stream.Close()

	if !e.cancels.attach(agentMsg.ID, stream) {
		log.Debug("Message cancelled while the request was opening")
	}

	stats := e.consume(ctx, conv.ID, agentMsg.ID, stream, log)
	return e.finish(ctx, res, stats), nil
}

// admit validates the turn and inserts the user message and the LOADING
// agent placeholder. The placeholder is registered with cancel before it
// becomes visible, so a Cancel can never miss it.
func (e *Engine) admit(conversationID, userID, prompt string, cancel context.CancelFunc) (*Result, error) {
	e.admitMu.Lock()
	defer e.admitMu.Unlock()

	res := &Result{}
	conv, err := e.conversations.Get(conversationID)
	if err != nil {
		conv = model.NewConversation(e.cfg.AgentID, e.cfg.Now())
		if conversationID != "" {
			conv.ID = conversationID
		}
		if err := e.conversations.Put(conv); err != nil {
			return nil, err
		}
		res.Created = true
	}
	if err := e.conversations.SetCurrent(conv.ID); err != nil {
		return nil, err
	}

	if _, busy := e.messages.LoadingMessage(conv.ID); busy {
		return nil, ErrConversationBusy
	}

	now := e.cfg.Now()
	user := model.NewUserMessage(conv.ID, userID, prompt, now)
	agentMsg := model.NewAgentMessage(conv.ID, conv.AgentID, now)
	if err := e.messages.Add(user); err != nil {
		return nil, err
	}
	e.cancels.register(agentMsg.ID, cancel)
	if err := e.messages.Add(agentMsg); err != nil {
		e.cancels.remove(agentMsg.ID)
		return nil, err
	}

	res.Conversation = conv
	res.User = user
	res.Agent = agentMsg
	return res, nil
}

// consume applies records in arrival order until the stream ends.
func (e *Engine) consume(ctx context.Context, conversationID, messageID string, stream *agent.RecordStream, log logrus.FieldLogger) agent.StreamStats {
	acc := &accumulator{store: e.messages, messageID: messageID}

	for {
		rec, err := stream.Next()
		if err == io.EOF {
			e.messages.Update(messageID, storage.MessagePatch{Status: storage.StatusPtr(model.StatusDone)})
			log.WithField("records", stream.Stats().Records).Debug("Agent stream completed")
			return stream.Stats()
		}
		if err != nil {
			e.fail(messageID, err, log)
			return stream.Stats()
		}

		status, ok := e.messages.Status(messageID)
		if !ok {
			// Cleared by the user; nothing left to update.
			stream.Close()
			continue
		}
		if status != model.StatusLoading {
			continue
		}
		if acc.apply(rec) {
			e.persist.touch(ctx, conversationID)
		}
	}
}

// fail records a stream failure, keeping whatever was already received.
func (e *Engine) fail(messageID string, err error, log logrus.FieldLogger) {
	msg, ok := e.messages.Get(messageID)
	if !ok || msg.Status != model.StatusLoading {
		return
	}

	patch := storage.MessagePatch{Status: storage.StatusPtr(model.StatusFailed)}
	if msg.Content == "" && len(msg.Events) == 0 {
		patch.Content = storage.StringPtr(LostConnectionMessage)
	}
	e.messages.Update(messageID, patch)
	log.WithError(err).Warn("Agent stream failed")
}

func (e *Engine) finish(ctx context.Context, res *Result, stats agent.StreamStats) *Result {
	e.persist.flush(ctx, res.Conversation.ID)
	if msg, ok := e.messages.Get(res.Agent.ID); ok {
		res.Agent = msg
	}
	res.Stats = stats
	return res
}

// =============================================================================
// CANCELLATION
// =============================================================================

// Cancel stops an in-flight agent message. A message that already reached a
// terminal state is left alone.
func (e *Engine) Cancel(ctx context.Context, messageID string) error {
	msg, ok := e.messages.Get(messageID)
	if !ok {
		return storage.ErrMessageNotFound
	}
	if msg.Status != model.StatusLoading {
		return nil
	}

	e.messages.Update(messageID, storage.MessagePatch{Status: storage.StatusPtr(model.StatusCancelled)})
	if status, _ := e.messages.Status(messageID); status != model.StatusCancelled {
		// The stream finished first.
		return nil
	}
	e.cancels.cancel(messageID)

	// Re-read: START may have arrived after the first read.
	if latest, ok := e.messages.Get(messageID); ok {
		msg = latest
	}
	log := e.logger.WithFields(logrus.Fields{
		"conversation_id": msg.ConversationID,
		"message_id":      msg.ID,
		"run_id":          msg.RunID,
	})
	log.Debug("Message cancelled")

	if msg.RunID != "" {
		e.bg.Add(1)
		go func() {
			defer e.bg.Done()
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelRunTimeout)
			defer cancel()
			ok, err := e.client.CancelRun(cctx, msg.RunID)
			if err != nil {
				log.WithError(err).Info("Backend run cancel failed")
				return
			}
			log.WithField("cancelled", ok).Info("Backend run cancel sent")
		}()
	}

	e.persist.flush(ctx, msg.ConversationID)
	return nil
}

// CancelConversation cancels the conversation's in-flight message and
// reports whether there was one.
func (e *Engine) CancelConversation(ctx context.Context, conversationID string) (bool, error) {
	msg, ok := e.messages.LoadingMessage(conversationID)
	if !ok {
		return false, nil
	}
	if err := e.Cancel(ctx, msg.ID); err != nil {
		return false, err
	}
	return true, nil
}

// =============================================================================
// FEEDBACK
// =============================================================================

// Feedback sends a score for an agent message and attaches the stored result.
// A previous score on the same message is replaced.
func (e *Engine) Feedback(ctx context.Context, messageID string, score int, comment string) (*model.Feedback, error) {
	msg, ok := e.messages.Get(messageID)
	if !ok {
		return nil, storage.ErrMessageNotFound
	}

	settings := e.settings.Get().Wire()
	req := agent.FeedbackRequest{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		User:           e.cfg.UserID,
		Score:          score,
		Comment:        comment,
		Key:            model.FeedbackKey,
		Settings:       &settings,
	}
	if msg.Feedback != nil {
		req.PreviousID = msg.Feedback.ID
	}

	fb, err := e.client.SendFeedback(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := e.messages.AttachFeedback(msg.ID, fb); err != nil {
		return nil, err
	}
	e.persist.flush(ctx, msg.ConversationID)
	return fb, nil
}

// Wait blocks until background run cancellations have finished.
func (e *Engine) Wait() {
	e.bg.Wait()
}

// Active returns the number of messages currently streaming.
func (e *Engine) Active() int {
	return e.cancels.active()
}
