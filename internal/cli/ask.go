// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - Single-shot prompt command.

package cli

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jeranaias/agentchat/internal/ingest"
	"github.com/jeranaias/agentchat/internal/model"
	"github.com/jeranaias/agentchat/internal/storage"
)

// HandleAsk sends one prompt and prints the agent's answer.
//
//	agentchat ask "how many orders shipped last week?"
//	agentchat -c 3f2a ask "and the week before?"
//	agentchat --new --json ask "list the tables"
func HandleAsk(ctx context.Context, app *App, args Args) error {
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return ErrMissingArgument("question", `agentchat ask "your question"`)
	}

	convID, err := targetConversation(app, args)
	if err != nil {
		return err
	}

	stopInterrupt := app.cancelOnInterrupt(ctx, func() string { return convID })
	stop := app.watchProgress(convID, args.Quiet)
	res, err := app.Engine.Send(ctx, ingest.SendRequest{ConversationID: convID, Prompt: query})
	stop()
	stopInterrupt()
	if err != nil {
		return err
	}

	msg := res.Agent
	if app.JSON {
		data := newAskData(res.Conversation.ID, msg, res.Stats)
		if msg.Status != model.StatusDone {
			if err := NewJSONErrorResponseStr("ask", statusError(msg), data).Fprint(app.Out); err != nil {
				return err
			}
			return &SilentError{Code: ExitAgentError}
		}
		return NewJSONResponse("ask", data).Fprint(app.Out)
	}

	app.Renderer.PrintMessage(msg)
	if res.Created && !args.Quiet {
		app.Infof("%s", RenderConditional(DimStyle, "conversation "+res.Conversation.ID))
	}
	if res.Stats.Malformed > 0 {
		app.Logger.WithField("lines", res.Stats.Malformed).Debug("Skipped malformed stream lines")
	}
	if msg.Status != model.StatusDone {
		return &SilentError{Code: ExitAgentError}
	}
	return nil
}

// targetConversation picks the conversation for a prompt: --conversation,
// then the current one, unless --new asks for a fresh id.
func targetConversation(app *App, args Args) (string, error) {
	if args.Conversation != "" {
		conv, err := app.Repo.Conversations.Resolve(args.Conversation)
		if err != nil {
			return "", err
		}
		return conv.ID, nil
	}
	if !args.New {
		if conv, ok := app.Repo.Conversations.Current(); ok {
			return conv.ID, nil
		}
	}
	return model.NewID(), nil
}

func statusError(msg *model.Message) string {
	switch msg.Status {
	case model.StatusCancelled:
		return "cancelled"
	case model.StatusLoading:
		return "interrupted"
	default:
		if msg.Content != "" {
			return msg.Content
		}
		return "agent request failed"
	}
}

// watchProgress prints tool calls of the conversation's streaming message
// to stderr as they arrive. The returned func stops watching.
func (a *App) watchProgress(conversationID string, quiet bool) func() {
	if a.JSON || quiet {
		return func() {}
	}

	var mu sync.Mutex
	printed := make(map[string]int)
	progress := NewPlainRenderer(a.Err, a.Renderer.Width())

	return a.Repo.Messages.Subscribe(func(c storage.Change) {
		if c.ConversationID != conversationID || c.Kind != storage.ChangeUpdated {
			return
		}
		msg, ok := a.Repo.Messages.Get(c.MessageID)
		if !ok || msg.IsUser() {
			return
		}

		mu.Lock()
		defer mu.Unlock()
		start := min(printed[msg.ID], len(msg.Events))
		for _, ev := range msg.Events[start:] {
			if ev.Kind().Kind == model.DataAction {
				fmt.Fprintln(a.Err, RenderConditional(DimStyle, progress.ActionLine(ev)))
			}
		}
		printed[msg.ID] = len(msg.Events)
	})
}
