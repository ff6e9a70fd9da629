// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// sql.go - Running the SQL appendices of agent answers.

package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jeranaias/agentchat/internal/ingest"
	"github.com/jeranaias/agentchat/internal/model"
)

const sqlUsage = "agentchat run sql MESSAGE_ID|--last [N] [--force] [--refresh]"

// runSQL executes the Nth sql appendix of an agent message. The message is
// named by id or prefix, or with --last the newest answer with sql in the
// --conversation, current or newest conversation.
func runSQL(ctx context.Context, app *App, args Args) error {
	parser := NewArgParser(args.Raw, "force", "refresh", "last")

	var (
		msg    *model.Message
		nIndex = 2
	)
	if parser.BoolFlag("last") {
		convID, err := recentConversation(app, args.Conversation)
		if err != nil {
			return err
		}
		msg = latestSQLMessage(app.Repo.Messages.ListByConversation(convID))
		if msg == nil {
			return fmt.Errorf("%w: no answer with sql in conversation %s", ingest.ErrNoSQL, convID)
		}
		nIndex = 1
	} else {
		ref, err := parser.Require(1, "MESSAGE_ID", sqlUsage)
		if err != nil {
			return err
		}
		if msg, err = app.Repo.Messages.Resolve(ref); err != nil {
			return err
		}
	}

	index, err := parseSQLIndex(parser.Positional(nIndex))
	if err != nil {
		return err
	}

	res, err := app.Engine.RunSQL(ctx, ingest.SQLRequest{
		MessageID: msg.ID,
		Index:     index,
		Force:     parser.BoolFlag("force"),
		Refresh:   parser.BoolFlag("refresh"),
	})
	if err != nil {
		if errors.Is(err, ingest.ErrUnsafeStatement) {
			return NewValidationErrorWithExample("statement", "",
				"is not a SELECT or WITH query; it may change data", "agentchat run sql "+msg.ID+" "+strconv.Itoa(max(index, 1))+" --force")
		}
		return err
	}
	return printSQLResult(app, res)
}

func printSQLResult(app *App, res *ingest.SQLResult) error {
	q := res.Query
	if app.JSON {
		data := newSQLData(res)
		if q.Failed() {
			if err := NewJSONErrorResponseStr("run sql", q.Error, data).Fprint(app.Out); err != nil {
				return err
			}
			return &SilentError{Code: ExitAgentError}
		}
		return NewJSONResponse("run sql", data).Fprint(app.Out)
	}

	r := app.Renderer
	title := fmt.Sprintf("%s (sql)", res.Appendix.Title)
	if res.Cached {
		title += " " + RenderConditional(DimStyle, "[cached]")
	}
	r.Printf("%s\n%s\n", RenderConditional(TitleStyle, title), r.Highlight(res.Appendix.Value, "sql"))
	r.PrintQueryResult(q)
	if q.Failed() {
		return &SilentError{Code: ExitAgentError}
	}
	return nil
}

// recentConversation resolves ref, or falls back to the current and then
// the newest conversation.
func recentConversation(app *App, ref string) (string, error) {
	if ref != "" {
		conv, err := app.Repo.Conversations.Resolve(ref)
		if err != nil {
			return "", err
		}
		return conv.ID, nil
	}
	if conv, ok := app.Repo.Conversations.Current(); ok {
		return conv.ID, nil
	}
	if metas := app.Repo.Metas(); len(metas) > 0 {
		return metas[0].ID, nil
	}
	return "", fmt.Errorf("%w: no conversations yet", ingest.ErrNoSQL)
}

// latestSQLMessage returns the newest finished agent message that has a
// sql appendix.
func latestSQLMessage(msgs []*model.Message) *model.Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.IsUser() || m.Status != model.StatusDone {
			continue
		}
		if len(model.SQLAppendices(m.Events)) > 0 {
			return m
		}
	}
	return nil
}

// parseSQLIndex parses the optional 1-based appendix position.
func parseSQLIndex(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, NewValidationErrorWithExample("N", s, "must be a positive number", sqlUsage)
	}
	return n, nil
}
