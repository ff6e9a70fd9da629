// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// conversations.go - Stored conversation management commands.

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jeranaias/agentchat/internal/export"
	"github.com/jeranaias/agentchat/internal/storage"
)

const conversationsUsage = "agentchat conversations list|show ID|rename ID TITLE|delete ID|clear [ID]|export ID [--format md|json] [--output DIR]"

// HandleConversations dispatches the conversations subcommands.
func HandleConversations(ctx context.Context, app *App, args Args) error {
	parser := NewArgParser(args.Raw)

	switch args.Subcommand {
	case "list", "ls":
		return conversationsList(app)
	case "show":
		return conversationsShow(app, parser)
	case "rename":
		return conversationsRename(ctx, app, parser)
	case "delete", "rm":
		return conversationsDelete(ctx, app, parser)
	case "clear":
		return conversationsClear(ctx, app, parser)
	case "export":
		return conversationsExport(app, parser)
	default:
		return NewValidationErrorWithExample("subcommand", args.Subcommand, "unknown conversations subcommand", conversationsUsage)
	}
}

func conversationsList(app *App) error {
	metas := app.Repo.Metas()
	current := ""
	if conv, ok := app.Repo.Conversations.Current(); ok {
		current = conv.ID
	}

	if app.JSON {
		rows := make([]ConversationData, 0, len(metas))
		for _, m := range metas {
			rows = append(rows, ConversationData{
				ID:           m.ID,
				Title:        m.Title,
				AgentID:      m.AgentID,
				CreatedAt:    m.CreatedAt,
				MessageCount: m.MessageCount,
				Loading:      m.Loading,
				Current:      m.ID == current,
				Preview:      m.Preview,
			})
		}
		return NewJSONResponse("conversations list", rows).Fprint(app.Out)
	}

	app.Renderer.PrintConversationList(metas, current)
	return nil
}

func conversationsShow(app *App, parser *ArgParser) error {
	ref, err := parser.Require(1, "ID", "agentchat conversations show ID")
	if err != nil {
		return err
	}
	conv, err := app.Repo.Conversations.Resolve(ref)
	if err != nil {
		return err
	}
	msgs := app.Repo.Messages.ListByConversation(conv.ID)

	if app.JSON {
		snap, err := app.Repo.Snapshot(conv.ID)
		if err != nil {
			return err
		}
		return NewJSONResponse("conversations show", snap).Fprint(app.Out)
	}

	app.Renderer.PrintConversation(conv, msgs)
	return nil
}

func conversationsRename(ctx context.Context, app *App, parser *ArgParser) error {
	ref, err := parser.Require(1, "ID", "agentchat conversations rename ID TITLE")
	if err != nil {
		return err
	}
	title := JoinPositionalArgs(parser, 2)
	if title == "" {
		return ErrMissingArgument("TITLE", "agentchat conversations rename ID TITLE")
	}

	conv, err := app.Repo.Conversations.Resolve(ref)
	if err != nil {
		return err
	}
	if err := app.Repo.Conversations.Update(conv.ID, storage.ConversationPatch{Title: &title}); err != nil {
		return err
	}
	if err := app.Repo.SaveConversation(ctx, conv.ID); err != nil {
		return NewCommandError("conversations", "rename", "could not save", err)
	}

	return app.done("conversations rename", map[string]string{"id": conv.ID, "title": title},
		"Renamed %s to %q", conv.ID, title)
}

func conversationsDelete(ctx context.Context, app *App, parser *ArgParser) error {
	ref, err := parser.Require(1, "ID", "agentchat conversations delete ID")
	if err != nil {
		return err
	}
	conv, err := app.Repo.Conversations.Resolve(ref)
	if err != nil {
		return err
	}
	if err := app.Repo.DeleteConversation(ctx, conv.ID); err != nil {
		return NewCommandError("conversations", "delete", "could not delete", err)
	}
	return app.done("conversations delete", map[string]string{"id": conv.ID}, "Deleted %s", conv.ID)
}

// conversationsClear empties one conversation, or deletes all of them when
// no id is given.
func conversationsClear(ctx context.Context, app *App, parser *ArgParser) error {
	ref := parser.Positional(1)
	if ref == "" {
		n := len(app.Repo.Conversations.List())
		if err := app.Repo.ClearAll(ctx); err != nil {
			return NewCommandError("conversations", "clear", "could not delete all conversations", err)
		}
		return app.done("conversations clear", map[string]int{"deleted": n}, "Deleted %d conversation(s)", n)
	}

	conv, err := app.Repo.Conversations.Resolve(ref)
	if err != nil {
		return err
	}
	n, err := app.Repo.ClearConversation(ctx, conv.ID)
	if err != nil {
		return NewCommandError("conversations", "clear", "could not save", err)
	}
	return app.done("conversations clear", map[string]any{"id": conv.ID, "removed": n},
		"Removed %d message(s) from %s", n, conv.ID)
}

// conversationsExport renders a conversation as Markdown or JSON. Without
// --output the document goes to stdout.
func conversationsExport(app *App, parser *ArgParser) error {
	const usage = "agentchat conversations export ID [--format md|json] [--output DIR]"
	ref, err := parser.Require(1, "ID", usage)
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(parser.Flag("format"))
	if err != nil {
		return NewValidationErrorWithExample("format", parser.Flag("format"), err.Error(), usage)
	}

	conv, err := app.Repo.Conversations.Resolve(ref)
	if err != nil {
		return err
	}
	snap, err := app.Repo.Snapshot(conv.ID)
	if err != nil {
		return err
	}
	exporter, err := export.New(format, export.DefaultOptions())
	if err != nil {
		return err
	}

	if dir := parser.Flag("output"); dir != "" {
		path, err := export.ExportToFile(snap, exporter, dir, time.Now())
		if err != nil {
			return NewCommandError("conversations", "export", "could not write export", err)
		}
		return app.done("conversations export",
			map[string]string{"id": conv.ID, "format": string(format), "path": path},
			"Exported %s to %s", conv.ID, path)
	}

	content, err := exporter.Export(snap)
	if err != nil {
		return NewCommandError("conversations", "export", "could not render conversation", err)
	}
	if app.JSON {
		return NewJSONResponse("conversations export",
			map[string]string{"id": conv.ID, "format": string(format), "content": string(content)}).Fprint(app.Out)
	}
	_, err = app.Out.Write(content)
	return err
}

// done reports a successful mutation as JSON data or a success line.
func (a *App) done(command string, data any, format string, args ...any) error {
	if a.JSON {
		return NewJSONResponse(command, data).Fprint(a.Out)
	}
	fmt.Fprintln(a.Out, RenderConditional(SuccessStyle, fmt.Sprintf(format, args...)))
	return nil
}
