// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/agentchat/internal/model"
	"github.com/jeranaias/agentchat/internal/storage"
	"github.com/jeranaias/agentchat/internal/util"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports conversations to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a conversation to Markdown format. Agent messages show
// the reasoning as a quote, tool calls as a list and appendices as fenced
// code blocks.
func (e *MarkdownExporter) Export(snap *storage.Snapshot) ([]byte, error) {
	if err := validate(snap); err != nil {
		return nil, err
	}
	conv := snap.Conversation
	now := e.options.now()

	var sb strings.Builder

	// YAML frontmatter with metadata
	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(conv.Title))
		fmt.Fprintf(&sb, "conversation: %s\n", conv.ID)
		fmt.Fprintf(&sb, "agent: %s\n", escapeYAML(conv.AgentID))
		fmt.Fprintf(&sb, "date: %s\n", conv.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "messages: %d\n", len(snap.Messages))
		fmt.Fprintf(&sb, "exported: %s\n", now.Format(time.RFC3339))
		sb.WriteString("generator: agentchat\n")
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(conv.Title))

	if e.options.IncludeMetadata {
		sb.WriteString("## Session Information\n\n")
		fmt.Fprintf(&sb, "- **Agent**: %s\n", conv.AgentID)
		fmt.Fprintf(&sb, "- **Created**: %s\n", formatTimestamp(conv.CreatedAt))
		fmt.Fprintf(&sb, "- **Messages**: %d\n", len(snap.Messages))
		if conv.DatabaseName != "" {
			fmt.Fprintf(&sb, "- **Database**: %s\n", conv.DatabaseName)
		}
		sb.WriteString("\n---\n\n")
	}

	sb.WriteString("## Conversation\n\n")
	if len(snap.Messages) == 0 {
		sb.WriteString("*No messages.*\n\n")
	}

	for i, msg := range snap.Messages {
		label := msg.CreatorRole.DisplayName()
		if !msg.IsUser() && msg.Status != model.StatusDone {
			label += " (" + strings.ToLower(string(msg.Status)) + ")"
		}
		if e.options.IncludeTimestamps {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(msg.CreatedAt))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}

		if msg.IsUser() {
			sb.WriteString(strings.TrimSpace(msg.Content))
			sb.WriteString("\n\n")
		} else {
			e.writeAgent(&sb, msg)
		}

		if i < len(snap.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	sb.WriteString("\n---\n\n")
	fmt.Fprintf(&sb, "*Exported from agentchat on %s*\n", now.Format("January 2, 2006 at 3:04 PM"))

	return []byte(sb.String()), nil
}

// writeAgent writes an agent message: reasoning and answers in event order,
// then tool calls, appendices, pending content and feedback.
func (e *MarkdownExporter) writeAgent(sb *strings.Builder, msg *model.Message) {
	var actions []model.MessageEvent
	for _, ev := range msg.Events {
		switch ev.Kind().Kind {
		case model.DataLLM:
			writeSegments(sb, ev.Data)
		case model.DataText:
			sb.WriteString(strings.TrimSpace(ev.Data))
			sb.WriteString("\n\n")
		case model.DataAction:
			actions = append(actions, ev)
		}
	}

	if msg.Content != "" {
		if msg.Status == model.StatusDone {
			writeSegments(sb, msg.Content)
		} else {
			sb.WriteString(strings.TrimSpace(msg.Content))
			sb.WriteString("\n\n")
		}
	}

	if !e.options.IncludeEvents {
		return
	}

	if len(actions) > 0 {
		sb.WriteString("**Tool calls**\n\n")
		for _, ev := range model.SortByStep(actions) {
			tool := ev.Metadata[model.MetaTool]
			if tool == "" {
				tool = "action"
			}
			if step, ok := ev.Step(); ok {
				fmt.Fprintf(sb, "%d. **%s**: `%s`\n", step, tool, util.CollapseSpace(ev.Data))
			} else {
				fmt.Fprintf(sb, "- **%s**: `%s`\n", tool, util.CollapseSpace(ev.Data))
			}
		}
		sb.WriteString("\n")
	}

	for _, app := range model.ExtractAppendices(msg.Events) {
		fmt.Fprintf(sb, "**%s**\n\n```%s\n%s\n```\n\n", escapeMarkdown(app.Title), app.Language, app.Value)
	}

	if fb := msg.Feedback; fb != nil {
		verdict := "negative"
		if fb.Positive() {
			verdict = "positive"
		}
		if fb.Comment != "" {
			fmt.Fprintf(sb, "<sub>Feedback: %s (%s)</sub>\n\n", verdict, fb.Comment)
		} else {
			fmt.Fprintf(sb, "<sub>Feedback: %s</sub>\n\n", verdict)
		}
	}
}

// writeSegments writes the reasoning as a quote and the answer as is.
func writeSegments(sb *strings.Builder, text string) {
	seg := model.ExtractSegments(text)
	if seg.Thought != "" {
		for _, line := range strings.Split(strings.TrimSpace(seg.Thought), "\n") {
			sb.WriteString("> " + line + "\n")
		}
		sb.WriteString("\n")
	}
	if answer := strings.TrimSpace(seg.FinalAnswer); answer != "" {
		sb.WriteString(answer)
		sb.WriteString("\n\n")
	}
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes special Markdown characters in plain text.
func escapeMarkdown(s string) string {
	// Only characters that would break formatting in titles and headings
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}

// escapeYAML quotes a front matter value when it contains special characters.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
