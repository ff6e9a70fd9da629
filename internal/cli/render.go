// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render.go - Terminal rendering of conversations and messages.

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2/formatters"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/agentchat/internal/config"
	"github.com/jeranaias/agentchat/internal/model"
	"github.com/jeranaias/agentchat/internal/util"
)

// =============================================================================
// RENDERER
// =============================================================================

// Renderer formats messages for one output stream. Markdown and syntax
// highlighting are used only when that stream is a terminal.
type Renderer struct {
	w     io.Writer
	width int
	color bool
	dark  bool
	md    *glamour.TermRenderer

	// Queries, when set, supplies cached results shown under sql appendices.
	Queries QueryLookup
}

// QueryLookup finds the cached result of a statement run for a message.
type QueryLookup interface {
	Get(conversationID, messageID, statement string) (*model.QueryResult, bool)
}

// maxTableRows and maxCellWidth bound how much of a query result is printed.
const (
	maxTableRows = 20
	maxCellWidth = 30
)

// NewRenderer creates a renderer for w following the ui config.
func NewRenderer(w io.Writer, cfg *config.Config, noMarkdown bool) *Renderer {
	tty := isTerminalWriter(w)
	r := &Renderer{
		w:     w,
		width: DefaultTerminalWidth,
		color: tty && ColorsEnabled(),
		dark:  true,
	}
	if !tty {
		return r
	}

	r.width = GetTerminalWidth()
	switch model.Theme(cfg.UI.Theme) {
	case model.ThemeLight:
		r.dark = false
	case model.ThemeDark:
		r.dark = true
	default:
		r.dark = HasDarkBackground()
	}

	if cfg.UI.Markdown && !noMarkdown {
		style := "dark"
		if !r.dark {
			style = "light"
		}
		md, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(r.width-4),
		)
		if err == nil {
			r.md = md
		}
	}
	return r
}

// NewPlainRenderer creates a renderer without colors or markdown.
func NewPlainRenderer(w io.Writer, width int) *Renderer {
	if width <= 0 {
		width = DefaultTerminalWidth
	}
	return &Renderer{w: w, width: width, dark: true}
}

// Width returns the output width in columns.
func (r *Renderer) Width() int {
	return r.width
}

func (r *Renderer) style(s interface{ Render(...string) string }, text string) string {
	if !r.color {
		return text
	}
	return s.Render(text)
}

// Printf writes formatted text to the output.
func (r *Renderer) Printf(format string, args ...any) {
	fmt.Fprintf(r.w, format, args...)
}

// =============================================================================
// MESSAGES
// =============================================================================

// PrintMessage writes one rendered message.
func (r *Renderer) PrintMessage(msg *model.Message) {
	fmt.Fprint(r.w, r.RenderMessage(msg))
}

// RenderMessage formats a user or agent message.
func (r *Renderer) RenderMessage(msg *model.Message) string {
	if msg.IsUser() {
		return r.style(UserStyle, model.RoleUser.DisplayName()+":") + " " + msg.Content + "\n"
	}
	return r.renderAgent(msg)
}

func (r *Renderer) renderAgent(msg *model.Message) string {
	var sb strings.Builder

	sb.WriteString(r.style(AgentStyle, model.RoleAgent.DisplayName()+":"))
	if msg.Status != model.StatusDone {
		sb.WriteString(" " + r.badge(msg.Status))
	}
	sb.WriteString("\n")

	for _, ev := range msg.Events {
		r.renderEvent(&sb, ev)
	}

	if msg.Content != "" {
		switch msg.Status {
		case model.StatusFailed:
			sb.WriteString(r.style(ErrorStyle, msg.Content) + "\n")
		case model.StatusDone:
			r.renderLLM(&sb, msg.Content)
		default:
			// Unflushed text of a cancelled or running message
			sb.WriteString(msg.Content + "\n")
		}
	}

	for _, app := range model.ExtractAppendices(msg.Events) {
		sb.WriteString(r.style(TitleStyle, fmt.Sprintf("%s (%s)", app.Title, app.Language)) + "\n")
		sb.WriteString(r.Highlight(app.Value, app.Language))
		if !strings.HasSuffix(app.Value, "\n") {
			sb.WriteString("\n")
		}
		if app.Language == "sql" && r.Queries != nil {
			if q, ok := r.Queries.Get(msg.ConversationID, msg.ID, app.Value); ok {
				sb.WriteString(r.RenderQueryResult(q))
			}
		}
	}

	if summary := r.toolSummary(msg.Events); summary != "" {
		sb.WriteString(r.style(DimStyle, summary) + "\n")
	}
	if fb := msg.Feedback; fb != nil {
		verdict := "negative"
		if fb.Positive() {
			verdict = "positive"
		}
		sb.WriteString(r.style(DimStyle, "feedback: "+verdict) + "\n")
	}
	return sb.String()
}

func (r *Renderer) badge(status model.Status) string {
	if r.color {
		return RenderStatus(status)
	}
	return "[" + string(status) + "]"
}

func (r *Renderer) renderEvent(sb *strings.Builder, ev model.MessageEvent) {
	switch ev.Kind().Kind {
	case model.DataLLM:
		r.renderLLM(sb, ev.Data)
	case model.DataAction:
		sb.WriteString(r.style(DimStyle, "  "+r.ActionLine(ev)) + "\n")
	case model.DataText:
		sb.WriteString(ev.Data + "\n")
	case model.DataAppendix, model.DataSignal:
		// Appendices are listed after the answer; signals are control only
	default:
		line := util.TruncateWidth(util.FirstLine(ev.Data), r.width-len(ev.DataType)-6)
		sb.WriteString(r.style(DimStyle, fmt.Sprintf("  [%s] %s", ev.DataType, line)) + "\n")
	}
}

// renderLLM splits agent text into reasoning and answer.
func (r *Renderer) renderLLM(sb *strings.Builder, text string) {
	seg := model.ExtractSegments(text)
	if seg.Thought != "" {
		sb.WriteString(r.style(ThoughtStyle, "Thought: "+strings.TrimSpace(seg.Thought)) + "\n")
	}
	if seg.FinalAnswer != "" {
		sb.WriteString(r.Markdown(seg.FinalAnswer))
	}
}

// ActionLine describes a tool call in one line.
func (r *Renderer) ActionLine(ev model.MessageEvent) string {
	label := "action"
	if tool := ev.Metadata[model.MetaTool]; tool != "" {
		label = tool
	}
	if step, ok := ev.Step(); ok {
		label = fmt.Sprintf("%d. %s", step, label)
	}
	line := util.FirstLine(ev.Data)
	return "▸ " + label + ": " + util.TruncateWidth(line, r.width-util.StringWidth(label)-8)
}

func (r *Renderer) toolSummary(events []model.MessageEvent) string {
	groups := model.GroupToolEvents(events)
	if len(groups.Tools) == 0 {
		return ""
	}
	parts := make([]string, 0, len(groups.Tools))
	for _, tool := range groups.Tools {
		calls := 0
		for _, ev := range groups.ByTool[tool] {
			if ev.Kind().Kind == model.DataAction {
				calls++
			}
		}
		if calls > 0 {
			parts = append(parts, fmt.Sprintf("%s ×%d", tool, calls))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "tools: " + strings.Join(parts, ", ")
}

// =============================================================================
// MARKDOWN AND CODE
// =============================================================================

// Markdown renders markdown when enabled, plain text otherwise. The result
// ends with a newline.
func (r *Renderer) Markdown(text string) string {
	text = strings.TrimSpace(text)
	if r.md != nil {
		if out, err := r.md.Render(text); err == nil {
			return out
		}
	}
	return WrapText(text, r.width) + "\n"
}

// Highlight syntax-highlights an appendix block when colors are enabled.
func (r *Renderer) Highlight(code, lang string) string {
	if !r.color {
		return code
	}

	lexer := model.Lexer(lang)

	styleName := "monokai"
	if !r.dark {
		styleName = "github"
	}
	style := chromaStyles.Get(styleName)
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// PrintConversationList writes one line per conversation, newest first.
// current marks the current conversation.
func (r *Renderer) PrintConversationList(metas []model.ConversationMeta, current string) {
	if len(metas) == 0 {
		fmt.Fprintln(r.w, r.style(DimStyle, "No conversations yet."))
		return
	}

	const idWidth, titleWidth, countWidth = 8, 24, 5
	previewWidth := r.width - idWidth - titleWidth - countWidth - 10
	if previewWidth < 10 {
		previewWidth = 10
	}

	for _, m := range metas {
		mark := " "
		if m.ID == current {
			mark = "*"
		}
		id := m.ID
		if len(id) > idWidth {
			id = id[:idWidth]
		}
		title := util.PadRight(util.TruncateWidth(m.Title, titleWidth), titleWidth)
		count := fmt.Sprintf("%*d", countWidth, m.MessageCount)
		preview := util.TruncateWidth(m.Preview, previewWidth)
		if m.Loading {
			preview = r.badge(model.StatusLoading) + " " + preview
		}
		fmt.Fprintf(r.w, "%s %s  %s %s  %s\n", mark, r.style(TitleStyle, id), title, count, r.style(DimStyle, preview))
	}
}

// PrintConversation writes a conversation header and its messages in
// arrival order.
func (r *Renderer) PrintConversation(conv *model.Conversation, msgs []*model.Message) {
	fmt.Fprintln(r.w, r.style(TitleStyle, conv.Title))
	fmt.Fprintf(r.w, "%s%s\n", RenderLabel("id"), conv.ID)
	fmt.Fprintf(r.w, "%s%s\n", RenderLabel("agent"), conv.AgentID)
	fmt.Fprintf(r.w, "%s%s\n", RenderLabel("created"), conv.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintln(r.w, RenderSeparator(min(r.width, 70)))

	for _, msg := range msgs {
		r.PrintMessage(msg)
		if !msg.IsUser() {
			fmt.Fprintln(r.w, r.style(DimStyle, "message "+msg.ID))
		}
		fmt.Fprintln(r.w)
	}
}

// =============================================================================
// QUERY RESULTS
// =============================================================================

// PrintQueryResult writes a query result.
func (r *Renderer) PrintQueryResult(q *model.QueryResult) {
	fmt.Fprint(r.w, r.RenderQueryResult(q))
}

// RenderQueryResult formats a query result as an aligned table. Refused
// statements and statements without rows print their summary instead.
func (r *Renderer) RenderQueryResult(q *model.QueryResult) string {
	if q.Failed() {
		return r.style(ErrorStyle, q.Summary()) + "\n"
	}
	if len(q.Columns) == 0 {
		if summary := q.Summary(); summary != "" {
			return r.style(DimStyle, summary) + "\n"
		}
		return r.style(DimStyle, "(no rows)") + "\n"
	}

	shown := q.Rows
	if len(shown) > maxTableRows {
		shown = shown[:maxTableRows]
	}
	widths := make([]int, len(q.Columns))
	for i, col := range q.Columns {
		widths[i] = min(util.StringWidth(col), maxCellWidth)
	}
	for _, row := range shown {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], min(util.StringWidth(cell), maxCellWidth))
			}
		}
	}

	line := func(cells []string) string {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = util.CollapseSpace(cells[i])
			}
			parts[i] = util.PadRight(util.TruncateWidth(cell, widths[i]), widths[i])
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	var sb strings.Builder
	sb.WriteString(r.style(TitleStyle, line(q.Columns)) + "\n")
	for _, row := range shown {
		sb.WriteString(line(row) + "\n")
	}
	count := fmt.Sprintf("(%d rows)", len(q.Rows))
	if len(q.Rows) == 1 {
		count = "(1 row)"
	}
	if len(q.Rows) > len(shown) {
		count = fmt.Sprintf("(%d rows, first %d shown)", len(q.Rows), len(shown))
	}
	sb.WriteString(r.style(DimStyle, count) + "\n")
	return sb.String()
}
