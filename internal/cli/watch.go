// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// watch.go - Live full-screen view of a conversation.
//
// The view follows the message store, so answers streamed by this process
// and conversations saved by other agentchat processes both show up as they
// change. Without a conversation argument it follows whichever conversation
// changed last.

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/agentchat/internal/model"
	"github.com/jeranaias/agentchat/internal/storage"
	"github.com/jeranaias/agentchat/internal/util"
)

// watchChrome is the number of lines used by the header and footer.
const watchChrome = 2

// HandleWatch shows a conversation and keeps it up to date until q is
// pressed.
func HandleWatch(ctx context.Context, app *App, args Args) error {
	if app.JSON {
		return NewValidationErrorWithExample("json", "", "watch is interactive and has no JSON output", "agentchat --json conversations show ID")
	}
	if !IsTTY() || !isTerminalWriter(app.Out) {
		return NewValidationErrorWithExample("terminal", "", "watch needs an interactive terminal", "agentchat conversations show ID")
	}

	ref := args.Conversation
	if ref == "" && len(args.Raw) > 0 {
		ref = args.Raw[0]
	}
	convID := ""
	if ref != "" {
		conv, err := app.Repo.Conversations.Resolve(ref)
		if err != nil {
			return err
		}
		convID = conv.ID
	} else if metas := app.Repo.Metas(); len(metas) > 0 {
		convID = metas[0].ID
	}

	app.WatchStorage()

	m := newWatchModel(app.Repo, app.Renderer.RenderMessage, convID, ref == "")
	defer m.feed.stop()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx), tea.WithOutput(app.Out))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}

// =============================================================================
// STORE FEED
// =============================================================================

// changeMsg tells the view that a message changed.
type changeMsg storage.Change

// watchFeed forwards store changes to the program. Changes are dropped
// when the buffer is full; the view re-reads the whole conversation anyway.
type watchFeed struct {
	changes     chan storage.Change
	done        chan struct{}
	unsubscribe func()
}

func newWatchFeed(store *storage.MessageStore) *watchFeed {
	f := &watchFeed{
		changes: make(chan storage.Change, 64),
		done:    make(chan struct{}),
	}
	f.unsubscribe = store.Subscribe(func(c storage.Change) {
		select {
		case f.changes <- c:
		default:
		}
	})
	return f
}

// next waits for the following change.
func (f *watchFeed) next() tea.Cmd {
	return func() tea.Msg {
		select {
		case c := <-f.changes:
			return changeMsg(c)
		case <-f.done:
			return nil
		}
	}
}

func (f *watchFeed) stop() {
	f.unsubscribe()
	close(f.done)
}

// =============================================================================
// MODEL
// =============================================================================

type watchModel struct {
	repo   *storage.Repository
	render func(*model.Message) string
	feed   *watchFeed

	convID string
	follow bool

	viewport viewport.Model
	spinner  spinner.Model
	ready    bool

	title    string
	messages int
	loading  bool
}

func newWatchModel(repo *storage.Repository, render func(*model.Message) string, convID string, follow bool) watchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    spinner.Line.FPS,
	}
	sp.Style = ThoughtStyle

	m := watchModel{
		repo:     repo,
		render:   render,
		feed:     newWatchFeed(repo.Messages),
		convID:   convID,
		follow:   follow,
		viewport: viewport.New(DefaultTerminalWidth, 20),
		spinner:  sp,
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.feed.next())
}

// Update implements tea.Model.
func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-watchChrome, 1)
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "g", "home":
			m.viewport.GotoTop()
			return m, nil
		case "G", "end":
			m.viewport.GotoBottom()
			return m, nil
		}

	case changeMsg:
		if m.follow && msg.ConversationID != m.convID && msg.Kind != storage.ChangeRemoved {
			m.convID = msg.ConversationID
			m.viewport.SetYOffset(0)
		}
		if msg.ConversationID == m.convID {
			m.refresh()
		}
		return m, m.feed.next()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// refresh re-reads the conversation. The view stays pinned to the bottom
// unless the user scrolled up.
func (m *watchModel) refresh() {
	m.title = ""
	m.messages = 0
	m.loading = false
	if m.convID == "" {
		m.viewport.SetContent("")
		return
	}

	conv, err := m.repo.Conversations.Get(m.convID)
	if err != nil {
		m.viewport.SetContent(DimStyle.Render("The conversation was deleted."))
		return
	}
	m.title = conv.Title

	var sb strings.Builder
	for i, msg := range m.repo.Messages.ListByConversation(m.convID) {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(m.render(msg))
		if msg.IsLoading() {
			m.loading = true
		}
		m.messages++
	}

	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(sb.String())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// View implements tea.Model.
func (m watchModel) View() string {
	if !m.ready {
		return "Loading...\n"
	}

	title := m.title
	switch {
	case m.convID == "":
		title = "Waiting for a conversation"
	case title == "":
		title = util.TruncateRunes(m.convID, 12)
	}

	status := DimStyle.Render(fmt.Sprintf("%d messages", m.messages))
	if m.messages == 1 {
		status = DimStyle.Render("1 message")
	}
	if m.loading {
		status = m.spinner.View() + " " + ThoughtStyle.Render("answering")
	}

	header := TitleStyle.Render(title) + "  " + status
	footer := DimStyle.Render(fmt.Sprintf("q quit  up/down scroll  %3.f%%", m.viewport.ScrollPercent()*100))
	return header + "\n" + m.viewport.View() + "\n" + footer
}
