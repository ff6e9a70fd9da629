// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command handler.
//
// Command: chat (default)
//
// Interactive Commands (during chat):
//
//	/help, /h               Show available commands
//	/new                    Start a new conversation
//	/list, /ls              List conversations
//	/switch ID              Continue another conversation
//	/show, /history         Print the current conversation
//	/rename TITLE           Rename the current conversation
//	/clear                  Remove the messages of the current conversation
//	/delete [ID]            Delete a conversation (default: current)
//	/cancel                 Cancel the answer in progress
//	/feedback SCORE [TEXT]  Rate the last answer (1 good, 0 bad)
//	/sql [N] [--force]      Run the Nth sql block of the last answer
//	/status, /s             Show session information
//	/quit, /q               Exit chat
//	Ctrl+C                  Cancel the answer in progress
//	Ctrl+D                  Exit chat
package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/peterh/liner"

	"github.com/jeranaias/agentchat/internal/config"
	"github.com/jeranaias/agentchat/internal/ingest"
	"github.com/jeranaias/agentchat/internal/model"
	"github.com/jeranaias/agentchat/internal/storage"
	"github.com/jeranaias/agentchat/internal/util"
)

const chatPrompt = "agentchat> "

// errQuit ends the REPL.
var errQuit = errors.New("quit")

// =============================================================================
// INPUT HISTORY
// =============================================================================

// PromptReader reads one line of user input.
type PromptReader interface {
	ReadInput(prompt string) (string, error)
}

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI with history loaded from the config dir.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line with history navigation.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history with owner-only permissions.
func (c *ChatCLI) SaveHistory() error {
	var buf bytes.Buffer
	if _, err := c.line.WriteHistory(&buf); err != nil {
		return err
	}
	return util.AtomicWriteFile(c.historyFile, buf.Bytes(), 0600)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() error {
	saveErr := c.SaveHistory()
	return errors.Join(saveErr, c.line.Close())
}

// =============================================================================
// SESSION STATE
// =============================================================================

// ChatSession holds the state of an interactive chat.
type ChatSession struct {
	app   *App
	out   io.Writer
	quiet bool

	mu             sync.Mutex
	conversationID string
}

// NewChatSession creates a session on the conversation selected by args:
// --conversation, else the current conversation unless --new is given.
func NewChatSession(app *App, args Args) (*ChatSession, error) {
	s := &ChatSession{app: app, out: app.Out, quiet: args.Quiet}
	if args.Conversation != "" || !args.New {
		id, err := targetConversation(app, args)
		if err != nil {
			return nil, err
		}
		if app.Repo.Conversations.Exists(id) {
			s.conversationID = id
		}
	}
	return s, nil
}

// ConversationID returns the conversation prompts are sent to, or "" when
// the next prompt starts a new one.
func (s *ChatSession) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

func (s *ChatSession) setConversation(id string) {
	s.mu.Lock()
	s.conversationID = id
	s.mu.Unlock()
}

// =============================================================================
// COMMAND HANDLER
// =============================================================================

// HandleChat runs the interactive REPL.
func HandleChat(ctx context.Context, app *App, args Args) error {
	if app.JSON {
		return NewValidationErrorWithExample("json", "", "chat is interactive and has no JSON output", `agentchat --json ask "question"`)
	}

	session, err := NewChatSession(app, args)
	if err != nil {
		return err
	}
	app.WatchStorage()

	input := NewChatCLI()
	defer func() {
		if err := input.Close(); err != nil {
			app.Logger.WithError(err).Debug("Failed to save chat history")
		}
	}()

	stop := app.cancelOnInterrupt(ctx, session.ConversationID)
	defer stop()

	if !args.Quiet {
		session.printWelcome()
	}
	return session.Loop(ctx, input)
}

// Loop reads and handles lines until EOF, Ctrl+C at the prompt, /quit or
// context cancellation.
func (s *ChatSession) Loop(ctx context.Context, input PromptReader) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := input.ReadInput(chatPrompt)
		if err != nil {
			// liner.ErrPromptAborted, io.EOF or a closed terminal
			fmt.Fprintln(s.out)
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") || strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			err := s.HandleSlash(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				s.printError(err)
			}
			continue
		}

		if err := s.Send(ctx, line); err != nil {
			s.printError(err)
		}
	}
}

// Send runs one prompt and prints the answer.
func (s *ChatSession) Send(ctx context.Context, prompt string) error {
	id := s.ConversationID()
	if id == "" {
		id = model.NewID()
		s.setConversation(id)
	}

	stop := s.app.watchProgress(id, s.quiet)
	res, err := s.app.Engine.Send(ctx, ingest.SendRequest{ConversationID: id, Prompt: prompt})
	stop()
	if err != nil {
		if errors.Is(err, ingest.ErrConversationBusy) {
			return fmt.Errorf("%w (use /cancel)", err)
		}
		return err
	}

	s.setConversation(res.Conversation.ID)
	s.app.Renderer.PrintMessage(res.Agent)
	fmt.Fprintln(s.out)
	return nil
}

func (s *ChatSession) printError(err error) {
	fmt.Fprintf(s.app.Err, "%s %v\n", RenderConditional(ErrorStyle, "[Error]"), err)
}

func (s *ChatSession) info(format string, args ...any) {
	fmt.Fprintln(s.out, RenderConditional(SuccessStyle, fmt.Sprintf(format, args...)))
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// HandleSlash runs one chat command. It returns errQuit to end the chat.
func (s *ChatSession) HandleSlash(ctx context.Context, line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	command := strings.ToLower(parts[0])
	rest := strings.TrimSpace(strings.TrimPrefix(line, parts[0]))

	switch command {
	case "/help", "/h", "/?", "/":
		s.printHelp()
		return nil

	case "/quit", "/q", "/exit", "exit", "quit":
		return errQuit

	case "/new", "/n":
		s.setConversation("")
		s.info("[New conversation]")
		return nil

	case "/list", "/ls":
		s.app.Renderer.PrintConversationList(s.app.Repo.Metas(), s.ConversationID())
		return nil

	case "/switch", "/sw":
		if rest == "" {
			return ErrMissingArgument("ID", "/switch ID")
		}
		conv, err := s.app.Repo.Conversations.Resolve(rest)
		if err != nil {
			return err
		}
		if err := s.app.Repo.Conversations.SetCurrent(conv.ID); err != nil {
			return err
		}
		s.setConversation(conv.ID)
		s.info("[Switched to %s: %s]", conv.ID, conv.Title)
		return nil

	case "/show", "/history":
		conv, err := s.current()
		if err != nil {
			return err
		}
		s.app.Renderer.PrintConversation(conv, s.app.Repo.Messages.ListByConversation(conv.ID))
		return nil

	case "/rename":
		if rest == "" {
			return ErrMissingArgument("TITLE", "/rename TITLE")
		}
		conv, err := s.current()
		if err != nil {
			return err
		}
		if err := s.app.Repo.Conversations.Update(conv.ID, storage.ConversationPatch{Title: &rest}); err != nil {
			return err
		}
		if err := s.app.Repo.SaveConversation(ctx, conv.ID); err != nil {
			return err
		}
		s.info("[Renamed to %q]", rest)
		return nil

	case "/clear", "/c":
		conv, err := s.current()
		if err != nil {
			return err
		}
		n, err := s.app.Repo.ClearConversation(ctx, conv.ID)
		if err != nil {
			return err
		}
		s.info("[Removed %d message(s)]", n)
		return nil

	case "/delete":
		id := s.ConversationID()
		if rest != "" {
			conv, err := s.app.Repo.Conversations.Resolve(rest)
			if err != nil {
				return err
			}
			id = conv.ID
		}
		if id == "" {
			return ErrMissingArgument("ID", "/delete ID")
		}
		if err := s.app.Repo.DeleteConversation(ctx, id); err != nil {
			return err
		}
		if id == s.ConversationID() {
			s.setConversation("")
		}
		s.info("[Deleted %s]", id)
		return nil

	case "/cancel":
		id := s.ConversationID()
		if id == "" {
			return nil
		}
		cancelled, err := s.app.Engine.CancelConversation(ctx, id)
		if err != nil {
			return err
		}
		if cancelled {
			s.info("[Cancelled]")
		} else {
			fmt.Fprintln(s.out, RenderConditional(DimStyle, "Nothing in progress."))
		}
		return nil

	case "/feedback", "/fb":
		return s.feedback(ctx, rest)

	case "/sql":
		return s.sql(ctx, rest)

	case "/status", "/s":
		s.printStatus()
		return nil

	default:
		return fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
}

// current returns the conversation prompts are going to.
func (s *ChatSession) current() (*model.Conversation, error) {
	id := s.ConversationID()
	if id == "" {
		return nil, errors.New("no conversation yet: send a message or /switch ID")
	}
	return s.app.Repo.Conversations.Get(id)
}

// feedback rates the newest finished agent answer of the conversation.
func (s *ChatSession) feedback(ctx context.Context, rest string) error {
	scoreArg, comment, _ := strings.Cut(rest, " ")
	if scoreArg == "" {
		return ErrMissingArgument("SCORE", "/feedback 1 great answer")
	}
	score, err := ParseScore(scoreArg)
	if err != nil {
		return err
	}

	id := s.ConversationID()
	if id == "" {
		return errors.New("no answer to rate yet")
	}
	msgs := s.app.Repo.Messages.ListByConversation(id)
	var target *model.Message
	for i := len(msgs) - 1; i >= 0; i-- {
		if !msgs[i].IsUser() && msgs[i].Status == model.StatusDone {
			target = msgs[i]
			break
		}
	}
	if target == nil {
		return errors.New("no answer to rate yet")
	}

	if _, err := s.app.Engine.Feedback(ctx, target.ID, score, strings.TrimSpace(comment)); err != nil {
		return err
	}
	s.info("[Feedback recorded]")
	return nil
}

// sql runs a sql block of the newest answer that has one.
func (s *ChatSession) sql(ctx context.Context, rest string) error {
	parser := NewArgParser(append([]string{"sql"}, strings.Fields(rest)...), "force", "refresh")
	index, err := parseSQLIndex(parser.Positional(1))
	if err != nil {
		return err
	}

	id := s.ConversationID()
	if id == "" {
		return errors.New("no answer with sql yet")
	}
	target := latestSQLMessage(s.app.Repo.Messages.ListByConversation(id))
	if target == nil {
		return errors.New("no answer with sql yet")
	}

	res, err := s.app.Engine.RunSQL(ctx, ingest.SQLRequest{
		MessageID: target.ID,
		Index:     index,
		Force:     parser.BoolFlag("force"),
		Refresh:   parser.BoolFlag("refresh"),
	})
	if errors.Is(err, ingest.ErrUnsafeStatement) {
		return errors.New("the statement is not a SELECT or WITH query; use /sql N --force to run it")
	}
	if err != nil {
		return err
	}
	return printSQLResult(s.app, res)
}

// =============================================================================
// DISPLAY FUNCTIONS
// =============================================================================

func (s *ChatSession) printWelcome() {
	cfg := s.app.Config
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, RenderConditional(TitleStyle, "agentchat interactive chat"))
	fmt.Fprintln(s.out, RenderConditional(DimStyle, strings.Repeat("─", 30)))
	fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Agent"), cfg.Agent.BaseURL)
	if conv, err := s.current(); err == nil {
		fmt.Fprintf(s.out, "%s%s (%s)\n", RenderLabel("Conversation"), conv.Title, conv.ID)
	}
	fmt.Fprintln(s.out, RenderConditional(DimStyle, "Type "+RenderConditional(PromptStyle, "/help")+" for commands, Ctrl+D to exit"))
	fmt.Fprintln(s.out)
}

func (s *ChatSession) printHelp() {
	commands := [][2]string{
		{"/new", "Start a new conversation"},
		{"/list", "List conversations"},
		{"/switch ID", "Continue another conversation"},
		{"/show", "Print the current conversation"},
		{"/rename TITLE", "Rename the current conversation"},
		{"/clear", "Remove the messages of the current conversation"},
		{"/delete [ID]", "Delete a conversation"},
		{"/cancel", "Cancel the answer in progress"},
		{"/feedback SCORE", "Rate the last answer (1 good, 0 bad)"},
		{"/sql [N]", "Run a sql block of the last answer"},
		{"/status", "Show session information"},
		{"/quit", "Exit chat"},
	}
	fmt.Fprintln(s.out, RenderConditional(TitleStyle, "Commands"))
	for _, c := range commands {
		fmt.Fprintf(s.out, "  %s %s\n", util.PadRight(c[0], 18), RenderConditional(DimStyle, c[1]))
	}
}

func (s *ChatSession) printStatus() {
	app := s.app
	id := s.ConversationID()
	if id == "" {
		id = "(new)"
	}
	fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Agent"), app.Config.Agent.BaseURL)
	fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Conversation"), id)
	if conv, err := s.current(); err == nil {
		fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Title"), conv.Title)
		fmt.Fprintf(s.out, "%s%d\n", RenderLabel("Messages"), app.Repo.Messages.Count(conv.ID))
	}
	fmt.Fprintf(s.out, "%s%d\n", RenderLabel("Conversations"), len(app.Repo.Conversations.List()))
	fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Storage"), app.Repo.BackendName())
	fmt.Fprintf(s.out, "%s%d\n", RenderLabel("Streaming"), app.Engine.Active())
}
