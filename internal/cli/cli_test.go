// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/jeranaias/agentchat/internal/agent"
	"github.com/jeranaias/agentchat/internal/config"
	"github.com/jeranaias/agentchat/internal/storage"
)

func TestMain(m *testing.M) {
	ForceColorsEnabled(false)
	os.Exit(m.Run())
}

// =============================================================================
// PARSE TESTS (cli.go)
// =============================================================================

func TestParse_Commands(t *testing.T) {
	tests := []struct {
		name    string
		argv    []string
		wantCmd Command
		check   func(*testing.T, Args)
	}{
		{
			name:    "no args starts chat",
			argv:    nil,
			wantCmd: CmdChat,
		},
		{
			name:    "ask joins the query",
			argv:    []string{"ask", "how", "many", "users?"},
			wantCmd: CmdAsk,
			check: func(t *testing.T, a Args) {
				if a.Query != "how many users?" {
					t.Errorf("Query = %q", a.Query)
				}
			},
		},
		{
			name:    "ask alias with global flags anywhere",
			argv:    []string{"a", "--json", "hello", "-c", "3f2a"},
			wantCmd: CmdAsk,
			check: func(t *testing.T, a Args) {
				if !a.JSON || a.Conversation != "3f2a" || a.Query != "hello" {
					t.Errorf("got %+v", a)
				}
			},
		},
		{
			name:    "watch takes a conversation",
			argv:    []string{"watch", "3f2a"},
			wantCmd: CmdWatch,
			check: func(t *testing.T, a Args) {
				if len(a.Raw) != 1 || a.Raw[0] != "3f2a" {
					t.Errorf("Raw = %v", a.Raw)
				}
			},
		},
		{
			name:    "conversations defaults to list",
			argv:    []string{"conv"},
			wantCmd: CmdConversations,
			check: func(t *testing.T, a Args) {
				if a.Subcommand != "list" {
					t.Errorf("Subcommand = %q, want list", a.Subcommand)
				}
			},
		},
		{
			name:    "conversations rename keeps raw args",
			argv:    []string{"conversations", "rename", "3f2a", "Q3", "report"},
			wantCmd: CmdConversations,
			check: func(t *testing.T, a Args) {
				if a.Subcommand != "rename" || len(a.Raw) != 4 {
					t.Errorf("Subcommand = %q, Raw = %v", a.Subcommand, a.Raw)
				}
			},
		},
		{
			name:    "run status",
			argv:    []string{"run", "STATUS", "run-1"},
			wantCmd: CmdRun,
			check: func(t *testing.T, a Args) {
				if a.Subcommand != "status" {
					t.Errorf("Subcommand = %q", a.Subcommand)
				}
			},
		},
		{
			name:    "config defaults to show",
			argv:    []string{"--config=/tmp/a.toml", "config"},
			wantCmd: CmdConfig,
			check: func(t *testing.T, a Args) {
				if a.Subcommand != "show" || a.ConfigPath != "/tmp/a.toml" {
					t.Errorf("got %+v", a)
				}
			},
		},
		{
			name:    "help flag",
			argv:    []string{"-h"},
			wantCmd: CmdHelp,
		},
		{
			name:    "version flag",
			argv:    []string{"--version"},
			wantCmd: CmdVersion,
		},
		{
			name:    "double dash stops flag parsing",
			argv:    []string{"ask", "--", "--json", "is", "a", "flag"},
			wantCmd: CmdAsk,
			check: func(t *testing.T, a Args) {
				if a.JSON || a.Query != "--json is a flag" {
					t.Errorf("got %+v", a)
				}
			},
		},
		{
			name:    "unknown command",
			argv:    []string{"frobnicate"},
			wantCmd: CmdUnknown,
			check: func(t *testing.T, a Args) {
				if a.Name != "frobnicate" {
					t.Errorf("Name = %q", a.Name)
				}
			},
		},
		{
			name:    "verbose quiet new and plain",
			argv:    []string{"-v", "-q", "--new", "--plain", "chat"},
			wantCmd: CmdChat,
			check: func(t *testing.T, a Args) {
				if !a.Verbose || !a.Quiet || !a.New || !a.NoMarkdown {
					t.Errorf("got %+v", a)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args := Parse(tt.argv)
			if cmd != tt.wantCmd {
				t.Fatalf("Parse(%v) command = %v, want %v", tt.argv, cmd, tt.wantCmd)
			}
			if tt.check != nil {
				tt.check(t, args)
			}
		})
	}
}

func TestCommand_String(t *testing.T) {
	for cmd, want := range map[Command]string{
		CmdChat:          "chat",
		CmdAsk:           "ask",
		CmdConversations: "conversations",
		CmdWatch:         "watch",
		CmdUnknown:       "unknown",
	} {
		if got := cmd.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", cmd, got, want)
		}
	}
}

// =============================================================================
// ARG PARSER TESTS (args.go)
// =============================================================================

func TestArgParser(t *testing.T) {
	p := NewArgParser([]string{"Rename", "3f2a", "--title", "Q3 report", "--force", "--limit=5", "extra"}, "force")

	if p.Subcommand() != "rename" {
		t.Errorf("Subcommand() = %q, want rename", p.Subcommand())
	}
	if p.Positional(1) != "3f2a" || p.Positional(2) != "extra" || p.Positional(9) != "" {
		t.Errorf("positionals = %v", p.PositionalFrom(0))
	}
	if p.Flag("title") != "Q3 report" || p.Flag("--limit") != "5" {
		t.Errorf("flags title=%q limit=%q", p.Flag("title"), p.Flag("limit"))
	}
	if !p.BoolFlag("force") {
		t.Error("BoolFlag(force) should be true")
	}
	if p.FlagOrDefault("missing", "dflt") != "dflt" {
		t.Error("FlagOrDefault should fall back")
	}
	if p.PositionalCount() != 3 {
		t.Errorf("PositionalCount() = %d, want 3", p.PositionalCount())
	}
	if got := JoinPositionalArgs(p, 1); got != "3f2a extra" {
		t.Errorf("JoinPositionalArgs = %q", got)
	}
}

func TestArgParser_BoolFlagDoesNotConsumeValue(t *testing.T) {
	p := NewArgParser([]string{"init", "--force", "now"}, "force")
	if !p.BoolFlag("force") || p.Positional(1) != "now" {
		t.Errorf("force=%v positional=%q", p.BoolFlag("force"), p.Positional(1))
	}

	p = NewArgParser([]string{"init", "--force=false"}, "force")
	if p.BoolFlag("force") {
		t.Error("--force=false should be false")
	}
}

func TestArgParser_Require(t *testing.T) {
	p := NewArgParser([]string{"show"})
	_, err := p.Require(1, "ID", "agentchat conversations show ID")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Require error = %v, want *ValidationError", err)
	}
	if ve.Field != "ID" || !strings.Contains(err.Error(), "show ID") {
		t.Errorf("error = %v", err)
	}
}

func TestParseScore(t *testing.T) {
	for _, in := range []string{"1", "+", "up", "Yes", "good"} {
		if got, err := ParseScore(in); err != nil || got != 1 {
			t.Errorf("ParseScore(%q) = %d, %v", in, got, err)
		}
	}
	for _, in := range []string{"0", "-", "down", "no", "BAD"} {
		if got, err := ParseScore(in); err != nil || got != 0 {
			t.Errorf("ParseScore(%q) = %d, %v", in, got, err)
		}
	}
	if _, err := ParseScore("5"); err == nil {
		t.Error("ParseScore(5) should fail")
	}
}

// =============================================================================
// ERROR TESTS (errors.go)
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"silent", &SilentError{Code: ExitAgentError}, ExitAgentError},
		{"usage", ErrMissingArgument("ID", "x"), ExitUsageError},
		{"config", fmt.Errorf("invalid config: %w", config.ValidateErrors{{Field: "a", Message: "b"}}), ExitConfigError},
		{"not found", fmt.Errorf("show: %w", storage.ErrConversationNotFound), ExitNotFoundError},
		{"connection", &agent.ClientError{Type: agent.ErrTypeConnection, Message: "refused"}, ExitNetworkError},
		{"timeout", fmt.Errorf("cancel: %w", agent.ErrTimeout), ExitNetworkError},
		{"bad response", &agent.ClientError{Type: agent.ErrTypeInvalidResponse, Message: "junk"}, ExitGeneralError},
		{"generic", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetExitCode(tt.err); got != tt.want {
				t.Errorf("GetExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestDisplayError(t *testing.T) {
	var sb strings.Builder
	DisplayError(&sb, &SilentError{Code: 9}, false)
	if sb.Len() != 0 {
		t.Errorf("silent error displayed: %q", sb.String())
	}

	DisplayError(&sb, errors.New("boom"), false)
	if got := sb.String(); got != "[Error] boom\n" {
		t.Errorf("DisplayError = %q", got)
	}

	sb.Reset()
	DisplayError(&sb, fmt.Errorf("cancel run: %w", agent.ErrTimeout), false)
	if got := sb.String(); !strings.Contains(got, "agent.timeout_secs") {
		t.Errorf("timeout error has no hint: %q", got)
	}

	sb.Reset()
	DisplayError(&sb, fmt.Errorf("cancel run: %w", agent.ErrTimeout), true)
	if !strings.Contains(sb.String(), `"error_type": "timeout_error"`) {
		t.Errorf("timeout error type missing:\n%s", sb.String())
	}

	sb.Reset()
	DisplayError(&sb, NewValidationErrorWithExample("command", "x", "unknown command", "agentchat help"), true)
	for _, want := range []string{`"success": false`, `"error_type": "validation_error"`, `"example": "agentchat help"`} {
		if !strings.Contains(sb.String(), want) {
			t.Errorf("JSON error missing %s:\n%s", want, sb.String())
		}
	}
}

func TestRun_UnknownAndHelp(t *testing.T) {
	var out, errOut strings.Builder

	err := Run(t.Context(), CmdUnknown, Args{Name: "bogus"}, &out, &errOut)
	if GetExitCode(err) != ExitUsageError {
		t.Errorf("unknown command exit = %d", GetExitCode(err))
	}

	if err := Run(t.Context(), CmdHelp, Args{}, &out, &errOut); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "agentchat [flags] [command]") {
		t.Errorf("usage not printed:\n%s", out.String())
	}

	out.Reset()
	if err := Run(t.Context(), CmdVersion, Args{JSON: true}, &out, &errOut); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `"version": "`+Version+`"`) {
		t.Errorf("version JSON:\n%s", out.String())
	}
}
