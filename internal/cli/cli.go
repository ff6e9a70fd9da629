// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for agentchat.
package cli

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdChat Command = iota
	CmdAsk
	CmdConversations
	CmdRun
	CmdConfig
	CmdWatch
	CmdVersion
	CmdHelp
	CmdUnknown
)

// String returns the command name as typed on the command line.
func (c Command) String() string {
	switch c {
	case CmdChat:
		return "chat"
	case CmdAsk:
		return "ask"
	case CmdConversations:
		return "conversations"
	case CmdRun:
		return "run"
	case CmdConfig:
		return "config"
	case CmdWatch:
		return "watch"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath string
	JSON       bool
	Quiet      bool
	Verbose    bool
	NoMarkdown bool

	// Command-specific
	Conversation string // --conversation, -c
	New          bool   // --new
	Query        string
	Subcommand   string
	Name         string // the unrecognised command, for CmdUnknown

	// Raw args (remaining after the command word)
	Raw []string
}

const usageText = `agentchat - terminal client for a streaming conversational agent

Usage:
  agentchat [flags] [command]

Commands:
  chat                        Interactive chat (default)
  ask "question"              Send one prompt and print the answer
  conversations, conv         List and manage stored conversations
      list | show ID | rename ID TITLE | delete ID | clear [ID]
      export ID [--format md|json] [--output DIR]
  run status RUN_ID           Ask the agent whether a run is active
  run cancel RUN_ID           Ask the agent to stop a run
  run sql MESSAGE_ID [N]      Run the Nth sql block of an answer (SELECT/WITH only)
      --last | --force | --refresh
  watch [ID]                  Follow a conversation live (newest if no ID)
  config show|path|init|get|set
  version                     Show version information
  help                        Show this help

Flags:
  --config PATH               Load configuration from PATH
  -c, --conversation ID       Conversation to use (full id or unique prefix)
  --new                       Start a new conversation
  --json                      Machine-readable output
  --no-markdown               Print answers as plain text
  -q, --quiet                 Minimal output
  -v, --verbose               Debug logging

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "agentchat version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go:         %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses command-line arguments (without the program name) and
// returns the command and its args.
func Parse(argv []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdChat, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Raw = remaining

	switch cmd {
	case "chat":
		return CmdChat, parsedArgs

	case "ask", "a":
		parsedArgs.Query = strings.Join(remaining, " ")
		return CmdAsk, parsedArgs

	case "conversations", "conversation", "conv":
		parsedArgs.Subcommand = firstOr(remaining, "list")
		return CmdConversations, parsedArgs

	case "run":
		parsedArgs.Subcommand = firstOr(remaining, "")
		return CmdRun, parsedArgs

	case "config":
		parsedArgs.Subcommand = firstOr(remaining, "show")
		return CmdConfig, parsedArgs

	case "watch", "w":
		return CmdWatch, parsedArgs

	case "version":
		return CmdVersion, parsedArgs

	case "help":
		return CmdHelp, parsedArgs

	default:
		parsedArgs.Name = cmd
		return CmdUnknown, parsedArgs
	}
}

// parseGlobalFlags extracts flags accepted anywhere on the command line and
// returns the remaining args in order.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsedArgs Args

	takeValue := func(i *int) string {
		if *i+1 < len(args) {
			*i++
			return args[*i]
		}
		return ""
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "--":
			remaining = append(remaining, args[i+1:]...)
			return remaining, parsedArgs
		case "--json":
			parsedArgs.JSON = true
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "-v", "--verbose":
			parsedArgs.Verbose = true
		case "--no-markdown", "--plain":
			parsedArgs.NoMarkdown = true
		case "--new":
			parsedArgs.New = true
		case "--config":
			parsedArgs.ConfigPath = takeValue(&i)
		case "-c", "--conversation":
			parsedArgs.Conversation = takeValue(&i)
		case "-h", "--help":
			remaining = append([]string{"help"}, remaining...)
		case "--version":
			remaining = append([]string{"version"}, remaining...)
		default:
			switch {
			case strings.HasPrefix(arg, "--config="):
				parsedArgs.ConfigPath = strings.TrimPrefix(arg, "--config=")
			case strings.HasPrefix(arg, "--conversation="):
				parsedArgs.Conversation = strings.TrimPrefix(arg, "--conversation=")
			default:
				remaining = append(remaining, arg)
			}
		}
	}

	return remaining, parsedArgs
}

func firstOr(args []string, def string) string {
	if len(args) > 0 {
		return strings.ToLower(args[0])
	}
	return def
}

// =============================================================================
// DISPATCH
// =============================================================================

// Run executes cmd. Output goes to stdout, diagnostics to stderr. The
// returned error has already been shown to the user only when it is a
// *SilentError.
func Run(ctx context.Context, cmd Command, args Args, stdout, stderr io.Writer) error {
	switch cmd {
	case CmdHelp:
		PrintUsage(stdout)
		return nil
	case CmdVersion:
		return HandleVersion(args, stdout)
	case CmdConfig:
		return HandleConfig(args, stdout)
	case CmdUnknown:
		return NewValidationErrorWithExample("command", args.Name, "unknown command", "agentchat help")
	}

	app, err := NewApp(ctx, args, stdout, stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	switch cmd {
	case CmdAsk:
		return HandleAsk(ctx, app, args)
	case CmdConversations:
		return HandleConversations(ctx, app, args)
	case CmdRun:
		return HandleRun(ctx, app, args)
	case CmdWatch:
		return HandleWatch(ctx, app, args)
	default:
		return HandleChat(ctx, app, args)
	}
}

// HandleVersion prints version information.
func HandleVersion(args Args, w io.Writer) error {
	if args.JSON {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
			Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		}).Fprint(w)
	}
	PrintVersion(w)
	return nil
}
