// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and execution for agentchat.
//
// Commands either run without state (help, version, config) or build an
// App, which loads configuration, opens the conversation store and wires
// the agent client into an ingest engine.
//
// # Key Types
//
//   - Command: the command named on the command line
//   - Args: parsed global and command-specific arguments
//   - App: config, logger, repository, client and engine for one invocation
//   - Renderer: terminal output of messages and conversation lists
//   - ChatSession: state of the interactive chat
//
// # Usage
//
//	cmd, args := cli.Parse(os.Args[1:])
//	if err := cli.Run(ctx, cmd, args, os.Stdout, os.Stderr); err != nil {
//	    cli.DisplayError(os.Stderr, err, args.JSON)
//	    os.Exit(cli.GetExitCode(err))
//	}
//
// # Output
//
// With --json every command prints one JSONResponse on stdout; progress
// and warnings go to stderr. Handlers return errors without printing them,
// except for *SilentError, which only carries an exit code.
package cli
