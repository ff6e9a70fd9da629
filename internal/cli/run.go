// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// run.go - Backend run status and cancellation commands.

package cli

import (
	"context"
	"fmt"
)

const runUsage = "agentchat run status|cancel RUN_ID | run sql MESSAGE_ID [N]"

// HandleRun queries or cancels a run on the agent backend by id, or runs
// the sql of an agent answer.
func HandleRun(ctx context.Context, app *App, args Args) error {
	parser := NewArgParser(args.Raw)

	switch args.Subcommand {
	case "status":
		runID, err := parser.Require(1, "RUN_ID", "agentchat run status RUN_ID")
		if err != nil {
			return err
		}
		running, err := app.Client.RunStatus(ctx, runID)
		if err != nil {
			return err
		}
		if app.JSON {
			return NewJSONResponse("run status", RunData{RunID: runID, Running: &running}).Fprint(app.Out)
		}
		state := RenderConditional(DimStyle, "not running")
		if running {
			state = RenderConditional(SuccessStyle, "running")
		}
		fmt.Fprintf(app.Out, "%s%s\n", RenderLabel(runID), state)
		return nil

	case "cancel":
		runID, err := parser.Require(1, "RUN_ID", "agentchat run cancel RUN_ID")
		if err != nil {
			return err
		}
		cancelled, err := app.Client.CancelRun(ctx, runID)
		if err != nil {
			return err
		}
		if app.JSON {
			return NewJSONResponse("run cancel", RunData{RunID: runID, Cancelled: &cancelled}).Fprint(app.Out)
		}
		if cancelled {
			fmt.Fprintln(app.Out, RenderConditional(SuccessStyle, "Run "+runID+" cancelled"))
		} else {
			fmt.Fprintln(app.Out, RenderConditional(WarningStyle, "Run "+runID+" was not running"))
		}
		return nil

	case "sql":
		return runSQL(ctx, app, args)

	case "":
		return ErrMissingArgument("subcommand", runUsage)
	default:
		return NewValidationErrorWithExample("subcommand", args.Subcommand, "unknown run subcommand", runUsage)
	}
}
