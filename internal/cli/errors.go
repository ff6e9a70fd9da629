// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types, display and exit codes for CLI commands.
//
// Handlers always return errors and never print them; main displays the
// error once and exits with GetExitCode.

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/agentchat/internal/agent"
	"github.com/jeranaias/agentchat/internal/config"
	"github.com/jeranaias/agentchat/internal/ingest"
	"github.com/jeranaias/agentchat/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitNetworkError  = 5
	ExitNotFoundError = 7
	// ExitAgentError means the agent answered with a failure.
	ExitAgentError = 9
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string
	Action  string
	Reason  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ValidationError represents invalid command usage.
type ValidationError struct {
	Field   string
	Value   string
	Reason  string
	Example string
}

func (e *ValidationError) Error() string {
	msg := e.Reason
	if e.Value != "" {
		msg = fmt.Sprintf("%s: %q", e.Reason, e.Value)
	}
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Example != "" {
		msg += " (try: " + e.Example + ")"
	}
	return msg
}

// SilentError carries an exit code for a failure that the command has
// already reported.
type SilentError struct {
	Code int
}

func (e *SilentError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// NewCommandError creates a CommandError.
func NewCommandError(command, action, reason string, err error) error {
	return &CommandError{Command: command, Action: action, Reason: reason, Err: err}
}

// NewValidationErrorWithExample creates a ValidationError with a usage hint.
func NewValidationErrorWithExample(field, value, reason, example string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason, Example: example}
}

// ErrMissingArgument reports a required argument that was not given.
func ErrMissingArgument(argName, usage string) error {
	return &ValidationError{Field: argName, Reason: "is required", Example: usage}
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// DisplayError writes err to w, as JSON in JSON mode. Silent errors are
// not displayed.
func DisplayError(w io.Writer, err error, jsonMode bool) {
	var silent *SilentError
	if err == nil || errors.As(err, &silent) {
		return
	}

	if jsonMode {
		DisplayErrorJSON(w, err)
		return
	}
	fmt.Fprintf(w, "%s %s\n", RenderConditional(ErrorStyle, "[Error]"), err.Error())
	if agent.IsTimeout(err) {
		fmt.Fprintf(w, "%s\n", RenderConditional(DimStyle, "The agent did not answer in time. Raise agent.timeout_secs with: agentchat config set agent.timeout_secs 120"))
	}
}

// DisplayErrorJSON writes err as a JSON object with an error_type.
func DisplayErrorJSON(w io.Writer, err error) {
	output := map[string]interface{}{
		"success":    false,
		"error":      err.Error(),
		"error_type": errorType(err),
	}

	var cmdErr *CommandError
	var valErr *ValidationError
	switch {
	case errors.As(err, &cmdErr):
		output["command"] = cmdErr.Command
		output["action"] = cmdErr.Action
	case errors.As(err, &valErr):
		output["field"] = valErr.Field
		if valErr.Example != "" {
			output["example"] = valErr.Example
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.Encode(output)
}

func errorType(err error) string {
	switch GetExitCode(err) {
	case ExitUsageError:
		return "validation_error"
	case ExitConfigError:
		return "config_error"
	case ExitNetworkError:
		if agent.IsTimeout(err) {
			return "timeout_error"
		}
		return "network_error"
	case ExitNotFoundError:
		return "not_found_error"
	case ExitAgentError:
		return "agent_error"
	default:
		return "generic_error"
	}
}

// GetExitCode determines the exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var silent *SilentError
	if errors.As(err, &silent) {
		return silent.Code
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return ExitUsageError
	}

	var configErr config.ValidateErrors
	if errors.As(err, &configErr) {
		return ExitConfigError
	}

	if errors.Is(err, storage.ErrConversationNotFound) || errors.Is(err, storage.ErrMessageNotFound) ||
		errors.Is(err, ingest.ErrNoSQL) {
		return ExitNotFoundError
	}

	if agent.IsTransportError(err) {
		return ExitNetworkError
	}
	var clientErr *agent.ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Type {
		case agent.ErrTypeConnection, agent.ErrTypeTimeout:
			return ExitNetworkError
		}
	}

	return ExitGeneralError
}
