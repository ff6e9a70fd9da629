// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package agent provides the HTTP client for the conversational agent backend.
package agent

import (
	"errors"
	"fmt"
	"strconv"
)

// GenericFailureMessage is shown when the backend rejects a request without
// saying why.
const GenericFailureMessage = "Failed to request message, please check your network."

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeConnection
	ErrTypeTimeout
	ErrTypeHTTPStatus
	ErrTypeInvalidResponse
	ErrTypeFrame
	ErrTypeStream
)

// String returns a short name for the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeConnection:
		return "connection"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeHTTPStatus:
		return "http_status"
	case ErrTypeInvalidResponse:
		return "invalid_response"
	case ErrTypeFrame:
		return "frame"
	case ErrTypeStream:
		return "stream"
	default:
		return "unknown"
	}
}

// ClientError represents an error from a non-streaming agent call.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches sentinel ClientErrors by type.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return e.Type == t.Type && (t.Message == "" || t.Message == e.Message)
}

// Sentinel errors for easy checking.
var (
	ErrTimeout = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}

	// ErrStreamClosed is returned by RecordStream.Next after Close.
	ErrStreamClosed = errors.New("agent: stream closed")

	// ErrLineTooLong marks a stream line longer than MaxLineSize.
	ErrLineTooLong = errors.New("agent: line exceeds maximum size")
)

// =============================================================================
// TRANSPORT ERRORS
// =============================================================================

// TransportError is returned when a chat request cannot be started: the
// backend was unreachable (HTTPStatus 0) or answered with a non-2xx status.
type TransportError struct {
	HTTPStatus    int
	ServerMessage string
	Cause         error
}

func (e *TransportError) Error() string {
	var msg string
	if e.HTTPStatus == 0 {
		msg = "agent unreachable"
	} else {
		msg = "agent returned status " + strconv.Itoa(e.HTTPStatus)
	}
	if e.ServerMessage != "" {
		msg += ": " + e.ServerMessage
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Type categorizes the failure.
func (e *TransportError) Type() ErrorType {
	if e.HTTPStatus != 0 {
		return ErrTypeHTTPStatus
	}
	if errors.Is(e.Cause, ErrTimeout) {
		return ErrTypeTimeout
	}
	return ErrTypeConnection
}

// UserMessage returns the text to show in place of an answer.
func (e *TransportError) UserMessage() string {
	if e.ServerMessage != "" {
		return e.ServerMessage
	}
	return GenericFailureMessage
}

// =============================================================================
// STREAM ERRORS
// =============================================================================

// FrameError reports a line that could not be framed.
type FrameError struct {
	Size int
	Err  error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame error (%d bytes): %v", e.Size, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// StreamError represents a connection that dropped after the stream started,
// recording how many records were delivered before it did.
type StreamError struct {
	Records int
	Err     error
}

func (e *StreamError) Error() string {
	if e.Records > 0 {
		return fmt.Sprintf("stream error (%d records received): %v", e.Records, e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR CHECKS
// =============================================================================

// IsTransportError reports whether err means the request never started streaming.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsStreamError reports whether err is a mid-stream disconnect.
func IsStreamError(err error) bool {
	var se *StreamError
	return errors.As(err, &se)
}

// IsFrameError reports whether err is a framing failure.
func IsFrameError(err error) bool {
	var fe *FrameError
	return errors.As(err, &fe)
}

// IsTimeout reports whether err is a client timeout.
func IsTimeout(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeTimeout
	}
	return errors.Is(err, ErrTimeout)
}
