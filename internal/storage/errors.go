// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage holds conversations and messages in memory and persists them.
package storage

// =============================================================================
// ERRORS
// =============================================================================

// StoreError represents a storage-related error.
// It implements the error interface and can be compared using errors.Is.
type StoreError struct {
	Message string
	ID      string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.ID != "" {
		return e.Message + ": " + e.ID
	}
	return e.Message
}

// Is implements errors.Is support; errors match on Message only.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// Sentinel errors. Use errors.Is to check for them.
var (
	ErrConversationNotFound = &StoreError{Message: "conversation not found"}
	ErrMessageNotFound      = &StoreError{Message: "message not found"}
	ErrDuplicateMessage     = &StoreError{Message: "message already exists"}
	ErrConversationBusy     = &StoreError{Message: "conversation already has a message in progress"}
	ErrSchemaTooNew         = &StoreError{Message: "snapshot schema is newer than supported"}
	ErrInvalidID            = &StoreError{Message: "invalid identifier"}
)

func withID(base *StoreError, id string) error {
	return &StoreError{Message: base.Message, ID: id}
}
