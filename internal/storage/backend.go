// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage holds conversations and messages in memory and persists them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/agentchat/internal/util"
)

// Backend names accepted by OpenBackend.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// =============================================================================
// BACKEND INTERFACE
// =============================================================================

// Backend persists encoded snapshots keyed by conversation id. Backends deal
// in opaque blobs; encoding and migration happen in the Repository.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string

	// LoadAll returns every stored blob by conversation id.
	LoadAll(ctx context.Context) (map[string][]byte, error)

	// Load returns the blob of one conversation, or nil if it is absent.
	Load(ctx context.Context, conversationID string) ([]byte, error)

	// Save writes the blob for a conversation, replacing any previous one.
	Save(ctx context.Context, conversationID string, blob []byte) error

	// Delete removes a conversation. Deleting a missing id is not an error.
	Delete(ctx context.Context, conversationID string) error

	// LoadSettings returns the settings blob, or nil if none was saved.
	LoadSettings(ctx context.Context) ([]byte, error)

	// SaveSettings writes the settings blob.
	SaveSettings(ctx context.Context, blob []byte) error

	Close() error
}

// OpenBackend opens the named backend rooted at dir.
func OpenBackend(kind, dir string) (Backend, error) {
	switch kind {
	case BackendFile, "":
		return NewFileBackend(filepath.Join(dir, "conversations"))
	case BackendSQLite:
		return OpenSQLiteBackend(filepath.Join(dir, "agentchat.db"))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}

// =============================================================================
// FILE BACKEND
// =============================================================================

const settingsFile = "_settings.json"

// FileBackend stores one JSON file per conversation in BaseDir.
// Writes are atomic: a crash leaves either the old or the new file.
type FileBackend struct {
	BaseDir string
}

// NewFileBackend creates the directory if needed.
func NewFileBackend(baseDir string) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &FileBackend{BaseDir: baseDir}, nil
}

// Name implements Backend.
func (b *FileBackend) Name() string { return BackendFile }

// LoadAll implements Backend. Unreadable files are skipped.
func (b *FileBackend) LoadAll(ctx context.Context) (map[string][]byte, error) {
	entries, err := os.ReadDir(b.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]byte{}, nil
		}
		return nil, err
	}

	out := make(map[string][]byte, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || name == settingsFile || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(b.BaseDir, name))
		if err != nil {
			continue
		}
		out[strings.TrimSuffix(name, ".json")] = data
	}
	return out, nil
}

// Load implements Backend.
func (b *FileBackend) Load(ctx context.Context, conversationID string) ([]byte, error) {
	path, err := b.filePath(conversationID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// ConversationID maps a file in BaseDir back to its conversation id. It
// reports false for settings, temporary and non-JSON files.
func (b *FileBackend) ConversationID(path string) (string, bool) {
	if filepath.Dir(path) != filepath.Clean(b.BaseDir) {
		return "", false
	}
	name := filepath.Base(path)
	if name == settingsFile || !strings.HasSuffix(name, ".json") {
		return "", false
	}
	id := strings.TrimSuffix(name, ".json")
	if _, err := b.filePath(id); err != nil {
		return "", false
	}
	return id, true
}

// Save implements Backend.
func (b *FileBackend) Save(ctx context.Context, conversationID string, blob []byte) error {
	path, err := b.filePath(conversationID)
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(path, blob, 0600)
}

// Delete implements Backend.
func (b *FileBackend) Delete(ctx context.Context, conversationID string) error {
	path, err := b.filePath(conversationID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// LoadSettings implements Backend.
func (b *FileBackend) LoadSettings(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(b.BaseDir, settingsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// SaveSettings implements Backend.
func (b *FileBackend) SaveSettings(ctx context.Context, blob []byte) error {
	return util.AtomicWriteFile(filepath.Join(b.BaseDir, settingsFile), blob, 0600)
}

// Close implements Backend.
func (b *FileBackend) Close() error { return nil }

// filePath maps an id to its file, refusing ids that would escape BaseDir.
func (b *FileBackend) filePath(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") || strings.HasPrefix(id, "_") {
		return "", withID(ErrInvalidID, id)
	}
	return filepath.Join(b.BaseDir, id+".json"), nil
}
