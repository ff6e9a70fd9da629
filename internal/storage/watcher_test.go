// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/agentchat/internal/model"
)

func TestWatcher_ReloadsWritesFromAnotherProcess(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	ours, err := NewFileBackend(dir)
	require.NoError(t, err)
	repo, _, err := Open(ctx, ours, quietLogger())
	require.NoError(t, err)
	defer repo.Close()

	w, err := NewWatcher(repo, 20*time.Millisecond, quietLogger())
	require.NoError(t, err)

	var (
		mu       sync.Mutex
		outcomes []ReloadOutcome
	)
	w.OnReload = func(_ string, outcome ReloadOutcome, err error) {
		assert.NoError(t, err)
		mu.Lock()
		outcomes = append(outcomes, outcome)
		mu.Unlock()
	}
	require.NoError(t, w.Watch())
	defer w.Close()

	var changes sync.Map
	unsubscribe := repo.Messages.Subscribe(func(c Change) {
		changes.Store(c.MessageID, c.Kind)
	})
	defer unsubscribe()

	// A second process sharing the same directory
	theirs, err := NewFileBackend(dir)
	require.NoError(t, err)
	other, _, err := Open(ctx, theirs, quietLogger())
	require.NoError(t, err)
	defer other.Close()

	conv := other.Conversations.Create("from elsewhere", "")
	first := model.NewUserMessage(conv.ID, "u", "hello", testNow)
	require.NoError(t, other.Messages.Add(first))
	require.NoError(t, other.SaveConversation(ctx, conv.ID))

	require.Eventually(t, func() bool {
		return repo.Messages.Count(conv.ID) == 1
	}, 5*time.Second, 10*time.Millisecond)
	got, err := repo.Conversations.Get(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "from elsewhere", got.Title)
	require.Eventually(t, func() bool {
		_, seen := changes.Load(first.ID)
		return seen
	}, time.Second, 10*time.Millisecond, "subscribers see reloaded messages")

	second := model.NewUserMessage(conv.ID, "u", "again", testNow.Add(time.Second))
	require.NoError(t, other.Messages.Add(second))
	require.NoError(t, other.SaveConversation(ctx, conv.ID))
	require.Eventually(t, func() bool {
		return repo.Messages.Count(conv.ID) == 2
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, other.DeleteConversation(ctx, conv.ID))
	require.Eventually(t, func() bool {
		return !repo.Conversations.Exists(conv.ID)
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, outcomes, ReloadUpdated)
	assert.Contains(t, outcomes, ReloadRemoved)
}

func TestWatcher_IgnoresOwnWrites(t *testing.T) {
	ctx := context.Background()
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	repo, _, err := Open(ctx, b, quietLogger())
	require.NoError(t, err)
	defer repo.Close()

	w, err := NewWatcher(repo, 20*time.Millisecond, quietLogger())
	require.NoError(t, err)
	reloads := make(chan ReloadOutcome, 16)
	w.OnReload = func(_ string, outcome ReloadOutcome, _ error) { reloads <- outcome }
	require.NoError(t, w.Watch())

	conv := repo.Conversations.Create("local", "")
	require.NoError(t, repo.Messages.Add(model.NewUserMessage(conv.ID, "u", "hi", testNow)))
	require.NoError(t, repo.SaveConversation(ctx, conv.ID))

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, w.Close())
	assert.Empty(t, reloads)
	assert.Equal(t, 1, repo.Messages.Count(conv.ID))
}

func TestNewWatcher_RequiresFileBackend(t *testing.T) {
	b, err := OpenSQLiteBackend(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	repo := NewRepository(b, quietLogger())
	defer repo.Close()

	_, err = NewWatcher(repo, 0, nil)
	assert.ErrorIs(t, err, ErrWatchUnsupported)
}

func TestFileBackend_ConversationID(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)

	tests := []struct {
		path string
		id   string
		ok   bool
	}{
		{filepath.Join(b.BaseDir, "abc-123.json"), "abc-123", true},
		{filepath.Join(b.BaseDir, settingsFile), "", false},
		{filepath.Join(b.BaseDir, ".tmp-abc.json"), "", false},
		{filepath.Join(b.BaseDir, "notes.txt"), "", false},
		{filepath.Join(b.BaseDir, "nested", "abc.json"), "", false},
	}
	for _, tt := range tests {
		id, ok := b.ConversationID(tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.id, id, tt.path)
	}
}
