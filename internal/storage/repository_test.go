// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/agentchat/internal/model"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// backends returns a fresh instance of each backend rooted in its own
// temporary directory.
func backends() map[string]func(t *testing.T, dir string) Backend {
	return map[string]func(t *testing.T, dir string) Backend{
		BackendFile: func(t *testing.T, dir string) Backend {
			b, err := NewFileBackend(dir)
			require.NoError(t, err)
			return b
		},
		BackendSQLite: func(t *testing.T, dir string) Backend {
			b, err := OpenSQLiteBackend(filepath.Join(dir, "test.db"))
			require.NoError(t, err)
			return b
		},
	}
}

// =============================================================================
// BACKEND TESTS
// =============================================================================

func TestBackends_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			b := open(t, dir)

			require.NoError(t, b.Save(ctx, "c1", []byte(`{"schema_version":2,"a":1}`)))
			require.NoError(t, b.Save(ctx, "c2", []byte(`{"schema_version":2,"b":2}`)))
			require.NoError(t, b.Save(ctx, "c1", []byte(`{"schema_version":2,"a":3}`)))

			blobs, err := b.LoadAll(ctx)
			require.NoError(t, err)
			assert.Len(t, blobs, 2)
			assert.JSONEq(t, `{"schema_version":2,"a":3}`, string(blobs["c1"]))

			require.NoError(t, b.Delete(ctx, "c2"))
			require.NoError(t, b.Delete(ctx, "c2"), "deleting twice is not an error")

			settings, err := b.LoadSettings(ctx)
			require.NoError(t, err)
			assert.Nil(t, settings)
			require.NoError(t, b.SaveSettings(ctx, []byte(`{"theme":"dark"}`)))
			require.NoError(t, b.Close())

			// Reopen to prove it reached disk
			b = open(t, dir)
			defer b.Close()
			blobs, err = b.LoadAll(ctx)
			require.NoError(t, err)
			assert.Len(t, blobs, 1)
			assert.Contains(t, blobs, "c1")

			settings, err = b.LoadSettings(ctx)
			require.NoError(t, err)
			assert.JSONEq(t, `{"theme":"dark"}`, string(settings))
		})
	}
}

func TestFileBackend_RejectsUnsafeIDs(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"", "../escape", "a/b", ".hidden", "_settings"} {
		err := b.Save(context.Background(), id, []byte("{}"))
		assert.True(t, errors.Is(err, ErrInvalidID), "id %q should be rejected, got %v", id, err)
	}
}

func TestOpenBackend(t *testing.T) {
	dir := t.TempDir()

	b, err := OpenBackend("", dir)
	require.NoError(t, err)
	assert.Equal(t, BackendFile, b.Name())

	b, err = OpenBackend(BackendSQLite, dir)
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, b.Name())
	require.NoError(t, b.Close())

	_, err = OpenBackend("postgres", dir)
	assert.Error(t, err)
}

func TestSQLiteBackend_UpgradesV1Table(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")

	// Build a version 1 database by hand
	b, err := OpenSQLiteBackend(path)
	require.NoError(t, err)
	_, err = b.db.Exec(`DROP TABLE snapshots`)
	require.NoError(t, err)
	_, err = b.db.Exec(`CREATE TABLE snapshots (conversation_id TEXT PRIMARY KEY, data TEXT NOT NULL, updated_at_unix_ms INTEGER NOT NULL)`)
	require.NoError(t, err)
	_, err = b.db.Exec(`INSERT INTO snapshots VALUES ('c1', '{"schema_version":1}', 0)`)
	require.NoError(t, err)
	_, err = b.db.Exec(`PRAGMA user_version = 1`)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b, err = OpenSQLiteBackend(path)
	require.NoError(t, err)
	defer b.Close()

	var version int
	require.NoError(t, b.db.QueryRow(`SELECT schema_version FROM snapshots WHERE conversation_id = 'c1'`).Scan(&version))
	assert.Equal(t, 1, version)

	var userVersion int
	require.NoError(t, b.db.QueryRow(`PRAGMA user_version`).Scan(&userVersion))
	assert.Equal(t, sqliteSchemaVersion, userVersion)
}

// =============================================================================
// SNAPSHOT TESTS
// =============================================================================

func TestMigrate_V0(t *testing.T) {
	tests := []struct {
		name         string
		connectionID string
		wantAgent    string
	}{
		{"with connection", "db-1", model.SQLAgentID},
		{"without connection", "", model.DefaultAgentID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := &Snapshot{
				SchemaVersion: 0,
				Conversation:  &model.Conversation{ID: "c1", ConnectionID: tt.connectionID},
				Messages: []*model.Message{
					{ID: "m1", Content: "hi"},
					nil,
				},
			}
			changed, err := Migrate(snap)
			require.NoError(t, err)
			assert.True(t, changed)
			assert.Equal(t, CurrentSchemaVersion, snap.SchemaVersion)
			assert.Equal(t, tt.wantAgent, snap.Conversation.AgentID)

			require.Len(t, snap.Messages, 1)
			m := snap.Messages[0]
			assert.Equal(t, model.StatusDone, m.Status)
			assert.Equal(t, "c1", m.ConversationID)
			assert.NotNil(t, m.Events)
		})
	}
}

func TestMigrate_Current(t *testing.T) {
	snap := &Snapshot{
		SchemaVersion: CurrentSchemaVersion,
		Conversation:  &model.Conversation{ID: "c1", AgentID: "custom"},
	}
	changed, err := Migrate(snap)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "custom", snap.Conversation.AgentID)
}

func TestDecodeSnapshot(t *testing.T) {
	blob := []byte(`{
		"schema_version": 1,
		"conversation": {"id": "c1", "title": "t", "agentId": "general-bot"},
		"messages": [
			{"id": "m1", "conversationId": "c1", "events": [{"data": "x", "data_type": "llm"}]}
		]
	}`)

	snap, migrated, err := DecodeSnapshot(blob)
	require.NoError(t, err)
	assert.True(t, migrated)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, model.StatusDone, snap.Messages[0].Status)
	assert.NotNil(t, snap.Messages[0].Events[0].Metadata)

	_, _, err = DecodeSnapshot([]byte(`{"schema_version": 99, "conversation": {"id": "c1"}}`))
	assert.True(t, errors.Is(err, ErrSchemaTooNew))

	_, _, err = DecodeSnapshot([]byte(`not json`))
	assert.Error(t, err)

	_, _, err = DecodeSnapshot([]byte(`{"schema_version": 2}`))
	assert.Error(t, err)
}

func TestRecoverStale(t *testing.T) {
	snap := &Snapshot{
		Conversation: &model.Conversation{ID: "c1"},
		Messages: []*model.Message{
			{ID: "empty", Status: model.StatusLoading},
			{ID: "partial", Status: model.StatusLoading, Content: "half an ans"},
			{ID: "events", Status: model.StatusLoading, Events: []model.MessageEvent{
				model.NewEvent("done thinking", model.DataTypeLLM, nil),
			}},
			{ID: "done", Status: model.StatusDone, Content: ""},
		},
	}

	n := RecoverStale(snap)
	assert.Equal(t, 3, n)

	assert.Equal(t, model.StatusFailed, snap.Messages[0].Status)
	assert.Equal(t, StaleFailureMessage, snap.Messages[0].Content)
	assert.Equal(t, model.StatusDone, snap.Messages[1].Status)
	assert.Equal(t, "half an ans", snap.Messages[1].Content)
	assert.Equal(t, model.StatusDone, snap.Messages[2].Status)
	assert.Len(t, snap.Messages[2].Events, 1)
	assert.Equal(t, model.StatusDone, snap.Messages[3].Status)
}

// =============================================================================
// REPOSITORY TESTS
// =============================================================================

func TestRepository_SaveAndReopen(t *testing.T) {
	ctx := context.Background()
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()

			repo, report, err := Open(ctx, open(t, dir), quietLogger())
			require.NoError(t, err)
			assert.Zero(t, report.Loaded)

			conv := repo.Conversations.Create("numbers", model.DefaultAgentID)
			user := model.NewUserMessage(conv.ID, "u1", "how many rows?", testNow)
			agent := model.NewAgentMessage(conv.ID, conv.AgentID, testNow)
			require.NoError(t, repo.Messages.Add(user))
			require.NoError(t, repo.Messages.Add(agent))
			repo.Messages.Update(agent.ID, MessagePatch{
				AppendEvents: []model.MessageEvent{model.NewEvent("42 rows", model.DataTypeLLM, nil)},
				Status:       StatusPtr(model.StatusDone),
				RunID:        StringPtr("run-1"),
			})
			require.NoError(t, repo.SaveConversation(ctx, conv.ID))

			repo.Settings.SetSetting(map[string]any{"limit": float64(10)})
			require.NoError(t, repo.SaveSettings(ctx))
			require.NoError(t, repo.Close())

			repo, report, err = Open(ctx, open(t, dir), quietLogger())
			require.NoError(t, err)
			defer repo.Close()

			assert.Equal(t, 1, report.Loaded)
			assert.Zero(t, report.Migrated)
			assert.Empty(t, report.Skipped)

			msgs := repo.Messages.ListByConversation(conv.ID)
			require.Len(t, msgs, 2)
			assert.Equal(t, "how many rows?", msgs[0].Content)
			assert.Equal(t, "run-1", msgs[1].RunID)
			assert.Equal(t, "42 rows", msgs[1].Events[0].Data)

			got, err := repo.Conversations.Get(conv.ID)
			require.NoError(t, err)
			assert.Equal(t, "numbers", got.Title)

			s := repo.Settings.Get()
			assert.Equal(t, 1, s.Version)
			assert.Equal(t, float64(10), s.Data["limit"])
		})
	}
}

func TestRepository_OpenMigratesAndRecovers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	require.NoError(t, err)

	old := `{
		"schema_version": 0,
		"conversation": {"id": "legacy", "title": "old", "connectionId": "warehouse"},
		"messages": [
			{"id": "u", "conversationId": "legacy", "creatorRole": "user", "content": "q", "status": "DONE"},
			{"id": "a", "conversationId": "legacy", "creatorRole": "agent", "content": "", "status": "LOADING"}
		]
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "legacy.json"), []byte(old), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "future.json"),
		[]byte(`{"schema_version": 7, "conversation": {"id": "future"}}`), 0600))

	repo, report, err := Open(ctx, b, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Loaded)
	assert.Equal(t, 1, report.Migrated)
	assert.Equal(t, 1, report.Recovered)
	assert.ElementsMatch(t, []string{"broken", "future"}, report.Skipped)

	conv, err := repo.Conversations.Get("legacy")
	require.NoError(t, err)
	assert.Equal(t, model.SQLAgentID, conv.AgentID)

	msg, ok := repo.Messages.Get("a")
	require.True(t, ok)
	assert.Equal(t, model.StatusFailed, msg.Status)
	assert.Equal(t, StaleFailureMessage, msg.Content)

	// The upgraded snapshot was written back
	data, err := os.ReadFile(filepath.Join(dir, "legacy.json"))
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, CurrentSchemaVersion, snap.SchemaVersion)

	// The too-new snapshot is left untouched for a newer build
	data, err = os.ReadFile(filepath.Join(dir, "future.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"schema_version": 7`)
}

func TestRepository_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	repo := NewRepository(b, quietLogger())

	keep := repo.Conversations.Create("keep", "")
	drop := repo.Conversations.Create("drop", "")
	for _, c := range []string{keep.ID, drop.ID} {
		require.NoError(t, repo.Messages.Add(model.NewUserMessage(c, "u", "hello", testNow)))
		require.NoError(t, repo.SaveConversation(ctx, c))
	}
	inflight := model.NewAgentMessage(keep.ID, keep.AgentID, testNow)
	require.NoError(t, repo.Messages.Add(inflight))

	require.NoError(t, repo.DeleteConversation(ctx, drop.ID))
	assert.False(t, repo.Conversations.Exists(drop.ID))
	assert.Zero(t, repo.Messages.Count(drop.ID))

	blobs, err := b.LoadAll(ctx)
	require.NoError(t, err)
	assert.NotContains(t, blobs, drop.ID)

	removed, err := repo.ClearConversation(ctx, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	msgs := repo.Messages.ListByConversation(keep.ID)
	require.Len(t, msgs, 1)
	assert.Equal(t, inflight.ID, msgs[0].ID)

	_, err = repo.ClearConversation(ctx, "missing")
	assert.True(t, errors.Is(err, ErrConversationNotFound))

	require.NoError(t, repo.ClearAll(ctx))
	assert.Empty(t, repo.Conversations.List())
}

func TestRepository_Metas(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	repo := NewRepository(b, quietLogger())

	first := repo.Conversations.Create("first", "")
	second := repo.Conversations.Create("second", "")
	require.NoError(t, repo.Messages.Add(model.NewUserMessage(first.ID, "u", "an opening question", testNow)))
	require.NoError(t, repo.Messages.Add(model.NewAgentMessage(first.ID, first.AgentID, testNow)))

	metas := repo.Metas()
	require.Len(t, metas, 2)
	// Newest first
	assert.Equal(t, second.ID, metas[0].ID)
	assert.Equal(t, first.ID, metas[1].ID)
	assert.Equal(t, 2, metas[1].MessageCount)
	assert.True(t, metas[1].Loading)
	assert.Equal(t, "an opening question", metas[1].Preview)
}

func TestRepository_OpenAssignsMissingMessageIDs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	require.NoError(t, err)

	old := `{
		"schema_version": 1,
		"conversation": {"id": "legacy", "title": "old", "agentId": "sql-agent"},
		"messages": [
			{"id": "u", "conversationId": "legacy", "creatorRole": "user", "content": "first", "status": "DONE"},
			{"conversationId": "legacy", "creatorRole": "agent", "content": "second", "status": "DONE"},
			{"id": "u2", "conversationId": "legacy", "creatorRole": "user", "content": "third", "status": "DONE"}
		]
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "legacy.json"), []byte(old), 0600))

	repo, report, err := Open(ctx, b, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Loaded)
	assert.Empty(t, report.Skipped)

	msgs := repo.Messages.ListByConversation("legacy")
	require.Len(t, msgs, 3)
	assert.NotEmpty(t, msgs[1].ID)
	assert.Equal(t, "second", msgs[1].Content)

	// A later save keeps every message
	require.NoError(t, repo.SaveConversation(ctx, "legacy"))
	blob, err := b.Load(ctx, "legacy")
	require.NoError(t, err)
	snap, migrated, err := DecodeSnapshot(blob)
	require.NoError(t, err)
	assert.False(t, migrated)
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, []string{"first", "second", "third"},
		[]string{snap.Messages[0].Content, snap.Messages[1].Content, snap.Messages[2].Content})
}

func TestRepository_OpenSkipsSnapshotAtomically(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	require.NoError(t, err)

	// The second message reuses an id already loaded from "a-good", so
	// "b-bad" cannot be installed.
	good := `{"schema_version": 2, "conversation": {"id": "a-good"}, "messages": [
		{"id": "m1", "conversationId": "a-good", "creatorRole": "user", "content": "kept", "status": "DONE", "events": []}
	]}`
	bad := `{"schema_version": 2, "conversation": {"id": "b-bad"}, "messages": [
		{"id": "m2", "conversationId": "b-bad", "creatorRole": "user", "content": "q", "status": "DONE", "events": []},
		{"id": "m1", "conversationId": "b-bad", "creatorRole": "agent", "content": "a", "status": "DONE", "events": []}
	]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a-good.json"), []byte(good), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b-bad.json"), []byte(bad), 0600))

	repo, report, err := Open(ctx, b, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Loaded)
	assert.Equal(t, []string{"b-bad"}, report.Skipped)

	assert.False(t, repo.Conversations.Exists("b-bad"))
	_, ok := repo.Messages.Get("m2")
	assert.False(t, ok, "no message of a skipped snapshot stays in memory")
	msg, ok := repo.Messages.Get("m1")
	require.True(t, ok)
	assert.Equal(t, "a-good", msg.ConversationID)

	// The skipped snapshot cannot be overwritten from memory
	assert.True(t, errors.Is(repo.SaveConversation(ctx, "b-bad"), ErrConversationNotFound))
	data, err := os.ReadFile(filepath.Join(dir, "b-bad.json"))
	require.NoError(t, err)
	assert.Equal(t, bad, string(data))
}

// =============================================================================
// QUERY CACHE TESTS
// =============================================================================

func TestQueryStore(t *testing.T) {
	store := NewQueryStore()
	assert.ErrorIs(t, store.Put(&model.QueryResult{Statement: "SELECT 1"}), ErrInvalidID)

	first := &model.QueryResult{ConversationID: "c1", MessageID: "m1", Statement: "SELECT 1",
		Columns: []string{"n"}, Rows: [][]string{{"1"}}, CreatedAt: testNow}
	require.NoError(t, store.Put(first))
	require.NoError(t, store.Put(&model.QueryResult{ConversationID: "c2", MessageID: "m2", Statement: "SELECT 2", CreatedAt: testNow}))

	got, ok := store.Get("c1", "m1", "SELECT 1")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"n": "1"}, got.FirstRow())

	// Reads are copies
	got.Rows[0][0] = "changed"
	again, _ := store.Get("c1", "m1", "SELECT 1")
	assert.Equal(t, "1", again.Rows[0][0])

	_, ok = store.Get("c1", "m1", "SELECT 2")
	assert.False(t, ok)

	assert.Len(t, store.ListByConversation("c1"), 1)
	assert.Equal(t, 1, store.RemoveConversation("c1"))
	assert.Empty(t, store.ListByConversation("c1"))

	store.Reset()
	assert.Empty(t, store.ListByConversation("c2"))
}

func TestRepository_QueriesPersistWithConversation(t *testing.T) {
	ctx := context.Background()
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			repo, _, err := Open(ctx, open(t, dir), quietLogger())
			require.NoError(t, err)

			conv := repo.Conversations.Create("sql", model.SQLAgentID)
			agent := model.NewAgentMessage(conv.ID, conv.AgentID, testNow)
			agent.Status = model.StatusDone
			require.NoError(t, repo.Messages.Add(agent))
			require.NoError(t, repo.Queries.Put(&model.QueryResult{
				ConversationID: conv.ID, MessageID: agent.ID, Statement: "SELECT 42 AS answer",
				Columns: []string{"answer"}, Rows: [][]string{{"42"}}, CreatedAt: testNow,
			}))
			require.NoError(t, repo.SaveConversation(ctx, conv.ID))
			require.NoError(t, repo.Close())

			repo, _, err = Open(ctx, open(t, dir), quietLogger())
			require.NoError(t, err)
			defer repo.Close()

			got, ok := repo.Queries.Get(conv.ID, agent.ID, "SELECT 42 AS answer")
			require.True(t, ok)
			assert.Equal(t, [][]string{{"42"}}, got.Rows)

			// Clearing drops the results of removed messages
			_, err = repo.ClearConversation(ctx, conv.ID)
			require.NoError(t, err)
			assert.Empty(t, repo.Queries.ListByConversation(conv.ID))
		})
	}
}

// =============================================================================
// RELOAD TESTS
// =============================================================================

func TestRepository_Reload(t *testing.T) {
	ctx := context.Background()
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			b := open(t, dir)
			repo, _, err := Open(ctx, b, quietLogger())
			require.NoError(t, err)
			defer repo.Close()

			conv := repo.Conversations.Create("shared", "")
			require.NoError(t, repo.Messages.Add(model.NewUserMessage(conv.ID, "u", "mine", testNow)))
			require.NoError(t, repo.SaveConversation(ctx, conv.ID))

			// Our own write is not reloaded
			outcome, err := repo.Reload(ctx, conv.ID)
			require.NoError(t, err)
			assert.Equal(t, ReloadUnchanged, outcome)

			// Another process appends a message
			snap, err := repo.Snapshot(conv.ID)
			require.NoError(t, err)
			snap.Messages = append(snap.Messages, model.NewUserMessage(conv.ID, "u", "theirs", testNow))
			blob, err := EncodeSnapshot(snap)
			require.NoError(t, err)
			require.NoError(t, b.Save(ctx, conv.ID, blob))

			outcome, err = repo.Reload(ctx, conv.ID)
			require.NoError(t, err)
			assert.Equal(t, ReloadUpdated, outcome)
			msgs := repo.Messages.ListByConversation(conv.ID)
			require.Len(t, msgs, 2)
			assert.Equal(t, "theirs", msgs[1].Content)
			current, ok := repo.Conversations.Current()
			require.True(t, ok)
			assert.Equal(t, conv.ID, current.ID, "reload keeps the current conversation")

			// A broken write leaves memory alone
			require.NoError(t, b.Save(ctx, conv.ID, []byte("{")))
			_, err = repo.Reload(ctx, conv.ID)
			assert.Error(t, err)
			assert.Len(t, repo.Messages.ListByConversation(conv.ID), 2)

			// A conversation with a message in flight is left alone
			require.NoError(t, repo.Messages.Add(model.NewAgentMessage(conv.ID, conv.AgentID, testNow)))
			outcome, err = repo.Reload(ctx, conv.ID)
			require.NoError(t, err)
			assert.Equal(t, ReloadBusy, outcome)
			repo.Messages.RemoveConversation(conv.ID)

			// Deleted elsewhere
			require.NoError(t, b.Delete(ctx, conv.ID))
			outcome, err = repo.Reload(ctx, conv.ID)
			require.NoError(t, err)
			assert.Equal(t, ReloadRemoved, outcome)
			assert.False(t, repo.Conversations.Exists(conv.ID))

			outcome, err = repo.Reload(ctx, conv.ID)
			require.NoError(t, err)
			assert.Equal(t, ReloadUnchanged, outcome)
		})
	}
}

func TestRepository_ReloadRestoresOnInstallFailure(t *testing.T) {
	ctx := context.Background()
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	repo := NewRepository(b, quietLogger())

	other := repo.Conversations.Create("other", "")
	taken := model.NewUserMessage(other.ID, "u", "taken", testNow)
	require.NoError(t, repo.Messages.Add(taken))

	conv := repo.Conversations.Create("target", "")
	require.NoError(t, repo.Messages.Add(model.NewUserMessage(conv.ID, "u", "original", testNow)))
	require.NoError(t, repo.SaveConversation(ctx, conv.ID))

	// The new snapshot reuses a message id owned by another conversation
	clash := taken.Clone()
	clash.ConversationID = conv.ID
	blob, err := EncodeSnapshot(&Snapshot{Conversation: conv, Messages: []*model.Message{
		model.NewUserMessage(conv.ID, "u", "fresh", testNow), clash,
	}})
	require.NoError(t, err)
	require.NoError(t, b.Save(ctx, conv.ID, blob))

	_, err = repo.Reload(ctx, conv.ID)
	assert.ErrorIs(t, err, ErrDuplicateMessage)

	msgs := repo.Messages.ListByConversation(conv.ID)
	require.Len(t, msgs, 1)
	assert.Equal(t, "original", msgs[0].Content)
	assert.Equal(t, 1, repo.Messages.Count(other.ID))
}
