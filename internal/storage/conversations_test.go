// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/agentchat/internal/model"
)

var testNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

// =============================================================================
// CONVERSATION STORE TESTS
// =============================================================================

func TestConversationStore_Create(t *testing.T) {
	store := NewConversationStore()
	store.Now = func() time.Time { return testNow }

	conv := store.Create("", "")
	if conv.Title != "09:26:53" {
		t.Errorf("Title = %q, want %q", conv.Title, "09:26:53")
	}
	if conv.AgentID != model.DefaultAgentID {
		t.Errorf("AgentID = %q, want %q", conv.AgentID, model.DefaultAgentID)
	}

	cur, ok := store.Current()
	if !ok || cur.ID != conv.ID {
		t.Errorf("new conversation should be current")
	}

	named := store.Create("  Quarterly numbers ", model.SQLAgentID)
	if named.Title != "Quarterly numbers" {
		t.Errorf("Title = %q, want trimmed title", named.Title)
	}
}

func TestConversationStore_ListOrder(t *testing.T) {
	store := NewConversationStore()
	tick := testNow
	store.Now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	a := store.Create("a", "")
	b := store.Create("b", "")
	older := &model.Conversation{ID: "old", Title: "old", CreatedAt: testNow.Add(-time.Hour)}
	if err := store.Put(older); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	list := store.List()
	want := []string{"old", a.ID, b.ID}
	if len(list) != len(want) {
		t.Fatalf("List returned %d conversations, want %d", len(list), len(want))
	}
	for i, id := range want {
		if list[i].ID != id {
			t.Errorf("List[%d] = %s, want %s", i, list[i].ID, id)
		}
	}
}

func TestConversationStore_UpdateAndDelete(t *testing.T) {
	store := NewConversationStore()
	conv := store.Create("draft", "")

	title := "final"
	if err := store.Update(conv.ID, ConversationPatch{Title: &title}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, err := store.Get(conv.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Title != "final" {
		t.Errorf("Title = %q, want final", got.Title)
	}

	// Returned copies must not alias the stored conversation
	got.Title = "mutated"
	again, _ := store.Get(conv.ID)
	if again.Title != "final" {
		t.Errorf("Get returned an alias of stored conversation")
	}

	if err := store.Delete(conv.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := store.Current(); ok {
		t.Error("deleting the current conversation should clear the selection")
	}
	if err := store.Delete(conv.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("second Delete = %v, want ErrConversationNotFound", err)
	}
	if err := store.Update("missing", ConversationPatch{Title: &title}); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("Update missing = %v, want ErrConversationNotFound", err)
	}
}

func TestConversationStore_Resolve(t *testing.T) {
	store := NewConversationStore()
	for _, id := range []string{"abc123", "abd456", "xyz789"} {
		if err := store.Put(&model.Conversation{ID: id}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{"abc123", "abc123", false},
		{"x", "xyz789", false},
		{"abc", "abc123", false},
		{"ab", "", true},
		{"nope", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			conv, err := store.Resolve(tt.ref)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Resolve(%q) should fail", tt.ref)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) failed: %v", tt.ref, err)
			}
			if conv.ID != tt.want {
				t.Errorf("Resolve(%q) = %s, want %s", tt.ref, conv.ID, tt.want)
			}
		})
	}
}

func TestConversationStore_SetCurrent(t *testing.T) {
	store := NewConversationStore()
	a := store.Create("a", "")
	store.Create("b", "")

	if err := store.SetCurrent(a.ID); err != nil {
		t.Fatalf("SetCurrent failed: %v", err)
	}
	cur, _ := store.Current()
	if cur.ID != a.ID {
		t.Errorf("Current = %s, want %s", cur.ID, a.ID)
	}
	if err := store.SetCurrent("missing"); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("SetCurrent missing = %v", err)
	}
	if err := store.SetCurrent(""); err != nil {
		t.Fatalf("SetCurrent clear failed: %v", err)
	}
	if _, ok := store.Current(); ok {
		t.Error("Current should be empty after clearing")
	}
}

// =============================================================================
// MESSAGE STORE TESTS
// =============================================================================

func TestMessageStore_SingleLoadingPerConversation(t *testing.T) {
	store := NewMessageStore()

	first := model.NewAgentMessage("c1", model.DefaultAgentID, testNow)
	if err := store.Add(first); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	second := model.NewAgentMessage("c1", model.DefaultAgentID, testNow)
	if err := store.Add(second); !errors.Is(err, ErrConversationBusy) {
		t.Errorf("second LOADING Add = %v, want ErrConversationBusy", err)
	}

	other := model.NewAgentMessage("c2", model.DefaultAgentID, testNow)
	if err := store.Add(other); err != nil {
		t.Errorf("LOADING in another conversation should be allowed: %v", err)
	}

	if err := store.Add(first); !errors.Is(err, ErrDuplicateMessage) {
		t.Errorf("duplicate Add = %v, want ErrDuplicateMessage", err)
	}

	store.Update(first.ID, MessagePatch{Status: StatusPtr(model.StatusDone)})
	if err := store.Add(second); err != nil {
		t.Errorf("Add after previous completed failed: %v", err)
	}
}

func TestMessageStore_UpdateMissingIsNoop(t *testing.T) {
	store := NewMessageStore()
	if store.Update("missing", MessagePatch{Content: StringPtr("x")}) {
		t.Error("Update on a missing id should report false")
	}
	if store.Count("") != 0 {
		t.Error("Update on a missing id should not create a message")
	}
}

func TestMessageStore_TerminalIsFinal(t *testing.T) {
	store := NewMessageStore()
	msg := model.NewAgentMessage("c1", model.DefaultAgentID, testNow)
	if err := store.Add(msg); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	store.Update(msg.ID, MessagePatch{
		Content: StringPtr("partial"),
		Status:  StatusPtr(model.StatusCancelled),
	})

	// A late record must not change content, events or status
	store.Update(msg.ID, MessagePatch{
		Content:      StringPtr("late"),
		Status:       StatusPtr(model.StatusDone),
		AppendEvents: []model.MessageEvent{model.NewEvent("x", model.DataTypeLLM, nil)},
	})

	got, _ := store.Get(msg.ID)
	if got.Status != model.StatusCancelled {
		t.Errorf("Status = %s, want CANCELLED", got.Status)
	}
	if got.Content != "partial" {
		t.Errorf("Content = %q, want partial", got.Content)
	}
	if len(got.Events) != 0 {
		t.Errorf("Events = %d, want 0", len(got.Events))
	}

	score := 1.0
	if err := store.AttachFeedback(msg.ID, &model.Feedback{ID: "fb", Score: &score}); err != nil {
		t.Fatalf("AttachFeedback failed: %v", err)
	}
	got, _ = store.Get(msg.ID)
	if got.Feedback == nil || got.Feedback.ID != "fb" {
		t.Error("feedback should attach to a terminal message")
	}

	if err := store.AttachFeedback("missing", &model.Feedback{}); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("AttachFeedback missing = %v, want ErrMessageNotFound", err)
	}
}

func TestMessageStore_GetReturnsCopy(t *testing.T) {
	store := NewMessageStore()
	msg := model.NewAgentMessage("c1", model.DefaultAgentID, testNow)
	store.Add(msg)
	store.Update(msg.ID, MessagePatch{AppendEvents: []model.MessageEvent{
		model.NewEvent("step", model.DataTypeAction, map[string]string{model.MetaStep: "1"}),
	}})

	got, _ := store.Get(msg.ID)
	got.Events[0].Metadata[model.MetaStep] = "99"
	got.Events = append(got.Events, model.MessageEvent{})

	again, _ := store.Get(msg.ID)
	if len(again.Events) != 1 || again.Events[0].Metadata[model.MetaStep] != "1" {
		t.Error("Get should return a deep copy")
	}
}

func TestMessageStore_ClearAndList(t *testing.T) {
	store := NewMessageStore()
	for i, conv := range []string{"c1", "c2", "c1", "c2"} {
		m := model.NewUserMessage(conv, "u", string(rune('a'+i)), testNow)
		if err := store.Add(m); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	c1 := store.ListByConversation("c1")
	if len(c1) != 2 || c1[0].Content != "a" || c1[1].Content != "c" {
		t.Errorf("ListByConversation(c1) out of order: %v", c1)
	}

	removed := store.RemoveConversation("c2")
	if removed != 2 {
		t.Errorf("RemoveConversation removed %d, want 2", removed)
	}
	if len(store.All()) != 2 {
		t.Errorf("All returned %d, want 2", len(store.All()))
	}
}

func TestMessageStore_Resolve(t *testing.T) {
	store := NewMessageStore()
	for _, id := range []string{"ab12", "ab34", "cd56"} {
		m := model.NewUserMessage("c1", "u", id, testNow)
		m.ID = id
		if err := store.Add(m); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	if msg, err := store.Resolve("cd"); err != nil || msg.ID != "cd56" {
		t.Errorf("Resolve(cd) = %v, %v", msg, err)
	}
	if msg, err := store.Resolve("ab12"); err != nil || msg.ID != "ab12" {
		t.Errorf("Resolve(ab12) = %v, %v", msg, err)
	}
	if _, err := store.Resolve("ab"); err == nil {
		t.Error("ambiguous prefix should fail")
	}
	if _, err := store.Resolve("zz"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("Resolve(zz) = %v, want ErrMessageNotFound", err)
	}
}

func TestMessageStore_Observers(t *testing.T) {
	store := NewMessageStore()

	var (
		mu      sync.Mutex
		changes []Change
	)
	unsubscribe := store.Subscribe(func(c Change) {
		// Observers run outside the lock, so reads must not deadlock
		store.Get(c.MessageID)
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})

	msg := model.NewAgentMessage("c1", model.DefaultAgentID, testNow)
	store.Add(msg)
	store.Update(msg.ID, MessagePatch{Status: StatusPtr(model.StatusDone)})
	store.RemoveConversation("c1")

	unsubscribe()
	unsubscribe()
	store.Add(model.NewUserMessage("c1", "u", "after", testNow))

	mu.Lock()
	defer mu.Unlock()
	wantKinds := []ChangeKind{ChangeAdded, ChangeUpdated, ChangeRemoved}
	if len(changes) != len(wantKinds) {
		t.Fatalf("got %d changes, want %d", len(changes), len(wantKinds))
	}
	for i, k := range wantKinds {
		if changes[i].Kind != k {
			t.Errorf("change %d = %s, want %s", i, changes[i].Kind, k)
		}
		if changes[i].ConversationID != "c1" {
			t.Errorf("change %d conversation = %q", i, changes[i].ConversationID)
		}
	}
	if changes[1].Status != model.StatusDone {
		t.Errorf("update change status = %s, want DONE", changes[1].Status)
	}
}

func TestMessageStore_ConcurrentUpdates(t *testing.T) {
	store := NewMessageStore()
	msg := model.NewAgentMessage("c1", model.DefaultAgentID, testNow)
	store.Add(msg)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Update(msg.ID, MessagePatch{AppendEvents: []model.MessageEvent{
				model.NewEvent("a", model.DataTypeAction, nil),
			}})
			store.ListByConversation("c1")
		}()
	}
	wg.Wait()

	got, _ := store.Get(msg.ID)
	if len(got.Events) != 50 {
		t.Errorf("Events = %d, want 50", len(got.Events))
	}
}

// =============================================================================
// SETTINGS STORE TESTS
// =============================================================================

func TestSettingsStore(t *testing.T) {
	store := NewSettingsStore()

	store.SetTheme(model.ThemeDark)
	if got := store.Get(); got.Theme != model.ThemeDark || got.Version != 0 {
		t.Errorf("SetTheme: got %+v, want dark theme at version 0", got)
	}

	s := store.SetSetting(map[string]any{"temperature": 0.2})
	if s.Version != 1 {
		t.Errorf("Version = %d, want 1", s.Version)
	}
	s = store.SetSetting(map[string]any{"model": "large"})
	if s.Version != 2 || len(s.Data) != 2 {
		t.Errorf("SetSetting should merge: got %+v", s)
	}

	s.Data["model"] = "mutated"
	if store.Get().Data["model"] != "large" {
		t.Error("Get should return a copy of the data map")
	}
}
