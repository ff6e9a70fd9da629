// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/agentchat/internal/model"
	"github.com/jeranaias/agentchat/internal/storage"
)

var exportTime = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func sampleSnapshot() *storage.Snapshot {
	created := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	conv := &model.Conversation{
		ID:           "conv-1",
		Title:        "Orders: weekly",
		AgentID:      model.DefaultAgentID,
		CreatedAt:    created,
		DatabaseName: "sales",
	}

	user := model.NewUserMessage(conv.ID, "me@example.com", "How many orders?", created)
	agent := model.NewAgentMessage(conv.ID, conv.AgentID, created.Add(time.Second))
	agent.Status = model.StatusDone
	agent.Content = "There were 12 orders."
	agent.Events = []model.MessageEvent{
		model.NewEvent("Thought: check the orders table", model.DataTypeLLM, nil),
		model.NewEvent("SELECT  count(*)\nFROM orders", model.DataTypeAction,
			map[string]string{model.MetaTool: "sql", model.MetaStep: "1"}),
		model.NewEvent("```sql\nSELECT count(*) FROM orders\n```", model.DataTypeAppendix,
			map[string]string{model.MetaTitle: "Query"}),
	}
	score := 1.0
	agent.Feedback = &model.Feedback{ID: "fb-1", Score: &score, Comment: "spot on"}

	return &storage.Snapshot{
		SchemaVersion: storage.CurrentSchemaVersion,
		Conversation:  conv,
		Messages:      []*model.Message{user, agent},
	}
}

func fixedOptions() *Options {
	opts := DefaultOptions()
	opts.Now = func() time.Time { return exportTime }
	return opts
}

// =============================================================================
// FORMAT TESTS
// =============================================================================

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatMarkdown, false},
		{"md", FormatMarkdown, false},
		{".MD", FormatMarkdown, false},
		{"markdown", FormatMarkdown, false},
		{"json", FormatJSON, false},
		{"html", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNew_UnknownFormat(t *testing.T) {
	if _, err := New(Format("pdf"), nil); err == nil {
		t.Error("expected error for unknown format")
	}
}

// =============================================================================
// MARKDOWN TESTS
// =============================================================================

func TestMarkdownExporter_Export(t *testing.T) {
	out, err := NewMarkdownExporter(fixedOptions()).Export(sampleSnapshot())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	md := string(out)

	for _, want := range []string{
		"title: \"Orders: weekly\"\n",
		"agent: general-bot\n",
		"exported: 2025-03-14T09:26:53Z\n",
		"generator: agentchat\n",
		"# Orders: weekly\n",
		"- **Database**: sales\n",
		"### You <sub>09:00:00</sub>\n\nHow many orders?",
		"### Agent <sub>09:00:01</sub>",
		"> check the orders table\n",
		"There were 12 orders.\n",
		"1. **sql**: `SELECT count(*) FROM orders`\n",
		"**Query**\n\n```sql\nSELECT count(*) FROM orders\n```",
		"<sub>Feedback: positive (spot on)</sub>",
		"*Exported from agentchat on March 14, 2025 at 9:26 AM*",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q\n%s", want, md)
		}
	}
}

func TestMarkdownExporter_StatusAndOptions(t *testing.T) {
	snap := sampleSnapshot()
	agent := snap.Messages[1]
	agent.Status = model.StatusFailed
	agent.Content = "agent unavailable"

	opts := fixedOptions()
	opts.IncludeMetadata = false
	opts.IncludeTimestamps = false
	opts.IncludeEvents = false

	out, err := NewMarkdownExporter(opts).Export(snap)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	md := string(out)

	if strings.HasPrefix(md, "---") {
		t.Error("front matter written without IncludeMetadata")
	}
	if !strings.Contains(md, "### Agent (failed)\n") || !strings.Contains(md, "agent unavailable") {
		t.Errorf("failed message not labelled:\n%s", md)
	}
	for _, absent := range []string{"<sub>09:", "**sql**", "```sql", "Feedback:"} {
		if strings.Contains(md, absent) {
			t.Errorf("markdown should not contain %q", absent)
		}
	}
}

func TestMarkdownExporter_Empty(t *testing.T) {
	snap := sampleSnapshot()
	snap.Messages = nil

	out, err := NewMarkdownExporter(fixedOptions()).Export(snap)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.Contains(string(out), "*No messages.*") {
		t.Error("empty conversation not noted")
	}
}

func TestExport_Invalid(t *testing.T) {
	for _, format := range []Format{FormatMarkdown, FormatJSON} {
		exp, err := New(format, nil)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := exp.Export(nil); err == nil {
			t.Errorf("%s: expected error for nil snapshot", format)
		}
		if _, err := exp.Export(&storage.Snapshot{Conversation: &model.Conversation{ID: "x"}}); err == nil {
			t.Errorf("%s: expected error for zero creation time", format)
		}
	}
}

// =============================================================================
// JSON TESTS
// =============================================================================

func TestJSONExporter_RoundTrip(t *testing.T) {
	snap := sampleSnapshot()
	out, err := NewJSONExporter(nil).Export(snap)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	back, migrated, err := storage.DecodeSnapshot(out)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if migrated {
		t.Error("exported snapshot should already be current")
	}
	if back.Conversation.Title != snap.Conversation.Title {
		t.Errorf("title = %q", back.Conversation.Title)
	}
	if len(back.Messages) != 2 || back.Messages[1].Content != "There were 12 orders." {
		t.Errorf("messages not preserved: %+v", back.Messages)
	}
}

// =============================================================================
// FILE TESTS
// =============================================================================

func TestExportToFile(t *testing.T) {
	dir := t.TempDir()
	exp := NewMarkdownExporter(fixedOptions())

	path, err := ExportToFile(sampleSnapshot(), exp, dir, exportTime)
	if err != nil {
		t.Fatalf("ExportToFile: %v", err)
	}

	want := filepath.Join(dir, "conversation_Orders-_weekly_20250314_092653.md")
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "# Orders: weekly") {
		t.Error("file content missing heading")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"simple", "simple"},
		{"a/b\\c", "a-b-c"},
		{"two words", "two_words"},
		{"   ", "conversation"},
		{strings.Repeat("é", 60), strings.Repeat("é", 50)},
	}

	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEscapeYAML(t *testing.T) {
	if got := escapeYAML("plain"); got != "plain" {
		t.Errorf("plain = %q", got)
	}
	if got := escapeYAML(`say "hi": now`); got != `"say \"hi\": now"` {
		t.Errorf("quoted = %q", got)
	}
}
