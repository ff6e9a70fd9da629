// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders stored conversations to shareable documents.
//
// # Key Types
//
//   - Format: export format (Markdown, JSON)
//   - Exporter: converts a storage.Snapshot to one format
//   - Options: what the Markdown rendering includes
//
// # Supported Formats
//
//   - Markdown: front matter, reasoning quotes, tool calls and appendices
//   - JSON: the snapshot document the store itself writes
//
// # Usage
//
//	exp, err := export.New(export.FormatMarkdown, export.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	path, err := export.ExportToFile(snap, exp, dir, time.Now())
package export
