// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"github.com/jeranaias/agentchat/internal/storage"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports conversations as a storage snapshot.
// NOTE: JSON exports ignore the filtering options. The output is the same
// document the store writes, so it can be placed in a data directory as is.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// Export encodes the snapshot at the current schema version.
func (e *JSONExporter) Export(snap *storage.Snapshot) ([]byte, error) {
	if err := validate(snap); err != nil {
		return nil, err
	}
	return storage.EncodeSnapshot(snap)
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
