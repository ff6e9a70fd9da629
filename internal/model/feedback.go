// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// FeedbackKey is the key every user rating is recorded under.
const FeedbackKey = "user_feedback"

// Feedback is a rating the backend recorded for an agent run.
type Feedback struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Key        string    `json:"key"`
	Score      *float64  `json:"score,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Positive reports whether the rating is a thumbs up.
func (f *Feedback) Positive() bool {
	return f != nil && f.Score != nil && *f.Score > 0
}
