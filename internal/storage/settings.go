// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"sync"

	"github.com/jeranaias/agentchat/internal/model"
)

// SettingsStore holds the user settings.
type SettingsStore struct {
	mu sync.RWMutex
	s  model.Settings
}

// NewSettingsStore creates a store holding the default settings.
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{s: model.DefaultSettings()}
}

// Get returns a copy of the settings.
func (st *SettingsStore) Get() model.Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return copySettings(st.s)
}

// Replace swaps in loaded settings.
func (st *SettingsStore) Replace(s model.Settings) {
	st.mu.Lock()
	st.s = copySettings(s)
	if st.s.Theme == "" {
		st.s.Theme = model.ThemeSystem
	}
	st.mu.Unlock()
}

// SetTheme changes the theme. The version is not bumped; the theme is
// never sent to the agent.
func (st *SettingsStore) SetTheme(theme model.Theme) {
	st.mu.Lock()
	st.s.Theme = theme
	st.mu.Unlock()
}

// SetSetting merges data into the settings and bumps the version.
func (st *SettingsStore) SetSetting(data map[string]any) model.Settings {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.s.Data == nil {
		st.s.Data = map[string]any{}
	}
	for k, v := range data {
		st.s.Data[k] = v
	}
	st.s.Version++
	return copySettings(st.s)
}

func copySettings(s model.Settings) model.Settings {
	data := make(map[string]any, len(s.Data))
	for k, v := range s.Data {
		data[k] = v
	}
	s.Data = data
	return s
}
