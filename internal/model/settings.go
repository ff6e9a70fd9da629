// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// Theme is the user's preferred color scheme.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// Settings are the user settings. Data is forwarded to the agent with every
// request; Version increases each time Data changes.
type Settings struct {
	Theme   Theme          `json:"theme"`
	Version int            `json:"version"`
	Data    map[string]any `json:"data"`
}

// UserSettings is the part of Settings sent on the wire.
type UserSettings struct {
	Version int            `json:"version"`
	Data    map[string]any `json:"data"`
}

// DefaultSettings returns the settings of a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Theme:   ThemeSystem,
		Version: 0,
		Data:    map[string]any{},
	}
}

// Wire returns the request payload for these settings.
func (s Settings) Wire() UserSettings {
	data := make(map[string]any, len(s.Data))
	for k, v := range s.Data {
		data[k] = v
	}
	return UserSettings{Version: s.Version, Data: data}
}
