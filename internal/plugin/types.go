// Package plugin runs out-of-process plugins that react to recognized signs.
//
// A plugin is a directory holding a plugin.json manifest and an executable.
// The executable receives one JSON [Request] on stdin and answers with one
// JSON [Response] on stdout.
package plugin

import "encoding/json"

// Manifest describes a plugin's metadata and the actions it accepts.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Actions      []string        `json:"actions"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Supports reports whether the manifest lists action. A manifest without
// actions accepts any.
func (m Manifest) Supports(action string) bool {
	if len(m.Actions) == 0 {
		return true
	}
	for _, a := range m.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Request is sent to a plugin for every recognized word it is bound to.
type Request struct {
	Action      string          `json:"action"`
	Word        string          `json:"word"`
	DisplayName string          `json:"display_name"`
	Confidence  float64         `json:"confidence"`
	SessionID   string          `json:"session_id,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
	Params      json.RawMessage `json:"params,omitempty"`
}

// Response is the answer a plugin writes to stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin is a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
