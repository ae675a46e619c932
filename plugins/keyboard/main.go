// Package main is a plugin that turns recognized signs into keystrokes.
//
// It types the recognized word into the focused window, or sends a fixed
// key or shortcut bound to a word. macOS uses AppleScript, Linux uses
// xdotool.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Request is the input written by the plugin executor.
type Request struct {
	Action      string          `json:"action"`
	Word        string          `json:"word"`
	DisplayName string          `json:"display_name"`
	Confidence  float64         `json:"confidence"`
	SessionID   string          `json:"session_id"`
	Params      json.RawMessage `json:"params"`
}

// Response is written back to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// TypeParams controls the type action.
type TypeParams struct {
	// Raw types the vocabulary word instead of its display name.
	Raw    bool   `json:"raw"`
	Suffix string `json:"suffix"`
	Lower  bool   `json:"lower"`
}

// KeystrokeParams defines parameters for keystroke and shortcut actions.
type KeystrokeParams struct {
	Key       string   `json:"key"`
	Modifiers []string `json:"modifiers"` // command, option, control, shift
}

// appleModifiers maps modifier names to AppleScript.
var appleModifiers = map[string]string{
	"command": "command down",
	"cmd":     "command down",
	"option":  "option down",
	"alt":     "option down",
	"control": "control down",
	"ctrl":    "control down",
	"shift":   "shift down",
}

// xdoModifiers maps modifier names to xdotool key names.
var xdoModifiers = map[string]string{
	"command": "super",
	"cmd":     "super",
	"option":  "alt",
	"alt":     "alt",
	"control": "ctrl",
	"ctrl":    "ctrl",
	"shift":   "shift",
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		reply(fmt.Errorf("decode request: %w", err), "")
		return
	}

	switch req.Action {
	case "type":
		text, err := typeText(req)
		reply(err, text)
	case "keystroke", "shortcut":
		reply(keystroke(req.Params), "")
	default:
		reply(fmt.Errorf("unknown action: %s", req.Action), "")
	}
}

// textFor builds the text the type action should enter for req.
func textFor(req Request, p TypeParams) string {
	text := req.DisplayName
	if p.Raw || text == "" {
		text = strings.ReplaceAll(req.Word, "_", " ")
	}
	if p.Lower {
		text = strings.ToLower(text)
	}
	return text + p.Suffix
}

func typeText(req Request) (string, error) {
	var p TypeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return "", fmt.Errorf("parse params: %w", err)
		}
	}
	if req.Word == "" {
		return "", fmt.Errorf("word is required")
	}

	text := textFor(req, p)
	switch runtime.GOOS {
	case "darwin":
		return text, run("osascript", "-e", fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, escapeAppleScript(text)))
	case "linux":
		return text, run("xdotool", "type", "--delay", "20", "--", text)
	}
	return "", fmt.Errorf("typing is not supported on %s", runtime.GOOS)
}

func keystroke(params json.RawMessage) error {
	var p KeystrokeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return fmt.Errorf("parse params: %w", err)
	}
	if p.Key == "" {
		return fmt.Errorf("key is required")
	}

	switch runtime.GOOS {
	case "darwin":
		return run("osascript", "-e", appleKeystroke(p.Key, p.Modifiers))
	case "linux":
		return run("xdotool", "key", "--", xdoCombo(p.Key, p.Modifiers))
	}
	return fmt.Errorf("keystrokes are not supported on %s", runtime.GOOS)
}

// appleKeystroke generates the AppleScript for key with modifiers.
func appleKeystroke(key string, modifiers []string) string {
	var mods []string
	for _, m := range modifiers {
		if am, ok := appleModifiers[strings.ToLower(m)]; ok {
			mods = append(mods, am)
		}
	}
	script := fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, escapeAppleScript(key))
	if len(mods) > 0 {
		script += " using {" + strings.Join(mods, ", ") + "}"
	}
	return script
}

// xdoCombo builds an xdotool key combination such as ctrl+shift+t.
func xdoCombo(key string, modifiers []string) string {
	parts := make([]string, 0, len(modifiers)+1)
	for _, m := range modifiers {
		if xm, ok := xdoModifiers[strings.ToLower(m)]; ok {
			parts = append(parts, xm)
		}
	}
	return strings.Join(append(parts, key), "+")
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

func run(name string, args ...string) error {
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func reply(err error, typed string) {
	resp := Response{Success: err == nil}
	if err != nil {
		resp.Error = err.Error()
	} else if typed != "" {
		resp.Data, _ = json.Marshal(map[string]string{"typed": typed})
	}
	_ = json.NewEncoder(os.Stdout).Encode(resp)
}
