package main

import "testing"

func TestTextFor(t *testing.T) {
	req := Request{Word: "thank_you", DisplayName: "Thank You"}

	tests := []struct {
		name string
		p    TypeParams
		want string
	}{
		{"display name", TypeParams{}, "Thank You"},
		{"raw word", TypeParams{Raw: true}, "thank you"},
		{"suffix", TypeParams{Suffix: " "}, "Thank You "},
		{"lower", TypeParams{Lower: true, Suffix: "."}, "thank you."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := textFor(req, tt.p); got != tt.want {
				t.Errorf("textFor() = %q, want %q", got, tt.want)
			}
		})
	}

	if got := textFor(Request{Word: "how_are_you"}, TypeParams{}); got != "how are you" {
		t.Errorf("textFor() without display name = %q", got)
	}
}

func TestAppleKeystroke(t *testing.T) {
	if got := appleKeystroke("c", []string{"cmd", "bogus"}); got != `tell application "System Events" to keystroke "c" using {command down}` {
		t.Errorf("appleKeystroke() = %q", got)
	}
	if got := appleKeystroke(`"`, nil); got != `tell application "System Events" to keystroke "\""` {
		t.Errorf("appleKeystroke() did not escape quote: %q", got)
	}
}

func TestXdoCombo(t *testing.T) {
	if got := xdoCombo("t", []string{"ctrl", "shift"}); got != "ctrl+shift+t" {
		t.Errorf("xdoCombo() = %q", got)
	}
	if got := xdoCombo("Return", nil); got != "Return" {
		t.Errorf("xdoCombo() = %q", got)
	}
}
