package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
)

// Commands that accept --tui.
const (
	ViewDecode  = "decode"
	ViewConsume = "consume"
)

// IsTUISupported returns true if the command supports TUI mode.
func IsTUISupported(command string) bool {
	switch command {
	case ViewDecode, ViewConsume:
		return true
	default:
		return false
	}
}

// SupportedTUIViews returns the commands that support TUI.
func SupportedTUIViews() []string {
	return []string{ViewDecode, ViewConsume}
}

// CheckSupported returns an error naming command when it has no TUI.
func CheckSupported(command string) error {
	if !IsTUISupported(command) {
		return fmt.Errorf("--tui is not supported for %s", command)
	}
	return nil
}

type keyMap struct {
	Quit key.Binding
	Up   key.Binding
	Down key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "previous"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "next"),
	),
}
