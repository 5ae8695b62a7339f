// Package tui draws a quiz session on a terminal and turns keys into session
// commands.
package tui

import "github.com/filiup/quizsession/internal/session"

// CommandKind is what a key asks the session to do.
type CommandKind int

const (
	CmdNone CommandKind = iota
	CmdSelect
	CmdNext
	CmdPrev
	CmdSubmit
	CmdQuit
)

// Command is a decoded key.
type Command struct {
	Kind   CommandKind
	Option int // for CmdSelect, zero-based
}

// KeyCommand maps a key to a command for the current snapshot. Answer keys are
// digits 1-9 or letters a-h; q quits only once the attempt is over.
func KeyCommand(key string, s session.Snapshot) Command {
	switch key {
	case "quit", "ctrl+c":
		// Delivered only when lockdown lets it through.
		return Command{Kind: CmdQuit}
	case "q", "esc":
		if !s.Interactive() && !s.Submitting {
			return Command{Kind: CmdQuit}
		}
		return Command{}
	}

	if !s.Interactive() {
		return Command{}
	}

	switch key {
	case "right", "n", "tab", "enter":
		return Command{Kind: CmdNext}
	case "left", "p", "backspace":
		return Command{Kind: CmdPrev}
	case "s":
		return Command{Kind: CmdSubmit}
	}

	if len(key) != 1 {
		return Command{}
	}
	opt := -1
	switch c := key[0]; {
	case c >= '1' && c <= '9':
		opt = int(c - '1')
	case c >= 'a' && c <= 'h':
		opt = int(c - 'a')
	case c >= 'A' && c <= 'H':
		opt = int(c - 'A')
	}
	q := s.CurrentQuestion()
	if opt < 0 || q == nil || opt >= len(q.Options) {
		return Command{}
	}
	return Command{Kind: CmdSelect, Option: opt}
}
