package proctor

import (
	"bytes"
	"strings"
)

// Input is one decoded unit of terminal input: either a lockdown event or a
// plain key for the UI. Key holds the UI name ("a", "enter", "left").
type Input struct {
	Event *Event
	Key   string
}

// Terminal control sequences.
const (
	seqEnterLockdown = "\x1b[?1049h\x1b[?1004h\x1b[?1000h\x1b[?1006h\x1b[?2004h\x1b[H\x1b[2J"
	seqLeaveLockdown = "\x1b[?2004l\x1b[?1006l\x1b[?1000l\x1b[?1004l\x1b[?1049l"

	pasteStart = "\x1b[200~"
	pasteEnd   = "\x1b[201~"
)

var ctrlKeys = map[byte]Input{
	0x03: {Event: &Event{Type: EventCopy}, Key: "ctrl+c"},
	0x18: {Event: &Event{Type: EventCut}, Key: "ctrl+x"},
	0x16: {Event: &Event{Type: EventPaste}, Key: "ctrl+v"},
	0x04: {Event: &Event{Type: EventKeyCombo, Key: "Ctrl+D"}, Key: "ctrl+d"},
	0x0e: {Event: &Event{Type: EventKeyCombo, Key: "Ctrl+N"}, Key: "ctrl+n"},
	0x12: {Event: &Event{Type: EventKeyCombo, Key: "Ctrl+R"}, Key: "ctrl+r"},
	0x14: {Event: &Event{Type: EventKeyCombo, Key: "Ctrl+T"}, Key: "ctrl+t"},
	0x15: {Event: &Event{Type: EventKeyCombo, Key: "Ctrl+U"}, Key: "ctrl+u"},
	0x17: {Event: &Event{Type: EventKeyCombo, Key: "Ctrl+W"}, Key: "ctrl+w"},
	0x1a: {Event: &Event{Type: EventKeyCombo, Key: "Ctrl+Z"}, Key: "ctrl+z"},
	0x1c: {Event: &Event{Type: EventKeyCombo, Key: "Ctrl+\\"}, Key: "ctrl+\\"},
}

var escSequences = map[string]Input{
	"\x1b[A":    {Key: "up"},
	"\x1b[B":    {Key: "down"},
	"\x1b[C":    {Key: "right"},
	"\x1b[D":    {Key: "left"},
	"\x1b[I":    {},
	"\x1b[O":    {Event: &Event{Type: EventFullscreenExit}},
	"\x1b[1;3D": {Event: &Event{Type: EventBackNavigation}, Key: "alt+left"},
	"\x1b[1;3C": {Event: &Event{Type: EventKeyCombo, Key: "Alt+Right"}, Key: "alt+right"},
	"\x1b[15~":  {Event: &Event{Type: EventKeyCombo, Key: "F5"}, Key: "f5"},
	"\x1b[23~":  {Event: &Event{Type: EventKeyCombo, Key: "F11"}, Key: "f11"},
	"\x1b[24~":  {Event: &Event{Type: EventKeyCombo, Key: "F12"}, Key: "f12"},
	"\x1b\t":    {Event: &Event{Type: EventKeyCombo, Key: "Alt+Tab"}, Key: "alt+tab"},
}

// Decode splits a chunk of raw terminal input into inputs. Escape sequences
// are expected to arrive whole within one read, which holds for keypresses.
func Decode(buf []byte) []Input {
	var out []Input
	for len(buf) > 0 {
		// Bracketed paste: the pasted text is swallowed.
		if bytes.HasPrefix(buf, []byte(pasteStart)) {
			end := bytes.Index(buf, []byte(pasteEnd))
			if end < 0 {
				buf = nil
			} else {
				buf = buf[end+len(pasteEnd):]
			}
			out = append(out, Input{Event: &Event{Type: EventPaste}})
			continue
		}

		if buf[0] == 0x1b {
			in, n := decodeEscape(buf)
			buf = buf[n:]
			if in.Event != nil || in.Key != "" {
				out = append(out, in)
			}
			continue
		}

		b := buf[0]
		buf = buf[1:]
		switch {
		case ctrlKeys[b].Key != "":
			in := ctrlKeys[b]
			ev := *in.Event
			out = append(out, Input{Event: &ev, Key: in.Key})
		case b == '\r' || b == '\n':
			out = append(out, Input{Key: "enter"})
		case b == '\t':
			out = append(out, Input{Key: "tab"})
		case b == 0x7f || b == 0x08:
			out = append(out, Input{Key: "backspace"})
		case b >= 0x20 && b < 0x7f:
			out = append(out, Input{Key: string(b)})
		}
	}
	return out
}

func decodeEscape(buf []byte) (Input, int) {
	if len(buf) == 1 {
		return Input{Key: "esc"}, 1
	}

	// SGR mouse report: ESC [ < b ; x ; y (M|m). Button 2 press is a right click.
	if bytes.HasPrefix(buf, []byte("\x1b[<")) {
		end := bytes.IndexAny(buf, "Mm")
		if end < 0 {
			return Input{}, len(buf)
		}
		report := string(buf[3:end])
		pressed := buf[end] == 'M'
		if pressed && strings.HasPrefix(report, "2;") {
			return Input{Event: &Event{Type: EventContextMenu}}, end + 1
		}
		return Input{}, end + 1
	}

	for seq, in := range escSequences {
		if bytes.HasPrefix(buf, []byte(seq)) {
			if in.Event != nil {
				ev := *in.Event
				in.Event = &ev
			}
			return in, len(seq)
		}
	}

	// Alt+<key> arrives as ESC followed by the key.
	if buf[1] != '[' && buf[1] != 'O' {
		return Input{Event: &Event{Type: EventKeyCombo, Key: "Alt+" + string(buf[1])}}, 2
	}

	// Unknown CSI/SS3 sequence: skip to its final byte.
	for i := 2; i < len(buf); i++ {
		if buf[i] >= 0x40 && buf[i] <= 0x7e {
			return Input{}, i + 1
		}
	}
	return Input{}, len(buf)
}
