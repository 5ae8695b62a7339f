package proctor

import (
	"sync"
	"testing"
	"time"

	"github.com/filiup/quizsession/internal/model"
	"github.com/rs/zerolog"
)

func TestNormalizeKey(t *testing.T) {
	cases := map[string]string{
		"ctrl+shift+i": "Ctrl+Shift+I",
		"Shift+Ctrl+I": "Ctrl+Shift+I",
		"alt+tab":      "Alt+Tab",
		"cmd+w":        "Meta+W",
		"f12":          "F12",
		"Ctrl++":       "Ctrl++",
	}
	for in, want := range cases {
		if got := NormalizeKey(in); got != want {
			t.Fatalf("NormalizeKey(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestDecode(t *testing.T) {
	in := Decode([]byte("a\x03\r\x1b[C\x1b[O\x1b\t\x1b[200~secret\x1b[201~"))

	if len(in) != 7 {
		t.Fatalf("expected 7 inputs, got %d: %+v", len(in), in)
	}
	if in[0].Key != "a" || in[0].Event != nil {
		t.Fatalf("plain key: %+v", in[0])
	}
	if in[1].Key != "ctrl+c" || in[1].Event == nil || in[1].Event.Type != EventCopy {
		t.Fatalf("ctrl+c must be a copy event: %+v", in[1])
	}
	if in[2].Key != "enter" || in[3].Key != "right" {
		t.Fatalf("navigation keys: %+v %+v", in[2], in[3])
	}
	if in[4].Event == nil || in[4].Event.Type != EventFullscreenExit {
		t.Fatalf("focus loss must leave fullscreen: %+v", in[4])
	}
	if in[5].Event == nil || in[5].Event.Key != "Alt+Tab" {
		t.Fatalf("alt+tab: %+v", in[5])
	}
	if in[6].Event == nil || in[6].Event.Type != EventPaste || in[6].Key != "" {
		t.Fatalf("bracketed paste must be swallowed: %+v", in[6])
	}
}

func TestDecodeRightClick(t *testing.T) {
	in := Decode([]byte("\x1b[<2;10;5M\x1b[<2;10;5m\x1b[<0;1;1M"))
	if len(in) != 1 || in[0].Event.Type != EventContextMenu {
		t.Fatalf("expected one context menu event, got %+v", in)
	}
}

type report struct {
	kind     model.ViolationKind
	severity model.Severity
}

type recorder struct {
	mu      sync.Mutex
	reports []report
}

func (r *recorder) ReportViolation(kind model.ViolationKind, severity model.Severity, _ string) {
	r.mu.Lock()
	r.reports = append(r.reports, report{kind, severity})
	r.mu.Unlock()
}

type env struct {
	mu         sync.Mutex
	handler    Handler
	fullscreen int
	exits      int
}

func (e *env) Listen(h Handler) func() {
	e.mu.Lock()
	e.handler = h
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		e.handler = nil
		e.mu.Unlock()
	}
}

func (e *env) RequestFullscreen() error {
	e.mu.Lock()
	e.fullscreen++
	e.mu.Unlock()
	return nil
}

func (e *env) ExitFullscreen() error {
	e.mu.Lock()
	e.exits++
	e.mu.Unlock()
	return nil
}

func (e *env) fire(ev Event) Verdict {
	e.mu.Lock()
	h := e.handler
	e.mu.Unlock()
	if h == nil {
		return Allow
	}
	return h(ev)
}

func (e *env) fullscreenCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fullscreen
}

func TestGuardReportsAndBlocks(t *testing.T) {
	e := &env{}
	r := &recorder{}
	m := NewMonitor(e, Options{FullscreenRetry: 10 * time.Millisecond, Logger: zerolog.Nop()})
	g := m.Arm(r)

	if e.fullscreenCount() != 1 {
		t.Fatalf("arming must request fullscreen")
	}

	verdicts := []struct {
		ev   Event
		want Verdict
	}{
		{Event{Type: EventCopy}, Block},
		{Event{Type: EventKeyCombo, Key: "ctrl+shift+i"}, Block},
		{Event{Type: EventKeyCombo, Key: "A"}, Allow},
		{Event{Type: EventContextMenu}, Block},
		{Event{Type: EventBeforeUnload}, Block},
		{Event{Type: EventFullscreenExit}, Allow},
	}
	for _, v := range verdicts {
		if got := e.fire(v.ev); got != v.want {
			t.Fatalf("%s %q: expected verdict %d, got %d", v.ev.Type, v.ev.Key, v.want, got)
		}
	}

	r.mu.Lock()
	got := append([]report(nil), r.reports...)
	r.mu.Unlock()
	want := []report{
		{model.ViolationCopy, model.SeverityMedium},
		{model.ViolationBlockedShortcut, model.SeverityMedium},
		{model.ViolationContextMenu, model.SeverityLow},
		{model.ViolationFullscreenExit, model.SeverityHigh},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d reports, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("report %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for e.fullscreenCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if e.fullscreenCount() != 2 {
		t.Fatalf("fullscreen must be requested again after an exit")
	}

	g.Release()
	g.Release()
	if g.Active() || e.exits != 1 {
		t.Fatalf("release must be idempotent, exits=%d", e.exits)
	}
	if e.fire(Event{Type: EventCopy}) != Allow {
		t.Fatalf("a released guard lets events through")
	}
}
