// Package proctor watches the quiz environment for attempts to leave the
// locked-down context and reports them as violations. It never touches quiz
// state itself.
package proctor

import (
	"strings"
	"sync"
	"time"

	"github.com/filiup/quizsession/internal/model"
	"github.com/rs/zerolog"
)

// EventType classifies an environment event.
type EventType int

const (
	EventFullscreenExit EventType = iota + 1
	EventKeyCombo
	EventContextMenu
	EventCopy
	EventCut
	EventPaste
	EventBackNavigation
	EventBeforeUnload
)

func (t EventType) String() string {
	switch t {
	case EventFullscreenExit:
		return "fullscreen_exit"
	case EventKeyCombo:
		return "key_combo"
	case EventContextMenu:
		return "context_menu"
	case EventCopy:
		return "copy"
	case EventCut:
		return "cut"
	case EventPaste:
		return "paste"
	case EventBackNavigation:
		return "back_navigation"
	case EventBeforeUnload:
		return "before_unload"
	default:
		return "unknown"
	}
}

// Event is something the environment observed.
type Event struct {
	Type EventType
	// Key is the normalized combination for EventKeyCombo, e.g. "Ctrl+Shift+I".
	Key string
}

// Verdict tells the environment whether to let an event through.
type Verdict int

const (
	Allow Verdict = iota
	Block
)

// Handler receives environment events while registered.
type Handler func(Event) Verdict

// Environment is the host the quiz runs in (a browser tab, a terminal).
type Environment interface {
	// Listen registers h until the returned function is called.
	Listen(h Handler) (remove func())
	RequestFullscreen() error
	ExitFullscreen() error
}

// Reporter receives violations. The quiz session implements it.
type Reporter interface {
	ReportViolation(kind model.ViolationKind, severity model.Severity, description string)
}

// DefaultBlockedKeys are the combinations that switch tabs or windows, reload,
// or open developer tools.
var DefaultBlockedKeys = []string{
	"Alt+Tab", "Alt+F4", "Alt+Left", "Alt+Right",
	"Ctrl+Tab", "Ctrl+Shift+Tab", "Ctrl+W", "Ctrl+T", "Ctrl+N", "Ctrl+Shift+N",
	"Ctrl+R", "Ctrl+Shift+R", "F5", "F11", "F12",
	"Ctrl+Shift+I", "Ctrl+Shift+J", "Ctrl+Shift+C", "Ctrl+U",
	"Ctrl+Z", "Ctrl+\\", "Ctrl+D", "Meta",
}

// Options tune a Monitor.
type Options struct {
	// FullscreenRetry is the delay before fullscreen is requested again after an exit.
	FullscreenRetry time.Duration
	// BlockedKeys overrides DefaultBlockedKeys.
	BlockedKeys []string
	Logger      zerolog.Logger
}

// Monitor arms lockdown listeners on an Environment.
type Monitor struct {
	env     Environment
	retry   time.Duration
	blocked map[string]bool
	log     zerolog.Logger
}

// NewMonitor creates a Monitor for env.
func NewMonitor(env Environment, opts Options) *Monitor {
	if opts.FullscreenRetry <= 0 {
		opts.FullscreenRetry = time.Second
	}
	keys := opts.BlockedKeys
	if keys == nil {
		keys = DefaultBlockedKeys
	}
	blocked := make(map[string]bool, len(keys))
	for _, k := range keys {
		blocked[NormalizeKey(k)] = true
	}
	return &Monitor{
		env:     env,
		retry:   opts.FullscreenRetry,
		blocked: blocked,
		log:     opts.Logger.With().Str("component", "proctor").Logger(),
	}
}

// Arm requests fullscreen and starts reporting violations to r until the
// returned Guard is released. A refused fullscreen request is logged only.
func (m *Monitor) Arm(r Reporter) *Guard {
	g := &Guard{m: m, r: r}
	g.remove = m.env.Listen(g.handle)

	if err := m.env.RequestFullscreen(); err != nil {
		m.log.Warn().Err(err).Msg("Fullscreen request refused")
	}
	m.log.Info().Msg("Lockdown armed")
	return g
}

// IsBlocked reports whether a key combination is cancelled while armed.
func (m *Monitor) IsBlocked(key string) bool {
	return m.blocked[NormalizeKey(key)]
}

// Guard is one armed lifetime of the monitor.
type Guard struct {
	m      *Monitor
	r      Reporter
	remove func()

	mu       sync.Mutex
	released bool
	retry    *time.Timer
}

// Active reports whether the guard still listens.
func (g *Guard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.released
}

// Release removes the listeners and leaves fullscreen. Safe to call more than once.
func (g *Guard) Release() {
	g.mu.Lock()
	if g.released {
		g.mu.Unlock()
		return
	}
	g.released = true
	if g.retry != nil {
		g.retry.Stop()
		g.retry = nil
	}
	remove := g.remove
	g.mu.Unlock()

	if remove != nil {
		remove()
	}
	if err := g.m.env.ExitFullscreen(); err != nil {
		g.m.log.Warn().Err(err).Msg("Exit fullscreen failed")
	}
	g.m.log.Info().Msg("Lockdown released")
}

func (g *Guard) handle(ev Event) Verdict {
	if !g.Active() {
		return Allow
	}

	switch ev.Type {
	case EventFullscreenExit:
		g.r.ReportViolation(model.ViolationFullscreenExit, model.SeverityHigh, "Left fullscreen mode")
		g.scheduleFullscreen()
		return Allow

	case EventKeyCombo:
		if !g.m.IsBlocked(ev.Key) {
			return Allow
		}
		g.r.ReportViolation(model.ViolationBlockedShortcut, model.SeverityMedium, "Blocked shortcut "+NormalizeKey(ev.Key))
		return Block

	case EventContextMenu:
		g.r.ReportViolation(model.ViolationContextMenu, model.SeverityLow, "Context menu opened")
		return Block

	case EventCopy:
		g.r.ReportViolation(model.ViolationCopy, model.SeverityMedium, "Copy attempted")
		return Block

	case EventCut:
		g.r.ReportViolation(model.ViolationCut, model.SeverityMedium, "Cut attempted")
		return Block

	case EventPaste:
		g.r.ReportViolation(model.ViolationPaste, model.SeverityMedium, "Paste attempted")
		return Block

	case EventBackNavigation, EventBeforeUnload:
		// Blocked, not counted.
		g.m.log.Warn().Str("event", ev.Type.String()).Msg("Navigation blocked during quiz")
		return Block
	}
	return Allow
}

func (g *Guard) scheduleFullscreen() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return
	}
	if g.retry != nil {
		g.retry.Stop()
	}
	g.retry = time.AfterFunc(g.m.retry, func() {
		if !g.Active() {
			return
		}
		if err := g.m.env.RequestFullscreen(); err != nil {
			g.m.log.Warn().Err(err).Msg("Fullscreen re-request refused")
		}
	})
}

// NormalizeKey canonicalizes a key combination: modifiers in Ctrl, Alt,
// Shift, Meta order, then the key, with single letters upper-cased.
func NormalizeKey(key string) string {
	parts := strings.Split(key, "+")
	var ctrl, alt, shift, meta bool
	var rest []string
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			// "Ctrl++" style: a literal plus as the final key.
			if i == len(parts)-1 && i > 0 {
				rest = append(rest, "+")
			}
			continue
		}
		switch strings.ToLower(p) {
		case "ctrl", "control":
			ctrl = true
		case "alt", "option":
			alt = true
		case "shift":
			shift = true
		case "meta", "cmd", "command", "super", "win":
			meta = true
		default:
			if len(p) == 1 {
				p = strings.ToUpper(p)
			} else {
				p = strings.ToUpper(p[:1]) + p[1:]
			}
			rest = append(rest, p)
		}
	}

	out := make([]string, 0, 4+len(rest))
	if ctrl {
		out = append(out, "Ctrl")
	}
	if alt {
		out = append(out, "Alt")
	}
	if shift {
		out = append(out, "Shift")
	}
	if meta {
		out = append(out, "Meta")
	}
	out = append(out, rest...)
	return strings.Join(out, "+")
}
