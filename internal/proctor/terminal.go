package proctor

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Terminal is an Environment backed by an interactive terminal. Raw mode on
// the alternate screen stands in for fullscreen; focus loss reported by the
// terminal counts as leaving it. Input that is not blocked is forwarded on Keys.
type Terminal struct {
	in  *os.File
	out io.Writer
	log zerolog.Logger

	keys chan string

	mu         sync.Mutex
	handlers   map[int]Handler
	nextID     int
	state      *term.State
	fullscreen bool
	closed     bool
	sigs       chan os.Signal
}

// NewTerminal creates a Terminal reading in and drawing on out.
func NewTerminal(in *os.File, out io.Writer, log zerolog.Logger) *Terminal {
	return &Terminal{
		in:       in,
		out:      out,
		log:      log.With().Str("component", "terminal").Logger(),
		keys:     make(chan string, 64),
		handlers: make(map[int]Handler),
	}
}

// Start puts the terminal into raw mode and begins reading input. Termination
// signals are routed through the listeners as unload attempts.
func (t *Terminal) Start(ctx context.Context) error {
	fd := int(t.in.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("stdin is not a terminal")
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.state = state
	t.sigs = make(chan os.Signal, 1)
	t.mu.Unlock()

	signal.Notify(t.sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go t.readLoop()
	go t.signalLoop(ctx)
	return nil
}

// Size returns the terminal width and height.
func (t *Terminal) Size() (int, int, error) {
	return term.GetSize(int(t.in.Fd()))
}

// Keys delivers forwarded input. It is closed when input ends.
func (t *Terminal) Keys() <-chan string {
	return t.keys
}

// Listen implements Environment.
func (t *Terminal) Listen(h Handler) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.handlers[id] = h
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.handlers, id)
			t.mu.Unlock()
		})
	}
}

// RequestFullscreen switches to the alternate screen with focus, mouse and
// bracketed-paste reporting enabled.
func (t *Terminal) RequestFullscreen() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("terminal closed")
	}
	if _, err := io.WriteString(t.out, seqEnterLockdown); err != nil {
		return err
	}
	t.fullscreen = true
	return nil
}

// ExitFullscreen restores the normal screen.
func (t *Terminal) ExitFullscreen() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.fullscreen {
		return nil
	}
	t.fullscreen = false
	_, err := io.WriteString(t.out, seqLeaveLockdown)
	return err
}

// Close leaves fullscreen, restores the terminal mode and stops signal capture.
func (t *Terminal) Close() error {
	_ = t.ExitFullscreen()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.sigs != nil {
		signal.Stop(t.sigs)
	}
	if t.state != nil {
		return term.Restore(int(t.in.Fd()), t.state)
	}
	return nil
}

// Dispatch runs ev through the listeners. The event is blocked if any listener blocks it.
func (t *Terminal) Dispatch(ev Event) Verdict {
	t.mu.Lock()
	handlers := make([]Handler, 0, len(t.handlers))
	for _, h := range t.handlers {
		handlers = append(handlers, h)
	}
	t.mu.Unlock()

	verdict := Allow
	for _, h := range handlers {
		if h(ev) == Block {
			verdict = Block
		}
	}
	return verdict
}

func (t *Terminal) readLoop() {
	defer close(t.keys)
	buf := make([]byte, 256)
	for {
		n, err := t.in.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.log.Debug().Err(err).Msg("Input read stopped")
			}
			return
		}
		for _, in := range Decode(buf[:n]) {
			t.deliver(in)
		}
	}
}

func (t *Terminal) deliver(in Input) {
	if in.Event != nil && t.Dispatch(*in.Event) == Block {
		return
	}
	if in.Key == "" {
		return
	}
	select {
	case t.keys <- in.Key:
	default:
		t.log.Warn().Str("key", in.Key).Msg("Input buffer full, key dropped")
	}
}

func (t *Terminal) signalLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-t.sigs:
			if !ok {
				return
			}
			if t.Dispatch(Event{Type: EventBeforeUnload}) == Block {
				t.log.Warn().Str("signal", sig.String()).Msg("Signal ignored during quiz")
				continue
			}
			t.deliver(Input{Key: "quit"})
		}
	}
}
