package tui

import (
	"context"
	"errors"
	"io"

	"github.com/filiup/quizsession/internal/model"
	"github.com/filiup/quizsession/internal/session"
	"github.com/rs/zerolog"
)

// Session is the part of the session controller the UI drives.
type Session interface {
	Snapshot() session.Snapshot
	SelectAnswer(questionID, option string) error
	Advance(ctx context.Context) error
	Retreat() error
	Submit(ctx context.Context) (*model.SubmissionResult, error)
}

// App runs the key loop of one quiz session.
type App struct {
	sess    Session
	keys    <-chan string
	changes <-chan session.Snapshot
	out     io.Writer
	width   func() int
	// Go runs blocking session calls off the key loop. Tests pass a synchronous runner.
	Go  func(func())
	log zerolog.Logger
}

// NewApp creates an App. changes carries snapshots pushed by the session;
// width may be nil.
func NewApp(sess Session, keys <-chan string, changes <-chan session.Snapshot, out io.Writer, width func() int, log zerolog.Logger) *App {
	if width == nil {
		width = func() int { return 80 }
	}
	return &App{
		sess:    sess,
		keys:    keys,
		changes: changes,
		out:     out,
		width:   width,
		Go:      func(f func()) { go f() },
		log:     log.With().Str("component", "tui").Logger(),
	}
}

// Run draws the session and handles keys until the student quits, input
// ends, or ctx is done. It returns the last snapshot drawn.
func (a *App) Run(ctx context.Context) (session.Snapshot, error) {
	snap := a.sess.Snapshot()
	a.draw(snap)

	for {
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case s := <-a.changes:
			snap = s
			a.draw(snap)
		case key, ok := <-a.keys:
			if !ok {
				return snap, nil
			}
			snap = a.sess.Snapshot()
			if a.handle(ctx, KeyCommand(key, snap), snap) {
				return snap, nil
			}
		}
	}
}

// handle executes cmd; it reports whether the UI should exit.
func (a *App) handle(ctx context.Context, cmd Command, snap session.Snapshot) bool {
	switch cmd.Kind {
	case CmdQuit:
		return true
	case CmdSelect:
		q := snap.CurrentQuestion()
		a.report(a.sess.SelectAnswer(q.ID, q.Options[cmd.Option]))
	case CmdPrev:
		a.report(a.sess.Retreat())
	case CmdNext:
		// May submit, which waits on the network.
		a.Go(func() { a.report(a.sess.Advance(ctx)) })
	case CmdSubmit:
		a.Go(func() {
			_, err := a.sess.Submit(ctx)
			a.report(err)
		})
	}
	return false
}

// report logs a failed command. The session snapshot already carries what
// the student needs to see.
func (a *App) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, session.ErrNotInProgress), errors.Is(err, session.ErrSubmitInFlight):
		a.log.Debug().Err(err).Msg("Command ignored")
	default:
		a.log.Warn().Err(err).Msg("Command failed")
	}
}

func (a *App) draw(s session.Snapshot) {
	if err := Render(a.out, s, a.width()); err != nil {
		a.log.Warn().Err(err).Msg("Render failed")
	}
}
