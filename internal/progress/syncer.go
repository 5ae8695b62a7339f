// Package progress pushes in-progress answers to the attempt API so that a
// reloaded session can resume where it left off.
package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/filiup/quizsession/internal/model"
	"github.com/rs/zerolog"
)

// ErrAttemptCompleted is returned by FetchResumableAttempt when the student
// has already finished the quiz.
var ErrAttemptCompleted = errors.New("attempt already completed")

// API is the part of the attempt API the syncer talks to.
type API interface {
	CheckEligibility(ctx context.Context, quizID string) (*model.Eligibility, error)
	GetAttemptWithProgress(ctx context.Context, attemptID string) (*model.Attempt, error)
	SaveProgress(ctx context.Context, save model.ProgressSave) error
}

// SnapshotFunc returns the state to save. ok is false when there is nothing
// left to save, e.g. after the attempt ended.
type SnapshotFunc func() (save model.ProgressSave, ok bool)

// Options tune a Syncer.
type Options struct {
	// Delay is the quiet period before a scheduled save is sent.
	Delay time.Duration
	// Timeout bounds a single save request.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Syncer debounces progress saves. Every scheduled save reads the snapshot
// when it is sent, so a coalesced save always carries the latest answers.
type Syncer struct {
	api      API
	snapshot SnapshotFunc
	delay    time.Duration
	timeout  time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool

	// sendMu serializes sends so an older snapshot can never land after a newer one.
	sendMu sync.Mutex
}

// NewSyncer creates a Syncer.
func NewSyncer(api API, snapshot SnapshotFunc, opts Options) *Syncer {
	if opts.Delay <= 0 {
		opts.Delay = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Syncer{
		api:      api,
		snapshot: snapshot,
		delay:    opts.Delay,
		timeout:  opts.Timeout,
		log:      opts.Logger.With().Str("component", "progress_syncer").Logger(),
	}
}

// Schedule (re)starts the debounce timer.
func (s *Syncer) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.delay, func() { s.fire(gen) })
}

// Pending reports whether a debounced save is waiting to be sent.
func (s *Syncer) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Cancel drops a pending save without stopping the syncer.
func (s *Syncer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Stop cancels any pending save; later Schedule calls are ignored.
func (s *Syncer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Flush sends the current snapshot right away, dropping a pending save.
// Errors are returned to the caller; scheduled saves only log them.
func (s *Syncer) Flush(ctx context.Context) error {
	s.Cancel()
	return s.send(ctx)
}

func (s *Syncer) fire(gen uint64) {
	s.mu.Lock()
	// A newer Schedule or a Cancel superseded this timer.
	if s.stopped || gen != s.gen || s.timer == nil {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	// Best-effort: the next scheduled save supersedes a failed one.
	if err := s.send(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Progress save failed")
	}
}

func (s *Syncer) send(ctx context.Context) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	save, ok := s.snapshot()
	if !ok {
		return nil
	}
	if err := s.api.SaveProgress(ctx, save); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}

	s.log.Debug().
		Str("attempt_id", save.AttemptID).
		Int("answers", len(save.CurrentAnswers)).
		Int("index", save.CurrentQuestionIndex).
		Msg("Progress saved")
	return nil
}

// FetchResumableAttempt returns the in-progress attempt of a quiz with its
// saved answers, or nil when there is none. It returns ErrAttemptCompleted
// when the quiz has already been finished.
func (s *Syncer) FetchResumableAttempt(ctx context.Context, quizID string) (*model.Attempt, error) {
	elig, err := s.api.CheckEligibility(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("check eligibility: %w", err)
	}
	if elig.HasCompletedAttempt {
		return nil, ErrAttemptCompleted
	}
	if !elig.HasInProgressAttempt || elig.ExistingAttempt == nil {
		return nil, nil
	}

	attempt, err := s.api.GetAttemptWithProgress(ctx, elig.ExistingAttempt.AttemptID)
	if err != nil {
		return nil, fmt.Errorf("get attempt %s: %w", elig.ExistingAttempt.AttemptID, err)
	}
	return attempt, nil
}
