// Package session holds the quiz session controller: the single owner of an
// attempt's answers, clock, violation count and lifecycle.
//
// A Controller serves exactly one attempt. Event sources (keys, ticks, push
// messages, lockdown violations) may call it from any goroutine; state changes
// happen under one mutex and network calls are made outside of it.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/filiup/quizsession/internal/model"
	"github.com/filiup/quizsession/internal/proctor"
	"github.com/filiup/quizsession/internal/progress"
	"github.com/rs/zerolog"
)

// Backend is the attempt API a session depends on.
type Backend interface {
	progress.API
	CreateAttempt(ctx context.Context, quizID string) (*model.Attempt, error)
	SubmitAttempt(ctx context.Context, attemptID string, sub model.Submission) (*model.SubmissionResult, error)
	LogViolation(ctx context.Context, attemptID string, entry model.ViolationEntry) error
}

const (
	DefaultViolationLimit = 3
	DefaultWarningBefore  = 5 * time.Minute

	// A push timeout is honoured only this close to the local deadline.
	pushTimeoutTolerance = 2 * time.Second
)

// Options tune a Controller. Zero values select the defaults.
type Options struct {
	ViolationLimit int
	SaveDebounce   time.Duration
	// WarningBefore raises a one-time notice when this much time is left.
	// Negative disables it.
	WarningBefore time.Duration
	TickInterval  time.Duration
	// CallTimeout bounds background calls (auto-submit, violation logs, saves).
	CallTimeout time.Duration

	// Lockdown is armed while the attempt is interactive. Nil runs without lockdown.
	Lockdown *proctor.Monitor

	Now func() time.Time
	// Go runs background work. Tests pass a synchronous runner.
	Go func(func())
	// OnChange receives a snapshot after every visible change.
	OnChange func(Snapshot)
	Logger   zerolog.Logger
}

func (o *Options) setDefaults() {
	if o.ViolationLimit <= 0 {
		o.ViolationLimit = DefaultViolationLimit
	}
	if o.SaveDebounce <= 0 {
		o.SaveDebounce = time.Second
	}
	if o.WarningBefore == 0 {
		o.WarningBefore = DefaultWarningBefore
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 15 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Go == nil {
		o.Go = func(f func()) { go f() }
	}
}

// Controller runs one quiz attempt.
type Controller struct {
	api    Backend
	syncer *progress.Syncer
	opts   Options
	log    zerolog.Logger

	// done is closed once the attempt reached its final state or the session closed.
	done chan struct{}

	mu          sync.Mutex
	quiz        *model.QuizDefinition
	state       *model.AttemptState
	starting    bool
	violations  int
	submitting  bool
	locked      bool
	result      *model.SubmissionResult
	endReason   EndReason
	terminalErr error
	submitErr   error
	notice      string
	warned      bool
	guard       *proctor.Guard
	closed      bool
	doneClosed  bool
}

// New creates a Controller talking to api.
func New(api Backend, opts Options) *Controller {
	opts.setDefaults()
	c := &Controller{
		api:  api,
		opts: opts,
		log:  opts.Logger.With().Str("component", "quiz_session").Logger(),
		done: make(chan struct{}),
	}
	c.syncer = progress.NewSyncer(api, c.progressSnapshot, progress.Options{
		Delay:   opts.SaveDebounce,
		Timeout: opts.CallTimeout,
		Logger:  opts.Logger,
	})
	return c
}

type submitJob struct {
	attemptID string
	payload   model.Submission
	reason    EndReason
}

type violationJob struct {
	attemptID string
	entry     model.ViolationEntry
}

// effects collects the work a state change requires once the lock is released.
type effects struct {
	submit    *submitJob
	violation *violationJob
	release   *proctor.Guard
	save      bool
	changed   bool
}

// Start resolves eligibility and resumes or creates the attempt. On success
// the attempt is IN_PROGRESS (or already EXPIRED when a resumed attempt ran
// out of time while away) and lockdown is armed.
func (c *Controller) Start(ctx context.Context, quiz *model.QuizDefinition) (*model.AttemptState, error) {
	if quiz == nil || len(quiz.Questions) == 0 || quiz.TimeLimitMinutes <= 0 {
		return nil, ErrInvalidQuiz
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return nil, ErrClosed
	case c.state != nil || c.starting:
		c.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	c.starting = true
	c.mu.Unlock()

	attempt, resumed, err := c.resolveAttempt(ctx, quiz.ID)

	c.mu.Lock()
	c.starting = false
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.quiz = quiz
	c.state = model.NewAttemptState(attempt)
	if c.state.QuizID == "" {
		c.state.QuizID = quiz.ID
	}
	c.state.CurrentIndex = clamp(c.state.CurrentIndex, 0, len(quiz.Questions)-1)
	eff := c.tickLocked(c.opts.Now())
	eff.changed = true
	interactive := c.interactiveLocked()
	st := c.state.Clone()
	left := model.Remaining(st.StartedAt, quiz.TimeLimit(), c.opts.Now())
	c.mu.Unlock()

	c.log.Info().
		Str("attempt_id", st.AttemptID).
		Str("quiz_id", quiz.ID).
		Bool("resumed", resumed).
		Int("answers", len(st.Answers)).
		Dur("remaining", left).
		Msg("Quiz session started")

	if interactive && c.opts.Lockdown != nil {
		guard := c.opts.Lockdown.Arm(c)
		c.mu.Lock()
		if !c.closed && c.interactiveLocked() {
			c.guard, guard = guard, nil
		}
		c.mu.Unlock()
		// The attempt ended while arming.
		if guard != nil {
			guard.Release()
		}
	}

	c.apply(eff)
	return &st, nil
}

func (c *Controller) resolveAttempt(ctx context.Context, quizID string) (*model.Attempt, bool, error) {
	attempt, err := c.syncer.FetchResumableAttempt(ctx, quizID)
	if errors.Is(err, progress.ErrAttemptCompleted) {
		return nil, false, ErrAlreadyCompleted
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrAttemptStartFailed, err)
	}
	if attempt != nil {
		if attempt.Status == model.StatusSubmitted {
			return nil, false, ErrAlreadyCompleted
		}
		return attempt, true, nil
	}

	attempt, err = c.api.CreateAttempt(ctx, quizID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: create attempt: %w", ErrAttemptStartFailed, err)
	}
	if attempt == nil || attempt.AttemptID == "" {
		return nil, false, fmt.Errorf("%w: empty attempt", ErrAttemptStartFailed)
	}
	return attempt, false, nil
}

// SelectAnswer records option for the question, replacing an earlier answer,
// and schedules a progress save.
func (c *Controller) SelectAnswer(questionID, option string) error {
	c.mu.Lock()
	eff, err := c.mutableLocked()
	if err == nil {
		idx := c.quiz.QuestionIndex(questionID)
		switch {
		case idx < 0:
			err = ErrUnknownQuestion
		case !c.quiz.Questions[idx].HasOption(option):
			err = ErrInvalidOption
		default:
			c.state.Answers[questionID] = option
			eff.save = true
			eff.changed = true
		}
	}
	c.mu.Unlock()

	c.apply(eff)
	return err
}

// Advance moves to the next question. On the last question it submits.
func (c *Controller) Advance(ctx context.Context) error {
	c.mu.Lock()
	eff, err := c.mutableLocked()
	last := err == nil && c.state.CurrentIndex >= len(c.quiz.Questions)-1
	if err == nil && !last {
		c.state.CurrentIndex++
		eff.save = true
		eff.changed = true
	}
	c.mu.Unlock()

	c.apply(eff)
	if last {
		_, err = c.Submit(ctx)
	}
	return err
}

// Retreat moves to the previous question, staying on the first.
func (c *Controller) Retreat() error {
	return c.move(func(i int) (int, error) {
		if i == 0 {
			return 0, nil
		}
		return i - 1, nil
	})
}

// GoTo jumps to the question at index.
func (c *Controller) GoTo(index int) error {
	return c.move(func(int) (int, error) {
		if index < 0 || index >= len(c.quiz.Questions) {
			return 0, ErrIndexOutOfRange
		}
		return index, nil
	})
}

func (c *Controller) move(next func(int) (int, error)) error {
	c.mu.Lock()
	eff, err := c.mutableLocked()
	if err == nil {
		var to int
		if to, err = next(c.state.CurrentIndex); err == nil && to != c.state.CurrentIndex {
			c.state.CurrentIndex = to
			eff.save = true
			eff.changed = true
		}
	}
	c.mu.Unlock()

	c.apply(eff)
	return err
}

// Submit sends all recorded answers for scoring. A failure leaves the attempt
// in progress so the student can retry, unless the backend reports that the
// attempt window closed; then the attempt is EXPIRED and ErrAttemptExpired is
// returned.
func (c *Controller) Submit(ctx context.Context) (*model.SubmissionResult, error) {
	c.mu.Lock()
	eff, err := c.mutableLocked()
	var job submitJob
	if err == nil {
		c.submitting = true
		c.submitErr = nil
		job = c.submitJobLocked(EndSubmitted)
		eff.changed = true
	}
	c.mu.Unlock()

	c.apply(eff)
	if err != nil {
		return nil, err
	}

	c.syncer.Cancel()
	c.log.Info().
		Str("attempt_id", job.attemptID).
		Int("answers", len(job.payload.Answers)).
		Int("minutes", job.payload.TimeTakenMinutes).
		Msg("Submitting attempt")

	res, err := c.api.SubmitAttempt(ctx, job.attemptID, job.payload)
	res = c.finishSubmit(job, res, err)
	if err != nil {
		if isAttemptExpired(err) {
			return nil, fmt.Errorf("%w: %w", ErrAttemptExpired, err)
		}
		return nil, fmt.Errorf("submit attempt: %w", err)
	}
	return res, nil
}

// Tick recomputes the remaining time from the attempt start. When it reaches
// zero the attempt expires and whatever answers exist are submitted once.
func (c *Controller) Tick() {
	c.mu.Lock()
	if c.closed || c.state == nil || c.state.Status != model.StatusInProgress {
		c.mu.Unlock()
		return
	}
	eff := c.tickLocked(c.opts.Now())
	eff.changed = true
	c.mu.Unlock()

	c.apply(eff)
}

// RecordViolation counts a lockdown violation. Reaching the limit ends the
// attempt with a forced submission.
func (c *Controller) RecordViolation(kind model.ViolationKind, severity model.Severity) {
	c.ReportViolation(kind, severity, "")
}

// ReportViolation implements proctor.Reporter.
func (c *Controller) ReportViolation(kind model.ViolationKind, severity model.Severity, description string) {
	c.mu.Lock()
	if c.closed || c.state == nil {
		c.mu.Unlock()
		return
	}
	now := c.opts.Now()
	eff := c.tickLocked(now)
	if c.state.Status != model.StatusInProgress || c.locked {
		c.mu.Unlock()
		c.apply(eff)
		return
	}

	if description == "" {
		description = string(kind)
	}
	c.violations++
	count := c.violations
	eff.violation = &violationJob{
		attemptID: c.state.AttemptID,
		entry: model.ViolationEntry{
			Action:        kind,
			Description:   description,
			Severity:      severity,
			QuestionIndex: c.state.CurrentIndex,
			Timestamp:     now.UTC(),
		},
	}
	eff.changed = true
	if count >= c.opts.ViolationLimit {
		c.lockLocked(&eff, EndViolationLimit)
	}
	c.mu.Unlock()

	c.log.Warn().
		Str("kind", string(kind)).
		Str("severity", string(severity)).
		Int("count", count).
		Int("limit", c.opts.ViolationLimit).
		Msg("Lockdown violation")
	c.apply(eff)
}

// HandlePush applies a realtime push message. The local clock stays the
// source of truth: a timeout that arrives early only triggers a normal tick.
func (c *Controller) HandlePush(msg model.PushMessage) {
	c.mu.Lock()
	if c.closed || c.state == nil || c.state.Status != model.StatusInProgress {
		c.mu.Unlock()
		return
	}

	now := c.opts.Now()
	var eff effects
	early := false
	switch msg.Type {
	case model.PushTimeWarning:
		c.warned = true
		c.notice = msg.Message
		if c.notice == "" {
			c.notice = "Time is almost up"
		}
		eff = c.tickLocked(now)
		eff.changed = true
	case model.PushQuizTimeout:
		if model.Remaining(c.state.StartedAt, c.quiz.TimeLimit(), now) > pushTimeoutTolerance {
			early = true
			eff = c.tickLocked(now)
		} else {
			eff = c.tickLocked(now.Add(pushTimeoutTolerance))
		}
	}
	c.mu.Unlock()

	if early {
		c.log.Warn().Msg("Push timeout ahead of local clock, ignored")
	}
	c.apply(eff)
}

// Run drives the clock and the optional push channel until the attempt
// reaches its final state, the session is closed, or ctx is done. push may be nil.
func (c *Controller) Run(ctx context.Context, push <-chan model.PushMessage) error {
	t := time.NewTicker(c.opts.TickInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case <-t.C:
			c.Tick()
		case msg, ok := <-push:
			if !ok {
				push = nil
				continue
			}
			c.HandlePush(msg)
		}
	}
}

// Done is closed when the attempt is final (and no submission is pending) or
// the session is closed.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Close detaches the session: lockdown is released, in-progress answers are
// flushed once, and later ticks, pushes and violations are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	flush := c.state != nil && c.state.Status == model.StatusInProgress && !c.locked && !c.submitting
	guard := c.guard
	c.guard = nil
	c.closeDoneLocked()
	c.mu.Unlock()

	if guard != nil {
		guard.Release()
	}
	if flush {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.CallTimeout)
		if err := c.syncer.Flush(ctx); err != nil {
			c.log.Warn().Err(err).Msg("Final progress save failed")
		}
		cancel()
	}
	c.syncer.Stop()
	c.log.Debug().Msg("Quiz session closed")
}

// Snapshot returns a copy of the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Quiz:           c.quiz,
		Status:         model.StatusNotStarted,
		Violations:     c.violations,
		ViolationLimit: c.opts.ViolationLimit,
		Submitting:     c.submitting,
		Locked:         c.locked,
		Result:         c.result,
		EndReason:      c.endReason,
		TerminalErr:    c.terminalErr,
		SubmitErr:      c.submitErr,
		Notice:         c.notice,
	}
	if c.state != nil {
		st := c.state.Clone()
		s.Attempt = &st
		s.Status = st.Status
		s.Answered = len(st.Answers)
		if st.Status == model.StatusInProgress {
			s.Remaining = model.Remaining(st.StartedAt, c.quiz.TimeLimit(), c.opts.Now())
		}
	}
	return s
}

// mutableLocked brings the clock up to date and reports whether the attempt
// currently accepts changes.
func (c *Controller) mutableLocked() (effects, error) {
	if c.closed {
		return effects{}, ErrClosed
	}
	if c.state == nil {
		return effects{}, ErrNotInProgress
	}
	eff := c.tickLocked(c.opts.Now())
	switch {
	case c.state.Status != model.StatusInProgress || c.locked:
		return eff, ErrNotInProgress
	case c.submitting:
		return eff, ErrSubmitInFlight
	}
	return eff, nil
}

func (c *Controller) interactiveLocked() bool {
	return c.state != nil && c.state.Status == model.StatusInProgress && !c.locked
}

func (c *Controller) tickLocked(now time.Time) effects {
	var eff effects
	if c.closed || c.state == nil || c.state.Status != model.StatusInProgress {
		return eff
	}

	left := model.Remaining(c.state.StartedAt, c.quiz.TimeLimit(), now)
	if left > 0 {
		if !c.warned && c.opts.WarningBefore > 0 && left <= c.opts.WarningBefore {
			c.warned = true
			c.notice = fmt.Sprintf("%d minute(s) remaining", int(math.Ceil(left.Minutes())))
			eff.changed = true
		}
		return eff
	}

	c.state.Status = model.StatusExpired
	c.lockLocked(&eff, EndTimeUp)
	return eff
}

// lockLocked ends interaction for good and starts the one final submission
// unless one is already in flight.
func (c *Controller) lockLocked(eff *effects, reason EndReason) {
	c.locked = true
	if c.endReason == "" {
		c.endReason = reason
	}
	if c.guard != nil {
		eff.release = c.guard
		c.guard = nil
	}
	eff.changed = true
	if !c.submitting {
		c.submitting = true
		job := c.submitJobLocked(reason)
		eff.submit = &job
	}
}

func (c *Controller) submitJobLocked(reason EndReason) submitJob {
	return submitJob{
		attemptID: c.state.AttemptID,
		reason:    reason,
		payload: model.Submission{
			QuizID:           c.quiz.ID,
			Answers:          model.AnswerEntries(c.quiz, c.state.Answers),
			TimeTakenMinutes: minutesTaken(c.state.StartedAt, c.opts.Now(), c.quiz.TimeLimitMinutes),
		},
	}
}

// minutesTaken is the elapsed time rounded up, never more than the limit.
func minutesTaken(startedAt, now time.Time, limit int) int {
	m := int(math.Ceil(now.Sub(startedAt).Minutes()))
	return clamp(m, 0, limit)
}

// finishSubmit records the outcome of a submission and returns the stored
// result. It runs even after Close: the backend has already accepted or
// refused the attempt, so the snapshot mirrors that outcome.
func (c *Controller) finishSubmit(job submitJob, res *model.SubmissionResult, err error) *model.SubmissionResult {
	c.mu.Lock()
	c.submitting = false
	st := c.state
	retryable := false
	switch {
	case err == nil:
		if res == nil {
			res = &model.SubmissionResult{}
		}
		c.result = res
		// An expiry that happened while the submission was in flight wins.
		if st.Status == model.StatusInProgress {
			st.Status = model.StatusSubmitted
		}
		c.locked = true
		if c.endReason == "" {
			c.endReason = job.reason
		}
	case isAttemptExpired(err):
		st.Status = model.StatusExpired
		c.locked = true
		if c.endReason == "" {
			c.endReason = EndTimeUp
		}
		c.terminalErr = err
	case st.Status.Terminal() || c.locked:
		st.Status = model.StatusExpired
		c.terminalErr = err
	default:
		c.submitErr = err
		retryable = true
	}

	var eff effects
	eff.changed = true
	if c.locked && c.guard != nil {
		eff.release = c.guard
		c.guard = nil
	}
	status := st.Status
	reason := c.endReason
	c.closeDoneLocked()
	c.mu.Unlock()

	switch {
	case err == nil:
		c.log.Info().
			Str("attempt_id", job.attemptID).
			Str("status", string(status)).
			Int("score", res.Score).
			Int("max_score", res.MaxPossibleScore).
			Msg("Attempt submitted")
	case retryable:
		c.log.Warn().Err(err).Str("attempt_id", job.attemptID).Msg("Submission failed, retry possible")
	default:
		c.log.Error().Err(err).
			Str("attempt_id", job.attemptID).
			Str("reason", string(reason)).
			Msg("Final submission failed")
	}
	c.apply(eff)
	return res
}

func (c *Controller) closeDoneLocked() {
	if c.doneClosed {
		return
	}
	final := c.state != nil && c.state.Status.Terminal() && !c.submitting
	if final || c.closed {
		c.doneClosed = true
		close(c.done)
	}
}

func (c *Controller) progressSnapshot() (model.ProgressSave, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.interactiveLocked() {
		return model.ProgressSave{}, false
	}
	return model.ProgressSave{
		AttemptID:            c.state.AttemptID,
		CurrentAnswers:       model.AnswerEntries(c.quiz, c.state.Answers),
		CurrentQuestionIndex: c.state.CurrentIndex,
	}, true
}

func (c *Controller) apply(eff effects) {
	if eff.release != nil {
		eff.release.Release()
	}
	if eff.violation != nil {
		job := *eff.violation
		c.opts.Go(func() { c.logViolation(job) })
	}
	if eff.submit != nil {
		job := *eff.submit
		c.syncer.Cancel()
		c.opts.Go(func() { c.autoSubmit(job) })
	}
	if eff.save {
		c.syncer.Schedule()
	}
	if eff.changed {
		c.notify()
	}
}

func (c *Controller) autoSubmit(job submitJob) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.CallTimeout)
	defer cancel()

	c.log.Info().
		Str("attempt_id", job.attemptID).
		Str("reason", string(job.reason)).
		Int("answers", len(job.payload.Answers)).
		Msg("Submitting attempt automatically")
	res, err := c.api.SubmitAttempt(ctx, job.attemptID, job.payload)
	c.finishSubmit(job, res, err)
}

// logViolation is diagnostic only; failures are swallowed.
func (c *Controller) logViolation(job violationJob) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.CallTimeout)
	defer cancel()
	if err := c.api.LogViolation(ctx, job.attemptID, job.entry); err != nil {
		c.log.Debug().Err(err).Str("action", string(job.entry.Action)).Msg("Violation log failed")
	}
}

func (c *Controller) notify() {
	if c.opts.OnChange == nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.opts.OnChange(snap)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
