package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/filiup/quizsession/internal/model"
	"github.com/filiup/quizsession/internal/proctor"
	"github.com/rs/zerolog"
)

var errBackendDown = errors.New("backend down")

type expiredErr struct{}

func (expiredErr) Error() string        { return "attempt expired on server" }
func (expiredErr) AttemptExpired() bool { return true }

type fakeBackend struct {
	mu sync.Mutex

	elig       *model.Eligibility
	eligErr    error
	resume     *model.Attempt
	created    *model.Attempt
	createErr  error
	submitErrs []error // consumed one per submit; nil entries succeed
	result     *model.SubmissionResult
	saveErr    error
	logErr     error

	// submitGate, when set, holds SubmitAttempt until it is closed.
	// submitEntered receives once per held call.
	submitGate    chan struct{}
	submitEntered chan struct{}

	creates    int
	submits    []model.Submission
	saves      []model.ProgressSave
	violations []model.ViolationEntry
}

func newFakeBackend(startedAt time.Time) *fakeBackend {
	return &fakeBackend{
		elig: &model.Eligibility{},
		created: &model.Attempt{
			AttemptID: "attempt-1",
			StudentID: 7,
			QuizID:    "quiz-1",
			StartedAt: startedAt,
		},
		result: &model.SubmissionResult{Score: 2, MaxPossibleScore: 3, ScorePercentage: 66.67},
	}
}

func (f *fakeBackend) CheckEligibility(_ context.Context, _ string) (*model.Eligibility, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.elig, f.eligErr
}

func (f *fakeBackend) GetAttemptWithProgress(_ context.Context, _ string) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resume, nil
}

func (f *fakeBackend) SaveProgress(_ context.Context, save model.ProgressSave) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, save)
	return f.saveErr
}

func (f *fakeBackend) CreateAttempt(_ context.Context, _ string) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	return f.created, f.createErr
}

func (f *fakeBackend) SubmitAttempt(_ context.Context, _ string, sub model.Submission) (*model.SubmissionResult, error) {
	f.mu.Lock()
	f.submits = append(f.submits, sub)
	gate, entered := f.submitGate, f.submitEntered
	f.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.result, nil
}

func (f *fakeBackend) LogViolation(_ context.Context, _ string, entry model.ViolationEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.violations = append(f.violations, entry)
	return f.logErr
}

func (f *fakeBackend) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

func (f *fakeBackend) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func (f *fakeBackend) violationLog() []model.ViolationEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ViolationEntry(nil), f.violations...)
}

func (f *fakeBackend) lastSubmit() model.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits[len(f.submits)-1]
}

// holdSubmits makes SubmitAttempt block until the returned func is called.
func (f *fakeBackend) holdSubmits() (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitGate = make(chan struct{})
	f.submitEntered = make(chan struct{}, 4)
	gate := f.submitGate
	return func() { close(gate) }
}

func (f *fakeBackend) lastSave() model.ProgressSave {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves[len(f.saves)-1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeEnv records lockdown calls and lets tests fire events.
type fakeEnv struct {
	mu         sync.Mutex
	handlers   map[int]proctor.Handler
	next       int
	fullscreen int
	exits      int
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{handlers: make(map[int]proctor.Handler)}
}

func (e *fakeEnv) Listen(h proctor.Handler) func() {
	e.mu.Lock()
	id := e.next
	e.next++
	e.handlers[id] = h
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.handlers, id)
		e.mu.Unlock()
	}
}

func (e *fakeEnv) RequestFullscreen() error {
	e.mu.Lock()
	e.fullscreen++
	e.mu.Unlock()
	return nil
}

func (e *fakeEnv) ExitFullscreen() error {
	e.mu.Lock()
	e.exits++
	e.mu.Unlock()
	return nil
}

func (e *fakeEnv) fire(ev proctor.Event) proctor.Verdict {
	e.mu.Lock()
	hs := make([]proctor.Handler, 0, len(e.handlers))
	for _, h := range e.handlers {
		hs = append(hs, h)
	}
	e.mu.Unlock()
	v := proctor.Allow
	for _, h := range hs {
		if h(ev) == proctor.Block {
			v = proctor.Block
		}
	}
	return v
}

func (e *fakeEnv) listeners() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers)
}

func sampleQuiz() *model.QuizDefinition {
	return &model.QuizDefinition{
		ID:               "quiz-1",
		Title:            "Fractions",
		TimeLimitMinutes: 10,
		Questions: []model.Question{
			{ID: "q1", Prompt: "1/2 + 1/4?", Options: []string{"3/4", "2/6", "1/8"}},
			{ID: "q2", Prompt: "1/3 of 9?", Options: []string{"3", "6"}},
			{ID: "q3", Prompt: "2/4 equals?", Options: []string{"1/2", "1/4"}},
		},
	}
}

type harness struct {
	ctrl    *Controller
	backend *fakeBackend
	clock   *fakeClock
}

// newHarness builds a controller with synchronous background work.
func newHarness(mutate func(*Options)) *harness {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	backend := newFakeBackend(start)
	opts := Options{
		SaveDebounce: time.Hour,
		Now:          clock.Now,
		Go:           func(f func()) { f() },
		Logger:       zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return &harness{ctrl: New(backend, opts), backend: backend, clock: clock}
}

func (h *harness) start() {
	if _, err := h.ctrl.Start(context.Background(), sampleQuiz()); err != nil {
		panic(err)
	}
}
