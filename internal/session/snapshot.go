package session

import (
	"time"

	"github.com/filiup/quizsession/internal/model"
)

// EndReason tells why a session stopped being interactive.
type EndReason string

const (
	EndSubmitted      EndReason = "SUBMITTED"
	EndTimeUp         EndReason = "TIME_UP"
	EndViolationLimit EndReason = "VIOLATION_LIMIT"
)

// Snapshot is a read-only copy of the session for rendering.
type Snapshot struct {
	Quiz    *model.QuizDefinition
	Status  model.AttemptStatus
	Attempt *model.AttemptState

	Remaining      time.Duration
	Answered       int
	Violations     int
	ViolationLimit int

	// Submitting is true while a submission awaits the backend.
	Submitting bool
	// Locked is true once answering has stopped for good, even if the final
	// status is not known yet.
	Locked bool

	Result    *model.SubmissionResult
	EndReason EndReason
	// TerminalErr is set when the final submission of a time-up or violation
	// ending failed. There is no retry from this state.
	TerminalErr error
	// SubmitErr is the last failure of a manual submit that may be retried.
	SubmitErr error
	// Notice is a transient message such as a time warning.
	Notice string
}

// Interactive reports whether answers may still change.
func (s Snapshot) Interactive() bool {
	return s.Status == model.StatusInProgress && !s.Locked && !s.Submitting
}

// CurrentQuestion returns the question on screen, or nil before start.
func (s Snapshot) CurrentQuestion() *model.Question {
	if s.Quiz == nil || s.Attempt == nil {
		return nil
	}
	i := s.Attempt.CurrentIndex
	if i < 0 || i >= len(s.Quiz.Questions) {
		return nil
	}
	return &s.Quiz.Questions[i]
}
