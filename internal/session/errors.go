package session

import "errors"

var (
	// ErrAlreadyCompleted means the student already finished this quiz.
	ErrAlreadyCompleted = errors.New("quiz already completed")
	// ErrAttemptStartFailed wraps any failure to create or resume an attempt.
	ErrAttemptStartFailed = errors.New("attempt start failed")
	// ErrAlreadyStarted is returned by a second Start on the same controller.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrInvalidQuiz rejects a quiz without questions or without a time limit.
	ErrInvalidQuiz = errors.New("invalid quiz definition")
	// ErrNotInProgress is returned by mutations outside an interactive attempt.
	ErrNotInProgress = errors.New("attempt not in progress")
	// ErrSubmitInFlight is returned while a submission is awaiting its answer.
	ErrSubmitInFlight = errors.New("submission in flight")
	// ErrAttemptExpired is returned when the backend refused a submit because time ran out.
	ErrAttemptExpired = errors.New("attempt expired")
	// ErrUnknownQuestion rejects an answer for a question not in the quiz.
	ErrUnknownQuestion = errors.New("unknown question")
	// ErrInvalidOption rejects an answer that is not one of the question options.
	ErrInvalidOption = errors.New("invalid option")
	// ErrIndexOutOfRange rejects navigation outside the question list.
	ErrIndexOutOfRange = errors.New("question index out of range")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
)

// expiredError is implemented by backend errors that know whether they mean
// the attempt window closed (apiclient.Error does).
type expiredError interface {
	AttemptExpired() bool
}

func isAttemptExpired(err error) bool {
	var e expiredError
	return errors.As(err, &e) && e.AttemptExpired()
}
