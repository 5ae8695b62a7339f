package model

import (
	"sort"
	"time"
)

// AttemptStatus enumerates attempt states.
type AttemptStatus string

const (
	StatusNotStarted AttemptStatus = "NOT_STARTED"
	StatusInProgress AttemptStatus = "IN_PROGRESS"
	StatusExpired    AttemptStatus = "EXPIRED"
	StatusSubmitted  AttemptStatus = "SUBMITTED"
)

// Terminal reports whether no further mutation is allowed in this status.
func (s AttemptStatus) Terminal() bool {
	return s == StatusExpired || s == StatusSubmitted
}

// Attempt is the wire shape of a new or resumed attempt.
type Attempt struct {
	AttemptID            string            `json:"attemptId"`
	StudentID            int               `json:"studentId"`
	QuizID               string            `json:"quizId"`
	StartedAt            time.Time         `json:"startedAt"`
	Status               AttemptStatus     `json:"status,omitempty"`
	CurrentAnswers       map[string]string `json:"currentAnswers,omitempty"`
	CurrentQuestionIndex *int              `json:"currentQuestionIndex,omitempty"`
}

// Eligibility is the answer of the eligibility check.
type Eligibility struct {
	HasCompletedAttempt  bool     `json:"hasCompletedAttempt"`
	HasInProgressAttempt bool     `json:"hasInProgressAttempt"`
	ExistingAttempt      *Attempt `json:"existingAttempt,omitempty"`
}

// AttemptState is the mutable record of one attempt as held by a session.
type AttemptState struct {
	AttemptID    string
	QuizID       string
	StudentID    int
	StartedAt    time.Time
	Status       AttemptStatus
	CurrentIndex int
	Answers      map[string]string
}

// NewAttemptState builds an in-progress state from a wire attempt.
func NewAttemptState(a *Attempt) *AttemptState {
	st := &AttemptState{
		AttemptID: a.AttemptID,
		QuizID:    a.QuizID,
		StudentID: a.StudentID,
		StartedAt: a.StartedAt,
		Status:    StatusInProgress,
		Answers:   make(map[string]string, len(a.CurrentAnswers)),
	}
	for q, ans := range a.CurrentAnswers {
		st.Answers[q] = ans
	}
	if a.CurrentQuestionIndex != nil {
		st.CurrentIndex = *a.CurrentQuestionIndex
	}
	return st
}

// Clone returns a deep copy safe to hand out of the owning session.
func (a *AttemptState) Clone() AttemptState {
	c := *a
	c.Answers = make(map[string]string, len(a.Answers))
	for q, ans := range a.Answers {
		c.Answers[q] = ans
	}
	return c
}

// Remaining returns the time left on an attempt, clamped to zero.
func Remaining(startedAt time.Time, limit time.Duration, now time.Time) time.Duration {
	left := startedAt.Add(limit).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// AnswerEntry is one question/answer pair on the wire.
type AnswerEntry struct {
	QuestionID     string `json:"questionId" binding:"required,questionid"`
	SelectedAnswer string `json:"selectedAnswer" binding:"max=2000"`
}

// AnswerEntries flattens an answer map, ordered by the quiz question order.
// Answers for unknown question IDs follow, sorted by ID.
func AnswerEntries(quiz *QuizDefinition, answers map[string]string) []AnswerEntry {
	entries := make([]AnswerEntry, 0, len(answers))
	seen := make(map[string]bool, len(answers))
	if quiz != nil {
		for _, q := range quiz.Questions {
			if ans, ok := answers[q.ID]; ok {
				entries = append(entries, AnswerEntry{QuestionID: q.ID, SelectedAnswer: ans})
				seen[q.ID] = true
			}
		}
	}

	var rest []string
	for q := range answers {
		if !seen[q] {
			rest = append(rest, q)
		}
	}
	sort.Strings(rest)
	for _, q := range rest {
		entries = append(entries, AnswerEntry{QuestionID: q, SelectedAnswer: answers[q]})
	}
	return entries
}

// AnswerMap is the inverse of AnswerEntries; later entries win.
func AnswerMap(entries []AnswerEntry) map[string]string {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.QuestionID] = e.SelectedAnswer
	}
	return m
}

// ProgressSave is the body of a progress save.
type ProgressSave struct {
	AttemptID            string        `json:"attemptId" binding:"required"`
	CurrentAnswers       []AnswerEntry `json:"currentAnswers" binding:"unique=QuestionID,dive"`
	CurrentQuestionIndex int           `json:"currentQuestionIndex" binding:"min=0"`
}

// Submission is the body of an attempt submission.
type Submission struct {
	QuizID           string        `json:"quizId" binding:"required"`
	Answers          []AnswerEntry `json:"answers" binding:"unique=QuestionID,dive"`
	TimeTakenMinutes int           `json:"timeTakenMinutes" binding:"min=0"`
}

// SubmissionResult is the terminal outcome of a submission.
type SubmissionResult struct {
	Score            int     `json:"score"`
	MaxPossibleScore int     `json:"maxPossibleScore"`
	ScorePercentage  float64 `json:"scorePercentage"`
	Feedback         string  `json:"feedback,omitempty"`
}
