package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptRecord is an attempt row as persisted by the attempt API.
type AttemptRecord struct {
	ID         uuid.UUID     `json:"id"`
	QuizID     uuid.UUID     `json:"quiz_id"`
	StudentID  int           `json:"student_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Status     AttemptStatus `json:"status"`
	Score      *int          `json:"score,omitempty"`
	MaxScore   *int          `json:"max_score,omitempty"`
}

// Wire converts the record into the attempt shape sent to clients.
func (r *AttemptRecord) Wire() *Attempt {
	return &Attempt{
		AttemptID: r.ID.String(),
		StudentID: r.StudentID,
		QuizID:    r.QuizID.String(),
		StartedAt: r.StartedAt,
		Status:    r.Status,
	}
}

// ProgressJob is a queued progress save waiting to be persisted.
type ProgressJob struct {
	AttemptID string            `json:"attempt_id"`
	Answers   map[string]string `json:"answers"`
	Index     int               `json:"index"`
	SavedAt   int64             `json:"saved_at"`
}

// ViolationRecord is a queued violation log entry of an attempt.
type ViolationRecord struct {
	AttemptID string `json:"attempt_id"`
	StudentID int    `json:"student_id"`
	ViolationEntry
}
