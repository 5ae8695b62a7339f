package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/filiup/quizsession/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAttemptClosed is returned when a write targets an attempt that is no
// longer in progress.
var ErrAttemptClosed = errors.New("attempt is no longer in progress")

// AttemptRepository handles quiz attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, quiz_id, student_id, started_at, finished_at, status, score, max_score`

func scanAttempt(row pgx.Row) (*model.AttemptRecord, error) {
	a := &model.AttemptRecord{}
	err := row.Scan(&a.ID, &a.QuizID, &a.StudentID, &a.StartedAt, &a.FinishedAt, &a.Status, &a.Score, &a.MaxScore)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByID retrieves an attempt. Returns pgx.ErrNoRows when missing.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.AttemptRecord, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM quiz_attempts WHERE id = $1`, id))
}

// GetByQuizAndStudent retrieves the attempt of a student for a quiz.
func (r *AttemptRepository) GetByQuizAndStudent(ctx context.Context, quizID uuid.UUID, studentID int) (*model.AttemptRecord, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM quiz_attempts
		 WHERE quiz_id = $1 AND student_id = $2`, quizID, studentID))
}

// Create inserts a new in-progress attempt. A concurrent create for the same
// student and quiz makes it return pgx.ErrNoRows.
func (r *AttemptRepository) Create(ctx context.Context, a *model.AttemptRecord) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO quiz_attempts (id, quiz_id, student_id, status, started_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (quiz_id, student_id) DO NOTHING
		 RETURNING started_at`,
		a.ID, a.QuizID, a.StudentID, model.StatusInProgress, a.StartedAt,
	).Scan(&a.StartedAt)
}

// SaveProgress replaces the stored answers and question index of an in-progress attempt.
func (r *AttemptRepository) SaveProgress(ctx context.Context, id uuid.UUID, answers map[string]string, index int) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE quiz_attempts SET current_index = $1
			 WHERE id = $2 AND status = $3`,
			index, id, model.StatusInProgress)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrAttemptClosed
		}
		return replaceAnswers(ctx, tx, id, answers)
	})
}

// LoadProgress returns the stored answers and question index of an attempt.
func (r *AttemptRepository) LoadProgress(ctx context.Context, id uuid.UUID) (map[string]string, int, error) {
	var index int
	if err := r.pool.QueryRow(ctx,
		`SELECT current_index FROM quiz_attempts WHERE id = $1`, id,
	).Scan(&index); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT question_id, answer FROM attempt_answers WHERE attempt_id = $1`, id)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	answers := make(map[string]string)
	for rows.Next() {
		var q, a string
		if err := rows.Scan(&q, &a); err != nil {
			return nil, 0, err
		}
		answers[q] = a
	}
	return answers, index, rows.Err()
}

// Finish closes an in-progress attempt with its final status, score and answers.
// Returns ErrAttemptClosed when another request finished it first.
func (r *AttemptRepository) Finish(ctx context.Context, id uuid.UUID, status model.AttemptStatus, score, maxScore *int, answers map[string]string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE quiz_attempts
			 SET status = $1, score = $2, max_score = $3, finished_at = $4
			 WHERE id = $5 AND status = $6`,
			status, score, maxScore, time.Now(), id, model.StatusInProgress)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrAttemptClosed
		}
		if answers == nil {
			return nil
		}
		return replaceAnswers(ctx, tx, id, answers)
	})
}

func replaceAnswers(ctx context.Context, tx pgx.Tx, id uuid.UUID, answers map[string]string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM attempt_answers WHERE attempt_id = $1`, id); err != nil {
		return fmt.Errorf("clear answers: %w", err)
	}
	if len(answers) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for q, a := range answers {
		batch.Queue(
			`INSERT INTO attempt_answers (attempt_id, question_id, answer) VALUES ($1, $2, $3)`,
			id, q, a)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert answers: %w", err)
	}
	return nil
}
