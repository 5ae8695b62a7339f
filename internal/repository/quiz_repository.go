package repository

import (
	"context"
	"fmt"

	"github.com/filiup/quizsession/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuizRepository handles quiz and question data access.
type QuizRepository struct {
	pool *pgxpool.Pool
}

// NewQuizRepository creates a new QuizRepository.
func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{pool: pool}
}

// GetRecord loads a quiz with its ordered questions and answer key.
// Returns pgx.ErrNoRows when the quiz does not exist.
func (r *QuizRepository) GetRecord(ctx context.Context, quizID uuid.UUID) (*model.QuizRecord, error) {
	rec := &model.QuizRecord{
		AnswerKey: model.AnswerKey{},
		Points:    map[string]int{},
	}
	rec.Quiz.ID = quizID.String()

	err := r.pool.QueryRow(ctx,
		`SELECT title, time_limit_minutes FROM quizzes WHERE id = $1`, quizID,
	).Scan(&rec.Quiz.Title, &rec.Quiz.TimeLimitMinutes)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, prompt, options, correct_option, points
		 FROM quiz_questions WHERE quiz_id = $1
		 ORDER BY position`, quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			q       model.Question
			correct string
			points  int
		)
		if err := rows.Scan(&q.ID, &q.Prompt, &q.Options, &correct, &points); err != nil {
			return nil, err
		}
		rec.Quiz.Questions = append(rec.Quiz.Questions, q)
		rec.AnswerKey[q.ID] = correct
		rec.Points[q.ID] = points
	}
	return rec, rows.Err()
}

// Upsert writes a quiz and replaces its questions in one transaction.
func (r *QuizRepository) Upsert(ctx context.Context, rec *model.QuizRecord) error {
	quizID, err := uuid.Parse(rec.Quiz.ID)
	if err != nil {
		return fmt.Errorf("quiz id: %w", err)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO quizzes (id, title, time_limit_minutes)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO UPDATE
			 SET title = EXCLUDED.title,
			     time_limit_minutes = EXCLUDED.time_limit_minutes,
			     updated_at = NOW()`,
			quizID, rec.Quiz.Title, rec.Quiz.TimeLimitMinutes,
		)
		if err != nil {
			return fmt.Errorf("upsert quiz: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM quiz_questions WHERE quiz_id = $1`, quizID); err != nil {
			return fmt.Errorf("clear questions: %w", err)
		}

		questions := rec.Quiz.Questions
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"quiz_questions"},
			[]string{"quiz_id", "id", "position", "prompt", "options", "correct_option", "points"},
			pgx.CopyFromSlice(len(questions), func(i int) ([]interface{}, error) {
				q := questions[i]
				points := rec.Points[q.ID]
				if points <= 0 {
					points = 1
				}
				return []interface{}{quizID, q.ID, i, q.Prompt, q.Options, rec.AnswerKey[q.ID], points}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("insert questions: %w", err)
		}
		return nil
	})
}
