package repository

import (
	"context"

	"github.com/filiup/quizsession/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ViolationRepository stores proctoring violation logs.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

var violationColumns = []string{
	"attempt_id", "student_id", "action", "description", "severity", "question_index", "recorded_at",
}

func violationRow(v *model.ViolationRecord) ([]interface{}, error) {
	attemptID, err := uuid.Parse(v.AttemptID)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		attemptID, v.StudentID, string(v.Action), v.Description, string(v.Severity), v.QuestionIndex, v.Timestamp,
	}, nil
}

// InsertBatch bulk-inserts violations with COPY. A single bad row fails the batch.
func (r *ViolationRepository) InsertBatch(ctx context.Context, batch []model.ViolationRecord) error {
	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"attempt_violations"},
		violationColumns,
		pgx.CopyFromSlice(len(batch), func(i int) ([]interface{}, error) {
			return violationRow(&batch[i])
		}),
	)
	return err
}

// Insert stores one violation.
func (r *ViolationRepository) Insert(ctx context.Context, v model.ViolationRecord) error {
	row, err := violationRow(&v)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO attempt_violations
		   (attempt_id, student_id, action, description, severity, question_index, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`, row...)
	return err
}
