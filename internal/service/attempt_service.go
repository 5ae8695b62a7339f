package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/filiup/quizsession/internal/config"
	"github.com/filiup/quizsession/internal/model"
	"github.com/filiup/quizsession/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Attempt errors.
var (
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrAttemptCompleted = errors.New("attempt already completed")
	ErrAttemptExpired   = errors.New("attempt expired")
	ErrQuizMismatch     = errors.New("submission is for a different quiz")
)

// progressTTL bounds how long hot progress stays in Redis.
const progressTTL = 24 * time.Hour

// AttemptStore is the durable attempt storage (PostgreSQL in production).
type AttemptStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.AttemptRecord, error)
	GetByQuizAndStudent(ctx context.Context, quizID uuid.UUID, studentID int) (*model.AttemptRecord, error)
	Create(ctx context.Context, a *model.AttemptRecord) error
	LoadProgress(ctx context.Context, id uuid.UUID) (map[string]string, int, error)
	Finish(ctx context.Context, id uuid.UUID, status model.AttemptStatus, score, maxScore *int, answers map[string]string) error
}

// AttemptOptions tune an AttemptService.
type AttemptOptions struct {
	// SubmitGrace is how long past the deadline a submission is still scored.
	SubmitGrace time.Duration
	Now         func() time.Time
}

// AttemptService implements attempt lifecycle: eligibility, start, progress,
// submission and violation logging. Progress lives in Redis and is persisted
// by the progress worker; the attempt row in PostgreSQL is the source of truth
// for start time and status.
type AttemptService struct {
	store   AttemptStore
	quizzes *QuizService
	rdb     *redis.Client
	grace   time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(store AttemptStore, quizzes *QuizService, rdb *redis.Client, opts AttemptOptions, log zerolog.Logger) *AttemptService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &AttemptService{
		store:   store,
		quizzes: quizzes,
		rdb:     rdb,
		grace:   opts.SubmitGrace,
		now:     opts.Now,
		log:     log.With().Str("component", "attempt_service").Logger(),
	}
}

// CheckEligibility reports whether the student may start or resume the quiz.
func (s *AttemptService) CheckEligibility(ctx context.Context, quizID uuid.UUID, studentID int) (*model.Eligibility, error) {
	if _, err := s.quizzes.GetRecord(ctx, quizID); err != nil {
		return nil, err
	}

	rec, err := s.store.GetByQuizAndStudent(ctx, quizID, studentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.Eligibility{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	if rec.Status != model.StatusInProgress {
		return &model.Eligibility{HasCompletedAttempt: true}, nil
	}
	return &model.Eligibility{
		HasInProgressAttempt: true,
		ExistingAttempt:      rec.Wire(),
	}, nil
}

// CreateAttempt starts an attempt. It is idempotent: an in-progress attempt is
// returned as is.
func (s *AttemptService) CreateAttempt(ctx context.Context, quizID uuid.UUID, studentID int) (*model.Attempt, error) {
	if _, err := s.quizzes.GetRecord(ctx, quizID); err != nil {
		return nil, err
	}

	existing, err := s.store.GetByQuizAndStudent(ctx, quizID, studentID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing attempt: %w", err)
	}
	if existing != nil {
		if existing.Status != model.StatusInProgress {
			return nil, ErrAttemptCompleted
		}
		return s.withProgress(ctx, existing)
	}

	rec := &model.AttemptRecord{
		ID:        uuid.New(),
		QuizID:    quizID,
		StudentID: studentID,
		StartedAt: s.now().UTC(),
		Status:    model.StatusInProgress,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("create attempt: %w", err)
		}
		// Concurrent start from another device.
		existing, fetchErr := s.store.GetByQuizAndStudent(ctx, quizID, studentID)
		if fetchErr != nil {
			return nil, fmt.Errorf("concurrent start detected, but fetch failed: %w", fetchErr)
		}
		return s.withProgress(ctx, existing)
	}

	s.log.Info().
		Str("attempt_id", rec.ID.String()).
		Str("quiz_id", quizID.String()).
		Int("student_id", studentID).
		Msg("Attempt started")
	return rec.Wire(), nil
}

// GetAttempt returns an attempt of the student with its saved progress.
func (s *AttemptService) GetAttempt(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.Attempt, error) {
	rec, err := s.owned(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if rec.Status != model.StatusInProgress {
		return rec.Wire(), nil
	}
	return s.withProgress(ctx, rec)
}

// SaveProgress stores the full answer set and question index of an attempt.
func (s *AttemptService) SaveProgress(ctx context.Context, attemptID uuid.UUID, studentID int, save model.ProgressSave) error {
	rec, quiz, err := s.openAttempt(ctx, attemptID, studentID)
	if err != nil {
		return err
	}
	if s.pastGrace(rec, quiz) {
		return ErrAttemptExpired
	}

	answers := model.AnswerMap(save.CurrentAnswers)
	index := save.CurrentQuestionIndex
	if n := len(quiz.Quiz.Questions); index >= n {
		index = n - 1
	}

	job, err := json.Marshal(model.ProgressJob{
		AttemptID: attemptID.String(),
		Answers:   answers,
		Index:     index,
		SavedAt:   s.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal progress job: %w", err)
	}

	id := attemptID.String()
	answersKey := config.CacheKey.AttemptAnswersKey(id)
	indexKey := config.CacheKey.AttemptIndexKey(id)

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, answersKey)
	if len(answers) > 0 {
		pipe.HSet(ctx, answersKey, toHashFields(answers))
		pipe.Expire(ctx, answersKey, progressTTL)
	}
	pipe.Set(ctx, indexKey, index, progressTTL)
	pipe.RPush(ctx, config.WorkerKey.PersistProgressQueue, job)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache progress: %w", err)
	}
	return nil
}

// Submit scores the submission and closes the attempt. Past the deadline plus
// grace the attempt is closed as EXPIRED and ErrAttemptExpired is returned.
func (s *AttemptService) Submit(ctx context.Context, attemptID uuid.UUID, studentID int, sub model.Submission) (*model.SubmissionResult, error) {
	rec, quiz, err := s.openAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if sub.QuizID != rec.QuizID.String() {
		return nil, ErrQuizMismatch
	}

	if s.pastGrace(rec, quiz) {
		if err := s.store.Finish(ctx, rec.ID, model.StatusExpired, nil, nil, nil); err != nil && !errors.Is(err, repository.ErrAttemptClosed) {
			s.log.Error().Err(err).Str("attempt_id", rec.ID.String()).Msg("Failed to close expired attempt")
		}
		s.clearProgress(ctx, rec.ID)
		return nil, ErrAttemptExpired
	}

	answers := model.AnswerMap(sub.Answers)
	score, maxScore := quiz.Grade(answers)
	if err := s.store.Finish(ctx, rec.ID, model.StatusSubmitted, &score, &maxScore, answers); err != nil {
		if errors.Is(err, repository.ErrAttemptClosed) {
			return nil, ErrAttemptCompleted
		}
		return nil, fmt.Errorf("finish attempt: %w", err)
	}
	s.clearProgress(ctx, rec.ID)

	pct := percentage(score, maxScore)
	s.log.Info().
		Str("attempt_id", rec.ID.String()).
		Int("student_id", studentID).
		Int("score", score).
		Int("max_score", maxScore).
		Int("time_taken_minutes", sub.TimeTakenMinutes).
		Msg("Attempt submitted and graded")

	return &model.SubmissionResult{
		Score:            score,
		MaxPossibleScore: maxScore,
		ScorePercentage:  pct,
		Feedback:         feedback(pct),
	}, nil
}

// LogViolation queues a proctoring violation for persistence.
func (s *AttemptService) LogViolation(ctx context.Context, attemptID uuid.UUID, studentID int, entry model.ViolationEntry) error {
	if _, err := s.owned(ctx, attemptID, studentID); err != nil {
		return err
	}

	payload, err := json.Marshal(model.ViolationRecord{
		AttemptID:      attemptID.String(),
		StudentID:      studentID,
		ViolationEntry: entry,
	})
	if err != nil {
		return fmt.Errorf("marshal violation: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, payload).Err(); err != nil {
		return fmt.Errorf("queue violation: %w", err)
	}
	return nil
}

// Deadline returns when an in-progress attempt runs out of time.
func (s *AttemptService) Deadline(ctx context.Context, attemptID uuid.UUID, studentID int) (time.Time, error) {
	rec, quiz, err := s.openAttempt(ctx, attemptID, studentID)
	if err != nil {
		return time.Time{}, err
	}
	return rec.StartedAt.Add(quiz.Quiz.TimeLimit()), nil
}

// owned loads an attempt, hiding attempts of other students.
func (s *AttemptService) owned(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.AttemptRecord, error) {
	rec, err := s.store.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if rec.StudentID != studentID {
		return nil, ErrAttemptNotFound
	}
	return rec, nil
}

// openAttempt loads an owned in-progress attempt with its quiz.
func (s *AttemptService) openAttempt(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.AttemptRecord, *model.QuizRecord, error) {
	rec, err := s.owned(ctx, attemptID, studentID)
	if err != nil {
		return nil, nil, err
	}
	if rec.Status != model.StatusInProgress {
		return nil, nil, ErrAttemptCompleted
	}
	quiz, err := s.quizzes.GetRecord(ctx, rec.QuizID)
	if err != nil {
		return nil, nil, err
	}
	return rec, quiz, nil
}

func (s *AttemptService) pastGrace(rec *model.AttemptRecord, quiz *model.QuizRecord) bool {
	return s.now().After(rec.StartedAt.Add(quiz.Quiz.TimeLimit() + s.grace))
}

// withProgress attaches saved answers and index, reading Redis first and
// falling back to PostgreSQL on a cache miss.
func (s *AttemptService) withProgress(ctx context.Context, rec *model.AttemptRecord) (*model.Attempt, error) {
	answers, index, err := s.progress(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	a := rec.Wire()
	a.CurrentAnswers = answers
	a.CurrentQuestionIndex = &index
	return a, nil
}

func (s *AttemptService) progress(ctx context.Context, attemptID uuid.UUID) (map[string]string, int, error) {
	id := attemptID.String()
	answersKey := config.CacheKey.AttemptAnswersKey(id)
	indexKey := config.CacheKey.AttemptIndexKey(id)

	pipe := s.rdb.Pipeline()
	answersCmd := pipe.HGetAll(ctx, answersKey)
	indexCmd := pipe.Get(ctx, indexKey)
	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, fmt.Errorf("redis error getting progress: %w", err)
	}

	if raw, err := indexCmd.Result(); err == nil {
		index, convErr := strconv.Atoi(raw)
		if convErr == nil {
			return answersCmd.Val(), index, nil
		}
	}

	// Cache miss: load from PostgreSQL and self-heal.
	answers, index, err := s.store.LoadProgress(ctx, attemptID)
	if err != nil {
		return nil, 0, fmt.Errorf("load progress: %w", err)
	}
	heal := s.rdb.TxPipeline()
	heal.Del(ctx, answersKey)
	if len(answers) > 0 {
		heal.HSet(ctx, answersKey, toHashFields(answers))
		heal.Expire(ctx, answersKey, progressTTL)
	}
	heal.Set(ctx, indexKey, index, progressTTL)
	if _, err := heal.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", id).Msg("Progress cache refill failed")
	}
	return answers, index, nil
}

func (s *AttemptService) clearProgress(ctx context.Context, attemptID uuid.UUID) {
	id := attemptID.String()
	if err := s.rdb.Del(ctx, config.CacheKey.AttemptAnswersKey(id), config.CacheKey.AttemptIndexKey(id)).Err(); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", id).Msg("Progress cache cleanup failed")
	}
}

func toHashFields(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func percentage(score, maxScore int) float64 {
	if maxScore <= 0 {
		return 0
	}
	return math.Round(float64(score)/float64(maxScore)*10000) / 100
}

func feedback(pct float64) string {
	switch {
	case pct >= 90:
		return "Napakahusay! Ipagpatuloy mo ito."
	case pct >= 75:
		return "Magaling! Kaunti na lang at perpekto na."
	case pct >= 50:
		return "Mabuti. Balikan ang mga tanong na namali."
	default:
		return "Kailangan pang magsanay. Basahin muli ang aralin."
	}
}
