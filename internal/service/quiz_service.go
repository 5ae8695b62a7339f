package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/filiup/quizsession/internal/config"
	"github.com/filiup/quizsession/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Quiz errors.
var (
	ErrQuizNotFound = errors.New("quiz not found")
	ErrNoQuestions  = errors.New("quiz has no questions")
)

// QuizStore is the durable quiz storage (PostgreSQL in production).
type QuizStore interface {
	GetRecord(ctx context.Context, quizID uuid.UUID) (*model.QuizRecord, error)
	Upsert(ctx context.Context, rec *model.QuizRecord) error
}

// QuizService serves quizzes from a Redis read-through cache.
type QuizService struct {
	store QuizStore
	rdb   *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
}

// NewQuizService creates a new QuizService.
func NewQuizService(store QuizStore, rdb *redis.Client, log zerolog.Logger) *QuizService {
	return &QuizService{
		store: store,
		rdb:   rdb,
		ttl:   time.Hour,
		log:   log.With().Str("component", "quiz_service").Logger(),
	}
}

// GetRecord returns the quiz with its answer key.
func (s *QuizService) GetRecord(ctx context.Context, quizID uuid.UUID) (*model.QuizRecord, error) {
	key := config.CacheKey.QuizRecordKey(quizID.String())

	data, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rec model.QuizRecord
		if err := json.Unmarshal(data, &rec); err == nil {
			return &rec, nil
		}
		s.log.Warn().Str("quiz_id", quizID.String()).Msg("Corrupt quiz cache entry, reloading")
	case !errors.Is(err, redis.Nil):
		// Redis trouble: serve from the database without caching.
		s.log.Warn().Err(err).Msg("Quiz cache read failed")
	}

	rec, err := s.store.GetRecord(ctx, quizID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("load quiz: %w", err)
	}
	if len(rec.Quiz.Questions) == 0 {
		return nil, ErrNoQuestions
	}

	if payload, err := json.Marshal(rec); err == nil {
		if err := s.rdb.Set(ctx, key, payload, s.ttl).Err(); err != nil {
			s.log.Warn().Err(err).Msg("Quiz cache write failed")
		}
	}
	return rec, nil
}

// GetDefinition returns the student-facing quiz, without the answer key.
func (s *QuizService) GetDefinition(ctx context.Context, quizID uuid.UUID) (*model.QuizDefinition, error) {
	rec, err := s.GetRecord(ctx, quizID)
	if err != nil {
		return nil, err
	}
	quiz := rec.Quiz
	return &quiz, nil
}

// Save stores a quiz and drops its cached copy.
func (s *QuizService) Save(ctx context.Context, rec *model.QuizRecord) error {
	if len(rec.Quiz.Questions) == 0 {
		return ErrNoQuestions
	}
	for _, q := range rec.Quiz.Questions {
		correct, ok := rec.AnswerKey[q.ID]
		if !ok || !q.HasOption(correct) {
			return fmt.Errorf("question %s: correct option must be one of its options", q.ID)
		}
	}

	if err := s.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("save quiz: %w", err)
	}
	if err := s.rdb.Del(ctx, config.CacheKey.QuizRecordKey(rec.Quiz.ID)).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Quiz cache invalidation failed")
	}
	return nil
}
