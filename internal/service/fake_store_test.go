package service

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/filiup/quizsession/internal/model"
	"github.com/filiup/quizsession/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type memQuizStore struct {
	mu    sync.Mutex
	recs  map[uuid.UUID]*model.QuizRecord
	loads int
}

func (s *memQuizStore) GetRecord(_ context.Context, id uuid.UUID) (*model.QuizRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	rec, ok := s.recs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *rec
	return &cp, nil
}

func (s *memQuizStore) Upsert(_ context.Context, rec *model.QuizRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.recs[uuid.MustParse(rec.Quiz.ID)] = &cp
	return nil
}

type memProgress struct {
	answers map[string]string
	index   int
}

type memAttemptStore struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*model.AttemptRecord
	progress map[uuid.UUID]memProgress
	answers  map[uuid.UUID]map[string]string
}

func newMemAttemptStore() *memAttemptStore {
	return &memAttemptStore{
		attempts: make(map[uuid.UUID]*model.AttemptRecord),
		progress: make(map[uuid.UUID]memProgress),
		answers:  make(map[uuid.UUID]map[string]string),
	}
}

func (s *memAttemptStore) GetByID(_ context.Context, id uuid.UUID) (*model.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (s *memAttemptStore) GetByQuizAndStudent(_ context.Context, quizID uuid.UUID, studentID int) (*model.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.QuizID == quizID && a.StudentID == studentID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *memAttemptStore) Create(_ context.Context, a *model.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.attempts {
		if existing.QuizID == a.QuizID && existing.StudentID == a.StudentID {
			return pgx.ErrNoRows
		}
	}
	cp := *a
	s.attempts[a.ID] = &cp
	return nil
}

func (s *memAttemptStore) LoadProgress(_ context.Context, id uuid.UUID) (map[string]string, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.progress[id]
	out := make(map[string]string, len(p.answers))
	for k, v := range p.answers {
		out[k] = v
	}
	return out, p.index, nil
}

func (s *memAttemptStore) Finish(_ context.Context, id uuid.UUID, status model.AttemptStatus, score, maxScore *int, answers map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok || a.Status != model.StatusInProgress {
		return repository.ErrAttemptClosed
	}
	a.Status = status
	a.Score = score
	a.MaxScore = maxScore
	s.answers[id] = answers
	return nil
}

func (s *memAttemptStore) status(id uuid.UUID) model.AttemptStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[id].Status
}

var (
	quizID  = uuid.MustParse("5b0f9a39-5d7e-4c52-9a43-3f0c8a1e2d11")
	otherID = uuid.MustParse("0e9d7c1b-8a6f-4e2d-b3c4-a5b6c7d8e9f0")
)

func sampleRecord() *model.QuizRecord {
	return &model.QuizRecord{
		Quiz: model.QuizDefinition{
			ID:               quizID.String(),
			Title:            "Fractions",
			TimeLimitMinutes: 10,
			Questions: []model.Question{
				{ID: "q1", Prompt: "1/2 + 1/4?", Options: []string{"3/4", "2/6"}},
				{ID: "q2", Prompt: "1/3 of 9?", Options: []string{"3", "6"}},
				{ID: "q3", Prompt: "2/4 equals?", Options: []string{"1/2", "1/4"}},
				{ID: "q4", Prompt: "1 - 1/5?", Options: []string{"4/5", "1/5"}},
			},
		},
		AnswerKey: model.AnswerKey{"q1": "3/4", "q2": "3", "q3": "1/2", "q4": "4/5"},
	}
}

type env struct {
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	quizzes  *memQuizStore
	attempts *memAttemptStore
	quizSvc  *QuizService
	svc      *AttemptService
	now      time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	e := &env{
		mr:       mr,
		rdb:      redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		quizzes:  &memQuizStore{recs: map[uuid.UUID]*model.QuizRecord{quizID: sampleRecord()}},
		attempts: newMemAttemptStore(),
		now:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	e.quizSvc = NewQuizService(e.quizzes, e.rdb, zerolog.Nop())
	e.svc = NewAttemptService(e.attempts, e.quizSvc, e.rdb, AttemptOptions{
		SubmitGrace: time.Minute,
		Now:         func() time.Time { return e.now },
	}, zerolog.Nop())
	return e
}
