package service

import (
	"context"
	"errors"
	"testing"

	"github.com/filiup/quizsession/internal/config"
	"github.com/filiup/quizsession/internal/model"
)

func TestQuizServiceReadsThroughCache(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		quiz, err := e.quizSvc.GetDefinition(ctx, quizID)
		if err != nil {
			t.Fatalf("get definition: %v", err)
		}
		if len(quiz.Questions) != 4 {
			t.Fatalf("unexpected quiz: %+v", quiz)
		}
	}
	if e.quizzes.loads != 1 {
		t.Fatalf("expected one store load, got %d", e.quizzes.loads)
	}
	if !e.mr.Exists(config.CacheKey.QuizRecordKey(quizID.String())) {
		t.Fatalf("expected the quiz to be cached")
	}
}

func TestQuizServiceRecoversFromCorruptCache(t *testing.T) {
	e := newEnv(t)
	_ = e.mr.Set(config.CacheKey.QuizRecordKey(quizID.String()), "{not json")

	rec, err := e.quizSvc.GetRecord(context.Background(), quizID)
	if err != nil || rec.AnswerKey["q1"] != "3/4" {
		t.Fatalf("expected a reload from the store, got %+v %v", rec, err)
	}
}

func TestQuizServiceErrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.quizSvc.GetRecord(ctx, otherID); !errors.Is(err, ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}

	empty := sampleRecord()
	empty.Quiz.ID = otherID.String()
	empty.Quiz.Questions = nil
	e.quizzes.recs[otherID] = empty
	if _, err := e.quizSvc.GetRecord(ctx, otherID); !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}
}

func TestQuizServiceSaveValidatesAndInvalidates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.quizSvc.GetRecord(ctx, quizID); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	bad := sampleRecord()
	bad.AnswerKey["q2"] = "9"
	if err := e.quizSvc.Save(ctx, bad); err == nil {
		t.Fatalf("an answer outside the options must be rejected")
	}

	empty := sampleRecord()
	empty.Quiz.Questions = nil
	if err := e.quizSvc.Save(ctx, empty); !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}

	updated := sampleRecord()
	updated.Quiz.Title = "Fractions II"
	updated.Quiz.Questions = append(updated.Quiz.Questions, model.Question{ID: "q5", Options: []string{"1", "2"}})
	updated.AnswerKey["q5"] = "2"
	if err := e.quizSvc.Save(ctx, updated); err != nil {
		t.Fatalf("save: %v", err)
	}
	if e.mr.Exists(config.CacheKey.QuizRecordKey(quizID.String())) {
		t.Fatalf("saving must drop the cached copy")
	}

	rec, _ := e.quizSvc.GetRecord(ctx, quizID)
	if rec.Quiz.Title != "Fractions II" || rec.MaxScore() != 5 {
		t.Fatalf("expected the updated quiz, got %+v", rec.Quiz)
	}
}
