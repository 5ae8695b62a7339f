package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/filiup/quizsession/internal/middleware"
	"github.com/filiup/quizsession/internal/model"
	"github.com/filiup/quizsession/internal/response"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func bigQuiz() model.QuizDefinition {
	q := model.QuizDefinition{ID: "quiz-1", Title: "Fractions", TimeLimitMinutes: 10}
	for i := 0; i < 40; i++ {
		q.Questions = append(q.Questions, model.Question{
			ID:      fmt.Sprintf("q%d", i),
			Prompt:  "Which fraction is equal to one half?",
			Options: []string{"1/2", "2/4", "3/8", "5/6"},
		})
	}
	return q
}

// seen records what the server received.
type seen struct {
	mu     sync.Mutex
	header http.Header
	save   model.ProgressSave
}

func (s *seen) lastHeader() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header
}

func (s *seen) lastSave() model.ProgressSave {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save
}

func newServer(t *testing.T) (*httptest.Server, *seen) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rec := &seen{}
	r := gin.New()
	r.Use(response.RequestIDMiddleware(), middleware.Brotli())
	r.Use(func(c *gin.Context) {
		rec.mu.Lock()
		rec.header = c.Request.Header.Clone()
		rec.mu.Unlock()
		c.Next()
	})
	r.GET("/api/v1/student/quizzes/:quiz_id", func(c *gin.Context) {
		if c.Param("quiz_id") != "quiz-1" {
			response.Fail(c, http.StatusNotFound, response.ErrQuizNotFound)
			return
		}
		response.Success(c, http.StatusOK, bigQuiz())
	})
	r.PUT("/api/v1/student/attempts/:attempt_id/progress", func(c *gin.Context) {
		var save model.ProgressSave
		if err := json.NewDecoder(c.Request.Body).Decode(&save); err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
			return
		}
		rec.mu.Lock()
		rec.save = save
		rec.mu.Unlock()
		response.Success(c, http.StatusOK, nil)
	})
	r.POST("/api/v1/student/attempts/:attempt_id/submit", func(c *gin.Context) {
		response.Fail(c, http.StatusGone, response.ErrAttemptExpired)
	})
	r.POST("/api/v1/student/attempts/:attempt_id/violations", func(c *gin.Context) {
		c.String(http.StatusBadGateway, "upstream down")
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestGetQuizDecodesBrotliEnvelope(t *testing.T) {
	srv, rec := newServer(t)
	c := New(Config{BaseURL: srv.URL + "/", Token: "tok", Timeout: 5 * time.Second}, zerolog.Nop())

	quiz, err := c.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if quiz.ID != "quiz-1" || len(quiz.Questions) != 40 || quiz.Questions[39].Options[1] != "2/4" {
		t.Fatalf("unexpected quiz: %+v", quiz)
	}
	header := rec.lastHeader()
	if header.Get("Authorization") != "Bearer tok" || header.Get("Accept-Encoding") != "br" {
		t.Fatalf("unexpected request headers: %v", header)
	}
	if header.Get("X-Request-ID") == "" {
		t.Fatalf("expected a request id")
	}
}

func TestAPIErrorsCarryCode(t *testing.T) {
	srv, _ := newServer(t)
	c := New(Config{BaseURL: srv.URL}, zerolog.Nop())
	ctx := context.Background()

	_, err := c.GetQuiz(ctx, "missing")
	if !IsCode(err, response.ErrQuizNotFound) {
		t.Fatalf("expected QUIZ_NOT_FOUND, got %v", err)
	}

	_, err = c.SubmitAttempt(ctx, "attempt-1", model.Submission{QuizID: "quiz-1"})
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusGone || !apiErr.AttemptExpired() {
		t.Fatalf("expected an expired attempt error, got %v", err)
	}

	err = c.LogViolation(ctx, "attempt-1", model.ViolationEntry{Action: model.ViolationCopy})
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadGateway || apiErr.Code != "" {
		t.Fatalf("expected a bare 502, got %v", err)
	}
	if apiErr.AttemptExpired() {
		t.Fatalf("a gateway error is not an expiry")
	}
}

func TestSaveProgressSendsBody(t *testing.T) {
	srv, rec := newServer(t)
	c := New(Config{BaseURL: srv.URL}, zerolog.Nop())

	err := c.SaveProgress(context.Background(), model.ProgressSave{
		AttemptID:            "attempt-1",
		CurrentAnswers:       []model.AnswerEntry{{QuestionID: "q1", SelectedAnswer: "1/2"}},
		CurrentQuestionIndex: 3,
	})
	if err != nil {
		t.Fatalf("save progress: %v", err)
	}
	save := rec.lastSave()
	if save.AttemptID != "attempt-1" || save.CurrentQuestionIndex != 3 || len(save.CurrentAnswers) != 1 {
		t.Fatalf("unexpected body received: %+v", save)
	}
}
