package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/filiup/quizsession/internal/config"
	"github.com/filiup/quizsession/internal/model"
	"github.com/google/uuid"
)

func TestCreateAttemptIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.svc.CreateAttempt(ctx, quizID, 7)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.Status != model.StatusInProgress || !first.StartedAt.Equal(e.now) {
		t.Fatalf("unexpected attempt: %+v", first)
	}

	e.now = e.now.Add(time.Minute)
	second, err := e.svc.CreateAttempt(ctx, quizID, 7)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if second.AttemptID != first.AttemptID || !second.StartedAt.Equal(first.StartedAt) {
		t.Fatalf("expected the same attempt back, got %+v", second)
	}
	if second.CurrentQuestionIndex == nil {
		t.Fatalf("a resumed attempt carries its progress")
	}
}

func TestCreateAttemptUnknownQuiz(t *testing.T) {
	e := newEnv(t)
	if _, err := e.svc.CreateAttempt(context.Background(), otherID, 7); !errors.Is(err, ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestCheckEligibility(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	elig, err := e.svc.CheckEligibility(ctx, quizID, 7)
	if err != nil || elig.HasCompletedAttempt || elig.HasInProgressAttempt {
		t.Fatalf("expected a fresh eligibility, got %+v %v", elig, err)
	}

	a, _ := e.svc.CreateAttempt(ctx, quizID, 7)
	elig, _ = e.svc.CheckEligibility(ctx, quizID, 7)
	if !elig.HasInProgressAttempt || elig.ExistingAttempt == nil || elig.ExistingAttempt.AttemptID != a.AttemptID {
		t.Fatalf("expected the in-progress attempt, got %+v", elig)
	}

	id := uuid.MustParse(a.AttemptID)
	if _, err := e.svc.Submit(ctx, id, 7, model.Submission{QuizID: quizID.String()}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	elig, _ = e.svc.CheckEligibility(ctx, quizID, 7)
	if !elig.HasCompletedAttempt || elig.HasInProgressAttempt {
		t.Fatalf("expected completed, got %+v", elig)
	}
	if _, err := e.svc.CreateAttempt(ctx, quizID, 7); !errors.Is(err, ErrAttemptCompleted) {
		t.Fatalf("a completed quiz cannot be restarted, got %v", err)
	}
}

func TestSaveProgressCachesAndQueues(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, _ := e.svc.CreateAttempt(ctx, quizID, 7)
	id := uuid.MustParse(a.AttemptID)

	err := e.svc.SaveProgress(ctx, id, 7, model.ProgressSave{
		AttemptID: a.AttemptID,
		CurrentAnswers: []model.AnswerEntry{
			{QuestionID: "q1", SelectedAnswer: "3/4"},
			{QuestionID: "q2", SelectedAnswer: "6"},
		},
		CurrentQuestionIndex: 9,
	})
	if err != nil {
		t.Fatalf("save progress: %v", err)
	}

	if got := e.mr.HGet(config.CacheKey.AttemptAnswersKey(a.AttemptID), "q2"); got != "6" {
		t.Fatalf("expected cached answer, got %q", got)
	}
	if got, _ := e.mr.Get(config.CacheKey.AttemptIndexKey(a.AttemptID)); got != "3" {
		t.Fatalf("index must be clamped to the last question, got %q", got)
	}
	queued, err := e.mr.List(config.WorkerKey.PersistProgressQueue)
	if err != nil || len(queued) != 1 {
		t.Fatalf("expected one queued job, got %v %v", queued, err)
	}
	var job model.ProgressJob
	if err := json.Unmarshal([]byte(queued[0]), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.AttemptID != a.AttemptID || len(job.Answers) != 2 || job.Index != 3 {
		t.Fatalf("unexpected job: %+v", job)
	}

	got, err := e.svc.GetAttempt(ctx, id, 7)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if got.CurrentAnswers["q1"] != "3/4" || *got.CurrentQuestionIndex != 3 {
		t.Fatalf("unexpected progress: %+v", got)
	}
}

func TestSaveProgressReplacesAnswerSet(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, _ := e.svc.CreateAttempt(ctx, quizID, 7)
	id := uuid.MustParse(a.AttemptID)

	_ = e.svc.SaveProgress(ctx, id, 7, model.ProgressSave{
		AttemptID:      a.AttemptID,
		CurrentAnswers: []model.AnswerEntry{{QuestionID: "q1", SelectedAnswer: "3/4"}, {QuestionID: "q2", SelectedAnswer: "3"}},
	})
	_ = e.svc.SaveProgress(ctx, id, 7, model.ProgressSave{
		AttemptID:      a.AttemptID,
		CurrentAnswers: []model.AnswerEntry{{QuestionID: "q1", SelectedAnswer: "2/6"}},
	})

	got, _ := e.svc.GetAttempt(ctx, id, 7)
	if len(got.CurrentAnswers) != 1 || got.CurrentAnswers["q1"] != "2/6" {
		t.Fatalf("the latest save replaces the answer set, got %v", got.CurrentAnswers)
	}
}

func TestGetAttemptFallsBackToStore(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, _ := e.svc.CreateAttempt(ctx, quizID, 7)
	id := uuid.MustParse(a.AttemptID)

	e.attempts.mu.Lock()
	e.attempts.progress[id] = memProgress{answers: map[string]string{"q3": "1/2"}, index: 2}
	e.attempts.mu.Unlock()
	e.mr.FlushAll()

	got, err := e.svc.GetAttempt(ctx, id, 7)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if got.CurrentAnswers["q3"] != "1/2" || *got.CurrentQuestionIndex != 2 {
		t.Fatalf("expected stored progress, got %+v", got)
	}
	if e.mr.HGet(config.CacheKey.AttemptAnswersKey(a.AttemptID), "q3") != "1/2" {
		t.Fatalf("the cache must be refilled")
	}
}

func TestAttemptsOfOtherStudentsAreHidden(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, _ := e.svc.CreateAttempt(ctx, quizID, 7)
	id := uuid.MustParse(a.AttemptID)

	if _, err := e.svc.GetAttempt(ctx, id, 8); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}
	if err := e.svc.LogViolation(ctx, id, 8, model.ViolationEntry{}); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}
	if _, err := e.svc.GetAttempt(ctx, uuid.New(), 7); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound for unknown id, got %v", err)
	}
}

func TestSubmitGradesAndCloses(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, _ := e.svc.CreateAttempt(ctx, quizID, 7)
	id := uuid.MustParse(a.AttemptID)
	_ = e.svc.SaveProgress(ctx, id, 7, model.ProgressSave{AttemptID: a.AttemptID, CurrentQuestionIndex: 1})

	e.now = e.now.Add(8 * time.Minute)
	res, err := e.svc.Submit(ctx, id, 7, model.Submission{
		QuizID: quizID.String(),
		Answers: []model.AnswerEntry{
			{QuestionID: "q1", SelectedAnswer: "3/4"},
			{QuestionID: "q2", SelectedAnswer: "3"},
			{QuestionID: "q3", SelectedAnswer: "1/4"},
			{QuestionID: "zz", SelectedAnswer: "3"},
		},
		TimeTakenMinutes: 8,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Score != 2 || res.MaxPossibleScore != 4 || res.ScorePercentage != 50 || res.Feedback == "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if e.attempts.status(id) != model.StatusSubmitted {
		t.Fatalf("attempt must be closed as SUBMITTED")
	}
	if e.mr.Exists(config.CacheKey.AttemptIndexKey(a.AttemptID)) {
		t.Fatalf("progress cache must be cleared")
	}

	if _, err := e.svc.Submit(ctx, id, 7, model.Submission{QuizID: quizID.String()}); !errors.Is(err, ErrAttemptCompleted) {
		t.Fatalf("expected ErrAttemptCompleted on resubmit, got %v", err)
	}
	if err := e.svc.SaveProgress(ctx, id, 7, model.ProgressSave{AttemptID: a.AttemptID}); !errors.Is(err, ErrAttemptCompleted) {
		t.Fatalf("expected ErrAttemptCompleted on save, got %v", err)
	}
}

func TestSubmitWrongQuiz(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, _ := e.svc.CreateAttempt(ctx, quizID, 7)

	_, err := e.svc.Submit(ctx, uuid.MustParse(a.AttemptID), 7, model.Submission{QuizID: otherID.String()})
	if !errors.Is(err, ErrQuizMismatch) {
		t.Fatalf("expected ErrQuizMismatch, got %v", err)
	}
}

func TestSubmitWithinGraceIsScored(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, _ := e.svc.CreateAttempt(ctx, quizID, 7)

	e.now = e.now.Add(10*time.Minute + 30*time.Second)
	if _, err := e.svc.Submit(ctx, uuid.MustParse(a.AttemptID), 7, model.Submission{QuizID: quizID.String()}); err != nil {
		t.Fatalf("a submission inside the grace period is scored: %v", err)
	}
}

func TestSubmitPastGraceExpires(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, _ := e.svc.CreateAttempt(ctx, quizID, 7)
	id := uuid.MustParse(a.AttemptID)

	e.now = e.now.Add(12 * time.Minute)
	if err := e.svc.SaveProgress(ctx, id, 7, model.ProgressSave{AttemptID: a.AttemptID}); !errors.Is(err, ErrAttemptExpired) {
		t.Fatalf("expected ErrAttemptExpired on save, got %v", err)
	}
	if _, err := e.svc.Submit(ctx, id, 7, model.Submission{QuizID: quizID.String()}); !errors.Is(err, ErrAttemptExpired) {
		t.Fatalf("expected ErrAttemptExpired, got %v", err)
	}
	if e.attempts.status(id) != model.StatusExpired {
		t.Fatalf("attempt must be closed as EXPIRED")
	}
}

func TestLogViolationQueuesRecord(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, _ := e.svc.CreateAttempt(ctx, quizID, 7)

	entry := model.ViolationEntry{
		Action:        model.ViolationCopy,
		Description:   "Copy attempted",
		Severity:      model.SeverityMedium,
		QuestionIndex: 1,
		Timestamp:     e.now,
	}
	if err := e.svc.LogViolation(ctx, uuid.MustParse(a.AttemptID), 7, entry); err != nil {
		t.Fatalf("log violation: %v", err)
	}

	queued, _ := e.mr.List(config.WorkerKey.PersistViolationsQueue)
	if len(queued) != 1 {
		t.Fatalf("expected one queued violation, got %d", len(queued))
	}
	var rec model.ViolationRecord
	if err := json.Unmarshal([]byte(queued[0]), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.AttemptID != a.AttemptID || rec.StudentID != 7 || rec.Action != model.ViolationCopy {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestDeadline(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, _ := e.svc.CreateAttempt(ctx, quizID, 7)

	got, err := e.svc.Deadline(ctx, uuid.MustParse(a.AttemptID), 7)
	if err != nil {
		t.Fatalf("deadline: %v", err)
	}
	if !got.Equal(e.now.Add(10 * time.Minute)) {
		t.Fatalf("unexpected deadline %v", got)
	}
}
