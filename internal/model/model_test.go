package model

import (
	"testing"
	"time"
)

func record() *QuizRecord {
	return &QuizRecord{
		Quiz: QuizDefinition{
			ID:               "quiz-1",
			TimeLimitMinutes: 10,
			Questions: []Question{
				{ID: "q1", Options: []string{"3/4", "2/6"}},
				{ID: "q2", Options: []string{"3", "6"}},
				{ID: "q3", Options: []string{"1/2", "1/4"}},
			},
		},
		AnswerKey: AnswerKey{"q1": "3/4", "q2": "3", "q3": "1/2"},
		Points:    map[string]int{"q3": 2, "q2": 0},
	}
}

func TestGradeUsesPointsAndIgnoresUnknownAnswers(t *testing.T) {
	r := record()
	if got := r.MaxScore(); got != 4 {
		t.Fatalf("expected max score 4, got %d", got)
	}

	score, max := r.Grade(map[string]string{"q1": "3/4", "q2": "6", "q3": "1/2", "q9": "x"})
	if score != 3 || max != 4 {
		t.Fatalf("expected 3/4, got %d/%d", score, max)
	}

	score, _ = r.Grade(nil)
	if score != 0 {
		t.Fatalf("no answers must score zero, got %d", score)
	}
}

func TestAnswerEntriesFollowQuizOrder(t *testing.T) {
	q := &record().Quiz
	entries := AnswerEntries(q, map[string]string{"zz": "a", "q3": "1/2", "q1": "3/4", "aa": "b"})

	want := []string{"q1", "q3", "aa", "zz"}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, id := range want {
		if entries[i].QuestionID != id {
			t.Fatalf("entry %d: expected %s, got %s", i, id, entries[i].QuestionID)
		}
	}

	back := AnswerMap(entries)
	if len(back) != 4 || back["q3"] != "1/2" {
		t.Fatalf("unexpected answer map: %v", back)
	}
}

func TestRemainingClampsAtZero(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if got := Remaining(start, 10*time.Minute, start.Add(4*time.Minute)); got != 6*time.Minute {
		t.Fatalf("expected 6m, got %v", got)
	}
	if got := Remaining(start, 10*time.Minute, start.Add(time.Hour)); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestNewAttemptStateCopiesAnswers(t *testing.T) {
	idx := 1
	wire := &Attempt{AttemptID: "a1", CurrentAnswers: map[string]string{"q1": "3/4"}, CurrentQuestionIndex: &idx}
	st := NewAttemptState(wire)
	if st.Status != StatusInProgress || st.CurrentIndex != 1 {
		t.Fatalf("unexpected state: %+v", st)
	}

	wire.CurrentAnswers["q1"] = "2/6"
	clone := st.Clone()
	clone.Answers["q2"] = "3"
	if st.Answers["q1"] != "3/4" || len(st.Answers) != 1 {
		t.Fatalf("state must not share maps: %v", st.Answers)
	}
}

func TestTerminalStatuses(t *testing.T) {
	if StatusInProgress.Terminal() || StatusNotStarted.Terminal() {
		t.Fatalf("open statuses reported terminal")
	}
	if !StatusSubmitted.Terminal() || !StatusExpired.Terminal() {
		t.Fatalf("final statuses not reported terminal")
	}
}
