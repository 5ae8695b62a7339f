package model

import "time"

// Question is a single multiple-choice item as shown to a student.
// The correct option never leaves the server.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// QuizDefinition is the immutable quiz a session is started with.
type QuizDefinition struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	TimeLimitMinutes int        `json:"timeLimitMinutes"`
	Questions        []Question `json:"questions"`
}

// TimeLimit returns the time limit as a duration.
func (q *QuizDefinition) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitMinutes) * time.Minute
}

// QuestionIndex returns the position of the question with the given ID, or -1.
func (q *QuizDefinition) QuestionIndex(questionID string) int {
	for i := range q.Questions {
		if q.Questions[i].ID == questionID {
			return i
		}
	}
	return -1
}

// HasOption reports whether option is one of the choices of the question.
func (q *Question) HasOption(option string) bool {
	for _, o := range q.Options {
		if o == option {
			return true
		}
	}
	return false
}

// AnswerKey maps question ID to the correct option. Server side only.
type AnswerKey map[string]string

// QuizRecord is a quiz as stored by the attempt API, answer key included.
type QuizRecord struct {
	Quiz      QuizDefinition `json:"quiz"`
	AnswerKey AnswerKey      `json:"answerKey"`
	// Points per question; questions without an entry are worth one point.
	Points map[string]int `json:"points,omitempty"`
}

// MaxScore returns the highest attainable score for the quiz.
func (r *QuizRecord) MaxScore() int {
	total := 0
	for _, q := range r.Quiz.Questions {
		total += r.pointsFor(q.ID)
	}
	return total
}

// Grade scores the given answers against the answer key.
func (r *QuizRecord) Grade(answers map[string]string) (score, max int) {
	for _, q := range r.Quiz.Questions {
		p := r.pointsFor(q.ID)
		max += p
		if correct, ok := r.AnswerKey[q.ID]; ok && answers[q.ID] == correct {
			score += p
		}
	}
	return score, max
}

func (r *QuizRecord) pointsFor(questionID string) int {
	if p, ok := r.Points[questionID]; ok && p > 0 {
		return p
	}
	return 1
}
