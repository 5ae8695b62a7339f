package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/filiup/quizsession/internal/model"
	"github.com/filiup/quizsession/internal/session"
)

const (
	clearScreen = "\x1b[H\x1b[2J"
	// Raw mode does not translate newlines.
	newline = "\r\n"
)

// Render draws one frame of s. width wraps long prompts; zero means 80.
func Render(w io.Writer, s session.Snapshot, width int) error {
	if width <= 0 {
		width = 80
	}
	var b strings.Builder
	b.WriteString(clearScreen)

	if s.Quiz == nil || s.Attempt == nil {
		b.WriteString("Starting quiz..." + newline)
		_, err := io.WriteString(w, b.String())
		return err
	}

	line(&b, s.Quiz.Title)
	line(&b, strings.Repeat("=", min(width, len([]rune(s.Quiz.Title))+2)))

	switch {
	case s.Status == model.StatusSubmitted || s.Status == model.StatusExpired:
		renderFinal(&b, s)
	case s.Locked:
		line(&b, endMessage(s.EndReason))
		line(&b, "Submitting your answers...")
	default:
		renderQuestion(&b, s, width)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func renderQuestion(b *strings.Builder, s session.Snapshot, width int) {
	total := len(s.Quiz.Questions)
	idx := s.Attempt.CurrentIndex
	line(b, fmt.Sprintf("Time left %s   Question %d/%d   Answered %d/%d   Violations %d/%d",
		Clock(s.Remaining), idx+1, total, s.Answered, total, s.Violations, s.ViolationLimit))
	if s.Notice != "" {
		line(b, "! "+s.Notice)
	}
	b.WriteString(newline)

	q := s.CurrentQuestion()
	if q == nil {
		return
	}
	for _, l := range Wrap(q.Prompt, width) {
		line(b, l)
	}
	b.WriteString(newline)

	chosen := s.Attempt.Answers[q.ID]
	for i, opt := range q.Options {
		mark := " "
		if opt == chosen {
			mark = "x"
		}
		line(b, fmt.Sprintf(" [%s] %c) %s", mark, 'A'+i, opt))
	}
	b.WriteString(newline)

	switch {
	case s.Submitting:
		line(b, "Submitting...")
	case s.SubmitErr != nil:
		line(b, "Submit failed: "+s.SubmitErr.Error())
		line(b, "Press s to try again.")
	}
	next := "n next"
	if idx == total-1 {
		next = "enter submit"
	}
	line(b, fmt.Sprintf("1-%d choose   p back   %s   s submit", len(q.Options), next))
}

func renderFinal(b *strings.Builder, s session.Snapshot) {
	if s.EndReason != "" && s.EndReason != session.EndSubmitted {
		line(b, endMessage(s.EndReason))
	}
	if s.Result != nil {
		line(b, fmt.Sprintf("Score: %d/%d (%.2f%%)", s.Result.Score, s.Result.MaxPossibleScore, s.Result.ScorePercentage))
		if s.Result.Feedback != "" {
			line(b, s.Result.Feedback)
		}
	} else if s.Status == model.StatusSubmitted {
		line(b, "Your answers were submitted.")
	}
	if s.TerminalErr != nil {
		line(b, "Your answers could not be submitted: "+s.TerminalErr.Error())
	}
	b.WriteString(newline)
	line(b, "Press q to exit.")
}

func endMessage(r session.EndReason) string {
	switch r {
	case session.EndTimeUp:
		return "Time is up."
	case session.EndViolationLimit:
		return "The quiz was ended after too many violations."
	}
	return "The quiz has ended."
}

func line(b *strings.Builder, s string) {
	b.WriteString(s)
	b.WriteString(newline)
}

// Clock formats a remaining duration as mm:ss, or h:mm:ss past an hour.
func Clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int((d + time.Second - 1) / time.Second)
	h, m, sec := secs/3600, secs%3600/60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}

// Wrap breaks text into lines of at most width runes on word boundaries.
// Words longer than width are split.
func Wrap(text string, width int) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		var cur []rune
		for _, word := range strings.Fields(para) {
			w := []rune(word)
			for len(w) > width {
				if len(cur) > 0 {
					lines = append(lines, string(cur))
					cur = nil
				}
				lines = append(lines, string(w[:width]))
				w = w[width:]
			}
			switch {
			case len(cur) == 0:
				cur = w
			case len(cur)+1+len(w) <= width:
				cur = append(append(cur, ' '), w...)
			default:
				lines = append(lines, string(cur))
				cur = w
			}
		}
		lines = append(lines, string(cur))
	}
	return lines
}
