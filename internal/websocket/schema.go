// Package websocket holds the server side of the attempt push stream.
package websocket

import (
	"fmt"
	"time"

	"github.com/filiup/quizsession/internal/model"
)

// TimeWarning announces that an attempt is close to its deadline.
func TimeWarning(remaining time.Duration) model.PushMessage {
	mins := int((remaining + time.Minute - 1) / time.Minute)
	if mins < 1 {
		mins = 1
	}
	return model.PushMessage{
		Type:    model.PushTimeWarning,
		Message: fmt.Sprintf("%d minuto na lang ang natitira.", mins),
	}
}

// QuizTimeout announces that the time limit has been reached.
func QuizTimeout() model.PushMessage {
	return model.PushMessage{
		Type:    model.PushQuizTimeout,
		Message: "Ubos na ang oras. Awtomatikong ipapasa ang iyong mga sagot.",
	}
}

// Schedule is the push timeline of one attempt, relative to now.
type Schedule struct {
	// WarnIn is when to send the time warning; negative means skip it.
	WarnIn    time.Duration
	WarnLeft  time.Duration
	TimeoutIn time.Duration
}

// NewSchedule plans the pushes for an attempt ending at deadline. A warning
// window that has already begun yields an immediate warning.
func NewSchedule(deadline, now time.Time, warnBefore time.Duration) Schedule {
	left := deadline.Sub(now)
	if left < 0 {
		left = 0
	}
	s := Schedule{WarnIn: -1, TimeoutIn: left}
	if warnBefore <= 0 || left == 0 {
		return s
	}
	if left > warnBefore {
		s.WarnIn = left - warnBefore
		s.WarnLeft = warnBefore
	} else {
		s.WarnIn = 0
		s.WarnLeft = left
	}
	return s
}
