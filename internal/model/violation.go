package model

import "time"

// Severity grades a proctoring violation.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ViolationKind names the action that was caught.
type ViolationKind string

const (
	ViolationFullscreenExit  ViolationKind = "FULLSCREEN_EXIT"
	ViolationBlockedShortcut ViolationKind = "BLOCKED_SHORTCUT"
	ViolationContextMenu     ViolationKind = "CONTEXT_MENU"
	ViolationCopy            ViolationKind = "COPY"
	ViolationCut             ViolationKind = "CUT"
	ViolationPaste           ViolationKind = "PASTE"
)

// ViolationEntry is one proctoring log record.
type ViolationEntry struct {
	Action        ViolationKind `json:"action" binding:"required,max=64"`
	Description   string        `json:"description" binding:"max=500"`
	Severity      Severity      `json:"severity" binding:"required,oneof=LOW MEDIUM HIGH CRITICAL"`
	QuestionIndex int           `json:"questionIndex" binding:"min=0"`
	Timestamp     time.Time     `json:"timestamp" binding:"required"`
}

// PushType enumerates realtime push messages.
type PushType string

const (
	PushQuizTimeout PushType = "QUIZ_TIMEOUT"
	PushTimeWarning PushType = "TIME_WARNING"
)

// PushMessage is a message of the optional realtime channel.
type PushMessage struct {
	Type    PushType `json:"type"`
	Message string   `json:"message"`
}
