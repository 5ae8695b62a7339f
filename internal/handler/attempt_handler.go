package handler

import (
	"errors"
	"net/http"

	"github.com/filiup/quizsession/internal/middleware"
	"github.com/filiup/quizsession/internal/model"
	"github.com/filiup/quizsession/internal/response"
	"github.com/filiup/quizsession/internal/service"
	"github.com/filiup/quizsession/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AttemptHandler handles the student quiz-taking endpoints.
type AttemptHandler struct {
	quizService    *service.QuizService
	attemptService *service.AttemptService
	log            zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(quizService *service.QuizService, attemptService *service.AttemptService, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		quizService:    quizService,
		attemptService: attemptService,
		log:            log.With().Str("component", "attempt_handler").Logger(),
	}
}

// GetQuiz godoc
// GET /api/v1/student/quizzes/:quiz_id
// Returns the quiz questions without the answer key.
func (h *AttemptHandler) GetQuiz(c *gin.Context) {
	quizID, ok := parseID(c, "quiz_id")
	if !ok {
		return
	}

	quiz, err := h.quizService.GetDefinition(c.Request.Context(), quizID)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, quiz)
}

// CheckEligibility godoc
// GET /api/v1/student/quizzes/:quiz_id/eligibility
func (h *AttemptHandler) CheckEligibility(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	quizID, ok := parseID(c, "quiz_id")
	if !ok {
		return
	}

	elig, err := h.attemptService.CheckEligibility(c.Request.Context(), quizID, claims.UserID)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, elig)
}

// CreateAttempt godoc
// POST /api/v1/student/quizzes/:quiz_id/attempts
// Starts an attempt (idempotent while one is in progress).
func (h *AttemptHandler) CreateAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	quizID, ok := parseID(c, "quiz_id")
	if !ok {
		return
	}

	attempt, err := h.attemptService.CreateAttempt(c.Request.Context(), quizID, claims.UserID)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, attempt)
}

// GetAttempt godoc
// GET /api/v1/student/attempts/:attempt_id
// Returns the attempt with its saved answers and question index, so a
// reloaded client can resume.
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}

	attempt, err := h.attemptService.GetAttempt(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, attempt)
}

// SaveProgress godoc
// PUT /api/v1/student/attempts/:attempt_id/progress
func (h *AttemptHandler) SaveProgress(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}

	var req model.ProgressSave
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if req.AttemptID != attemptID.String() {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	if err := h.attemptService.SaveProgress(c.Request.Context(), attemptID, claims.UserID, req); err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// SubmitAttempt godoc
// POST /api/v1/student/attempts/:attempt_id/submit
// Grades the answers and closes the attempt.
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}

	var req model.Submission
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.attemptService.Submit(c.Request.Context(), attemptID, claims.UserID, req)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// LogViolation godoc
// POST /api/v1/student/attempts/:attempt_id/violations
// Queues a proctoring violation; persisted asynchronously.
func (h *AttemptHandler) LogViolation(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}

	var req model.ViolationEntry
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.LogViolation(c.Request.Context(), attemptID, claims.UserID, req); err != nil {
		writeServiceError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"status": "queued"})
}

// writeServiceError maps service errors onto API error codes.
func writeServiceError(c *gin.Context, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrQuizNotFound), errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusNotFound, response.ErrQuizNotFound)
	case errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
	case errors.Is(err, service.ErrAttemptCompleted):
		response.Fail(c, http.StatusConflict, response.ErrAttemptCompleted)
	case errors.Is(err, service.ErrAttemptExpired):
		response.Fail(c, http.StatusGone, response.ErrAttemptExpired)
	case errors.Is(err, service.ErrQuizMismatch):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
