// Package apiclient is the REST client for the student attempt API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/filiup/quizsession/internal/model"
	"github.com/filiup/quizsession/internal/response"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client calls the attempt API. It implements the backend the quiz session needs.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

// New creates a Client.
func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log.With().Str("component", "api_client").Logger(),
	}
}

// Error is a non-2xx answer of the API.
type Error struct {
	Status  int
	Code    response.ErrCode
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

// AttemptExpired reports whether the API refused because the attempt window closed.
func (e *Error) AttemptExpired() bool {
	return e.Code == response.ErrAttemptExpired
}

// IsCode reports whether err is an API error with the given code.
func IsCode(err error, code response.ErrCode) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func quizPath(quizID string) string {
	return "/api/v1/student/quizzes/" + url.PathEscape(quizID)
}

func attemptPath(attemptID string) string {
	return "/api/v1/student/attempts/" + url.PathEscape(attemptID)
}

// GetQuiz fetches the quiz definition (without answers).
func (c *Client) GetQuiz(ctx context.Context, quizID string) (*model.QuizDefinition, error) {
	var quiz model.QuizDefinition
	if err := c.do(ctx, http.MethodGet, quizPath(quizID), nil, &quiz); err != nil {
		return nil, err
	}
	return &quiz, nil
}

// CheckEligibility asks whether the student may start or resume the quiz.
func (c *Client) CheckEligibility(ctx context.Context, quizID string) (*model.Eligibility, error) {
	var elig model.Eligibility
	if err := c.do(ctx, http.MethodGet, quizPath(quizID)+"/eligibility", nil, &elig); err != nil {
		return nil, err
	}
	return &elig, nil
}

// CreateAttempt starts a new attempt.
func (c *Client) CreateAttempt(ctx context.Context, quizID string) (*model.Attempt, error) {
	var attempt model.Attempt
	if err := c.do(ctx, http.MethodPost, quizPath(quizID)+"/attempts", nil, &attempt); err != nil {
		return nil, err
	}
	return &attempt, nil
}

// GetAttemptWithProgress fetches an attempt with its saved answers and index.
func (c *Client) GetAttemptWithProgress(ctx context.Context, attemptID string) (*model.Attempt, error) {
	var attempt model.Attempt
	if err := c.do(ctx, http.MethodGet, attemptPath(attemptID), nil, &attempt); err != nil {
		return nil, err
	}
	return &attempt, nil
}

// SaveProgress stores in-progress answers.
func (c *Client) SaveProgress(ctx context.Context, save model.ProgressSave) error {
	return c.do(ctx, http.MethodPut, attemptPath(save.AttemptID)+"/progress", save, nil)
}

// SubmitAttempt submits the attempt for scoring.
func (c *Client) SubmitAttempt(ctx context.Context, attemptID string, sub model.Submission) (*model.SubmissionResult, error) {
	var res model.SubmissionResult
	if err := c.do(ctx, http.MethodPost, attemptPath(attemptID)+"/submit", sub, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// LogViolation records a proctoring violation.
func (c *Client) LogViolation(ctx context.Context, attemptID string, entry model.ViolationEntry) error {
	return c.do(ctx, http.MethodPost, attemptPath(attemptID)+"/violations", entry, nil)
}

// envelope mirrors response.Response with a lazily decoded payload.
type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error,omitempty"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	reqID := uuid.New().String()
	req.Header.Set("Accept", "application/json")
	// Setting Accept-Encoding disables the transport's transparent gzip.
	req.Header.Set("Accept-Encoding", "br")
	req.Header.Set("X-Request-ID", reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", res.StatusCode).
		Str("request_id", reqID).
		Dur("took", time.Since(start)).
		Msg("API call")

	var bodyRdr io.Reader = res.Body
	if strings.EqualFold(res.Header.Get("Content-Encoding"), "br") {
		bodyRdr = brotli.NewReader(res.Body)
	}

	var env envelope
	raw, err := io.ReadAll(bodyRdr)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && res.StatusCode/100 == 2 {
			return fmt.Errorf("%s %s: decode envelope: %w", method, path, err)
		}
	}

	if res.StatusCode/100 != 2 {
		apiErr := &Error{Status: res.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s %s: decode data: %w", method, path, err)
	}
	return nil
}
