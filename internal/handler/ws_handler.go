package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/filiup/quizsession/internal/middleware"
	"github.com/filiup/quizsession/internal/response"
	"github.com/filiup/quizsession/internal/service"
	ws "github.com/filiup/quizsession/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients (the terminal client) send no Origin.
				return true
			}
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves the per-attempt push stream.
type WSHandler struct {
	attemptService *service.AttemptService
	warnBefore     time.Duration
	now            func() time.Time
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. warnBefore is the remaining time at
// which TIME_WARNING is pushed; zero disables the warning.
func NewWSHandler(attemptService *service.AttemptService, warnBefore time.Duration, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		warnBefore:     warnBefore,
		now:            time.Now,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/attempts/:attempt_id/stream
// Pushes TIME_WARNING and QUIZ_TIMEOUT for an in-progress attempt, then
// closes. Client frames are ignored.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}

	// Resolve the deadline before upgrading so failures are plain HTTP errors.
	deadline, err := h.attemptService.Deadline(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		writeServiceError(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", claims.UserID).
		Str("attempt_id", attemptID.String()).
		Logger()
	wsLog.Info().Time("deadline", deadline).Msg("Student connected")

	gone := make(chan struct{})
	go ws.Drain(conn, gone)

	plan := ws.NewSchedule(deadline, h.now(), h.warnBefore)

	var warnC <-chan time.Time
	if plan.WarnIn >= 0 {
		warn := time.NewTimer(plan.WarnIn)
		defer warn.Stop()
		warnC = warn.C
	}
	timeout := time.NewTimer(plan.TimeoutIn)
	defer timeout.Stop()

	for {
		select {
		case <-gone:
			wsLog.Debug().Msg("Connection closed")
			return
		case <-warnC:
			warnC = nil
			if err := ws.WritePush(conn, ws.TimeWarning(plan.WarnLeft)); err != nil {
				wsLog.Warn().Err(err).Msg("Time warning push failed")
				return
			}
		case <-timeout.C:
			if err := ws.WritePush(conn, ws.QuizTimeout()); err != nil {
				wsLog.Warn().Err(err).Msg("Timeout push failed")
				return
			}
			_ = ws.WriteClose(conn, "time up")
			wsLog.Info().Msg("Timeout pushed")
			return
		}
	}
}
