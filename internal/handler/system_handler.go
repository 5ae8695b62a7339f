package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/filiup/quizsession/internal/config"
	"github.com/filiup/quizsession/internal/response"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Pinger is a dependency whose liveness can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler reports service health.
type SystemHandler struct {
	db        Pinger
	rdb       *redis.Client
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a new SystemHandler. db may be nil.
func NewSystemHandler(db Pinger, rdb *redis.Client, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		db:        db,
		rdb:       rdb,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type healthStatus struct {
	Status     string            `json:"status"`
	Uptime     string            `json:"uptime"`
	Goroutines int               `json:"goroutines"`
	Checks     map[string]string `json:"checks"`
	Queues     map[string]int64  `json:"queues,omitempty"`
}

// Health godoc
// GET /health
// Pings PostgreSQL and Redis and reports the persistence queue depths.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	st := healthStatus{
		Status:     "ok",
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		Checks:     map[string]string{},
	}

	if h.db != nil {
		st.Checks["postgres"] = h.check("postgres", h.db.Ping(ctx))
	}

	pipe := h.rdb.Pipeline()
	ping := pipe.Ping(ctx)
	progressLen := pipe.LLen(ctx, config.WorkerKey.PersistProgressQueue)
	violationLen := pipe.LLen(ctx, config.WorkerKey.PersistViolationsQueue)
	_, _ = pipe.Exec(ctx)
	st.Checks["redis"] = h.check("redis", ping.Err())
	if ping.Err() == nil {
		st.Queues = map[string]int64{
			config.WorkerKey.PersistProgressQueue:   progressLen.Val(),
			config.WorkerKey.PersistViolationsQueue: violationLen.Val(),
		}
	}

	code := http.StatusOK
	for _, v := range st.Checks {
		if v != "ok" {
			st.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	response.Success(c, code, st)
}

func (h *SystemHandler) check(name string, err error) string {
	if err != nil {
		h.log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
		return "down"
	}
	return "ok"
}
