package router

import (
	"time"

	"github.com/filiup/quizsession/internal/config"
	"github.com/filiup/quizsession/internal/handler"
	"github.com/filiup/quizsession/internal/middleware"
	"github.com/filiup/quizsession/internal/response"
	"github.com/filiup/quizsession/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt *handler.AttemptHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// violationLimiter throttles violation logging per student; nil disables it.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	violationLimiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID first so the access log can carry it.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)

	// ─── Student Group (JWT) ───────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(middleware.RequireStudentJWT(authService))
	{
		quizzes := studentAPI.Group("/quizzes/:quiz_id")
		{
			quizzes.GET("", handlers.Attempt.GetQuiz)
			quizzes.GET("/eligibility", handlers.Attempt.CheckEligibility)
			quizzes.POST("/attempts", handlers.Attempt.CreateAttempt)
		}

		attempts := studentAPI.Group("/attempts/:attempt_id")
		{
			attempts.GET("", handlers.Attempt.GetAttempt)
			attempts.PUT("/progress", handlers.Attempt.SaveProgress)
			attempts.POST("/submit", handlers.Attempt.SubmitAttempt)

			violations := []gin.HandlerFunc{handlers.Attempt.LogViolation}
			if violationLimiter != nil {
				violations = append([]gin.HandlerFunc{violationLimiter.Middleware()}, violations...)
			}
			attempts.POST("/violations", violations...)
		}
	}

	// ─── WebSocket Group (Student WS Auth) ─────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	return router
}
