package router

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/webexam/internal/config"
	"github.com/stemsi/webexam/internal/handler"
	"github.com/stemsi/webexam/internal/metrics"
	"github.com/stemsi/webexam/internal/middleware"
	"github.com/stemsi/webexam/internal/model"
	"github.com/stemsi/webexam/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	User    *handler.UserHandler
	Exam    *handler.ExamHandler
	Taking  *handler.ExamTakingHandler
	Result  *handler.ResultHandler
	Monitor *handler.MonitorHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// limiter may be nil to disable rate limiting of the auth endpoints.
func SetupRouter(
	tokens middleware.TokenValidator,
	handlers *Handlers,
	limiter *middleware.RateLimiter,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())

	// Prometheus scrapes are left uncompressed.
	brotliCfg := middleware.DefaultBrotliConfig
	brotliCfg.Skipper = func(c *gin.Context) bool {
		return strings.HasPrefix(c.Request.URL.Path, "/metrics")
	}
	router.Use(middleware.BrotliWithConfig(brotliCfg))

	if cfg.MetricsEnabled {
		metrics.Init()
		router.Use(metrics.Middleware())
		router.GET("/metrics", metrics.Handler())
	}

	router.GET("/health", handlers.System.Health)

	authRequired := middleware.RequireAuth(tokens)
	authors := middleware.RequireRole(model.RoleTeacher, model.RoleAdmin)

	v1 := router.Group("/api/v1")

	// ─── 1. Auth ───────────────────────────────────────────────────────
	auth := v1.Group("/auth")
	if limiter != nil {
		auth.Use(limiter.Middleware())
	}
	{
		auth.POST("/register", handlers.Auth.Register)
		auth.POST("/login", handlers.Auth.Login)
		auth.GET("/me", authRequired, handlers.Auth.Me)
		auth.POST("/change-password", authRequired, handlers.Auth.ChangePassword)
	}

	// ─── 2. Exams (authoring & author views) ───────────────────────────
	exams := v1.Group("/exams")
	exams.Use(authRequired)
	{
		exams.GET("", handlers.Exam.List)
		exams.GET("/mine", authors, handlers.Exam.Mine)
		exams.POST("", authors, handlers.Exam.Create)
		exams.GET("/:id", handlers.Exam.Get)
		exams.PUT("/:id", authors, handlers.Exam.Update)
		exams.DELETE("/:id", authors, handlers.Exam.Delete)
		exams.POST("/:id/publish", authors, handlers.Exam.Publish)
		exams.POST("/:id/unpublish", authors, handlers.Exam.Unpublish)
		exams.GET("/:id/statistics", authors, handlers.Exam.Statistics)
		exams.GET("/:id/attempts", authors, handlers.Exam.Attempts)
		exams.GET("/:id/monitor", authors, handlers.Monitor.Monitor)
	}

	v1.POST("/sessions/:id/terminate", authRequired, authors, handlers.Exam.TerminateSession)

	// ─── 3. Exam taking ────────────────────────────────────────────────
	taking := v1.Group("/taking")
	taking.Use(middleware.NoStore(), authRequired)
	{
		taking.POST("/start", handlers.Taking.Start)
		taking.GET("/active/:examId", handlers.Taking.Active)
		taking.GET("/exams/:examId/can-start", handlers.Taking.CanStart)
		taking.GET("/exams/:examId/remaining-attempts", handlers.Taking.RemainingAttempts)
		taking.GET("/sessions", handlers.Taking.Sessions)
		taking.GET("/sessions/:id", handlers.Taking.Session)
		taking.GET("/sessions/:id/next-question", handlers.Taking.NextQuestion)
		taking.GET("/sessions/:id/questions/:questionId", handlers.Taking.Question)
		taking.POST("/sessions/:id/answers", handlers.Taking.Answer)
		taking.POST("/sessions/:id/submit", handlers.Taking.Submit)
		taking.GET("/sessions/:id/stream", handlers.WS.Stream)
	}

	// ─── 4. Results ────────────────────────────────────────────────────
	results := v1.Group("/results")
	results.Use(middleware.NoStore(), authRequired)
	{
		results.GET("/my", handlers.Result.My)
		results.GET("/sessions/:id", handlers.Result.BySession)
		results.GET("/:id", handlers.Result.Details)
	}

	// ─── 5. Admin ──────────────────────────────────────────────────────
	admin := v1.Group("/admin")
	admin.Use(authRequired, middleware.RequireRole(model.RoleAdmin))
	{
		admin.POST("/sweep", handlers.System.Sweep)
		admin.GET("/users", handlers.User.List)
		admin.GET("/users/:id", handlers.User.Get)
		admin.PUT("/users/:id/activate", handlers.User.Activate)
		admin.PUT("/users/:id/deactivate", handlers.User.Deactivate)
	}

	return router
}
