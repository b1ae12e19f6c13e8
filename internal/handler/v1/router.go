package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/config"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/middleware"
	"github.com/dmehra2102/prod-golang-projects/childscreen/pkg/metrics"
)

type RouterDeps struct {
	Config   *config.Config
	Log      *zap.Logger
	Metrics  *metrics.Collector
	Sessions middleware.SessionResolver
	Services Services
	// Health reports whether the database is reachable. Optional.
	Health func(ctx context.Context) error
	// MaxImportBytes caps import uploads; zero uses the default.
	MaxImportBytes int64
}

func NewRouter(d RouterDeps) *gin.Engine {
	if d.Config.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Tracing(),
		middleware.Recovery(d.Log),
		middleware.Logger(d.Log),
		middleware.Metrics(d.Metrics),
		middleware.CORS(d.Config.CORS),
		middleware.RateLimit(d.Config.RateLimit.RequestsPerSecond, d.Config.RateLimit.BurstSize),
		middleware.Deadline(d.Config.Server.RequestTimeout),
	)

	r.GET("/health", healthHandler(d.Config.App, d.Health))
	r.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	authH := NewAuthHandler(d.Services.Auth)
	patientH := NewPatientHandler(d.Services.Patients, d.MaxImportBytes)
	cycleH := NewCycleHandler(d.Services.Cycles)
	screeningH := NewScreeningHandler(d.Services.Screening)
	userH := NewUserHandler(d.Services.Users)

	api := r.Group("/api/v1")

	public := api.Group("/auth")
	public.POST("/login", middleware.LoginRateLimit(d.Config.RateLimit.AuthRequestsPerMinute), authH.Login)
	public.POST("/refresh", authH.Refresh)

	protected := api.Group("", middleware.Auth(d.Sessions, d.Log))
	adminOnly := middleware.RequireRole(domain.RoleAdmin)

	protected.POST("/auth/logout", authH.Logout)
	protected.GET("/auth/session", authH.Session)

	patients := protected.Group("/patients")
	patients.GET("", patientH.List)
	patients.POST("", patientH.Create)
	patients.GET("/export", patientH.Export)
	patients.POST("/import/preview", patientH.PreviewImport)
	patients.POST("/import/:preview_id/commit", patientH.CommitImport)
	patients.PATCH("/:code", patientH.Update)
	patients.DELETE("/:code", adminOnly, patientH.Delete)
	patients.POST("/bulk-delete", adminOnly, patientH.BulkDelete)
	patients.POST("/export/archive", adminOnly, patientH.ArchiveExport)

	cycles := protected.Group("/cycles")
	cycles.GET("", cycleH.List)
	cycles.GET("/active", cycleH.Active)
	cycles.POST("", adminOnly, cycleH.Create)
	cycles.PATCH("/:id", adminOnly, cycleH.Rename)
	cycles.POST("/:id/activate", adminOnly, cycleH.Activate)
	cycles.POST("/:id/deactivate", adminOnly, cycleH.Deactivate)
	cycles.DELETE("/:id", adminOnly, cycleH.Delete)

	screenings := protected.Group("/screenings")
	screenings.GET("/worklist", screeningH.Worklist)
	screenings.GET("/summary", screeningH.Summary)
	screenings.GET("/:code", screeningH.Get)
	screenings.PUT("/:code/sections/:section", screeningH.SaveSection)

	users := protected.Group("/users", adminOnly)
	users.GET("", userH.List)
	users.POST("", userH.Create)
	users.PATCH("/:id", userH.Update)
	users.POST("/:id/reset-password", userH.ResetPassword)
	users.DELETE("/:id", userH.Delete)

	r.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, "route not found")
	})

	return r
}

func healthHandler(app config.AppConfig, check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}
		c.JSON(code, gin.H{
			"status":  status,
			"service": app.Name,
			"version": app.Version,
		})
	}
}
