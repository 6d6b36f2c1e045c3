package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/Skotchmaster/hospital_desk/internal/logging"
	"github.com/Skotchmaster/hospital_desk/internal/middleware/auth"
	"github.com/Skotchmaster/hospital_desk/internal/transport"
)

type Deps struct {
	AuthHandler    *AuthHTTP
	PatientHandler *PatientsHTTP
	BackupHandler  *BackupHTTP
	Gate           *auth.Gate
	// Ready reports whether dependencies such as the database answer.
	Ready func(ctx context.Context) error
	// AuthRateLimit is requests per second per client on /api/auth; zero disables it.
	AuthRateLimit float64
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", d.ready)

	api := e.Group("/api")

	authGroup := api.Group("/auth")
	if d.AuthRateLimit > 0 {
		authGroup.Use(authRateLimiter(d.AuthRateLimit))
	}
	authGroup.POST("/login", d.AuthHandler.Login)
	authGroup.POST("/register", d.AuthHandler.Register)
	authGroup.POST("/logout", d.AuthHandler.Logout, d.Gate.RequireAuth)
	authGroup.GET("/me", d.AuthHandler.Me, d.Gate.RequireAuth)

	patients := api.Group("/patients")
	patients.GET("", d.PatientHandler.List, d.Gate.RequireAuth)
	patients.GET("/search", d.PatientHandler.Search, d.Gate.RequireAuth)
	patients.GET("/:id", d.PatientHandler.Get, d.Gate.RequireAuth)
	patients.POST("", d.PatientHandler.Create, d.Gate.RequireAuth)
	patients.PUT("/:id", d.PatientHandler.Update, d.Gate.RequireAuth)
	patients.DELETE("/:id", d.PatientHandler.Delete, d.Gate.RequireAdmin)

	backup := api.Group("/backup", d.Gate.RequireAdmin)
	backup.GET("/logs", d.BackupHandler.Logs)
	backup.POST("", d.BackupHandler.Run)
	backup.POST("/jobs", d.BackupHandler.StartJob)
	backup.GET("/jobs/:id", d.BackupHandler.GetJob)
	backup.GET("/logfile", d.BackupHandler.LogFile)
}

func (d *Deps) ready(c echo.Context) error {
	if d.Ready == nil {
		return c.NoContent(http.StatusOK)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := d.Ready(ctx); err != nil {
		logging.FromContext(ctx).Warn("readiness_failed", "status", 503, "error", err)
		return c.NoContent(http.StatusServiceUnavailable)
	}
	return c.NoContent(http.StatusOK)
}

func authRateLimiter(perSecond float64) echo.MiddlewareFunc {
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(perSecond),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, transport.MessageResponse{Message: "Unable to identify client"})
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return c.JSON(http.StatusTooManyRequests, transport.MessageResponse{Message: "Too many requests, try again later"})
		},
	})
}
