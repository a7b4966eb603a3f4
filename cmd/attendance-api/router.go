package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/lan-attendance-api/internal/middleware"
	"github.com/noah-isme/lan-attendance-api/internal/models"
	"github.com/noah-isme/lan-attendance-api/internal/realtime"
	"github.com/noah-isme/lan-attendance-api/pkg/config"
	"github.com/noah-isme/lan-attendance-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/lan-attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lan-attendance-api/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, logr *zap.Logger, a *app) *gin.Engine {
	r := gin.New()
	// Student identifiers may contain slashes, sent percent-encoded.
	r.UseRawPath = true
	r.UnescapePathValues = true

	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.metrics))

	r.GET("/ready", a.health.Ready)
	r.GET("/metrics", a.health.Prometheus)
	realtime.RegisterRoutes(r, a.hub)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	throttle := func(c *gin.Context) { c.Next() }
	if cfg.RateLimit.Enabled {
		throttle = middleware.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst, cfg.RateLimit.IdleEviction).Middleware()
	}
	audit := func(action, resource, param string) gin.HandlerFunc {
		return middleware.Audit(a.audit, logr, action, resource, param)
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/health", a.health.Health)
	api.POST("/enroll", throttle, a.enrollment.Enroll)
	api.GET("/enrollment/status/:id", a.enrollment.Status)
	api.POST("/check-in", throttle, a.checkIn.CheckIn)
	api.GET("/session/active", a.sessions.Active)
	api.POST("/lecturer/login", throttle, a.authH.Login)

	if cfg.Attendance.RebindRequiresLecturer {
		api.POST("/re-enroll", throttle, middleware.JWT(a.auth), middleware.RequireLecturer(), audit(models.AuditActionRebind, "student", ""), a.enrollment.Rebind)
	} else {
		api.POST("/re-enroll", throttle, middleware.OptionalJWT(a.auth), audit(models.AuditActionRebind, "student", ""), a.enrollment.Rebind)
	}

	lecturer := api.Group("")
	lecturer.Use(middleware.JWT(a.auth), middleware.RequireLecturer())
	{
		lecturer.POST("/lecturer/logout", a.authH.Logout)

		lecturer.POST("/session/start", audit(models.AuditActionSessionStart, "session", ""), a.sessions.Start)
		lecturer.POST("/session/end", audit(models.AuditActionSessionEnd, "session", ""), a.sessions.End)
		lecturer.GET("/session/qr", a.sessions.QR)
		lecturer.GET("/sessions/history", a.sessions.History)

		lecturer.GET("/attendance/:id", a.attendance.ForSession)
		lecturer.GET("/attendance/:id/export", a.attendance.Export)
		lecturer.POST("/attendance/override", audit(models.AuditActionOverride, "attendance", ""), a.attendance.Override)

		lecturer.GET("/students", a.students.List)
		lecturer.GET("/students/:id", a.students.Get)
		lecturer.GET("/students/:id/attendance", a.students.Attendance)
		lecturer.POST("/students/:id/deactivate", audit(models.AuditActionDeactivate, "student", "id"), a.students.Deactivate)
		lecturer.POST("/students/:id/reactivate", audit(models.AuditActionReactivate, "student", "id"), a.students.Reactivate)

		lecturer.GET("/sync/status", a.ops.SyncStatus)
		lecturer.GET("/audit-logs", a.ops.AuditLogs)
		lecturer.GET("/realtime/stats", realtime.Stats(a.hub))
	}

	return r
}
