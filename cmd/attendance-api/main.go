package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/lan-attendance-api/api/swagger"
	"github.com/noah-isme/lan-attendance-api/internal/handler"
	"github.com/noah-isme/lan-attendance-api/internal/realtime"
	"github.com/noah-isme/lan-attendance-api/internal/repository"
	"github.com/noah-isme/lan-attendance-api/internal/service"
	"github.com/noah-isme/lan-attendance-api/pkg/cache"
	"github.com/noah-isme/lan-attendance-api/pkg/config"
	"github.com/noah-isme/lan-attendance-api/pkg/database"
	"github.com/noah-isme/lan-attendance-api/pkg/logger"
	"github.com/noah-isme/lan-attendance-api/pkg/signing"
	"github.com/noah-isme/lan-attendance-api/pkg/storage"
)

// @title LAN Attendance API
// @version 1.0.0
// @description Classroom attendance over the local network: device-bound enrollment, lecturer sessions and live check-in.
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	rc, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if rc != nil {
		defer rc.Close()
	}

	app, err := buildApp(cfg, logr, db, rc)
	if err != nil {
		return err
	}

	go app.hub.Run(ctx)
	app.sync.Start(ctx)
	defer app.sync.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, logr, app),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("db_driver", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("forced shutdown", zap.Error(err))
	}
	return nil
}

type app struct {
	metrics    *service.MetricsService
	auth       *service.AuthService
	audit      *repository.AuditRepository
	hub        *realtime.Hub
	sync       *service.SyncService
	health     *handler.HealthHandler
	enrollment *handler.EnrollmentHandler
	sessions   *handler.SessionHandler
	checkIn    *handler.CheckInHandler
	attendance *handler.AttendanceHandler
	students   *handler.StudentHandler
	authH      *handler.AuthHandler
	ops        *handler.OpsHandler
}

func buildApp(cfg *config.Config, logr *zap.Logger, db *sqlx.DB, rc *redis.Client) (*app, error) {
	validate := validator.New()
	metrics := service.NewMetricsService()

	studentRepo := repository.NewStudentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	syncRepo := repository.NewSyncRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	revocations := repository.NewRevocationRepository(rc, logr)

	authSvc, err := service.NewAuthService(auditRepo, revocations, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
		PasswordHash:      cfg.Lecturer.PasswordHash,
		Password:          cfg.Lecturer.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("init auth: %w", err)
	}

	// The hub is the notifier; check-ins reach it from both HTTP and the socket.
	var fanout *redis.Client
	if cfg.Realtime.RedisFanout {
		fanout = rc
	}
	hub := realtime.NewHub(realtime.Config{
		Tokens:       authSvc,
		Metrics:      metrics,
		Redis:        fanout,
		RedisChannel: cfg.Realtime.Channel,
		Logger:       logr.Named("realtime"),
	})

	enrollmentSvc := service.NewEnrollmentService(studentRepo, validate, logr)
	sessionSvc := service.NewSessionService(sessionRepo, hub, validate, logr, service.SessionConfig{TokenBytes: cfg.Attendance.SessionTokenBytes})
	checkInSvc := service.NewCheckInService(sessionRepo, studentRepo, attendanceRepo, hub, metrics, validate, logr, service.CheckInConfig{LateThreshold: cfg.Attendance.LateThreshold})
	attendanceSvc := service.NewAttendanceService(attendanceRepo, sessionRepo, studentRepo, hub, validate, logr)
	auditSvc := service.NewAuditService(auditRepo, logr)
	hub.SetCheckIns(checkInSvc)

	target, signer, err := buildSyncTarget(cfg.Sync, rc, logr)
	if err != nil {
		return nil, err
	}
	syncSvc := service.NewSyncService(syncRepo, studentRepo, attendanceRepo, target, signer, metrics, logr.Named("sync"), service.SyncConfig{
		Enabled:     cfg.Sync.Enabled,
		Interval:    cfg.Sync.Interval,
		BatchSize:   cfg.Sync.BatchSize,
		Workers:     cfg.Sync.Workers,
		MaxAttempts: cfg.Sync.MaxAttempts,
		RetryDelay:  cfg.Sync.RetryDelay,
	})

	return &app{
		metrics:    metrics,
		auth:       authSvc,
		audit:      auditRepo,
		hub:        hub,
		sync:       syncSvc,
		health:     handler.NewHealthHandler(cfg.ServiceName, db, metrics),
		enrollment: handler.NewEnrollmentHandler(enrollmentSvc),
		sessions:   handler.NewSessionHandler(sessionSvc),
		checkIn:    handler.NewCheckInHandler(checkInSvc),
		attendance: handler.NewAttendanceHandler(attendanceSvc),
		students:   handler.NewStudentHandler(enrollmentSvc, attendanceSvc),
		authH:      handler.NewAuthHandler(authSvc),
		ops:        handler.NewOpsHandler(syncSvc, auditSvc),
	}, nil
}

// buildSyncTarget returns a nil target when sync is disabled or unconfigured.
func buildSyncTarget(cfg config.SyncConfig, rc *redis.Client, logr *zap.Logger) (service.SyncTarget, *signing.Signer, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}
	signer, err := signing.NewSigner(cfg.HMACSecret, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("sync enabled without HMAC_SECRET: %w", err)
	}
	switch cfg.Target {
	case config.SyncTargetRedis:
		if rc == nil {
			return nil, nil, fmt.Errorf("sync target redis requires REDIS_ENABLED")
		}
		return service.NewRedisSyncTarget(rc, cfg.RedisKey), signer, nil
	case config.SyncTargetFile, "":
		store, err := storage.NewLocalStorage(cfg.OutboxDir)
		if err != nil {
			return nil, nil, fmt.Errorf("init sync outbox: %w", err)
		}
		logr.Info("sync outbox ready", zap.String("dir", cfg.OutboxDir), zap.String("file", store.Path(service.OutboxFilename(time.Now()))))
		return service.NewFileSyncTarget(store), signer, nil
	default:
		return nil, nil, fmt.Errorf("unknown SYNC_TARGET %q", cfg.Target)
	}
}
