package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/unipoints/course-api/api/swagger"
	"github.com/unipoints/course-api/internal/handler"
	"github.com/unipoints/course-api/internal/middleware"
	"github.com/unipoints/course-api/internal/models"
	"github.com/unipoints/course-api/internal/repository"
	"github.com/unipoints/course-api/internal/service"
	"github.com/unipoints/course-api/pkg/cache"
	"github.com/unipoints/course-api/pkg/config"
	"github.com/unipoints/course-api/pkg/database"
	"github.com/unipoints/course-api/pkg/jobs"
	"github.com/unipoints/course-api/pkg/logger"
	corsmiddleware "github.com/unipoints/course-api/pkg/middleware/cors"
	reqidmiddleware "github.com/unipoints/course-api/pkg/middleware/requestid"
	"github.com/unipoints/course-api/pkg/storage"
)

// @title Course API
// @version 1.0.0
// @description Course enrollment platform backend
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, course cache disabled", "error", err)
		redisClient = nil
	}

	bannerStore, err := storage.NewBannerStore(cfg.Banners.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init banner storage", "error", err)
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsService := service.NewMetricsService()
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)
	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	courseService := service.NewCourseService(courseRepo, userRepo, bannerStore, cacheService, service.BannerPolicy{
		MaxFileSizeBytes: cfg.Banners.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Banners.AllowedMIMEs,
	}, validate, logr)
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, validate, logr)
	exportService := service.NewExportService(courseRepo, enrollmentRepo, logr)

	var auditQueue *jobs.Queue
	if cfg.Audit.Enabled {
		auditQueue = jobs.NewQueue("audit", func(ctx context.Context, job jobs.Job) error {
			entry, ok := job.Payload.(*models.AuditLog)
			if !ok {
				return fmt.Errorf("unexpected audit payload type %T", job.Payload)
			}
			return userRepo.CreateAuditLog(ctx, entry)
		}, jobs.QueueConfig{
			Workers:    cfg.Audit.Workers,
			BufferSize: cfg.Audit.BufferSize,
			Logger:     logr,
		})
		auditQueue.Start(context.Background())
		defer auditQueue.Stop()
	}

	authHandler := handler.NewAuthHandler(authService)
	courseHandler := handler.NewCourseHandler(courseService, exportService)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsService.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authService))

	authed.GET("/courses", courseHandler.List)
	authed.GET("/courses/:id", courseHandler.Get)
	authed.POST("/courses/:id/enroll",
		middleware.Audit(auditQueue, models.AuditActionEnroll, "enrollment"),
		enrollmentHandler.Enroll)
	authed.POST("/courses/:id/feedback",
		middleware.Audit(auditQueue, models.AuditActionFeedback, "feedback"),
		enrollmentHandler.Feedback)

	staff := authed.Group("")
	staff.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher))
	staff.PUT("/courses/:id",
		middleware.Audit(auditQueue, models.AuditActionCourseWrite, "course"),
		courseHandler.UpdateInfo)
	staff.PUT("/courses/:id/banner",
		middleware.Audit(auditQueue, models.AuditActionCourseWrite, "course"),
		courseHandler.UpdateBanner)
	staff.PUT("/courses/:id/schedule",
		middleware.Audit(auditQueue, models.AuditActionCourseWrite, "course"),
		courseHandler.UpdateSchedule)
	staff.PUT("/courses/:id/dates",
		middleware.Audit(auditQueue, models.AuditActionCourseWrite, "course"),
		courseHandler.UpdateDates)
	staff.POST("/courses/:id/teachers",
		middleware.Audit(auditQueue, models.AuditActionCourseWrite, "course"),
		courseHandler.AddTeachers)
	staff.DELETE("/courses/:id/teachers/:teacherId",
		middleware.Audit(auditQueue, models.AuditActionCourseWrite, "course"),
		courseHandler.RemoveTeacher)
	staff.GET("/courses/:id/enrollments", courseHandler.ListEnrolled)
	staff.GET("/courses/:id/roster/export", courseHandler.ExportRoster)

	admin := authed.Group("")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	admin.POST("/courses",
		middleware.Audit(auditQueue, models.AuditActionCourseWrite, "course"),
		courseHandler.Create)
	admin.DELETE("/courses/:id",
		middleware.Audit(auditQueue, models.AuditActionCourseDelete, "course"),
		courseHandler.Delete)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
