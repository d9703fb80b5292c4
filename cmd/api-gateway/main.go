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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/evgrid/station-api/api/swagger"
	"github.com/evgrid/station-api/internal/handler"
	"github.com/evgrid/station-api/internal/middleware"
	"github.com/evgrid/station-api/internal/models"
	"github.com/evgrid/station-api/internal/repository"
	"github.com/evgrid/station-api/internal/service"
	"github.com/evgrid/station-api/pkg/cache"
	"github.com/evgrid/station-api/pkg/config"
	"github.com/evgrid/station-api/pkg/database"
	"github.com/evgrid/station-api/pkg/jobs"
	"github.com/evgrid/station-api/pkg/logger"
	corsmiddleware "github.com/evgrid/station-api/pkg/middleware/cors"
	reqidmiddleware "github.com/evgrid/station-api/pkg/middleware/requestid"
	"github.com/evgrid/station-api/pkg/storage"
)

// @title EV Station API
// @version 0.1.0
// @description Moderation pipeline for EV charging station data
// @BasePath /
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, trust cache disabled", "error", err)
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	// Repositories.
	stationRepo := repository.NewStationRepository(db)
	changeRequestRepo := repository.NewChangeRequestRepository(db)
	verificationRepo := repository.NewVerificationRepository(db)
	trustRepo := repository.NewTrustRepository(db)
	issueRepo := repository.NewIssueRepository(db)
	collaboratorRepo := repository.NewCollaboratorRepository(db)
	chargerUnitRepo := repository.NewChargerUnitRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Services.
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(logr, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret})
	auditSvc := service.NewAuditService(auditRepo, logr, jobs.QueueConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
	})
	auditSvc.Start(context.Background())
	defer auditSvc.Stop()

	trustSvc := service.NewTrustService(trustRepo, verificationRepo, issueRepo, changeRequestRepo, logr,
		service.WithTrustLookback(time.Duration(cfg.Trust.LookbackDays)*24*time.Hour),
		service.WithHighRiskThreshold(cfg.Risk.HighRiskThreshold),
		service.WithTrustCache(cacheRepo, cfg.Trust.CacheTTL),
	)
	collaboratorSvc := service.NewCollaboratorService(collaboratorRepo, logr)
	chargerUnitSvc := service.NewChargerUnitService(chargerUnitRepo, stationRepo, logr)
	changeRequestSvc := service.NewChangeRequestService(changeRequestRepo, stationRepo, service.NewRiskEngine(), auditSvc, logr,
		service.WithSubmissionMetrics(metricsSvc),
	)
	publishSvc := service.NewPublishService(changeRequestRepo, stationRepo, verificationRepo, trustSvc, chargerUnitSvc, auditSvc, metricsSvc, cfg.Risk.HighRiskThreshold, logr)
	signer := storage.NewEvidenceURLSigner(cfg.Evidence.SignedURLSecret, cfg.Evidence.SignedURLTTL)
	verificationSvc := service.NewVerificationService(verificationRepo, stationRepo, collaboratorSvc, signer, trustSvc, auditSvc, metricsSvc, logr,
		service.WithMaxCheckinDistance(cfg.Verification.MaxCheckinDistanceMeters),
		service.WithDefaultTaskPriority(cfg.Verification.DefaultPriority),
	)
	issueSvc := service.NewIssueService(issueRepo, stationRepo, trustSvc, logr)
	stationSvc := service.NewStationService(stationRepo, chargerUnitSvc, logr)

	// Handlers.
	stationHandler := handler.NewStationHandler(stationSvc, trustSvc)
	changeRequestHandler := handler.NewChangeRequestHandler(changeRequestSvc, publishSvc)
	verificationHandler := handler.NewVerificationHandler(verificationSvc)
	issueHandler := handler.NewIssueHandler(issueSvc)
	collaboratorHandler := handler.NewCollaboratorHandler(collaboratorSvc, verificationSvc)
	auditHandler := handler.NewAuditHandler(auditSvc)
	evidenceHandler := handler.NewEvidenceHandler(signer)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r.GET("/evidence/view", evidenceHandler.View)

	api := r.Group(cfg.APIPrefix)

	stations := api.Group("/stations")
	{
		stations.GET("/:id", middleware.OptionalJWT(authSvc), stationHandler.Get)
		stations.GET("/:id/trust", stationHandler.Trust)
		stations.POST("/:id/trust/recompute",
			middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin),
			stationHandler.RecomputeTrust)
		stations.POST("/:id/issues",
			middleware.JWT(authSvc), middleware.RequireRoles(models.RoleEVUser, models.RoleAdmin),
			issueHandler.Report)
	}

	changeRequests := api.Group("/change-requests", middleware.JWT(authSvc))
	{
		changeRequests.POST("",
			middleware.RequireRoles(models.RoleProvider, models.RoleAdmin),
			changeRequestHandler.Create)
		changeRequests.GET("", changeRequestHandler.List)
		changeRequests.GET("/:id", changeRequestHandler.Get)
		changeRequests.POST("/:id/submit",
			middleware.RequireRoles(models.RoleProvider, models.RoleAdmin),
			changeRequestHandler.Submit)
		changeRequests.POST("/:id/approve",
			middleware.RequireRoles(models.RoleAdmin),
			changeRequestHandler.Approve)
		changeRequests.POST("/:id/reject",
			middleware.RequireRoles(models.RoleAdmin),
			changeRequestHandler.Reject)
		changeRequests.POST("/:id/publish",
			middleware.RequireRoles(models.RoleAdmin),
			changeRequestHandler.Publish)
	}

	verifications := api.Group("/verification-tasks", middleware.JWT(authSvc))
	{
		verifications.POST("",
			middleware.RequireRoles(models.RoleAdmin),
			verificationHandler.Create)
		verifications.GET("", verificationHandler.List)
		verifications.GET("/:id", verificationHandler.Get)
		verifications.POST("/:id/assign",
			middleware.RequireRoles(models.RoleAdmin),
			verificationHandler.Assign)
		verifications.GET("/:id/candidates",
			middleware.RequireRoles(models.RoleAdmin),
			verificationHandler.Candidates)
		verifications.POST("/:id/checkin",
			middleware.RequireRoles(models.RoleCollaborator),
			verificationHandler.Checkin)
		verifications.POST("/:id/evidence",
			middleware.RequireRoles(models.RoleCollaborator),
			verificationHandler.AddEvidence)
		verifications.GET("/:id/evidence", verificationHandler.ListEvidence)
		verifications.POST("/:id/submit",
			middleware.RequireRoles(models.RoleCollaborator),
			verificationHandler.Submit)
		verifications.POST("/:id/review",
			middleware.RequireRoles(models.RoleAdmin),
			verificationHandler.Review)
	}

	issues := api.Group("/issues", middleware.JWT(authSvc))
	{
		issues.GET("", issueHandler.List)
		issues.GET("/:id", issueHandler.Get)
		issues.POST("/:id/acknowledge",
			middleware.RequireRoles(models.RoleAdmin),
			issueHandler.Acknowledge)
		issues.POST("/:id/resolve",
			middleware.RequireRoles(models.RoleAdmin),
			issueHandler.Resolve)
		issues.POST("/:id/reject",
			middleware.RequireRoles(models.RoleAdmin),
			issueHandler.Reject)
	}

	collaborators := api.Group("/collaborators", middleware.JWT(authSvc))
	{
		collaborators.PUT("/:id/profile",
			middleware.RBAC(string(models.RoleAdmin), "SELF"),
			collaboratorHandler.UpsertProfile)
		collaborators.GET("/:id/profile",
			middleware.RBAC(string(models.RoleAdmin), "SELF"),
			collaboratorHandler.GetProfile)
		collaborators.GET("/:id/contracts",
			middleware.RBAC(string(models.RoleAdmin), "SELF"),
			collaboratorHandler.ListContracts)
		collaborators.GET("/:id/kpi", collaboratorHandler.KPI)
		collaborators.GET("/:id/kpi/report", collaboratorHandler.KPIReport)
	}

	contracts := api.Group("/collaborator-contracts", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	{
		contracts.POST("", collaboratorHandler.CreateContract)
		contracts.DELETE("/:id", collaboratorHandler.TerminateContract)
	}

	audits := api.Group("/audit-logs", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	{
		audits.GET("", auditHandler.List)
		audits.GET("/export", auditHandler.Export)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
