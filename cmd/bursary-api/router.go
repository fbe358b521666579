package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/bursary-api/api/swagger"
	"github.com/noah-isme/bursary-api/internal/app"
	"github.com/noah-isme/bursary-api/internal/handler"
	"github.com/noah-isme/bursary-api/internal/middleware"
	"github.com/noah-isme/bursary-api/internal/models"
	"github.com/noah-isme/bursary-api/pkg/config"
	"github.com/noah-isme/bursary-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/bursary-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/bursary-api/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, container *app.Container, db handler.Pinger, logr *zap.Logger) *gin.Engine {
	svcs := container.Services
	audit := container.Repos.Audit

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	if cfg.Metrics.Enabled {
		r.Use(middleware.Metrics(svcs.Metrics))
	}

	metricsHandler := handler.NewMetricsHandler(svcs.Metrics, db)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if cfg.Metrics.Enabled {
		r.GET("/metrics", metricsHandler.Prometheus)
		r.GET("/metrics/summary", metricsHandler.Snapshot)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	studentHandler := handler.NewStudentHandler(svcs.Students, svcs.Balances)
	classHandler := handler.NewClassHandler(svcs.Classes)
	termHandler := handler.NewTermHandler(svcs.Terms, svcs.Fees, svcs.Balances)
	paymentHandler := handler.NewPaymentHandler(svcs.Payments)
	graduationHandler := handler.NewGraduationHandler(svcs.Graduation)
	vaultHandler := handler.NewVaultHandler(svcs.Vaults)
	reportHandler := handler.NewReportHandler(svcs.Reports)

	api := r.Group(cfg.APIPrefix)

	students := api.Group("/students")
	students.GET("", studentHandler.List)
	students.POST("", studentHandler.Enroll)
	students.GET("/:id", studentHandler.Get)
	students.PUT("/:id", studentHandler.Update)
	students.PUT("/:id/class", studentHandler.AssignClass)
	students.POST("/:id/activate", studentHandler.Activate)
	students.POST("/:id/expel", studentHandler.Expel)
	students.GET("/:id/balances", studentHandler.Balances)
	students.GET("/:id/statement", studentHandler.Statement)
	students.GET("/:id/vault", vaultHandler.GetByStudent)

	classes := api.Group("/classes")
	classes.GET("", classHandler.List)
	classes.POST("", classHandler.Create)
	classes.GET("/:id", classHandler.Get)
	classes.PUT("/:id", classHandler.Update)
	classes.DELETE("/:id", classHandler.Delete)

	terms := api.Group("/terms")
	terms.GET("", termHandler.List)
	terms.POST("", termHandler.Create)
	terms.GET("/current", termHandler.GetCurrent)
	terms.GET("/:id", termHandler.Get)
	terms.DELETE("/:id", termHandler.Delete)
	terms.POST("/:id/activate", termHandler.Activate)
	terms.POST("/:id/balances", termHandler.InitializeBalances)
	terms.GET("/:id/fees", termHandler.ListFees)
	terms.PUT("/:id/fees", middleware.Audit(audit, models.AuditActionFeeSet, "term_fee"), termHandler.SetFee)

	payments := api.Group("/payments")
	payments.GET("", paymentHandler.List)
	payments.POST("", middleware.Audit(audit, models.AuditActionPaymentRecord, "payment"), paymentHandler.Record)
	payments.GET("/:id", paymentHandler.Get)
	payments.POST("/:id/void", middleware.Audit(audit, models.AuditActionPaymentVoid, "payment"), paymentHandler.Void)

	graduations := api.Group("/graduations")
	graduations.POST("", middleware.Audit(audit, models.AuditActionGraduate, "graduation"), graduationHandler.Graduate)
	graduations.POST("/alumni-sweep", middleware.Audit(audit, models.AuditActionGraduate, "graduation"), graduationHandler.SweepAlumni)

	vaults := api.Group("/vaults")
	vaults.GET("", vaultHandler.List)
	vaults.POST("", middleware.Audit(audit, models.AuditActionVaultFreeze, "vault"), vaultHandler.Freeze)
	vaults.GET("/:id", vaultHandler.Get)
	vaults.GET("/:id/escrows", vaultHandler.ListEscrows)
	vaults.POST("/:id/payments", middleware.Audit(audit, models.AuditActionVaultPayment, "vault"), vaultHandler.Pay)

	api.GET("/reports/arrears", reportHandler.Arrears)

	return r
}
