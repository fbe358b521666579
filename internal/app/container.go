package app

import (
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/bursary-api/internal/repository"
	"github.com/noah-isme/bursary-api/internal/service"
	"github.com/noah-isme/bursary-api/pkg/config"
	"github.com/noah-isme/bursary-api/pkg/export"
)

// Repositories groups the SQL-backed stores.
type Repositories struct {
	Students *repository.StudentRepository
	Classes  *repository.ClassRepository
	Terms    *repository.TermRepository
	Fees     *repository.FeeRepository
	Balances *repository.BalanceRepository
	Payments *repository.PaymentRepository
	Vaults   *repository.VaultRepository
	Audit    *repository.AuditRepository
}

// Services groups the domain services wired against one database.
type Services struct {
	Students   *service.StudentService
	Classes    *service.ClassService
	Terms      *service.TermService
	Fees       *service.FeeService
	Balances   *service.BalanceService
	Payments   *service.PaymentService
	Graduation *service.GraduationService
	Vaults     *service.VaultService
	Reports    *service.ReportService
	Cache      *service.CacheService
	Metrics    *service.MetricsService
}

// Container holds everything a binary needs to serve the ledger.
type Container struct {
	Repos    Repositories
	Services Services
}

// New wires repositories and services. redisClient may be nil, in which case caching is disabled.
func New(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logger *zap.Logger) *Container {
	if logger == nil {
		logger = zap.NewNop()
	}

	repos := Repositories{
		Students: repository.NewStudentRepository(db),
		Classes:  repository.NewClassRepository(db),
		Terms:    repository.NewTermRepository(db),
		Fees:     repository.NewFeeRepository(db),
		Balances: repository.NewBalanceRepository(db),
		Payments: repository.NewPaymentRepository(db),
		Vaults:   repository.NewVaultRepository(db),
		Audit:    repository.NewAuditRepository(db),
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logger)
	}
	cache := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logger, cfg.Cache.Enabled && redisClient != nil)

	balances := service.NewBalanceService(service.BalanceServiceParams{
		Balances: repos.Balances,
		Students: repos.Students,
		Terms:    repos.Terms,
		Fees:     repos.Fees,
		Payments: repos.Payments,
		Vaults:   repos.Vaults,
		Metrics:  metrics,
		Logger:   logger.Named("balances"),
	})

	graduation := service.NewGraduationService(service.GraduationServiceParams{
		Students:  repos.Students,
		Terms:     repos.Terms,
		Balances:  balances,
		Latest:    repos.Balances,
		Cache:     cache,
		Metrics:   metrics,
		Validator: validate,
		Logger:    logger.Named("graduation"),
		Config: service.GraduationConfig{
			Grade:         cfg.Graduation.Grade,
			FreezeDebtors: cfg.Graduation.FreezeDebtors,
		},
	})

	svcs := Services{
		Students: service.NewStudentService(repos.Students, repos.Classes, validate, logger.Named("students")),
		Classes:  service.NewClassService(repos.Classes, repos.Students, validate, logger.Named("classes")),
		Terms:    service.NewTermService(repos.Terms, balances, validate, logger.Named("terms")),
		Fees: service.NewFeeService(service.FeeServiceParams{
			Fees:      repos.Fees,
			Terms:     repos.Terms,
			Balances:  repos.Balances,
			Carrier:   balances,
			Cache:     cache,
			Validator: validate,
			Logger:    logger.Named("fees"),
		}),
		Balances: balances,
		Payments: service.NewPaymentService(service.PaymentServiceParams{
			Payments:  repos.Payments,
			Students:  repos.Students,
			Vaults:    repos.Vaults,
			Balances:  balances,
			Alumni:    graduation,
			Cache:     cache,
			Metrics:   metrics,
			Validator: validate,
			Logger:    logger.Named("payments"),
		}),
		Graduation: graduation,
		Vaults: service.NewVaultService(service.VaultServiceParams{
			Vaults:    repos.Vaults,
			Students:  repos.Students,
			Latest:    repos.Balances,
			Cache:     cache,
			Metrics:   metrics,
			Validator: validate,
			Logger:    logger.Named("vaults"),
		}),
		Reports: service.NewReportService(repos.Balances, repos.Terms, cache, export.NewCSVExporter(), cfg.Cache.TTL, logger.Named("reports")),
		Cache:   cache,
		Metrics: metrics,
	}

	return &Container{Repos: repos, Services: svcs}
}
