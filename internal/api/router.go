package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"github.com/spinforge/settlement/internal/api/handler"
	"github.com/spinforge/settlement/internal/api/middleware"
	"github.com/spinforge/settlement/internal/api/spec"
	"github.com/spinforge/settlement/internal/config"
	"github.com/spinforge/settlement/internal/domain"
	"github.com/spinforge/settlement/internal/idempotency"
	"github.com/spinforge/settlement/internal/rail"
	"github.com/spinforge/settlement/internal/rates"
	"github.com/spinforge/settlement/internal/service"
)

// Router wires handlers, middleware, and services into the HTTP surface.
type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *pgxpool.Pool
	redis     redis.Cmdable
	store     service.QueryStore
	idemStore *idempotency.Store
	rail      rail.Client
	rates     rates.Source
}

func NewRouter(cfg *config.Config, logger *zap.Logger, db *pgxpool.Pool, redisClient redis.Cmdable, store service.QueryStore, idemStore *idempotency.Store, railClient rail.Client, rateSource rates.Source) *Router {
	return &Router{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		redis:     redisClient,
		store:     store,
		idemStore: idemStore,
		rail:      railClient,
		rates:     rateSource,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	conversionRates := api.conversionRates()

	// Services
	ledgerSvc := service.NewLedgerService(api.store)
	accountSvc := service.NewAccountService(api.store)
	depositSvc := service.NewDepositService(api.store, ledgerSvc, conversionRates)
	withdrawalSvc := service.NewWithdrawalService(api.store, ledgerSvc, api.rail, service.WithdrawalConfig{
		Rates:             conversionRates,
		ApprovalThreshold: api.cfg.ApprovalThreshold,
		Methods:           api.methodConfigs(),
		MaxRetries:        api.cfg.MaxRetries,
	})
	transferSvc := service.NewTransferService(api.store, ledgerSvc)
	intentSvc := service.NewIntentService(api.store, ledgerSvc, api.rates, api.cfg.CryptoQuoteTTL)
	reconciliationSvc := service.NewReconciliationService(api.store, api.cfg.StaleProcessingCutoff)

	// Handlers
	accountHandler := handler.NewAccountHandler(accountSvc)
	withdrawalHandler := handler.NewWithdrawalHandler(withdrawalSvc)
	transferHandler := handler.NewTransferHandler(transferSvc)
	webhookHandler := handler.NewWebhookHandler(depositSvc, api.cfg.WebhookHMACKey, api.cfg.WebhookSkipSignature)
	adminHandler := handler.NewAdminHandler(withdrawalSvc, reconciliationSvc)
	lockHandler := handler.NewLockHandler(ledgerSvc, accountSvc)
	intentHandler := handler.NewIntentHandler(intentSvc)
	healthHandler := handler.NewHealthHandler(api.db, api.redis)

	idem := middleware.IdempotencyMiddleware(api.idemStore, api.logger)

	// Operational surface
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/docs/openapi.yaml")))

	// Rail callbacks
	r.With(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS)).
		Post("/v1/webhooks/deposit", webhookHandler.HandleDeposit)

	// Authenticated surface
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Post("/v1/accounts", accountHandler.Provision)
		r.Get("/v1/accounts/me", accountHandler.Me)
		r.Put("/v1/accounts/me/destination", accountHandler.SetDestination)
		r.Get("/v1/accounts/me/statement", accountHandler.Statement)
		r.Post("/v1/accounts/me/locks", lockHandler.Lock)
		r.Delete("/v1/accounts/me/locks", lockHandler.Unlock)

		r.With(idem).Post("/v1/withdrawals", withdrawalHandler.Request)
		r.With(idem).Post("/v1/transfers", transferHandler.Transfer)

		r.Post("/v1/deposits/crypto/intents", intentHandler.Create)
		r.Post("/v1/deposits/crypto/intents/{id}/confirm", intentHandler.Confirm)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole("admin"))
			r.Get("/v1/admin/withdrawals/stuck", adminHandler.StuckWithdrawals)
			r.Post("/v1/admin/withdrawals/{id}/approve", adminHandler.Approve)
			r.Post("/v1/admin/withdrawals/{id}/reject", adminHandler.Reject)
			r.Post("/v1/admin/withdrawals/{id}/retry", adminHandler.Retry)
		})
	})

	return r
}

func (api *Router) conversionRates() domain.Rates {
	return domain.Rates{
		Deposit:    api.cfg.DepositRate,
		Withdrawal: api.cfg.WithdrawalRate,
	}
}

func (api *Router) methodConfigs() map[string]service.MethodConfig {
	return map[string]service.MethodConfig{
		domain.PayoutMethodBank: {
			Minimum: api.cfg.BankMinimum,
			Fee:     api.cfg.BankFee,
		},
		domain.PayoutMethodCrypto: {
			Minimum: api.cfg.CryptoMinimum,
			Fee:     api.cfg.CryptoFee,
		},
	}
}
