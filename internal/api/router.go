package api

import (
	"github.com/ayo6706/poolcredit/internal/api/handler"
	"github.com/ayo6706/poolcredit/internal/api/middleware"
	"github.com/ayo6706/poolcredit/internal/api/spec"
	"github.com/ayo6706/poolcredit/internal/config"
	"github.com/ayo6706/poolcredit/internal/idempotency"
	"github.com/ayo6706/poolcredit/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Services are the engine components the HTTP surface exposes.
type Services struct {
	Vault          *service.VaultService
	Assets         *service.AssetService
	Loans          *service.LoanService
	Settlement     *service.SettlementService
	Reconciliation *service.ReconciliationService
}

type Router struct {
	cfg    *config.Config
	logger *zap.Logger
	svcs   Services
	idem   *idempotency.Store
	deps   map[string]handler.Pinger
}

// NewRouter wires handlers over svcs. idem may be nil, which disables the
// Idempotency-Key contract; deps feed the readiness check.
func NewRouter(cfg *config.Config, logger *zap.Logger, svcs Services, idem *idempotency.Store, deps map[string]handler.Pinger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{cfg: cfg, logger: logger, svcs: svcs, idem: idem, deps: deps}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))

	healthHandler := handler.NewHealthHandler(api.deps)
	authHandler := handler.NewAuthHandler(api.svcs.Vault)
	treasuryHandler := handler.NewTreasuryHandler(api.svcs.Vault)
	assetHandler := handler.NewAssetHandler(api.svcs.Assets)
	loanHandler := handler.NewLoanHandler(api.svcs.Loans, api.svcs.Settlement, api.svcs.Vault)
	reconciliationHandler := handler.NewReconciliationHandler(api.svcs.Reconciliation)
	idem := middleware.IdempotencyMiddleware(api.idem, api.logger)

	// Public routes
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	r.With(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS)).Post("/v1/auth/login", authHandler.Login)

	// Protected routes. Every mutation is signed by the token identity and is idempotent.
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Route("/v1/treasury", func(r chi.Router) {
			r.Get("/", treasuryHandler.Get)
			r.With(idem).Post("/", treasuryHandler.Initialize)
			r.With(idem).Post("/deposit", treasuryHandler.Deposit)
			r.With(idem).Post("/withdraw", treasuryHandler.Withdraw)
			r.With(idem).Post("/surplus/withdraw", treasuryHandler.WithdrawSurplus)
			r.With(idem).Put("/fee", treasuryHandler.SetFee)
			r.With(idem).Put("/paused", treasuryHandler.SetPaused)
			r.With(middleware.RequireRole(middleware.RoleAdmin)).Post("/reconcile", reconciliationHandler.Run)
		})

		r.Route("/v1/assets", func(r chi.Router) {
			r.With(idem).Post("/", assetHandler.Register)
			r.Get("/{id}", assetHandler.Get)
			r.Get("/{id}/balances/{owner}", assetHandler.Balance)
			r.With(idem).Post("/{id}/mint", assetHandler.Mint)
			r.With(idem).Post("/{id}/revoke", assetHandler.Revoke)
		})

		r.Route("/v1/loans", func(r chi.Router) {
			r.Get("/", loanHandler.List)
			r.With(idem).Post("/", loanHandler.Create)
			r.Get("/expired", loanHandler.Expired)
			r.Get("/{pool}", loanHandler.Get)
			r.With(idem).Post("/{pool}/lp-tokens", loanHandler.SendLPTokens)
			r.With(idem).Post("/{pool}/repay", loanHandler.Repay)
			r.With(idem).Post("/{pool}/liquidate", loanHandler.Liquidate)
			r.With(middleware.RequireRole(middleware.RoleAdmin), idem).Post("/{pool}/sweep", loanHandler.Sweep)
		})
	})

	return r
}
