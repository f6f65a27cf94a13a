package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/llmgateway/internal/api/handlers"
	"github.com/nikhilbhutani/llmgateway/internal/api/middleware"
	"github.com/nikhilbhutani/llmgateway/internal/audit"
	"github.com/nikhilbhutani/llmgateway/internal/auth"
	"github.com/nikhilbhutani/llmgateway/internal/cache"
	"github.com/nikhilbhutani/llmgateway/internal/config"
	"github.com/nikhilbhutani/llmgateway/internal/llm"
)

type Router struct {
	mux      *chi.Mux
	db       *pgxpool.Pool
	redis    *redis.Client
	cfg      *config.Config
	jwt      *auth.JWTMiddleware
	llmGW    llm.Gateway
	store    *audit.Store
	counters *cache.UsageCounters
}

// NewRouter assembles the HTTP surface over an already-wired gateway. The
// pool, redis client, store and counters may be nil when those backends are
// absent.
func NewRouter(gw llm.Gateway, store *audit.Store, counters *cache.UsageCounters, db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config) *Router {
	return &Router{
		mux:      chi.NewRouter(),
		db:       db,
		redis:    rdb,
		cfg:      cfg,
		jwt:      auth.NewJWTMiddleware(cfg.Auth.JWTSecret),
		llmGW:    gw,
		store:    store,
		counters: counters,
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.CORSOrigins))

	rl := middleware.NewRateLimiter(rt.cfg.Server.RateLimitRPS, rt.cfg.Server.RateLimitBurst)
	r.Use(rl.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)

		llmH := handlers.NewLLMHandler(rt.llmGW)
		r.Route("/llm", func(r chi.Router) {
			r.Post("/chat", llmH.Chat)
			r.Get("/models", llmH.Models)
			r.Get("/health", llmH.Health)
			r.Get("/breakers", llmH.Breakers)
		})

		var counterReader handlers.UsageCounterReader
		if rt.counters != nil {
			counterReader = rt.counters
		}
		adminH := handlers.NewAdminHandler(rt.store, counterReader)
		r.Route("/admin", func(r chi.Router) {
			r.Get("/usage", adminH.Usage)
			r.Get("/usage/today", adminH.UsageToday)
		})
	})

	return r
}
