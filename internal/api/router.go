package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/luxsync/selene/internal/api/handlers"
	mw "github.com/luxsync/selene/internal/api/middleware"
	"github.com/luxsync/selene/internal/buildconfig"
	"github.com/luxsync/selene/internal/config"
	"github.com/luxsync/selene/internal/domain"
	"github.com/luxsync/selene/internal/service"
	"github.com/luxsync/selene/internal/store"
	"go.uber.org/zap"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router     *chi.Mux
	Auditor    *service.AuditorService
	Integrator *service.IntegratorService
	Mood       *service.MoodService

	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

// NewApp wires the full pipeline. A nil db disables the decision journal;
// everything else runs memory-only.
func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	// Optional persistence
	var journal domain.DecisionJournal
	if db != nil {
		journal = store.NewJournalStore(db)
	}

	// Services
	matcherSvc := service.NewMatcherService(logger)
	moodSvc := service.NewMoodService(domain.MoodID(config.DefaultMood()), logger)
	trackerSvc := service.NewTrackerService(logger)
	auditorSvc := service.NewAuditorService(trackerSvc, config.BiasAuditInterval(), logger)
	dreamerSvc := service.NewDreamerService(matcherSvc, moodSvc, logger)
	breaker := service.NewCircuitBreaker(logger)
	guard := service.NewConcurrencyGuard()
	conscienceSvc := service.NewConscienceService(breaker, guard, logger)
	integratorSvc := service.NewIntegratorService(
		matcherSvc, dreamerSvc, conscienceSvc, moodSvc, trackerSvc, auditorSvc, journal, logger)
	integratorSvc.SetDreamTimeout(config.DreamTimeout())

	// Handlers
	pipelineHandler := handlers.NewPipelineHandler(integratorSvc)
	moodHandler := handlers.NewMoodHandler(moodSvc)
	biasHandler := handlers.NewBiasHandler(auditorSvc)
	decisionsHandler := handlers.NewDecisionsHandler(journal)

	r := chi.NewRouter()

	app := &App{
		Router:     r,
		Auditor:    auditorSvc,
		Integrator: integratorSvc,
		Mood:       moodSvc,
		startTime:  time.Now(),
	}

	// Metrics collector for middleware
	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health (no auth)
	r.Get("/health", app.healthHandler(db))

	// Metrics (no auth)
	r.Get("/metrics", app.metricsHandler())

	// Operator API
	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.OperatorAuth(config.OperatorAPIKey()))

		r.Route("/pipeline", func(r chi.Router) {
			r.Post("/execute", pipelineHandler.Execute)
			r.Post("/audio", pipelineHandler.Audio)
			r.Post("/outcome", pipelineHandler.Outcome)
			r.Get("/state", pipelineHandler.State)
		})

		r.Route("/mood", func(r chi.Router) {
			r.Get("/", moodHandler.Get)
			r.Put("/", moodHandler.Set)
		})

		r.Get("/bias", biasHandler.Get)

		r.Route("/decisions", func(r chi.Router) {
			r.Get("/", decisionsHandler.List)
			r.Get("/similar", decisionsHandler.Similar)
		})
	})

	return app
}

// NewRouter returns just the chi.Mux for callers that manage no lifecycle.
func NewRouter(db *pgxpool.Pool, logger *zap.Logger) *chi.Mux {
	return NewApp(db, logger).Router
}

func (app *App) healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := app.Integrator.Health()

		status := "ok"
		code := http.StatusOK
		var dbErr string
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				status = "error"
				code = http.StatusServiceUnavailable
				dbErr = err.Error()
			}
		}
		if !health.CircuitHealthy {
			status = "degraded"
		}

		response := map[string]any{
			"status":   status,
			"pipeline": health,
			"mood":     app.Mood.Current(),
		}
		if dbErr != "" {
			response["error"] = dbErr
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(response)
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
			"build":      buildconfig.VersionInfo(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure the store satisfies the journal interface at compile time.
var _ domain.DecisionJournal = (*store.JournalStore)(nil)
