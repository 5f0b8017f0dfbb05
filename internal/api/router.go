// Package api serves the task engine over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/service"
)

const serviceName = "company-research"

// Handlers holds the HTTP handlers.
type Handlers struct {
	svc *service.Service
}

// NewRouter builds the API router.
func NewRouter(svc *service.Service, corsOrigins []string) http.Handler {
	h := &Handlers{svc: svc}

	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName)
	})

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// Tasks
		r.Post("/tasks", h.CreateTask)
		r.Get("/tasks", h.ListTasks)
		r.Get("/tasks/{id}", h.GetTask)
		r.Delete("/tasks/{id}", h.DeleteTask)
		r.Post("/tasks/{id}/process", h.ProcessTask)
		r.Post("/agents/process-tasks", h.ProcessPending)

		// Fan-out
		r.Post("/tasks/crawl-search-results/{search_id}", h.CrawlSearchResults)
		r.Post("/tasks/extract-from-crawl/{crawl_task_id}", h.ExtractFromCrawl)
		r.Post("/tasks/store-aggregated-data/{company_id}", h.StoreAggregated)

		// Search
		r.Post("/search", h.CreateSearch)
		r.Get("/search/{id}/results", h.SearchResults)

		// Companies
		r.Post("/companies", h.CreateCompany)
		r.Get("/companies", h.ListCompanies)
		r.Get("/companies/{id}", h.GetCompany)
		r.Post("/companies/{id}/update-overview", h.StartProfile)
		r.Get("/profiles/{id}", h.GetProfileRun)

		// Strategies and analysis
		r.Post("/strategies", h.CreateStrategy)
		r.Post("/analysis", h.StartAnalysis)
		r.Get("/analysis/results/{strategy_id}", h.AnalysisResults)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}
