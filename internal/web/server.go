// Package web serves the dashboard API: document CRUD, assistant job
// submission and polling, settings, usage, and the websocket event
// stream. Handlers stay thin; every mutation goes through the document
// store and every assistant request through the job registry.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hearthward/larder/internal/config"
	"github.com/hearthward/larder/internal/docstore"
	"github.com/hearthward/larder/internal/events"
	"github.com/hearthward/larder/internal/fetch"
	"github.com/hearthward/larder/internal/jobs"
	"github.com/hearthward/larder/internal/llm"
	"github.com/hearthward/larder/internal/ratelimit"
	"github.com/hearthward/larder/internal/usage"
)

// maxBodyBytes caps JSON request bodies. Documents are small; anything
// bigger than this is a mistake or abuse.
const maxBodyBytes = 1 << 20

// Runner drives one assistant job to completion. Satisfied by
// agent.Orchestrator; tests substitute a stub.
type Runner interface {
	Run(ctx context.Context, jobID, kind, userMessage string)
}

// UsageReader serves the usage endpoint. Satisfied by usage.Store.
type UsageReader interface {
	Summary(start, end time.Time) (*usage.Totals, error)
	TokensToday(now time.Time) (int64, error)
}

// Server carries the handler dependencies.
type Server struct {
	store    *docstore.Store
	registry *jobs.Registry
	runner   Runner
	keystore *llm.Keystore
	factory  *llm.Factory
	limiter  *ratelimit.Limiter
	fetcher  *fetch.Fetcher
	usage    UsageReader
	bus      *events.Bus
	logger   *slog.Logger
	dataDir  string

	now func() time.Time
}

// Options bundles the optional dependencies. Nil fields disable the
// corresponding endpoints' extras: no usage reader means /api/usage
// reports zeros, no bus means /api/events streams nothing.
type Options struct {
	Fetcher *fetch.Fetcher
	Usage   UsageReader
	Bus     *events.Bus
	Logger  *slog.Logger
}

// New creates a Server. cfg supplies the data directory reported by the
// health endpoint.
func New(cfg *config.Config, store *docstore.Store, registry *jobs.Registry, runner Runner, keystore *llm.Keystore, factory *llm.Factory, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = fetch.New()
	}
	return &Server{
		store:    store,
		registry: registry,
		runner:   runner,
		keystore: keystore,
		factory:  factory,
		limiter:  ratelimit.New(ratelimit.DefaultWindow, ratelimit.DefaultMax),
		fetcher:  fetcher,
		usage:    opts.Usage,
		bus:      opts.Bus,
		logger:   logger,
		dataDir:  cfg.DataDir,
		now:      time.Now,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleDashboard)
	r.Get("/api/health", s.handleHealth)

	r.Post("/api/chat", s.handleChat)
	r.Get("/api/chat/{response_id}", s.handleChatResponse)
	r.Post("/api/action", s.handleAction)
	r.Post("/api/import-recipe", s.handleImportRecipe)

	r.Get("/api/status", s.handleStatus)

	r.Get("/api/meals", s.handleGetMeals)
	r.Get("/api/meals/{day}", s.handleGetMeal)
	r.Put("/api/meals/{day}/cooked", s.handleMarkCooked)
	r.Delete("/api/meals/{day}", s.handleDeleteMeal)

	r.Get("/api/inventory", s.handleGetInventory)
	r.Post("/api/inventory", s.handleAddInventory)
	r.Put("/api/inventory/{index}", s.handleUpdateInventory)
	r.Delete("/api/inventory/{index}", s.handleDeleteInventory)

	r.Get("/api/shopping", s.handleGetShopping)
	r.Get("/api/shopping/qr", s.handleShoppingQR)
	r.Put("/api/shopping/{delivery}/{index}/purchased", s.handleTogglePurchased)
	r.Delete("/api/shopping/{delivery}/{index}", s.handleDeleteShoppingItem)

	r.Get("/api/settings", s.handleGetSettings)
	r.Post("/api/settings", s.handleSaveSettings)

	r.Get("/api/preferences", s.handleGetPreferences)
	r.Put("/api/preferences", s.handleUpdatePreferences)

	r.Get("/api/usage", s.handleUsage)
	r.Get("/api/events", s.handleEvents)

	return r
}

// requestLogger logs one line per request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"data_dir":       s.dataDir,
		"claude_enabled": s.factory.Enabled(),
	})
}
