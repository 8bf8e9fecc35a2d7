// Package api exposes the conversion pipeline over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/spherical/slide-creator/internal/convert"
	"github.com/spherical/slide-creator/internal/domain"
	"github.com/spherical/slide-creator/internal/observability"
	"github.com/spherical/slide-creator/internal/schema"
	"github.com/spherical/slide-creator/internal/storage"
	"github.com/spherical/slide-creator/internal/validate"
)

// Converter runs one conversion
type Converter interface {
	Convert(ctx context.Context, pdfPath, outputPath string, eventCh chan<- domain.StreamEvent) (*convert.Outcome, error)
}

// RunStore reads run history
type RunStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*storage.Run, error)
	ListRecent(ctx context.Context, limit int) ([]storage.Run, error)
}

// Deps are the services behind the routes. Converter and Runs may be nil,
// their routes then answer 503.
type Deps struct {
	Registry  *schema.Registry
	Validator *validate.Validator
	Converter Converter
	Runs      RunStore
}

// NewRouter creates the API router with all routes configured.
func NewRouter(logger *observability.Logger, deps Deps, requestTimeout time.Duration) http.Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if deps.Registry == nil {
		deps.Registry = schema.Default()
	}
	if deps.Validator == nil {
		deps.Validator = validate.New(validate.WithRegistry(deps.Registry))
	}
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Minute
	}

	h := &handler{logger: logger, deps: deps}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(requestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"slide-creator"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/schemas", func(r chi.Router) {
			r.Get("/", h.listSchemas)
			r.Get("/{name}", h.getSchema)
		})
		r.Post("/validate/{name}", h.validate)
		r.Post("/conversions", h.createConversion)
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.listRuns)
			r.Get("/{id}", h.getRun)
		})
	})

	return r
}
