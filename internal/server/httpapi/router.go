// Package httpapi exposes the staging store over HTTP: streamed ingest,
// download, relay and archive, plus health and Prometheus metrics.
package httpapi

import (
	"context"
	"io"
	"net/http"

	"github.com/dmitrijs2005/stagekeeper/internal/logging"
	"github.com/dmitrijs2005/stagekeeper/internal/server/journal"
	"github.com/dmitrijs2005/stagekeeper/internal/server/staging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Store interface {
	StageStream(ctx context.Context, src io.Reader, onProgress staging.ProgressFunc) (uuid.UUID, error)
	Load(id uuid.UUID) (io.ReadCloser, bool, error)
	Describe(id uuid.UUID, name string) (staging.FileDescriptor, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List() []staging.Entry
}

type Relayer interface {
	Relay(ctx context.Context, id uuid.UUID, desc staging.FileDescriptor) error
}

type Archiver interface {
	Archive(ctx context.Context, id uuid.UUID, desc staging.FileDescriptor) (string, error)
	DownloadURL(ctx context.Context, key string) (string, error)
}

type Sweeper interface {
	Sweep(ctx context.Context) int
}

// RelayHistory reads the relay journal.
type RelayHistory interface {
	ListByStage(ctx context.Context, stageID uuid.UUID) ([]*journal.Entry, error)
}

// Deps are the services behind the router. Archive, History and Gatherer
// may be nil.
type Deps struct {
	Store    Store
	Relay    Relayer
	Archive  Archiver
	Sweeper  Sweeper
	History  RelayHistory
	Gatherer prometheus.Gatherer
}

// NewRouter builds the chi router.
//
// Routes:
//   - GET /health
//   - GET /metrics
//   - GET /stage, GET /stage/{id}, GET /stage/{id}/descriptor?name=,
//     GET /stage/{id}/relays
//   - POST /stage, DELETE /stage/{id}, POST /stage/{id}/relay?name=,
//     POST /stage/{id}/archive?name=, POST /sweep, GET /archive/{key}
//     (session token required)
func NewRouter(deps Deps, logger logging.Logger, secret []byte) http.Handler {
	if logger == nil {
		logger = logging.Nop{}
	}
	h := &handler{deps: deps, logger: logger.With("module", "http_api")}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/stage", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{id}", h.download)
		r.Get("/{id}/descriptor", h.describe)
		r.Get("/{id}/relays", h.relays)

		r.Group(func(r chi.Router) {
			r.Use(requireSession(secret))
			r.Post("/", h.stage)
			r.Delete("/{id}", h.delete)
			r.Post("/{id}/relay", h.relay)
			r.Post("/{id}/archive", h.archive)
		})
	})

	r.With(requireSession(secret)).Post("/sweep", h.sweep)
	r.With(requireSession(secret)).Get("/archive/*", h.archived)

	return r
}
