package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/geodex-labs/geodex/internal/api/graphql"
	apihandler "github.com/geodex-labs/geodex/internal/api/handler"
	apimw "github.com/geodex-labs/geodex/internal/api/middleware"
	"github.com/geodex-labs/geodex/internal/catalog"
	"github.com/geodex-labs/geodex/internal/lifecycle"
	"github.com/geodex-labs/geodex/internal/notify"
)

// Deps carries what the HTTP surface serves. Bus and Search are optional:
// without a bus the event feed is not mounted, without a search client
// readiness reports search as disabled.
type Deps struct {
	Catalog catalog.Catalog
	Engine  *lifecycle.Engine
	Bus     notify.Bus
	Search  apihandler.Pinger
}

func NewRouter(logger *slog.Logger, deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(apimw.Logger(logger))
	r.Use(apimw.CORS)
	r.Use(chimw.Recoverer)

	// Health checks
	health := apihandler.NewHealthHandler(deps.Catalog, deps.Search)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		indexes := apihandler.NewIndexHandler(logger, deps.Catalog, deps.Engine)
		r.Route("/indexes", func(r chi.Router) {
			r.Post("/", indexes.Declare)
			r.Get("/", indexes.List)
			r.Route("/{indexID}", func(r chi.Router) {
				r.Get("/", indexes.Get)
				r.Post("/reset", indexes.Reset)
			})
		})

		if deps.Bus != nil {
			events := apihandler.NewEventsHandler(logger, deps.Bus)
			r.Get("/events", events.Subscribe)
		}
	})

	// GraphQL
	gql := graphql.NewHandler(logger, graphql.NewResolver(logger, deps.Catalog, deps.Engine))
	r.Post("/graphql", gql.ServeHTTP)
	r.Get("/graphql/schema", gql.SchemaSDL)

	return r
}
