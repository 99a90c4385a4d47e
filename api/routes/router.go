package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/stockroom-backend/api/controllers"
	"github.com/angelmondragon/stockroom-backend/api/middleware"
	"github.com/angelmondragon/stockroom-backend/internal/allocations"
	"github.com/angelmondragon/stockroom-backend/internal/locations"
	"github.com/angelmondragon/stockroom-backend/internal/products"
	"github.com/angelmondragon/stockroom-backend/pkg/config"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
	"github.com/angelmondragon/stockroom-backend/pkg/redis"
)

// Dependencies carries everything the router needs to wire its handlers.
type Dependencies struct {
	Config      *config.Config
	Logger      *logger.Logger
	Redis       *redis.Client
	Pingers     map[string]controllers.Pinger
	Locations   locations.Service
	Allocations allocations.Service
	Products    products.Service
}

// idempotencyStore keeps a missing redis client as a nil interface so the
// idempotency middleware falls through instead of calling a nil pointer.
func idempotencyStore(c *redis.Client) redis.IdempotencyStore {
	if c == nil {
		return nil
	}
	return c
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore(deps.Redis), logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/v1/products", func(r chi.Router) {
			r.Post("/", controllers.ProductCreate(deps.Products, logg))
			r.Get("/", controllers.ProductList(deps.Products, logg))
			r.Get("/{productId}", controllers.ProductFetch(deps.Products, logg))
			r.Get("/{productId}/total-stock", controllers.ProductTotalStock(deps.Products, logg))
			r.Delete("/{productId}", controllers.ProductDelete(deps.Products, logg))
		})

		r.Route("/v1/stock", func(r chi.Router) {
			r.Route("/groups", func(r chi.Router) {
				r.Post("/", controllers.GroupCreate(deps.Locations, logg))
				r.Get("/", controllers.GroupList(deps.Locations, logg))
				r.Get("/{groupId}", controllers.GroupFetch(deps.Locations, logg))
				r.Patch("/{groupId}/name", controllers.GroupRename(deps.Locations, logg))
				r.Patch("/{groupId}/synchronizable", controllers.GroupSetSynchronizable(deps.Locations, logg))
				r.Delete("/{groupId}", controllers.GroupDelete(deps.Locations, logg))
			})

			r.Route("/locations", func(r chi.Router) {
				r.Post("/", controllers.LocationCreate(deps.Locations, logg))
				r.Get("/", controllers.LocationList(deps.Locations, logg))
				r.Get("/{locationId}", controllers.LocationFetch(deps.Locations, logg))
				r.Patch("/{locationId}/name", controllers.LocationRename(deps.Locations, logg))
				r.Delete("/{locationId}", controllers.LocationDelete(deps.Locations, logg))
				r.Delete("/{locationId}/allocations", controllers.AllocationPurgeByLocation(deps.Allocations, logg))
			})

			r.Route("/allocations", func(r chi.Router) {
				r.Put("/", controllers.AllocationUpsert(deps.Allocations, logg))
				r.Get("/{productId}/{locationId}", controllers.AllocationFetch(deps.Allocations, logg))
				r.Delete("/{productId}/{locationId}", controllers.AllocationDelete(deps.Allocations, logg))
			})

			r.Route("/products/{productId}/allocations", func(r chi.Router) {
				r.Get("/", controllers.AllocationListByProduct(deps.Allocations, logg))
				r.Delete("/", controllers.AllocationPurgeByProduct(deps.Allocations, logg))
			})
		})
	})

	return r
}
