package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/giftwell/giftwell-backend/api/controllers"
	"github.com/giftwell/giftwell-backend/api/middleware"
	"github.com/giftwell/giftwell-backend/internal/contributions"
	"github.com/giftwell/giftwell-backend/internal/idempotency"
	"github.com/giftwell/giftwell-backend/internal/items"
	"github.com/giftwell/giftwell-backend/internal/ratelimit"
	"github.com/giftwell/giftwell-backend/internal/reservations"
	"github.com/giftwell/giftwell-backend/internal/tickets"
	"github.com/giftwell/giftwell-backend/internal/wishlists"
	"github.com/giftwell/giftwell-backend/pkg/config"
	"github.com/giftwell/giftwell-backend/pkg/logger"
)

// Readiness groups the dependency pingers surfaced on /health/ready. Nil
// entries are reported as skipped.
type Readiness struct {
	DB      controllers.Pinger
	Redis   controllers.Pinger
	Storage controllers.Pinger
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	ready Readiness,
	registry *prometheus.Registry,
	wishlistService wishlists.Service,
	itemService items.Service,
	reservationEngine reservations.Engine,
	contributionLedger contributions.Ledger,
	ticketManager tickets.Manager,
	limiter ratelimit.Limiter,
	idempotencyCache idempotency.Cache,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, controllers.ReadinessDeps(ready.DB, ready.Redis, ready.Storage)))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(
			middleware.Actor(logg),
			middleware.RateLimit(limiter, cfg.RateLimit, logg),
			middleware.Idempotency(idempotencyCache, logg),
		)

		r.Route("/wishlists", func(r chi.Router) {
			r.Post("/", controllers.WishlistCreate(wishlistService, logg))

			r.Route("/{wishlistID}", func(r chi.Router) {
				r.Get("/", controllers.WishlistGet(wishlistService, logg))
				r.Delete("/", controllers.WishlistDelete(wishlistService, logg))

				r.Route("/items", func(r chi.Router) {
					r.Get("/", controllers.ItemListPublic(itemService, logg))
					r.Get("/owner", controllers.ItemListOwner(itemService, logg))
					r.Post("/", controllers.ItemCreate(itemService, logg))

					r.Route("/{itemID}", func(r chi.Router) {
						r.Patch("/", controllers.ItemUpdate(itemService, logg))
						r.Post("/archive", controllers.ItemArchive(itemService, logg))

						r.Post("/reserve", controllers.ItemReserve(reservationEngine, logg))
						r.Post("/unreserve", controllers.ItemUnreserve(reservationEngine, logg))

						r.Post("/contributions", controllers.ContributionCreate(contributionLedger, logg))
						r.Get("/contributions", controllers.ContributionAggregate(contributionLedger, logg))

						r.Post("/images/prepare", controllers.ImagePrepare(ticketManager, logg))
						r.Get("/images/{index}/preview", controllers.ImagePreview(ticketManager, logg))
					})
				})
			})
		})

		r.Post("/uploads/{token}", controllers.UploadRedeem(ticketManager, cfg.Tickets, logg))
		r.Get("/previews/{token}", controllers.PreviewRedeem(ticketManager, logg))
	})

	return r
}
