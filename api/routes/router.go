package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/stockroom-backend/api/controllers"
	"github.com/angelmondragon/stockroom-backend/api/middleware"
	"github.com/angelmondragon/stockroom-backend/internal/auth"
	"github.com/angelmondragon/stockroom-backend/internal/deliveries"
	"github.com/angelmondragon/stockroom-backend/internal/inventory"
	"github.com/angelmondragon/stockroom-backend/internal/reports"
	"github.com/angelmondragon/stockroom-backend/internal/users"
	"github.com/angelmondragon/stockroom-backend/pkg/auth/session"
	"github.com/angelmondragon/stockroom-backend/pkg/config"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/stockroom-backend/pkg/redis"
)

type rateLimitStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Params carries everything the router mounts. Nil stores disable the
// middleware that depends on them.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	Gatherer prometheus.Gatherer

	StorePinger controllers.Pinger
	RedisPinger controllers.Pinger

	Sessions    session.AccessSessionChecker
	Idempotency pkgredis.IdempotencyStore
	RateLimits  rateLimitStore

	Auth       auth.Service
	Users      users.Service
	Inventory  inventory.Service
	Deliveries deliveries.Service
	Reports    *reports.Service
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"store": p.StorePinger,
			"redis": p.RedisPinger,
		}))
	})

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/auth", func(r chi.Router) {
		r.With(middleware.LoginThrottle(cfg.AuthRateLimit, p.RateLimits, logg)).Post("/login", controllers.AuthLogin(p.Auth, logg))
		r.Post("/refresh", controllers.AuthRefresh(p.Auth, logg))
		r.With(middleware.Auth(cfg.JWT, p.Sessions, logg)).Post("/logout", controllers.AuthLogout(p.Auth, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, p.Sessions, logg))
		r.Use(middleware.Idempotency(p.Idempotency, cfg.Inventory.IdempotencyTTL, logg))
		admin := middleware.RequireRole(enums.UserRoleAdmin, logg)

		r.Route("/users", func(r chi.Router) {
			r.With(admin).Post("/", controllers.UserRegister(p.Users, logg))
			r.Get("/me", controllers.UserMe(p.Users, logg))
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Post("/ingest", controllers.InventoryIngest(p.Inventory, logg))
			r.Get("/", controllers.InventoryList(p.Inventory, logg))
			r.Get("/scan/{barcode}", controllers.InventoryScan(p.Inventory, logg))
			r.Route("/{itemId}", func(r chi.Router) {
				r.Get("/", controllers.InventoryGet(p.Inventory, logg))
				r.Get("/barcode.png", controllers.InventoryBarcode(p.Inventory, logg))
				r.With(admin).Patch("/", controllers.InventoryUpdate(p.Inventory, logg))
				r.With(admin).Post("/adjust", controllers.InventoryAdjust(p.Inventory, logg))
				r.With(admin).Delete("/", controllers.InventoryDelete(p.Inventory, logg))
			})
		})

		r.Route("/deliveries", func(r chi.Router) {
			r.Post("/", controllers.DeliveryRecord(p.Deliveries, logg))
			r.Get("/", controllers.DeliveryList(p.Deliveries, logg))
			r.Route("/{deliveryId}", func(r chi.Router) {
				r.Get("/", controllers.DeliveryGet(p.Deliveries, logg))
				r.With(admin).Patch("/", controllers.DeliveryUpdate(p.Deliveries, logg))
				r.With(admin).Delete("/", controllers.DeliveryDelete(p.Deliveries, logg))
			})
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/inventory.xlsx", controllers.ReportInventory(p.Reports, logg))
			r.Get("/deliveries.xlsx", controllers.ReportDeliveries(p.Reports, logg))
		})
	})

	return r
}
