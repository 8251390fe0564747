package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Mino1214/juncom-server/internal/gateway"
	"github.com/Mino1214/juncom-server/internal/service"
	"github.com/Mino1214/juncom-server/pkg/health"
	"github.com/Mino1214/juncom-server/pkg/middleware"
)

// RouterDeps bundles the services the router wires into handlers.
type RouterDeps struct {
	Orders       *service.OrderService
	Payments     *service.PaymentService
	Products     *service.ProductService
	Stock        *service.StockService
	Auth         *service.AuthService
	Verification *service.VerificationService
	Address      *gateway.AddressClient
	Health       *health.Handler
	Logger       *slog.Logger
	Environment  string
	CORSOrigins  []string
	PprofCIDRs   []string
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: deps.CORSOrigins,
		Environment:    deps.Environment,
	}))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(deps.Logger))
	r.Use(middleware.PrometheusMetrics("juncom"))
	r.Use(middleware.RequestLogger(deps.Logger))

	// Health check endpoints
	r.Get("/health/live", deps.Health.LivenessHandler())
	r.Get("/health/ready", deps.Health.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, deps.PprofCIDRs, deps.Logger)

	orderHandler := NewOrderHandler(deps.Orders, deps.Logger)
	productHandler := NewProductHandler(deps.Products, deps.Stock, deps.Logger)
	authHandler := NewAuthHandler(deps.Auth, deps.Verification, deps.Logger)
	paymentHandler := NewPaymentHandler(deps.Orders, deps.Payments, deps.Logger)
	addressHandler := NewAddressHandler(deps.Address, deps.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Use(ContentTypeJSON)

			r.Post("/", orderHandler.CreateOrder)
			r.Get("/", orderHandler.ListOrders)
			r.Get("/{id}", orderHandler.GetOrder)
		})

		r.Get("/jobs/{id}", orderHandler.GetJob)

		r.Route("/products", func(r chi.Router) {
			r.Use(ContentTypeJSON)

			r.Post("/", productHandler.CreateProduct)
			// Catalog reads are cacheable for a minute; stock is not.
			r.With(middleware.CacheControl(60)).Get("/", productHandler.ListProducts)
			r.With(middleware.CacheControl(60)).Get("/{id}", productHandler.GetProduct)
			r.Put("/{id}", productHandler.UpdateProduct)
			r.Get("/{id}/stock", productHandler.GetStock)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Use(ContentTypeJSON)

			r.Post("/signup", authHandler.Signup)
			r.Post("/login", authHandler.Login)
			r.Post("/email/send", authHandler.SendCode)
			r.Post("/email/verify", authHandler.VerifyCode)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/{employeeID}", authHandler.GetUser)
			r.With(ContentTypeJSON).Put("/{employeeID}", authHandler.UpdateUser)
		})

		// The gateway posts whatever Content-Type it likes, so the webhook
		// sits outside the ContentTypeJSON group.
		r.Post("/payment/webhook", paymentHandler.Webhook)

		r.With(ContentTypeJSON).Post("/payment/cancel", paymentHandler.Cancel)

		r.Get("/address/search", addressHandler.Search)
	})

	return r
}
