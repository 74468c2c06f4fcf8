/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RequestLog: zap access log (method, path, status, duration)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the mobile/web clients

ROUTE GROUPS:
  /api/health                           Store reachability, last audit
  /api/me                               Caller profile (authenticated)
  /api/supply-chain/* (public)          Journeys, stats, verify, batch lookup
  /api/supply-chain/* (authenticated)   Append, producer feeds
  /api/scenarios/*                      Demo scenarios (only when enabled)

AUTH:
  auth.Authenticate guards the producer feeds; appending additionally
  requires the producer or admin role.

SEE ALSO:
  - handlers.go: Handler implementations
  - auth/middleware.go: Token checks
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/warp/supplychain/auth"
	"github.com/warp/supplychain/traceability"
)

// RouterOptions toggles optional surfaces.
type RouterOptions struct {
	CORSOrigins     []string
	EnableScenarios bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLog(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	authenticated := auth.Authenticate(h.Issuer, h.Log)
	canAppend := auth.RequireRole(traceability.RoleProducer, traceability.RoleAdmin)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.With(authenticated).Get("/me", h.Me)

		r.Route("/supply-chain", func(r chi.Router) {
			// Static segments win over {product_id} in chi's tree.
			r.Get("/batch/{batch_code}", h.ResolveBatch)

			r.Group(func(r chi.Router) {
				r.Use(authenticated)
				r.Get("/producer/stages", h.ListProducerStages)
				r.Get("/producer/products-with-stages", h.ListProductsWithStages)
				r.Get("/producer/summary", h.GetProducerSummary)
				r.With(canAppend).Post("/{product_id}", h.AppendStage)
			})

			r.Get("/{product_id}", h.ListStages)
			r.Get("/{product_id}/stats", h.GetStats)
			r.Get("/{product_id}/verify", h.VerifyIntegrity)
		})

		if opts.EnableScenarios {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
				r.Post("/reset", h.ResetDatabase)
			})
		}
	})

	return r
}

// RequestLog writes one zap line per request.
func RequestLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
