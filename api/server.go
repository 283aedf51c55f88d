/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend
  5. Identity:   Acting member for /api routes (see below)

IDENTITY:
  Every /api request must identify the acting household member; it is
  recorded as the creator of attributions and the actor of audit entries.
  - JWTSecret set: "Authorization: Bearer <HS256 JWT>", member = "sub" claim
  - otherwise:     "X-Member-ID: <member>" (development, trusted proxies)
  Requests without an identity get 401.

ROUTE GROUPS:
  /healthz                      Liveness (no identity)
  /api/households/*             Households, payments, income, reporting
  /api/scenarios/*              Demo scenarios
  /*                            Static files (frontend), when configured

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/warp/household-payments/generic"
	"github.com/warp/household-payments/payments"
)

// MemberHeader carries the acting member when no JWT secret is configured.
const MemberHeader = "X-Member-ID"

// RouterConfig holds the settings of the HTTP surface.
type RouterConfig struct {
	AllowedOrigins []string
	// JWTSecret enables bearer-token identity. Empty means X-Member-ID.
	JWTSecret []byte
	// StaticDir is served at / when it exists.
	StaticDir string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", MemberHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(Identity(cfg.JWTSecret))

		r.Route("/households", func(r chi.Router) {
			r.Get("/", h.ListHouseholds)
			r.Post("/", h.CreateHousehold)

			r.Route("/{hh}", func(r chi.Router) {
				r.Post("/categories", h.CreateCategory)

				// Payment routes
				r.Route("/payments", func(r chi.Router) {
					r.Get("/", h.ListPayments)
					r.Post("/", h.CreatePayment)
					r.Post("/bulk", h.BulkCreatePayments)
					r.Get("/{id}", h.GetPayment)
					r.Patch("/{id}", h.UpdatePayment)
					r.Delete("/{id}", h.DeletePayment)
					r.Post("/{id}/settle", h.SettlePayment)
					r.Post("/{id}/revert", h.RevertPayment)
					r.Post("/{id}/cancel", h.CancelPayment)

					// Attribution routes
					r.Get("/{id}/attributions", h.ListAttributions)
					r.Post("/{id}/attributions", h.Attribute)
					r.Delete("/{id}/attributions/{aid}", h.RemoveAttribution)
				})

				r.Get("/income-events", h.ListIncomeEvents)
				r.Post("/income-events", h.CreateIncomeEvent)

				r.Post("/auto-attribute", h.AutoAttribute)
				r.Get("/attribution-runs", h.ListAttributionRuns)

				// Reporting routes
				r.Get("/upcoming", h.Upcoming)
				r.Get("/overdue", h.Overdue)
				r.Get("/summary", h.Summary)
				r.Get("/forecast", h.Forecast)
				r.Get("/audit", h.ListAudit)
			})
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	if cfg.StaticDir != "" {
		if _, err := os.Stat(cfg.StaticDir); err == nil {
			staticDir := cfg.StaticDir
			fileServer := http.FileServer(http.Dir(staticDir))
			r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
				fullPath := filepath.Join(staticDir, filepath.Clean(r.URL.Path))
				if _, err := os.Stat(fullPath); os.IsNotExist(err) {
					// SPA routing: serve index.html
					http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
					return
				}
				fileServer.ServeHTTP(w, r)
			})
		}
	}

	return r
}

// =============================================================================
// IDENTITY MIDDLEWARE
// =============================================================================

var errNoIdentity = errors.New("missing member identity")

// Identity attaches the acting member to the request context via
// payments.WithActor.
func Identity(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			member, err := memberFromRequest(r, secret)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: err.Error(), Kind: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r.WithContext(payments.WithActor(r.Context(), member)))
		})
	}
}

func memberFromRequest(r *http.Request, secret []byte) (generic.MemberID, error) {
	if len(secret) == 0 {
		member := strings.TrimSpace(r.Header.Get(MemberHeader))
		if member == "" {
			return "", errNoIdentity
		}
		return generic.MemberID(member), nil
	}

	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return "", errNoIdentity
	}
	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errNoIdentity
	}
	return generic.MemberID(sub), nil
}
