// Package httptransport is the thin HTTP layer. Handlers decode, delegate to
// domain services and encode the shared envelope; business rules stay in the
// service packages.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"irrl/internal/platform/metrics"
	"irrl/internal/platform/middleware"
)

// Deps carries everything the router needs. Service fields are interfaces so
// handler tests can substitute fakes.
type Deps struct {
	Realms       RealmService
	Attestations AttestationService
	Evaluations  EvaluationService
	Trust        TrustService
	Reputation   ReputationService
	Proofs       ProofService
	Resolvers    ResolverService

	Logger      *slog.Logger
	Metrics     *metrics.HTTP
	CORSOrigins []string
	AdminSecret string
	// RateLimiter is optional; nil disables request rate limiting.
	RateLimiter *middleware.RateLimiter

	Info   InstanceInfo
	Checks []HealthCheck
}

// NewRouter assembles the full route table with the shared middleware chain.
func NewRouter(d Deps) http.Handler {
	h := &handlers{deps: d, startedAt: time.Now()}

	r := chi.NewRouter()
	r.Use(middleware.RequestMeta)
	r.Use(middleware.AccessLog(d.Logger))
	r.Use(corsMiddleware(d.CORSOrigins))
	if d.RateLimiter != nil {
		r.Use(d.RateLimiter.Middleware)
	}

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/health", h.health)
	r.Get("/info", h.info)

	r.Route("/realms", func(r chi.Router) {
		r.Use(d.Metrics.Middleware("/realms"))
		r.Post("/", h.createRealm)
		r.Get("/", h.listRealms)
		r.Get("/{id}/children", h.realmChildren)
		r.Delete("/{id}", h.deleteRealm)
		// Realms are addressable by id or by full path, so the lookup route
		// has to swallow slashes.
		r.Get("/*", h.getRealm)
	})

	r.Route("/attestations", func(r chi.Router) {
		r.Use(d.Metrics.Middleware("/attestations"))
		r.Post("/", h.createAttestation)
		r.Get("/", h.listAttestations)
		r.Get("/{id}", h.getAttestation)
		r.Post("/{id}/revoke", h.revokeAttestation)
	})

	r.Route("/verify", func(r chi.Router) {
		r.Use(d.Metrics.Middleware("/verify"))
		r.Post("/{id}", h.verifyAttestation)
		r.Get("/{id}/history", h.verificationHistory)
	})

	r.Route("/trust", func(r chi.Router) {
		r.Use(d.Metrics.Middleware("/trust"))
		r.Post("/evaluations", h.submitEvaluation)
		r.Get("/evaluations", h.listEvaluations)
		r.Post("/transitive", h.transitiveTrust)
		r.Get("/reputation/{subject}", h.getReputation)
		r.Get("/sybil/{subject}", h.getSybil)
	})

	r.Route("/proofs", func(r chi.Router) {
		r.Use(d.Metrics.Middleware("/proofs"))
		r.Post("/generate", h.generateProof)
		r.Post("/verify", h.verifyProof)
		r.Post("/evidence-proof", h.evidenceProof)
		r.Post("/verify-evidence", h.verifyEvidence)
		r.Get("/", h.listProofs)
		r.Get("/{id}", h.getProof)
	})

	r.Route("/resolvers", func(r chi.Router) {
		r.Use(d.Metrics.Middleware("/resolvers"))
		r.Get("/", h.listResolvers)
		r.Get("/{id}", h.getResolver)
		r.Post("/{id}/test", h.testResolver)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(d.AdminSecret, d.Logger))
			r.Post("/", h.registerResolver)
			r.Post("/{id}/deprecate", h.deprecateResolver)
		})
	})

	return r
}

type handlers struct {
	deps      Deps
	startedAt time.Time
}
