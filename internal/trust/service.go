package trust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"irrl/internal/storage"
	dErrors "irrl/pkg/domain-errors"
)

// Metrics tracks trust query activity.
type Metrics struct {
	Queries       prometheus.Counter
	PathsExplored prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		Queries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "irrl_trust_queries_total",
			Help: "Transitive trust queries served",
		}),
		PathsExplored: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "irrl_trust_paths_explored",
			Help:    "Frontier entries explored per query",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000},
		}),
	}
}

// Service answers trust queries against the stored evaluation graph.
type Service struct {
	repo    storage.Repository
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

func NewService(repo storage.Repository, logger *slog.Logger, metrics *Metrics) *Service {
	return &Service{
		repo:    repo,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer("irrl/trust"),
	}
}

// Transitive loads the domain's edge set and runs the search. When the query
// names a realm, that realm's rules provide the depth and decay defaults.
func (s *Service) Transitive(ctx context.Context, q Query) (Result, error) {
	if q.From == "" || q.To == "" || q.Domain == "" {
		return Result{}, dErrors.New(dErrors.CodeValidation, "from, to and domain are required")
	}

	ctx, span := s.tracer.Start(ctx, "trust.transitive", trace.WithAttributes(
		attribute.String("trust.domain", q.Domain),
	))
	defer span.End()

	if q.RealmID != "" {
		realm, err := s.repo.Realms().FindByID(ctx, q.RealmID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return Result{}, dErrors.Newf(dErrors.CodeInvalidRealm, "realm %s not found", q.RealmID)
			}
			return Result{}, fmt.Errorf("load realm: %w", err)
		}
		if q.MaxDepth == 0 {
			q.MaxDepth = realm.Rules.MaxTransitiveDepth
		}
		if q.DecayFactor == 0 {
			q.DecayFactor = realm.Rules.TransitiveDecayFactor
		}
	}

	evals, err := s.repo.Evaluations().ListByDomain(ctx, q.Domain, q.RealmID)
	if err != nil {
		return Result{}, fmt.Errorf("load evaluation graph: %w", err)
	}

	result := Transitive(BuildGraph(evals), q)
	span.SetAttributes(
		attribute.Int("trust.paths_explored", result.Metadata.PathsExplored),
		attribute.Int("trust.paths", len(result.Paths)),
	)
	s.metrics.Queries.Inc()
	s.metrics.PathsExplored.Observe(float64(result.Metadata.PathsExplored))
	return result, nil
}
