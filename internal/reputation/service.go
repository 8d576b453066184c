package reputation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"irrl/internal/domain"
	"irrl/internal/storage"
	dErrors "irrl/pkg/domain-errors"
	"irrl/pkg/requestcontext"
)

// Metrics tracks reputation computation and cache behavior.
type Metrics struct {
	Computations prometheus.Counter
	CacheHits    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Computations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "irrl_reputation_computations_total",
			Help: "Full reputation recomputations",
		}),
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "irrl_reputation_cache_lookups_total",
			Help: "Reputation cache lookups by outcome",
		}, []string{"outcome"}),
	}
}

type Service struct {
	repo    storage.Repository
	cache   Cache
	logger  *slog.Logger
	metrics *Metrics
}

func NewService(repo storage.Repository, cache Cache, logger *slog.Logger, metrics *Metrics) *Service {
	return &Service{repo: repo, cache: cache, logger: logger, metrics: metrics}
}

// InvalidateSubject drops the hot cache for every domain of a subject in a
// realm. The evaluation service calls this on every write.
func (s *Service) InvalidateSubject(ctx context.Context, subject, realmID string) error {
	return s.cache.InvalidateSubject(ctx, subject, realmID)
}

// Get returns the subject's reputation, recomputing when the cache is cold,
// stale, or the caller forces a refresh.
func (s *Service) Get(ctx context.Context, subject, realmID, dom string, refresh bool) (domain.Reputation, error) {
	if subject == "" || realmID == "" || dom == "" {
		return domain.Reputation{}, dErrors.New(dErrors.CodeValidation, "subject, realm and domain are required")
	}

	realm, err := s.repo.Realms().FindByID(ctx, realmID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Reputation{}, dErrors.Newf(dErrors.CodeInvalidRealm, "realm %s not found", realmID)
		}
		return domain.Reputation{}, fmt.Errorf("load realm: %w", err)
	}

	now := requestcontext.Now(ctx).UTC()
	if !refresh {
		if rep, ok, err := s.cache.Get(ctx, subject, realmID, dom); err != nil {
			s.logger.WarnContext(ctx, "reputation cache read failed", "error", err)
		} else if ok && rep.ValidUntil.After(now) {
			s.metrics.CacheHits.WithLabelValues("hit").Inc()
			return rep, nil
		}
		if rep, err := s.repo.ReputationCache().Find(ctx, subject, realmID, dom); err == nil && rep.ValidUntil.After(now) {
			s.metrics.CacheHits.WithLabelValues("store_hit").Inc()
			if err := s.cache.Set(ctx, rep); err != nil {
				s.logger.WarnContext(ctx, "reputation cache write failed", "error", err)
			}
			return rep, nil
		}
	}
	s.metrics.CacheHits.WithLabelValues("miss").Inc()

	rep, err := s.compute(ctx, subject, realm, dom, now)
	if err != nil {
		return domain.Reputation{}, err
	}

	if err := s.repo.ReputationCache().Upsert(ctx, rep); err != nil {
		return domain.Reputation{}, fmt.Errorf("persist reputation: %w", err)
	}
	if err := s.cache.Set(ctx, rep); err != nil {
		s.logger.WarnContext(ctx, "reputation cache write failed", "error", err)
	}
	return rep, nil
}

func (s *Service) compute(ctx context.Context, subject string, realm domain.Realm, dom string, now time.Time) (domain.Reputation, error) {
	evals, err := s.repo.Evaluations().List(ctx, storage.EvaluationFilter{
		RealmID: realm.ID, Domain: dom, ToEntity: subject,
	})
	if err != nil {
		return domain.Reputation{}, fmt.Errorf("load evaluations: %w", err)
	}
	atts, err := s.repo.Attestations().List(ctx, storage.AttestationFilter{
		RealmID: realm.ID, Subject: subject,
	})
	if err != nil {
		return domain.Reputation{}, fmt.Errorf("load attestations: %w", err)
	}

	verified := 0
	for _, att := range atts {
		if att.Status == domain.AttestationVerified {
			verified++
		}
	}

	var oldest, newest time.Time
	for _, eval := range evals {
		if oldest.IsZero() || eval.CreatedAt.Before(oldest) {
			oldest = eval.CreatedAt
		}
		if newest.IsZero() || eval.CreatedAt.After(newest) {
			newest = eval.CreatedAt
		}
	}

	computed := ComputeWithDecay(now, Input{
		Evaluations:              evals,
		AttestationCount:         len(atts),
		VerifiedAttestationCount: verified,
		OldestEvaluationDate:     oldest,
		NewestEvaluationDate:     newest,
	}, Config{
		HalfLifeDays: realm.Rules.HalfLifeDays(),
		MinScore:     realm.Rules.MinScore,
		MaxScore:     100,
	})
	s.metrics.Computations.Inc()

	return domain.Reputation{
		Subject:          subject,
		RealmID:          realm.ID,
		Domain:           dom,
		Score:            computed.Score,
		Confidence:       computed.Confidence,
		EvaluationCount:  len(evals),
		AttestationCount: len(atts),
		Breakdown:        computed.Breakdown,
		ComputedAt:       now,
		ValidUntil:       now.Add(TTL),
	}, nil
}

// Sybil computes the Sybil-resistance signal for a subject from the same
// evidence set the reputation uses.
func (s *Service) Sybil(ctx context.Context, subject, realmID, dom string) (domain.SybilResistance, error) {
	evals, err := s.repo.Evaluations().List(ctx, storage.EvaluationFilter{
		RealmID: realmID, Domain: dom, ToEntity: subject,
	})
	if err != nil {
		return domain.SybilResistance{}, fmt.Errorf("load evaluations: %w", err)
	}
	atts, err := s.repo.Attestations().List(ctx, storage.AttestationFilter{
		RealmID: realmID, Subject: subject,
	})
	if err != nil {
		return domain.SybilResistance{}, fmt.Errorf("load attestations: %w", err)
	}
	return ComputeSybilResistance(evals, atts), nil
}
