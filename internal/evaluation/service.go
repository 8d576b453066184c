// Package evaluation manages directed trust edges. An evaluation is unique
// per (from, to, realm, domain); re-submission updates the existing edge in
// place so the graph never accumulates stale duplicates.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"irrl/internal/audit"
	"irrl/internal/domain"
	"irrl/internal/storage"
	"irrl/pkg/canonical"
	dErrors "irrl/pkg/domain-errors"
	platformstrings "irrl/pkg/platform/strings"
	"irrl/pkg/requestcontext"
	"irrl/pkg/signing"
)

// CacheInvalidator drops externally cached reputation entries for a subject.
// The repository's own cache rows are invalidated directly.
type CacheInvalidator interface {
	InvalidateSubject(ctx context.Context, subject, realmID string) error
}

type Service struct {
	repo     storage.Repository
	auditLog *audit.Log
	keys     signing.KeyPair
	cache    CacheInvalidator
	logger   *slog.Logger
}

func NewService(repo storage.Repository, auditLog *audit.Log, keys signing.KeyPair,
	cache CacheInvalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, auditLog: auditLog, keys: keys, cache: cache, logger: logger}
}

// Input is one trust edge submission.
type Input struct {
	From                   string     `json:"from"`
	To                     string     `json:"to"`
	RealmID                string     `json:"realmId"`
	Domain                 string     `json:"domain"`
	Score                  int        `json:"score"`
	Weight                 *float64   `json:"weight"`
	Rationale              string     `json:"rationale"`
	SupportingAttestations []string   `json:"supportingAttestations"`
	ExpiresAt              *time.Time `json:"expiresAt"`
}

func (in Input) validate() error {
	if in.From == "" || in.To == "" || in.Domain == "" {
		return dErrors.New(dErrors.CodeValidation, "from, to and domain are required")
	}
	if in.From == in.To {
		return dErrors.New(dErrors.CodeValidation, "self-evaluation is not allowed")
	}
	if in.Score < 0 || in.Score > 100 {
		return dErrors.New(dErrors.CodeValidation, "score must be between 0 and 100")
	}
	if in.Weight != nil && (*in.Weight < 0 || *in.Weight > 1) {
		return dErrors.New(dErrors.CodeValidation, "weight must be between 0 and 1")
	}
	return nil
}

// Upsert inserts a new edge or updates the existing one for the 4-tuple,
// retaining its id. Either way the write is audited and the subject's cached
// reputation is invalidated.
func (s *Service) Upsert(ctx context.Context, in Input) (domain.Evaluation, error) {
	if err := in.validate(); err != nil {
		return domain.Evaluation{}, err
	}
	if _, err := s.repo.Realms().FindByID(ctx, in.RealmID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Evaluation{}, dErrors.Newf(dErrors.CodeInvalidRealm, "realm %s not found", in.RealmID)
		}
		return domain.Evaluation{}, fmt.Errorf("load realm: %w", err)
	}

	weight := 1.0
	if in.Weight != nil {
		weight = *in.Weight
	}
	supporting := platformstrings.DedupeAndTrim(in.SupportingAttestations)
	if supporting == nil {
		supporting = []string{}
	}
	now := requestcontext.Now(ctx).UTC()

	content := domain.EvaluationContent{
		From:    in.From,
		To:      in.To,
		RealmID: in.RealmID,
		Domain:  in.Domain,
		Score:   in.Score,
		TS:      now.UnixMilli(),
	}
	signature, err := signing.SignObject(content, s.keys.PrivateKey)
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("sign evaluation: %w", err)
	}

	var eval domain.Evaluation
	err = s.repo.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.Evaluations().FindByTuple(ctx, in.From, in.To, in.RealmID, in.Domain)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			id, err := canonical.ContentID(content)
			if err != nil {
				return fmt.Errorf("derive evaluation id: %w", err)
			}
			eval = domain.Evaluation{
				ID:                     id,
				FromEntity:             in.From,
				ToEntity:               in.To,
				RealmID:                in.RealmID,
				Domain:                 in.Domain,
				Score:                  in.Score,
				Weight:                 weight,
				Rationale:              in.Rationale,
				SupportingAttestations: supporting,
				Signature:              signature,
				ExpiresAt:              in.ExpiresAt,
				CreatedAt:              now,
			}
			return s.repo.Evaluations().Insert(ctx, eval)
		case err != nil:
			return fmt.Errorf("load evaluation: %w", err)
		default:
			existing.Score = in.Score
			existing.Weight = weight
			existing.Rationale = in.Rationale
			existing.SupportingAttestations = supporting
			existing.Signature = signature
			eval = existing
			return s.repo.Evaluations().Update(ctx, eval)
		}
	})
	if err != nil {
		return domain.Evaluation{}, err
	}

	if _, err := s.auditLog.Record(ctx, domain.AuditEvaluationCreated, in.From,
		[]string{eval.ID}, map[string]any{
			"to":     in.To,
			"domain": in.Domain,
			"score":  in.Score,
		}); err != nil {
		return domain.Evaluation{}, fmt.Errorf("audit evaluation: %w", err)
	}

	if err := s.invalidate(ctx, in.To, in.RealmID); err != nil {
		return domain.Evaluation{}, err
	}
	return eval, nil
}

func (s *Service) invalidate(ctx context.Context, subject, realmID string) error {
	if err := s.repo.ReputationCache().InvalidateSubject(ctx, subject, realmID); err != nil {
		return fmt.Errorf("invalidate reputation rows: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.InvalidateSubject(ctx, subject, realmID); err != nil {
			// The repository rows are already gone; a cache layer failure
			// only delays freshness until its TTL.
			s.logger.WarnContext(ctx, "reputation cache invalidation failed",
				"subject", subject, "realm", realmID, "error", err)
		}
	}
	return nil
}

// List returns evaluations matching the filter.
func (s *Service) List(ctx context.Context, filter storage.EvaluationFilter) ([]domain.Evaluation, error) {
	evals, err := s.repo.Evaluations().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	return evals, nil
}
