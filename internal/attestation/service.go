// Package attestation orchestrates the attestation lifecycle: creation with
// schema-validated evidence, resolver-backed verification runs, revocation
// and expiry.
package attestation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"irrl/internal/audit"
	"irrl/internal/domain"
	"irrl/internal/resolver"
	"irrl/internal/storage"
	"irrl/pkg/canonical"
	dErrors "irrl/pkg/domain-errors"
	"irrl/pkg/requestcontext"
	"irrl/pkg/signing"
)

// minVerifyTimeout is the floor for resolver invocation deadlines.
const minVerifyTimeout = 5 * time.Second

type Service struct {
	repo     storage.Repository
	registry *resolver.Registry
	auditLog *audit.Log
	keys     signing.KeyPair
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
}

func NewService(repo storage.Repository, registry *resolver.Registry, auditLog *audit.Log,
	keys signing.KeyPair, logger *slog.Logger, metrics *Metrics) *Service {
	return &Service{
		repo:     repo,
		registry: registry,
		auditLog: auditLog,
		keys:     keys,
		logger:   logger,
		metrics:  metrics,
		tracer:   otel.Tracer("irrl/attestation"),
	}
}

// CreateInput is the caller-supplied part of an attestation.
type CreateInput struct {
	RealmID    string         `json:"realmId"`
	Attester   string         `json:"attester"`
	Subject    string         `json:"subject"`
	Claim      string         `json:"claim"`
	ResolverID string         `json:"resolverId"`
	Evidence   map[string]any `json:"evidence"`
	References []string       `json:"references"`
	ExpiresAt  *time.Time     `json:"expiresAt"`
}

// Create validates the input, derives the content id, signs the content with
// the instance key and persists the attestation as pending.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Attestation, error) {
	if in.Attester == "" || in.Subject == "" || in.Claim == "" {
		return domain.Attestation{}, dErrors.New(dErrors.CodeValidation, "attester, subject and claim are required")
	}

	if _, err := s.repo.Realms().FindByID(ctx, in.RealmID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Attestation{}, dErrors.Newf(dErrors.CodeInvalidRealm, "realm %s not found", in.RealmID)
		}
		return domain.Attestation{}, fmt.Errorf("load realm: %w", err)
	}

	res, err := s.registry.Get(in.ResolverID)
	if err != nil {
		return domain.Attestation{}, dErrors.Newf(dErrors.CodeInvalidResolver, "resolver %s is not registered", in.ResolverID)
	}
	if validation := res.ValidateEvidence(in.Evidence); !validation.Valid {
		return domain.Attestation{}, dErrors.New(dErrors.CodeInvalidEvidence, "evidence does not match resolver schema").
			WithDetails(validation.Errors)
	}

	now := requestcontext.Now(ctx).UTC()
	references := in.References
	if references == nil {
		references = []string{}
	}
	att := domain.Attestation{
		RealmID:    in.RealmID,
		Attester:   in.Attester,
		Subject:    in.Subject,
		Claim:      in.Claim,
		ResolverID: in.ResolverID,
		Evidence:   in.Evidence,
		References: references,
		Status:     domain.AttestationPending,
		ExpiresAt:  in.ExpiresAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	content := att.Content()
	id, err := canonical.ContentID(content)
	if err != nil {
		return domain.Attestation{}, fmt.Errorf("derive attestation id: %w", err)
	}
	att.ID = id
	att.Signature, err = signing.SignObject(content, s.keys.PrivateKey)
	if err != nil {
		return domain.Attestation{}, fmt.Errorf("sign attestation: %w", err)
	}

	if err := s.repo.Attestations().Insert(ctx, att); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return domain.Attestation{}, dErrors.Newf(dErrors.CodeAlreadyExists, "attestation %s already exists", id)
		}
		return domain.Attestation{}, fmt.Errorf("insert attestation: %w", err)
	}

	if _, err := s.auditLog.Record(ctx, domain.AuditAttestationCreated, in.Attester,
		[]string{att.ID, att.RealmID}, map[string]any{
			"subject":  att.Subject,
			"claim":    att.Claim,
			"resolver": att.ResolverID,
		}); err != nil {
		return domain.Attestation{}, fmt.Errorf("audit attestation creation: %w", err)
	}
	s.metrics.Created.Inc()
	return att, nil
}

// Get loads one attestation.
func (s *Service) Get(ctx context.Context, id string) (domain.Attestation, error) {
	att, err := s.repo.Attestations().FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Attestation{}, dErrors.Newf(dErrors.CodeNotFound, "attestation %s not found", id)
		}
		return domain.Attestation{}, fmt.Errorf("load attestation: %w", err)
	}
	return att, nil
}

// List returns attestations matching the filter.
func (s *Service) List(ctx context.Context, filter storage.AttestationFilter) ([]domain.Attestation, error) {
	atts, err := s.repo.Attestations().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list attestations: %w", err)
	}
	return atts, nil
}

// VerifyOutcome pairs the updated attestation with the run that produced its
// current status.
type VerifyOutcome struct {
	Attestation domain.Attestation     `json:"attestation"`
	Run         domain.VerificationRun `json:"run"`
	Cached      bool                   `json:"cached"`
}

// Verify dispatches an attestation's evidence to its resolver. An already
// verified attestation short-circuits to its latest run unless force is set.
// Revoked and expired attestations reject verification.
func (s *Service) Verify(ctx context.Context, id string, force bool) (VerifyOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "attestation.verify",
		trace.WithAttributes(attribute.String("attestation.id", id), attribute.Bool("force", force)))
	defer span.End()

	att, err := s.Get(ctx, id)
	if err != nil {
		return VerifyOutcome{}, err
	}
	if att.Status.Terminal() {
		return VerifyOutcome{}, dErrors.Newf(dErrors.CodeAlreadyRevoked, "attestation %s is %s", id, att.Status)
	}

	if att.Status == domain.AttestationVerified && !force {
		runs, err := s.repo.Runs().ListByAttestation(ctx, id)
		if err != nil {
			return VerifyOutcome{}, fmt.Errorf("load verification runs: %w", err)
		}
		if len(runs) > 0 {
			return VerifyOutcome{Attestation: att, Run: runs[0], Cached: true}, nil
		}
	}

	res, err := s.registry.Get(att.ResolverID)
	if err != nil {
		return VerifyOutcome{}, err
	}
	meta := res.Metadata()

	result, duration := s.invoke(ctx, res, att.Evidence)
	span.SetAttributes(attribute.String("run.status", string(result.Status)))

	outputHash := ""
	if result.Output != nil {
		if outputHash, err = canonical.HashObject(result.Output); err != nil {
			return VerifyOutcome{}, fmt.Errorf("hash run output: %w", err)
		}
	}
	now := requestcontext.Now(ctx).UTC()
	run := domain.VerificationRun{
		ID:              "run_" + uuid.NewString(),
		AttestationID:   att.ID,
		ResolverID:      meta.ID,
		ResolverVersion: meta.Version,
		Status:          result.Status,
		Output:          result.Output,
		OutputHash:      outputHash,
		Snapshot:        result.Snapshot,
		DurationMs:      duration.Milliseconds(),
		TriggeredBy:     requestcontext.Actor(ctx),
		Error:           result.Error,
		CreatedAt:       now,
	}

	att.Status = run.Status.NextStatus()
	att.VerificationCount++
	att.UpdatedAt = now
	if run.Status == domain.RunVerified {
		att.LastVerifiedAt = &now
	}

	err = s.repo.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Runs().Insert(ctx, run); err != nil {
			return fmt.Errorf("insert verification run: %w", err)
		}
		if err := s.repo.Attestations().UpdateStatus(ctx, att); err != nil {
			return fmt.Errorf("update attestation status: %w", err)
		}
		return nil
	})
	if err != nil {
		return VerifyOutcome{}, err
	}

	if _, err := s.auditLog.Record(ctx, domain.AuditAttestationVerified,
		requestcontext.Actor(ctx), []string{att.ID}, map[string]any{
			"runId":  run.ID,
			"status": string(run.Status),
		}); err != nil {
		return VerifyOutcome{}, fmt.Errorf("audit verification: %w", err)
	}

	s.metrics.VerificationRuns.WithLabelValues(string(run.Status)).Inc()
	s.metrics.VerifyDuration.Observe(duration.Seconds())
	return VerifyOutcome{Attestation: att, Run: run}, nil
}

// invoke runs the resolver under its deadline: ten times its declared average
// verification time, floored at five seconds. A blown deadline becomes a run
// with status "error".
func (s *Service) invoke(ctx context.Context, res resolver.Resolver, evidence map[string]any) (domain.VerificationResult, time.Duration) {
	timeout := 10 * res.Metadata().AvgVerificationTime
	if timeout < minVerifyTimeout {
		timeout = minVerifyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan domain.VerificationResult, 1)
	go func() {
		done <- res.Verify(ctx, evidence)
	}()

	select {
	case result := <-done:
		return result, time.Since(start)
	case <-ctx.Done():
		return domain.VerificationResult{
			Status: domain.RunError,
			Error:  dErrors.Newf(dErrors.CodeResolverTimeout, "resolver exceeded %s", timeout).Error(),
		}, time.Since(start)
	}
}

// History lists an attestation's verification runs, newest first.
func (s *Service) History(ctx context.Context, id string) ([]domain.VerificationRun, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	runs, err := s.repo.Runs().ListByAttestation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load verification runs: %w", err)
	}
	return runs, nil
}

// Revoke terminally revokes an attestation.
func (s *Service) Revoke(ctx context.Context, id string) (domain.Attestation, error) {
	att, err := s.Get(ctx, id)
	if err != nil {
		return domain.Attestation{}, err
	}
	if att.Status == domain.AttestationRevoked {
		return domain.Attestation{}, dErrors.Newf(dErrors.CodeAlreadyRevoked, "attestation %s is already revoked", id)
	}

	att.Status = domain.AttestationRevoked
	att.UpdatedAt = requestcontext.Now(ctx).UTC()
	if err := s.repo.Attestations().UpdateStatus(ctx, att); err != nil {
		return domain.Attestation{}, fmt.Errorf("update attestation status: %w", err)
	}

	if _, err := s.auditLog.Record(ctx, domain.AuditAttestationRevoked,
		requestcontext.Actor(ctx), []string{att.ID}, nil); err != nil {
		return domain.Attestation{}, fmt.Errorf("audit revocation: %w", err)
	}
	s.metrics.Revoked.Inc()
	return att, nil
}

// MarkExpired transitions every over-due non-terminal attestation to expired.
// Returns how many were transitioned.
func (s *Service) MarkExpired(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx).UTC()
	due, err := s.repo.Attestations().ListExpired(ctx, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("list expired attestations: %w", err)
	}

	for _, att := range due {
		att.Status = domain.AttestationExpired
		att.UpdatedAt = now
		if err := s.repo.Attestations().UpdateStatus(ctx, att); err != nil {
			return 0, fmt.Errorf("expire attestation %s: %w", att.ID, err)
		}
		if _, err := s.auditLog.Record(ctx, domain.AuditAttestationExpired,
			"system", []string{att.ID}, nil); err != nil {
			return 0, fmt.Errorf("audit expiry: %w", err)
		}
		s.metrics.Expired.Inc()
	}
	return len(due), nil
}
