package httptransport

import (
	"context"

	"irrl/internal/attestation"
	"irrl/internal/domain"
	"irrl/internal/evaluation"
	"irrl/internal/proof"
	"irrl/internal/realm"
	"irrl/internal/resolver"
	"irrl/internal/storage"
	"irrl/internal/trust"
	"irrl/pkg/merkle"
)

//go:generate mockgen -destination=mocks/services.go -package=mocks irrl/internal/transport/http ReputationService,TrustService

// RealmService manages the realm hierarchy.
type RealmService interface {
	Create(ctx context.Context, in realm.CreateInput) (domain.Realm, error)
	Get(ctx context.Context, ref string) (domain.Realm, error)
	List(ctx context.Context, filter storage.RealmFilter) ([]domain.Realm, error)
	Children(ctx context.Context, id string, recursive bool) ([]domain.Realm, error)
	Delete(ctx context.Context, id string) error
}

// AttestationService manages the attestation lifecycle.
type AttestationService interface {
	Create(ctx context.Context, in attestation.CreateInput) (domain.Attestation, error)
	Get(ctx context.Context, id string) (domain.Attestation, error)
	List(ctx context.Context, filter storage.AttestationFilter) ([]domain.Attestation, error)
	Verify(ctx context.Context, id string, force bool) (attestation.VerifyOutcome, error)
	History(ctx context.Context, id string) ([]domain.VerificationRun, error)
	Revoke(ctx context.Context, id string) (domain.Attestation, error)
}

// EvaluationService manages signed trust edges.
type EvaluationService interface {
	Upsert(ctx context.Context, in evaluation.Input) (domain.Evaluation, error)
	List(ctx context.Context, filter storage.EvaluationFilter) ([]domain.Evaluation, error)
}

// TrustService answers transitive trust queries.
type TrustService interface {
	Transitive(ctx context.Context, q trust.Query) (trust.Result, error)
}

// ReputationService computes and caches reputation snapshots.
type ReputationService interface {
	Get(ctx context.Context, subject, realmID, dom string, refresh bool) (domain.Reputation, error)
	Sybil(ctx context.Context, subject, realmID, dom string) (domain.SybilResistance, error)
}

// ProofService issues and checks portable reputation proofs.
type ProofService interface {
	Generate(ctx context.Context, in proof.GenerateInput) (proof.GenerateResult, error)
	Get(ctx context.Context, id string) (domain.ProofEnvelope, error)
	List(ctx context.Context, filter storage.ProofFilter) ([]domain.ProofRecord, error)
	Verify(ctx context.Context, env domain.ProofEnvelope) domain.ProofVerification
	EvidenceProof(ctx context.Context, proofID, evidenceID string) (merkle.Proof, error)
	VerifyEvidence(p merkle.Proof, expectedRoot string) bool
}

// ResolverService manages the resolver catalog.
type ResolverService interface {
	Register(ctx context.Context, meta domain.ResolverMetadata) (resolver.Registration, error)
	Deprecate(ctx context.Context, id, token string) (domain.CustomResolverDescriptor, error)
	List(ctx context.Context) ([]resolver.CatalogEntry, error)
	Get(ctx context.Context, id, version string) (resolver.CatalogEntry, error)
	Test(ctx context.Context, id string, evidence map[string]any) (resolver.TestResult, error)
}
