// Package storage defines the repository interfaces every component persists
// through. Implementations are interface-driven so services stay testable:
// the in-memory repository backs unit tests and default boot, the postgres
// repository backs real deployments. All operations are atomic; InTx provides
// the transactional wrapper the attestation manager needs for
// verify-then-write sequences.
package storage

import (
	"context"

	"irrl/internal/domain"
)

// Repository aggregates all persistent collaborators.
type Repository interface {
	Realms() RealmStore
	Attestations() AttestationStore
	Runs() RunStore
	Evaluations() EvaluationStore
	ReputationCache() ReputationCacheStore
	Proofs() ProofStore
	Audit() AuditStore
	Resolvers() CustomResolverStore

	// InTx runs fn atomically. Store calls made with the ctx passed to fn
	// join the same transaction.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RealmFilter narrows realm listings.
type RealmFilter struct {
	Domain string
	Parent string
	Limit  int
	Offset int
}

type RealmStore interface {
	// Insert persists a new realm; the path uniqueness constraint is
	// enforced here.
	Insert(ctx context.Context, realm domain.Realm) error
	FindByID(ctx context.Context, id string) (domain.Realm, error)
	FindByPath(ctx context.Context, path string) (domain.Realm, error)
	List(ctx context.Context, filter RealmFilter) ([]domain.Realm, error)
	// Children returns direct children, or the whole subtree when recursive.
	Children(ctx context.Context, id string, recursive bool) ([]domain.Realm, error)
	Delete(ctx context.Context, id string) error
}

// AttestationFilter narrows attestation listings.
type AttestationFilter struct {
	RealmID string
	Subject string
	Status  domain.AttestationStatus
	Limit   int
	Offset  int
}

type AttestationStore interface {
	Insert(ctx context.Context, att domain.Attestation) error
	FindByID(ctx context.Context, id string) (domain.Attestation, error)
	List(ctx context.Context, filter AttestationFilter) ([]domain.Attestation, error)
	// UpdateStatus mutates the mutable subset: status, verificationCount,
	// lastVerifiedAt, updatedAt. Content fields never change.
	UpdateStatus(ctx context.Context, att domain.Attestation) error
	CountByRealm(ctx context.Context, realmID string) (int, error)
	// ListExpired returns non-terminal attestations whose expiry has passed.
	ListExpired(ctx context.Context, now int64) ([]domain.Attestation, error)
	// VerifiedIDsBySubject returns ids of verified attestations for
	// (subject, realm), ascending by id. Proof evidence ordering depends on
	// this being reconstructible.
	VerifiedIDsBySubject(ctx context.Context, subject, realmID string) ([]string, error)
}

type RunStore interface {
	Insert(ctx context.Context, run domain.VerificationRun) error
	// ListByAttestation returns runs newest-first.
	ListByAttestation(ctx context.Context, attestationID string) ([]domain.VerificationRun, error)
}

// EvaluationFilter narrows evaluation listings.
type EvaluationFilter struct {
	RealmID    string
	Domain     string
	FromEntity string
	ToEntity   string
	Limit      int
	Offset     int
}

type EvaluationStore interface {
	Insert(ctx context.Context, eval domain.Evaluation) error
	// FindByTuple locates the unique active evaluation for
	// (from, to, realmId, domain).
	FindByTuple(ctx context.Context, from, to, realmID, dom string) (domain.Evaluation, error)
	// Update replaces the mutable fields of an existing row, keeping its id.
	Update(ctx context.Context, eval domain.Evaluation) error
	List(ctx context.Context, filter EvaluationFilter) ([]domain.Evaluation, error)
	// IDsBySubject returns evaluation ids for (to, realmId, domain),
	// ascending by id.
	IDsBySubject(ctx context.Context, to, realmID, dom string) ([]string, error)
	// ListByDomain loads the bounded edge set a trust query runs over.
	ListByDomain(ctx context.Context, dom string, realmID string) ([]domain.Evaluation, error)
}

type ReputationCacheStore interface {
	Upsert(ctx context.Context, rep domain.Reputation) error
	Find(ctx context.Context, subject, realmID, dom string) (domain.Reputation, error)
	// InvalidateSubject drops every cached domain row for (subject, realm).
	InvalidateSubject(ctx context.Context, subject, realmID string) error
	DeleteByRealm(ctx context.Context, realmID string) error
}

// ProofFilter narrows proof listings.
type ProofFilter struct {
	Subject string
	RealmID string
	Limit   int
	Offset  int
}

type ProofStore interface {
	Insert(ctx context.Context, rec domain.ProofRecord) error
	FindByID(ctx context.Context, id string) (domain.ProofRecord, error)
	List(ctx context.Context, filter ProofFilter) ([]domain.ProofRecord, error)
	DeleteByRealm(ctx context.Context, realmID string) error
}

type AuditStore interface {
	// Append persists an event. Callers guarantee serial ordering; the store
	// guarantees insertion order is the iteration order of List.
	Append(ctx context.Context, event domain.AuditEvent) error
	// Last returns the chain tail, or sentinel.ErrNotFound on an empty chain.
	Last(ctx context.Context) (domain.AuditEvent, error)
	List(ctx context.Context) ([]domain.AuditEvent, error)
}

type CustomResolverStore interface {
	Insert(ctx context.Context, desc domain.CustomResolverDescriptor) error
	FindByID(ctx context.Context, id string) (domain.CustomResolverDescriptor, error)
	List(ctx context.Context) ([]domain.CustomResolverDescriptor, error)
	Update(ctx context.Context, desc domain.CustomResolverDescriptor) error
}
