// Package proof issues signed, portable reputation snapshots. Each proof
// commits to its supporting evidence with a Merkle root so individual
// attestations and evaluations can later be proven part of the snapshot
// without re-reading the whole evidence set.
package proof

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"irrl/internal/audit"
	"irrl/internal/domain"
	"irrl/internal/storage"
	dErrors "irrl/pkg/domain-errors"
	"irrl/pkg/merkle"
	"irrl/pkg/requestcontext"
	"irrl/pkg/signing"
)

const defaultValidForDays = 7

type Service struct {
	repo     storage.Repository
	auditLog *audit.Log
	keys     signing.KeyPair
	trusted  map[string]struct{}
	logger   *slog.Logger
}

// NewService wires the proof issuer. trustedIssuers are PEM public keys of
// peers whose proofs this instance accepts; the instance's own key is always
// trusted.
func NewService(repo storage.Repository, auditLog *audit.Log, keys signing.KeyPair, trustedIssuers []string, logger *slog.Logger) *Service {
	trusted := make(map[string]struct{}, len(trustedIssuers)+1)
	trusted[strings.TrimSpace(keys.PublicKey)] = struct{}{}
	for _, pem := range trustedIssuers {
		if pem = strings.TrimSpace(pem); pem != "" {
			trusted[pem] = struct{}{}
		}
	}
	return &Service{repo: repo, auditLog: auditLog, keys: keys, trusted: trusted, logger: logger}
}

// GenerateInput selects the reputation to snapshot.
type GenerateInput struct {
	Subject      string `json:"subject"`
	RealmID      string `json:"realmId"`
	Domain       string `json:"domain"`
	ValidForDays int    `json:"validForDays"`
}

// GenerateResult is the issued proof together with its storage handle.
type GenerateResult struct {
	ProofID       string               `json:"proofId"`
	Proof         domain.ProofEnvelope `json:"proof"`
	EvidenceCount int                  `json:"evidenceCount"`
}

// Generate issues a signed proof over the cached reputation for
// (subject, realmId, domain). The evidence commitment covers the subject's
// verified attestations followed by its evaluations, both ascending by id,
// so the leaf list can be rebuilt from storage when inclusion proofs are
// requested later.
func (s *Service) Generate(ctx context.Context, in GenerateInput) (GenerateResult, error) {
	if in.Subject == "" || in.RealmID == "" || in.Domain == "" {
		return GenerateResult{}, dErrors.New(dErrors.CodeValidation, "subject, realmId and domain are required")
	}
	validFor := in.ValidForDays
	if validFor <= 0 {
		validFor = defaultValidForDays
	}

	rep, err := s.repo.ReputationCache().Find(ctx, in.Subject, in.RealmID, in.Domain)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return GenerateResult{}, dErrors.Newf(dErrors.CodeNotFound,
				"no computed reputation for %s in %s/%s", in.Subject, in.RealmID, in.Domain)
		}
		return GenerateResult{}, fmt.Errorf("load reputation: %w", err)
	}

	leaves, err := s.evidenceLeaves(ctx, in.Subject, in.RealmID, in.Domain)
	if err != nil {
		return GenerateResult{}, err
	}

	now := requestcontext.Now(ctx).UTC()
	proof := domain.ReputationProof{
		Version:            domain.ProofVersion,
		Subject:            in.Subject,
		RealmID:            in.RealmID,
		Domain:             in.Domain,
		Reputation:         rep,
		Issuer:             strings.TrimSpace(s.keys.PublicKey),
		IssuedAt:           now,
		ValidUntil:         now.AddDate(0, 0, validFor),
		EvidenceMerkleRoot: merkle.Root(leaves),
	}
	sig, err := signing.SignObject(proof.Unsigned(), s.keys.PrivateKey)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("sign proof: %w", err)
	}
	proof.Signature = sig

	rec := domain.ProofRecord{
		ID:          "proof_" + uuid.NewString(),
		Proof:       proof,
		PublicKey:   s.keys.PublicKey,
		EvidenceIDs: leaves,
		CreatedAt:   now,
	}
	if err := s.repo.Proofs().Insert(ctx, rec); err != nil {
		return GenerateResult{}, fmt.Errorf("persist proof: %w", err)
	}

	if _, err := s.auditLog.Record(ctx, domain.AuditProofGenerated,
		requestcontext.Actor(ctx), []string{rec.ID}, map[string]any{
			"subject":       in.Subject,
			"realmId":       in.RealmID,
			"domain":        in.Domain,
			"evidenceCount": len(leaves),
		}); err != nil {
		return GenerateResult{}, fmt.Errorf("audit proof generation: %w", err)
	}

	return GenerateResult{
		ProofID:       rec.ID,
		Proof:         s.envelope(rec),
		EvidenceCount: len(leaves),
	}, nil
}

// Get returns the stored proof envelope by id.
func (s *Service) Get(ctx context.Context, id string) (domain.ProofEnvelope, error) {
	rec, err := s.repo.Proofs().FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.ProofEnvelope{}, dErrors.Newf(dErrors.CodeNotFound, "proof %s not found", id)
		}
		return domain.ProofEnvelope{}, fmt.Errorf("load proof: %w", err)
	}
	return s.envelope(rec), nil
}

// List returns stored proofs matching the filter.
func (s *Service) List(ctx context.Context, filter storage.ProofFilter) ([]domain.ProofRecord, error) {
	recs, err := s.repo.Proofs().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list proofs: %w", err)
	}
	return recs, nil
}

// Verify runs the three independent proof checks. A proof is valid only when
// all three pass, but each is reported on its own so callers can tell an
// expired proof from a tampered one.
func (s *Service) Verify(ctx context.Context, env domain.ProofEnvelope) domain.ProofVerification {
	result := domain.ProofVerification{
		SignatureValid: signing.VerifyObject(env.Data.Unsigned(), env.Signature, env.PublicKey),
	}

	now := requestcontext.Now(ctx).UTC()
	result.Expired = !env.Data.ValidUntil.After(now)

	_, result.IssuerTrusted = s.trusted[strings.TrimSpace(env.PublicKey)]

	result.Valid = result.SignatureValid && !result.Expired && result.IssuerTrusted
	return result
}

// EvidenceProof builds a Merkle inclusion proof showing that evidenceID was
// part of the committed evidence set of proofID.
func (s *Service) EvidenceProof(ctx context.Context, proofID, evidenceID string) (merkle.Proof, error) {
	rec, err := s.repo.Proofs().FindByID(ctx, proofID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return merkle.Proof{}, dErrors.Newf(dErrors.CodeNotFound, "proof %s not found", proofID)
		}
		return merkle.Proof{}, fmt.Errorf("load proof: %w", err)
	}

	index := -1
	for i, id := range rec.EvidenceIDs {
		if id == evidenceID {
			index = i
			break
		}
	}
	if index < 0 {
		return merkle.Proof{}, dErrors.Newf(dErrors.CodeNotFound,
			"evidence %s is not part of proof %s", evidenceID, proofID)
	}

	p, err := merkle.GenerateProof(rec.EvidenceIDs, index)
	if err != nil {
		return merkle.Proof{}, fmt.Errorf("generate inclusion proof: %w", err)
	}
	return p, nil
}

// VerifyEvidence reports whether an inclusion proof is internally consistent
// and anchored at the expected evidence root.
func (s *Service) VerifyEvidence(p merkle.Proof, expectedRoot string) bool {
	return merkle.VerifyProof(p) && p.Root == expectedRoot
}

func (s *Service) evidenceLeaves(ctx context.Context, subject, realmID, dom string) ([]string, error) {
	attIDs, err := s.repo.Attestations().VerifiedIDsBySubject(ctx, subject, realmID)
	if err != nil {
		return nil, fmt.Errorf("collect attestation evidence: %w", err)
	}
	evalIDs, err := s.repo.Evaluations().IDsBySubject(ctx, subject, realmID, dom)
	if err != nil {
		return nil, fmt.Errorf("collect evaluation evidence: %w", err)
	}
	return append(attIDs, evalIDs...), nil
}

func (s *Service) envelope(rec domain.ProofRecord) domain.ProofEnvelope {
	return domain.ProofEnvelope{
		Data:      rec.Proof,
		Signature: rec.Proof.Signature,
		PublicKey: rec.PublicKey,
		Timestamp: rec.Proof.IssuedAt,
		Version:   domain.ProofVersion,
	}
}
