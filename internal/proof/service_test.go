package proof

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"irrl/internal/audit"
	"irrl/internal/domain"
	"irrl/internal/storage"
	dErrors "irrl/pkg/domain-errors"
	"irrl/pkg/requestcontext"
	"irrl/pkg/signing"
)

type fixture struct {
	ctx  context.Context
	repo storage.Repository
	svc  *Service
	keys signing.KeyPair
	now  time.Time
}

func setup(t *testing.T) fixture {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	repo := storage.NewMemory()
	keys, err := signing.GenerateKeyPair()
	require.NoError(t, err)

	log := audit.Open(repo.Audit(), slog.Default(), true)
	svc := NewService(repo, log, keys, nil, slog.Default())

	require.NoError(t, repo.ReputationCache().Upsert(ctx, domain.Reputation{
		Subject: "did:ex:subject", RealmID: "realm_main", Domain: "code-review",
		Score: 82.5, Confidence: 0.6, EvaluationCount: 1, AttestationCount: 2,
		ComputedAt: now, ValidUntil: now.Add(5 * time.Minute),
	}))

	for _, id := range []string{"att_a1", "att_a2"} {
		require.NoError(t, repo.Attestations().Insert(ctx, domain.Attestation{
			ID: id, RealmID: "realm_main", Subject: "did:ex:subject",
			ResolverID: "url-liveness", Status: domain.AttestationVerified,
			CreatedAt: now, UpdatedAt: now,
		}))
	}
	require.NoError(t, repo.Evaluations().Insert(ctx, domain.Evaluation{
		ID: "eval_e1", FromEntity: "did:ex:alice", ToEntity: "did:ex:subject",
		RealmID: "realm_main", Domain: "code-review", Score: 80, Weight: 1, CreatedAt: now,
	}))

	return fixture{ctx: ctx, repo: repo, svc: svc, keys: keys, now: now}
}

func TestGenerateAndVerify(t *testing.T) {
	f := setup(t)

	result, err := f.svc.Generate(f.ctx, GenerateInput{
		Subject: "did:ex:subject", RealmID: "realm_main", Domain: "code-review",
	})
	require.NoError(t, err)
	require.Equal(t, 3, result.EvidenceCount)
	require.Equal(t, domain.ProofVersion, result.Proof.Version)
	require.Equal(t, f.now.AddDate(0, 0, 7), result.Proof.Data.ValidUntil)
	require.InDelta(t, 82.5, result.Proof.Data.Reputation.Score, 1e-9)

	verdict := f.svc.Verify(f.ctx, result.Proof)
	require.True(t, verdict.Valid)
	require.True(t, verdict.SignatureValid)
	require.False(t, verdict.Expired)
	require.True(t, verdict.IssuerTrusted)

	t.Run("stored envelope matches the issued one", func(t *testing.T) {
		stored, err := f.svc.Get(f.ctx, result.ProofID)
		require.NoError(t, err)
		require.Equal(t, result.Proof, stored)
	})

	t.Run("expiry flips only the expired check", func(t *testing.T) {
		later := requestcontext.WithTime(context.Background(),
			result.Proof.Data.ValidUntil.Add(time.Second))
		verdict := f.svc.Verify(later, result.Proof)
		require.False(t, verdict.Valid)
		require.True(t, verdict.Expired)
		require.True(t, verdict.SignatureValid)
		require.True(t, verdict.IssuerTrusted)
	})

	t.Run("tampering breaks only the signature check", func(t *testing.T) {
		forged := result.Proof
		forged.Data.Reputation.Score = 99.9
		verdict := f.svc.Verify(f.ctx, forged)
		require.False(t, verdict.Valid)
		require.False(t, verdict.SignatureValid)
		require.True(t, verdict.IssuerTrusted)
	})

	t.Run("unknown issuer key is untrusted", func(t *testing.T) {
		other, err := signing.GenerateKeyPair()
		require.NoError(t, err)
		foreign := result.Proof
		foreign.PublicKey = other.PublicKey
		verdict := f.svc.Verify(f.ctx, foreign)
		require.False(t, verdict.Valid)
		require.False(t, verdict.IssuerTrusted)
	})

	t.Run("generation is audited", func(t *testing.T) {
		events, err := f.repo.Audit().List(f.ctx)
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, domain.AuditProofGenerated, events[0].Type)
		require.Equal(t, []string{result.ProofID}, events[0].EntityIDs)
	})
}

func TestGenerateRequiresComputedReputation(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Generate(f.ctx, GenerateInput{
		Subject: "did:ex:stranger", RealmID: "realm_main", Domain: "code-review",
	})
	require.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = f.svc.Generate(f.ctx, GenerateInput{Subject: "did:ex:subject"})
	require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestEvidenceInclusion(t *testing.T) {
	f := setup(t)

	result, err := f.svc.Generate(f.ctx, GenerateInput{
		Subject: "did:ex:subject", RealmID: "realm_main", Domain: "code-review",
	})
	require.NoError(t, err)

	for _, evidenceID := range []string{"att_a1", "att_a2", "eval_e1"} {
		p, err := f.svc.EvidenceProof(f.ctx, result.ProofID, evidenceID)
		require.NoError(t, err)
		require.Equal(t, result.Proof.Data.EvidenceMerkleRoot, p.Root)
		require.True(t, f.svc.VerifyEvidence(p, result.Proof.Data.EvidenceMerkleRoot))
	}

	t.Run("foreign evidence id is rejected", func(t *testing.T) {
		_, err := f.svc.EvidenceProof(f.ctx, result.ProofID, "att_other")
		require.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("wrong expected root fails verification", func(t *testing.T) {
		p, err := f.svc.EvidenceProof(f.ctx, result.ProofID, "att_a1")
		require.NoError(t, err)
		require.False(t, f.svc.VerifyEvidence(p, "deadbeef"))
	})

	t.Run("unknown proof id", func(t *testing.T) {
		_, err := f.svc.EvidenceProof(f.ctx, "proof_missing", "att_a1")
		require.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestTrustedIssuerList(t *testing.T) {
	f := setup(t)

	peer, err := signing.GenerateKeyPair()
	require.NoError(t, err)

	// A verifier configured to trust the peer accepts proofs under its key.
	verifier := NewService(f.repo, audit.Open(f.repo.Audit(), slog.Default(), false),
		f.keys, []string{peer.PublicKey}, slog.Default())

	proof := domain.ReputationProof{
		Version: domain.ProofVersion, Subject: "did:ex:subject",
		RealmID: "realm_main", Domain: "code-review",
		IssuedAt: f.now, ValidUntil: f.now.AddDate(0, 0, 7),
	}
	sig, err := signing.SignObject(proof.Unsigned(), peer.PrivateKey)
	require.NoError(t, err)
	proof.Signature = sig

	verdict := verifier.Verify(f.ctx, domain.ProofEnvelope{
		Data: proof, Signature: sig, PublicKey: peer.PublicKey,
		Timestamp: f.now, Version: domain.ProofVersion,
	})
	require.True(t, verdict.Valid)
}
