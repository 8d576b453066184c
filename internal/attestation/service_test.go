package attestation

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"irrl/internal/audit"
	"irrl/internal/domain"
	"irrl/internal/resolver"
	"irrl/internal/storage"
	dErrors "irrl/pkg/domain-errors"
	"irrl/pkg/requestcontext"
	"irrl/pkg/signing"
)

// Prometheus collectors register globally, so the whole package shares one
// metrics instance.
var testMetrics = NewMetrics()

type scriptedResolver struct {
	result domain.VerificationResult
}

func (r *scriptedResolver) Metadata() domain.ResolverMetadata {
	return domain.ResolverMetadata{
		ID:      "scripted",
		Version: "1.0.0",
		Name:    "Scripted",
		EvidenceSchema: domain.EvidenceSchema{
			Required: map[string]string{"value": "string"},
		},
		AvgVerificationTime: 10 * time.Millisecond,
	}
}

func (r *scriptedResolver) ValidateEvidence(evidence map[string]any) domain.EvidenceValidation {
	return resolver.ValidateAgainstSchema(r.Metadata().EvidenceSchema, evidence)
}

func (r *scriptedResolver) CanResolve(string, map[string]any) bool { return true }

func (r *scriptedResolver) Verify(context.Context, map[string]any) domain.VerificationResult {
	return r.result
}

type fixture struct {
	svc      *Service
	repo     *storage.Memory
	resolver *scriptedResolver
	keys     signing.KeyPair
	realmID  string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	repo := storage.NewMemory()
	reg := resolver.NewRegistry()
	scripted := &scriptedResolver{result: domain.VerificationResult{
		Status: domain.RunVerified,
		Output: map[string]any{"ok": true},
	}}
	require.NoError(t, reg.Register(scripted))

	keys, err := signing.GenerateKeyPair()
	require.NoError(t, err)

	realm := domain.Realm{
		ID: "realm_test", Name: "Test", Path: "realm_test", Domain: "code-review",
		Rules: domain.DefaultRealmRules(), CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, repo.Realms().Insert(context.Background(), realm))

	log := audit.Open(repo.Audit(), slog.Default(), true)
	return &fixture{
		svc:      NewService(repo, reg, log, keys, slog.Default(), testMetrics),
		repo:     repo,
		resolver: scripted,
		keys:     keys,
		realmID:  realm.ID,
	}
}

func validInput(realmID string) CreateInput {
	return CreateInput{
		RealmID:    realmID,
		Attester:   "did:ex:attester",
		Subject:    "did:ex:subject",
		Claim:      "deployed-service",
		ResolverID: "scripted",
		Evidence:   map[string]any{"value": "proof"},
	}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	att, err := f.svc.Create(ctx, validInput(f.realmID))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(att.ID, "cid_"))
	require.Equal(t, domain.AttestationPending, att.Status)

	t.Run("signature covers the content", func(t *testing.T) {
		require.True(t, signing.VerifyObject(att.Content(), att.Signature, f.keys.PublicKey))
	})

	t.Run("same content at the same instant conflicts", func(t *testing.T) {
		pinned := requestcontext.WithTime(ctx, att.CreatedAt)
		_, err := f.svc.Create(pinned, validInput(f.realmID))
		require.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyExists))
	})

	t.Run("unknown realm", func(t *testing.T) {
		in := validInput("realm_missing")
		_, err := f.svc.Create(ctx, in)
		require.True(t, dErrors.HasCode(err, dErrors.CodeInvalidRealm))
	})

	t.Run("unknown resolver", func(t *testing.T) {
		in := validInput(f.realmID)
		in.ResolverID = "missing"
		_, err := f.svc.Create(ctx, in)
		require.True(t, dErrors.HasCode(err, dErrors.CodeInvalidResolver))
	})

	t.Run("evidence schema failure carries field errors", func(t *testing.T) {
		in := validInput(f.realmID)
		in.Evidence = map[string]any{"value": 42}
		_, err := f.svc.Create(ctx, in)
		require.True(t, dErrors.HasCode(err, dErrors.CodeInvalidEvidence))
		derr, ok := dErrors.AsError(err)
		require.True(t, ok)
		require.NotNil(t, derr.Details)
	})

	t.Run("missing core fields", func(t *testing.T) {
		in := validInput(f.realmID)
		in.Subject = ""
		_, err := f.svc.Create(ctx, in)
		require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestVerifyStateMachine(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	att, err := f.svc.Create(ctx, validInput(f.realmID))
	require.NoError(t, err)

	t.Run("verified outcome", func(t *testing.T) {
		out, err := f.svc.Verify(ctx, att.ID, false)
		require.NoError(t, err)
		require.Equal(t, domain.AttestationVerified, out.Attestation.Status)
		require.Equal(t, 1, out.Attestation.VerificationCount)
		require.NotNil(t, out.Attestation.LastVerifiedAt)
		require.NotEmpty(t, out.Run.OutputHash)
		require.False(t, out.Cached)
	})

	t.Run("verified without force returns the last run", func(t *testing.T) {
		out, err := f.svc.Verify(ctx, att.ID, false)
		require.NoError(t, err)
		require.True(t, out.Cached)
		require.Equal(t, 1, out.Attestation.VerificationCount)
	})

	t.Run("force produces a fresh run", func(t *testing.T) {
		out, err := f.svc.Verify(ctx, att.ID, true)
		require.NoError(t, err)
		require.False(t, out.Cached)
		require.Equal(t, 2, out.Attestation.VerificationCount)
	})

	t.Run("failed run moves to failed, re-verify recovers", func(t *testing.T) {
		f.resolver.result = domain.VerificationResult{Status: domain.RunFailed, Output: map[string]any{"ok": false}}
		out, err := f.svc.Verify(ctx, att.ID, true)
		require.NoError(t, err)
		require.Equal(t, domain.AttestationFailed, out.Attestation.Status)

		f.resolver.result = domain.VerificationResult{Status: domain.RunVerified, Output: map[string]any{"ok": true}}
		out, err = f.svc.Verify(ctx, att.ID, false)
		require.NoError(t, err)
		require.Equal(t, domain.AttestationVerified, out.Attestation.Status)
	})

	t.Run("resolver error leaves attestation pending", func(t *testing.T) {
		f.resolver.result = domain.VerificationResult{Status: domain.RunError, Error: "upstream unavailable"}
		out, err := f.svc.Verify(ctx, att.ID, true)
		require.NoError(t, err)
		require.Equal(t, domain.AttestationPending, out.Attestation.Status)
		require.Equal(t, domain.RunError, out.Run.Status)
	})

	t.Run("history is newest first", func(t *testing.T) {
		runs, err := f.svc.History(ctx, att.ID)
		require.NoError(t, err)
		require.Len(t, runs, 5)
		require.Equal(t, domain.RunError, runs[0].Status)
	})

	t.Run("unknown attestation", func(t *testing.T) {
		_, err := f.svc.Verify(ctx, "cid_missing", false)
		require.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestRevokeAndTerminalStates(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	att, err := f.svc.Create(ctx, validInput(f.realmID))
	require.NoError(t, err)

	revoked, err := f.svc.Revoke(ctx, att.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AttestationRevoked, revoked.Status)

	t.Run("double revoke conflicts", func(t *testing.T) {
		_, err := f.svc.Revoke(ctx, att.ID)
		require.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyRevoked))
	})

	t.Run("revoked rejects verification", func(t *testing.T) {
		_, err := f.svc.Verify(ctx, att.ID, true)
		require.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyRevoked))
	})
}

func TestMarkExpired(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	past := time.Now().UTC().Add(-time.Hour)
	in := validInput(f.realmID)
	in.ExpiresAt = &past
	att, err := f.svc.Create(ctx, in)
	require.NoError(t, err)

	count, err := f.svc.MarkExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	got, err := f.svc.Get(ctx, att.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AttestationExpired, got.Status)

	t.Run("expired is terminal for verification", func(t *testing.T) {
		_, err := f.svc.Verify(ctx, att.ID, true)
		require.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyRevoked))
	})

	t.Run("sweep is idempotent", func(t *testing.T) {
		count, err := f.svc.MarkExpired(ctx)
		require.NoError(t, err)
		require.Zero(t, count)
	})
}
