package realm

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"irrl/internal/audit"
	"irrl/internal/domain"
	"irrl/internal/storage"
	dErrors "irrl/pkg/domain-errors"
)

func testService(t *testing.T) (*Service, *storage.Memory) {
	t.Helper()
	repo := storage.NewMemory()
	log := audit.Open(repo.Audit(), slog.Default(), true)
	return NewService(repo, log, slog.Default()), repo
}

func TestCreateRootRealm(t *testing.T) {
	ctx := context.Background()
	svc, repo := testService(t)

	realm, err := svc.Create(ctx, CreateInput{Name: "OSS Review", Domain: "code-review"})
	require.NoError(t, err)
	require.Equal(t, realm.ID, realm.Path)
	require.Zero(t, realm.Depth)
	require.Nil(t, realm.Parent)

	t.Run("defaults applied", func(t *testing.T) {
		require.Equal(t, 1, realm.Rules.MinVerifications)
		require.Equal(t, "180d", realm.Rules.DecayHalfLife)
		require.Equal(t, 5, realm.Rules.MaxTransitiveDepth)
		require.InDelta(t, 0.8, realm.Rules.TransitiveDecayFactor, 1e-9)
	})

	t.Run("creation is audited", func(t *testing.T) {
		events, err := repo.Audit().List(ctx)
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, domain.AuditRealmCreated, events[0].Type)
		require.Equal(t, []string{realm.ID}, events[0].EntityIDs)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateInput{Domain: "code-review"})
		require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = svc.Create(ctx, CreateInput{Name: "x"})
		require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestCreateChildRealm(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t)

	parentRules := domain.RealmRules{MinVerifications: 3, DecayHalfLife: "90d"}
	parent, err := svc.Create(ctx, CreateInput{
		Name: "Parent", Domain: "code-review", Rules: &parentRules,
	})
	require.NoError(t, err)

	child, err := svc.Create(ctx, CreateInput{
		Name: "Child", Domain: "code-review", Parent: &parent.ID,
	})
	require.NoError(t, err)

	require.Equal(t, parent.ID+"/"+child.ID, child.Path)
	require.Equal(t, 1, child.Depth)
	require.Equal(t, strings.Count(child.Path, "/"), child.Depth)

	t.Run("child inherits parent rules", func(t *testing.T) {
		require.Equal(t, 3, child.Rules.MinVerifications)
		require.Equal(t, "90d", child.Rules.DecayHalfLife)
	})

	t.Run("missing parent", func(t *testing.T) {
		missing := "realm_missing"
		_, err := svc.Create(ctx, CreateInput{Name: "x", Domain: "d", Parent: &missing})
		require.True(t, dErrors.HasCode(err, dErrors.CodeInvalidParent))
	})
}

func TestGetByIDOrPath(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t)

	parent, err := svc.Create(ctx, CreateInput{Name: "Parent", Domain: "d"})
	require.NoError(t, err)
	child, err := svc.Create(ctx, CreateInput{Name: "Child", Domain: "d", Parent: &parent.ID})
	require.NoError(t, err)

	byID, err := svc.Get(ctx, child.ID)
	require.NoError(t, err)
	byPath, err := svc.Get(ctx, child.Path)
	require.NoError(t, err)
	require.Equal(t, byID.ID, byPath.ID)

	_, err = svc.Get(ctx, "nope")
	require.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestDeleteRefusals(t *testing.T) {
	ctx := context.Background()
	svc, repo := testService(t)

	realm, err := svc.Create(ctx, CreateInput{Name: "Target", Domain: "d"})
	require.NoError(t, err)

	t.Run("refused while attestations reference it", func(t *testing.T) {
		require.NoError(t, repo.Attestations().Insert(ctx, domain.Attestation{
			ID: "att_1", RealmID: realm.ID, Subject: "did:ex:s",
			Status: domain.AttestationPending, CreatedAt: time.Now(), UpdatedAt: time.Now(),
		}))
		err := svc.Delete(ctx, realm.ID)
		require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("refused while children exist", func(t *testing.T) {
		empty, err := svc.Create(ctx, CreateInput{Name: "Empty", Domain: "d"})
		require.NoError(t, err)
		_, err = svc.Create(ctx, CreateInput{Name: "Kid", Domain: "d", Parent: &empty.ID})
		require.NoError(t, err)

		err = svc.Delete(ctx, empty.ID)
		require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("delete cascades cache and proof rows", func(t *testing.T) {
		victim, err := svc.Create(ctx, CreateInput{Name: "Victim", Domain: "d"})
		require.NoError(t, err)
		require.NoError(t, repo.ReputationCache().Upsert(ctx, domain.Reputation{
			Subject: "did:ex:s", RealmID: victim.ID, Domain: "d",
		}))
		require.NoError(t, repo.Proofs().Insert(ctx, domain.ProofRecord{
			ID: "proof_1",
			Proof: domain.ReputationProof{
				Subject: "did:ex:s", RealmID: victim.ID, Domain: "d",
			},
		}))

		require.NoError(t, svc.Delete(ctx, victim.ID))

		_, err = repo.ReputationCache().Find(ctx, "did:ex:s", victim.ID, "d")
		require.ErrorIs(t, err, storage.ErrNotFound)
		proofs, err := repo.Proofs().List(ctx, storage.ProofFilter{RealmID: victim.ID})
		require.NoError(t, err)
		require.Empty(t, proofs)

		err = svc.Delete(ctx, victim.ID)
		require.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
