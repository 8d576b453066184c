package resolver

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"irrl/internal/audit"
	"irrl/internal/domain"
	"irrl/internal/storage"
	dErrors "irrl/pkg/domain-errors"
)

func testService(t *testing.T) (*Service, *storage.Memory) {
	t.Helper()
	repo := storage.NewMemory()
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltIns(reg, BuiltInConfig{}))
	log := audit.Open(repo.Audit(), slog.Default(), true)
	return NewService(reg, repo.Resolvers(), log, slog.Default()), repo
}

func customMeta(id string) domain.ResolverMetadata {
	return domain.ResolverMetadata{
		ID:      id,
		Version: "0.1.0",
		Name:    "Custom " + id,
		EvidenceSchema: domain.EvidenceSchema{
			Required: map[string]string{"claimRef": "string"},
		},
	}
}

func TestCustomResolverLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, repo := testService(t)

	reg, err := svc.Register(ctx, customMeta("org-membership"))
	require.NoError(t, err)
	require.NotEmpty(t, reg.DeprecationToken)
	require.False(t, reg.Descriptor.Deprecated)

	t.Run("token hash is not the token", func(t *testing.T) {
		stored, err := repo.Resolvers().FindByID(ctx, "org-membership")
		require.NoError(t, err)
		require.NotEmpty(t, stored.DeprecationTokenHash)
		require.NotEqual(t, reg.DeprecationToken, stored.DeprecationTokenHash)
	})

	t.Run("duplicate registration conflicts", func(t *testing.T) {
		_, err := svc.Register(ctx, customMeta("org-membership"))
		require.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyExists))
	})

	t.Run("built-in ids are reserved", func(t *testing.T) {
		_, err := svc.Register(ctx, customMeta("url-liveness"))
		require.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyExists))
	})

	t.Run("deprecate requires the minted token", func(t *testing.T) {
		_, err := svc.Deprecate(ctx, "org-membership", "wrong-token")
		require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

		desc, err := svc.Deprecate(ctx, "org-membership", reg.DeprecationToken)
		require.NoError(t, err)
		require.True(t, desc.Deprecated)

		// Second deprecation is a no-op.
		desc, err = svc.Deprecate(ctx, "org-membership", "anything")
		require.NoError(t, err)
		require.True(t, desc.Deprecated)
	})

	t.Run("registration and deprecation are audited", func(t *testing.T) {
		events, err := repo.Audit().List(ctx)
		require.NoError(t, err)
		var types []string
		for _, e := range events {
			types = append(types, e.Type)
		}
		require.Contains(t, types, domain.AuditResolverRegistered)
		require.Contains(t, types, domain.AuditResolverDeprecated)
	})
}

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t)

	_, err := svc.Register(ctx, customMeta("org-membership"))
	require.NoError(t, err)

	t.Run("list merges built-ins and customs", func(t *testing.T) {
		entries, err := svc.List(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 4)
	})

	t.Run("get built-in by version", func(t *testing.T) {
		entry, err := svc.Get(ctx, "hash-commitment", "1.0.0")
		require.NoError(t, err)
		require.True(t, entry.BuiltIn)

		_, err = svc.Get(ctx, "hash-commitment", "9.9.9")
		require.True(t, dErrors.HasCode(err, dErrors.CodeResolverNotFound))
	})

	t.Run("get custom", func(t *testing.T) {
		entry, err := svc.Get(ctx, "org-membership", "")
		require.NoError(t, err)
		require.False(t, entry.BuiltIn)
	})
}

func TestResolverTestEndpointSemantics(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t)

	t.Run("validation failure skips invocation", func(t *testing.T) {
		out, err := svc.Test(ctx, "hash-commitment", map[string]any{})
		require.NoError(t, err)
		require.False(t, out.Validation.Valid)
		require.Nil(t, out.Result)
	})

	t.Run("valid evidence is invoked", func(t *testing.T) {
		out, err := svc.Test(ctx, "hash-commitment", map[string]any{
			"sha256": "2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae",
			"value":  "foo",
		})
		require.NoError(t, err)
		require.True(t, out.Validation.Valid)
		require.NotNil(t, out.Result)
		require.Equal(t, domain.RunVerified, out.Result.Status)
	})

	t.Run("custom descriptors cannot be invoked", func(t *testing.T) {
		_, err := svc.Register(ctx, customMeta("org-membership"))
		require.NoError(t, err)
		_, err = svc.Test(ctx, "org-membership", map[string]any{"claimRef": "x"})
		require.True(t, dErrors.HasCode(err, dErrors.CodeInvalidResolver))
	})
}
