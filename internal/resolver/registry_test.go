package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"irrl/internal/domain"
	dErrors "irrl/pkg/domain-errors"
)

type stubResolver struct {
	meta   domain.ResolverMetadata
	result domain.VerificationResult
}

func (s *stubResolver) Metadata() domain.ResolverMetadata { return s.meta }

func (s *stubResolver) ValidateEvidence(evidence map[string]any) domain.EvidenceValidation {
	return ValidateAgainstSchema(s.meta.EvidenceSchema, evidence)
}

func (s *stubResolver) CanResolve(string, map[string]any) bool { return true }

func (s *stubResolver) Verify(context.Context, map[string]any) domain.VerificationResult {
	return s.result
}

func stub(id, version string) *stubResolver {
	return &stubResolver{meta: domain.ResolverMetadata{ID: id, Version: version, Name: id}}
}

func TestRegistryVersionedLookup(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(stub("echo", "1.0.0")))
	require.NoError(t, reg.Register(stub("echo", "2.0.0")))

	t.Run("versioned keys resolve exactly", func(t *testing.T) {
		res, err := reg.Get("echo@1.0.0")
		require.NoError(t, err)
		require.Equal(t, "1.0.0", res.Metadata().Version)
	})

	t.Run("unversioned resolves to most recently registered", func(t *testing.T) {
		res, err := reg.Get("echo")
		require.NoError(t, err)
		require.Equal(t, "2.0.0", res.Metadata().Version)
	})

	t.Run("duplicate versioned key conflicts", func(t *testing.T) {
		err := reg.Register(stub("echo", "2.0.0"))
		require.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyExists))
	})

	t.Run("unknown ref", func(t *testing.T) {
		_, err := reg.Get("missing")
		require.True(t, dErrors.HasCode(err, dErrors.CodeResolverNotFound))
		_, err = reg.Get("echo@9.9.9")
		require.True(t, dErrors.HasCode(err, dErrors.CodeResolverNotFound))
	})

	t.Run("list is sorted and complete", func(t *testing.T) {
		metas := reg.List()
		require.Len(t, metas, 2)
		require.Equal(t, "echo@1.0.0", metas[0].Key())
		require.Equal(t, 2, reg.Count())
	})
}

func TestValidateAgainstSchema(t *testing.T) {
	schema := domain.EvidenceSchema{
		Required: map[string]string{"url": "string", "retries": "number"},
		Optional: map[string]string{"strict": "boolean"},
	}

	t.Run("accepts conforming evidence", func(t *testing.T) {
		v := ValidateAgainstSchema(schema, map[string]any{
			"url": "https://example.com", "retries": float64(3), "strict": true,
		})
		require.True(t, v.Valid)
		require.Empty(t, v.Errors)
	})

	t.Run("reports missing and mistyped fields", func(t *testing.T) {
		v := ValidateAgainstSchema(schema, map[string]any{
			"retries": "three", "strict": "yes",
		})
		require.False(t, v.Valid)
		require.Contains(t, v.Errors, "url")
		require.Contains(t, v.Errors, "retries")
		require.Contains(t, v.Errors, "strict")
	})

	t.Run("optional fields may be absent", func(t *testing.T) {
		v := ValidateAgainstSchema(schema, map[string]any{
			"url": "https://example.com", "retries": float64(0),
		})
		require.True(t, v.Valid)
	})
}
