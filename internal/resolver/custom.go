package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"irrl/internal/audit"
	"irrl/internal/domain"
	"irrl/internal/storage"
	dErrors "irrl/pkg/domain-errors"
	"irrl/pkg/requestcontext"
	"irrl/pkg/secrets"
)

// Service manages the resolver catalog: in-process resolvers via the
// registry, plus persisted metadata-only custom descriptors. Custom
// resolvers cannot be invoked.
type Service struct {
	registry *Registry
	store    storage.CustomResolverStore
	auditLog *audit.Log
	logger   *slog.Logger
}

func NewService(registry *Registry, store storage.CustomResolverStore, auditLog *audit.Log, logger *slog.Logger) *Service {
	return &Service{registry: registry, store: store, auditLog: auditLog, logger: logger}
}

// Registry exposes the in-process registry for dispatch.
func (s *Service) Registry() *Registry { return s.registry }

// Registration is returned once from Register; the deprecation token is not
// recoverable afterwards.
type Registration struct {
	Descriptor       domain.CustomResolverDescriptor `json:"resolver"`
	DeprecationToken string                          `json:"deprecationToken"`
}

// Register persists a custom resolver descriptor and mints its deprecation
// token. Only the bcrypt hash of the token is stored.
func (s *Service) Register(ctx context.Context, meta domain.ResolverMetadata) (Registration, error) {
	if meta.ID == "" || meta.Version == "" || meta.Name == "" {
		return Registration{}, dErrors.New(dErrors.CodeValidation, "resolver id, version and name are required")
	}
	if _, err := s.registry.Get(meta.ID); err == nil {
		return Registration{}, dErrors.Newf(dErrors.CodeAlreadyExists, "resolver id %s is reserved by a built-in", meta.ID)
	}

	token, err := secrets.Generate()
	if err != nil {
		return Registration{}, fmt.Errorf("generate deprecation token: %w", err)
	}
	tokenHash, err := secrets.Hash(token)
	if err != nil {
		return Registration{}, fmt.Errorf("hash deprecation token: %w", err)
	}

	desc := domain.CustomResolverDescriptor{
		Metadata:             meta,
		DeprecationTokenHash: tokenHash,
		RegisteredAt:         requestcontext.Now(ctx).UTC(),
	}
	if err := s.store.Insert(ctx, desc); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return Registration{}, dErrors.Newf(dErrors.CodeAlreadyExists, "resolver %s already registered", meta.ID)
		}
		return Registration{}, fmt.Errorf("insert custom resolver: %w", err)
	}

	if _, err := s.auditLog.Record(ctx, domain.AuditResolverRegistered,
		requestcontext.Actor(ctx), []string{meta.ID}, map[string]any{
			"version": meta.Version,
			"name":    meta.Name,
		}); err != nil {
		return Registration{}, fmt.Errorf("audit resolver registration: %w", err)
	}
	return Registration{Descriptor: desc, DeprecationToken: token}, nil
}

// Deprecate marks a custom resolver deprecated. The caller must present the
// token minted at registration.
func (s *Service) Deprecate(ctx context.Context, id, token string) (domain.CustomResolverDescriptor, error) {
	desc, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.CustomResolverDescriptor{}, dErrors.Newf(dErrors.CodeResolverNotFound, "resolver %s not found", id)
		}
		return domain.CustomResolverDescriptor{}, fmt.Errorf("load custom resolver: %w", err)
	}
	if desc.Deprecated {
		return desc, nil
	}
	if err := secrets.Verify(token, desc.DeprecationTokenHash); err != nil {
		return domain.CustomResolverDescriptor{}, err
	}

	desc.Deprecated = true
	if err := s.store.Update(ctx, desc); err != nil {
		return domain.CustomResolverDescriptor{}, fmt.Errorf("update custom resolver: %w", err)
	}
	if _, err := s.auditLog.Record(ctx, domain.AuditResolverDeprecated,
		requestcontext.Actor(ctx), []string{id}, nil); err != nil {
		return domain.CustomResolverDescriptor{}, fmt.Errorf("audit resolver deprecation: %w", err)
	}
	return desc, nil
}

// CatalogEntry is a resolver listing row covering both kinds.
type CatalogEntry struct {
	Metadata   domain.ResolverMetadata `json:"metadata"`
	BuiltIn    bool                    `json:"builtIn"`
	Deprecated bool                    `json:"deprecated"`
}

// List merges built-in and custom resolvers.
func (s *Service) List(ctx context.Context) ([]CatalogEntry, error) {
	entries := make([]CatalogEntry, 0, s.registry.Count())
	for _, meta := range s.registry.List() {
		entries = append(entries, CatalogEntry{Metadata: meta, BuiltIn: true})
	}
	custom, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list custom resolvers: %w", err)
	}
	for _, desc := range custom {
		entries = append(entries, CatalogEntry{Metadata: desc.Metadata, Deprecated: desc.Deprecated})
	}
	return entries, nil
}

// Get returns one catalog entry by id, optionally pinned to a version.
func (s *Service) Get(ctx context.Context, id, version string) (CatalogEntry, error) {
	ref := id
	if version != "" {
		ref = id + "@" + version
	}
	if res, err := s.registry.Get(ref); err == nil {
		return CatalogEntry{Metadata: res.Metadata(), BuiltIn: true}, nil
	}

	desc, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return CatalogEntry{}, dErrors.Newf(dErrors.CodeResolverNotFound, "resolver %s not found", ref)
		}
		return CatalogEntry{}, fmt.Errorf("load custom resolver: %w", err)
	}
	if version != "" && desc.Metadata.Version != version {
		return CatalogEntry{}, dErrors.Newf(dErrors.CodeResolverNotFound, "resolver %s not found", ref)
	}
	return CatalogEntry{Metadata: desc.Metadata, Deprecated: desc.Deprecated}, nil
}

// TestResult is the outcome of a dry-run resolver invocation.
type TestResult struct {
	Validation domain.EvidenceValidation  `json:"validation"`
	Result     *domain.VerificationResult `json:"result,omitempty"`
	DurationMs int64                      `json:"durationMs"`
}

// Test validates evidence against a resolver and, when validation passes,
// invokes it. Only in-process resolvers can be invoked; custom descriptors
// yield INVALID_RESOLVER.
func (s *Service) Test(ctx context.Context, id string, evidence map[string]any) (TestResult, error) {
	res, err := s.registry.Get(id)
	if err != nil {
		if _, findErr := s.store.FindByID(ctx, id); findErr == nil {
			return TestResult{}, dErrors.Newf(dErrors.CodeInvalidResolver, "resolver %s is metadata-only and cannot be invoked", id)
		}
		return TestResult{}, err
	}

	validation := res.ValidateEvidence(evidence)
	out := TestResult{Validation: validation}
	if !validation.Valid {
		return out, nil
	}

	start := time.Now()
	result := res.Verify(ctx, evidence)
	out.Result = &result
	out.DurationMs = time.Since(start).Milliseconds()
	return out, nil
}
