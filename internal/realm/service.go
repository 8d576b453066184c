// Package realm manages the hierarchy of trust contexts. Paths are
// materialized at creation and never change, which makes subtree queries a
// prefix match and cycle checks a path scan.
package realm

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
	platformstrings "irrl/pkg/platform/strings"
	"irrl/pkg/requestcontext"
)

type Service struct {
	repo     storage.Repository
	auditLog *audit.Log
	logger   *slog.Logger
}

func NewService(repo storage.Repository, auditLog *audit.Log, logger *slog.Logger) *Service {
	return &Service{repo: repo, auditLog: auditLog, logger: logger}
}

// CreateInput is the caller-supplied part of a realm.
type CreateInput struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parent      *string            `json:"parent"`
	Domain      string             `json:"domain"`
	Rules       *domain.RealmRules `json:"rules"`
	PublicKey   string             `json:"publicKey"`
}

// Create inserts a new realm. Path and depth derive from the parent; omitted
// rule fields inherit from the parent's rules, or from the global defaults at
// the root.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Realm, error) {
	if in.Name == "" {
		return domain.Realm{}, dErrors.New(dErrors.CodeValidation, "realm name is required")
	}
	if in.Domain == "" {
		return domain.Realm{}, dErrors.New(dErrors.CodeValidation, "realm domain is required")
	}

	id := "realm_" + uuid.NewString()
	path := id
	depth := 0
	ruleDefaults := domain.DefaultRealmRules()

	if in.Parent != nil && *in.Parent != "" {
		parent, err := s.repo.Realms().FindByID(ctx, *in.Parent)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return domain.Realm{}, dErrors.Newf(dErrors.CodeInvalidParent, "parent realm %s not found", *in.Parent)
			}
			return domain.Realm{}, fmt.Errorf("load parent realm: %w", err)
		}
		if parent.HasAncestor(id) {
			return domain.Realm{}, dErrors.New(dErrors.CodeInvalidParent, "realm hierarchy cycle detected")
		}
		path = parent.ChildPath(id)
		depth = strings.Count(path, "/")
		ruleDefaults = parent.Rules
	}

	rules := ruleDefaults
	if in.Rules != nil {
		rules = in.Rules.Merged(ruleDefaults)
	}
	rules.RequiredResolvers = platformstrings.DedupeAndTrim(rules.RequiredResolvers)
	rules.OptionalResolvers = platformstrings.DedupeAndTrim(rules.OptionalResolvers)

	now := requestcontext.Now(ctx).UTC()
	realm := domain.Realm{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		Parent:      in.Parent,
		Path:        path,
		Depth:       depth,
		Domain:      in.Domain,
		Rules:       rules,
		PublicKey:   in.PublicKey,
		CreatedBy:   requestcontext.Actor(ctx),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Realms().Insert(ctx, realm); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return domain.Realm{}, dErrors.Newf(dErrors.CodeAlreadyExists, "realm path %s already exists", path)
		}
		return domain.Realm{}, fmt.Errorf("insert realm: %w", err)
	}

	if _, err := s.auditLog.Record(ctx, domain.AuditRealmCreated, realm.CreatedBy,
		[]string{realm.ID}, map[string]any{
			"name":   realm.Name,
			"domain": realm.Domain,
			"path":   realm.Path,
		}); err != nil {
		return domain.Realm{}, fmt.Errorf("audit realm creation: %w", err)
	}
	return realm, nil
}

// Get looks a realm up by id first, then by path, so both address forms work
// on the same route.
func (s *Service) Get(ctx context.Context, ref string) (domain.Realm, error) {
	realm, err := s.repo.Realms().FindByID(ctx, ref)
	if err == nil {
		return realm, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return domain.Realm{}, fmt.Errorf("load realm: %w", err)
	}

	realm, err = s.repo.Realms().FindByPath(ctx, ref)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Realm{}, dErrors.Newf(dErrors.CodeNotFound, "realm %s not found", ref)
		}
		return domain.Realm{}, fmt.Errorf("load realm by path: %w", err)
	}
	return realm, nil
}

// List returns realms matching the filter.
func (s *Service) List(ctx context.Context, filter storage.RealmFilter) ([]domain.Realm, error) {
	realms, err := s.repo.Realms().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list realms: %w", err)
	}
	return realms, nil
}

// Children returns a realm's direct children, or its whole subtree.
func (s *Service) Children(ctx context.Context, id string, recursive bool) ([]domain.Realm, error) {
	children, err := s.repo.Realms().Children(ctx, id, recursive)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "realm %s not found", id)
		}
		return nil, fmt.Errorf("list realm children: %w", err)
	}
	return children, nil
}

// Delete removes a realm together with its cached reputation and proof rows.
// Refused while attestations still reference the realm, or while child realms
// would be orphaned.
func (s *Service) Delete(ctx context.Context, id string) error {
	realm, err := s.repo.Realms().FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "realm %s not found", id)
		}
		return fmt.Errorf("load realm: %w", err)
	}

	count, err := s.repo.Attestations().CountByRealm(ctx, id)
	if err != nil {
		return fmt.Errorf("count realm attestations: %w", err)
	}
	if count > 0 {
		return dErrors.Newf(dErrors.CodeValidation, "realm %s still has %d attestations", id, count)
	}
	children, err := s.repo.Realms().Children(ctx, id, false)
	if err != nil {
		return fmt.Errorf("list realm children: %w", err)
	}
	if len(children) > 0 {
		return dErrors.Newf(dErrors.CodeValidation, "realm %s still has child realms", id)
	}

	err = s.repo.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.ReputationCache().DeleteByRealm(ctx, id); err != nil {
			return fmt.Errorf("delete reputation rows: %w", err)
		}
		if err := s.repo.Proofs().DeleteByRealm(ctx, id); err != nil {
			return fmt.Errorf("delete proof rows: %w", err)
		}
		return s.repo.Realms().Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	if _, err := s.auditLog.Record(ctx, domain.AuditRealmDeleted,
		requestcontext.Actor(ctx), []string{id}, map[string]any{"path": realm.Path}); err != nil {
		return fmt.Errorf("audit realm deletion: %w", err)
	}
	return nil
}
