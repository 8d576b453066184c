package resolver

import (
	"sort"
	"strings"
	"sync"

	"irrl/internal/domain"
	dErrors "irrl/pkg/domain-errors"
)

// Registry indexes in-process resolvers by both "id" and "id@version".
// Unversioned lookup returns the most recently registered version. It is
// process-wide state built once at boot via RegisterBuiltIns.
type Registry struct {
	mu     sync.RWMutex
	byKey  map[string]Resolver
	latest map[string]Resolver
}

func NewRegistry() *Registry {
	return &Registry{
		byKey:  make(map[string]Resolver),
		latest: make(map[string]Resolver),
	}
}

// Register adds a resolver under its versioned key and promotes it to the
// unversioned slot.
func (r *Registry) Register(res Resolver) error {
	meta := res.Metadata()
	if meta.ID == "" || meta.Version == "" {
		return dErrors.New(dErrors.CodeInvalidResolver, "resolver id and version are required")
	}
	key := meta.Key()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byKey[key]; exists {
		return dErrors.Newf(dErrors.CodeAlreadyExists, "resolver %s already registered", key)
	}
	r.byKey[key] = res
	r.latest[meta.ID] = res
	return nil
}

// Get resolves a reference, either "id" or "id@version".
func (r *Registry) Get(ref string) (Resolver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if strings.Contains(ref, "@") {
		if res, ok := r.byKey[ref]; ok {
			return res, nil
		}
	} else if res, ok := r.latest[ref]; ok {
		return res, nil
	}
	return nil, dErrors.Newf(dErrors.CodeResolverNotFound, "resolver %s not found", ref)
}

// List returns metadata for every registered resolver, sorted by key.
func (r *Registry) List() []domain.ResolverMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ResolverMetadata, 0, len(r.byKey))
	for _, res := range r.byKey {
		out = append(out, res.Metadata())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Count reports how many versioned resolvers are registered.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}
