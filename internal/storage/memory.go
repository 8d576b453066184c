package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"irrl/internal/domain"
)

// Memory is the in-memory repository. It favors clarity over performance and
// backs unit tests plus deployments without DATABASE_URL.
type Memory struct {
	mu sync.RWMutex

	realms       map[string]domain.Realm
	attestations map[string]domain.Attestation
	runs         map[string][]domain.VerificationRun
	evaluations  map[string]domain.Evaluation
	reputations  map[string]domain.Reputation
	proofs       map[string]domain.ProofRecord
	auditEvents  []domain.AuditEvent
	resolvers    map[string]domain.CustomResolverDescriptor

	txMu sync.Mutex
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		realms:       make(map[string]domain.Realm),
		attestations: make(map[string]domain.Attestation),
		runs:         make(map[string][]domain.VerificationRun),
		evaluations:  make(map[string]domain.Evaluation),
		reputations:  make(map[string]domain.Reputation),
		proofs:       make(map[string]domain.ProofRecord),
		resolvers:    make(map[string]domain.CustomResolverDescriptor),
	}
}

func (m *Memory) Realms() RealmStore                     { return (*memRealms)(m) }
func (m *Memory) Attestations() AttestationStore         { return (*memAttestations)(m) }
func (m *Memory) Runs() RunStore                         { return (*memRuns)(m) }
func (m *Memory) Evaluations() EvaluationStore           { return (*memEvaluations)(m) }
func (m *Memory) ReputationCache() ReputationCacheStore  { return (*memReputations)(m) }
func (m *Memory) Proofs() ProofStore                     { return (*memProofs)(m) }
func (m *Memory) Audit() AuditStore                      { return (*memAudit)(m) }
func (m *Memory) Resolvers() CustomResolverStore         { return (*memResolvers)(m) }

// InTx serializes transactional blocks behind a single mutex. Individual
// operations are already atomic; the coarse lock gives verify-then-write
// sequences the same isolation the postgres implementation gets from real
// transactions.
func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx)
}

// ---------------------------------------------------------------------------
// Realms

type memRealms Memory

func (s *memRealms) Insert(_ context.Context, realm domain.Realm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.realms[realm.ID]; ok {
		return ErrConflict
	}
	for _, existing := range s.realms {
		if existing.Path == realm.Path {
			return ErrConflict
		}
	}
	s.realms[realm.ID] = realm
	return nil
}

func (s *memRealms) FindByID(_ context.Context, id string) (domain.Realm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if realm, ok := s.realms[id]; ok {
		return realm, nil
	}
	return domain.Realm{}, ErrNotFound
}

func (s *memRealms) FindByPath(_ context.Context, path string) (domain.Realm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, realm := range s.realms {
		if realm.Path == path {
			return realm, nil
		}
	}
	return domain.Realm{}, ErrNotFound
}

func (s *memRealms) List(_ context.Context, filter RealmFilter) ([]domain.Realm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Realm
	for _, realm := range s.realms {
		if filter.Domain != "" && realm.Domain != filter.Domain {
			continue
		}
		if filter.Parent != "" && (realm.Parent == nil || *realm.Parent != filter.Parent) {
			continue
		}
		out = append(out, realm)
	}
	sortRealms(out)
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (s *memRealms) Children(_ context.Context, id string, recursive bool) ([]domain.Realm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	parent, ok := s.realms[id]
	if !ok {
		return nil, ErrNotFound
	}
	var out []domain.Realm
	for _, realm := range s.realms {
		if realm.ID == id {
			continue
		}
		if recursive {
			if strings.HasPrefix(realm.Path, parent.Path+"/") {
				out = append(out, realm)
			}
		} else if realm.Parent != nil && *realm.Parent == id {
			out = append(out, realm)
		}
	}
	sortRealms(out)
	return out, nil
}

func (s *memRealms) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.realms[id]; !ok {
		return ErrNotFound
	}
	delete(s.realms, id)
	return nil
}

func sortRealms(realms []domain.Realm) {
	sort.Slice(realms, func(i, j int) bool { return realms[i].Path < realms[j].Path })
}

// ---------------------------------------------------------------------------
// Attestations

type memAttestations Memory

func (s *memAttestations) Insert(_ context.Context, att domain.Attestation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attestations[att.ID]; ok {
		return ErrConflict
	}
	s.attestations[att.ID] = att
	return nil
}

func (s *memAttestations) FindByID(_ context.Context, id string) (domain.Attestation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if att, ok := s.attestations[id]; ok {
		return att, nil
	}
	return domain.Attestation{}, ErrNotFound
}

func (s *memAttestations) List(_ context.Context, filter AttestationFilter) ([]domain.Attestation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Attestation
	for _, att := range s.attestations {
		if filter.RealmID != "" && att.RealmID != filter.RealmID {
			continue
		}
		if filter.Subject != "" && att.Subject != filter.Subject {
			continue
		}
		if filter.Status != "" && att.Status != filter.Status {
			continue
		}
		out = append(out, att)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (s *memAttestations) UpdateStatus(_ context.Context, att domain.Attestation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.attestations[att.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Status = att.Status
	existing.VerificationCount = att.VerificationCount
	existing.LastVerifiedAt = att.LastVerifiedAt
	existing.UpdatedAt = att.UpdatedAt
	s.attestations[att.ID] = existing
	return nil
}

func (s *memAttestations) CountByRealm(_ context.Context, realmID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, att := range s.attestations {
		if att.RealmID == realmID {
			count++
		}
	}
	return count, nil
}

func (s *memAttestations) ListExpired(_ context.Context, now int64) ([]domain.Attestation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Attestation
	for _, att := range s.attestations {
		if att.Status.Terminal() || att.ExpiresAt == nil {
			continue
		}
		if att.ExpiresAt.Unix() < now {
			out = append(out, att)
		}
	}
	return out, nil
}

func (s *memAttestations) VerifiedIDsBySubject(_ context.Context, subject, realmID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, att := range s.attestations {
		if att.Subject == subject && att.RealmID == realmID && att.Status == domain.AttestationVerified {
			ids = append(ids, att.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ---------------------------------------------------------------------------
// Verification runs

type memRuns Memory

func (s *memRuns) Insert(_ context.Context, run domain.VerificationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.AttestationID] = append(s.runs[run.AttestationID], run)
	return nil
}

func (s *memRuns) ListByAttestation(_ context.Context, attestationID string) ([]domain.VerificationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := append([]domain.VerificationRun(nil), s.runs[attestationID]...)
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	return runs, nil
}

// ---------------------------------------------------------------------------
// Evaluations

type memEvaluations Memory

func evalTuple(from, to, realmID, dom string) string {
	return from + "|" + to + "|" + realmID + "|" + dom
}

func (s *memEvaluations) Insert(_ context.Context, eval domain.Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := evalTuple(eval.FromEntity, eval.ToEntity, eval.RealmID, eval.Domain)
	if _, ok := s.evaluations[key]; ok {
		return ErrConflict
	}
	s.evaluations[key] = eval
	return nil
}

func (s *memEvaluations) FindByTuple(_ context.Context, from, to, realmID, dom string) (domain.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if eval, ok := s.evaluations[evalTuple(from, to, realmID, dom)]; ok {
		return eval, nil
	}
	return domain.Evaluation{}, ErrNotFound
}

func (s *memEvaluations) Update(_ context.Context, eval domain.Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := evalTuple(eval.FromEntity, eval.ToEntity, eval.RealmID, eval.Domain)
	if _, ok := s.evaluations[key]; !ok {
		return ErrNotFound
	}
	s.evaluations[key] = eval
	return nil
}

func (s *memEvaluations) List(_ context.Context, filter EvaluationFilter) ([]domain.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Evaluation
	for _, eval := range s.evaluations {
		if filter.RealmID != "" && eval.RealmID != filter.RealmID {
			continue
		}
		if filter.Domain != "" && eval.Domain != filter.Domain {
			continue
		}
		if filter.FromEntity != "" && eval.FromEntity != filter.FromEntity {
			continue
		}
		if filter.ToEntity != "" && eval.ToEntity != filter.ToEntity {
			continue
		}
		out = append(out, eval)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (s *memEvaluations) IDsBySubject(_ context.Context, to, realmID, dom string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, eval := range s.evaluations {
		if eval.ToEntity == to && eval.RealmID == realmID && eval.Domain == dom {
			ids = append(ids, eval.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memEvaluations) ListByDomain(_ context.Context, dom string, realmID string) ([]domain.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Evaluation
	for _, eval := range s.evaluations {
		if eval.Domain != dom {
			continue
		}
		if realmID != "" && eval.RealmID != realmID {
			continue
		}
		out = append(out, eval)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---------------------------------------------------------------------------
// Reputation cache

type memReputations Memory

func repKey(subject, realmID, dom string) string {
	return subject + "|" + realmID + "|" + dom
}

func (s *memReputations) Upsert(_ context.Context, rep domain.Reputation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reputations[repKey(rep.Subject, rep.RealmID, rep.Domain)] = rep
	return nil
}

func (s *memReputations) Find(_ context.Context, subject, realmID, dom string) (domain.Reputation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rep, ok := s.reputations[repKey(subject, realmID, dom)]; ok {
		return rep, nil
	}
	return domain.Reputation{}, ErrNotFound
}

func (s *memReputations) InvalidateSubject(_ context.Context, subject, realmID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := subject + "|" + realmID + "|"
	for key := range s.reputations {
		if strings.HasPrefix(key, prefix) {
			delete(s.reputations, key)
		}
	}
	return nil
}

func (s *memReputations) DeleteByRealm(_ context.Context, realmID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, rep := range s.reputations {
		if rep.RealmID == realmID {
			delete(s.reputations, key)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Proofs

type memProofs Memory

func (s *memProofs) Insert(_ context.Context, rec domain.ProofRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.proofs[rec.ID]; ok {
		return ErrConflict
	}
	s.proofs[rec.ID] = rec
	return nil
}

func (s *memProofs) FindByID(_ context.Context, id string) (domain.ProofRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.proofs[id]; ok {
		return rec, nil
	}
	return domain.ProofRecord{}, ErrNotFound
}

func (s *memProofs) List(_ context.Context, filter ProofFilter) ([]domain.ProofRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ProofRecord
	for _, rec := range s.proofs {
		if filter.Subject != "" && rec.Proof.Subject != filter.Subject {
			continue
		}
		if filter.RealmID != "" && rec.Proof.RealmID != filter.RealmID {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (s *memProofs) DeleteByRealm(_ context.Context, realmID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.proofs {
		if rec.Proof.RealmID == realmID {
			delete(s.proofs, id)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Audit chain

type memAudit Memory

func (s *memAudit) Append(_ context.Context, event domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditEvents = append(s.auditEvents, event)
	return nil
}

func (s *memAudit) Last(_ context.Context) (domain.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.auditEvents) == 0 {
		return domain.AuditEvent{}, ErrNotFound
	}
	return s.auditEvents[len(s.auditEvents)-1], nil
}

func (s *memAudit) List(_ context.Context) ([]domain.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AuditEvent(nil), s.auditEvents...), nil
}

// mutate is a test hook: it edits a stored event in place to simulate
// tampering with the persisted chain.
func (s *memAudit) mutate(index int, fn func(*domain.AuditEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index >= 0 && index < len(s.auditEvents) {
		fn(&s.auditEvents[index])
	}
}

// MutateAuditEvent exposes the tampering hook for chain verification tests.
func (m *Memory) MutateAuditEvent(index int, fn func(*domain.AuditEvent)) {
	(*memAudit)(m).mutate(index, fn)
}

// ---------------------------------------------------------------------------
// Custom resolver descriptors

type memResolvers Memory

func (s *memResolvers) Insert(_ context.Context, desc domain.CustomResolverDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resolvers[desc.Metadata.ID]; ok {
		return ErrConflict
	}
	s.resolvers[desc.Metadata.ID] = desc
	return nil
}

func (s *memResolvers) FindByID(_ context.Context, id string) (domain.CustomResolverDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if desc, ok := s.resolvers[id]; ok {
		return desc, nil
	}
	return domain.CustomResolverDescriptor{}, ErrNotFound
}

func (s *memResolvers) List(_ context.Context) ([]domain.CustomResolverDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CustomResolverDescriptor, 0, len(s.resolvers))
	for _, desc := range s.resolvers {
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metadata.ID < out[j].Metadata.ID })
	return out, nil
}

func (s *memResolvers) Update(_ context.Context, desc domain.CustomResolverDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resolvers[desc.Metadata.ID]; !ok {
		return ErrNotFound
	}
	s.resolvers[desc.Metadata.ID] = desc
	return nil
}

// ---------------------------------------------------------------------------

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
