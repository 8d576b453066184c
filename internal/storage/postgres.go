package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"irrl/internal/domain"
	txcontext "irrl/pkg/platform/tx"
)

// Postgres is the relational repository. SQL is hand-written; JSON-shaped
// fields (evidence, rules, payloads) live in jsonb columns.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Realms() RealmStore                    { return &pgRealms{p} }
func (p *Postgres) Attestations() AttestationStore        { return &pgAttestations{p} }
func (p *Postgres) Runs() RunStore                        { return &pgRuns{p} }
func (p *Postgres) Evaluations() EvaluationStore          { return &pgEvaluations{p} }
func (p *Postgres) ReputationCache() ReputationCacheStore { return &pgReputations{p} }
func (p *Postgres) Proofs() ProofStore                    { return &pgProofs{p} }
func (p *Postgres) Audit() AuditStore                     { return &pgAudit{p} }
func (p *Postgres) Resolvers() CustomResolverStore        { return &pgResolvers{p} }

// InTx opens a transaction and stores it in the context so nested store
// calls join it.
func (p *Postgres) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// executor abstracts *sql.DB and *sql.Tx for store methods.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (p *Postgres) execer(ctx context.Context) executor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return p.db
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func unmarshalJSON[T any](raw []byte) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}

// ---------------------------------------------------------------------------
// Realms

type pgRealms struct{ p *Postgres }

func (s *pgRealms) Insert(ctx context.Context, realm domain.Realm) error {
	rules, err := marshalJSON(realm.Rules)
	if err != nil {
		return fmt.Errorf("marshal realm rules: %w", err)
	}
	_, err = s.p.execer(ctx).ExecContext(ctx, `
		INSERT INTO realms (id, name, description, parent, path, depth, domain,
			rules, public_key, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, realm.ID, realm.Name, realm.Description, realm.Parent, realm.Path, realm.Depth,
		realm.Domain, rules, realm.PublicKey, realm.CreatedBy, realm.CreatedAt, realm.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert realm: %w", err)
	}
	return nil
}

const realmColumns = `id, name, description, parent, path, depth, domain, rules, public_key, created_by, created_at, updated_at`

func (s *pgRealms) scan(row interface{ Scan(...any) error }) (domain.Realm, error) {
	var (
		realm domain.Realm
		rules []byte
	)
	err := row.Scan(&realm.ID, &realm.Name, &realm.Description, &realm.Parent, &realm.Path,
		&realm.Depth, &realm.Domain, &rules, &realm.PublicKey, &realm.CreatedBy,
		&realm.CreatedAt, &realm.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Realm{}, ErrNotFound
	}
	if err != nil {
		return domain.Realm{}, fmt.Errorf("scan realm: %w", err)
	}
	realm.Rules, err = unmarshalJSON[domain.RealmRules](rules)
	if err != nil {
		return domain.Realm{}, fmt.Errorf("unmarshal realm rules: %w", err)
	}
	return realm, nil
}

func (s *pgRealms) FindByID(ctx context.Context, id string) (domain.Realm, error) {
	row := s.p.execer(ctx).QueryRowContext(ctx,
		`SELECT `+realmColumns+` FROM realms WHERE id = $1`, id)
	return s.scan(row)
}

func (s *pgRealms) FindByPath(ctx context.Context, path string) (domain.Realm, error) {
	row := s.p.execer(ctx).QueryRowContext(ctx,
		`SELECT `+realmColumns+` FROM realms WHERE path = $1`, path)
	return s.scan(row)
}

func (s *pgRealms) queryMany(ctx context.Context, query string, args ...any) ([]domain.Realm, error) {
	rows, err := s.p.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query realms: %w", err)
	}
	defer rows.Close()
	var out []domain.Realm
	for rows.Next() {
		realm, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, realm)
	}
	return out, rows.Err()
}

func (s *pgRealms) List(ctx context.Context, filter RealmFilter) ([]domain.Realm, error) {
	query := `SELECT ` + realmColumns + ` FROM realms WHERE ($1 = '' OR domain = $1) AND ($2 = '' OR parent = $2) ORDER BY path`
	args := []any{filter.Domain, filter.Parent}
	if filter.Limit > 0 {
		query += ` LIMIT $3 OFFSET $4`
		args = append(args, filter.Limit, filter.Offset)
	}
	return s.queryMany(ctx, query, args...)
}

func (s *pgRealms) Children(ctx context.Context, id string, recursive bool) ([]domain.Realm, error) {
	parent, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if recursive {
		return s.queryMany(ctx,
			`SELECT `+realmColumns+` FROM realms WHERE path LIKE $1 ORDER BY path`,
			parent.Path+"/%")
	}
	return s.queryMany(ctx,
		`SELECT `+realmColumns+` FROM realms WHERE parent = $1 ORDER BY path`, id)
}

func (s *pgRealms) Delete(ctx context.Context, id string) error {
	res, err := s.p.execer(ctx).ExecContext(ctx, `DELETE FROM realms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete realm: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Attestations

type pgAttestations struct{ p *Postgres }

const attestationColumns = `id, realm_id, attester, subject, claim, resolver_id, evidence,
	refs, signature, status, expires_at, created_at, updated_at, verification_count, last_verified_at`

func (s *pgAttestations) Insert(ctx context.Context, att domain.Attestation) error {
	evidence, err := marshalJSON(att.Evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}
	_, err = s.p.execer(ctx).ExecContext(ctx, `
		INSERT INTO attestations (id, realm_id, attester, subject, claim, resolver_id,
			evidence, refs, signature, status, expires_at, created_at, updated_at,
			verification_count, last_verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, att.ID, att.RealmID, att.Attester, att.Subject, att.Claim, att.ResolverID,
		evidence, pq.Array(att.References), att.Signature, string(att.Status),
		att.ExpiresAt, att.CreatedAt, att.UpdatedAt, att.VerificationCount, att.LastVerifiedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert attestation: %w", err)
	}
	return nil
}

func (s *pgAttestations) scan(row interface{ Scan(...any) error }) (domain.Attestation, error) {
	var (
		att      domain.Attestation
		evidence []byte
		status   string
	)
	err := row.Scan(&att.ID, &att.RealmID, &att.Attester, &att.Subject, &att.Claim,
		&att.ResolverID, &evidence, pq.Array(&att.References), &att.Signature, &status,
		&att.ExpiresAt, &att.CreatedAt, &att.UpdatedAt, &att.VerificationCount, &att.LastVerifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attestation{}, ErrNotFound
	}
	if err != nil {
		return domain.Attestation{}, fmt.Errorf("scan attestation: %w", err)
	}
	att.Status = domain.AttestationStatus(status)
	att.Evidence, err = unmarshalJSON[map[string]any](evidence)
	if err != nil {
		return domain.Attestation{}, fmt.Errorf("unmarshal evidence: %w", err)
	}
	return att, nil
}

func (s *pgAttestations) FindByID(ctx context.Context, id string) (domain.Attestation, error) {
	row := s.p.execer(ctx).QueryRowContext(ctx,
		`SELECT `+attestationColumns+` FROM attestations WHERE id = $1`, id)
	return s.scan(row)
}

func (s *pgAttestations) List(ctx context.Context, filter AttestationFilter) ([]domain.Attestation, error) {
	query := `SELECT ` + attestationColumns + ` FROM attestations
		WHERE ($1 = '' OR realm_id = $1) AND ($2 = '' OR subject = $2) AND ($3 = '' OR status = $3)
		ORDER BY created_at, id`
	args := []any{filter.RealmID, filter.Subject, string(filter.Status)}
	if filter.Limit > 0 {
		query += ` LIMIT $4 OFFSET $5`
		args = append(args, filter.Limit, filter.Offset)
	}
	rows, err := s.p.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attestations: %w", err)
	}
	defer rows.Close()
	var out []domain.Attestation
	for rows.Next() {
		att, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, att)
	}
	return out, rows.Err()
}

func (s *pgAttestations) UpdateStatus(ctx context.Context, att domain.Attestation) error {
	res, err := s.p.execer(ctx).ExecContext(ctx, `
		UPDATE attestations
		SET status = $2, verification_count = $3, last_verified_at = $4, updated_at = $5
		WHERE id = $1
	`, att.ID, string(att.Status), att.VerificationCount, att.LastVerifiedAt, att.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update attestation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgAttestations) CountByRealm(ctx context.Context, realmID string) (int, error) {
	var count int
	err := s.p.execer(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attestations WHERE realm_id = $1`, realmID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count attestations: %w", err)
	}
	return count, nil
}

func (s *pgAttestations) ListExpired(ctx context.Context, now int64) ([]domain.Attestation, error) {
	rows, err := s.p.execer(ctx).QueryContext(ctx, `
		SELECT `+attestationColumns+` FROM attestations
		WHERE expires_at IS NOT NULL AND expires_at < $1 AND status NOT IN ('revoked', 'expired')
	`, time.Unix(now, 0).UTC())
	if err != nil {
		return nil, fmt.Errorf("query expired attestations: %w", err)
	}
	defer rows.Close()
	var out []domain.Attestation
	for rows.Next() {
		att, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, att)
	}
	return out, rows.Err()
}

func (s *pgAttestations) VerifiedIDsBySubject(ctx context.Context, subject, realmID string) ([]string, error) {
	rows, err := s.p.execer(ctx).QueryContext(ctx, `
		SELECT id FROM attestations
		WHERE subject = $1 AND realm_id = $2 AND status = 'verified'
		ORDER BY id
	`, subject, realmID)
	if err != nil {
		return nil, fmt.Errorf("query verified attestation ids: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ---------------------------------------------------------------------------
// Verification runs

type pgRuns struct{ p *Postgres }

func (s *pgRuns) Insert(ctx context.Context, run domain.VerificationRun) error {
	output, err := marshalJSON(run.Output)
	if err != nil {
		return fmt.Errorf("marshal run output: %w", err)
	}
	snapshot, err := marshalJSON(run.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal run snapshot: %w", err)
	}
	_, err = s.p.execer(ctx).ExecContext(ctx, `
		INSERT INTO verification_runs (id, attestation_id, resolver_id, resolver_version,
			status, output, output_hash, snapshot, duration_ms, triggered_by, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, run.ID, run.AttestationID, run.ResolverID, run.ResolverVersion, string(run.Status),
		output, run.OutputHash, snapshot, run.DurationMs, run.TriggeredBy, run.Error, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert verification run: %w", err)
	}
	return nil
}

func (s *pgRuns) ListByAttestation(ctx context.Context, attestationID string) ([]domain.VerificationRun, error) {
	rows, err := s.p.execer(ctx).QueryContext(ctx, `
		SELECT id, attestation_id, resolver_id, resolver_version, status, output,
			output_hash, snapshot, duration_ms, triggered_by, error, created_at
		FROM verification_runs WHERE attestation_id = $1 ORDER BY created_at DESC
	`, attestationID)
	if err != nil {
		return nil, fmt.Errorf("query verification runs: %w", err)
	}
	defer rows.Close()
	var out []domain.VerificationRun
	for rows.Next() {
		var (
			run              domain.VerificationRun
			status           string
			output, snapshot []byte
		)
		if err := rows.Scan(&run.ID, &run.AttestationID, &run.ResolverID, &run.ResolverVersion,
			&status, &output, &run.OutputHash, &snapshot, &run.DurationMs, &run.TriggeredBy,
			&run.Error, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan verification run: %w", err)
		}
		run.Status = domain.RunStatus(status)
		if run.Output, err = unmarshalJSON[map[string]any](output); err != nil {
			return nil, err
		}
		if run.Snapshot, err = unmarshalJSON[map[string]any](snapshot); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Evaluations

type pgEvaluations struct{ p *Postgres }

const evaluationColumns = `id, from_entity, to_entity, realm_id, domain, score, weight,
	rationale, supporting_attestations, signature, expires_at, created_at`

func (s *pgEvaluations) Insert(ctx context.Context, eval domain.Evaluation) error {
	_, err := s.p.execer(ctx).ExecContext(ctx, `
		INSERT INTO evaluations (id, from_entity, to_entity, realm_id, domain, score,
			weight, rationale, supporting_attestations, signature, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, eval.ID, eval.FromEntity, eval.ToEntity, eval.RealmID, eval.Domain, eval.Score,
		eval.Weight, eval.Rationale, pq.Array(eval.SupportingAttestations), eval.Signature,
		eval.ExpiresAt, eval.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

func (s *pgEvaluations) scan(row interface{ Scan(...any) error }) (domain.Evaluation, error) {
	var eval domain.Evaluation
	err := row.Scan(&eval.ID, &eval.FromEntity, &eval.ToEntity, &eval.RealmID, &eval.Domain,
		&eval.Score, &eval.Weight, &eval.Rationale, pq.Array(&eval.SupportingAttestations),
		&eval.Signature, &eval.ExpiresAt, &eval.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Evaluation{}, ErrNotFound
	}
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("scan evaluation: %w", err)
	}
	return eval, nil
}

func (s *pgEvaluations) FindByTuple(ctx context.Context, from, to, realmID, dom string) (domain.Evaluation, error) {
	row := s.p.execer(ctx).QueryRowContext(ctx, `
		SELECT `+evaluationColumns+` FROM evaluations
		WHERE from_entity = $1 AND to_entity = $2 AND realm_id = $3 AND domain = $4
	`, from, to, realmID, dom)
	return s.scan(row)
}

func (s *pgEvaluations) Update(ctx context.Context, eval domain.Evaluation) error {
	res, err := s.p.execer(ctx).ExecContext(ctx, `
		UPDATE evaluations
		SET score = $2, weight = $3, rationale = $4, supporting_attestations = $5, signature = $6
		WHERE id = $1
	`, eval.ID, eval.Score, eval.Weight, eval.Rationale,
		pq.Array(eval.SupportingAttestations), eval.Signature)
	if err != nil {
		return fmt.Errorf("update evaluation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgEvaluations) queryMany(ctx context.Context, query string, args ...any) ([]domain.Evaluation, error) {
	rows, err := s.p.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()
	var out []domain.Evaluation
	for rows.Next() {
		eval, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, eval)
	}
	return out, rows.Err()
}

func (s *pgEvaluations) List(ctx context.Context, filter EvaluationFilter) ([]domain.Evaluation, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations
		WHERE ($1 = '' OR realm_id = $1) AND ($2 = '' OR domain = $2)
		  AND ($3 = '' OR from_entity = $3) AND ($4 = '' OR to_entity = $4)
		ORDER BY id`
	args := []any{filter.RealmID, filter.Domain, filter.FromEntity, filter.ToEntity}
	if filter.Limit > 0 {
		query += ` LIMIT $5 OFFSET $6`
		args = append(args, filter.Limit, filter.Offset)
	}
	return s.queryMany(ctx, query, args...)
}

func (s *pgEvaluations) IDsBySubject(ctx context.Context, to, realmID, dom string) ([]string, error) {
	rows, err := s.p.execer(ctx).QueryContext(ctx, `
		SELECT id FROM evaluations
		WHERE to_entity = $1 AND realm_id = $2 AND domain = $3
		ORDER BY id
	`, to, realmID, dom)
	if err != nil {
		return nil, fmt.Errorf("query evaluation ids: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *pgEvaluations) ListByDomain(ctx context.Context, dom string, realmID string) ([]domain.Evaluation, error) {
	return s.queryMany(ctx, `
		SELECT `+evaluationColumns+` FROM evaluations
		WHERE domain = $1 AND ($2 = '' OR realm_id = $2)
		ORDER BY id
	`, dom, realmID)
}

// ---------------------------------------------------------------------------
// Reputation cache

type pgReputations struct{ p *Postgres }

func (s *pgReputations) Upsert(ctx context.Context, rep domain.Reputation) error {
	breakdown, err := marshalJSON(rep.Breakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}
	_, err = s.p.execer(ctx).ExecContext(ctx, `
		INSERT INTO reputation_cache (subject, realm_id, domain, score, confidence,
			evaluation_count, attestation_count, breakdown, computed_at, valid_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (subject, realm_id, domain) DO UPDATE SET
			score = EXCLUDED.score, confidence = EXCLUDED.confidence,
			evaluation_count = EXCLUDED.evaluation_count,
			attestation_count = EXCLUDED.attestation_count,
			breakdown = EXCLUDED.breakdown, computed_at = EXCLUDED.computed_at,
			valid_until = EXCLUDED.valid_until
	`, rep.Subject, rep.RealmID, rep.Domain, rep.Score, rep.Confidence,
		rep.EvaluationCount, rep.AttestationCount, breakdown, rep.ComputedAt, rep.ValidUntil)
	if err != nil {
		return fmt.Errorf("upsert reputation: %w", err)
	}
	return nil
}

func (s *pgReputations) Find(ctx context.Context, subject, realmID, dom string) (domain.Reputation, error) {
	var (
		rep       domain.Reputation
		breakdown []byte
	)
	err := s.p.execer(ctx).QueryRowContext(ctx, `
		SELECT subject, realm_id, domain, score, confidence, evaluation_count,
			attestation_count, breakdown, computed_at, valid_until
		FROM reputation_cache WHERE subject = $1 AND realm_id = $2 AND domain = $3
	`, subject, realmID, dom).Scan(&rep.Subject, &rep.RealmID, &rep.Domain, &rep.Score,
		&rep.Confidence, &rep.EvaluationCount, &rep.AttestationCount, &breakdown,
		&rep.ComputedAt, &rep.ValidUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Reputation{}, ErrNotFound
	}
	if err != nil {
		return domain.Reputation{}, fmt.Errorf("scan reputation: %w", err)
	}
	rep.Breakdown, err = unmarshalJSON[domain.ReputationBreakdown](breakdown)
	if err != nil {
		return domain.Reputation{}, fmt.Errorf("unmarshal breakdown: %w", err)
	}
	return rep, nil
}

func (s *pgReputations) InvalidateSubject(ctx context.Context, subject, realmID string) error {
	_, err := s.p.execer(ctx).ExecContext(ctx,
		`DELETE FROM reputation_cache WHERE subject = $1 AND realm_id = $2`, subject, realmID)
	if err != nil {
		return fmt.Errorf("invalidate reputation: %w", err)
	}
	return nil
}

func (s *pgReputations) DeleteByRealm(ctx context.Context, realmID string) error {
	_, err := s.p.execer(ctx).ExecContext(ctx,
		`DELETE FROM reputation_cache WHERE realm_id = $1`, realmID)
	if err != nil {
		return fmt.Errorf("delete reputation rows: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Proofs

type pgProofs struct{ p *Postgres }

func (s *pgProofs) Insert(ctx context.Context, rec domain.ProofRecord) error {
	proof, err := marshalJSON(rec.Proof)
	if err != nil {
		return fmt.Errorf("marshal proof: %w", err)
	}
	_, err = s.p.execer(ctx).ExecContext(ctx, `
		INSERT INTO proofs (id, subject, realm_id, domain, proof, public_key, evidence_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.Proof.Subject, rec.Proof.RealmID, rec.Proof.Domain, proof,
		rec.PublicKey, pq.Array(rec.EvidenceIDs), rec.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert proof: %w", err)
	}
	return nil
}

func (s *pgProofs) scan(row interface{ Scan(...any) error }) (domain.ProofRecord, error) {
	var (
		rec   domain.ProofRecord
		proof []byte
	)
	err := row.Scan(&rec.ID, &proof, &rec.PublicKey, pq.Array(&rec.EvidenceIDs), &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProofRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.ProofRecord{}, fmt.Errorf("scan proof: %w", err)
	}
	rec.Proof, err = unmarshalJSON[domain.ReputationProof](proof)
	if err != nil {
		return domain.ProofRecord{}, fmt.Errorf("unmarshal proof: %w", err)
	}
	return rec, nil
}

func (s *pgProofs) FindByID(ctx context.Context, id string) (domain.ProofRecord, error) {
	row := s.p.execer(ctx).QueryRowContext(ctx,
		`SELECT id, proof, public_key, evidence_ids, created_at FROM proofs WHERE id = $1`, id)
	return s.scan(row)
}

func (s *pgProofs) List(ctx context.Context, filter ProofFilter) ([]domain.ProofRecord, error) {
	query := `SELECT id, proof, public_key, evidence_ids, created_at FROM proofs
		WHERE ($1 = '' OR subject = $1) AND ($2 = '' OR realm_id = $2)
		ORDER BY created_at, id`
	args := []any{filter.Subject, filter.RealmID}
	if filter.Limit > 0 {
		query += ` LIMIT $3 OFFSET $4`
		args = append(args, filter.Limit, filter.Offset)
	}
	rows, err := s.p.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query proofs: %w", err)
	}
	defer rows.Close()
	var out []domain.ProofRecord
	for rows.Next() {
		rec, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *pgProofs) DeleteByRealm(ctx context.Context, realmID string) error {
	_, err := s.p.execer(ctx).ExecContext(ctx, `DELETE FROM proofs WHERE realm_id = $1`, realmID)
	if err != nil {
		return fmt.Errorf("delete proofs: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Audit chain

type pgAudit struct{ p *Postgres }

func (s *pgAudit) Append(ctx context.Context, event domain.AuditEvent) error {
	payload, err := marshalJSON(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	_, err = s.p.execer(ctx).ExecContext(ctx, `
		INSERT INTO audit_events (id, type, actor, entity_ids, payload, previous_hash, hash, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, event.ID, event.Type, event.Actor, pq.Array(event.EntityIDs), payload,
		event.PreviousHash, event.Hash, event.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *pgAudit) scan(row interface{ Scan(...any) error }) (domain.AuditEvent, error) {
	var (
		event   domain.AuditEvent
		payload []byte
	)
	err := row.Scan(&event.ID, &event.Type, &event.Actor, pq.Array(&event.EntityIDs),
		&payload, &event.PreviousHash, &event.Hash, &event.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AuditEvent{}, ErrNotFound
	}
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("scan audit event: %w", err)
	}
	event.Payload, err = unmarshalJSON[map[string]any](payload)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("unmarshal audit payload: %w", err)
	}
	return event, nil
}

func (s *pgAudit) Last(ctx context.Context) (domain.AuditEvent, error) {
	row := s.p.execer(ctx).QueryRowContext(ctx, `
		SELECT id, type, actor, entity_ids, payload, previous_hash, hash, timestamp
		FROM audit_events ORDER BY seq DESC LIMIT 1`)
	return s.scan(row)
}

func (s *pgAudit) List(ctx context.Context) ([]domain.AuditEvent, error) {
	rows, err := s.p.execer(ctx).QueryContext(ctx, `
		SELECT id, type, actor, entity_ids, payload, previous_hash, hash, timestamp
		FROM audit_events ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	var out []domain.AuditEvent
	for rows.Next() {
		event, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Custom resolver descriptors

type pgResolvers struct{ p *Postgres }

func (s *pgResolvers) Insert(ctx context.Context, desc domain.CustomResolverDescriptor) error {
	metadata, err := marshalJSON(desc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal resolver metadata: %w", err)
	}
	_, err = s.p.execer(ctx).ExecContext(ctx, `
		INSERT INTO custom_resolvers (id, metadata, deprecated, deprecation_token_hash, registered_at)
		VALUES ($1, $2, $3, $4, $5)
	`, desc.Metadata.ID, metadata, desc.Deprecated, desc.DeprecationTokenHash, desc.RegisteredAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert custom resolver: %w", err)
	}
	return nil
}

func (s *pgResolvers) scan(row interface{ Scan(...any) error }) (domain.CustomResolverDescriptor, error) {
	var (
		desc     domain.CustomResolverDescriptor
		metadata []byte
	)
	err := row.Scan(&metadata, &desc.Deprecated, &desc.DeprecationTokenHash, &desc.RegisteredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CustomResolverDescriptor{}, ErrNotFound
	}
	if err != nil {
		return domain.CustomResolverDescriptor{}, fmt.Errorf("scan custom resolver: %w", err)
	}
	desc.Metadata, err = unmarshalJSON[domain.ResolverMetadata](metadata)
	if err != nil {
		return domain.CustomResolverDescriptor{}, fmt.Errorf("unmarshal resolver metadata: %w", err)
	}
	return desc, nil
}

func (s *pgResolvers) FindByID(ctx context.Context, id string) (domain.CustomResolverDescriptor, error) {
	row := s.p.execer(ctx).QueryRowContext(ctx, `
		SELECT metadata, deprecated, deprecation_token_hash, registered_at
		FROM custom_resolvers WHERE id = $1`, id)
	return s.scan(row)
}

func (s *pgResolvers) List(ctx context.Context) ([]domain.CustomResolverDescriptor, error) {
	rows, err := s.p.execer(ctx).QueryContext(ctx, `
		SELECT metadata, deprecated, deprecation_token_hash, registered_at
		FROM custom_resolvers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query custom resolvers: %w", err)
	}
	defer rows.Close()
	var out []domain.CustomResolverDescriptor
	for rows.Next() {
		desc, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, desc)
	}
	return out, rows.Err()
}

func (s *pgResolvers) Update(ctx context.Context, desc domain.CustomResolverDescriptor) error {
	metadata, err := marshalJSON(desc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal resolver metadata: %w", err)
	}
	res, err := s.p.execer(ctx).ExecContext(ctx, `
		UPDATE custom_resolvers SET metadata = $2, deprecated = $3 WHERE id = $1
	`, desc.Metadata.ID, metadata, desc.Deprecated)
	if err != nil {
		return fmt.Errorf("update custom resolver: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
