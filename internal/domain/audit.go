package domain

import "time"

// Audit event types emitted at significant mutations.
const (
	AuditRealmCreated        = "realm.created"
	AuditRealmDeleted        = "realm.deleted"
	AuditAttestationCreated  = "attestation.created"
	AuditAttestationVerified = "attestation.verified"
	AuditAttestationRevoked  = "attestation.revoked"
	AuditAttestationExpired  = "attestation.expired"
	AuditEvaluationCreated   = "evaluation.created"
	AuditProofGenerated      = "proof.generated"
	AuditResolverRegistered  = "resolver.registered"
	AuditResolverDeprecated  = "resolver.deprecated"
)

// AuditEvent is one link of the append-only hash chain. Hash covers the
// event's type, actor, sorted entity ids, payload, ISO-8601 timestamp and the
// previous event's hash; the first event chains from "genesis".
type AuditEvent struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Actor        string         `json:"actor"`
	EntityIDs    []string       `json:"entityIds"`
	Payload      map[string]any `json:"payload"`
	PreviousHash string         `json:"previousHash"`
	Hash         string         `json:"hash"`
	Timestamp    time.Time      `json:"timestamp"`
}

// ChainVerification is the result of walking the audit chain end to end.
type ChainVerification struct {
	Valid         bool `json:"valid"`
	CheckedEvents int  `json:"checkedEvents"`
	// FirstInvalid is the index of the first broken link, -1 when valid.
	FirstInvalid int `json:"firstInvalid"`
}
