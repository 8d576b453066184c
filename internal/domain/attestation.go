package domain

import "time"

// AttestationStatus is the lifecycle state of an attestation.
type AttestationStatus string

const (
	AttestationPending  AttestationStatus = "pending"
	AttestationVerified AttestationStatus = "verified"
	AttestationFailed   AttestationStatus = "failed"
	AttestationRevoked  AttestationStatus = "revoked"
	AttestationExpired  AttestationStatus = "expired"
)

// Terminal reports whether no further verification transitions are allowed.
func (s AttestationStatus) Terminal() bool {
	return s == AttestationRevoked || s == AttestationExpired
}

// Attestation is a signed claim about a subject backed by machine-verifiable
// evidence. The content fields are immutable once created; only Status,
// VerificationCount, LastVerifiedAt and UpdatedAt mutate.
type Attestation struct {
	ID                string            `json:"id"`
	RealmID           string            `json:"realmId"`
	Attester          string            `json:"attester"`
	Subject           string            `json:"subject"`
	Claim             string            `json:"claim"`
	ResolverID        string            `json:"resolverId"`
	Evidence          map[string]any    `json:"evidence"`
	References        []string          `json:"references"`
	Signature         string            `json:"signature"`
	Status            AttestationStatus `json:"status"`
	ExpiresAt         *time.Time        `json:"expiresAt,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
	VerificationCount int               `json:"verificationCount"`
	LastVerifiedAt    *time.Time        `json:"lastVerifiedAt,omitempty"`
}

// AttestationContent is the id- and signature-defining subset of an
// attestation. Its content id is the attestation id.
type AttestationContent struct {
	RealmID    string         `json:"realmId"`
	Subject    string         `json:"subject"`
	Claim      string         `json:"claim"`
	ResolverID string         `json:"resolverId"`
	Evidence   map[string]any `json:"evidence"`
	References []string       `json:"references"`
	TS         int64          `json:"ts"`
}

// Content extracts the signed content of an attestation.
func (a Attestation) Content() AttestationContent {
	return AttestationContent{
		RealmID:    a.RealmID,
		Subject:    a.Subject,
		Claim:      a.Claim,
		ResolverID: a.ResolverID,
		Evidence:   a.Evidence,
		References: a.References,
		TS:         a.CreatedAt.UnixMilli(),
	}
}

// RunStatus is the outcome of a single verification run.
type RunStatus string

const (
	RunVerified RunStatus = "verified"
	RunFailed   RunStatus = "failed"
	RunError    RunStatus = "error"
)

// VerificationRun records one resolver invocation against an attestation.
// Immutable once written.
type VerificationRun struct {
	ID              string         `json:"id"`
	AttestationID   string         `json:"attestationId"`
	ResolverID      string         `json:"resolverId"`
	ResolverVersion string         `json:"resolverVersion"`
	Status          RunStatus      `json:"status"`
	Output          map[string]any `json:"output"`
	OutputHash      string         `json:"outputHash"`
	Snapshot        map[string]any `json:"snapshot,omitempty"`
	DurationMs      int64          `json:"durationMs"`
	TriggeredBy     string         `json:"triggeredBy"`
	Error           string         `json:"error,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// NextStatus maps a run outcome onto the attestation state machine.
// Resolver errors leave the attestation pending so it can be retried.
func (s RunStatus) NextStatus() AttestationStatus {
	switch s {
	case RunVerified:
		return AttestationVerified
	case RunFailed:
		return AttestationFailed
	default:
		return AttestationPending
	}
}
