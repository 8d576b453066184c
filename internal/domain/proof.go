package domain

import "time"

// ProofVersion tags the portable proof format.
const ProofVersion = "IRRL-Proof-v1"

// ReputationProof is a signed, self-contained snapshot of a reputation with
// a Merkle commitment over its supporting evidence. Immutable.
type ReputationProof struct {
	Version            string     `json:"version"`
	Subject            string     `json:"subject"`
	RealmID            string     `json:"realmId"`
	Domain             string     `json:"domain"`
	Reputation         Reputation `json:"reputation"`
	Issuer             string     `json:"issuer"`
	IssuedAt           time.Time  `json:"issuedAt"`
	ValidUntil         time.Time  `json:"validUntil"`
	EvidenceMerkleRoot string     `json:"evidenceMerkleRoot"`
	Signature          string     `json:"signature,omitempty"`
}

// Unsigned returns the proof with its signature cleared; signatures are
// computed over this form.
func (p ReputationProof) Unsigned() ReputationProof {
	p.Signature = ""
	return p
}

// ProofEnvelope is the portable wire form of a proof.
type ProofEnvelope struct {
	Data      ReputationProof `json:"data"`
	Signature string          `json:"signature"`
	PublicKey string          `json:"publicKey"`
	Timestamp time.Time       `json:"timestamp"`
	Version   string          `json:"version"`
}

// ProofRecord is the persisted form of an issued proof, keyed by a row id so
// evidence inclusion proofs can be reconstructed later.
type ProofRecord struct {
	ID          string          `json:"id"`
	Proof       ReputationProof `json:"proof"`
	PublicKey   string          `json:"publicKey"`
	EvidenceIDs []string        `json:"evidenceIds"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// ProofVerification reports the three independent proof checks so callers
// can distinguish expiry from tampering.
type ProofVerification struct {
	Valid          bool `json:"valid"`
	SignatureValid bool `json:"signatureValid"`
	Expired        bool `json:"expired"`
	IssuerTrusted  bool `json:"issuerTrusted"`
}
