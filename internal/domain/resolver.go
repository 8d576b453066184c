package domain

import "time"

// ResolverMetadata is the immutable descriptor a resolver declares at
// registration.
type ResolverMetadata struct {
	ID                  string         `json:"id"`
	Version             string         `json:"version"`
	Name                string         `json:"name"`
	Description         string         `json:"description,omitempty"`
	Author              string         `json:"author,omitempty"`
	EvidenceSchema      EvidenceSchema `json:"evidenceSchema"`
	OutputSchema        map[string]any `json:"outputSchema,omitempty"`
	Domains             []string       `json:"domains"`
	Deterministic       bool           `json:"deterministic"`
	AvgVerificationTime time.Duration  `json:"avgVerificationTime"`
}

// Key returns the versioned registry key "id@version".
func (m ResolverMetadata) Key() string {
	return m.ID + "@" + m.Version
}

// EvidenceSchema is a minimal structural schema: required field names mapped
// to expected JSON types ("string", "number", "boolean", "object", "array"),
// plus optional fields validated only when present.
type EvidenceSchema struct {
	Required map[string]string `json:"required"`
	Optional map[string]string `json:"optional,omitempty"`
}

// EvidenceValidation reports schema validation per field.
type EvidenceValidation struct {
	Valid  bool              `json:"valid"`
	Errors map[string]string `json:"errors,omitempty"`
}

// VerificationResult is what a resolver produces for a verify call.
type VerificationResult struct {
	Status   RunStatus      `json:"status"`
	Output   map[string]any `json:"output"`
	Snapshot map[string]any `json:"snapshot,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// CustomResolverDescriptor is a metadata-only resolver registered over the
// API. It cannot be invoked; only in-process resolvers verify evidence.
type CustomResolverDescriptor struct {
	Metadata             ResolverMetadata `json:"metadata"`
	Deprecated           bool             `json:"deprecated"`
	DeprecationTokenHash string           `json:"-"`
	RegisteredAt         time.Time        `json:"registeredAt"`
}
