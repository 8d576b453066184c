// Package resolver hosts the verification plugin registry. A resolver
// declares immutable metadata with an evidence schema, validates evidence
// structurally, and produces a verification result for an attestation's
// evidence payload.
package resolver

import (
	"context"
	"fmt"

	"irrl/internal/domain"
)

// Resolver is the capability surface every verification plugin implements.
type Resolver interface {
	Metadata() domain.ResolverMetadata
	ValidateEvidence(evidence map[string]any) domain.EvidenceValidation
	CanResolve(claim string, evidence map[string]any) bool
	// Verify inspects evidence and reports an outcome. Infrastructure
	// failures surface as status "error", never as a Go error; the caller
	// records the run either way.
	Verify(ctx context.Context, evidence map[string]any) domain.VerificationResult
}

// ValidateAgainstSchema checks evidence against a minimal structural schema:
// required fields must be present with the declared JSON type, optional
// fields are type-checked only when present.
func ValidateAgainstSchema(schema domain.EvidenceSchema, evidence map[string]any) domain.EvidenceValidation {
	errs := map[string]string{}
	for field, typeName := range schema.Required {
		value, ok := evidence[field]
		if !ok {
			errs[field] = "required field missing"
			continue
		}
		if !matchesType(value, typeName) {
			errs[field] = fmt.Sprintf("expected %s", typeName)
		}
	}
	for field, typeName := range schema.Optional {
		value, ok := evidence[field]
		if !ok {
			continue
		}
		if !matchesType(value, typeName) {
			errs[field] = fmt.Sprintf("expected %s", typeName)
		}
	}
	if len(errs) > 0 {
		return domain.EvidenceValidation{Valid: false, Errors: errs}
	}
	return domain.EvidenceValidation{Valid: true}
}

func matchesType(value any, typeName string) bool {
	switch typeName {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, float32, int, int64, int32:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	default:
		// Unknown type names accept anything rather than reject valid
		// evidence over a schema typo.
		return true
	}
}
