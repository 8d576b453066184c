package reputation

import (
	"math"
	"time"

	"irrl/internal/domain"
)

// Warning strings are part of the API surface; clients match on them.
const (
	WarnLowDiversity       = "Low evaluator diversity"
	WarnLowDepth           = "Low verification depth"
	WarnTemporalClustering = "Suspicious temporal clustering"
)

// ComputeSybilResistance scores how hard the evidence set would be to forge
// with a cluster of fake identities. Factors are each normalized to [0,1]
// and combined with fixed weights.
func ComputeSybilResistance(evaluations []domain.Evaluation, attestations []domain.Attestation) domain.SybilResistance {
	uniqueFrom := map[string]struct{}{}
	uniqueRealms := map[string]struct{}{}
	var oldest, newest time.Time
	for _, eval := range evaluations {
		uniqueFrom[eval.FromEntity] = struct{}{}
		uniqueRealms[eval.RealmID] = struct{}{}
		if oldest.IsZero() || eval.CreatedAt.Before(oldest) {
			oldest = eval.CreatedAt
		}
		if newest.IsZero() || eval.CreatedAt.After(newest) {
			newest = eval.CreatedAt
		}
	}

	diversity := math.Min(1, float64(len(uniqueFrom))/10)

	avgVerifications := 0.0
	if len(attestations) > 0 {
		total := 0
		for _, att := range attestations {
			total += att.VerificationCount
		}
		avgVerifications = float64(total) / float64(len(attestations))
	}
	depth := math.Min(1, avgVerifications/3)

	spanDays := 0.0
	if !oldest.IsZero() {
		spanDays = newest.Sub(oldest).Seconds() / secondsPerDay
	}
	spread := math.Min(1, spanDays/90)

	crossRealm := 0.0
	if len(uniqueRealms) > 0 {
		crossRealm = math.Min(1, float64(len(uniqueRealms)-1)/3)
	}

	var warnings []string
	if len(uniqueFrom) < 3 {
		warnings = append(warnings, WarnLowDiversity)
	}
	if avgVerifications < 2 {
		warnings = append(warnings, WarnLowDepth)
	}
	if spanDays < 7 {
		warnings = append(warnings, WarnTemporalClustering)
	}

	return domain.SybilResistance{
		Score: round(0.35*diversity+0.25*depth+0.20*spread+0.20*crossRealm, 2),
		Factors: domain.SybilFactors{
			EvaluatorDiversity:    diversity,
			VerificationDepth:     depth,
			TemporalSpread:        spread,
			CrossRealmConsistency: crossRealm,
		},
		Warnings: warnings,
	}
}
