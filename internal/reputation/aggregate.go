// Package reputation derives a subject's standing in a realm and domain from
// its evaluations and verified attestations. Scores decay over time along
// the realm's half-life so dormant reputations fade instead of fossilizing.
package reputation

import (
	"math"
	"time"

	"irrl/internal/domain"
)

const secondsPerDay = 86400

// Input is the evidence set a reputation is computed from.
type Input struct {
	Evaluations              []domain.Evaluation
	AttestationCount         int
	VerifiedAttestationCount int
	OldestEvaluationDate     time.Time
	NewestEvaluationDate     time.Time
}

// Config is the realm-derived tuning of the computation.
type Config struct {
	HalfLifeDays float64
	MinScore     float64
	MaxScore     float64
}

// Computation is the scored outcome with its breakdown.
type Computation struct {
	Score      float64
	Confidence float64
	Breakdown  domain.ReputationBreakdown
}

// ComputeWithDecay aggregates evaluations into a single score. Each
// evaluation's weight is halved every halfLifeDays of age; the verified
// attestation ratio adds a capped bonus; staleness beyond one half-life
// subtracts a linear penalty.
func ComputeWithDecay(now time.Time, in Input, cfg Config) Computation {
	if cfg.HalfLifeDays <= 0 {
		cfg.HalfLifeDays = 180
	}
	if cfg.MaxScore == 0 {
		cfg.MaxScore = 100
	}

	var weightedSum, weightTotal float64
	for _, eval := range in.Evaluations {
		ageDays := now.Sub(eval.CreatedAt).Seconds() / secondsPerDay
		w := eval.Weight * math.Pow(0.5, ageDays/cfg.HalfLifeDays)
		weightedSum += float64(eval.Score) * w
		weightTotal += w
	}
	rawScore := 50.0
	if weightTotal > 0 {
		rawScore = weightedSum / weightTotal
	}

	bonus := 0.0
	if in.VerifiedAttestationCount > 0 && in.AttestationCount > 0 {
		verified := float64(in.VerifiedAttestationCount)
		total := float64(in.AttestationCount)
		bonus = (verified / total) * 10 * math.Min(verified/5, 1)
	}

	stalenessDays := 0.0
	if !in.NewestEvaluationDate.IsZero() {
		stalenessDays = now.Sub(in.NewestEvaluationDate).Seconds() / secondsPerDay
	}
	penalty := math.Max(0, (stalenessDays-cfg.HalfLifeDays)*0.1)

	score := rawScore + bonus - penalty
	score = math.Max(cfg.MinScore, math.Min(cfg.MaxScore, score))

	confidence := math.Min(1, float64(len(in.Evaluations))/10) *
		math.Pow(0.5, stalenessDays/cfg.HalfLifeDays)

	return Computation{
		Score:      round(score, 1),
		Confidence: round(confidence, 2),
		Breakdown: domain.ReputationBreakdown{
			RawScore:         rawScore,
			AttestationBonus: bonus,
			DecayPenalty:     penalty,
		},
	}
}

func round(v float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(v*factor) / factor
}
