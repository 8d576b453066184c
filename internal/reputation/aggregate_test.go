package reputation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"irrl/internal/domain"
)

func day(now time.Time, daysAgo float64) time.Time {
	return now.Add(-time.Duration(daysAgo * secondsPerDay * float64(time.Second)))
}

func TestComputeWithDecay(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("two aged evaluations at the same score", func(t *testing.T) {
		got := ComputeWithDecay(now, Input{
			Evaluations: []domain.Evaluation{
				{Score: 80, Weight: 1, CreatedAt: day(now, 30)},
				{Score: 80, Weight: 1, CreatedAt: day(now, 180)},
			},
			OldestEvaluationDate: day(now, 180),
			NewestEvaluationDate: day(now, 30),
		}, Config{HalfLifeDays: 180})

		require.InDelta(t, 80.0, got.Score, 1e-9)
		require.InDelta(t, 0.18, got.Confidence, 1e-9)
		require.Zero(t, got.Breakdown.AttestationBonus)
		require.Zero(t, got.Breakdown.DecayPenalty)
	})

	t.Run("decay shifts the mean toward recent scores", func(t *testing.T) {
		got := ComputeWithDecay(now, Input{
			Evaluations: []domain.Evaluation{
				{Score: 100, Weight: 1, CreatedAt: day(now, 0)},
				{Score: 0, Weight: 1, CreatedAt: day(now, 180)},
			},
			NewestEvaluationDate: day(now, 0),
		}, Config{HalfLifeDays: 180})

		// Weights 1 and 0.5, so the mean is 100/1.5.
		require.InDelta(t, 66.7, got.Score, 1e-9)
	})

	t.Run("no evaluations defaults to the neutral score", func(t *testing.T) {
		got := ComputeWithDecay(now, Input{}, Config{HalfLifeDays: 180})
		require.InDelta(t, 50.0, got.Score, 1e-9)
		require.Zero(t, got.Confidence)
	})

	t.Run("attestation bonus scales with ratio and volume", func(t *testing.T) {
		got := ComputeWithDecay(now, Input{
			Evaluations: []domain.Evaluation{
				{Score: 70, Weight: 1, CreatedAt: now},
			},
			AttestationCount:         4,
			VerifiedAttestationCount: 2,
			NewestEvaluationDate:     now,
		}, Config{HalfLifeDays: 180})

		// (2/4) * 10 * min(2/5, 1) = 2.
		require.InDelta(t, 2.0, got.Breakdown.AttestationBonus, 1e-9)
		require.InDelta(t, 72.0, got.Score, 1e-9)
	})

	t.Run("staleness beyond one half-life draws a penalty", func(t *testing.T) {
		got := ComputeWithDecay(now, Input{
			Evaluations: []domain.Evaluation{
				{Score: 90, Weight: 1, CreatedAt: day(now, 200)},
			},
			NewestEvaluationDate: day(now, 200),
		}, Config{HalfLifeDays: 180})

		require.InDelta(t, 2.0, got.Breakdown.DecayPenalty, 1e-9)
		require.InDelta(t, 88.0, got.Score, 1e-9)
	})

	t.Run("score clamps to the realm floor", func(t *testing.T) {
		got := ComputeWithDecay(now, Input{
			Evaluations: []domain.Evaluation{
				{Score: 5, Weight: 1, CreatedAt: day(now, 2000)},
			},
			NewestEvaluationDate: day(now, 2000),
		}, Config{HalfLifeDays: 180, MinScore: 10})

		require.InDelta(t, 10.0, got.Score, 1e-9)
	})
}

func TestComputeSybilResistance(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("thin population raises every warning", func(t *testing.T) {
		got := ComputeSybilResistance(
			[]domain.Evaluation{
				{FromEntity: "a", RealmID: "r1", CreatedAt: day(now, 2)},
				{FromEntity: "b", RealmID: "r1", CreatedAt: day(now, 0)},
			},
			[]domain.Attestation{
				{VerificationCount: 1},
			},
		)

		require.Contains(t, got.Warnings, WarnLowDiversity)
		require.Contains(t, got.Warnings, WarnLowDepth)
		require.Contains(t, got.Warnings, WarnTemporalClustering)
		require.Less(t, got.Score, 0.5)
	})

	t.Run("diverse seasoned population raises none", func(t *testing.T) {
		evals := make([]domain.Evaluation, 0, 12)
		for i := 0; i < 12; i++ {
			evals = append(evals, domain.Evaluation{
				FromEntity: string(rune('a' + i)),
				RealmID:    []string{"r1", "r2", "r3", "r4"}[i%4],
				CreatedAt:  day(now, float64(i*30)),
			})
		}
		got := ComputeSybilResistance(evals, []domain.Attestation{
			{VerificationCount: 4},
			{VerificationCount: 8},
		})

		require.Empty(t, got.Warnings)
		require.InDelta(t, 1.0, got.Factors.EvaluatorDiversity, 1e-9)
		require.InDelta(t, 1.0, got.Factors.VerificationDepth, 1e-9)
		require.InDelta(t, 1.0, got.Factors.TemporalSpread, 1e-9)
		require.InDelta(t, 1.0, got.Factors.CrossRealmConsistency, 1e-9)
		require.InDelta(t, 1.0, got.Score, 1e-9)
	})

	t.Run("single realm contributes no cross-realm signal", func(t *testing.T) {
		got := ComputeSybilResistance([]domain.Evaluation{
			{FromEntity: "a", RealmID: "r1", CreatedAt: day(now, 100)},
			{FromEntity: "b", RealmID: "r1", CreatedAt: day(now, 0)},
		}, nil)
		require.Zero(t, got.Factors.CrossRealmConsistency)
	})
}
