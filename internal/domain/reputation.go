package domain

import "time"

// ReputationBreakdown explains how a reputation score was assembled.
type ReputationBreakdown struct {
	RawScore         float64 `json:"rawScore"`
	AttestationBonus float64 `json:"attestationBonus"`
	DecayPenalty     float64 `json:"decayPenalty"`
}

// Reputation is a computed reputation snapshot for a subject within a realm
// and domain. Cached rows carry a validity window and are invalidated when a
// new evaluation touches the subject.
type Reputation struct {
	Subject          string              `json:"subject"`
	RealmID          string              `json:"realmId"`
	Domain           string              `json:"domain"`
	Score            float64             `json:"score"`
	Confidence       float64             `json:"confidence"`
	EvaluationCount  int                 `json:"evaluationCount"`
	AttestationCount int                 `json:"attestationCount"`
	Breakdown        ReputationBreakdown `json:"breakdown"`
	ComputedAt       time.Time           `json:"computedAt"`
	ValidUntil       time.Time           `json:"validUntil"`
}

// SybilFactors are the population signals the Sybil resistance score is
// composed of, each normalized to [0,1].
type SybilFactors struct {
	EvaluatorDiversity    float64 `json:"evaluatorDiversity"`
	VerificationDepth     float64 `json:"verificationDepth"`
	TemporalSpread        float64 `json:"temporalSpread"`
	CrossRealmConsistency float64 `json:"crossRealmConsistency"`
}

// SybilResistance scores how resistant a subject's evaluation population is
// to manufactured identities.
type SybilResistance struct {
	Score    float64      `json:"score"`
	Factors  SybilFactors `json:"factors"`
	Warnings []string     `json:"warnings"`
}
