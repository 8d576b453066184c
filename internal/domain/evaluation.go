package domain

import "time"

// Evaluation is a signed directed trust edge from one entity to another,
// scoped to a realm and domain. At most one active evaluation exists per
// (from, to, realmId, domain); re-submission updates the row in place but
// retains the original id.
type Evaluation struct {
	ID                     string     `json:"id"`
	FromEntity             string     `json:"fromEntity"`
	ToEntity               string     `json:"toEntity"`
	RealmID                string     `json:"realmId"`
	Domain                 string     `json:"domain"`
	Score                  int        `json:"score"`
	Weight                 float64    `json:"weight"`
	Rationale              string     `json:"rationale,omitempty"`
	SupportingAttestations []string   `json:"supportingAttestations"`
	Signature              string     `json:"signature"`
	ExpiresAt              *time.Time `json:"expiresAt,omitempty"`
	CreatedAt              time.Time  `json:"createdAt"`
}

// EvaluationContent is the id-defining subset of an evaluation.
type EvaluationContent struct {
	From    string `json:"from"`
	To      string `json:"to"`
	RealmID string `json:"realmId"`
	Domain  string `json:"domain"`
	Score   int    `json:"score"`
	TS      int64  `json:"ts"`
}

// Content extracts the id-defining content of an evaluation.
func (e Evaluation) Content() EvaluationContent {
	return EvaluationContent{
		From:    e.FromEntity,
		To:      e.ToEntity,
		RealmID: e.RealmID,
		Domain:  e.Domain,
		Score:   e.Score,
		TS:      e.CreatedAt.UnixMilli(),
	}
}
