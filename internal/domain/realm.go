package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Realm is a named trust context. Realms form a hierarchy via Parent; Path is
// the '/'-joined chain of ancestor ids ending in the realm's own id and is
// globally unique. ID, Parent, Path and Depth are immutable after creation.
type Realm struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Parent      *string    `json:"parent,omitempty"`
	Path        string     `json:"path"`
	Depth       int        `json:"depth"`
	Domain      string     `json:"domain"`
	Rules       RealmRules `json:"rules"`
	PublicKey   string     `json:"publicKey,omitempty"`
	CreatedBy   string     `json:"createdBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// RealmRules govern attestation and trust computation inside a realm.
// Omitted fields inherit defaults at creation time.
type RealmRules struct {
	MinVerifications      int            `json:"minVerifications"`
	RequiredResolvers     []string       `json:"requiredResolvers"`
	OptionalResolvers     []string       `json:"optionalResolvers"`
	DecayHalfLife         string         `json:"decayHalfLife"`
	MinScore              float64        `json:"minScore"`
	MaxTransitiveDepth    int            `json:"maxTransitiveDepth"`
	TransitiveDecayFactor float64        `json:"transitiveDecayFactor"`
	CustomRules           map[string]any `json:"customRules,omitempty"`
}

// DefaultRealmRules returns the rule set applied when a caller omits fields.
func DefaultRealmRules() RealmRules {
	return RealmRules{
		MinVerifications:      1,
		RequiredResolvers:     []string{},
		OptionalResolvers:     []string{},
		DecayHalfLife:         "180d",
		MinScore:              0,
		MaxTransitiveDepth:    5,
		TransitiveDecayFactor: 0.8,
	}
}

// Merged fills zero-valued fields of r from the defaults.
func (r RealmRules) Merged(defaults RealmRules) RealmRules {
	if r.MinVerifications == 0 {
		r.MinVerifications = defaults.MinVerifications
	}
	if r.RequiredResolvers == nil {
		r.RequiredResolvers = defaults.RequiredResolvers
	}
	if r.OptionalResolvers == nil {
		r.OptionalResolvers = defaults.OptionalResolvers
	}
	if r.DecayHalfLife == "" {
		r.DecayHalfLife = defaults.DecayHalfLife
	}
	if r.MaxTransitiveDepth == 0 {
		r.MaxTransitiveDepth = defaults.MaxTransitiveDepth
	}
	if r.TransitiveDecayFactor == 0 {
		r.TransitiveDecayFactor = defaults.TransitiveDecayFactor
	}
	return r
}

// HalfLifeDays parses the "Nd" duration string. Malformed values fall back to
// the default half-life.
func (r RealmRules) HalfLifeDays() float64 {
	s := strings.TrimSuffix(r.DecayHalfLife, "d")
	if s == r.DecayHalfLife {
		return 180
	}
	days, err := strconv.ParseFloat(s, 64)
	if err != nil || days <= 0 {
		return 180
	}
	return days
}

// ChildPath derives the materialized path of a child realm.
func (r Realm) ChildPath(childID string) string {
	return fmt.Sprintf("%s/%s", r.Path, childID)
}

// HasAncestor reports whether id appears anywhere in the realm's path chain.
func (r Realm) HasAncestor(id string) bool {
	for _, part := range strings.Split(r.Path, "/") {
		if part == id {
			return true
		}
	}
	return false
}
