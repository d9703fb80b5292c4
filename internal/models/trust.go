package models

import "time"

// Trust breakdown component keys.
const (
	TrustComponentBase             = "base"
	TrustComponentVerificationBonus = "verification_bonus"
	TrustComponentIssuesPenalty     = "issues_penalty"
	TrustComponentHighRiskPenalty   = "high_risk_penalty"
)

// StationTrust is the persisted trust score of a station.
type StationTrust struct {
	StationID    string         `db:"station_id" json:"stationId"`
	Score        int            `db:"score" json:"score"`
	Breakdown    map[string]int `db:"-" json:"breakdown"`
	RecomputedAt time.Time      `db:"recomputed_at" json:"recomputedAt"`
}

// TrustBreakdown holds the signed components of a trust computation.
type TrustBreakdown struct {
	Base              int `json:"base"`
	VerificationBonus int `json:"verification_bonus"`
	IssuesPenalty     int `json:"issues_penalty"`
	HighRiskPenalty   int `json:"high_risk_penalty"`
}

// Score sums the components and clamps the result to [0, 100].
func (b TrustBreakdown) Score() int {
	s := b.Base + b.VerificationBonus + b.IssuesPenalty + b.HighRiskPenalty
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// Components returns the breakdown as the map persisted and served to
// clients.
func (b TrustBreakdown) Components() map[string]int {
	return map[string]int{
		TrustComponentBase:              b.Base,
		TrustComponentVerificationBonus: b.VerificationBonus,
		TrustComponentIssuesPenalty:     b.IssuesPenalty,
		TrustComponentHighRiskPenalty:   b.HighRiskPenalty,
	}
}
