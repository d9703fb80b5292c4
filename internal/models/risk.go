package models

// RiskReasonCode identifies one risk signal detected on a submitted change.
type RiskReasonCode string

const (
	RiskGPSChanged100M RiskReasonCode = "GPS_CHANGED_100M"
	RiskPriceChanged   RiskReasonCode = "PRICE_CHANGED"
	RiskPortsChanged   RiskReasonCode = "PORTS_CHANGED"
	RiskHoursChanged   RiskReasonCode = "HOURS_CHANGED"
	RiskAccessChanged  RiskReasonCode = "ACCESS_CHANGED"
	RiskNewStation     RiskReasonCode = "NEW_STATION"
)

// RiskLevel buckets a risk score for display and queue filtering.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "LOW"
	RiskLevelMedium RiskLevel = "MEDIUM"
	RiskLevelHigh   RiskLevel = "HIGH"
)

var riskWeights = map[RiskReasonCode]int{
	RiskGPSChanged100M: 50,
	RiskPriceChanged:   20,
	RiskPortsChanged:   30,
	RiskHoursChanged:   10,
	RiskAccessChanged:  10,
	RiskNewStation:     10,
}

const maxRiskScore = 100

// RiskAssessment is the frozen outcome of scoring a submission.
type RiskAssessment struct {
	Score   int              `json:"score"`
	Level   RiskLevel        `json:"level"`
	Reasons []RiskReasonCode `json:"reasons"`
}

// RiskAssessmentFromReasons sums the weights of the given reasons, capped at
// 100, and derives the level bucket.
func RiskAssessmentFromReasons(reasons []RiskReasonCode) RiskAssessment {
	score := 0
	for _, r := range reasons {
		score += riskWeights[r]
	}
	if score > maxRiskScore {
		score = maxRiskScore
	}
	return RiskAssessment{
		Score:   score,
		Level:   RiskLevelFromScore(score),
		Reasons: reasons,
	}
}

// RiskLevelFromScore maps a score to its bucket: HIGH at 50 and above,
// MEDIUM from 30 to 49, LOW below 30.
func RiskLevelFromScore(score int) RiskLevel {
	switch {
	case score >= 50:
		return RiskLevelHigh
	case score >= 30:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}
