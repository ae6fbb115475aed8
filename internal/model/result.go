package model

// ArabilityDecision is the outcome of the arability gate. Reason is always set.
type ArabilityDecision struct {
	IsArable bool   `json:"is_arable"`
	Reason   string `json:"reason"`
}

// Mode records which rule-matching stage produced the measures.
type Mode string

const (
	ModeStrict  Mode = "STRICT"
	ModeRelaxed Mode = "RELAXED"
)

// EvaluationResult is the output of the measure rule engine.
type EvaluationResult struct {
	Mode     Mode     `json:"mode"`
	Measures []string `json:"measures"`
}

// RiskLevel buckets the erosion risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskModerate RiskLevel = "MODERATE"
	RiskHigh     RiskLevel = "HIGH"
)

// ErosionRiskResult is the informational erosion susceptibility indicator.
type ErosionRiskResult struct {
	Level  RiskLevel `json:"level"`
	Score  float64   `json:"score"`
	Method string    `json:"method"`
}
