package domain

// Verdict is the conscience's terminal decision for one evaluation.
// All three outcomes are legal terminal states, not errors.
type Verdict string

const (
	VerdictApproved Verdict = "APPROVED"
	VerdictRejected Verdict = "REJECTED"
	VerdictDeferred Verdict = "DEFERRED"
)

// ValueViolation records one failed ethical rule.
type ValueViolation struct {
	Value       string       `json:"value"`
	Rule        string       `json:"rule"`
	Severity    BiasSeverity `json:"severity"`
	Description string       `json:"description"`
}

// EthicalVerdict is the full output of one conscience evaluation.
type EthicalVerdict struct {
	Verdict             Verdict            `json:"verdict"`
	ApprovedEffect      *EffectCandidate   `json:"approved_effect,omitempty"`
	EthicalScore        float64            `json:"ethical_score"`
	ValueScores         map[string]float64 `json:"value_scores,omitempty"`
	Reasoning           string             `json:"reasoning"`
	Violations          []ValueViolation   `json:"violations,omitempty"`
	Alternatives        []EffectCandidate  `json:"alternatives,omitempty"`
	CircuitBreakerState BreakerState       `json:"circuit_breaker_state"`
	EvaluationTimeMs    int64              `json:"evaluation_time_ms"`
	Confidence          float64            `json:"confidence"`
}

// BreakerState is the circuit breaker's externally visible state.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// EffectOutcome is the measured result of an executed effect, fed back
// into the audit and maturity model.
type EffectOutcome struct {
	ActualBeauty       float64 `json:"actual_beauty"`
	AudienceEngagement float64 `json:"audience_engagement"`
	GPUOverload        bool    `json:"gpu_overload"`
	CrowdReaction      string  `json:"crowd_reaction"` // positive, neutral, negative
}

// AuditResult is the post-execution comparison of verdict against outcome.
type AuditResult struct {
	Passes      bool             `json:"passes"`
	Score       float64          `json:"score"`
	Violations  []ValueViolation `json:"violations,omitempty"`
	ShouldLearn bool             `json:"should_learn"`
}

// MaturityMetrics reports the conscience's slowly evolving trust level.
type MaturityMetrics struct {
	Level            float64  `json:"level"`
	Experience       int      `json:"experience"`
	UnlockedFeatures []string `json:"unlocked_features"`
}
