package domain

// EffectHistoryEntry records one fired effect for the bias tracker.
type EffectHistoryEntry struct {
	Effect        EffectID `json:"effect"`
	Timestamp     int64    `json:"timestamp"`
	Intensity     float64  `json:"intensity"`
	Zones         []string `json:"zones"`
	Success       bool     `json:"success"`
	Vibe          string   `json:"vibe"`
	BeautyOutcome float64  `json:"beauty_outcome,omitempty"`
	EthicalScore  float64  `json:"ethical_score,omitempty"`
}

// BiasType classifies a detected decision bias.
type BiasType string

const (
	BiasEffectAbuse     BiasType = "effect_abuse"
	BiasEffectNeglect   BiasType = "effect_neglect"
	BiasTemporalPattern BiasType = "temporal_pattern"
	BiasVibeLock        BiasType = "vibe_lock"
	BiasIntensityHabit  BiasType = "intensity_habit"
	BiasZonePreference  BiasType = "zone_preference"
)

// BiasSeverity grades how damaging a bias is.
type BiasSeverity string

const (
	SeverityLow      BiasSeverity = "low"
	SeverityMedium   BiasSeverity = "medium"
	SeverityHigh     BiasSeverity = "high"
	SeverityCritical BiasSeverity = "critical"
)

// Bias is one detected pattern in the firing history.
type Bias struct {
	Type           BiasType     `json:"type"`
	Severity       BiasSeverity `json:"severity"`
	Description    string       `json:"description"`
	Recommendation string       `json:"recommendation"`
}

// TemporalPattern describes an effect firing at a repeating interval.
type TemporalPattern struct {
	Effect        EffectID `json:"effect"`
	IntervalMs    float64  `json:"interval_ms"`
	Occurrences   int      `json:"occurrences"`
	Confidence    float64  `json:"confidence"`
	LastDetection int64    `json:"last_detection"`
}

// EffectUsageStats summarizes one effect's usage inside an analysis window.
type EffectUsageStats struct {
	Effect       EffectID `json:"effect"`
	Count        int      `json:"count"`
	Percentage   float64  `json:"percentage"`
	AvgIntensity float64  `json:"avg_intensity"`
	LastUsed     int64    `json:"last_used"`
	Vibes        []string `json:"vibes"`
}

// BiasAnalysis is the tracker's full self-audit report. It informs the
// conscience and dreamer but never blocks anything itself.
type BiasAnalysis struct {
	Biases           []Bias     `json:"biases"`
	HasCriticalBias  bool       `json:"has_critical_bias"`
	DiversityScore   float64    `json:"diversity_score"`
	SampleSize       int        `json:"sample_size"`
	Timestamp        int64      `json:"timestamp"`
	MostUsedEffect   EffectID   `json:"most_used_effect"`
	LeastUsedEffect  EffectID   `json:"least_used_effect"`
	ForgottenEffects []EffectID `json:"forgotten_effects"`
	Warnings         []string   `json:"warnings,omitempty"`
	Recommendations  []string   `json:"recommendations,omitempty"`
}

// HasBias reports whether the analysis contains a bias of the given type.
func (a *BiasAnalysis) HasBias(t BiasType) bool {
	if a == nil {
		return false
	}
	for _, b := range a.Biases {
		if b.Type == t {
			return true
		}
	}
	return false
}

// IsForgotten reports whether the effect appears in the forgotten list.
func (a *BiasAnalysis) IsForgotten(id EffectID) bool {
	if a == nil {
		return false
	}
	for _, f := range a.ForgottenEffects {
		if f == id {
			return true
		}
	}
	return false
}
