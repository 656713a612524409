package domain

// EffectCandidate is one concrete firing proposal produced by the dreamer.
// Immutable once produced; consumed by the conscience and, if approved, by
// the external renderer.
type EffectCandidate struct {
	Effect             EffectID `json:"effect"`
	Intensity          float64  `json:"intensity"`
	Zones              []string `json:"zones"`
	Reasoning          string   `json:"reasoning"`
	Confidence         float64  `json:"confidence"`
	ProjectedRelevance float64  `json:"projected_relevance"`
	ProjectedRisk      float64  `json:"projected_risk"`
}

// EffectScenario is one simulated outcome for a candidate. Transient,
// produced and discarded every frame.
type EffectScenario struct {
	Effect             EffectCandidate `json:"effect"`
	ProjectedRelevance float64         `json:"projected_relevance"`
	// ProjectedBeauty mirrors ProjectedRelevance for older consumers.
	// Relevance is authoritative for ranking.
	ProjectedBeauty      float64    `json:"projected_beauty"`
	ProjectedRisk        float64    `json:"projected_risk"`
	GenomeDistance       float64    `json:"genome_distance"`
	Consonance           float64    `json:"consonance"`
	GPUImpact            float64    `json:"gpu_impact"`
	FatigueImpact        float64    `json:"fatigue_impact"`
	CooldownConflicts    []EffectID `json:"cooldown_conflicts,omitempty"`
	HardwareConflicts    []string   `json:"hardware_conflicts,omitempty"`
	VibeCoherence        float64    `json:"vibe_coherence"`
	DiversityScore       float64    `json:"diversity_score"`
	SimulationConfidence float64    `json:"simulation_confidence"`
	Score                float64    `json:"score"`
}

// DreamRecommendation tells the integrator what to do with a dream result.
type DreamRecommendation string

const (
	RecommendExecute DreamRecommendation = "execute"
	RecommendModify  DreamRecommendation = "modify"
	RecommendAbort   DreamRecommendation = "abort"
)

// DreamResult is the full output of one simulation pass.
type DreamResult struct {
	Scenarios        []EffectScenario    `json:"scenarios"`
	BestScenario     *EffectScenario     `json:"best_scenario,omitempty"`
	Recommendation   DreamRecommendation `json:"recommendation"`
	Reason           string              `json:"reason"`
	Warnings         []string            `json:"warnings,omitempty"`
	SimulationTimeMs int64               `json:"simulation_time_ms"`
}
