package domain

import "github.com/google/uuid"

// PipelineContext is the single entry-point payload driving one pipeline
// frame. Assembled by the external driver from the audio feed and the hunt
// pre-filter.
type PipelineContext struct {
	Vibe             string               `json:"vibe"`
	Energy           float64              `json:"energy"`
	Tempo            float64              `json:"tempo"`
	Worthiness       float64              `json:"worthiness"`
	HuntConfidence   float64              `json:"hunt_confidence"`
	CrowdSize        int                  `json:"crowd_size"`
	EpilepsyMode     bool                 `json:"epilepsy_mode"`
	EstimatedFatigue float64              `json:"estimated_fatigue"`
	GPULoad          float64              `json:"gpu_load"`
	MaxLuminosity    float64              `json:"max_luminosity"`
	RecentEffects    []EffectHistoryEntry `json:"recent_effects,omitempty"`
	EnergyZone       EnergyZone           `json:"energy_zone,omitempty"`
	ZScore           float64              `json:"z_score"`
	PredictionType   string               `json:"prediction_type,omitempty"`
	EnergyTrend      string               `json:"energy_trend,omitempty"`
	Texture          *TextureHints        `json:"texture,omitempty"`
}

// IntegrationDecision is the pipeline's answer for one frame.
type IntegrationDecision struct {
	ID                  uuid.UUID        `json:"id"`
	Approved            bool             `json:"approved"`
	Effect              *EffectCandidate `json:"effect,omitempty"`
	DreamTimeMs         int64            `json:"dream_time_ms"`
	FilterTimeMs        int64            `json:"filter_time_ms"`
	TotalTimeMs         int64            `json:"total_time_ms"`
	DreamRecommendation string           `json:"dream_recommendation"`
	EthicalVerdict      *EthicalVerdict  `json:"ethical_verdict,omitempty"`
	CircuitHealthy      bool             `json:"circuit_healthy"`
	FallbackUsed        bool             `json:"fallback_used"`
	Alternatives        []EffectCandidate `json:"alternatives,omitempty"`
}

// PipelineHealth aggregates component health for the health endpoint.
type PipelineHealth struct {
	CircuitBreakerState BreakerState `json:"circuit_breaker_state"`
	CircuitHealthy      bool         `json:"circuit_healthy"`
	MaturityLevel       float64      `json:"maturity_level"`
	MaturityExperience  int          `json:"maturity_experience"`
	UnlockedFeatures    []string     `json:"unlocked_features"`
	PipelineDecisions   int          `json:"pipeline_decisions"`
	CacheSize           int          `json:"cache_size"`
}
