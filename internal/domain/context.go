package domain

// MusicalContext is the per-frame description of what the music is doing,
// produced by the external audio analysis feed.
type MusicalContext struct {
	Energy            float64 `json:"energy"`
	Syncopation       float64 `json:"syncopation"`
	Mood              string  `json:"mood"`
	Section           string  `json:"section"`
	SectionConfidence float64 `json:"section_confidence"`
	Groove            float64 `json:"groove"`
	RhythmConfidence  float64 `json:"rhythm_confidence"`
	Confidence        float64 `json:"confidence"`
	IsFill            bool    `json:"is_fill"`
	EnergyTrend       float64 `json:"energy_trend"`
}

// AudioMetrics carries the spectral measurements for the current frame.
type AudioMetrics struct {
	KickIntensity    float64 `json:"kick_intensity"`
	Harshness        float64 `json:"harshness"`
	SpectralFlatness float64 `json:"spectral_flatness"`
	Bass             float64 `json:"bass"`
	Mid              float64 `json:"mid"`
}

// TargetGenome is the genome the current music calls for, smoothed over time.
// Owned exclusively by the matcher.
type TargetGenome struct {
	Genome
	Confidence float64 `json:"confidence"`
}

// MusicalPrediction is the external predictor's look-ahead, consumed read-only.
type MusicalPrediction struct {
	PredictedEnergy   float64 `json:"predicted_energy"`
	PredictedSection  string  `json:"predicted_section"`
	PredictedTempo    float64 `json:"predicted_tempo"`
	Confidence        float64 `json:"confidence"`
	IsDropComing      bool    `json:"is_drop_coming"`
	IsBreakdownComing bool    `json:"is_breakdown_coming"`
	EnergyTrend       string  `json:"energy_trend"`
	PredictionType    string  `json:"prediction_type"`
}

// SystemState is the current aesthetic state of the show, mutated by the
// integrator after each accepted decision.
type SystemState struct {
	CurrentBeauty   float64              `json:"current_beauty"`
	LastEffect      EffectID             `json:"last_effect,omitempty"`
	LastEffectTime  int64                `json:"last_effect_time"`
	ActiveCooldowns map[EffectID]int64   `json:"active_cooldowns,omitempty"`
	Energy          float64              `json:"energy"`
	Tempo           float64              `json:"tempo"`
	Vibe            string               `json:"vibe"`
}

// EnergyZone is one of 7 coarse energy buckets bounding allowed aggression.
type EnergyZone string

const (
	ZoneSilence EnergyZone = "silence"
	ZoneValley  EnergyZone = "valley"
	ZoneAmbient EnergyZone = "ambient"
	ZoneGentle  EnergyZone = "gentle"
	ZoneActive  EnergyZone = "active"
	ZoneIntense EnergyZone = "intense"
	ZonePeak    EnergyZone = "peak"
)

// ZoneForEnergy buckets a raw energy value into its zone.
func ZoneForEnergy(energy float64) EnergyZone {
	switch {
	case energy < 0.10:
		return ZoneSilence
	case energy < 0.25:
		return ZoneValley
	case energy < 0.40:
		return ZoneAmbient
	case energy < 0.55:
		return ZoneGentle
	case energy < 0.70:
		return ZoneActive
	case energy < 0.85:
		return ZoneIntense
	default:
		return ZonePeak
	}
}

// AggressionRange is the genome-aggression band permitted in a zone.
type AggressionRange struct {
	Min float64
	Max float64
}

// ZoneAggression bounds which effects may fire per energy zone. Quiet
// passages never get punished with industrial strobes; peaks never get
// stuck with mist.
var ZoneAggression = map[EnergyZone]AggressionRange{
	ZoneSilence: {Min: 0.00, Max: 0.20},
	ZoneValley:  {Min: 0.00, Max: 0.35},
	ZoneAmbient: {Min: 0.10, Max: 0.50},
	ZoneGentle:  {Min: 0.25, Max: 0.65},
	ZoneActive:  {Min: 0.40, Max: 0.80},
	ZoneIntense: {Min: 0.55, Max: 0.95},
	ZonePeak:    {Min: 0.70, Max: 1.00},
}
