package domain

import (
	"errors"
	"time"
)

// TextureHints are spectral texture measurements attached to the safety
// context. Texture is the label (clean/warm/harsh/noisy) measured on the
// audio, Clarity how unambiguous that measurement is.
type TextureHints struct {
	Texture TextureAffinity `json:"texture"`
	Clarity float64         `json:"clarity"`
}

// AudienceSafetyContext is the read-only snapshot the conscience judges
// against. Built fresh per pipeline run; never mutated after construction.
type AudienceSafetyContext struct {
	CrowdSize         int                  `json:"crowd_size"`
	EpilepsyMode      bool                 `json:"epilepsy_mode"`
	AudienceFatigue   float64              `json:"audience_fatigue"`
	AmbientLuminosity float64              `json:"ambient_luminosity"`
	GPULoad           float64              `json:"gpu_load"`
	LastIntenseEffect int64                `json:"last_intense_effect"`
	Vibe              string               `json:"vibe"`
	Energy            float64              `json:"energy"`
	EnergyZone        EnergyZone           `json:"energy_zone"`
	ZScore            float64              `json:"z_score"`
	Timestamp         int64                `json:"timestamp"`
	RecentEffects     []EffectHistoryEntry `json:"recent_effects,omitempty"`
	ActiveCooldowns   map[EffectID]int64   `json:"active_cooldowns,omitempty"`
	DreamWarnings     []string             `json:"dream_warnings,omitempty"`
	BiasReport        *BiasAnalysis        `json:"bias_report,omitempty"`
	Texture           *TextureHints        `json:"texture,omitempty"`
}

// ErrNoVibe is returned when a safety context is built without a vibe.
// A context with no vibe cannot be judged, so this fails construction
// instead of surfacing deep inside scoring.
var ErrNoVibe = errors.New("audience safety context requires a vibe")

// SafetyContextBuilder assembles an AudienceSafetyContext with clamped
// inputs and sane defaults.
type SafetyContextBuilder struct {
	ctx     AudienceSafetyContext
	vibeSet bool
}

// NewSafetyContextBuilder returns a builder with defaults: 100 people,
// neutral energy, no fatigue, no load.
func NewSafetyContextBuilder() *SafetyContextBuilder {
	return &SafetyContextBuilder{
		ctx: AudienceSafetyContext{
			CrowdSize:       100,
			Energy:          0.5,
			EnergyZone:      ZoneGentle,
			ActiveCooldowns: make(map[EffectID]int64),
		},
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (b *SafetyContextBuilder) WithVibe(vibe string) *SafetyContextBuilder {
	if vibe != "" {
		b.ctx.Vibe = vibe
		b.vibeSet = true
	}
	return b
}

func (b *SafetyContextBuilder) WithEnergy(energy float64) *SafetyContextBuilder {
	b.ctx.Energy = clamp01(energy)
	b.ctx.EnergyZone = ZoneForEnergy(b.ctx.Energy)
	return b
}

// WithEnergyZone overrides the zone derived from energy, for callers that
// own the zone source of truth.
func (b *SafetyContextBuilder) WithEnergyZone(zone EnergyZone) *SafetyContextBuilder {
	b.ctx.EnergyZone = zone
	return b
}

func (b *SafetyContextBuilder) WithZScore(z float64) *SafetyContextBuilder {
	b.ctx.ZScore = z
	return b
}

func (b *SafetyContextBuilder) WithCrowdSize(size int) *SafetyContextBuilder {
	if size < 0 {
		size = 0
	}
	b.ctx.CrowdSize = size
	return b
}

func (b *SafetyContextBuilder) WithEpilepsyMode(on bool) *SafetyContextBuilder {
	b.ctx.EpilepsyMode = on
	return b
}

func (b *SafetyContextBuilder) WithFatigue(fatigue float64) *SafetyContextBuilder {
	b.ctx.AudienceFatigue = clamp01(fatigue)
	return b
}

func (b *SafetyContextBuilder) WithAmbientLuminosity(lum float64) *SafetyContextBuilder {
	b.ctx.AmbientLuminosity = clamp01(lum)
	return b
}

func (b *SafetyContextBuilder) WithGPULoad(load float64) *SafetyContextBuilder {
	b.ctx.GPULoad = clamp01(load)
	return b
}

func (b *SafetyContextBuilder) WithRecentEffects(entries []EffectHistoryEntry) *SafetyContextBuilder {
	b.ctx.RecentEffects = entries
	b.ctx.LastIntenseEffect = lastIntenseTimestamp(entries)
	return b
}

func (b *SafetyContextBuilder) WithActiveCooldowns(cooldowns map[EffectID]int64) *SafetyContextBuilder {
	if cooldowns != nil {
		b.ctx.ActiveCooldowns = cooldowns
	}
	return b
}

func (b *SafetyContextBuilder) WithDreamWarnings(warnings []string) *SafetyContextBuilder {
	b.ctx.DreamWarnings = warnings
	return b
}

func (b *SafetyContextBuilder) WithBiasReport(report *BiasAnalysis) *SafetyContextBuilder {
	b.ctx.BiasReport = report
	return b
}

func (b *SafetyContextBuilder) WithTexture(texture TextureAffinity, clarity float64) *SafetyContextBuilder {
	b.ctx.Texture = &TextureHints{Texture: texture, Clarity: clamp01(clarity)}
	return b
}

// Build finalizes the context. Fails if no vibe was supplied.
func (b *SafetyContextBuilder) Build() (AudienceSafetyContext, error) {
	if !b.vibeSet {
		return AudienceSafetyContext{}, ErrNoVibe
	}
	b.ctx.Timestamp = time.Now().UnixMilli()
	return b.ctx, nil
}

// EmergencyContext is the maximally cautious preset used when a proper
// context cannot be assembled: epilepsy protection on, moderate fatigue.
func EmergencyContext(vibe string) AudienceSafetyContext {
	return AudienceSafetyContext{
		CrowdSize:       100,
		EpilepsyMode:    true,
		AudienceFatigue: 0.5,
		GPULoad:         0.3,
		Vibe:            vibe,
		Energy:          0.5,
		EnergyZone:      ZoneGentle,
		Timestamp:       time.Now().UnixMilli(),
		ActiveCooldowns: make(map[EffectID]int64),
	}
}

const recentWindowMs = 5 * 60 * 1000

// EstimateFatigue derives accumulated audience fatigue from the recent
// firing history: a slow baseline decay, intense effects add fatigue, soft
// effects actively recover it.
func EstimateFatigue(entries []EffectHistoryEntry, now int64) float64 {
	fatigue := 0.0
	var newest int64
	for _, e := range entries {
		age := now - e.Timestamp
		if age < 0 || age > recentWindowMs {
			continue
		}
		if e.Timestamp > newest {
			newest = e.Timestamp
		}
		if e.Intensity > 0.7 {
			fatigue += 0.02 * e.Intensity
		} else {
			fatigue -= 0.01 * (1 - e.Intensity)
		}
	}
	// Eyes recover at roughly 0.01 per quiet minute
	if newest > 0 && now > newest {
		fatigue -= 0.01 * float64(now-newest) / (60 * 1000)
	}
	return clamp01(fatigue)
}

// EstimateGPULoad projects the render load implied by the last few effects.
func EstimateGPULoad(entries []EffectHistoryEntry) float64 {
	load := 0.0
	start := 0
	if len(entries) > 5 {
		start = len(entries) - 5
	}
	for _, e := range entries[start:] {
		if e.Effect.IsStrobe() || CategoryOf(e.Effect) == CategoryTechnoIndustrial {
			load += 0.15 * e.Intensity
		} else {
			load += 0.05 * e.Intensity
		}
	}
	return clamp01(load)
}

func lastIntenseTimestamp(entries []EffectHistoryEntry) int64 {
	var last int64
	for _, e := range entries {
		if e.Intensity > 0.7 && e.Timestamp > last {
			last = e.Timestamp
		}
	}
	return last
}
