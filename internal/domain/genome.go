package domain

import "strings"

// EffectID identifies one of the known visual effects. The set is closed:
// every id the pipeline can emit appears in GenomeRegistry.
type EffectID string

// Genome is the fixed trait vector describing an effect's nature.
// All three channels live in [0,1]. Created once at startup, never mutated.
type Genome struct {
	Aggression float64 `json:"aggression"`
	Chaos      float64 `json:"chaos"`
	Organicity float64 `json:"organicity"`
}

// EffectCategory groups effects by aesthetic family. Categories gate
// wildcard selection and consonance scoring.
type EffectCategory string

const (
	CategoryTechnoIndustrial  EffectCategory = "techno-industrial"
	CategoryTechnoAtmospheric EffectCategory = "techno-atmospheric"
	CategoryLatinoOrganic     EffectCategory = "latino-organic"
	CategoryChillAmbient      EffectCategory = "chill-ambient"
)

// GenomeRegistry maps every known effect to its immutable genome.
var GenomeRegistry = map[EffectID]Genome{
	// Techno industrial
	"industrial_strobe": {Aggression: 0.95, Chaos: 0.30, Organicity: 0.05},
	"acid_sweep":        {Aggression: 0.70, Chaos: 0.45, Organicity: 0.25},
	"cyber_dualism":     {Aggression: 0.55, Chaos: 0.50, Organicity: 0.45},
	"gatling_raid":      {Aggression: 0.90, Chaos: 0.40, Organicity: 0.10},
	"sky_saw":           {Aggression: 0.80, Chaos: 0.55, Organicity: 0.20},
	"binary_glitch":     {Aggression: 0.60, Chaos: 0.55, Organicity: 0.00},
	"seismic_snap":      {Aggression: 0.70, Chaos: 0.20, Organicity: 0.10},
	"core_meltdown":     {Aggression: 1.00, Chaos: 1.00, Organicity: 0.00},
	"strobe_storm":      {Aggression: 0.93, Chaos: 0.75, Organicity: 0.15},
	"thunder_struck":    {Aggression: 0.95, Chaos: 0.10, Organicity: 0.05},
	"feedback_storm":    {Aggression: 0.85, Chaos: 0.90, Organicity: 0.10},
	"strobe_burst":      {Aggression: 0.43, Chaos: 0.35, Organicity: 0.40},

	// Techno atmospheric
	"digital_rain":  {Aggression: 0.35, Chaos: 0.65, Organicity: 0.40},
	"ambient_strobe": {Aggression: 0.45, Chaos: 0.40, Organicity: 0.10},
	"sonar_ping":    {Aggression: 0.15, Chaos: 0.10, Organicity: 0.05},
	"abyssal_rise":  {Aggression: 0.80, Chaos: 0.30, Organicity: 0.50},
	"fiber_optics":  {Aggression: 0.10, Chaos: 0.20, Organicity: 0.00},
	"arena_sweep":   {Aggression: 0.50, Chaos: 0.20, Organicity: 0.25},

	// Latino organic
	"clave_rhythm":     {Aggression: 0.48, Chaos: 0.20, Organicity: 0.70},
	"tropical_pulse":   {Aggression: 0.56, Chaos: 0.45, Organicity: 0.65},
	"glitch_guaguanco": {Aggression: 0.64, Chaos: 0.60, Organicity: 0.35},
	"machete_spark":    {Aggression: 0.70, Chaos: 0.25, Organicity: 0.30},
	"salsa_fire":       {Aggression: 0.81, Chaos: 0.30, Organicity: 0.35},
	"solar_flare":      {Aggression: 0.86, Chaos: 0.25, Organicity: 0.45},
	"latina_meltdown":  {Aggression: 0.97, Chaos: 0.20, Organicity: 0.20},
	"corazon_latino":   {Aggression: 0.37, Chaos: 0.35, Organicity: 0.75},

	// Chill ambient
	"void_mist":   {Aggression: 0.05, Chaos: 0.20, Organicity: 0.85},
	"deep_breath": {Aggression: 0.05, Chaos: 0.10, Organicity: 0.95},
	"amazon_mist": {Aggression: 0.05, Chaos: 0.15, Organicity: 0.80},
	"ghost_breath": {Aggression: 0.13, Chaos: 0.25, Organicity: 0.80},
	"cumbia_moon": {Aggression: 0.21, Chaos: 0.20, Organicity: 0.80},
	"tidal_wave":  {Aggression: 0.28, Chaos: 0.25, Organicity: 0.65},
	"liquid_solo": {Aggression: 0.40, Chaos: 0.35, Organicity: 0.75},
	"amp_heat":    {Aggression: 0.15, Chaos: 0.15, Organicity: 0.90},
}

// CategoryEffects lists the members of each category.
var CategoryEffects = map[EffectCategory][]EffectID{
	CategoryTechnoIndustrial: {
		"industrial_strobe", "acid_sweep", "cyber_dualism", "gatling_raid",
		"sky_saw", "binary_glitch", "seismic_snap", "core_meltdown",
		"strobe_storm", "thunder_struck", "feedback_storm", "strobe_burst",
	},
	CategoryTechnoAtmospheric: {
		"digital_rain", "ambient_strobe", "sonar_ping", "abyssal_rise",
		"fiber_optics", "arena_sweep",
	},
	CategoryLatinoOrganic: {
		"clave_rhythm", "tropical_pulse", "glitch_guaguanco", "machete_spark",
		"salsa_fire", "solar_flare", "latina_meltdown", "corazon_latino",
	},
	CategoryChillAmbient: {
		"void_mist", "deep_breath", "amazon_mist", "ghost_breath",
		"cumbia_moon", "tidal_wave", "liquid_solo", "amp_heat",
	},
}

// WildcardEffects names the fallback effect per category, used when no
// effect scores well against the current target ("middle void").
var WildcardEffects = map[EffectCategory]EffectID{
	CategoryTechnoIndustrial:  "cyber_dualism",
	CategoryTechnoAtmospheric: "digital_rain",
	CategoryLatinoOrganic:     "clave_rhythm",
	CategoryChillAmbient:      "tidal_wave",
}

// DefaultWildcard is used when no category is requested.
const DefaultWildcard EffectID = "cyber_dualism"

var effectCategories = func() map[EffectID]EffectCategory {
	m := make(map[EffectID]EffectCategory, len(GenomeRegistry))
	for cat, ids := range CategoryEffects {
		for _, id := range ids {
			m[id] = cat
		}
	}
	return m
}()

// CategoryOf returns the category an effect belongs to, or "" if unknown.
func CategoryOf(id EffectID) EffectCategory {
	return effectCategories[id]
}

// KnownEffect reports whether the id is part of the closed effect set.
func KnownEffect(id EffectID) bool {
	_, ok := GenomeRegistry[id]
	return ok
}

// KnownEffects returns all effect ids in no particular order.
func KnownEffects() []EffectID {
	ids := make([]EffectID, 0, len(GenomeRegistry))
	for id := range GenomeRegistry {
		ids = append(ids, id)
	}
	return ids
}

// IsStrobe reports whether the effect is strobe-type. Strobes are blocked
// outright when epilepsy mode is active.
func (id EffectID) IsStrobe() bool {
	return strings.Contains(string(id), "strobe")
}

// TextureAffinity declares the spectral texture an effect pairs best with.
type TextureAffinity string

const (
	TextureClean TextureAffinity = "clean"
	TextureWarm  TextureAffinity = "warm"
	TextureHarsh TextureAffinity = "harsh"
	TextureNoisy TextureAffinity = "noisy"
)

// EffectTextures maps each effect to its declared texture affinity.
// Effects absent from the table default to clean.
var EffectTextures = map[EffectID]TextureAffinity{
	"industrial_strobe": TextureHarsh,
	"gatling_raid":      TextureHarsh,
	"strobe_storm":      TextureHarsh,
	"core_meltdown":     TextureHarsh,
	"thunder_struck":    TextureHarsh,
	"feedback_storm":    TextureHarsh,
	"seismic_snap":      TextureHarsh,
	"latina_meltdown":   TextureHarsh,

	"acid_sweep":       TextureNoisy,
	"sky_saw":          TextureNoisy,
	"binary_glitch":    TextureNoisy,
	"glitch_guaguanco": TextureNoisy,
	"strobe_burst":     TextureNoisy,

	"clave_rhythm":   TextureWarm,
	"tropical_pulse": TextureWarm,
	"machete_spark":  TextureWarm,
	"salsa_fire":     TextureWarm,
	"solar_flare":    TextureWarm,
	"corazon_latino": TextureWarm,
	"cumbia_moon":    TextureWarm,
	"amazon_mist":    TextureWarm,
	"amp_heat":       TextureWarm,
	"liquid_solo":    TextureWarm,
	"tidal_wave":     TextureWarm,
}

// TextureOf returns the effect's declared texture affinity.
func TextureOf(id EffectID) TextureAffinity {
	if t, ok := EffectTextures[id]; ok {
		return t
	}
	return TextureClean
}

// MoodOrganicity maps the tagged musical mood to an organicity contribution.
var MoodOrganicity = map[string]float64{
	"dreamy":      0.90,
	"melancholic": 0.80,
	"neutral":     0.50,
	"mysterious":  0.60,
	"euphoric":    0.55,
	"triumphant":  0.45,
	"aggressive":  0.20,
}

// SectionOrganicity maps the detected song section to an organicity contribution.
var SectionOrganicity = map[string]float64{
	"intro":     0.70,
	"verse":     0.65,
	"chorus":    0.50,
	"bridge":    0.60,
	"breakdown": 0.85,
	"buildup":   0.40,
	"drop":      0.15,
	"outro":     0.75,
	"unknown":   0.50,
}
