package service

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/luxsync/selene/internal/domain"
)

// Ethical rule thresholds
const (
	// audience_safety
	fatigueHardLimit       = 0.8
	fatigueSoftLimit       = 0.6
	luminosityBudget       = 25.0 // summed intensity allowed per minute
	luminosityWindowMs     = 60 * 1000
	intenseSpacingMs       = 2000
	intenseIntensityFloor  = 0.7
	strobeLicenseClarity   = 0.7
	systemStressCeiling    = 0.6
	systemStressFloor      = 0.2

	// effect_diversity
	diversityAbuseShare   = 0.5
	diversityAbuseWindow  = 20
	diversityAbuseMinimum = 10
	forgottenBoostMinimum = 20

	// aesthetic_beauty
	beautyRejectFloor   = 0.4
	beautyBonusCeiling  = 0.8
	textureClarityFloor = 0.5

	// temporal_balance
	rapidFireWindowMs = 10 * 1000
	rapidFireLimit    = 5

	// risk_creativity
	experimentalChance = 0.1
	riskHardCeiling    = 0.85
	creativeEnergyBar  = 0.85
)

// severityPenalty is the multiplicative penalty applied for a failed rule.
var severityPenalty = map[domain.BiasSeverity]float64{
	domain.SeverityLow:      0.1,
	domain.SeverityMedium:   0.3,
	domain.SeverityHigh:     0.6,
	domain.SeverityCritical: 1.0,
}

// ruleOutcome is one rule's judgement of a candidate. A failed rule records
// a violation and applies its severity penalty (or the override). A passed
// rule may still carry a soft penalty or grant a boost.
type ruleOutcome struct {
	passed      bool
	penalty     float64 // override; 0 means use the severity penalty on failure
	boost       float64
	description string
}

func pass() ruleOutcome { return ruleOutcome{passed: true} }

func passWithPenalty(penalty float64, desc string) ruleOutcome {
	return ruleOutcome{passed: true, penalty: penalty, description: desc}
}

func passWithBoost(boost float64, desc string) ruleOutcome {
	return ruleOutcome{passed: true, boost: boost, description: desc}
}

func fail(desc string) ruleOutcome { return ruleOutcome{description: desc} }

func failWithPenalty(penalty float64, desc string) ruleOutcome {
	return ruleOutcome{penalty: penalty, description: desc}
}

// evalInput bundles everything a rule may inspect.
type evalInput struct {
	candidate domain.EffectCandidate
	sctx      domain.AudienceSafetyContext
	now       int64
	random    float64
}

type valueRule struct {
	name     string
	severity domain.BiasSeverity
	check    func(in evalInput) ruleOutcome
}

type ethicalValue struct {
	name   string
	weight float64
	rules  []valueRule
}

// ethicalValues is the conscience's fixed value system, ordered by weight.
// Scores combine as a weighted product, so one critical failure zeroes the
// total no matter how the other values score.
func ethicalValues() []ethicalValue {
	return []ethicalValue{
		{
			name:   "audience_safety",
			weight: 1.0,
			rules: []valueRule{
				{name: "epilepsy_protection", severity: domain.SeverityCritical, check: checkEpilepsy},
				{name: "fatigue_protection", severity: domain.SeverityHigh, check: checkFatigue},
				{name: "luminosity_budget", severity: domain.SeverityHigh, check: checkLuminosityBudget},
				{name: "intense_effect_rate_limit", severity: domain.SeverityMedium, check: checkIntenseSpacing},
				{name: "system_stress", severity: domain.SeverityMedium, check: checkSystemStress},
				{name: "strobe_license", severity: domain.SeverityLow, check: checkStrobeLicense},
			},
		},
		{
			name:   "vibe_coherence",
			weight: 0.9,
			rules: []valueRule{
				{name: "vibe_effect_match", severity: domain.SeverityCritical, check: checkVibeMatch},
				{name: "vibe_category_bonus", severity: domain.SeverityLow, check: checkVibeBonus},
			},
		},
		{
			name:   "aesthetic_beauty",
			weight: 0.85,
			rules: []valueRule{
				{name: "beauty_threshold", severity: domain.SeverityMedium, check: checkBeautyThreshold},
				{name: "beauty_bonus", severity: domain.SeverityLow, check: checkBeautyBonus},
				{name: "texture_affinity", severity: domain.SeverityMedium, check: checkTextureAffinity},
			},
		},
		{
			name:   "effect_diversity",
			weight: 0.8,
			rules: []valueRule{
				{name: "abuse_prevention", severity: domain.SeverityMedium, check: checkAbusePrevention},
				{name: "forgotten_effect_boost", severity: domain.SeverityLow, check: checkForgottenBoost},
				{name: "consecutive_same_effect", severity: domain.SeverityHigh, check: checkConsecutive},
			},
		},
		{
			name:   "temporal_balance",
			weight: 0.7,
			rules: []valueRule{
				{name: "temporal_pattern_break", severity: domain.SeverityMedium, check: checkTemporalPattern},
				{name: "rapid_fire_prevention", severity: domain.SeverityLow, check: checkRapidFire},
			},
		},
		{
			name:   "effect_justice",
			weight: 0.6,
			rules: []valueRule{
				{name: "forgotten_effect_rescue", severity: domain.SeverityLow, check: checkForgottenRescue},
				{name: "neglected_effect_priority", severity: domain.SeverityLow, check: checkNeglectedPriority},
			},
		},
		{
			name:   "risk_creativity",
			weight: 0.5,
			rules: []valueRule{
				{name: "allow_experimental", severity: domain.SeverityLow, check: checkExperimental},
				{name: "risk_ceiling", severity: domain.SeverityMedium, check: checkRiskCeiling},
				{name: "creative_moment_boost", severity: domain.SeverityLow, check: checkCreativeMoment},
			},
		},
	}
}

// hasStrobeLicense reports whether the audio itself licenses aggressive
// strobing: a clean signal measuring harsh with high clarity. Never
// overrides epilepsy protection.
func hasStrobeLicense(sctx domain.AudienceSafetyContext) bool {
	return !sctx.EpilepsyMode &&
		sctx.Texture != nil &&
		sctx.Texture.Texture == domain.TextureHarsh &&
		sctx.Texture.Clarity > strobeLicenseClarity
}

func checkEpilepsy(in evalInput) ruleOutcome {
	if in.sctx.EpilepsyMode && in.candidate.Effect.IsStrobe() {
		return fail(fmt.Sprintf("%s is strobe-type and epilepsy mode is active", in.candidate.Effect))
	}
	return pass()
}

func checkFatigue(in evalInput) ruleOutcome {
	fatigue := in.sctx.AudienceFatigue
	hardLimit := fatigueHardLimit
	if hasStrobeLicense(in.sctx) {
		hardLimit = 0.9 // clean harsh audio earns headroom
	}
	if fatigue > hardLimit && in.candidate.Intensity > 0.7 {
		return fail(fmt.Sprintf("audience fatigue %.2f too high for intensity %.2f", fatigue, in.candidate.Intensity))
	}
	if fatigue > fatigueSoftLimit && in.candidate.Intensity > 0.8 {
		return passWithPenalty(0.3, "intense effect on a tired audience")
	}
	return pass()
}

func checkLuminosityBudget(in evalInput) ruleOutcome {
	spent := 0.0
	for _, e := range in.sctx.RecentEffects {
		if in.now-e.Timestamp <= luminosityWindowMs {
			spent += e.Intensity
		}
	}
	if spent+in.candidate.Intensity > luminosityBudget {
		return failWithPenalty(0.6, fmt.Sprintf("luminosity budget exhausted: %.1f of %.1f this minute", spent, luminosityBudget))
	}
	return pass()
}

func checkIntenseSpacing(in evalInput) ruleOutcome {
	if in.candidate.Intensity <= intenseIntensityFloor {
		return pass()
	}
	if in.sctx.LastIntenseEffect > 0 && in.now-in.sctx.LastIntenseEffect < intenseSpacingMs {
		return failWithPenalty(0.3, "intense effects need breathing room between them")
	}
	return pass()
}

func checkSystemStress(in evalInput) ruleOutcome {
	if in.sctx.Texture == nil {
		return pass()
	}
	// Loud AND unclear audio stresses the whole system; loud and clear
	// audio is exactly when the show can push.
	stress := in.sctx.Energy * (1 - in.sctx.Texture.Clarity)
	if stress > systemStressCeiling && in.candidate.Intensity > 0.7 {
		return fail(fmt.Sprintf("system stress %.2f too high for an intense effect", stress))
	}
	if stress < systemStressFloor && in.sctx.Energy > 0.6 {
		return passWithBoost(0.1, "clear high-energy signal")
	}
	return pass()
}

func checkStrobeLicense(in evalInput) ruleOutcome {
	if in.candidate.Effect.IsStrobe() && hasStrobeLicense(in.sctx) {
		return passWithBoost(0.15, "clean harsh audio licenses strobing")
	}
	return pass()
}

func checkVibeMatch(in evalInput) ruleOutcome {
	v := strings.ToLower(in.sctx.Vibe)
	id := in.candidate.Effect
	switch {
	case strings.Contains(v, "techno") && id == "solar_flare":
		return fail("solar_flare in a techno set is genre heresy")
	case (strings.Contains(v, "latino") || strings.Contains(v, "latin")) && id == "industrial_strobe" && in.sctx.Energy < 0.85:
		return failWithPenalty(0.6, "industrial strobe needs peak energy in a latino set")
	case (strings.Contains(v, "chill") || strings.Contains(v, "lounge")) && id.IsStrobe() && in.candidate.Intensity > 0.5:
		return failWithPenalty(0.6, "strobing breaks a chill room")
	}
	return pass()
}

func checkVibeBonus(in evalInput) ruleOutcome {
	if vibeCoherence(in.sctx.Vibe, in.candidate.Effect) >= 1.0 {
		return passWithBoost(0.15, "perfect vibe match")
	}
	return pass()
}

func checkBeautyThreshold(in evalInput) ruleOutcome {
	if in.candidate.ProjectedRelevance < beautyRejectFloor && in.sctx.Energy < 0.8 {
		return fail(fmt.Sprintf("projected relevance %.2f too low outside a peak", in.candidate.ProjectedRelevance))
	}
	return pass()
}

func checkBeautyBonus(in evalInput) ruleOutcome {
	if in.candidate.ProjectedRelevance > beautyBonusCeiling {
		return passWithBoost(0.1, "strongly relevant effect")
	}
	return pass()
}

func checkTextureAffinity(in evalInput) ruleOutcome {
	if in.sctx.Texture == nil || in.sctx.Texture.Clarity < textureClarityFloor {
		return pass()
	}
	declared := domain.TextureOf(in.candidate.Effect)
	measured := in.sctx.Texture.Texture
	if declared == measured {
		return passWithBoost(0.1, "effect texture matches the audio")
	}
	if textureOpposed(declared, measured) {
		return fail(fmt.Sprintf("%s effect against %s audio", declared, measured))
	}
	return pass()
}

func textureOpposed(a, b domain.TextureAffinity) bool {
	opposed := func(x, y domain.TextureAffinity) bool {
		return (x == domain.TextureHarsh && y == domain.TextureClean) ||
			(x == domain.TextureWarm && y == domain.TextureNoisy)
	}
	return opposed(a, b) || opposed(b, a)
}

func checkAbusePrevention(in evalInput) ruleOutcome {
	history := in.sctx.RecentEffects
	if len(history) < diversityAbuseMinimum {
		return pass()
	}
	start := 0
	if len(history) > diversityAbuseWindow {
		start = len(history) - diversityAbuseWindow
	}
	window := history[start:]
	count := 0
	for _, e := range window {
		if e.Effect == in.candidate.Effect {
			count++
		}
	}
	if float64(count)/float64(len(window)) > diversityAbuseShare {
		return fail(fmt.Sprintf("%s already %d of the last %d firings", in.candidate.Effect, count, len(window)))
	}
	return pass()
}

func checkForgottenBoost(in evalInput) ruleOutcome {
	history := in.sctx.RecentEffects
	if len(history) < forgottenBoostMinimum {
		return pass()
	}
	start := 0
	if len(history) > 50 {
		start = len(history) - 50
	}
	for _, e := range history[start:] {
		if e.Effect == in.candidate.Effect {
			return pass()
		}
	}
	return passWithBoost(0.2, "effect unseen in the last 50 firings")
}

func checkConsecutive(in evalInput) ruleOutcome {
	history := in.sctx.RecentEffects
	if len(history) < 3 {
		return pass()
	}
	for _, e := range history[len(history)-3:] {
		if e.Effect != in.candidate.Effect {
			return pass()
		}
	}
	return fail(fmt.Sprintf("%s would fire four times in a row", in.candidate.Effect))
}

func checkTemporalPattern(in evalInput) ruleOutcome {
	if in.sctx.BiasReport.HasBias(domain.BiasTemporalPattern) {
		return fail("firing rhythm has become predictable")
	}
	return pass()
}

func checkRapidFire(in evalInput) ruleOutcome {
	count := 0
	for _, e := range in.sctx.RecentEffects {
		if in.now-e.Timestamp <= rapidFireWindowMs {
			count++
		}
	}
	if count >= rapidFireLimit {
		return failWithPenalty(0.1, fmt.Sprintf("%d effects in the last 10s", count))
	}
	return pass()
}

func checkForgottenRescue(in evalInput) ruleOutcome {
	if in.sctx.BiasReport.IsForgotten(in.candidate.Effect) && in.sctx.Energy < 0.6 {
		return passWithBoost(0.15, "rescuing a forgotten effect in a quiet moment")
	}
	return pass()
}

func checkNeglectedPriority(in evalInput) ruleOutcome {
	if in.sctx.BiasReport == nil {
		return pass()
	}
	for _, b := range in.sctx.BiasReport.Biases {
		if b.Type == domain.BiasEffectNeglect && strings.Contains(b.Description, string(in.candidate.Effect)) {
			return passWithBoost(0.1, "prioritizing a neglected effect")
		}
	}
	return pass()
}

func checkExperimental(in evalInput) ruleOutcome {
	if in.random < experimentalChance && in.candidate.ProjectedRisk < 0.7 {
		return passWithBoost(0.1, "experimental allowance")
	}
	return pass()
}

func checkRiskCeiling(in evalInput) ruleOutcome {
	if in.candidate.ProjectedRisk > riskHardCeiling {
		return fail(fmt.Sprintf("projected risk %.2f above the hard ceiling", in.candidate.ProjectedRisk))
	}
	return pass()
}

func checkCreativeMoment(in evalInput) ruleOutcome {
	if in.sctx.Energy > creativeEnergyBar && in.candidate.ProjectedRisk < 0.8 {
		return passWithBoost(0.05, "high-energy moment rewards risk taking")
	}
	return pass()
}

// scoreCandidate runs every value's rules over one candidate and combines
// them into the weighted-product total.
func scoreCandidate(values []ethicalValue, in evalInput) (float64, map[string]float64, []domain.ValueViolation) {
	valueScores := make(map[string]float64, len(values))
	var violations []domain.ValueViolation

	total := 1.0
	for _, value := range values {
		score := 1.0
		for _, rule := range value.rules {
			outcome := rule.check(in)
			if !outcome.passed {
				penalty := outcome.penalty
				if penalty == 0 {
					penalty = severityPenalty[rule.severity]
				}
				score *= 1 - penalty
				violations = append(violations, domain.ValueViolation{
					Value:       value.name,
					Rule:        rule.name,
					Severity:    rule.severity,
					Description: outcome.description,
				})
				continue
			}
			if outcome.penalty > 0 {
				score *= 1 - outcome.penalty
			}
			if outcome.boost > 0 {
				score *= 1 + outcome.boost
			}
		}
		score = clamp(score, 0, 1)
		valueScores[value.name] = score
		total *= math.Pow(score, value.weight)
	}

	return total, valueScores, violations
}

func nowMs() int64 { return time.Now().UnixMilli() }
