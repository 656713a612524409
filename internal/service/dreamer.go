package service

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/luxsync/selene/internal/domain"
	"go.uber.org/zap"
)

// Dreamer tuning constants
const (
	// Scenario ranking weights.
	scoreRelevanceWeight  = 0.50
	scoreCoherenceWeight  = 0.20
	scoreSafetyWeight     = 0.20
	scoreConfidenceWeight = 0.10

	// Per-conflict penalties and situational bonuses.
	cooldownConflictPenalty = 0.10
	hardwareConflictPenalty = 0.15
	dropIntensityBonus      = 0.10
	nearPerfectMatchBonus   = 0.05

	// A near-perfect genome match: close in the cube and strongly relevant.
	nearPerfectDistance  = 0.3
	nearPerfectRelevance = 0.80

	// Risk contributions.
	riskGPUHigh       = 0.3
	riskGPUModerate   = 0.1
	riskFatigueHigh   = 0.4
	riskFatigueMod    = 0.2
	riskEpilepsyStrobe = 0.5
	riskActiveCooldown = 0.2
	riskVeryIntense    = 0.1

	// Recommendation thresholds.
	abortRiskThreshold     = 0.7
	modifyRelevanceFloor   = 0.5

	// Zone relaxation keeps this many lowest-aggression effects when the
	// aggression filter empties the candidate set.
	zoneRelaxationCount = 3

	// History window for the dreamer's own diversity ladder.
	dreamDiversityWindow = 20

	defaultGPUCost       = 0.15
	defaultFatigueImpact = 0.05
)

// simulatorDiversityLadder is computed from the live firing history,
// independently of the matcher's usage counter. The two ladders share a
// shape on purpose but are deliberately not unified.
var simulatorDiversityLadder = [4]float64{1.0, 0.7, 0.4, 0.1}

// effectGPUCost is the per-effect render cost at full intensity.
var effectGPUCost = map[domain.EffectID]float64{
	"industrial_strobe": 0.28,
	"strobe_storm":      0.32,
	"gatling_raid":      0.30,
	"core_meltdown":     0.32,
	"feedback_storm":    0.26,
	"thunder_struck":    0.24,
	"acid_sweep":        0.18,
	"sky_saw":           0.20,
	"solar_flare":       0.22,
	"latina_meltdown":   0.24,
	"strobe_burst":      0.16,
	"digital_rain":      0.12,
	"arena_sweep":       0.14,
	"tidal_wave":        0.10,
	"void_mist":         0.08,
	"deep_breath":       0.08,
	"ghost_breath":      0.08,
	"sonar_ping":        0.08,
}

// effectFatigueImpact is how much one firing wears the audience's eyes.
// Chill effects actively recover fatigue.
var effectFatigueImpact = map[domain.EffectID]float64{
	"industrial_strobe": 0.09,
	"strobe_storm":      0.09,
	"gatling_raid":      0.08,
	"core_meltdown":     0.09,
	"thunder_struck":    0.07,
	"feedback_storm":    0.07,
	"solar_flare":       0.06,
	"latina_meltdown":   0.07,
	"void_mist":         -0.03,
	"deep_breath":       -0.03,
	"amazon_mist":       -0.02,
	"ghost_breath":      -0.02,
	"cumbia_moon":       -0.01,
	"tidal_wave":        -0.01,
}

// DreamerService simulates candidate futures: which effects could fire,
// what each would probably do to the show, and which one to recommend.
type DreamerService struct {
	matcher *MatcherService
	mood    *MoodService
	logger  *zap.Logger
}

func NewDreamerService(matcher *MatcherService, mood *MoodService, logger *zap.Logger) *DreamerService {
	return &DreamerService{matcher: matcher, mood: mood, logger: logger}
}

// DreamEffects simulates all eligible candidates for the frame and ranks
// them into a single recommendation.
func (s *DreamerService) DreamEffects(state domain.SystemState, prediction domain.MusicalPrediction, sctx domain.AudienceSafetyContext) domain.DreamResult {
	start := time.Now()

	candidates := s.generateCandidates(state, sctx)
	if len(candidates) == 0 {
		return domain.DreamResult{
			Recommendation:   domain.RecommendAbort,
			Reason:           "no eligible effects for vibe " + sctx.Vibe,
			SimulationTimeMs: time.Since(start).Milliseconds(),
		}
	}

	target := s.matcher.Target()
	scenarios := make([]domain.EffectScenario, 0, len(candidates))
	for _, id := range candidates {
		scenarios = append(scenarios, s.simulate(id, target, state, prediction, sctx))
	}

	sort.SliceStable(scenarios, func(i, j int) bool {
		if scenarios[i].Score != scenarios[j].Score {
			return scenarios[i].Score > scenarios[j].Score
		}
		return scenarios[i].Effect.Effect < scenarios[j].Effect.Effect
	})

	best := &scenarios[0]
	recommendation, reason := deriveRecommendation(best)

	result := domain.DreamResult{
		Scenarios:        scenarios,
		BestScenario:     best,
		Recommendation:   recommendation,
		Reason:           reason,
		Warnings:         dreamWarnings(scenarios, sctx),
		SimulationTimeMs: time.Since(start).Milliseconds(),
	}
	return result
}

// ExploreAlternatives proposes toned-down same-category variants of a
// scenario's effect.
func (s *DreamerService) ExploreAlternatives(scenario domain.EffectScenario, limit int) []domain.EffectCandidate {
	category := domain.CategoryOf(scenario.Effect.Effect)
	var alternatives []domain.EffectCandidate
	for _, id := range domain.CategoryEffects[category] {
		if id == scenario.Effect.Effect || s.mood.IsBlocked(id) {
			continue
		}
		alternatives = append(alternatives, domain.EffectCandidate{
			Effect:     id,
			Intensity:  clamp(scenario.Effect.Intensity*0.9, 0, 1),
			Zones:      effectZones(id),
			Reasoning:  fmt.Sprintf("alternative to %s within %s", scenario.Effect.Effect, category),
			Confidence: scenario.Effect.Confidence * 0.8,
		})
		if len(alternatives) >= limit {
			break
		}
	}
	return alternatives
}

func (s *DreamerService) generateCandidates(state domain.SystemState, sctx domain.AudienceSafetyContext) []domain.EffectID {
	allowed := vibeAllowList(sctx.Vibe)

	var unblocked []domain.EffectID
	for _, id := range allowed {
		if !s.mood.IsBlocked(id) {
			unblocked = append(unblocked, id)
		}
	}

	zoneRange, ok := domain.ZoneAggression[sctx.EnergyZone]
	if !ok {
		zoneRange = domain.ZoneAggression[domain.ZoneForEnergy(sctx.Energy)]
	}

	var inZone []domain.EffectID
	for _, id := range unblocked {
		aggr := domain.GenomeRegistry[id].Aggression
		if aggr >= zoneRange.Min && aggr <= zoneRange.Max {
			inZone = append(inZone, id)
		}
	}

	if len(inZone) == 0 && len(unblocked) > 0 {
		// The zone filter killed everything. Relax to the softest allowed
		// effects rather than returning nothing.
		sort.Slice(unblocked, func(i, j int) bool {
			return domain.GenomeRegistry[unblocked[i]].Aggression < domain.GenomeRegistry[unblocked[j]].Aggression
		})
		n := zoneRelaxationCount
		if n > len(unblocked) {
			n = len(unblocked)
		}
		inZone = unblocked[:n]
		s.logger.Debug("zone filter relaxed",
			zap.String("zone", string(sctx.EnergyZone)),
			zap.Int("candidates", len(inZone)))
	}

	sort.Slice(inZone, func(i, j int) bool { return inZone[i] < inZone[j] })
	return inZone
}

func (s *DreamerService) simulate(id domain.EffectID, target domain.TargetGenome, state domain.SystemState, prediction domain.MusicalPrediction, sctx domain.AudienceSafetyContext) domain.EffectScenario {
	genome := domain.GenomeRegistry[id]
	intensity := effectIntensity(id, sctx.Energy)

	relevance := s.matcher.Relevance(id, target)
	distance := GenomeDistance(genome, target.Genome)

	gpuCost := lookupOr(effectGPUCost, id, defaultGPUCost)
	fatigueImpact := lookupOr(effectFatigueImpact, id, defaultFatigueImpact)
	projGPU := clamp(sctx.GPULoad+gpuCost*intensity, 0, 1)
	projFatigue := clamp(sctx.AudienceFatigue+fatigueImpact*intensity, 0, 1)

	var cooldownConflicts []domain.EffectID
	if remaining, onCooldown := sctx.ActiveCooldowns[id]; onCooldown && remaining > 0 && !s.mood.IsForceUnlocked(id) {
		cooldownConflicts = append(cooldownConflicts, id)
	}

	var hardwareConflicts []string
	if projGPU > 0.9 {
		hardwareConflicts = append(hardwareConflicts, "gpu saturation")
	}

	risk := 0.0
	if projGPU > 0.8 {
		risk += riskGPUHigh
	} else if projGPU > 0.6 {
		risk += riskGPUModerate
	}
	if projFatigue > 0.8 {
		risk += riskFatigueHigh
	} else if projFatigue > 0.6 {
		risk += riskFatigueMod
	}
	if sctx.EpilepsyMode && id.IsStrobe() {
		risk += riskEpilepsyStrobe
	}
	if len(cooldownConflicts) > 0 {
		risk += riskActiveCooldown
	}
	if intensity > 0.9 {
		risk += riskVeryIntense
	}
	risk = clamp(risk, 0, 1)

	consonance := consonanceWith(state.LastEffect, id)
	coherence := vibeCoherence(sctx.Vibe, id)
	diversity := s.historyDiversity(id, sctx.RecentEffects)

	simConfidence := 1.0
	if len(sctx.RecentEffects) < 10 {
		simConfidence *= 0.7
	}
	if sctx.AudienceFatigue > 0.7 {
		simConfidence *= 0.8
	}

	score := relevance*diversity*scoreRelevanceWeight +
		coherence*scoreCoherenceWeight +
		(1-risk)*scoreSafetyWeight +
		simConfidence*scoreConfidenceWeight
	score -= cooldownConflictPenalty * float64(len(cooldownConflicts))
	score -= hardwareConflictPenalty * float64(len(hardwareConflicts))
	if prediction.IsDropComing && intensity > 0.7 {
		score += dropIntensityBonus
	}
	if distance < nearPerfectDistance && relevance > nearPerfectRelevance {
		score += nearPerfectMatchBonus
	}

	candidate := domain.EffectCandidate{
		Effect:             id,
		Intensity:          intensity,
		Zones:              effectZones(id),
		Reasoning:          scenarioReasoning(id, relevance, coherence, risk),
		Confidence:         simConfidence,
		ProjectedRelevance: relevance,
		ProjectedRisk:      risk,
	}

	return domain.EffectScenario{
		Effect:               candidate,
		ProjectedRelevance:   relevance,
		ProjectedBeauty:      relevance,
		ProjectedRisk:        risk,
		GenomeDistance:       distance,
		Consonance:           consonance,
		GPUImpact:            gpuCost * intensity,
		FatigueImpact:        fatigueImpact * intensity,
		CooldownConflicts:    cooldownConflicts,
		HardwareConflicts:    hardwareConflicts,
		VibeCoherence:        coherence,
		DiversityScore:       diversity,
		SimulationConfidence: simConfidence,
		Score:                score,
	}
}

func (s *DreamerService) historyDiversity(id domain.EffectID, history []domain.EffectHistoryEntry) float64 {
	start := 0
	if len(history) > dreamDiversityWindow {
		start = len(history) - dreamDiversityWindow
	}
	count := 0
	for _, e := range history[start:] {
		if e.Effect == id {
			count++
		}
	}
	if count >= len(simulatorDiversityLadder) {
		count = len(simulatorDiversityLadder) - 1
	}
	return simulatorDiversityLadder[count]
}

func deriveRecommendation(best *domain.EffectScenario) (domain.DreamRecommendation, string) {
	switch {
	case best.ProjectedRisk > abortRiskThreshold:
		return domain.RecommendAbort, fmt.Sprintf("best scenario risk %.2f too high", best.ProjectedRisk)
	case len(best.HardwareConflicts) > 0:
		return domain.RecommendAbort, "hardware conflicts: " + strings.Join(best.HardwareConflicts, ", ")
	case best.ProjectedRelevance < modifyRelevanceFloor:
		return domain.RecommendModify, fmt.Sprintf("projected relevance %.2f below floor", best.ProjectedRelevance)
	case len(best.CooldownConflicts) > 0:
		return domain.RecommendModify, "cooldown conflicts present"
	default:
		return domain.RecommendExecute, fmt.Sprintf("%s scores %.2f", best.Effect.Effect, best.Score)
	}
}

func dreamWarnings(scenarios []domain.EffectScenario, sctx domain.AudienceSafetyContext) []string {
	var warnings []string

	highRisk := 0
	lowDiversity := 0
	for _, sc := range scenarios {
		if sc.ProjectedRisk > 0.6 {
			highRisk++
		}
		if sc.DiversityScore < 0.5 {
			lowDiversity++
		}
	}
	if highRisk > len(scenarios)/2 {
		warnings = append(warnings, "most scenarios are high risk")
	}
	if lowDiversity > len(scenarios)/2 {
		warnings = append(warnings, "most scenarios repeat recent effects")
	}
	if sctx.GPULoad > 0.7 {
		warnings = append(warnings, fmt.Sprintf("gpu load already at %.0f%%", sctx.GPULoad*100))
	}
	if sctx.AudienceFatigue > 0.7 {
		warnings = append(warnings, fmt.Sprintf("audience fatigue already at %.0f%%", sctx.AudienceFatigue*100))
	}
	return warnings
}

// vibeAllowList is the vibe shield: a techno set never proposes a latin
// organic effect, and vice versa. Unknown vibes get the full registry.
func vibeAllowList(vibe string) []domain.EffectID {
	v := strings.ToLower(vibe)
	switch {
	case strings.Contains(v, "techno"):
		return append(
			append([]domain.EffectID(nil), domain.CategoryEffects[domain.CategoryTechnoIndustrial]...),
			domain.CategoryEffects[domain.CategoryTechnoAtmospheric]...)
	case strings.Contains(v, "latino"), strings.Contains(v, "latin"):
		return append([]domain.EffectID(nil), domain.CategoryEffects[domain.CategoryLatinoOrganic]...)
	case strings.Contains(v, "chill"), strings.Contains(v, "ambient"), strings.Contains(v, "lounge"):
		return append([]domain.EffectID(nil), domain.CategoryEffects[domain.CategoryChillAmbient]...)
	default:
		return domain.KnownEffects()
	}
}

// vibeCoherence scores how well an effect fits the vibe: perfect match,
// genre heresy, or a tolerable middle.
func vibeCoherence(vibe string, id domain.EffectID) float64 {
	v := strings.ToLower(vibe)
	category := domain.CategoryOf(id)
	switch {
	case strings.Contains(v, "techno"):
		if category == domain.CategoryTechnoIndustrial || category == domain.CategoryTechnoAtmospheric {
			return 1.0
		}
		if id == "solar_flare" {
			return 0.0 // latino fire in a techno set is heresy
		}
		return 0.5
	case strings.Contains(v, "latino"), strings.Contains(v, "latin"):
		if category == domain.CategoryLatinoOrganic {
			return 1.0
		}
		return 0.6
	case strings.Contains(v, "chill"), strings.Contains(v, "ambient"), strings.Contains(v, "lounge"):
		if category == domain.CategoryChillAmbient {
			return 1.0
		}
		return 0.5
	default:
		return 0.7
	}
}

func consonanceWith(last domain.EffectID, next domain.EffectID) float64 {
	switch {
	case last == "":
		return 0.7
	case last == next:
		return 0.9
	case domain.CategoryOf(last) == domain.CategoryOf(next):
		return 0.7
	default:
		return 0.4
	}
}

func effectIntensity(id domain.EffectID, energy float64) float64 {
	intensity := clamp(0.4+0.6*energy, 0, 1)
	switch {
	case id.IsStrobe():
		intensity = math.Min(1.0, intensity*1.1)
	case domain.CategoryOf(id) == domain.CategoryChillAmbient:
		intensity *= 0.8
	}
	return intensity
}

func effectZones(id domain.EffectID) []string {
	if strings.Contains(string(id), "sweep") || id == "sky_saw" {
		return []string{"movers"}
	}
	return []string{"all"}
}

func scenarioReasoning(id domain.EffectID, relevance, coherence, risk float64) string {
	return fmt.Sprintf("%s: relevance %.2f, coherence %.2f, risk %.2f", id, relevance, coherence, risk)
}

func lookupOr(table map[domain.EffectID]float64, id domain.EffectID, fallback float64) float64 {
	if v, ok := table[id]; ok {
		return v
	}
	return fallback
}
