package service

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/luxsync/selene/internal/domain"
	"go.uber.org/zap"
)

// Matcher tuning constants
const (
	// EMA smoothing factor applied per channel and to confidence.
	// Damps frame-to-frame audio jitter.
	targetSmoothingAlpha = 0.20

	// Section confidence required before the snap overrides bypass the EMA.
	snapConfidenceThreshold = 0.7

	// Snap floors/ceilings for unambiguous drops and breakdowns.
	dropAggressionFloor    = 0.80
	dropOrganicityCeiling  = 0.25
	breakdownAggressionCap = 0.25
	breakdownOrganicFloor  = 0.80

	// Best relevance below this means no effect fits the moment and the
	// category wildcard is forced to the front.
	middleVoidThreshold = 0.60

	// Usage window for the matcher's diversity ladder. Hard reset, not
	// sliding: the whole counter map is dropped once the window elapses.
	usageWindow = 10 * time.Second

	// Relevance returned for ids outside the known registry.
	neutralRelevance = 0.5
)

// diversityLadder scales relevance by how often an effect was already
// selected inside the usage window. Index is the usage count, capped.
var diversityLadder = [4]float64{1.0, 0.7, 0.4, 0.1}

// RankedEffect pairs an effect with its relevance for a ranking pass.
type RankedEffect struct {
	Effect    domain.EffectID `json:"effect"`
	Relevance float64         `json:"relevance"`
}

// MatcherService derives the target genome from live musical context and
// scores effects against it. Owns the smoothed target and the usage window;
// both are guarded by a single mutex so concurrent frames cannot interleave
// EMA updates.
type MatcherService struct {
	logger *zap.Logger

	mu          sync.Mutex
	target      domain.TargetGenome
	usage       map[domain.EffectID]int
	windowStart time.Time
}

func NewMatcherService(logger *zap.Logger) *MatcherService {
	return &MatcherService{
		logger:      logger,
		target:      neutralTarget(),
		usage:       make(map[domain.EffectID]int),
		windowStart: time.Now(),
	}
}

func neutralTarget() domain.TargetGenome {
	return domain.TargetGenome{
		Genome:     domain.Genome{Aggression: 0.5, Chaos: 0.5, Organicity: 0.5},
		Confidence: 0.5,
	}
}

// DeriveTarget computes the raw target from the frame's context and blends
// it into the persisted smoothed target. Returns the updated target.
func (s *MatcherService) DeriveTarget(mctx domain.MusicalContext, metrics domain.AudioMetrics) domain.TargetGenome {
	raw := rawTarget(mctx, metrics)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.target.Aggression = ema(raw.Aggression, s.target.Aggression)
	s.target.Chaos = ema(raw.Chaos, s.target.Chaos)
	s.target.Organicity = ema(raw.Organicity, s.target.Organicity)
	s.target.Confidence = ema(raw.Confidence, s.target.Confidence)

	// Structurally unambiguous moments get an instantaneous response
	// instead of a damped one.
	if mctx.SectionConfidence > snapConfidenceThreshold {
		switch mctx.Section {
		case "drop":
			s.target.Aggression = math.Max(s.target.Aggression, dropAggressionFloor)
			s.target.Organicity = math.Min(s.target.Organicity, dropOrganicityCeiling)
		case "breakdown":
			s.target.Aggression = math.Min(s.target.Aggression, breakdownAggressionCap)
			s.target.Organicity = math.Max(s.target.Organicity, breakdownOrganicFloor)
		}
	}

	return s.target
}

func ema(raw, smoothed float64) float64 {
	return targetSmoothingAlpha*raw + (1-targetSmoothingAlpha)*smoothed
}

func rawTarget(mctx domain.MusicalContext, metrics domain.AudioMetrics) domain.TargetGenome {
	bassBoost := (metrics.Bass/math.Max(0.1, metrics.Mid) - 1) * 0.5
	bassBoost = clamp(bassBoost, 0, 0.5)

	aggression := mctx.Energy*0.40 + metrics.KickIntensity*0.25 +
		metrics.Harshness*0.20 + bassBoost*0.30

	fillBonus := 0.0
	if mctx.IsFill {
		fillBonus = 0.3
	}
	chaos := mctx.Syncopation*0.35 + metrics.SpectralFlatness*0.30 +
		fillBonus + math.Abs(mctx.EnergyTrend)*0.15

	moodOrg, ok := domain.MoodOrganicity[mctx.Mood]
	if !ok {
		moodOrg = domain.MoodOrganicity["neutral"]
	}
	sectionOrg, ok := domain.SectionOrganicity[mctx.Section]
	if !ok {
		sectionOrg = domain.SectionOrganicity["unknown"]
	}
	organicity := moodOrg*0.30 + sectionOrg*0.30 +
		(1-metrics.Harshness)*0.25 + mctx.Groove*0.15

	rhythmConf := mctx.RhythmConfidence
	if rhythmConf == 0 {
		rhythmConf = 0.5
	}

	return domain.TargetGenome{
		Genome: domain.Genome{
			Aggression: clamp(aggression, 0, 1),
			Chaos:      clamp(chaos, 0, 1),
			Organicity: clamp(organicity, 0, 1),
		},
		Confidence: clamp(mctx.Confidence*rhythmConf, 0, 1),
	}
}

// Relevance scores one effect against a target, scaled by the diversity
// ladder. Unknown effect ids score neutral with a warning, never an error.
func (s *MatcherService) Relevance(id domain.EffectID, target domain.TargetGenome) float64 {
	genome, ok := domain.GenomeRegistry[id]
	if !ok {
		s.logger.Warn("relevance requested for unknown effect", zap.String("effect", string(id)))
		return neutralRelevance
	}

	dist := GenomeDistance(genome, target.Genome)
	rel := (1-dist/math.Sqrt(3))*target.Confidence + (1-target.Confidence)*0.5

	s.mu.Lock()
	factor := s.diversityFactorLocked(id)
	s.mu.Unlock()

	return clamp(rel*factor, 0, 1)
}

// GenomeDistance is the Euclidean distance between two genomes in the
// 3D unit cube. Maximum possible value is sqrt(3).
func GenomeDistance(a, b domain.Genome) float64 {
	da := a.Aggression - b.Aggression
	dc := a.Chaos - b.Chaos
	do := a.Organicity - b.Organicity
	return math.Sqrt(da*da + dc*dc + do*do)
}

// RecordUsage bumps an effect's selection count for the diversity ladder.
func (s *MatcherService) RecordUsage(id domain.EffectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetWindowIfStaleLocked()
	s.usage[id]++
}

func (s *MatcherService) diversityFactorLocked(id domain.EffectID) float64 {
	s.resetWindowIfStaleLocked()
	count := s.usage[id]
	if count >= len(diversityLadder) {
		count = len(diversityLadder) - 1
	}
	return diversityLadder[count]
}

func (s *MatcherService) resetWindowIfStaleLocked() {
	if time.Since(s.windowStart) >= usageWindow {
		s.usage = make(map[domain.EffectID]int)
		s.windowStart = time.Now()
	}
}

// RankEffects sorts effects by relevance against the target, descending.
// Category "" ranks the whole registry. When even the best candidate sits
// below the middle-void threshold, the category wildcard is forced to the
// front so the caller never receives a uniformly bad set.
func (s *MatcherService) RankEffects(target domain.TargetGenome, category domain.EffectCategory) []RankedEffect {
	var ids []domain.EffectID
	if category == "" {
		ids = domain.KnownEffects()
	} else {
		ids = domain.CategoryEffects[category]
	}

	ranked := make([]RankedEffect, 0, len(ids))
	for _, id := range ids {
		ranked = append(ranked, RankedEffect{Effect: id, Relevance: s.Relevance(id, target)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Relevance != ranked[j].Relevance {
			return ranked[i].Relevance > ranked[j].Relevance
		}
		return ranked[i].Effect < ranked[j].Effect
	})

	if len(ranked) > 0 && ranked[0].Relevance < middleVoidThreshold {
		wildcard, ok := domain.WildcardEffects[category]
		if !ok {
			wildcard = domain.DefaultWildcard
		}
		s.logger.Debug("middle void, forcing wildcard",
			zap.String("wildcard", string(wildcard)),
			zap.Float64("best_relevance", ranked[0].Relevance))
		ranked = promoteWildcard(ranked, wildcard)
	}

	return ranked
}

func promoteWildcard(ranked []RankedEffect, wildcard domain.EffectID) []RankedEffect {
	out := make([]RankedEffect, 0, len(ranked)+1)
	var entry RankedEffect
	found := false
	for _, r := range ranked {
		if r.Effect == wildcard {
			entry = r
			found = true
			continue
		}
		out = append(out, r)
	}
	if !found {
		entry = RankedEffect{Effect: wildcard, Relevance: middleVoidThreshold}
	}
	return append([]RankedEffect{entry}, out...)
}

// Target returns a snapshot of the current smoothed target.
func (s *MatcherService) Target() domain.TargetGenome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Reset restores the neutral target and clears the usage window.
func (s *MatcherService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = neutralTarget()
	s.usage = make(map[domain.EffectID]int)
	s.windowStart = time.Now()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
