package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/luxsync/selene/internal/domain"
	"go.uber.org/zap"
)

// Conscience decision thresholds
const (
	approvalThreshold = 0.5
	deferralFraction  = 0.7 // deferred above approvalThreshold * this

	// Degraded fallback verdict issued when the breaker is open or an
	// evaluation fails.
	fallbackScore      = 0.5
	fallbackConfidence = 0.3

	// Audit thresholds.
	auditBeautyErrorLimit = 0.3
	learnBeautyErrorLimit = 0.2

	// Maturity model.
	maturityAdjustEvery   = 100
	maturityStep          = 0.02
	maturityEngagementBar = 0.7
)

// maturityUnlocks are crossed exactly once each, in order.
var maturityUnlocks = []struct {
	threshold float64
	feature   string
}{
	{0.6, "complex_effects"},
	{0.8, "creative_risk"},
	{0.95, "autonomous_creation"},
}

// ConscienceService judges candidates against the fixed value system,
// protected by the circuit breaker and the concurrency guard so a wedged
// evaluation can never freeze the show.
type ConscienceService struct {
	values  []ethicalValue
	breaker *CircuitBreaker
	guard   *ConcurrencyGuard
	logger  *zap.Logger

	// random is injectable for deterministic tests.
	random func() float64

	mu               sync.Mutex
	maturityLevel    float64
	experience       int
	engagementAccum  float64
	engagementCount  int
	unlockedFeatures []string
}

func NewConscienceService(breaker *CircuitBreaker, guard *ConcurrencyGuard, logger *zap.Logger) *ConscienceService {
	return &ConscienceService{
		values:        ethicalValues(),
		breaker:       breaker,
		guard:         guard,
		logger:        logger,
		random:        rand.Float64,
		maturityLevel: 0.5,
	}
}

// Evaluate judges the candidates and returns a verdict. Degraded paths
// (open breaker, timeout, concurrency cap) return a fallback verdict
// instead of an error: the pipeline always gets a decision.
func (s *ConscienceService) Evaluate(ctx context.Context, candidates []domain.EffectCandidate, sctx domain.AudienceSafetyContext) *domain.EthicalVerdict {
	start := time.Now()

	if len(candidates) == 0 {
		return &domain.EthicalVerdict{
			Verdict:             domain.VerdictRejected,
			EthicalScore:        0,
			Reasoning:           "no candidates to evaluate",
			CircuitBreakerState: s.breaker.State(),
			EvaluationTimeMs:    time.Since(start).Milliseconds(),
		}
	}

	if !s.breaker.CanProceed() {
		s.logger.Warn("conscience degraded: circuit breaker open")
		return s.fallbackVerdict(candidates, "circuit breaker open", start)
	}

	var verdict *domain.EthicalVerdict
	err := s.guard.Run(ctx, func(context.Context) error {
		verdict = s.evaluateAll(candidates, sctx)
		return nil
	})
	if err != nil {
		s.breaker.RecordFailure()
		s.logger.Warn("conscience degraded", zap.Error(err))
		return s.fallbackVerdict(candidates, err.Error(), start)
	}
	s.breaker.RecordSuccess()

	verdict.CircuitBreakerState = s.breaker.State()
	verdict.EvaluationTimeMs = time.Since(start).Milliseconds()
	return verdict
}

func (s *ConscienceService) evaluateAll(candidates []domain.EffectCandidate, sctx domain.AudienceSafetyContext) *domain.EthicalVerdict {
	now := nowMs()

	type scored struct {
		candidate  domain.EffectCandidate
		score      float64
		scores     map[string]float64
		violations []domain.ValueViolation
	}

	results := make([]scored, 0, len(candidates))
	bestIdx := 0
	for i, c := range candidates {
		total, scores, violations := scoreCandidate(s.values, evalInput{
			candidate: c,
			sctx:      sctx,
			now:       now,
			random:    s.random(),
		})
		results = append(results, scored{c, total, scores, violations})
		if total > results[bestIdx].score {
			bestIdx = i
		}
	}

	best := results[bestIdx]
	verdict := &domain.EthicalVerdict{
		EthicalScore: best.score,
		ValueScores:  best.scores,
		Violations:   best.violations,
		Confidence:   best.candidate.Confidence,
	}

	switch {
	case best.score >= approvalThreshold && len(best.violations) == 0:
		verdict.Verdict = domain.VerdictApproved
		verdict.ApprovedEffect = &best.candidate
		verdict.Reasoning = fmt.Sprintf("%s approved with ethical score %.2f", best.candidate.Effect, best.score)
	case best.score >= approvalThreshold*deferralFraction:
		verdict.Verdict = domain.VerdictDeferred
		verdict.Reasoning = fmt.Sprintf("%s borderline at %.2f: %s", best.candidate.Effect, best.score, summarizeViolations(best.violations))
	default:
		verdict.Verdict = domain.VerdictRejected
		verdict.Reasoning = fmt.Sprintf("%s rejected at %.2f: %s", best.candidate.Effect, best.score, summarizeViolations(best.violations))
	}

	// Other candidates become alternatives, best first.
	for i, r := range results {
		if i == bestIdx {
			continue
		}
		verdict.Alternatives = append(verdict.Alternatives, r.candidate)
	}
	if verdict.Verdict != domain.VerdictApproved {
		verdict.Alternatives = append(verdict.Alternatives, s.suggestAlternatives(best.candidate, sctx.Vibe)...)
	}

	return verdict
}

// suggestAlternatives proposes a toned-down variant plus a per-vibe safe
// fallback when the best candidate could not be approved.
func (s *ConscienceService) suggestAlternatives(rejected domain.EffectCandidate, vibe string) []domain.EffectCandidate {
	alternatives := []domain.EffectCandidate{{
		Effect:     rejected.Effect,
		Intensity:  clamp(rejected.Intensity*0.7, 0, 1),
		Zones:      rejected.Zones,
		Reasoning:  "reduced intensity variant",
		Confidence: rejected.Confidence,
	}}

	v := strings.ToLower(vibe)
	switch {
	case strings.Contains(v, "techno"):
		alternatives = append(alternatives, domain.EffectCandidate{
			Effect: "acid_sweep", Intensity: 0.6, Zones: []string{"movers"},
			Reasoning: "safe techno fallback", Confidence: 0.6,
		})
	case strings.Contains(v, "latino"), strings.Contains(v, "latin"):
		alternatives = append(alternatives, domain.EffectCandidate{
			Effect: "salsa_fire", Intensity: 0.6, Zones: []string{"all"},
			Reasoning: "safe latino fallback", Confidence: 0.6,
		})
	default:
		alternatives = append(alternatives, domain.EffectCandidate{
			Effect: "tidal_wave", Intensity: 0.5, Zones: []string{"all"},
			Reasoning: "safe ambient fallback", Confidence: 0.6,
		})
	}
	return alternatives
}

func (s *ConscienceService) fallbackVerdict(candidates []domain.EffectCandidate, reason string, start time.Time) *domain.EthicalVerdict {
	first := candidates[0]
	first.Confidence = fallbackConfidence
	return &domain.EthicalVerdict{
		Verdict:             domain.VerdictApproved,
		ApprovedEffect:      &first,
		EthicalScore:        fallbackScore,
		Reasoning:           "degraded evaluation (" + reason + "): first candidate at neutral confidence",
		CircuitBreakerState: s.breaker.State(),
		EvaluationTimeMs:    time.Since(start).Milliseconds(),
		Confidence:          fallbackConfidence,
	}
}

// Audit compares an executed decision against its measured outcome.
func (s *ConscienceService) Audit(effect domain.EffectCandidate, ethicalScore float64, outcome domain.EffectOutcome) domain.AuditResult {
	var violations []domain.ValueViolation

	beautyError := abs(effect.ProjectedRelevance - outcome.ActualBeauty)
	if beautyError > auditBeautyErrorLimit {
		violations = append(violations, domain.ValueViolation{
			Value:       "aesthetic_beauty",
			Rule:        "projection_accuracy",
			Severity:    domain.SeverityMedium,
			Description: fmt.Sprintf("projected %.2f, measured %.2f", effect.ProjectedRelevance, outcome.ActualBeauty),
		})
	}
	if outcome.GPUOverload {
		violations = append(violations, domain.ValueViolation{
			Value:       "audience_safety",
			Rule:        "gpu_overload",
			Severity:    domain.SeverityHigh,
			Description: "execution overloaded the render pipeline",
		})
	}
	if outcome.CrowdReaction == "negative" && ethicalScore > 0.7 {
		violations = append(violations, domain.ValueViolation{
			Value:       "aesthetic_beauty",
			Rule:        "crowd_reaction",
			Severity:    domain.SeverityMedium,
			Description: "high-scored decision landed badly",
		})
	}

	return domain.AuditResult{
		Passes:      len(violations) == 0,
		Score:       clamp(1-0.2*float64(len(violations)), 0, 1),
		Violations:  violations,
		ShouldLearn: beautyError > learnBeautyErrorLimit || outcome.CrowdReaction == "negative",
	}
}

// EvolveMaturity nudges the trust level every 100 decisions based on
// whether the audience actually engaged, unlocking features at fixed
// thresholds exactly once each.
func (s *ConscienceService) EvolveMaturity(outcome domain.EffectOutcome) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.experience++
	s.engagementAccum += outcome.AudienceEngagement
	s.engagementCount++

	if s.experience%maturityAdjustEvery != 0 {
		return nil
	}

	avg := s.engagementAccum / float64(s.engagementCount)
	s.engagementAccum = 0
	s.engagementCount = 0

	if avg > maturityEngagementBar {
		s.maturityLevel = clamp(s.maturityLevel+maturityStep, 0, 1)
	} else {
		s.maturityLevel = clamp(s.maturityLevel-maturityStep, 0, 1)
	}

	var unlocked []string
	for _, u := range maturityUnlocks {
		if s.maturityLevel >= u.threshold && !containsString(s.unlockedFeatures, u.feature) {
			s.unlockedFeatures = append(s.unlockedFeatures, u.feature)
			unlocked = append(unlocked, u.feature)
		}
	}
	if len(unlocked) > 0 {
		s.logger.Info("maturity features unlocked",
			zap.Float64("level", s.maturityLevel),
			zap.Strings("features", unlocked))
	}
	return unlocked
}

// Maturity returns a snapshot of the maturity model.
func (s *ConscienceService) Maturity() domain.MaturityMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.MaturityMetrics{
		Level:            s.maturityLevel,
		Experience:       s.experience,
		UnlockedFeatures: append([]string(nil), s.unlockedFeatures...),
	}
}

// BreakerState exposes the breaker for health reporting.
func (s *ConscienceService) BreakerState() domain.BreakerState {
	return s.breaker.State()
}

func summarizeViolations(violations []domain.ValueViolation) string {
	if len(violations) == 0 {
		return "score below threshold"
	}
	parts := make([]string, 0, len(violations))
	for _, v := range violations {
		parts = append(parts, v.Value+"/"+v.Rule)
	}
	return strings.Join(parts, ", ")
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
