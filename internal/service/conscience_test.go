package service

import (
	"context"
	"testing"
	"time"

	"github.com/luxsync/selene/internal/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestConscience() *ConscienceService {
	logger := zap.NewNop()
	s := NewConscienceService(NewCircuitBreaker(logger), NewConcurrencyGuard(), logger)
	s.random = func() float64 { return 0.5 } // no experimental allowance in tests
	return s
}

func safeCandidate(id domain.EffectID) domain.EffectCandidate {
	return domain.EffectCandidate{
		Effect:             id,
		Intensity:          0.8,
		Zones:              []string{"all"},
		Confidence:         0.9,
		ProjectedRelevance: 0.7,
		ProjectedRisk:      0.2,
	}
}

func technoSafetyContext() domain.AudienceSafetyContext {
	return domain.AudienceSafetyContext{
		CrowdSize:  200,
		Vibe:       "techno-club",
		Energy:     0.92,
		EnergyZone: domain.ZonePeak,
	}
}

func TestScoreCandidate_CleanCandidatePassesEverything(t *testing.T) {
	total, valueScores, violations := scoreCandidate(ethicalValues(), evalInput{
		candidate: safeCandidate("acid_sweep"),
		sctx:      technoSafetyContext(),
		now:       time.Now().UnixMilli(),
		random:    0.5,
	})

	assert.Empty(t, violations)
	assert.GreaterOrEqual(t, total, 0.5)
	assert.Len(t, valueScores, 7)
	assert.Equal(t, 1.0, valueScores["audience_safety"])
}

func TestScoreCandidate_EpilepsyStrobeZeroesTotal(t *testing.T) {
	sctx := technoSafetyContext()
	sctx.EpilepsyMode = true

	total, valueScores, violations := scoreCandidate(ethicalValues(), evalInput{
		candidate: safeCandidate("strobe_storm"),
		sctx:      sctx,
		now:       time.Now().UnixMilli(),
		random:    0.5,
	})

	// A critical failure zeroes its value and therefore the whole product.
	assert.Equal(t, 0.0, total)
	assert.Equal(t, 0.0, valueScores["audience_safety"])
	found := false
	for _, v := range violations {
		if v.Value == "audience_safety" && v.Rule == "epilepsy_protection" {
			found = true
			assert.Equal(t, domain.SeverityCritical, v.Severity)
		}
	}
	assert.True(t, found, "expected an epilepsy_protection violation")
}

func TestScoreCandidate_GenreHeresyZeroesVibe(t *testing.T) {
	total, valueScores, _ := scoreCandidate(ethicalValues(), evalInput{
		candidate: safeCandidate("solar_flare"),
		sctx:      technoSafetyContext(),
		now:       time.Now().UnixMilli(),
		random:    0.5,
	})
	assert.Equal(t, 0.0, valueScores["vibe_coherence"])
	assert.Equal(t, 0.0, total)
}

func TestScoreCandidate_TiredAudiencePenalty(t *testing.T) {
	sctx := technoSafetyContext()
	sctx.AudienceFatigue = 0.85

	candidate := safeCandidate("acid_sweep")
	candidate.Intensity = 0.9

	total, valueScores, violations := scoreCandidate(ethicalValues(), evalInput{
		candidate: candidate,
		sctx:      sctx,
		now:       time.Now().UnixMilli(),
		random:    0.5,
	})
	assert.Less(t, valueScores["audience_safety"], 1.0)
	assert.Less(t, total, 0.5)
	assert.NotEmpty(t, violations)
}

func TestScoreCandidate_StrobeLicenseRelaxesFatigue(t *testing.T) {
	sctx := technoSafetyContext()
	sctx.AudienceFatigue = 0.85
	sctx.Texture = &domain.TextureHints{Texture: domain.TextureHarsh, Clarity: 0.9}

	candidate := safeCandidate("strobe_storm")
	candidate.Intensity = 0.9

	_, valueScores, _ := scoreCandidate(ethicalValues(), evalInput{
		candidate: candidate,
		sctx:      sctx,
		now:       time.Now().UnixMilli(),
		random:    0.5,
	})
	// Licensed: the 0.85 fatigue hard fail becomes the soft penalty path,
	// and the license boost partly offsets it.
	assert.Greater(t, valueScores["audience_safety"], 0.5)
}

func TestScoreCandidate_LicenseNeverOverridesEpilepsy(t *testing.T) {
	sctx := technoSafetyContext()
	sctx.EpilepsyMode = true
	sctx.Texture = &domain.TextureHints{Texture: domain.TextureHarsh, Clarity: 0.95}

	total, _, _ := scoreCandidate(ethicalValues(), evalInput{
		candidate: safeCandidate("industrial_strobe"),
		sctx:      sctx,
		now:       time.Now().UnixMilli(),
		random:    0.5,
	})
	assert.Equal(t, 0.0, total)
}

func TestScoreCandidate_LuminosityBudgetExhausted(t *testing.T) {
	now := time.Now().UnixMilli()
	sctx := technoSafetyContext()
	// 40 firings at 0.7 inside the minute spend 28 of the 25-point budget.
	for i := 0; i < 40; i++ {
		sctx.RecentEffects = append(sctx.RecentEffects, domain.EffectHistoryEntry{
			Effect:    "sky_saw",
			Timestamp: now - int64(i)*1000,
			Intensity: 0.7,
		})
	}

	_, valueScores, violations := scoreCandidate(ethicalValues(), evalInput{
		candidate: safeCandidate("acid_sweep"),
		sctx:      sctx,
		now:       now,
		random:    0.5,
	})

	assert.InDelta(t, 0.4, valueScores["audience_safety"], 1e-9)
	found := false
	for _, v := range violations {
		if v.Rule == "luminosity_budget" {
			found = true
		}
	}
	assert.True(t, found, "expected a luminosity_budget violation")
}

func TestConscienceService_Evaluate_Approves(t *testing.T) {
	s := newTestConscience()

	verdict := s.Evaluate(context.Background(), []domain.EffectCandidate{safeCandidate("acid_sweep")}, technoSafetyContext())

	assert.Equal(t, domain.VerdictApproved, verdict.Verdict)
	assert.NotNil(t, verdict.ApprovedEffect)
	assert.Equal(t, domain.EffectID("acid_sweep"), verdict.ApprovedEffect.Effect)
	assert.GreaterOrEqual(t, verdict.EthicalScore, 0.5)
	assert.Empty(t, verdict.Violations)
	assert.Equal(t, domain.BreakerClosed, verdict.CircuitBreakerState)
}

func TestConscienceService_Evaluate_PicksBestCandidate(t *testing.T) {
	s := newTestConscience()
	sctx := technoSafetyContext()
	sctx.EpilepsyMode = true

	verdict := s.Evaluate(context.Background(), []domain.EffectCandidate{
		safeCandidate("strobe_storm"), // zeroed by epilepsy
		safeCandidate("acid_sweep"),
	}, sctx)

	assert.Equal(t, domain.VerdictApproved, verdict.Verdict)
	assert.Equal(t, domain.EffectID("acid_sweep"), verdict.ApprovedEffect.Effect)
	assert.False(t, verdict.ApprovedEffect.Effect.IsStrobe())
}

func TestConscienceService_Evaluate_DefersBorderline(t *testing.T) {
	s := newTestConscience()

	sctx := technoSafetyContext()
	sctx.Energy = 0.5 // beauty threshold applies outside peaks

	candidate := safeCandidate("acid_sweep")
	candidate.ProjectedRelevance = 0.2

	verdict := s.Evaluate(context.Background(), []domain.EffectCandidate{candidate}, sctx)

	assert.Equal(t, domain.VerdictDeferred, verdict.Verdict)
	assert.Nil(t, verdict.ApprovedEffect)
	assert.NotEmpty(t, verdict.Violations)
	assert.NotEmpty(t, verdict.Alternatives)
}

func TestConscienceService_Evaluate_RejectsAndSuggestsFallback(t *testing.T) {
	s := newTestConscience()
	sctx := technoSafetyContext()
	sctx.EpilepsyMode = true

	verdict := s.Evaluate(context.Background(), []domain.EffectCandidate{safeCandidate("strobe_storm")}, sctx)

	assert.Equal(t, domain.VerdictRejected, verdict.Verdict)

	var fallbacks []domain.EffectID
	for _, a := range verdict.Alternatives {
		fallbacks = append(fallbacks, a.Effect)
	}
	assert.Contains(t, fallbacks, domain.EffectID("acid_sweep"), "techno sets fall back to acid_sweep")
}

func TestConscienceService_Evaluate_EmptyCandidates(t *testing.T) {
	s := newTestConscience()
	verdict := s.Evaluate(context.Background(), nil, technoSafetyContext())
	assert.Equal(t, domain.VerdictRejected, verdict.Verdict)
}

func TestConscienceService_Evaluate_OpenBreakerFallsBack(t *testing.T) {
	s := newTestConscience()
	for i := 0; i < 3; i++ {
		s.breaker.RecordFailure()
	}

	verdict := s.Evaluate(context.Background(), []domain.EffectCandidate{safeCandidate("acid_sweep")}, technoSafetyContext())

	assert.Equal(t, domain.VerdictApproved, verdict.Verdict)
	assert.Equal(t, 0.5, verdict.EthicalScore)
	assert.Equal(t, 0.3, verdict.Confidence)
	assert.Equal(t, 0.3, verdict.ApprovedEffect.Confidence)
}

func TestConscienceService_Evaluate_GuardSaturationFallsBack(t *testing.T) {
	s := newTestConscience()

	// Hold every guard slot so the evaluation is rejected outright.
	release := make(chan struct{})
	for i := 0; i < defaultMaxConcurrent; i++ {
		go func() {
			_ = s.guard.Run(context.Background(), func(context.Context) error {
				<-release
				return nil
			})
		}()
	}
	deadline := time.Now().Add(time.Second)
	for s.guard.Active() < defaultMaxConcurrent {
		if time.Now().After(deadline) {
			t.Fatal("guard slots never filled")
		}
		time.Sleep(time.Millisecond)
	}
	defer close(release)

	verdict := s.Evaluate(context.Background(), []domain.EffectCandidate{safeCandidate("acid_sweep")}, technoSafetyContext())

	assert.Equal(t, domain.VerdictApproved, verdict.Verdict)
	assert.Equal(t, 0.5, verdict.EthicalScore)
	assert.Equal(t, 0.3, verdict.Confidence)
}

func TestConscienceService_Audit(t *testing.T) {
	s := newTestConscience()
	candidate := safeCandidate("acid_sweep")
	candidate.ProjectedRelevance = 0.8

	good := s.Audit(candidate, 0.9, domain.EffectOutcome{ActualBeauty: 0.75, AudienceEngagement: 0.8, CrowdReaction: "positive"})
	assert.True(t, good.Passes)
	assert.Equal(t, 1.0, good.Score)
	assert.False(t, good.ShouldLearn)

	bad := s.Audit(candidate, 0.9, domain.EffectOutcome{ActualBeauty: 0.3, GPUOverload: true, CrowdReaction: "negative"})
	assert.False(t, bad.Passes)
	assert.Len(t, bad.Violations, 3)
	assert.InDelta(t, 0.4, bad.Score, 1e-9)
	assert.True(t, bad.ShouldLearn)
}

func TestConscienceService_MaturityEvolution(t *testing.T) {
	s := newTestConscience()

	var unlocked []string
	for i := 0; i < 500; i++ {
		unlocked = append(unlocked, s.EvolveMaturity(domain.EffectOutcome{AudienceEngagement: 0.9})...)
	}

	m := s.Maturity()
	assert.Equal(t, 500, m.Experience)
	assert.InDelta(t, 0.6, m.Level, 1e-9)
	assert.Contains(t, unlocked, "complex_effects")
	assert.Contains(t, m.UnlockedFeatures, "complex_effects")
	assert.NotContains(t, m.UnlockedFeatures, "creative_risk")
}

func TestConscienceService_MaturityRegressesOnDisengagement(t *testing.T) {
	s := newTestConscience()

	for i := 0; i < 100; i++ {
		s.EvolveMaturity(domain.EffectOutcome{AudienceEngagement: 0.2})
	}

	m := s.Maturity()
	assert.InDelta(t, 0.48, m.Level, 1e-9)
	assert.Empty(t, m.UnlockedFeatures)
}
