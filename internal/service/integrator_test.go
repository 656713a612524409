package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/luxsync/selene/internal/domain"
	"go.uber.org/zap"
)

func newTestIntegrator(mood domain.MoodID) (*IntegratorService, *MatcherService) {
	logger := zap.NewNop()
	matcher := NewMatcherService(logger)
	moodSvc := NewMoodService(mood, logger)
	tracker := NewTrackerService(logger)
	dreamer := NewDreamerService(matcher, moodSvc, logger)
	conscience := NewConscienceService(NewCircuitBreaker(logger), NewConcurrencyGuard(), logger)
	conscience.random = func() float64 { return 0.5 }
	return NewIntegratorService(matcher, dreamer, conscience, moodSvc, tracker, nil, nil, logger), matcher
}

func technoFrame() domain.PipelineContext {
	return domain.PipelineContext{
		Vibe:       "techno-club",
		Energy:     0.92,
		Tempo:      138,
		Worthiness: 0.85,
		CrowdSize:  200,
	}
}

func TestIntegratorService_WorthinessGateShortCircuits(t *testing.T) {
	it, _ := newTestIntegrator(domain.MoodBalanced)

	pctx := technoFrame()
	pctx.Worthiness = 0.45 // 0.45 / 1.2 sits under the gate

	decision := it.Execute(context.Background(), pctx)
	if decision.Approved {
		t.Fatal("a weak moment must not be approved")
	}
	if decision.DreamRecommendation != string(domain.RecommendAbort) {
		t.Fatalf("expected abort, got %s", decision.DreamRecommendation)
	}
	if decision.EthicalVerdict != nil {
		t.Fatal("gated frame must never reach the conscience")
	}

	// The gated decision is still retained, but carries no effect to audit.
	_, err := it.AuditExecution(decision.ID, domain.EffectOutcome{})
	if err == nil || errors.Is(err, ErrUnknownDecision) {
		t.Fatalf("expected a not-an-effect error, got %v", err)
	}
}

func TestIntegratorService_ApprovesTechnoPeakFrame(t *testing.T) {
	it, _ := newTestIntegrator(domain.MoodBalanced)

	decision := it.Execute(context.Background(), technoFrame())
	if !decision.Approved || decision.Effect == nil {
		t.Fatalf("expected an approved effect, got %+v", decision)
	}
	cat := domain.CategoryOf(decision.Effect.Effect)
	if cat != domain.CategoryTechnoIndustrial && cat != domain.CategoryTechnoAtmospheric {
		t.Fatalf("%s is not a techno effect", decision.Effect.Effect)
	}
	if decision.EthicalVerdict == nil || decision.EthicalVerdict.Verdict != domain.VerdictApproved {
		t.Fatal("approved decision must carry an approved verdict")
	}
	if decision.EthicalVerdict.EthicalScore < 0.5 {
		t.Fatalf("approved score below threshold: %.2f", decision.EthicalVerdict.EthicalScore)
	}
	if decision.TotalTimeMs >= 3000 {
		t.Fatalf("frame took %dms, deadline is 3000", decision.TotalTimeMs)
	}

	state := it.State()
	if state.LastEffect != decision.Effect.Effect {
		t.Fatalf("state not committed: last effect %s", state.LastEffect)
	}
	if _, ok := state.ActiveCooldowns[decision.Effect.Effect]; !ok {
		t.Fatal("approved effect must start its cooldown")
	}

	health := it.Health()
	if health.PipelineDecisions != 1 {
		t.Fatalf("expected 1 committed decision, got %d", health.PipelineDecisions)
	}
	if health.CacheSize < 1 {
		t.Fatal("dream result should be cached after the frame")
	}
}

func TestIntegratorService_EpilepsyModeNeverApprovesStrobe(t *testing.T) {
	it, _ := newTestIntegrator(domain.MoodBalanced)

	pctx := technoFrame()
	pctx.EpilepsyMode = true

	decision := it.Execute(context.Background(), pctx)
	if !decision.Approved || decision.Effect == nil {
		t.Fatal("epilepsy mode still has safe techno effects to approve")
	}
	if decision.Effect.Effect.IsStrobe() {
		t.Fatalf("%s approved with epilepsy mode active", decision.Effect.Effect)
	}
}

func TestIntegratorService_CalmMoodCapsIntensity(t *testing.T) {
	it, _ := newTestIntegrator(domain.MoodCalm)

	pctx := domain.PipelineContext{
		Vibe:       "chill-lounge",
		Energy:     0.45,
		Worthiness: 0.9, // 0.9 / 1.3 clears the gate
		CrowdSize:  80,
	}

	decision := it.Execute(context.Background(), pctx)
	if !decision.Approved || decision.Effect == nil {
		t.Fatalf("expected an approved chill effect, got %+v", decision)
	}
	if decision.Effect.Intensity > 0.6 {
		t.Fatalf("calm mood must cap intensity at 0.6, got %.2f", decision.Effect.Intensity)
	}
}

func TestIntegratorService_DreamDeadlineAbortsFrame(t *testing.T) {
	it, _ := newTestIntegrator(domain.MoodBalanced)
	it.SetDreamTimeout(time.Nanosecond)

	decision := it.Execute(context.Background(), technoFrame())
	if decision.Approved {
		t.Fatal("a timed-out dream must not approve anything")
	}
	if !decision.FallbackUsed {
		t.Fatal("timeout path must mark the fallback")
	}
	if decision.DreamRecommendation != string(domain.RecommendAbort) {
		t.Fatalf("expected abort, got %s", decision.DreamRecommendation)
	}
}

func TestIntegratorService_DreamCacheReuse(t *testing.T) {
	it, _ := newTestIntegrator(domain.MoodBalanced)

	// Fixed history pins the cache key across both frames.
	old := time.Now().Add(-10*time.Minute).UnixMilli()
	pctx := technoFrame()
	pctx.RecentEffects = []domain.EffectHistoryEntry{
		{Effect: "acid_sweep", Timestamp: old, Intensity: 0.6},
		{Effect: "sky_saw", Timestamp: old + 1000, Intensity: 0.6},
	}

	first := it.Execute(context.Background(), pctx)
	second := it.Execute(context.Background(), pctx)

	if !first.Approved || !second.Approved {
		t.Fatal("both frames should approve")
	}
	if first.Effect.Effect != second.Effect.Effect {
		t.Fatalf("cached dream should repeat the pick: %s vs %s", first.Effect.Effect, second.Effect.Effect)
	}
	if it.Health().CacheSize != 1 {
		t.Fatalf("identical frames must share one cache entry, got %d", it.Health().CacheSize)
	}
}

func TestIntegratorService_AuditExecution(t *testing.T) {
	it, _ := newTestIntegrator(domain.MoodBalanced)

	if _, err := it.AuditExecution(uuid.New(), domain.EffectOutcome{}); !errors.Is(err, ErrUnknownDecision) {
		t.Fatalf("expected ErrUnknownDecision, got %v", err)
	}

	decision := it.Execute(context.Background(), technoFrame())
	if !decision.Approved {
		t.Fatal("expected an approved decision to audit")
	}

	audit, err := it.AuditExecution(decision.ID, domain.EffectOutcome{
		ActualBeauty:       0.6,
		AudienceEngagement: 0.8,
		CrowdReaction:      "positive",
	})
	if err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	if !audit.Passes {
		t.Fatalf("a close outcome should pass the audit: %+v", audit)
	}
	if got := it.State().CurrentBeauty; got != 0.6 {
		t.Fatalf("audit must fold measured beauty into the state, got %.2f", got)
	}
}

func TestIntegratorService_UpdateTargetFeedsMatcher(t *testing.T) {
	it, matcher := newTestIntegrator(domain.MoodBalanced)

	target := it.UpdateTarget(domain.MusicalContext{
		Energy:            0.95,
		Section:           "drop",
		SectionConfidence: 0.9,
		Confidence:        0.9,
	}, domain.AudioMetrics{KickIntensity: 0.9, Harshness: 0.8})

	if target.Aggression < 0.8 {
		t.Fatalf("confident drop should snap aggression to at least 0.8, got %.2f", target.Aggression)
	}
	if matcher.Target() != target {
		t.Fatal("returned target must match the matcher's persisted target")
	}
}
