package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/luxsync/selene/internal/domain"
	"go.uber.org/zap"
)

// Pipeline tuning constants
const (
	// Mood-adjusted worthiness below this short-circuits the frame before
	// any simulation runs.
	worthinessGate = 0.55

	// Dream results are reused while the musical situation hasn't changed.
	dreamCacheTTL = 5 * time.Second

	// Hard deadline for one simulation pass. A slow dream aborts the frame
	// rather than stalling the show.
	defaultDreamTimeout = 3000 * time.Millisecond

	// At most this many candidates reach the conscience per frame.
	maxCandidatesPerFrame = 5

	// Recent decisions kept for outcome auditing.
	decisionRetention = 200

	// Effects hashed into the dream cache key.
	cacheKeyHistoryDepth = 5
)

// categoryCooldown is the base re-fire spacing per category, before the
// mood multiplier.
var categoryCooldown = map[domain.EffectCategory]time.Duration{
	domain.CategoryTechnoIndustrial:  10 * time.Second,
	domain.CategoryTechnoAtmospheric: 6 * time.Second,
	domain.CategoryLatinoOrganic:     8 * time.Second,
	domain.CategoryChillAmbient:      5 * time.Second,
}

const defaultCooldown = 8 * time.Second

// ErrUnknownDecision is returned when an outcome references a decision id
// that is no longer retained.
var ErrUnknownDecision = errors.New("unknown or expired decision id")

type cachedDream struct {
	result  domain.DreamResult
	expires time.Time
}

// IntegratorService runs the full decision pipeline for each frame:
// worthiness gate, dream simulation, ethical filtering, state bookkeeping,
// and optional persistence. It owns the mutable SystemState.
type IntegratorService struct {
	matcher    *MatcherService
	dreamer    *DreamerService
	conscience *ConscienceService
	mood       *MoodService
	tracker    *TrackerService
	auditor    *AuditorService
	journal    domain.DecisionJournal
	logger     *zap.Logger

	dreamTimeout time.Duration

	mu            sync.Mutex
	state         domain.SystemState
	dreamCache    map[string]cachedDream
	decisions     map[uuid.UUID]*domain.IntegrationDecision
	decisionOrder []uuid.UUID
	decisionCount int
}

func NewIntegratorService(
	matcher *MatcherService,
	dreamer *DreamerService,
	conscience *ConscienceService,
	mood *MoodService,
	tracker *TrackerService,
	auditor *AuditorService,
	journal domain.DecisionJournal,
	logger *zap.Logger,
) *IntegratorService {
	return &IntegratorService{
		matcher:      matcher,
		dreamer:      dreamer,
		conscience:   conscience,
		mood:         mood,
		tracker:      tracker,
		auditor:      auditor,
		journal:      journal,
		logger:       logger,
		dreamTimeout: defaultDreamTimeout,
		state: domain.SystemState{
			CurrentBeauty:   0.5,
			ActiveCooldowns: make(map[domain.EffectID]int64),
		},
		dreamCache: make(map[string]cachedDream),
		decisions:  make(map[uuid.UUID]*domain.IntegrationDecision),
	}
}

// UpdateTarget feeds one audio analysis frame into the matcher's smoothed
// target. Called by the audio feed between pipeline frames.
func (s *IntegratorService) UpdateTarget(mctx domain.MusicalContext, metrics domain.AudioMetrics) domain.TargetGenome {
	return s.matcher.DeriveTarget(mctx, metrics)
}

// SetDreamTimeout overrides the simulation deadline. Intended for tests.
func (s *IntegratorService) SetDreamTimeout(d time.Duration) {
	s.dreamTimeout = d
}

// Execute runs one full pipeline frame and always returns a decision.
func (s *IntegratorService) Execute(ctx context.Context, pctx domain.PipelineContext) *domain.IntegrationDecision {
	start := time.Now()
	decision := &domain.IntegrationDecision{
		ID:             uuid.New(),
		CircuitHealthy: s.conscience.breaker.Healthy(),
	}

	// Worthiness gate. Below the bar the frame costs almost nothing.
	if s.mood.ApplyThreshold(pctx.Worthiness) < worthinessGate {
		decision.DreamRecommendation = string(domain.RecommendAbort)
		decision.TotalTimeMs = time.Since(start).Milliseconds()
		s.retain(decision)
		return decision
	}

	sctx, err := s.buildSafetyContext(pctx)
	if err != nil {
		s.logger.Warn("safety context build failed, using emergency preset", zap.Error(err))
		sctx = domain.EmergencyContext(pctx.Vibe)
	}

	dreamStart := time.Now()
	dream, timedOut := s.dreamWithDeadline(ctx, pctx, sctx)
	decision.DreamTimeMs = time.Since(dreamStart).Milliseconds()
	if timedOut {
		decision.DreamRecommendation = string(domain.RecommendAbort)
		decision.FallbackUsed = true
		decision.TotalTimeMs = time.Since(start).Milliseconds()
		s.logger.Warn("dream deadline exceeded, frame aborted",
			zap.Duration("deadline", s.dreamTimeout))
		s.retain(decision)
		return decision
	}

	decision.DreamRecommendation = string(dream.Recommendation)
	if dream.Recommendation == domain.RecommendAbort || dream.BestScenario == nil {
		decision.TotalTimeMs = time.Since(start).Milliseconds()
		s.retain(decision)
		return decision
	}

	sctx.DreamWarnings = dream.Warnings
	candidates := s.collectCandidates(dream)

	filterStart := time.Now()
	verdict := s.conscience.Evaluate(ctx, candidates, sctx)
	decision.FilterTimeMs = time.Since(filterStart).Milliseconds()
	decision.EthicalVerdict = verdict
	decision.CircuitHealthy = verdict.CircuitBreakerState != domain.BreakerOpen
	decision.Alternatives = verdict.Alternatives

	if verdict.Verdict == domain.VerdictApproved && verdict.ApprovedEffect != nil {
		approved := *verdict.ApprovedEffect
		approved.Intensity = s.mood.ApplyIntensity(approved.Intensity)
		decision.Approved = true
		decision.Effect = &approved
		s.commitDecision(approved, pctx)
	}

	decision.TotalTimeMs = time.Since(start).Milliseconds()
	s.retain(decision)
	s.persist(ctx, decision, pctx)

	s.logger.Info("pipeline frame decided",
		zap.String("decision_id", decision.ID.String()),
		zap.Bool("approved", decision.Approved),
		zap.String("recommendation", decision.DreamRecommendation),
		zap.Int64("total_ms", decision.TotalTimeMs))
	return decision
}

func (s *IntegratorService) buildSafetyContext(pctx domain.PipelineContext) (domain.AudienceSafetyContext, error) {
	recent := pctx.RecentEffects
	if len(recent) == 0 {
		recent = s.tracker.RecentEffects(50)
	}

	now := time.Now().UnixMilli()
	fatigue := pctx.EstimatedFatigue
	if fatigue == 0 {
		fatigue = domain.EstimateFatigue(recent, now)
	}
	gpu := pctx.GPULoad
	if gpu == 0 {
		gpu = domain.EstimateGPULoad(recent)
	}

	builder := domain.NewSafetyContextBuilder().
		WithVibe(pctx.Vibe).
		WithEnergy(pctx.Energy).
		WithZScore(pctx.ZScore).
		WithCrowdSize(pctx.CrowdSize).
		WithEpilepsyMode(pctx.EpilepsyMode).
		WithFatigue(fatigue).
		WithAmbientLuminosity(pctx.MaxLuminosity).
		WithGPULoad(gpu).
		WithRecentEffects(recent).
		WithActiveCooldowns(s.remainingCooldowns(now))

	if pctx.EnergyZone != "" {
		builder.WithEnergyZone(pctx.EnergyZone)
	}
	if pctx.Texture != nil {
		builder.WithTexture(pctx.Texture.Texture, pctx.Texture.Clarity)
	}
	if s.auditor != nil {
		builder.WithBiasReport(s.auditor.Latest())
	}

	return builder.Build()
}

// dreamWithDeadline runs the simulation against the deadline and serves
// cache hits for unchanged musical situations.
func (s *IntegratorService) dreamWithDeadline(ctx context.Context, pctx domain.PipelineContext, sctx domain.AudienceSafetyContext) (domain.DreamResult, bool) {
	key := dreamCacheKey(pctx, sctx)

	s.mu.Lock()
	if cached, ok := s.dreamCache[key]; ok && time.Now().Before(cached.expires) {
		s.mu.Unlock()
		return cached.result, false
	}
	state := s.state
	s.mu.Unlock()

	prediction := domain.MusicalPrediction{
		PredictedEnergy: pctx.Energy,
		EnergyTrend:     pctx.EnergyTrend,
		PredictionType:  pctx.PredictionType,
		IsDropComing:    pctx.PredictionType == "drop",
	}

	dreamCtx, cancel := context.WithTimeout(ctx, s.dreamTimeout)
	defer cancel()

	done := make(chan domain.DreamResult, 1)
	go func() { done <- s.dreamer.DreamEffects(state, prediction, sctx) }()

	select {
	case result := <-done:
		s.mu.Lock()
		s.dreamCache[key] = cachedDream{result: result, expires: time.Now().Add(dreamCacheTTL)}
		s.pruneCacheLocked()
		s.mu.Unlock()
		return result, false
	case <-dreamCtx.Done():
		return domain.DreamResult{}, true
	}
}

// collectCandidates turns the ranked scenarios into the conscience's input
// set: best first, mood-blocked effects filtered, capped per frame.
func (s *IntegratorService) collectCandidates(dream domain.DreamResult) []domain.EffectCandidate {
	candidates := make([]domain.EffectCandidate, 0, maxCandidatesPerFrame)
	for _, scenario := range dream.Scenarios {
		if s.mood.IsBlocked(scenario.Effect.Effect) {
			continue
		}
		candidates = append(candidates, scenario.Effect)
		if len(candidates) >= maxCandidatesPerFrame {
			break
		}
	}
	return candidates
}

// commitDecision applies an approved effect to the system state and the
// bias tracker.
func (s *IntegratorService) commitDecision(approved domain.EffectCandidate, pctx domain.PipelineContext) {
	now := time.Now().UnixMilli()
	cooldown := s.mood.ApplyCooldown(cooldownFor(approved.Effect))

	s.mu.Lock()
	s.pruneCooldownsLocked(now)
	s.state.LastEffect = approved.Effect
	s.state.LastEffectTime = now
	s.state.CurrentBeauty = approved.ProjectedRelevance
	s.state.Energy = pctx.Energy
	s.state.Tempo = pctx.Tempo
	s.state.Vibe = pctx.Vibe
	s.state.ActiveCooldowns[approved.Effect] = now + cooldown.Milliseconds()
	s.decisionCount++
	s.mu.Unlock()

	s.matcher.RecordUsage(approved.Effect)
	s.tracker.RecordEffect(domain.EffectHistoryEntry{
		Effect:    approved.Effect,
		Timestamp: now,
		Intensity: approved.Intensity,
		Zones:     approved.Zones,
		Success:   true,
		Vibe:      pctx.Vibe,
	})
}

func (s *IntegratorService) persist(ctx context.Context, decision *domain.IntegrationDecision, pctx domain.PipelineContext) {
	if s.journal == nil || decision.EthicalVerdict == nil {
		return
	}

	rec := &domain.DecisionRecord{
		ID:           decision.ID,
		Verdict:      decision.EthicalVerdict.Verdict,
		EthicalScore: decision.EthicalVerdict.EthicalScore,
		Vibe:         pctx.Vibe,
		Energy:       pctx.Energy,
		Mood:         s.mood.Current(),
		TotalMs:      decision.TotalTimeMs,
		Target:       s.matcher.Target().Genome,
		CreatedAt:    time.Now(),
	}
	if decision.Effect != nil {
		rec.Effect = decision.Effect.Effect
		rec.Intensity = decision.Effect.Intensity
	}

	// Persistence failures never fail the frame.
	if err := s.journal.Record(ctx, rec); err != nil {
		s.logger.Warn("decision journal write failed", zap.Error(err))
	}
}

// AuditExecution reconciles a retained decision against its measured
// outcome and feeds the maturity model.
func (s *IntegratorService) AuditExecution(id uuid.UUID, outcome domain.EffectOutcome) (domain.AuditResult, error) {
	s.mu.Lock()
	decision, ok := s.decisions[id]
	s.mu.Unlock()
	if !ok {
		return domain.AuditResult{}, ErrUnknownDecision
	}
	if decision.Effect == nil || decision.EthicalVerdict == nil {
		return domain.AuditResult{}, fmt.Errorf("decision %s was not an approved effect", id)
	}

	audit := s.conscience.Audit(*decision.Effect, decision.EthicalVerdict.EthicalScore, outcome)
	unlocked := s.conscience.EvolveMaturity(outcome)

	s.mu.Lock()
	s.state.CurrentBeauty = outcome.ActualBeauty
	s.mu.Unlock()

	if !audit.Passes {
		s.logger.Warn("execution audit failed",
			zap.String("decision_id", id.String()),
			zap.Float64("audit_score", audit.Score),
			zap.Int("violations", len(audit.Violations)))
	}
	if len(unlocked) > 0 {
		s.logger.Info("pipeline maturity advanced", zap.Strings("unlocked", unlocked))
	}
	return audit, nil
}

// State returns a snapshot of the current system state.
func (s *IntegratorService) State() domain.SystemState {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state
	snapshot.ActiveCooldowns = make(map[domain.EffectID]int64, len(s.state.ActiveCooldowns))
	for id, until := range s.state.ActiveCooldowns {
		snapshot.ActiveCooldowns[id] = until
	}
	return snapshot
}

// Health aggregates component health for the health endpoint.
func (s *IntegratorService) Health() domain.PipelineHealth {
	maturity := s.conscience.Maturity()

	s.mu.Lock()
	decisions := s.decisionCount
	cacheSize := len(s.dreamCache)
	s.mu.Unlock()

	breakerState := s.conscience.BreakerState()
	return domain.PipelineHealth{
		CircuitBreakerState: breakerState,
		CircuitHealthy:      breakerState != domain.BreakerOpen,
		MaturityLevel:       maturity.Level,
		MaturityExperience:  maturity.Experience,
		UnlockedFeatures:    maturity.UnlockedFeatures,
		PipelineDecisions:   decisions,
		CacheSize:           cacheSize,
	}
}

func (s *IntegratorService) retain(decision *domain.IntegrationDecision) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.decisions[decision.ID] = decision
	s.decisionOrder = append(s.decisionOrder, decision.ID)
	for len(s.decisionOrder) > decisionRetention {
		delete(s.decisions, s.decisionOrder[0])
		s.decisionOrder = s.decisionOrder[1:]
	}
}

func (s *IntegratorService) remainingCooldowns(now int64) map[domain.EffectID]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneCooldownsLocked(now)
	remaining := make(map[domain.EffectID]int64, len(s.state.ActiveCooldowns))
	for id, until := range s.state.ActiveCooldowns {
		remaining[id] = until - now
	}
	return remaining
}

func (s *IntegratorService) pruneCooldownsLocked(now int64) {
	for id, until := range s.state.ActiveCooldowns {
		if until <= now {
			delete(s.state.ActiveCooldowns, id)
		}
	}
}

func (s *IntegratorService) pruneCacheLocked() {
	now := time.Now()
	for key, cached := range s.dreamCache {
		if now.After(cached.expires) {
			delete(s.dreamCache, key)
		}
	}
}

// dreamCacheKey buckets the musical situation coarsely enough that nearby
// frames hit the cache but real changes miss it.
func dreamCacheKey(pctx domain.PipelineContext, sctx domain.AudienceSafetyContext) string {
	depth := len(sctx.RecentEffects)
	if depth > cacheKeyHistoryDepth {
		depth = cacheKeyHistoryDepth
	}
	recent := make([]string, 0, depth)
	for _, e := range sctx.RecentEffects[len(sctx.RecentEffects)-depth:] {
		recent = append(recent, string(e.Effect))
	}

	ep := 0
	if sctx.EpilepsyMode {
		ep = 1
	}
	return fmt.Sprintf("%s:e%d:w%.1f:g%d:ep%d:h%s",
		pctx.Vibe,
		int(sctx.Energy*10),
		pctx.Worthiness,
		int(sctx.GPULoad*5),
		ep,
		strings.Join(recent, ","))
}

func cooldownFor(id domain.EffectID) time.Duration {
	if d, ok := categoryCooldown[domain.CategoryOf(id)]; ok {
		return d
	}
	return defaultCooldown
}
