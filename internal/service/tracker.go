package service

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/luxsync/selene/internal/domain"
	"go.uber.org/zap"
)

// Tracker tuning constants
const (
	defaultHistorySize = 200
	defaultBiasWindow  = 100

	// Minimum samples before an analysis is meaningful.
	minBiasSamples = 10

	// Usage share boundaries.
	abuseThreshold   = 0.5  // above this share of the window is abuse
	neglectThreshold = 0.05 // below this share (but used) is neglect

	// Temporal pattern detection.
	temporalPatternMin  = 3               // occurrences needed to call it a pattern
	temporalToleranceMs = 500.0           // interval cluster tolerance
	patternReportFloor  = 0.7             // confidence needed to report the bias
	forgottenLookback   = 50              // entries an effect must miss to be forgotten
	intensityHabitVar   = 0.01            // variance below this is a habit
	intensityHabitMin   = 5               // samples needed to judge a habit
	zonePreferenceShare = 0.8             // share of one zone set that flags preference
	vibeLockMinUses     = 10              // uses in a single vibe that flag a lock
)

// TrackerService keeps the rolling history of fired effects and audits it
// for biases. It only informs; it never blocks a decision itself.
type TrackerService struct {
	logger *zap.Logger

	mu      sync.Mutex
	history []domain.EffectHistoryEntry
	maxSize int
}

func NewTrackerService(logger *zap.Logger) *TrackerService {
	return &TrackerService{
		logger:  logger,
		maxSize: defaultHistorySize,
	}
}

// RecordEffect appends one fired effect, evicting the oldest entry once
// the ring is full.
func (s *TrackerService) RecordEffect(entry domain.EffectHistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, entry)
	if len(s.history) > s.maxSize {
		s.history = s.history[len(s.history)-s.maxSize:]
	}

	if len(s.history)%10 == 0 {
		recent := s.history[len(s.history)-10:]
		unique := make(map[domain.EffectID]struct{}, 10)
		for _, e := range recent {
			unique[e.Effect] = struct{}{}
		}
		s.logger.Debug("effect history checkpoint",
			zap.Int("unique_in_last_10", len(unique)),
			zap.Int("history_size", len(s.history)))
	}
}

// RecentEffects returns a copy of the trailing n entries.
func (s *TrackerService) RecentEffects(n int) []domain.EffectHistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.history) {
		n = len(s.history)
	}
	out := make([]domain.EffectHistoryEntry, n)
	copy(out, s.history[len(s.history)-n:])
	return out
}

// HistorySize returns the number of tracked entries.
func (s *TrackerService) HistorySize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Clear drops the history. Intended for tests.
func (s *TrackerService) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// AnalyzeBiases audits the trailing window for repetition patterns.
// windowSize <= 0 uses the default window.
func (s *TrackerService) AnalyzeBiases(windowSize int) *domain.BiasAnalysis {
	if windowSize <= 0 {
		windowSize = defaultBiasWindow
	}

	s.mu.Lock()
	window := make([]domain.EffectHistoryEntry, 0, windowSize)
	start := 0
	if len(s.history) > windowSize {
		start = len(s.history) - windowSize
	}
	window = append(window, s.history[start:]...)
	forgotten := s.forgottenLocked()
	s.mu.Unlock()

	if len(window) < minBiasSamples {
		return &domain.BiasAnalysis{
			DiversityScore:   1.0,
			Timestamp:        time.Now().UnixMilli(),
			MostUsedEffect:   "none",
			LeastUsedEffect:  "none",
			ForgottenEffects: []domain.EffectID{},
			Warnings:         []string{"insufficient data for bias analysis"},
		}
	}

	var biases []domain.Bias
	stats := usageStats(window)
	biases = append(biases, detectAbuse(stats)...)
	biases = append(biases, detectNeglect(stats)...)
	biases = append(biases, detectTemporalPatterns(window)...)
	biases = append(biases, detectVibeLock(window)...)
	biases = append(biases, detectIntensityHabit(window)...)
	biases = append(biases, detectZonePreference(window)...)

	diversity := diversityFromStats(stats)
	hasCritical := false
	for _, b := range biases {
		if b.Severity == domain.SeverityCritical {
			hasCritical = true
			break
		}
	}

	analysis := &domain.BiasAnalysis{
		Biases:           biases,
		HasCriticalBias:  hasCritical,
		DiversityScore:   diversity,
		SampleSize:       len(window),
		Timestamp:        time.Now().UnixMilli(),
		MostUsedEffect:   stats[0].Effect,
		LeastUsedEffect:  stats[len(stats)-1].Effect,
		ForgottenEffects: forgotten,
		Warnings:         biasWarnings(biases, diversity),
		Recommendations:  biasRecommendations(biases, forgotten),
	}
	return analysis
}

// Diversity computes the normalized Shannon entropy of the last 50 firings.
func (s *TrackerService) Diversity() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) < minBiasSamples {
		return 1.0
	}
	start := 0
	if len(s.history) > 50 {
		start = len(s.history) - 50
	}
	return diversityFromStats(usageStats(s.history[start:]))
}

func (s *TrackerService) forgottenLocked() []domain.EffectID {
	start := 0
	if len(s.history) > forgottenLookback {
		start = len(s.history) - forgottenLookback
	}
	used := make(map[domain.EffectID]struct{})
	for _, e := range s.history[start:] {
		used[e.Effect] = struct{}{}
	}

	forgotten := make([]domain.EffectID, 0)
	for _, id := range domain.KnownEffects() {
		if _, ok := used[id]; !ok {
			forgotten = append(forgotten, id)
		}
	}
	sort.Slice(forgotten, func(i, j int) bool { return forgotten[i] < forgotten[j] })
	return forgotten
}

func usageStats(window []domain.EffectHistoryEntry) []domain.EffectUsageStats {
	type acc struct {
		count       int
		intensities []float64
		lastUsed    int64
		vibes       map[string]struct{}
	}
	byEffect := make(map[domain.EffectID]*acc)
	for _, e := range window {
		a, ok := byEffect[e.Effect]
		if !ok {
			a = &acc{vibes: make(map[string]struct{})}
			byEffect[e.Effect] = a
		}
		a.count++
		a.intensities = append(a.intensities, e.Intensity)
		if e.Timestamp > a.lastUsed {
			a.lastUsed = e.Timestamp
		}
		a.vibes[e.Vibe] = struct{}{}
	}

	stats := make([]domain.EffectUsageStats, 0, len(byEffect))
	for id, a := range byEffect {
		sum := 0.0
		for _, v := range a.intensities {
			sum += v
		}
		vibes := make([]string, 0, len(a.vibes))
		for v := range a.vibes {
			vibes = append(vibes, v)
		}
		sort.Strings(vibes)
		stats = append(stats, domain.EffectUsageStats{
			Effect:       id,
			Count:        a.count,
			Percentage:   float64(a.count) / float64(len(window)),
			AvgIntensity: sum / float64(a.count),
			LastUsed:     a.lastUsed,
			Vibes:        vibes,
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Effect < stats[j].Effect
	})
	return stats
}

func detectAbuse(stats []domain.EffectUsageStats) []domain.Bias {
	var biases []domain.Bias
	for _, st := range stats {
		if st.Percentage <= abuseThreshold {
			continue
		}
		severity := domain.SeverityMedium
		if st.Percentage > 0.7 {
			severity = domain.SeverityCritical
		} else if st.Percentage > 0.6 {
			severity = domain.SeverityHigh
		}
		biases = append(biases, domain.Bias{
			Type:           domain.BiasEffectAbuse,
			Severity:       severity,
			Description:    fmt.Sprintf("%s overused: %.1f%% of decisions", st.Effect, st.Percentage*100),
			Recommendation: fmt.Sprintf("reduce %s usage, consider alternatives", st.Effect),
		})
	}
	return biases
}

func detectNeglect(stats []domain.EffectUsageStats) []domain.Bias {
	var biases []domain.Bias
	for _, st := range stats {
		if st.Percentage < neglectThreshold && st.Count > 0 {
			biases = append(biases, domain.Bias{
				Type:           domain.BiasEffectNeglect,
				Severity:       domain.SeverityLow,
				Description:    fmt.Sprintf("%s rarely used: %.1f%% of decisions", st.Effect, st.Percentage*100),
				Recommendation: fmt.Sprintf("consider using %s more often", st.Effect),
			})
		}
	}
	return biases
}

func detectTemporalPatterns(window []domain.EffectHistoryEntry) []domain.Bias {
	var biases []domain.Bias
	for _, p := range FindTemporalPatterns(window) {
		if p.Confidence <= patternReportFloor {
			continue
		}
		severity := domain.SeverityMedium
		if p.Confidence > 0.9 {
			severity = domain.SeverityHigh
		}
		biases = append(biases, domain.Bias{
			Type:           domain.BiasTemporalPattern,
			Severity:       severity,
			Description:    fmt.Sprintf("%s fired every ~%.1fs (%d times)", p.Effect, p.IntervalMs/1000, p.Occurrences),
			Recommendation: fmt.Sprintf("break the %s pattern, vary timing", p.Effect),
		})
	}
	return biases
}

// FindTemporalPatterns clusters inter-firing intervals per effect and
// reports clusters with enough repeats to look mechanical.
func FindTemporalPatterns(window []domain.EffectHistoryEntry) []domain.TemporalPattern {
	byEffect := make(map[domain.EffectID][]int64)
	for _, e := range window {
		byEffect[e.Effect] = append(byEffect[e.Effect], e.Timestamp)
	}

	var patterns []domain.TemporalPattern
	for id, timestamps := range byEffect {
		if len(timestamps) < temporalPatternMin {
			continue
		}
		sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })

		intervals := make([]float64, 0, len(timestamps)-1)
		for i := 1; i < len(timestamps); i++ {
			intervals = append(intervals, float64(timestamps[i]-timestamps[i-1]))
		}

		for _, cluster := range clusterIntervals(intervals, temporalToleranceMs) {
			if cluster.count < temporalPatternMin {
				continue
			}
			patterns = append(patterns, domain.TemporalPattern{
				Effect:        id,
				IntervalMs:    cluster.avg,
				Occurrences:   cluster.count,
				Confidence:    math.Min(1.0, float64(cluster.count)/10),
				LastDetection: timestamps[len(timestamps)-1],
			})
		}
	}
	sort.Slice(patterns, func(i, j int) bool { return patterns[i].Effect < patterns[j].Effect })
	return patterns
}

type intervalCluster struct {
	avg   float64
	count int
}

func clusterIntervals(intervals []float64, tolerance float64) []intervalCluster {
	var groups [][]float64
	for _, interval := range intervals {
		placed := false
		for i, g := range groups {
			sum := 0.0
			for _, v := range g {
				sum += v
			}
			if math.Abs(interval-sum/float64(len(g))) <= tolerance {
				groups[i] = append(g, interval)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []float64{interval})
		}
	}

	var clusters []intervalCluster
	for _, g := range groups {
		if len(g) < temporalPatternMin {
			continue
		}
		sum := 0.0
		for _, v := range g {
			sum += v
		}
		clusters = append(clusters, intervalCluster{avg: sum / float64(len(g)), count: len(g)})
	}
	return clusters
}

func detectVibeLock(window []domain.EffectHistoryEntry) []domain.Bias {
	uses := make(map[domain.EffectID]int)
	vibes := make(map[domain.EffectID]map[string]struct{})
	for _, e := range window {
		uses[e.Effect]++
		if vibes[e.Effect] == nil {
			vibes[e.Effect] = make(map[string]struct{})
		}
		vibes[e.Effect][e.Vibe] = struct{}{}
	}

	var ids []domain.EffectID
	for id := range uses {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var biases []domain.Bias
	for _, id := range ids {
		if len(vibes[id]) == 1 && uses[id] > vibeLockMinUses {
			var only string
			for v := range vibes[id] {
				only = v
			}
			biases = append(biases, domain.Bias{
				Type:           domain.BiasVibeLock,
				Severity:       domain.SeverityLow,
				Description:    fmt.Sprintf("%s only used in vibe %s", id, only),
				Recommendation: fmt.Sprintf("consider whether %s could work in other vibes", id),
			})
		}
	}
	return biases
}

func detectIntensityHabit(window []domain.EffectHistoryEntry) []domain.Bias {
	byEffect := make(map[domain.EffectID][]float64)
	for _, e := range window {
		byEffect[e.Effect] = append(byEffect[e.Effect], e.Intensity)
	}

	var ids []domain.EffectID
	for id := range byEffect {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var biases []domain.Bias
	for _, id := range ids {
		intensities := byEffect[id]
		if len(intensities) < intensityHabitMin {
			continue
		}
		if variance(intensities) < intensityHabitVar {
			biases = append(biases, domain.Bias{
				Type:           domain.BiasIntensityHabit,
				Severity:       domain.SeverityLow,
				Description:    fmt.Sprintf("%s always fired at ~%.2f intensity", id, intensities[0]),
				Recommendation: fmt.Sprintf("vary %s intensity with context", id),
			})
		}
	}
	return biases
}

func detectZonePreference(window []domain.EffectHistoryEntry) []domain.Bias {
	zoneUse := make(map[string]int)
	for _, e := range window {
		zones := append([]string(nil), e.Zones...)
		sort.Strings(zones)
		key := "all"
		if len(zones) > 0 {
			key = zones[0]
			for _, z := range zones[1:] {
				key += "," + z
			}
		}
		zoneUse[key]++
	}

	var keys []string
	for k := range zoneUse {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var biases []domain.Bias
	for _, key := range keys {
		share := float64(zoneUse[key]) / float64(len(window))
		if share > zonePreferenceShare {
			biases = append(biases, domain.Bias{
				Type:           domain.BiasZonePreference,
				Severity:       domain.SeverityMedium,
				Description:    fmt.Sprintf("zone preference: %s at %.1f%%", key, share*100),
				Recommendation: "vary zone targets",
			})
		}
	}
	return biases
}

func diversityFromStats(stats []domain.EffectUsageStats) float64 {
	if len(stats) == 0 {
		return 1.0
	}
	total := 0
	for _, st := range stats {
		total += st.Count
	}

	entropy := 0.0
	for _, st := range stats {
		p := float64(st.Count) / float64(total)
		if p > 0 {
			entropy -= p * math.Log2(p)
		}
	}

	maxEntropy := math.Log2(float64(len(domain.GenomeRegistry)))
	if maxEntropy <= 0 {
		return 1.0
	}
	return entropy / maxEntropy
}

func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	sum := 0.0
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(values))
}

func biasWarnings(biases []domain.Bias, diversity float64) []string {
	var warnings []string
	critical := 0
	abuse := 0
	temporal := 0
	for _, b := range biases {
		if b.Severity == domain.SeverityCritical {
			critical++
		}
		switch b.Type {
		case domain.BiasEffectAbuse:
			abuse++
		case domain.BiasTemporalPattern:
			temporal++
		}
	}
	if critical > 0 {
		warnings = append(warnings, fmt.Sprintf("%d critical biases detected", critical))
	}
	if diversity < 0.5 {
		warnings = append(warnings, fmt.Sprintf("low diversity: %.1f%%", diversity*100))
	}
	if abuse > 0 {
		warnings = append(warnings, fmt.Sprintf("%d effects overused", abuse))
	}
	if temporal > 0 {
		warnings = append(warnings, fmt.Sprintf("%d predictable firing rhythms", temporal))
	}
	return warnings
}

func biasRecommendations(biases []domain.Bias, forgotten []domain.EffectID) []string {
	var recs []string
	if len(forgotten) > 0 {
		limit := len(forgotten)
		if limit > 3 {
			limit = 3
		}
		names := ""
		for i, id := range forgotten[:limit] {
			if i > 0 {
				names += ", "
			}
			names += string(id)
		}
		recs = append(recs, "consider forgotten effects: "+names)
	}
	abuse := 0
	temporal := 0
	for _, b := range biases {
		switch b.Type {
		case domain.BiasEffectAbuse:
			abuse++
		case domain.BiasTemporalPattern:
			temporal++
		}
	}
	if abuse > 0 {
		recs = append(recs, fmt.Sprintf("boost diversity: reduce usage of top %d effects", abuse))
	}
	if temporal > 0 {
		recs = append(recs, "break temporal patterns: vary timing and sequencing")
	}
	return recs
}
