package service

import (
	"testing"
	"time"

	"github.com/luxsync/selene/internal/domain"
	"go.uber.org/zap"
)

func newTestTracker() *TrackerService {
	return NewTrackerService(zap.NewNop())
}

func entryAt(effect domain.EffectID, ts int64) domain.EffectHistoryEntry {
	return domain.EffectHistoryEntry{
		Effect:    effect,
		Timestamp: ts,
		Intensity: 0.7,
		Zones:     []string{"all"},
		Success:   true,
		Vibe:      "techno-club",
	}
}

func TestTrackerService_RingEviction(t *testing.T) {
	tr := newTestTracker()
	for i := 0; i < 250; i++ {
		tr.RecordEffect(entryAt("acid_sweep", int64(i)))
	}
	if tr.HistorySize() != 200 {
		t.Fatalf("expected ring capped at 200, got %d", tr.HistorySize())
	}
	recent := tr.RecentEffects(1)
	if recent[0].Timestamp != 249 {
		t.Fatalf("expected newest entry retained, got timestamp %d", recent[0].Timestamp)
	}
}

func TestTrackerService_RecentEffects_Copy(t *testing.T) {
	tr := newTestTracker()
	tr.RecordEffect(entryAt("acid_sweep", 1))
	tr.RecordEffect(entryAt("sky_saw", 2))

	recent := tr.RecentEffects(2)
	recent[0].Effect = "mutated"
	if tr.RecentEffects(2)[0].Effect != "acid_sweep" {
		t.Fatal("RecentEffects must return a copy, not the backing slice")
	}
}

func TestTrackerService_AnalyzeBiases_InsufficientData(t *testing.T) {
	tr := newTestTracker()
	for i := 0; i < 5; i++ {
		tr.RecordEffect(entryAt("acid_sweep", int64(i*1000)))
	}

	analysis := tr.AnalyzeBiases(0)
	if analysis.DiversityScore != 1.0 {
		t.Fatalf("insufficient data should report perfect diversity, got %.2f", analysis.DiversityScore)
	}
	if analysis.MostUsedEffect != "none" {
		t.Fatalf("expected most used 'none', got %s", analysis.MostUsedEffect)
	}
	if len(analysis.Warnings) == 0 {
		t.Fatal("expected an insufficient-data warning")
	}
}

func TestTrackerService_DetectsAbuse(t *testing.T) {
	tr := newTestTracker()
	now := time.Now().UnixMilli()
	// 30 of 40 decisions are the same effect: 75% share, critical abuse.
	for i := 0; i < 30; i++ {
		tr.RecordEffect(entryAt("strobe_storm", now+int64(i)*7919))
	}
	for i := 0; i < 10; i++ {
		tr.RecordEffect(entryAt("acid_sweep", now+int64(i)*6011))
	}

	analysis := tr.AnalyzeBiases(0)
	if !analysis.HasBias(domain.BiasEffectAbuse) {
		t.Fatal("expected an effect abuse bias")
	}
	if !analysis.HasCriticalBias {
		t.Fatal("75% share should be critical")
	}
	if analysis.MostUsedEffect != "strobe_storm" {
		t.Fatalf("expected strobe_storm most used, got %s", analysis.MostUsedEffect)
	}
}

func TestTrackerService_DetectsNeglect(t *testing.T) {
	tr := newTestTracker()
	now := time.Now().UnixMilli()
	for i := 0; i < 49; i++ {
		id := domain.EffectID("acid_sweep")
		if i%2 == 0 {
			id = "sky_saw"
		}
		tr.RecordEffect(entryAt(id, now+int64(i)*5003))
	}
	// One lonely firing: 2% of the window.
	tr.RecordEffect(entryAt("void_mist", now+500000))

	analysis := tr.AnalyzeBiases(0)
	if !analysis.HasBias(domain.BiasEffectNeglect) {
		t.Fatal("expected a neglect bias for the rarely used effect")
	}
}

func TestFindTemporalPatterns(t *testing.T) {
	var window []domain.EffectHistoryEntry
	// Mechanically regular: every 5000ms, eight times.
	for i := 0; i < 8; i++ {
		window = append(window, entryAt("gatling_raid", int64(i)*5000))
	}

	patterns := FindTemporalPatterns(window)
	if len(patterns) != 1 {
		t.Fatalf("expected one pattern, got %d", len(patterns))
	}
	p := patterns[0]
	if p.Effect != "gatling_raid" {
		t.Fatalf("unexpected effect %s", p.Effect)
	}
	if p.IntervalMs < 4500 || p.IntervalMs > 5500 {
		t.Fatalf("expected ~5000ms interval, got %.0f", p.IntervalMs)
	}
	if p.Occurrences != 7 {
		t.Fatalf("expected 7 clustered intervals, got %d", p.Occurrences)
	}
	if p.Confidence != 0.7 {
		t.Fatalf("expected confidence 0.7 for 7 repeats, got %.2f", p.Confidence)
	}
}

func TestFindTemporalPatterns_IrregularTimingIsClean(t *testing.T) {
	var window []domain.EffectHistoryEntry
	ts := int64(0)
	for _, gap := range []int64{3000, 9000, 21000, 4500, 15000, 32000} {
		ts += gap
		window = append(window, entryAt("gatling_raid", ts))
	}
	if patterns := FindTemporalPatterns(window); len(patterns) != 0 {
		t.Fatalf("irregular timing should produce no patterns, got %d", len(patterns))
	}
}

func TestTrackerService_DetectsVibeLock(t *testing.T) {
	tr := newTestTracker()
	now := time.Now().UnixMilli()
	for i := 0; i < 12; i++ {
		e := entryAt("salsa_fire", now+int64(i)*17551)
		e.Vibe = "latino-fiesta"
		tr.RecordEffect(e)
	}
	for i := 0; i < 12; i++ {
		e := entryAt("acid_sweep", now+int64(i)*13093)
		e.Vibe = "techno-club"
		if i%2 == 0 {
			e.Vibe = "techno-warehouse"
		}
		e.Intensity = 0.3 + 0.05*float64(i)
		tr.RecordEffect(e)
	}

	analysis := tr.AnalyzeBiases(0)
	if !analysis.HasBias(domain.BiasVibeLock) {
		t.Fatal("expected a vibe lock bias for the single-vibe effect")
	}
}

func TestTrackerService_DetectsIntensityHabit(t *testing.T) {
	tr := newTestTracker()
	now := time.Now().UnixMilli()
	for i := 0; i < 10; i++ {
		e := entryAt("tidal_wave", now+int64(i)*23011)
		e.Intensity = 0.55 // never varies
		tr.RecordEffect(e)
	}

	analysis := tr.AnalyzeBiases(0)
	if !analysis.HasBias(domain.BiasIntensityHabit) {
		t.Fatal("expected an intensity habit bias for constant intensity")
	}
}

func TestTrackerService_ForgottenEffects(t *testing.T) {
	tr := newTestTracker()
	now := time.Now().UnixMilli()
	for i := 0; i < 60; i++ {
		tr.RecordEffect(entryAt("acid_sweep", now+int64(i)*1000))
	}

	analysis := tr.AnalyzeBiases(0)
	if analysis.IsForgotten("acid_sweep") {
		t.Fatal("the only used effect must not be forgotten")
	}
	if !analysis.IsForgotten("void_mist") {
		t.Fatal("an effect absent from the last 50 firings should be forgotten")
	}
	if len(analysis.ForgottenEffects) != len(domain.GenomeRegistry)-1 {
		t.Fatalf("expected all but one effect forgotten, got %d", len(analysis.ForgottenEffects))
	}
}

func TestTrackerService_Diversity(t *testing.T) {
	tr := newTestTracker()
	now := time.Now().UnixMilli()

	if tr.Diversity() != 1.0 {
		t.Fatal("empty history should report full diversity")
	}

	for i := 0; i < 50; i++ {
		tr.RecordEffect(entryAt("acid_sweep", now+int64(i)*1000))
	}
	mono := tr.Diversity()
	if mono != 0 {
		t.Fatalf("single-effect history has zero entropy, got %.4f", mono)
	}

	tr.Clear()
	ids := domain.KnownEffects()
	for i := 0; i < 50; i++ {
		tr.RecordEffect(entryAt(ids[i%len(ids)], now+int64(i)*1000))
	}
	varied := tr.Diversity()
	if varied <= mono {
		t.Fatalf("varied history should score higher diversity, got %.4f", varied)
	}
}
