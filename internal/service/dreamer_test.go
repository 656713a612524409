package service

import (
	"testing"

	"github.com/luxsync/selene/internal/domain"
	"go.uber.org/zap"
)

func newTestDreamer(mood domain.MoodID) (*DreamerService, *MatcherService, *MoodService) {
	logger := zap.NewNop()
	matcher := NewMatcherService(logger)
	moodSvc := NewMoodService(mood, logger)
	return NewDreamerService(matcher, moodSvc, logger), matcher, moodSvc
}

func peakSafetyContext(vibe string) domain.AudienceSafetyContext {
	return domain.AudienceSafetyContext{
		CrowdSize:       200,
		Vibe:            vibe,
		Energy:          0.92,
		EnergyZone:      domain.ZonePeak,
		ActiveCooldowns: map[domain.EffectID]int64{},
	}
}

func TestDreamerService_TechnoVibeStaysTechno(t *testing.T) {
	d, _, _ := newTestDreamer(domain.MoodBalanced)

	result := d.DreamEffects(domain.SystemState{}, domain.MusicalPrediction{}, peakSafetyContext("techno-club"))
	if len(result.Scenarios) == 0 {
		t.Fatal("expected scenarios for a peak techno frame")
	}
	for _, sc := range result.Scenarios {
		cat := domain.CategoryOf(sc.Effect.Effect)
		if cat != domain.CategoryTechnoIndustrial && cat != domain.CategoryTechnoAtmospheric {
			t.Fatalf("%s leaked into a techno set (category %s)", sc.Effect.Effect, cat)
		}
	}
}

func TestDreamerService_LatinoVibeStaysLatino(t *testing.T) {
	d, _, _ := newTestDreamer(domain.MoodBalanced)

	result := d.DreamEffects(domain.SystemState{}, domain.MusicalPrediction{}, peakSafetyContext("latino-fiesta"))
	for _, sc := range result.Scenarios {
		if domain.CategoryOf(sc.Effect.Effect) != domain.CategoryLatinoOrganic {
			t.Fatalf("%s leaked into a latino set", sc.Effect.Effect)
		}
	}
}

func TestDreamerService_ZoneFilterBoundsAggression(t *testing.T) {
	d, _, _ := newTestDreamer(domain.MoodBalanced)

	sctx := peakSafetyContext("techno-club")
	zoneRange := domain.ZoneAggression[domain.ZonePeak]
	result := d.DreamEffects(domain.SystemState{}, domain.MusicalPrediction{}, sctx)
	for _, sc := range result.Scenarios {
		aggr := domain.GenomeRegistry[sc.Effect.Effect].Aggression
		if aggr < zoneRange.Min || aggr > zoneRange.Max {
			t.Fatalf("%s aggression %.2f outside peak range [%.2f, %.2f]",
				sc.Effect.Effect, aggr, zoneRange.Min, zoneRange.Max)
		}
	}
}

func TestDreamerService_ZoneRelaxation(t *testing.T) {
	d, _, _ := newTestDreamer(domain.MoodBalanced)

	// A latino set in silence: no latino effect sits under aggression 0.20,
	// so the filter relaxes to the softest few instead of aborting.
	sctx := peakSafetyContext("latino-fiesta")
	sctx.Energy = 0.05
	sctx.EnergyZone = domain.ZoneSilence

	result := d.DreamEffects(domain.SystemState{}, domain.MusicalPrediction{}, sctx)
	if len(result.Scenarios) != zoneRelaxationCount {
		t.Fatalf("expected %d relaxed candidates, got %d", zoneRelaxationCount, len(result.Scenarios))
	}
	for _, sc := range result.Scenarios {
		if domain.CategoryOf(sc.Effect.Effect) != domain.CategoryLatinoOrganic {
			t.Fatalf("relaxation must stay inside the vibe, got %s", sc.Effect.Effect)
		}
	}
}

func TestDreamerService_ScenariosSortedByScore(t *testing.T) {
	d, _, _ := newTestDreamer(domain.MoodBalanced)

	result := d.DreamEffects(domain.SystemState{}, domain.MusicalPrediction{}, peakSafetyContext("techno-club"))
	for i := 1; i < len(result.Scenarios); i++ {
		if result.Scenarios[i].Score > result.Scenarios[i-1].Score {
			t.Fatalf("scenarios not sorted by score at index %d", i)
		}
	}
	if result.BestScenario == nil || result.BestScenario.Effect.Effect != result.Scenarios[0].Effect.Effect {
		t.Fatal("best scenario must be the top-ranked one")
	}
}

func TestDreamerService_EpilepsyRaisesStrobeRisk(t *testing.T) {
	d, _, _ := newTestDreamer(domain.MoodBalanced)

	plain := peakSafetyContext("techno-club")
	protected := peakSafetyContext("techno-club")
	protected.EpilepsyMode = true

	var plainRisk, protectedRisk float64
	for _, sc := range d.DreamEffects(domain.SystemState{}, domain.MusicalPrediction{}, plain).Scenarios {
		if sc.Effect.Effect == "strobe_storm" {
			plainRisk = sc.ProjectedRisk
		}
	}
	for _, sc := range d.DreamEffects(domain.SystemState{}, domain.MusicalPrediction{}, protected).Scenarios {
		if sc.Effect.Effect == "strobe_storm" {
			protectedRisk = sc.ProjectedRisk
		}
	}
	if protectedRisk < plainRisk+0.5 {
		t.Fatalf("epilepsy mode should add 0.5 risk to strobes: %.2f vs %.2f", plainRisk, protectedRisk)
	}
}

func TestDreamerService_MoodBlockFiltersCandidates(t *testing.T) {
	d, _, _ := newTestDreamer(domain.MoodCalm)

	result := d.DreamEffects(domain.SystemState{}, domain.MusicalPrediction{}, peakSafetyContext("techno-club"))
	for _, sc := range result.Scenarios {
		if sc.Effect.Effect == "strobe_storm" || sc.Effect.Effect == "strobe_burst" {
			t.Fatalf("calm mood must filter %s before simulation", sc.Effect.Effect)
		}
	}
}

func TestDreamerService_CooldownConflictUnlessForceUnlocked(t *testing.T) {
	d, _, _ := newTestDreamer(domain.MoodPunk)

	sctx := peakSafetyContext("latino-fiesta")
	sctx.ActiveCooldowns = map[domain.EffectID]int64{
		"salsa_fire":  5000,
		"solar_flare": 5000,
	}

	result := d.DreamEffects(domain.SystemState{}, domain.MusicalPrediction{}, sctx)
	sawSalsa, sawSolar := false, false
	for _, sc := range result.Scenarios {
		switch sc.Effect.Effect {
		case "salsa_fire":
			sawSalsa = true
			if len(sc.CooldownConflicts) == 0 {
				t.Fatal("salsa_fire on cooldown should carry a conflict")
			}
		case "solar_flare":
			sawSolar = true
			if len(sc.CooldownConflicts) != 0 {
				t.Fatal("punk force-unlocks solar_flare past its cooldown")
			}
		}
	}
	if !sawSalsa || !sawSolar {
		t.Fatal("expected both salsa_fire and solar_flare in the peak candidate set")
	}
}

func TestDreamerService_HistoryDiversityLadder(t *testing.T) {
	d, _, _ := newTestDreamer(domain.MoodBalanced)

	history := []domain.EffectHistoryEntry{
		{Effect: "acid_sweep"}, {Effect: "acid_sweep"}, {Effect: "sky_saw"},
	}
	if got := d.historyDiversity("acid_sweep", history); got != 0.4 {
		t.Fatalf("two recent uses should score 0.4, got %.2f", got)
	}
	if got := d.historyDiversity("sky_saw", history); got != 0.7 {
		t.Fatalf("one recent use should score 0.7, got %.2f", got)
	}
	if got := d.historyDiversity("void_mist", history); got != 1.0 {
		t.Fatalf("unused effect should score 1.0, got %.2f", got)
	}
}

func TestDeriveRecommendation(t *testing.T) {
	tests := []struct {
		name string
		best domain.EffectScenario
		want domain.DreamRecommendation
	}{
		{"high risk aborts", domain.EffectScenario{ProjectedRisk: 0.8, ProjectedRelevance: 0.9}, domain.RecommendAbort},
		{"hardware conflict aborts", domain.EffectScenario{ProjectedRisk: 0.2, ProjectedRelevance: 0.9, HardwareConflicts: []string{"gpu saturation"}}, domain.RecommendAbort},
		{"weak relevance modifies", domain.EffectScenario{ProjectedRisk: 0.2, ProjectedRelevance: 0.4}, domain.RecommendModify},
		{"cooldown conflict modifies", domain.EffectScenario{ProjectedRisk: 0.2, ProjectedRelevance: 0.9, CooldownConflicts: []domain.EffectID{"x"}}, domain.RecommendModify},
		{"clean scenario executes", domain.EffectScenario{ProjectedRisk: 0.2, ProjectedRelevance: 0.9}, domain.RecommendExecute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := deriveRecommendation(&tt.best)
			if got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestVibeCoherence(t *testing.T) {
	tests := []struct {
		vibe   string
		effect domain.EffectID
		want   float64
	}{
		{"techno-club", "industrial_strobe", 1.0},
		{"techno-club", "solar_flare", 0.0}, // genre heresy
		{"techno-club", "salsa_fire", 0.5},
		{"latino-fiesta", "salsa_fire", 1.0},
		{"latino-fiesta", "industrial_strobe", 0.6},
		{"chill-lounge", "void_mist", 1.0},
		{"chill-lounge", "gatling_raid", 0.5},
		{"wedding", "tidal_wave", 0.7},
	}
	for _, tt := range tests {
		if got := vibeCoherence(tt.vibe, tt.effect); got != tt.want {
			t.Fatalf("vibeCoherence(%s, %s): expected %.1f, got %.1f", tt.vibe, tt.effect, tt.want, got)
		}
	}
}

func TestConsonanceWith(t *testing.T) {
	if got := consonanceWith("", "acid_sweep"); got != 0.7 {
		t.Fatalf("no prior effect should score 0.7, got %.1f", got)
	}
	if got := consonanceWith("acid_sweep", "acid_sweep"); got != 0.9 {
		t.Fatalf("repeat should score 0.9, got %.1f", got)
	}
	if got := consonanceWith("acid_sweep", "sky_saw"); got != 0.7 {
		t.Fatalf("same category should score 0.7, got %.1f", got)
	}
	if got := consonanceWith("acid_sweep", "void_mist"); got != 0.4 {
		t.Fatalf("cross category should score 0.4, got %.1f", got)
	}
}

func TestDreamerService_ExploreAlternatives(t *testing.T) {
	d, _, _ := newTestDreamer(domain.MoodBalanced)

	scenario := domain.EffectScenario{
		Effect: domain.EffectCandidate{Effect: "industrial_strobe", Intensity: 0.8, Confidence: 0.9},
	}
	alternatives := d.ExploreAlternatives(scenario, 3)
	if len(alternatives) != 3 {
		t.Fatalf("expected 3 alternatives, got %d", len(alternatives))
	}
	for _, a := range alternatives {
		if a.Effect == "industrial_strobe" {
			t.Fatal("alternatives must not include the original effect")
		}
		if domain.CategoryOf(a.Effect) != domain.CategoryTechnoIndustrial {
			t.Fatalf("alternatives must stay in category, got %s", a.Effect)
		}
	}
}
