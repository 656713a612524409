package service

import (
	"math"
	"testing"
	"time"

	"github.com/luxsync/selene/internal/domain"
	"go.uber.org/zap"
)

func TestMoodService_DefaultsToBalanced(t *testing.T) {
	s := NewMoodService("does-not-exist", zap.NewNop())
	if s.Current() != domain.MoodBalanced {
		t.Fatalf("unknown initial mood should fall back to balanced, got %s", s.Current())
	}
}

func TestMoodService_SetMood(t *testing.T) {
	s := NewMoodService(domain.MoodBalanced, zap.NewNop())

	if !s.SetMood(domain.MoodPunk) {
		t.Fatal("expected punk to be accepted")
	}
	if s.Current() != domain.MoodPunk {
		t.Fatalf("expected punk, got %s", s.Current())
	}
	if s.SetMood("vaporwave") {
		t.Fatal("unknown mood must be rejected")
	}
	if s.Current() != domain.MoodPunk {
		t.Fatal("rejected switch must not change the mood")
	}
}

func TestMoodService_Listeners(t *testing.T) {
	s := NewMoodService(domain.MoodBalanced, zap.NewNop())

	var events []domain.MoodChangeEvent
	s.OnMoodChange(func(e domain.MoodChangeEvent) { events = append(events, e) })

	s.SetMood(domain.MoodCalm)
	s.SetMood(domain.MoodCalm) // no-op, must not notify
	s.SetMood(domain.MoodPunk)

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].PreviousMood != domain.MoodBalanced || events[0].NewMood != domain.MoodCalm {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if events[1].PreviousMood != domain.MoodCalm || events[1].NewMood != domain.MoodPunk {
		t.Fatalf("unexpected second event %+v", events[1])
	}
}

func TestMoodService_ApplyThreshold(t *testing.T) {
	tests := []struct {
		mood domain.MoodID
		raw  float64
		want float64
	}{
		{domain.MoodCalm, 0.78, 0.6},     // 0.78 / 1.3
		{domain.MoodBalanced, 0.72, 0.6}, // 0.72 / 1.2
		{domain.MoodPunk, 0.48, 0.6},     // 0.48 / 0.8
	}
	for _, tt := range tests {
		s := NewMoodService(tt.mood, zap.NewNop())
		got := s.ApplyThreshold(tt.raw)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Fatalf("%s: expected %.3f, got %.3f", tt.mood, tt.want, got)
		}
	}
}

func TestMoodService_ApplyCooldown(t *testing.T) {
	calm := NewMoodService(domain.MoodCalm, zap.NewNop())
	if got := calm.ApplyCooldown(10 * time.Second); got != 20*time.Second {
		t.Fatalf("calm should double cooldowns, got %v", got)
	}

	punk := NewMoodService(domain.MoodPunk, zap.NewNop())
	if got := punk.ApplyCooldown(10 * time.Second); got != 7*time.Second {
		t.Fatalf("punk should scale cooldowns to 0.7x, got %v", got)
	}
}

func TestMoodService_ApplyIntensity(t *testing.T) {
	calm := NewMoodService(domain.MoodCalm, zap.NewNop())
	if got := calm.ApplyIntensity(0.95); got != 0.6 {
		t.Fatalf("calm should cap intensity at 0.6, got %.2f", got)
	}

	punk := NewMoodService(domain.MoodPunk, zap.NewNop())
	if got := punk.ApplyIntensity(0.2); got != 0.5 {
		t.Fatalf("punk should floor intensity at 0.5, got %.2f", got)
	}
	if got := punk.ApplyIntensity(0.9); got != 0.9 {
		t.Fatalf("punk should pass mid-band intensity through, got %.2f", got)
	}
}

func TestMoodService_BlockAndForceUnlock(t *testing.T) {
	calm := NewMoodService(domain.MoodCalm, zap.NewNop())
	if !calm.IsBlocked("strobe_storm") || !calm.IsBlocked("strobe_burst") {
		t.Fatal("calm must block both strobe effects")
	}
	if calm.IsBlocked("deep_breath") {
		t.Fatal("calm must not block soft effects")
	}

	punk := NewMoodService(domain.MoodPunk, zap.NewNop())
	if !punk.IsForceUnlocked("strobe_burst") || !punk.IsForceUnlocked("solar_flare") {
		t.Fatal("punk must force-unlock strobe_burst and solar_flare")
	}
	if punk.IsBlocked("strobe_storm") {
		t.Fatal("punk blocks nothing")
	}
}
