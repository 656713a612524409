package service

import (
	"math"
	"sync"
	"time"

	"github.com/luxsync/selene/internal/domain"
	"go.uber.org/zap"
)

// MoodListener is notified after every mode switch.
type MoodListener func(domain.MoodChangeEvent)

// MoodService holds the single process-wide firing policy. It is a switch
// with three positions, not a learner: each profile only scales thresholds,
// cooldowns, and intensity caps.
type MoodService struct {
	logger *zap.Logger

	mu         sync.RWMutex
	current    domain.MoodID
	lastChange time.Time
	listeners  []MoodListener
}

func NewMoodService(initial domain.MoodID, logger *zap.Logger) *MoodService {
	if _, ok := domain.MoodProfiles[initial]; !ok {
		initial = domain.MoodBalanced
	}
	return &MoodService{
		logger:     logger,
		current:    initial,
		lastChange: time.Now(),
	}
}

// Current returns the active mood id.
func (s *MoodService) Current() domain.MoodID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Profile returns the active mood's full profile.
func (s *MoodService) Profile() domain.MoodProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.MoodProfiles[s.current]
}

// SetMood switches the active mood and notifies listeners. A no-op when
// the mood is unchanged.
func (s *MoodService) SetMood(mood domain.MoodID) bool {
	if _, ok := domain.MoodProfiles[mood]; !ok {
		return false
	}

	s.mu.Lock()
	if mood == s.current {
		s.mu.Unlock()
		return true
	}
	event := domain.MoodChangeEvent{
		PreviousMood: s.current,
		NewMood:      mood,
		Timestamp:    time.Now().UnixMilli(),
	}
	s.current = mood
	s.lastChange = time.Now()
	listeners := append([]MoodListener(nil), s.listeners...)
	s.mu.Unlock()

	s.logger.Info("mood changed",
		zap.String("from", string(event.PreviousMood)),
		zap.String("to", string(event.NewMood)))

	for _, l := range listeners {
		l(event)
	}
	return true
}

// OnMoodChange registers a listener for mode switches.
func (s *MoodService) OnMoodChange(l MoodListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// TimeSinceLastChange reports how long the current mood has been active.
func (s *MoodService) TimeSinceLastChange() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.lastChange)
}

// ApplyThreshold converts a raw worthiness score into its mood-adjusted
// value. Higher multipliers make firing harder.
func (s *MoodService) ApplyThreshold(raw float64) float64 {
	return raw / s.Profile().ThresholdMultiplier
}

// ApplyCooldown scales a base cooldown by the mood's multiplier.
func (s *MoodService) ApplyCooldown(base time.Duration) time.Duration {
	scaled := math.Round(float64(base.Milliseconds()) * s.Profile().CooldownMultiplier)
	return time.Duration(scaled) * time.Millisecond
}

// ApplyIntensity clamps an intensity into the mood's allowed band.
func (s *MoodService) ApplyIntensity(base float64) float64 {
	profile := s.Profile()
	intensity := math.Min(base, profile.MaxIntensity)
	if profile.MinIntensity > 0 {
		intensity = math.Max(intensity, profile.MinIntensity)
	}
	return intensity
}

// IsBlocked reports whether the mood forbids the effect entirely.
func (s *MoodService) IsBlocked(id domain.EffectID) bool {
	for _, blocked := range s.Profile().BlockList {
		if blocked == id {
			return true
		}
	}
	return false
}

// IsForceUnlocked reports whether the effect may bypass cooldown gating.
func (s *MoodService) IsForceUnlocked(id domain.EffectID) bool {
	for _, unlocked := range s.Profile().ForceUnlock {
		if unlocked == id {
			return true
		}
	}
	return false
}
