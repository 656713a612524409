package domain

// MoodID identifies one of the three operator-selectable firing policies.
type MoodID string

const (
	MoodCalm     MoodID = "calm"
	MoodBalanced MoodID = "balanced"
	MoodPunk     MoodID = "punk"
)

// ValidMood reports whether s names a known mood.
func ValidMood(s string) bool {
	switch MoodID(s) {
	case MoodCalm, MoodBalanced, MoodPunk:
		return true
	}
	return false
}

// MoodProfile is the immutable policy record for one mood.
type MoodProfile struct {
	Name                MoodID     `json:"name"`
	Description         string     `json:"description"`
	ThresholdMultiplier float64    `json:"threshold_multiplier"`
	CooldownMultiplier  float64    `json:"cooldown_multiplier"`
	EthicsThreshold     float64    `json:"ethics_threshold"`
	MaxIntensity        float64    `json:"max_intensity"`
	MinIntensity        float64    `json:"min_intensity"` // 0 = no minimum
	BlockList           []EffectID `json:"block_list,omitempty"`
	ForceUnlock         []EffectID `json:"force_unlock,omitempty"`
}

// MoodProfiles holds the three policy positions. Calm raises the bar and
// caps intensity, punk lowers the bar and floors it, balanced fires when
// the music genuinely asks for it.
var MoodProfiles = map[MoodID]MoodProfile{
	MoodCalm: {
		Name:                MoodCalm,
		Description:         "Quality filter. Only fires on truly strong moments.",
		ThresholdMultiplier: 1.3,
		CooldownMultiplier:  2.0,
		EthicsThreshold:     0.85,
		MaxIntensity:        0.6,
		BlockList:           []EffectID{"strobe_storm", "strobe_burst"},
	},
	MoodBalanced: {
		Name:                MoodBalanced,
		Description:         "The professional. Fires when the music asks for it.",
		ThresholdMultiplier: 1.2,
		CooldownMultiplier:  1.2,
		EthicsThreshold:     0.90,
		MaxIntensity:        1.0,
	},
	MoodPunk: {
		Name:                MoodPunk,
		Description:         "The anarchist. Any excuse is a good excuse.",
		ThresholdMultiplier: 0.8,
		CooldownMultiplier:  0.7,
		EthicsThreshold:     0.75,
		MaxIntensity:        1.0,
		MinIntensity:        0.5,
		ForceUnlock:         []EffectID{"strobe_burst", "solar_flare"},
	},
}

// MoodChangeEvent is broadcast to registered listeners on a mode switch.
type MoodChangeEvent struct {
	PreviousMood MoodID `json:"previous_mood"`
	NewMood      MoodID `json:"new_mood"`
	Timestamp    int64  `json:"timestamp"`
}
