package probe

import (
	"math"
)

// NetworkPreset caps the player's bandwidth estimate to simulate a
// constrained network.
type NetworkPreset struct {
	Key              string
	Label            string
	MaxBandwidthKbps int
}

var NetworkPresets = map[string]NetworkPreset{
	"3g": {Key: "3g", Label: "3G (750 Kbps)", MaxBandwidthKbps: 750},
	"2g": {Key: "2g", Label: "2G (150 Kbps)", MaxBandwidthKbps: 150},
}

// AdvancedMetrics is the quality-of-experience block measured under a capped
// bandwidth estimate. RebufferRatio is RebufferDurationMs over
// PlaybackDurationMs, kept at 4 decimal digits; SmoothnessScore is in [0,100].
type AdvancedMetrics struct {
	ThrottledStartupMs int64   `json:"throttledStartupMs"`
	NetworkPreset      string  `json:"networkPreset"`
	MaxBandwidthKbps   int     `json:"maxBandwidthKbps"`
	RebufferCount      int     `json:"rebufferCount"`
	RebufferDurationMs int64   `json:"rebufferDurationMs"`
	RebufferRatio      float64 `json:"rebufferRatio"`
	AverageBitrateKbps int64   `json:"averageBitrateKbps"`
	PeakBitrateKbps    int64   `json:"peakBitrateKbps"`
	SmoothnessScore    int     `json:"smoothnessScore"`
	LevelSwitchCount   int     `json:"levelSwitchCount"`
	PlaybackDurationMs int64   `json:"playbackDurationMs"`
}

// smoothnessScore penalizes rebuffers roughly 3x as heavily as visible
// quality switches; rebuffer events drive far more viewer abandonment. The
// formula is deliberately simple and interpretable rather than fitted.
func smoothnessScore(rebufferCount, levelSwitchCount int) int {
	score := 100 - rebufferCount*15 - levelSwitchCount*5
	if score < 0 {
		return 0
	}

	return score
}

func round4(value float64) float64 {
	return math.Round(value*10000) / 10000
}
