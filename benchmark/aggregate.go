package benchmark

import (
	"math"

	"github.com/fastpix01-lab/video-benchmark/probe"
)

// Aggregate is a provider's mean performance across every file it succeeded
// on. Failed results never dilute the averages. PlaybackURL is the first
// member's, kept as a representative stream for the provider.
type Aggregate struct {
	Provider     string                 `json:"provider"`
	ProviderName string                 `json:"providerName"`
	FileCount    int                    `json:"fileCount"`
	UploadMs     int64                  `json:"uploadMs"`
	ProcessingMs int64                  `json:"processingMs"`
	StartupMs    int64                  `json:"startupMs"`
	TotalMs      int64                  `json:"totalMs"`
	PlaybackURL  string                 `json:"playbackUrl,omitempty"`
	Status       ResultStatus           `json:"status"`
	Advanced     *probe.AdvancedMetrics `json:"advanced,omitempty"`
}

// AggregateRuns averages successful results per provider across runs,
// ordered by first appearance. Providers with no successes are omitted.
// The advanced block is aggregated only when every contributing result
// carries one, so its averages always cover the same file set as the timing
// averages.
func AggregateRuns(runs []Run) []Aggregate {
	var order []string
	grouped := map[string][]Result{}

	for _, run := range runs {
		for _, result := range run.Results {
			if result.Status != StatusSuccess {
				continue
			}

			if _, seen := grouped[result.Provider]; !seen {
				order = append(order, result.Provider)
			}

			grouped[result.Provider] = append(grouped[result.Provider], result)
		}
	}

	aggregates := make([]Aggregate, 0, len(order))

	for _, slug := range order {
		results := grouped[slug]

		aggregate := Aggregate{
			Provider:     slug,
			ProviderName: results[0].ProviderName,
			FileCount:    len(results),
			UploadMs:     meanInt64(results, func(r Result) int64 { return r.UploadMs }),
			ProcessingMs: meanInt64(results, func(r Result) int64 { return r.ProcessingMs }),
			StartupMs:    meanInt64(results, func(r Result) int64 { return r.StartupMs }),
			TotalMs:      meanInt64(results, func(r Result) int64 { return r.TotalMs }),
			PlaybackURL:  results[0].PlaybackURL,
			Status:       StatusSuccess,
			Advanced:     aggregateAdvanced(results),
		}

		aggregates = append(aggregates, aggregate)
	}

	return aggregates
}

func meanInt64(results []Result, pick func(Result) int64) int64 {
	var sum int64
	for _, result := range results {
		sum += pick(result)
	}

	return int64(math.Round(float64(sum) / float64(len(results))))
}

func aggregateAdvanced(results []Result) *probe.AdvancedMetrics {
	blocks := make([]*probe.AdvancedMetrics, 0, len(results))
	for _, result := range results {
		if result.Advanced == nil {
			return nil
		}

		blocks = append(blocks, result.Advanced)
	}

	if len(blocks) == 0 {
		return nil
	}

	count := float64(len(blocks))

	var (
		throttled, rebufferDuration, average, peak, playback float64
		rebuffers, switches, smoothness, ratio               float64
	)

	for _, block := range blocks {
		throttled += float64(block.ThrottledStartupMs)
		rebuffers += float64(block.RebufferCount)
		rebufferDuration += float64(block.RebufferDurationMs)
		ratio += block.RebufferRatio
		average += float64(block.AverageBitrateKbps)
		peak += float64(block.PeakBitrateKbps)
		smoothness += float64(block.SmoothnessScore)
		switches += float64(block.LevelSwitchCount)
		playback += float64(block.PlaybackDurationMs)
	}

	round := func(value float64) int64 {
		return int64(math.Round(value / count))
	}

	return &probe.AdvancedMetrics{
		ThrottledStartupMs: round(throttled),
		NetworkPreset:      blocks[0].NetworkPreset,
		MaxBandwidthKbps:   blocks[0].MaxBandwidthKbps,
		RebufferCount:      int(round(rebuffers)),
		RebufferDurationMs: round(rebufferDuration),
		RebufferRatio:      math.Round(ratio/count*10000) / 10000,
		AverageBitrateKbps: round(average),
		PeakBitrateKbps:    round(peak),
		SmoothnessScore:    int(round(smoothness)),
		LevelSwitchCount:   int(round(switches)),
		PlaybackDurationMs: round(playback),
	}
}
