package benchmark

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fastpix01-lab/video-benchmark/probe"
)

func successResult(provider string, uploadMs int64) Result {
	return Result{
		Provider:     provider,
		ProviderName: provider,
		UploadMs:     uploadMs,
		ProcessingMs: uploadMs * 2,
		StartupMs:    uploadMs / 2,
		TotalMs:      uploadMs * 4,
		PlaybackURL:  fmt.Sprintf("https://cdn.example/%s/%d.m3u8", provider, uploadMs),
		Status:       StatusSuccess,
	}
}

func TestAggregateRuns_MeansPerProvider(t *testing.T) {
	assert := assert.New(t)

	runs := []Run{
		{FileName: "a.mp4", Results: []Result{successResult("mux", 100)}},
		{FileName: "b.mp4", Results: []Result{successResult("mux", 200)}},
		{FileName: "c.mp4", Results: []Result{successResult("mux", 300)}},
	}

	aggregates := AggregateRuns(runs)
	assert.Len(aggregates, 1)
	assert.Equal("mux", aggregates[0].Provider)
	assert.Equal(3, aggregates[0].FileCount)
	assert.EqualValues(200, aggregates[0].UploadMs)
	assert.EqualValues(400, aggregates[0].ProcessingMs)
	assert.EqualValues(100, aggregates[0].StartupMs)
	assert.EqualValues(800, aggregates[0].TotalMs)
	// descriptive fields come from the first member
	assert.Equal("https://cdn.example/mux/100.m3u8", aggregates[0].PlaybackURL)
	assert.Equal(StatusSuccess, aggregates[0].Status)
	assert.Nil(aggregates[0].Advanced)
}

func TestAggregateRuns_FailuresDoNotDilute(t *testing.T) {
	assert := assert.New(t)

	runs := []Run{
		{Results: []Result{successResult("mux", 100), successResult("fastpix", 500)}},
		{Results: []Result{
			{Provider: "mux", Status: StatusFailed, Error: "Timed out waiting for readiness"},
			successResult("fastpix", 700),
		}},
	}

	aggregates := AggregateRuns(runs)
	assert.Len(aggregates, 2)

	// first-seen order
	assert.Equal("mux", aggregates[0].Provider)
	assert.Equal(1, aggregates[0].FileCount)
	assert.EqualValues(100, aggregates[0].UploadMs)

	assert.Equal("fastpix", aggregates[1].Provider)
	assert.Equal(2, aggregates[1].FileCount)
	assert.EqualValues(600, aggregates[1].UploadMs)
}

func TestAggregateRuns_AllFailedProviderOmitted(t *testing.T) {
	assert := assert.New(t)

	runs := []Run{
		{Results: []Result{{Provider: "vimeo", Status: StatusFailed, Error: "Vimeo transcoding failed"}}},
	}

	assert.Empty(AggregateRuns(runs))
}

func TestAggregateRuns_AdvancedRequiresEveryMember(t *testing.T) {
	assert := assert.New(t)

	withAdvanced := successResult("mux", 100)
	withAdvanced.Advanced = &probe.AdvancedMetrics{
		NetworkPreset:      "3g",
		MaxBandwidthKbps:   750,
		RebufferCount:      2,
		RebufferDurationMs: 500,
		RebufferRatio:      0.05,
		SmoothnessScore:    70,
		PlaybackDurationMs: 10000,
	}

	otherAdvanced := successResult("mux", 200)
	otherAdvanced.Advanced = &probe.AdvancedMetrics{
		NetworkPreset:      "3g",
		MaxBandwidthKbps:   750,
		RebufferCount:      0,
		RebufferDurationMs: 0,
		RebufferRatio:      0,
		SmoothnessScore:    100,
		PlaybackDurationMs: 10000,
	}

	runs := []Run{
		{Results: []Result{withAdvanced}},
		{Results: []Result{otherAdvanced}},
	}

	aggregates := AggregateRuns(runs)
	assert.Len(aggregates, 1)
	advanced := aggregates[0].Advanced
	assert.NotNil(advanced)
	assert.Equal("3g", advanced.NetworkPreset)
	assert.Equal(750, advanced.MaxBandwidthKbps)
	assert.Equal(1, advanced.RebufferCount)
	assert.EqualValues(250, advanced.RebufferDurationMs)
	assert.InDelta(0.025, advanced.RebufferRatio, 0.00001)
	assert.Equal(85, advanced.SmoothnessScore)

	// one member without an advanced block disables aggregation
	bare := successResult("mux", 300)
	runs = append(runs, Run{Results: []Result{bare}})
	aggregates = AggregateRuns(runs)
	assert.Nil(aggregates[0].Advanced)
}
