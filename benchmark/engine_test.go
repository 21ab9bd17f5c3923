package benchmark

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/fastpix01-lab/video-benchmark/probe"
	"github.com/fastpix01-lab/video-benchmark/provider"
	"github.com/fastpix01-lab/video-benchmark/transport"
)

func engineTestFile() transport.File {
	content := "0123456789"
	return transport.File{
		Name:    "clip.mp4",
		Size:    int64(len(content)),
		Content: strings.NewReader(content),
	}
}

func fastPoller() Poller {
	return Poller{Interval: time.Millisecond, Timeout: time.Second}
}

// scriptedClock returns a clock that walks the given millisecond offsets and
// sticks at the last one.
func scriptedClock(offsets ...int64) func() time.Time {
	base := time.Unix(1700000000, 0)
	index := 0

	return func() time.Time {
		current := base.Add(time.Duration(offsets[index]) * time.Millisecond)
		if index < len(offsets)-1 {
			index++
		}

		return current
	}
}

func readyUpload(trackingID string) *provider.CreateUploadResult {
	return &provider.CreateUploadResult{
		TrackingID: trackingID,
		Upload: provider.UploadDescriptor{
			URL:    "https://storage.example/put",
			Method: "PUT",
			Mode:   provider.ModeRaw,
		},
	}
}

func TestEngine_Run_MeasuresPipelineStages(t *testing.T) {
	assert := assert.New(t)

	prov := &provider.MockProvider{SlugValue: "mux", NameValue: "Mux"}
	prov.On("CreateUpload", mock.Anything, "https://bench.example").Return(readyUpload("track-1"), nil).Once()
	prov.On("CheckStatus", mock.Anything, "track-1").Return(&provider.Status{
		Ready:       true,
		PlaybackURL: "https://stream.mux.com/play.m3u8",
	}, nil).Once()

	uploader := &MockUploader{}
	uploader.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	prober := &MockProber{}
	prober.On("MeasureStartup", mock.Anything, "https://stream.mux.com/play.m3u8").Return(int64(300), nil).Once()

	engine, err := NewEngine(EngineConfig{
		Registry: provider.NewRegistry(provider.Entry{Provider: prov}),
		Uploader: uploader,
		Prober:   prober,
		Poller:   fastPoller(),
		Enabled:  []string{"mux"},
		Origin:   "https://bench.example",
	})
	assert.NoError(err)

	// totalStart, uploadStart, upload end, processing start, processing end,
	// total end
	engine.now = scriptedClock(0, 0, 1000, 1000, 6000, 6500)

	runs, err := engine.Run(context.Background(), []transport.File{engineTestFile()})
	assert.NoError(err)
	assert.Len(runs, 1)
	assert.Len(runs[0].Results, 1)

	result := runs[0].Results[0]
	assert.Equal(StatusSuccess, result.Status)
	assert.Equal("mux", result.Provider)
	assert.EqualValues(1000, result.UploadMs)
	assert.EqualValues(5000, result.ProcessingMs)
	assert.EqualValues(300, result.StartupMs)
	assert.EqualValues(6500, result.TotalMs)
	assert.Equal("https://stream.mux.com/play.m3u8", result.PlaybackURL)
	assert.Nil(result.Advanced)

	prov.AssertExpectations(t)
	uploader.AssertExpectations(t)
	prober.AssertExpectations(t)
}

func TestEngine_Run_AdvancedMetricsWhenEnabled(t *testing.T) {
	assert := assert.New(t)

	prov := &provider.MockProvider{SlugValue: "mux", NameValue: "Mux"}
	prov.On("CreateUpload", mock.Anything, "").Return(readyUpload("track-1"), nil).Once()
	prov.On("CheckStatus", mock.Anything, "track-1").Return(&provider.Status{
		Ready:       true,
		PlaybackURL: "https://stream.mux.com/play.m3u8",
	}, nil).Once()

	uploader := &MockUploader{}
	uploader.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	preset := probe.NetworkPresets["3g"]
	advanced := &probe.AdvancedMetrics{NetworkPreset: "3g", SmoothnessScore: 85}

	prober := &MockProber{}
	prober.On("MeasureStartup", mock.Anything, mock.Anything).Return(int64(250), nil).Once()
	prober.On("MeasureAdvanced", mock.Anything, "https://stream.mux.com/play.m3u8", preset).Return(advanced, nil).Once()

	engine, err := NewEngine(EngineConfig{
		Registry: provider.NewRegistry(provider.Entry{Provider: prov}),
		Uploader: uploader,
		Prober:   prober,
		Poller:   fastPoller(),
		Enabled:  []string{"mux"},
		Advanced: true,
		Preset:   preset,
	})
	assert.NoError(err)

	runs, err := engine.Run(context.Background(), []transport.File{engineTestFile()})
	assert.NoError(err)

	result := runs[0].Results[0]
	assert.Equal(StatusSuccess, result.Status)
	assert.Equal(advanced, result.Advanced)
	prober.AssertExpectations(t)
}

func TestEngine_Run_RetriesWholePipelineThreeTimes(t *testing.T) {
	assert := assert.New(t)

	prov := &provider.MockProvider{SlugValue: "mux", NameValue: "Mux"}
	prov.On("CreateUpload", mock.Anything, "").Return(nil, errors.New("network error")).Times(3)

	engine, err := NewEngine(EngineConfig{
		Registry: provider.NewRegistry(provider.Entry{Provider: prov}),
		Uploader: &MockUploader{},
		Prober:   &MockProber{},
		Poller:   fastPoller(),
		Enabled:  []string{"mux"},
	})
	assert.NoError(err)

	runs, err := engine.Run(context.Background(), []transport.File{engineTestFile()})
	assert.NoError(err)

	result := runs[0].Results[0]
	assert.Equal(StatusFailed, result.Status)
	assert.Equal("network error", result.Error)
	prov.AssertExpectations(t)
}

func TestEngine_Run_EmptyErrorMessageBecomesUnknown(t *testing.T) {
	assert := assert.New(t)

	prov := &provider.MockProvider{SlugValue: "mux", NameValue: "Mux"}
	prov.On("CreateUpload", mock.Anything, "").Return(nil, errors.New("")).Times(3)

	engine, err := NewEngine(EngineConfig{
		Registry: provider.NewRegistry(provider.Entry{Provider: prov}),
		Uploader: &MockUploader{},
		Prober:   &MockProber{},
		Poller:   fastPoller(),
		Enabled:  []string{"mux"},
	})
	assert.NoError(err)

	runs, err := engine.Run(context.Background(), []transport.File{engineTestFile()})
	assert.NoError(err)
	assert.Equal("Unknown error", runs[0].Results[0].Error)
}

func TestEngine_Run_MissingPlaybackURLFails(t *testing.T) {
	assert := assert.New(t)

	prov := &provider.MockProvider{SlugValue: "mux", NameValue: "Mux"}
	prov.On("CreateUpload", mock.Anything, "").Return(readyUpload("track-1"), nil).Times(3)
	prov.On("CheckStatus", mock.Anything, "track-1").Return(&provider.Status{Ready: true}, nil).Times(3)

	uploader := &MockUploader{}
	uploader.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return(nil).Times(3)

	engine, err := NewEngine(EngineConfig{
		Registry: provider.NewRegistry(provider.Entry{Provider: prov}),
		Uploader: uploader,
		Prober:   &MockProber{},
		Poller:   fastPoller(),
		Enabled:  []string{"mux"},
	})
	assert.NoError(err)

	runs, err := engine.Run(context.Background(), []transport.File{engineTestFile()})
	assert.NoError(err)
	assert.Equal("No playback URL returned", runs[0].Results[0].Error)
}

func TestEngine_Run_MixedSuccessAndFailure(t *testing.T) {
	assert := assert.New(t)

	good := &provider.MockProvider{SlugValue: "mux", NameValue: "Mux"}
	good.On("CreateUpload", mock.Anything, "").Return(readyUpload("track-1"), nil).Once()
	good.On("CheckStatus", mock.Anything, "track-1").Return(&provider.Status{
		Ready:       true,
		PlaybackURL: "https://stream.mux.com/play.m3u8",
	}, nil).Once()

	bad := &provider.MockProvider{SlugValue: "fastpix", NameValue: "FastPix"}
	bad.On("CreateUpload", mock.Anything, "").Return(nil, errors.New("network error")).Times(3)

	uploader := &MockUploader{}
	uploader.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	prober := &MockProber{}
	prober.On("MeasureStartup", mock.Anything, mock.Anything).Return(int64(300), nil).Once()

	session := NewSession(SessionConfig{})

	engine, err := NewEngine(EngineConfig{
		Registry: provider.NewRegistry(
			provider.Entry{Provider: good},
			provider.Entry{Provider: bad},
		),
		Uploader: uploader,
		Prober:   prober,
		Poller:   fastPoller(),
		Session:  session,
		Enabled:  []string{"mux", "fastpix"},
	})
	assert.NoError(err)

	engine.now = scriptedClock(0, 0, 1000, 1000, 6000, 6500)

	runs, err := engine.Run(context.Background(), []transport.File{engineTestFile()})
	assert.NoError(err)
	assert.Len(runs, 1)
	assert.Len(runs[0].Results, 2)

	succeeded := runs[0].Results[0]
	assert.Equal(StatusSuccess, succeeded.Status)
	assert.EqualValues(1000, succeeded.UploadMs)
	assert.EqualValues(5000, succeeded.ProcessingMs)
	assert.EqualValues(300, succeeded.StartupMs)
	assert.EqualValues(6500, succeeded.TotalMs)

	failed := runs[0].Results[1]
	assert.Equal(StatusFailed, failed.Status)
	assert.Equal("network error", failed.Error)
	assert.Zero(failed.UploadMs)

	// transient progress state is dropped once the run finishes
	assert.Nil(session.Progress())

	good.AssertExpectations(t)
	bad.AssertExpectations(t)
}

func TestEngine_Run_CancellationSkipsRemainingProviders(t *testing.T) {
	assert := assert.New(t)

	first := &provider.MockProvider{SlugValue: "mux", NameValue: "Mux"}
	first.On("CreateUpload", mock.Anything, "").Return(readyUpload("track-1"), nil).Once()

	second := &provider.MockProvider{SlugValue: "fastpix", NameValue: "FastPix"}

	uploader := &MockUploader{}

	engine, err := NewEngine(EngineConfig{
		Registry: provider.NewRegistry(
			provider.Entry{Provider: first},
			provider.Entry{Provider: second},
		),
		Uploader: uploader,
		Prober:   &MockProber{},
		Poller:   fastPoller(),
		Enabled:  []string{"mux", "fastpix"},
	})
	assert.NoError(err)

	uploader.On("Upload", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			engine.Cancel()
		}).
		Return(nil).
		Once()

	runs, err := engine.Run(context.Background(), []transport.File{engineTestFile()})
	assert.ErrorIs(err, ErrCancelled)
	assert.Len(runs, 1)
	assert.Len(runs[0].Results, 1)

	result := runs[0].Results[0]
	assert.Equal(StatusFailed, result.Status)
	assert.Equal("Cancelled", result.Error)

	// a cancelled attempt is not retried and later providers never start
	first.AssertNumberOfCalls(t, "CreateUpload", 1)
	second.AssertNotCalled(t, "CreateUpload", mock.Anything, mock.Anything)
}

func TestEngine_Run_RelayEntryBypassesCreateAndTransfer(t *testing.T) {
	assert := assert.New(t)

	prov := &provider.MockProvider{SlugValue: "apivideo", NameValue: "api.video"}
	prov.On("CheckStatus", mock.Anything, "track-9").Return(&provider.Status{
		Ready:       true,
		PlaybackURL: "https://vod.example/hls/manifest.m3u8",
	}, nil).Once()

	relayUploader := &MockRelayUploader{}
	relayUploader.On("Upload", mock.Anything, "apivideo", mock.Anything).Return("track-9", nil).Once()

	prober := &MockProber{}
	prober.On("MeasureStartup", mock.Anything, mock.Anything).Return(int64(400), nil).Once()

	engine, err := NewEngine(EngineConfig{
		Registry: provider.NewRegistry(provider.Entry{Provider: prov, Relay: true}),
		Uploader: &MockUploader{},
		Relay:    relayUploader,
		Prober:   prober,
		Poller:   fastPoller(),
		Enabled:  []string{"apivideo"},
	})
	assert.NoError(err)

	runs, err := engine.Run(context.Background(), []transport.File{engineTestFile()})
	assert.NoError(err)

	result := runs[0].Results[0]
	assert.Equal(StatusSuccess, result.Status)
	assert.EqualValues(400, result.StartupMs)

	prov.AssertNotCalled(t, "CreateUpload", mock.Anything, mock.Anything)
	relayUploader.AssertExpectations(t)
}

func TestEngine_Run_PublishesProgressAndRuns(t *testing.T) {
	assert := assert.New(t)

	prov := &provider.MockProvider{SlugValue: "mux", NameValue: "Mux"}
	prov.On("CreateUpload", mock.Anything, "").Return(readyUpload("track-1"), nil).Once()
	prov.On("CheckStatus", mock.Anything, "track-1").Return(&provider.Status{}, nil).Once()
	prov.On("CheckStatus", mock.Anything, "track-1").Return(&provider.Status{
		Ready:       true,
		PlaybackURL: "https://stream.mux.com/play.m3u8",
	}, nil).Once()

	uploader := &MockUploader{}
	uploader.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	prober := &MockProber{}
	prober.On("MeasureStartup", mock.Anything, mock.Anything).Return(int64(100), nil).Once()

	var details []string
	var publishCount int

	session := NewSession(SessionConfig{
		OnProgress: func(progress Progress) {
			details = append(details, progress.Detail)
		},
		OnRuns: func(runs []Run) {
			publishCount++
		},
	})

	engine, err := NewEngine(EngineConfig{
		Registry: provider.NewRegistry(provider.Entry{Provider: prov}),
		Uploader: uploader,
		Prober:   prober,
		Poller:   fastPoller(),
		Session:  session,
		Enabled:  []string{"mux"},
	})
	assert.NoError(err)

	runs, err := engine.Run(context.Background(), []transport.File{engineTestFile()})
	assert.NoError(err)

	assert.Contains(details, "Uploading 10 B...")
	assert.Contains(details, "Waiting for readiness...")
	assert.Contains(details, "Poll 1...")
	assert.Contains(details, "Measuring first-frame latency...")
	// once after the provider, once after the file
	assert.Equal(2, publishCount)
	assert.Equal(runs, session.Runs())
}
