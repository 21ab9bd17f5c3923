package benchmark

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fastpix01-lab/video-benchmark/probe"
	"github.com/fastpix01-lab/video-benchmark/provider"
	"github.com/fastpix01-lab/video-benchmark/transport"
)

// Uploader moves the file bytes described by an upload descriptor.
type Uploader interface {
	Upload(ctx context.Context, desc provider.UploadDescriptor, file transport.File) error
}

// RelayUploader performs create-then-transfer through the relay and returns
// the tracking id.
type RelayUploader interface {
	Upload(ctx context.Context, slug string, file transport.File) (string, error)
}

// Prober measures playback against a manifest URL.
type Prober interface {
	MeasureStartup(ctx context.Context, playbackURL string) (int64, error)
	MeasureAdvanced(ctx context.Context, playbackURL string, preset probe.NetworkPreset) (*probe.AdvancedMetrics, error)
}

// Engine runs the pipeline strictly sequentially: files in input order,
// providers in registry order, one provider at a time. Sequential execution
// keeps measurements from contending for bandwidth with each other.
type Engine struct {
	registry *provider.Registry
	uploader Uploader
	relay    RelayUploader
	prober   Prober
	poller   Poller
	session  *Session
	enabled  []string
	advanced bool
	preset   probe.NetworkPreset
	origin   string
	log      zerolog.Logger

	// now is swapped out by tests to script the clock.
	now func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
}

type EngineConfig struct {
	Registry *provider.Registry
	Uploader Uploader
	// Relay may be nil when no registered provider routes through the relay.
	Relay  RelayUploader
	Prober Prober
	// Poller zero value uses the package defaults.
	Poller Poller
	// Session is optional; without one, progress and run snapshots are not
	// published.
	Session *Session
	// Enabled defaults to DefaultEnabled.
	Enabled []string
	// Advanced turns on the capped-bandwidth metrics pass using Preset.
	Advanced bool
	Preset   probe.NetworkPreset
	// Origin is passed to providers that take a CORS origin at upload
	// creation.
	Origin string
}

func NewEngine(config EngineConfig) (*Engine, error) {
	if config.Registry == nil {
		return nil, errors.New("registry is required")
	}

	if config.Uploader == nil {
		return nil, errors.New("uploader is required")
	}

	if config.Prober == nil {
		return nil, errors.New("prober is required")
	}

	enabled := config.Enabled
	if len(enabled) == 0 {
		enabled = DefaultEnabled
	}

	return &Engine{
		registry: config.Registry,
		uploader: config.Uploader,
		relay:    config.Relay,
		prober:   config.Prober,
		poller:   config.Poller,
		session:  config.Session,
		enabled:  enabled,
		advanced: config.Advanced,
		preset:   config.Preset,
		origin:   config.Origin,
		log:      log.With().Str("module", "benchmark").Logger(),
		now:      time.Now,
	}, nil
}

// Cancel stops the in-flight run. The current provider finishes as a
// Cancelled failure and everything after it is skipped; completed results are
// kept.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancel != nil {
		e.cancel()
	}
}

// Run benchmarks every enabled provider against every file. On cancellation
// it returns the results completed so far together with ErrCancelled.
func (e *Engine) Run(ctx context.Context, files []transport.File) ([]Run, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	entries := e.registry.Enabled(e.enabled)
	if len(entries) == 0 {
		return nil, errors.New("no enabled providers are registered")
	}

	if e.session != nil {
		defer e.session.ClearProgress()
	}

	runs := make([]Run, 0, len(files))

	for fileIndex, file := range files {
		run := Run{FileName: file.Name, FileSize: file.Size}

		for _, entry := range entries {
			if runCtx.Err() != nil {
				break
			}

			result := e.benchmarkOne(runCtx, fileIndex, file, entry)
			run.Results = append(run.Results, result)

			e.publish(append(append([]Run{}, runs...), run))
		}

		runs = append(runs, run)
		e.publish(runs)

		if runCtx.Err() != nil {
			return runs, ErrCancelled
		}
	}

	return runs, nil
}

func (e *Engine) publish(runs []Run) {
	if e.session != nil {
		e.session.PublishRuns(runs)
	}
}

func (e *Engine) progress(fileIndex int, file transport.File, prov provider.Provider, step Step, detail string) {
	if e.session == nil {
		return
	}

	e.session.SetProgress(Progress{
		FileIndex:    fileIndex,
		FileName:     file.Name,
		ProviderSlug: prov.Slug(),
		ProviderName: prov.Name(),
		Step:         step,
		Detail:       detail,
	})
}

// benchmarkOne runs the whole pipeline for one provider, retrying the entire
// pipeline from upload creation on any failure. Partial progress from a
// failed attempt is worthless for timing, so nothing short of the full
// pipeline is retried.
func (e *Engine) benchmarkOne(ctx context.Context, fileIndex int, file transport.File, entry provider.Entry) Result {
	prov := entry.Provider

	result := Result{
		Provider:     prov.Slug(),
		ProviderName: prov.Name(),
		Status:       StatusFailed,
	}

	var lastErr error

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		detail := fmt.Sprintf("Uploading %s...", humanize.IBytes(uint64(file.Size)))
		if attempt > 0 {
			detail = fmt.Sprintf("Retry %d/%d...", attempt, MaxRetries)
			e.log.Warn().
				Str("provider", prov.Slug()).
				Str("file", file.Name).
				Int("attempt", attempt+1).
				Err(lastErr).
				Msg("retrying benchmark")
		}

		outcome, err := e.attempt(ctx, fileIndex, file, entry, detail)
		if err == nil {
			return *outcome
		}

		if errors.Is(err, ErrCancelled) || ctx.Err() != nil {
			result.Error = ErrCancelled.Error()
			return result
		}

		lastErr = err
	}

	message := "Unknown error"
	if lastErr != nil && lastErr.Error() != "" {
		message = lastErr.Error()
	}

	e.log.Error().
		Str("provider", prov.Slug()).
		Str("file", file.Name).
		Str("error", message).
		Msg("benchmark failed")

	result.Error = message

	return result
}

func (e *Engine) attempt(
	ctx context.Context,
	fileIndex int,
	file transport.File,
	entry provider.Entry,
	uploadDetail string,
) (*Result, error) {
	prov := entry.Provider

	e.progress(fileIndex, file, prov, StepUploading, uploadDetail)

	totalStart := e.now()

	uploadStart := e.now()

	var trackingID string
	if entry.Relay {
		if e.relay == nil {
			return nil, errors.Errorf("provider %s requires a relay but none is configured", prov.Slug())
		}

		relayedID, err := e.relay.Upload(ctx, prov.Slug(), file)
		if err != nil {
			return nil, err
		}

		trackingID = relayedID
	} else {
		created, err := prov.CreateUpload(ctx, e.origin)
		if err != nil {
			return nil, err
		}

		if err = e.uploader.Upload(ctx, created.Upload, file); err != nil {
			return nil, err
		}

		trackingID = created.TrackingID
	}

	uploadMs := e.now().Sub(uploadStart).Milliseconds()

	e.progress(fileIndex, file, prov, StepProcessing, "Waiting for readiness...")

	processingStart := e.now()

	status, err := e.poller.PollUntilReady(ctx, prov, trackingID, func(poll int) {
		e.progress(fileIndex, file, prov, StepProcessing, fmt.Sprintf("Poll %d...", poll))
	})
	if err != nil {
		return nil, err
	}

	processingMs := e.now().Sub(processingStart).Milliseconds()

	if status.PlaybackURL == "" {
		return nil, errors.New("No playback URL returned")
	}

	e.progress(fileIndex, file, prov, StepMeasuring, "Measuring first-frame latency...")

	startupMs, err := e.prober.MeasureStartup(ctx, status.PlaybackURL)
	if err != nil {
		return nil, err
	}

	var advanced *probe.AdvancedMetrics
	if e.advanced {
		e.progress(fileIndex, file, prov, StepMeasuring, "Running advanced metrics...")

		advanced, err = e.prober.MeasureAdvanced(ctx, status.PlaybackURL, e.preset)
		if err != nil {
			return nil, err
		}
	}

	totalMs := e.now().Sub(totalStart).Milliseconds()

	e.log.Info().
		Str("provider", prov.Slug()).
		Str("file", file.Name).
		Int64("uploadMs", uploadMs).
		Int64("processingMs", processingMs).
		Int64("startupMs", startupMs).
		Int64("totalMs", totalMs).
		Msg("benchmark complete")

	return &Result{
		Provider:     prov.Slug(),
		ProviderName: prov.Name(),
		UploadMs:     uploadMs,
		ProcessingMs: processingMs,
		StartupMs:    startupMs,
		TotalMs:      totalMs,
		PlaybackURL:  status.PlaybackURL,
		Status:       StatusSuccess,
		Advanced:     advanced,
	}, nil
}
