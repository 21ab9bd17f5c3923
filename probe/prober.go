package probe

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

const (
	// StartupTimeout bounds a single first-frame measurement.
	StartupTimeout = 30 * time.Second
	// AdvancedTimeout bounds the whole capped-bandwidth probe.
	AdvancedTimeout = 45 * time.Second
	// ObservationWindow is how long continued playback is observed once the
	// first frame has rendered.
	ObservationWindow = 10 * time.Second
)

// Prober runs playback measurements against the shared surface. A weighted
// semaphore serializes measurements so only one player instance is ever bound
// to the surface.
type Prober struct {
	builder Builder
	surface *Surface
	sem     *semaphore.Weighted
	log     zerolog.Logger

	startupTimeout    time.Duration
	advancedTimeout   time.Duration
	observationWindow time.Duration
}

type Config struct {
	Builder Builder
	// Surface defaults to a fresh surface.
	Surface *Surface
	// Deadline overrides, used by tests; defaults are the package constants.
	StartupTimeout    time.Duration
	AdvancedTimeout   time.Duration
	ObservationWindow time.Duration
}

func New(config Config) *Prober {
	surface := config.Surface
	if surface == nil {
		surface = NewSurface()
	}

	startupTimeout := config.StartupTimeout
	if startupTimeout <= 0 {
		startupTimeout = StartupTimeout
	}

	advancedTimeout := config.AdvancedTimeout
	if advancedTimeout <= 0 {
		advancedTimeout = AdvancedTimeout
	}

	observationWindow := config.ObservationWindow
	if observationWindow <= 0 {
		observationWindow = ObservationWindow
	}

	return &Prober{
		builder:           config.Builder,
		surface:           surface,
		sem:               semaphore.NewWeighted(1),
		log:               log.With().Str("module", "probe").Logger(),
		startupTimeout:    startupTimeout,
		advancedTimeout:   advancedTimeout,
		observationWindow: observationWindow,
	}
}

func millis(d time.Duration) int64 {
	return int64(math.Round(float64(d) / float64(time.Millisecond)))
}

// MeasureStartup measures wall-clock time from playback initiation to first
// rendered frame. The timer starts on manifest-parsed, isolating
// segment-delivery and decode performance from manifest-fetch latency.
func (p *Prober) MeasureStartup(ctx context.Context, playbackURL string) (int64, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return 0, errors.Wrap(err, "cannot acquire playback surface")
	}
	defer p.sem.Release(1)

	p.surface.Reset()

	ctx, cancel := context.WithTimeout(ctx, p.startupTimeout)
	defer cancel()

	player, err := p.builder.Build(ctx, Options{ManifestURL: playbackURL})
	if err != nil {
		return 0, errors.Wrap(err, "cannot build player")
	}

	p.surface.Attach(player)
	defer p.surface.Reset()

	p.log.Debug().Str("url", playbackURL).Msg("measuring startup latency")

	var start time.Time

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return 0, errors.Errorf("Startup timed out (%ds)", int(p.startupTimeout.Seconds()))
			}

			return 0, ctx.Err()
		case event, ok := <-player.Events():
			if !ok {
				return 0, errors.New("player closed before first frame")
			}

			switch event.Type {
			case EventManifestParsed:
				start = time.Now()
				player.Play()
			case EventPlaying:
				if start.IsZero() {
					continue
				}

				return millis(time.Since(start)), nil
			case EventError:
				if !event.Fatal {
					continue
				}

				if event.Err != nil {
					return 0, event.Err
				}

				return 0, errors.New("playback error")
			}
		}
	}
}

type observationState int

const (
	stateIdle observationState = iota
	stateObserving
	stateStalled
)

// MeasureAdvanced repeats the startup measurement with the player's bandwidth
// estimate pinned to the preset's ceiling, then observes a fixed window of
// continued playback, pairing stall and resume events: one stall timer open
// at a time, closed on resume or at window end.
func (p *Prober) MeasureAdvanced(ctx context.Context, playbackURL string, preset NetworkPreset) (*AdvancedMetrics, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "cannot acquire playback surface")
	}
	defer p.sem.Release(1)

	p.surface.Reset()

	ctx, cancel := context.WithTimeout(ctx, p.advancedTimeout)
	defer cancel()

	player, err := p.builder.Build(ctx, Options{
		ManifestURL:      playbackURL,
		BandwidthCapKbps: preset.MaxBandwidthKbps,
	})
	if err != nil {
		return nil, errors.Wrap(err, "cannot build player")
	}

	p.surface.Attach(player)
	defer p.surface.Reset()

	p.log.Debug().Str("url", playbackURL).Str("preset", preset.Key).Msg("measuring advanced metrics")

	var (
		start              time.Time
		stallStart         time.Time
		throttledStartupMs int64
		rebufferCount      int
		rebufferDuration   time.Duration
		levelSwitchCount   int
		bitrates           []float64
	)

	state := stateIdle

	var window <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, errors.Errorf("Advanced metrics timed out (%ds)", int(p.advancedTimeout.Seconds()))
			}

			return nil, ctx.Err()
		case <-window:
			if state == stateStalled {
				rebufferDuration += time.Since(stallStart)
			}

			return p.finishAdvanced(
				preset,
				throttledStartupMs,
				rebufferCount,
				rebufferDuration,
				levelSwitchCount,
				bitrates,
			), nil
		case event, ok := <-player.Events():
			if !ok {
				return nil, errors.New("player closed during advanced measurement")
			}

			switch event.Type {
			case EventManifestParsed:
				start = time.Now()
				player.Play()
			case EventFragLoaded:
				loadMs := float64(event.LoadTime) / float64(time.Millisecond)
				if loadMs > 0 && event.Bytes > 0 {
					// bits per millisecond is Kbps
					bitrates = append(bitrates, float64(event.Bytes*8)/loadMs)
				}
			case EventLevelSwitched:
				levelSwitchCount++
			case EventWaiting:
				if state == stateObserving {
					rebufferCount++
					stallStart = time.Now()
					state = stateStalled
				}
			case EventPlaying:
				switch state {
				case stateIdle:
					if start.IsZero() {
						continue
					}

					throttledStartupMs = millis(time.Since(start))
					state = stateObserving
					window = time.After(p.observationWindow)
				case stateStalled:
					rebufferDuration += time.Since(stallStart)
					state = stateObserving
				}
			case EventError:
				if !event.Fatal {
					continue
				}

				if event.Err != nil {
					return nil, event.Err
				}

				return nil, errors.New("playback error during advanced metrics")
			}
		}
	}
}

func (p *Prober) finishAdvanced(
	preset NetworkPreset,
	throttledStartupMs int64,
	rebufferCount int,
	rebufferDuration time.Duration,
	levelSwitchCount int,
	bitrates []float64,
) *AdvancedMetrics {
	windowMs := p.observationWindow.Milliseconds()
	rebufferMs := millis(rebufferDuration)

	var ratio float64
	if windowMs > 0 {
		ratio = round4(float64(rebufferMs) / float64(windowMs))
	}

	var average, peak int64
	if len(bitrates) > 0 {
		var sum, max float64
		for _, bitrate := range bitrates {
			sum += bitrate
			if bitrate > max {
				max = bitrate
			}
		}

		average = int64(math.Round(sum / float64(len(bitrates))))
		peak = int64(math.Round(max))
	}

	return &AdvancedMetrics{
		ThrottledStartupMs: throttledStartupMs,
		NetworkPreset:      preset.Key,
		MaxBandwidthKbps:   preset.MaxBandwidthKbps,
		RebufferCount:      rebufferCount,
		RebufferDurationMs: rebufferMs,
		RebufferRatio:      ratio,
		AverageBitrateKbps: average,
		PeakBitrateKbps:    peak,
		SmoothnessScore:    smoothnessScore(rebufferCount, levelSwitchCount),
		LevelSwitchCount:   levelSwitchCount,
		PlaybackDurationMs: windowMs,
	}
}
