package probe

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/grafov/m3u8"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// playheadTick is the resolution of the simulated playback clock.
	playheadTick = 100 * time.Millisecond
	// defaultEstimateBps seeds the bandwidth estimate before the first
	// segment sample, matching common player defaults.
	defaultEstimateBps = 500_000
	// Exponential moving average weights for the bandwidth estimate.
	estimateKeep   = 0.7
	estimateSample = 0.3
)

// HLSBuilder builds headless HLS players. A headless player downloads real
// manifests and segments over HTTP and simulates the playback clock against
// the buffered media duration, so startup, stall and quality-switch events
// reflect actual segment delivery.
type HLSBuilder struct {
	// Client defaults to http.DefaultClient.
	Client *http.Client
}

func (b *HLSBuilder) Build(ctx context.Context, opts Options) (Player, error) {
	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}

	playerCtx, cancel := context.WithCancel(ctx)
	player := &hlsPlayer{
		client: client,
		opts:   opts,
		events: make(chan Event, 64),
		play:   make(chan struct{}),
		ctx:    playerCtx,
		cancel: cancel,
		log:    log.With().Str("module", "probe").Str("player", "hls").Logger(),
	}

	go player.run()

	return player, nil
}

type hlsPlayer struct {
	client *http.Client
	opts   Options
	events chan Event
	play   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger

	playOnce    sync.Once
	destroyOnce sync.Once
}

func (h *hlsPlayer) Events() <-chan Event {
	return h.events
}

func (h *hlsPlayer) Play() {
	h.playOnce.Do(func() {
		close(h.play)
	})
}

func (h *hlsPlayer) Destroy() {
	h.destroyOnce.Do(h.cancel)
}

func (h *hlsPlayer) emit(event Event) bool {
	select {
	case h.events <- event:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *hlsPlayer) fatal(err error) {
	h.emit(Event{Type: EventError, Fatal: true, Err: err})
}

type variantStream struct {
	url       *url.URL
	bandwidth int
}

type segment struct {
	url      *url.URL
	duration float64
}

type segmentResult struct {
	bytes    int64
	loadTime time.Duration
	duration float64
	switched bool
	err      error
}

func (h *hlsPlayer) run() {
	defer close(h.events)

	manifestURL, err := url.Parse(h.opts.ManifestURL)
	if err != nil {
		h.fatal(errors.Wrap(err, "invalid manifest url"))
		return
	}

	variants, segments, err := h.loadManifest(manifestURL)
	if err != nil {
		h.fatal(err)
		return
	}

	if !h.emit(Event{Type: EventManifestParsed}) {
		return
	}

	select {
	case <-h.play:
	case <-h.ctx.Done():
		return
	}

	loaded := make(chan segmentResult, 1)
	go h.download(variants, segments, loaded)

	h.simulate(loaded)
}

// loadManifest fetches and parses the manifest. A master playlist yields its
// variant streams; a media playlist yields its segments directly.
func (h *hlsPlayer) loadManifest(manifestURL *url.URL) ([]variantStream, []segment, error) {
	body, err := h.fetch(manifestURL)
	if err != nil {
		return nil, nil, err
	}
	defer body.Close()

	playlist, listType, err := m3u8.DecodeFrom(body, true)
	if err != nil {
		return nil, nil, errors.Wrap(err, "cannot parse manifest")
	}

	switch listType {
	case m3u8.MASTER:
		master, ok := playlist.(*m3u8.MasterPlaylist)
		if !ok {
			return nil, nil, errors.New("unexpected master playlist type")
		}

		var variants []variantStream
		for _, variant := range master.Variants {
			if variant == nil {
				continue
			}

			variantURL, err := manifestURL.Parse(variant.URI)
			if err != nil {
				return nil, nil, errors.Wrap(err, "cannot resolve variant url")
			}

			variants = append(variants, variantStream{
				url:       variantURL,
				bandwidth: int(variant.Bandwidth),
			})
		}

		if len(variants) == 0 {
			return nil, nil, errors.New("master playlist has no variants")
		}

		return variants, nil, nil
	case m3u8.MEDIA:
		media, ok := playlist.(*m3u8.MediaPlaylist)
		if !ok {
			return nil, nil, errors.New("unexpected media playlist type")
		}

		segments := mediaSegments(manifestURL, media)
		if len(segments) == 0 {
			return nil, nil, errors.New("media playlist has no segments")
		}

		return nil, segments, nil
	default:
		return nil, nil, errors.New("unrecognized playlist type")
	}
}

func mediaSegments(base *url.URL, media *m3u8.MediaPlaylist) []segment {
	var segments []segment
	for _, mediaSegment := range media.Segments {
		if mediaSegment == nil {
			continue
		}

		segmentURL, err := base.Parse(mediaSegment.URI)
		if err != nil {
			continue
		}

		segments = append(segments, segment{url: segmentURL, duration: mediaSegment.Duration})
	}

	return segments
}

// download fetches segments sequentially, re-selecting the variant from the
// running bandwidth estimate before each segment. With a bandwidth cap the
// estimate starts at the cap and never exceeds it, so variant selection
// behaves as if the network were limited to the preset's ceiling.
func (h *hlsPlayer) download(variants []variantStream, segments []segment, loaded chan<- segmentResult) {
	defer close(loaded)

	estimate := float64(defaultEstimateBps)
	if h.opts.BandwidthCapKbps > 0 {
		estimate = float64(h.opts.BandwidthCapKbps * 1000)
	}

	current := -1
	index := 0

	for {
		if len(variants) > 0 {
			next := selectVariant(variants, estimate)
			if next != current {
				variantSegments, err := h.loadVariant(variants[next].url)
				if err != nil {
					h.send(loaded, segmentResult{err: err})
					return
				}

				switched := current >= 0
				current = next
				segments = variantSegments

				if switched && !h.send(loaded, segmentResult{switched: true}) {
					return
				}
			}
		}

		if index >= len(segments) {
			return
		}

		result := h.fetchSegment(segments[index])
		if result.err != nil {
			h.send(loaded, result)
			return
		}

		estimate = updateEstimate(estimate, result, h.opts.BandwidthCapKbps)

		if !h.send(loaded, result) {
			return
		}

		index++
	}
}

func (h *hlsPlayer) send(loaded chan<- segmentResult, result segmentResult) bool {
	select {
	case loaded <- result:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *hlsPlayer) loadVariant(variantURL *url.URL) ([]segment, error) {
	body, err := h.fetch(variantURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	playlist, listType, err := m3u8.DecodeFrom(body, true)
	if err != nil {
		return nil, errors.Wrap(err, "cannot parse variant playlist")
	}

	media, ok := playlist.(*m3u8.MediaPlaylist)
	if !ok || listType != m3u8.MEDIA {
		return nil, errors.New("variant is not a media playlist")
	}

	segments := mediaSegments(variantURL, media)
	if len(segments) == 0 {
		return nil, errors.New("variant playlist has no segments")
	}

	return segments, nil
}

func (h *hlsPlayer) fetchSegment(seg segment) segmentResult {
	start := time.Now()

	body, err := h.fetch(seg.url)
	if err != nil {
		return segmentResult{err: err}
	}
	defer body.Close()

	bytes, err := io.Copy(io.Discard, body)
	if err != nil {
		return segmentResult{err: errors.Wrap(err, "segment download failed")}
	}

	return segmentResult{
		bytes:    bytes,
		loadTime: time.Since(start),
		duration: seg.duration,
	}
}

func (h *hlsPlayer) fetch(target *url.URL) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(h.ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "cannot build request")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, errors.Errorf("unexpected status %d fetching %s", resp.StatusCode, target)
	}

	return resp.Body, nil
}

// selectVariant picks the highest-bandwidth variant the estimate can sustain,
// falling back to the lowest when none fits.
func selectVariant(variants []variantStream, estimateBps float64) int {
	best := -1
	lowest := 0

	for i, variant := range variants {
		if variant.bandwidth < variants[lowest].bandwidth {
			lowest = i
		}

		if float64(variant.bandwidth) <= estimateBps {
			if best < 0 || variant.bandwidth > variants[best].bandwidth {
				best = i
			}
		}
	}

	if best < 0 {
		return lowest
	}

	return best
}

func updateEstimate(estimate float64, result segmentResult, capKbps int) float64 {
	seconds := result.loadTime.Seconds()
	if seconds > 0 && result.bytes > 0 {
		sample := float64(result.bytes*8) / seconds
		estimate = estimateKeep*estimate + estimateSample*sample
	}

	if capKbps > 0 {
		ceiling := float64(capKbps * 1000)
		if estimate > ceiling {
			estimate = ceiling
		}
	}

	return estimate
}

// simulate drives the playback clock: the playhead advances while buffered
// media remains, stalls on an empty buffer, and resumes as segments arrive.
func (h *hlsPlayer) simulate(loaded <-chan segmentResult) {
	ticker := time.NewTicker(playheadTick)
	defer ticker.Stop()

	var buffered float64
	started := false
	stalled := false

	for {
		select {
		case <-h.ctx.Done():
			return
		case result, ok := <-loaded:
			if !ok {
				loaded = nil
				continue
			}

			if result.err != nil {
				h.fatal(result.err)
				return
			}

			if result.switched {
				if !h.emit(Event{Type: EventLevelSwitched}) {
					return
				}

				continue
			}

			if !h.emit(Event{Type: EventFragLoaded, Bytes: result.bytes, LoadTime: result.loadTime}) {
				return
			}

			buffered += result.duration
		case <-ticker.C:
			if buffered <= 0 {
				if loaded == nil {
					// nothing left to download; a stream that never
					// buffered any playable media cannot start
					if !started {
						h.fatal(errors.New("stream contains no playable media"))
					}

					return
				}

				if !started || stalled {
					continue
				}

				stalled = true
				if !h.emit(Event{Type: EventWaiting}) {
					return
				}

				continue
			}

			if !started || stalled {
				started = true
				stalled = false

				if !h.emit(Event{Type: EventPlaying}) {
					return
				}
			}

			buffered -= playheadTick.Seconds()
			if buffered < 0 {
				buffered = 0
			}
		}
	}
}
