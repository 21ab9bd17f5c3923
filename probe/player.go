// Package probe measures playback startup latency and constrained-bandwidth
// quality of experience against an HLS playback URL. Measurement is
// event-driven: a player implementation emits a stream of playback events and
// the probers fold them into metrics under explicit deadlines.
package probe

import (
	"context"
	"time"
)

type EventType string

const (
	// EventManifestParsed fires once the manifest has been fetched and
	// parsed; the startup timer starts here, not at load initiation, so
	// manifest-fetch latency is excluded from the measurement.
	EventManifestParsed EventType = "manifest-parsed"
	// EventPlaying fires when the first frame renders, and again whenever
	// playback resumes after a stall.
	EventPlaying EventType = "playing"
	// EventWaiting fires when playback stalls on an empty buffer.
	EventWaiting EventType = "waiting"
	// EventFragLoaded fires per downloaded media segment.
	EventFragLoaded EventType = "frag-loaded"
	// EventLevelSwitched fires when the adaptive logic changes quality level.
	EventLevelSwitched EventType = "level-switched"
	// EventError carries playback failures; only fatal ones abort a probe.
	EventError EventType = "error"
)

type Event struct {
	Type EventType

	// frag-loaded payload
	Bytes    int64
	LoadTime time.Duration

	// error payload
	Fatal bool
	Err   error
}

// Player is a live playback instance bound to one manifest. Destroy must be
// idempotent and safe to call from any goroutine.
type Player interface {
	Events() <-chan Event
	Play()
	Destroy()
}

// Options configures a player instance for one measurement.
type Options struct {
	ManifestURL string
	// BandwidthCapKbps pins the player's adaptive-bitrate bandwidth estimate
	// (default and maximum) so it behaves as if bandwidth were capped at that
	// ceiling. Zero leaves the estimate unconstrained. This biases the
	// player's own estimate; it does not shape actual traffic.
	BandwidthCapKbps int
}

type Builder interface {
	Build(ctx context.Context, opts Options) (Player, error)
}
