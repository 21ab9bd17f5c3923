package benchmark

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/fastpix01-lab/video-benchmark/provider"
)

// Poller asks a provider for processing status on a fixed cadence until the
// asset is ready, the provider reports failure, or the timeout elapses.
type Poller struct {
	// Interval defaults to PollInterval, Timeout to PollTimeout.
	Interval time.Duration
	Timeout  time.Duration
}

func (p *Poller) interval() time.Duration {
	if p.Interval > 0 {
		return p.Interval
	}

	return PollInterval
}

func (p *Poller) timeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}

	return PollTimeout
}

// PollUntilReady returns the status report that declared the asset ready, so
// the caller sees exactly what the provider attached to it. A reported
// failure aborts immediately instead of burning the rest of the window.
// onTick, if set, is invoked after each non-terminal report with the 1-based
// poll count.
func (p *Poller) PollUntilReady(
	ctx context.Context,
	prov provider.Provider,
	trackingID string,
	onTick func(poll int),
) (*provider.Status, error) {
	deadline := time.After(p.timeout())
	polls := 0

	for {
		select {
		case <-ctx.Done():
			return nil, ErrCancelled
		case <-deadline:
			return nil, errors.New("Timed out waiting for readiness")
		default:
		}

		status, err := prov.CheckStatus(ctx, trackingID)
		if err != nil {
			return nil, err
		}

		if status.Failed {
			if status.Error != "" {
				return nil, errors.New(status.Error)
			}

			return nil, errors.New("Processing failed")
		}

		if status.Ready {
			return status, nil
		}

		polls++
		if onTick != nil {
			onTick(polls)
		}

		select {
		case <-ctx.Done():
			return nil, ErrCancelled
		case <-deadline:
			return nil, errors.New("Timed out waiting for readiness")
		case <-time.After(p.interval()):
		}
	}
}
