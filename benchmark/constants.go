// Package benchmark orchestrates the full measurement pipeline: for each file
// and each enabled provider it uploads, polls for readiness, probes playback
// startup, and optionally runs advanced quality-of-experience metrics, then
// aggregates results across files.
package benchmark

import (
	"time"

	"github.com/pkg/errors"
)

const (
	// MaxRetries is retries after the first attempt, so each provider gets
	// MaxRetries+1 attempts per file.
	MaxRetries = 2
	// PollInterval is the pacing between readiness checks.
	PollInterval = 3 * time.Second
	// PollTimeout bounds how long a single upload may stay in processing.
	PollTimeout = 5 * time.Minute
)

// DefaultEnabled is the out-of-the-box provider selection.
var DefaultEnabled = []string{"mux", "fastpix", "apivideo"}

// ErrCancelled marks a run stopped by the operator. Cancelled attempts are
// never retried.
var ErrCancelled = errors.New("Cancelled")
