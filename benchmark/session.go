package benchmark

import (
	"sync"

	"github.com/google/uuid"
)

// Session accumulates the state of one benchmark run and fans updates out to
// observers. Runs are republished in full after every provider completes, so
// observers always render a consistent snapshot.
type Session struct {
	ID string

	mu       sync.Mutex
	runs     []Run
	progress *Progress

	onProgress func(Progress)
	onRuns     func([]Run)
}

type SessionConfig struct {
	OnProgress func(Progress)
	OnRuns     func([]Run)
}

func NewSession(config SessionConfig) *Session {
	return &Session{
		ID:         uuid.NewString(),
		onProgress: config.OnProgress,
		onRuns:     config.OnRuns,
	}
}

func (s *Session) SetProgress(progress Progress) {
	s.mu.Lock()
	s.progress = &progress
	callback := s.onProgress
	s.mu.Unlock()

	if callback != nil {
		callback(progress)
	}
}

// ClearProgress drops the transient progress state once a run finishes or is
// cancelled.
func (s *Session) ClearProgress() {
	s.mu.Lock()
	s.progress = nil
	s.mu.Unlock()
}

func (s *Session) Progress() *Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.progress == nil {
		return nil
	}

	progress := *s.progress
	return &progress
}

// PublishRuns replaces the run snapshot and notifies the observer.
func (s *Session) PublishRuns(runs []Run) {
	snapshot := make([]Run, len(runs))
	copy(snapshot, runs)

	s.mu.Lock()
	s.runs = snapshot
	callback := s.onRuns
	s.mu.Unlock()

	if callback != nil {
		callback(snapshot)
	}
}

func (s *Session) Runs() []Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs := make([]Run, len(s.runs))
	copy(runs, s.runs)
	return runs
}
