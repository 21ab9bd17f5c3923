package probe

import (
	"sync"
)

// Surface is the single shared playback surface. At most one player is
// attached at any time; attaching destroys the previous instance first.
type Surface struct {
	mu      sync.Mutex
	current Player
}

func NewSurface() *Surface {
	return &Surface{}
}

func (s *Surface) Attach(player Player) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.current.Destroy()
	}

	s.current = player
}

// Reset detaches and destroys the current player, leaving the surface clean.
func (s *Surface) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.current.Destroy()
		s.current = nil
	}
}
