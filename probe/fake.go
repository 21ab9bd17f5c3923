package probe

import (
	"context"
	"sync"
)

// ScriptedPlayer is a Player whose events are fed by the test driving it.
type ScriptedPlayer struct {
	events      chan Event
	play        chan struct{}
	done        chan struct{}
	playOnce    sync.Once
	destroyOnce sync.Once
	closeOnce   sync.Once
}

func NewScriptedPlayer() *ScriptedPlayer {
	return &ScriptedPlayer{
		events: make(chan Event, 16),
		play:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (s *ScriptedPlayer) Events() <-chan Event {
	return s.events
}

func (s *ScriptedPlayer) Play() {
	s.playOnce.Do(func() {
		close(s.play)
	})
}

// PlayRequested is closed once Play has been called.
func (s *ScriptedPlayer) PlayRequested() <-chan struct{} {
	return s.play
}

func (s *ScriptedPlayer) Destroy() {
	s.destroyOnce.Do(func() {
		close(s.done)
	})
}

func (s *ScriptedPlayer) Destroyed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Emit delivers an event unless the player has been destroyed.
func (s *ScriptedPlayer) Emit(event Event) bool {
	select {
	case s.events <- event:
		return true
	case <-s.done:
		return false
	}
}

// Close ends the event stream. Only call after the last Emit.
func (s *ScriptedPlayer) Close() {
	s.closeOnce.Do(func() {
		close(s.events)
	})
}

// ScriptedBuilder hands out pre-built players in order.
type ScriptedBuilder struct {
	mu       sync.Mutex
	players  []Player
	BuildErr error
}

func NewScriptedBuilder(players ...Player) *ScriptedBuilder {
	return &ScriptedBuilder{players: players}
}

func (b *ScriptedBuilder) Build(ctx context.Context, opts Options) (Player, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.BuildErr != nil {
		return nil, b.BuildErr
	}

	if len(b.players) == 0 {
		return NewScriptedPlayer(), nil
	}

	player := b.players[0]
	b.players = b.players[1:]
	return player, nil
}
