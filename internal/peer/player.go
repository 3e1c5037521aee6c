package peer

import (
	"sync"

	"go.uber.org/zap"
)

// StatePlayer is a headless Player tracking the final play/pause/
// position state. It backs the CLI harness and tests; a real
// presentation layer would drive an actual media element instead.
type StatePlayer struct {
	logger *zap.SugaredLogger

	mu       sync.Mutex
	position float64
	playing  bool
	reloads  int
}

func NewStatePlayer(logger *zap.SugaredLogger) *StatePlayer {
	return &StatePlayer{logger: logger}
}

func (p *StatePlayer) Play(position float64) error {
	p.mu.Lock()
	p.position = position
	p.playing = true
	p.mu.Unlock()
	if p.logger != nil {
		p.logger.Infow("playback resumed", "position", position)
	}
	return nil
}

func (p *StatePlayer) Pause(position float64) error {
	p.mu.Lock()
	p.position = position
	p.playing = false
	p.mu.Unlock()
	if p.logger != nil {
		p.logger.Infow("playback paused", "position", position)
	}
	return nil
}

func (p *StatePlayer) Seek(position float64) error {
	p.mu.Lock()
	p.position = position
	p.mu.Unlock()
	if p.logger != nil {
		p.logger.Infow("playback position changed", "position", position)
	}
	return nil
}

func (p *StatePlayer) Reload() error {
	p.mu.Lock()
	p.reloads++
	p.mu.Unlock()
	if p.logger != nil {
		p.logger.Infow("media source reloaded")
	}
	return nil
}

func (p *StatePlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *StatePlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *StatePlayer) Reloads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reloads
}
