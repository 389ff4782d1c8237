package chime

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/oto/v3"
)

// Player drives an oto output stream from a Source
type Player struct {
	log    *slog.Logger
	ctx    *oto.Context
	player *oto.Player
	src    *Source
	muted  atomic.Bool
	mutex  sync.Mutex // Only for setup/control operations
}

// NewPlayer opens the default audio device. It fails when no output device
// is available.
func NewPlayer(volume float64, logger *slog.Logger) (*Player, error) {
	if logger == nil {
		logger = slog.Default()
	}

	op := &oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("open audio context: %w", err)
	}
	<-ready

	src := NewSource(Synthesize(SampleRate), volume)
	return &Player{
		log:    logger.With("component", "chime"),
		ctx:    ctx,
		player: ctx.NewPlayer(src),
		src:    src,
	}, nil
}

// Start begins the chirp loop unless muted
func (p *Player) Start() {
	if p.muted.Load() {
		return
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.player == nil {
		return
	}
	p.src.Start()
	if !p.player.IsPlaying() {
		p.player.Play()
	}
	p.log.Debug("chime started")
}

// Stop silences the chirp loop
func (p *Player) Stop() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.src.Stop()
	if p.player != nil && p.player.IsPlaying() {
		p.player.Pause()
	}
}

// SetMuted mutes or unmutes; muting also stops a running chirp
func (p *Player) SetMuted(muted bool) {
	p.muted.Store(muted)
	if muted {
		p.Stop()
	}
	p.log.Info("chime mute changed", "muted", muted)
}

// ToggleMute flips the mute state and returns the new value
func (p *Player) ToggleMute() bool {
	muted := !p.muted.Load()
	p.SetMuted(muted)
	return muted
}

// Muted reports whether the chime is muted
func (p *Player) Muted() bool {
	return p.muted.Load()
}

// Close releases the output stream
func (p *Player) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.player == nil {
		return nil
	}
	err := p.player.Close()
	p.player = nil
	return err
}
