// Package burst converts a pulse stream into start/end edges: every pulse
// keeps the burst alive for Duration past the most recent pulse.
package burst

import "time"

// DefaultDuration matches the length of one cat spin
const DefaultDuration = 500 * time.Millisecond

// Gate tracks a single burst. It is not safe for concurrent use; drive it
// from the dispatch goroutine.
type Gate struct {
	Duration time.Duration

	// OnStart fires when a pulse arrives while idle
	OnStart func()
	// OnEnd fires from Update once Duration has passed without a pulse
	OnEnd func()

	active bool
	end    time.Time
}

// New creates a gate with the given duration and edge callbacks
func New(d time.Duration, onStart, onEnd func()) *Gate {
	if d <= 0 {
		d = DefaultDuration
	}
	return &Gate{Duration: d, OnStart: onStart, OnEnd: onEnd}
}

// Trigger extends the burst to now+Duration, starting it if idle
func (g *Gate) Trigger(now time.Time) {
	g.end = now.Add(g.Duration)
	if g.active {
		return
	}
	g.active = true
	if g.OnStart != nil {
		g.OnStart()
	}
}

// Update ends the burst once its deadline has passed
func (g *Gate) Update(now time.Time) {
	if !g.active || now.Before(g.end) {
		return
	}
	g.active = false
	if g.OnEnd != nil {
		g.OnEnd()
	}
}

// Active reports whether a burst is in progress
func (g *Gate) Active() bool {
	return g.active
}
