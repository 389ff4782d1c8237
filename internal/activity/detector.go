// Package activity turns global keyboard and mouse input into a stream of
// de-duplicated activity pulses delivered on a single consumer goroutine.
//
// Hook callbacks (the producer side) only touch the pressed-key set and an
// atomic pending counter. The consumer calls Dispatch once per tick, which
// drains the pending counter and invokes every subscriber once per pulse in
// increasing counter order.
package activity

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"oiiacat/internal/input"
)

// DefaultTickInterval is the dispatch cadence used when none is configured (~60 Hz)
const DefaultTickInterval = 16 * time.Millisecond

// Options selects which modalities to monitor
type Options struct {
	DetectKeyboard   bool
	DetectMouseClick bool

	// KeyObserver, if set, is called from the hook context for every
	// genuine key transition (first press or release, never auto-repeat).
	// It must not block.
	KeyObserver func(vkCode uint32, down bool)
}

// Handler receives one pulse with the running activity count
type Handler func(count uint32)

// SubscriptionID identifies a subscribed Handler
type SubscriptionID uint64

// State describes the detector's current hook state
type State struct {
	Enabled  bool `json:"enabled"`
	Keyboard bool `json:"keyboard"`
	Mouse    bool `json:"mouse"`
}

type subscription struct {
	id SubscriptionID
	fn Handler
}

type keyObserver func(vkCode uint32, down bool)

// Detector is the global activity detector
type Detector struct {
	log   *slog.Logger
	hooks input.Installer

	lifeMu    sync.Mutex
	enabled   bool
	installed input.Installed

	// producer side
	active   atomic.Bool
	observer atomic.Pointer[keyObserver]
	keysMu   sync.Mutex
	pressed  map[uint32]struct{}
	pending  atomic.Int64

	// consumer side
	count atomic.Uint32

	subMu  sync.Mutex
	nextID SubscriptionID
	subs   []subscription
}

// New creates a disabled detector that installs hooks through hooks
func New(hooks input.Installer, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		log:     logger.With("component", "activity"),
		hooks:   hooks,
		pressed: make(map[uint32]struct{}),
	}
}

// Enable installs the hooks requested by opts. A hook that fails to install
// is logged and left inactive; the other modality keeps working. Enabling an
// enabled detector tears the previous hooks down first, exactly like
// Disable: undispatched pulses are dropped and held keys are forgotten.
func (d *Detector) Enable(opts Options) State {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()

	if d.enabled {
		d.teardownLocked()
	}

	if opts.KeyObserver != nil {
		obs := keyObserver(opts.KeyObserver)
		d.observer.Store(&obs)
	}
	d.active.Store(true)

	installed, err := d.hooks.Install(d, opts.DetectKeyboard, opts.DetectMouseClick)
	if err != nil {
		d.log.Warn("hook installation failed, continuing in degraded mode",
			"error", err,
			"keyboard", installed.Keyboard,
			"mouse", installed.Mouse)
	}

	d.installed = installed
	d.enabled = true

	d.log.Info("activity detection enabled",
		"keyboard_requested", opts.DetectKeyboard,
		"keyboard", installed.Keyboard,
		"mouse_requested", opts.DetectMouseClick,
		"mouse", installed.Mouse)

	return d.stateLocked()
}

// Disable uninstalls all hooks, clears the pressed-key set and drops any
// pulses not yet dispatched. Safe to call when already disabled.
func (d *Detector) Disable() {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()

	if !d.enabled {
		return
	}
	d.teardownLocked()
	d.log.Info("activity detection disabled")
}

func (d *Detector) teardownLocked() {
	d.active.Store(false)
	d.hooks.Uninstall()

	d.keysMu.Lock()
	clear(d.pressed)
	d.keysMu.Unlock()

	d.pending.Store(0)
	d.observer.Store(nil)
	d.installed = input.Installed{}
	d.enabled = false
}

// State returns which hooks are currently live
func (d *Detector) State() State {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()
	return d.stateLocked()
}

func (d *Detector) stateLocked() State {
	return State{
		Enabled:  d.enabled,
		Keyboard: d.installed.Keyboard,
		Mouse:    d.installed.Mouse,
	}
}

// Count returns the value carried by the most recently emitted pulse
func (d *Detector) Count() uint32 {
	return d.count.Load()
}

// Subscribe registers fn to receive every pulse on the dispatch goroutine
func (d *Detector) Subscribe(fn Handler) SubscriptionID {
	if fn == nil {
		return 0
	}

	d.subMu.Lock()
	defer d.subMu.Unlock()

	d.nextID++
	d.subs = append(d.subs, subscription{id: d.nextID, fn: fn})
	return d.nextID
}

// Unsubscribe removes a handler. Unknown IDs are ignored.
func (d *Detector) Unsubscribe(id SubscriptionID) {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	for i, s := range d.subs {
		if s.id == id {
			d.subs = append(d.subs[:i:i], d.subs[i+1:]...)
			return
		}
	}
}

func (d *Detector) handlers() []subscription {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	return d.subs
}

// Dispatch drains the pending counter and emits one pulse per drained
// event. It must only be called from a single goroutine. Returns the number
// of pulses emitted.
func (d *Detector) Dispatch() int {
	n := d.pending.Swap(0)
	if n <= 0 {
		return 0
	}

	subs := d.handlers()
	for i := int64(0); i < n; i++ {
		c := d.count.Add(1)
		for _, s := range subs {
			s.fn(c)
		}
	}
	return int(n)
}

// Run dispatches on every tick until ctx is done. onTick, if set, runs on
// the same goroutine right after each Dispatch.
func (d *Detector) Run(ctx context.Context, interval time.Duration, onTick func(now time.Time)) error {
	if interval <= 0 {
		interval = DefaultTickInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.log.Debug("dispatch loop started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			d.log.Debug("dispatch loop stopped")
			return ctx.Err()
		case now := <-ticker.C:
			d.Dispatch()
			if onTick != nil {
				onTick(now)
			}
		}
	}
}

// HandleKey is the keyboard hook sink. Runs on the hook thread.
func (d *Detector) HandleKey(ev input.KeyEvent) {
	if !d.active.Load() {
		return
	}

	down, up := input.ClassifyKey(ev.Message)
	switch {
	case down:
		d.keysMu.Lock()
		_, held := d.pressed[ev.VKCode]
		if !held {
			d.pressed[ev.VKCode] = struct{}{}
		}
		d.keysMu.Unlock()

		// auto-repeat
		if held {
			return
		}
		d.pending.Add(1)
		d.notifyKey(ev.VKCode, true)

	case up:
		d.keysMu.Lock()
		delete(d.pressed, ev.VKCode)
		d.keysMu.Unlock()
		d.notifyKey(ev.VKCode, false)
	}
}

// HandleMouse is the mouse hook sink. Runs on the hook thread.
func (d *Detector) HandleMouse(ev input.MouseEvent) {
	if !d.active.Load() {
		return
	}
	if input.IsButtonDown(ev.Message) {
		d.pending.Add(1)
	}
}

func (d *Detector) notifyKey(vk uint32, down bool) {
	if obs := d.observer.Load(); obs != nil {
		(*obs)(vk, down)
	}
}

func (d *Detector) pressedCount() int {
	d.keysMu.Lock()
	defer d.keysMu.Unlock()
	return len(d.pressed)
}
