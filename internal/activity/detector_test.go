package activity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"oiiacat/internal/input"
)

const (
	vkA     = 0x41
	vkB     = 0x42
	vkShift = 0xA0
)

// fakeHooks stands in for the OS hook API and lets tests inject raw events
type fakeHooks struct {
	mu           sync.Mutex
	sink         input.Sink
	installed    input.Installed
	installs     int
	uninstalls   int
	failKeyboard bool
	failMouse    bool
}

func (f *fakeHooks) Install(sink input.Sink, keyboard, mouse bool) (input.Installed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.installs++
	f.sink = sink
	f.installed = input.Installed{
		Keyboard: keyboard && !f.failKeyboard,
		Mouse:    mouse && !f.failMouse,
	}

	var errs []error
	if keyboard && f.failKeyboard {
		errs = append(errs, errors.New("keyboard hook: access denied"))
	}
	if mouse && f.failMouse {
		errs = append(errs, errors.New("mouse hook: access denied"))
	}
	return f.installed, errors.Join(errs...)
}

func (f *fakeHooks) Uninstall() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uninstalls++
	f.installed = input.Installed{}
}

func (f *fakeHooks) key(vk uint32, msg uint32) {
	f.mu.Lock()
	sink, live := f.sink, f.installed.Keyboard
	f.mu.Unlock()
	if live {
		sink.HandleKey(input.KeyEvent{VKCode: vk, Message: msg})
	}
}

func (f *fakeHooks) keyDown(vk uint32) { f.key(vk, input.WM_KEYDOWN) }
func (f *fakeHooks) keyUp(vk uint32)   { f.key(vk, input.WM_KEYUP) }

func (f *fakeHooks) mouse(msg uint32) {
	f.mu.Lock()
	sink, live := f.sink, f.installed.Mouse
	f.mu.Unlock()
	if live {
		sink.HandleMouse(input.MouseEvent{Message: msg})
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDetector(t *testing.T) (*Detector, *fakeHooks, *[]uint32) {
	t.Helper()
	hooks := &fakeHooks{}
	d := New(hooks, quietLogger())
	var pulses []uint32
	d.Subscribe(func(count uint32) {
		pulses = append(pulses, count)
	})
	return d, hooks, &pulses
}

func bothModalities() Options {
	return Options{DetectKeyboard: true, DetectMouseClick: true}
}

func expectPulses(t *testing.T, got []uint32, want ...uint32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("Expected %d pulses %v, got %d pulses %v", len(want), want, len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Pulse %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

// TestKeyRepeatSuppressed tests that a held key produces a single pulse
func TestKeyRepeatSuppressed(t *testing.T) {
	for _, repeats := range []int{0, 1, 5, 100} {
		t.Run(fmt.Sprintf("repeats=%d", repeats), func(t *testing.T) {
			d, hooks, pulses := newTestDetector(t)
			d.Enable(bothModalities())

			hooks.keyDown(vkA)
			for i := 0; i < repeats; i++ {
				hooks.keyDown(vkA)
			}

			if n := d.Dispatch(); n != 1 {
				t.Errorf("Expected 1 pulse dispatched, got %d", n)
			}
			expectPulses(t, *pulses, 1)
		})
	}
}

// TestSystemKeyRepeatSuppressed tests that WM_SYSKEYDOWN repeats are filtered too
func TestSystemKeyRepeatSuppressed(t *testing.T) {
	d, hooks, pulses := newTestDetector(t)
	d.Enable(bothModalities())

	hooks.key(vkA, input.WM_SYSKEYDOWN)
	hooks.key(vkA, input.WM_SYSKEYDOWN)
	hooks.key(vkA, input.WM_SYSKEYUP)
	hooks.key(vkA, input.WM_SYSKEYDOWN)
	d.Dispatch()

	expectPulses(t, *pulses, 1, 2)
}

// TestRepressAfterRelease tests that each down-after-up counts once
func TestRepressAfterRelease(t *testing.T) {
	d, hooks, pulses := newTestDetector(t)
	d.Enable(bothModalities())

	for i := 0; i < 3; i++ {
		hooks.keyDown(vkA)
		hooks.keyDown(vkA)
		hooks.keyUp(vkA)
	}
	hooks.keyUp(vkA)
	d.Dispatch()

	expectPulses(t, *pulses, 1, 2, 3)
}

// TestDistinctKeysCountSeparately tests that chords count every key
func TestDistinctKeysCountSeparately(t *testing.T) {
	d, hooks, pulses := newTestDetector(t)
	d.Enable(bothModalities())

	hooks.keyDown(vkShift)
	hooks.keyDown(vkA)
	hooks.keyDown(vkShift)
	hooks.keyDown(vkB)
	d.Dispatch()

	expectPulses(t, *pulses, 1, 2, 3)
}

// TestMouseButtons tests that every button press counts and motion does not
func TestMouseButtons(t *testing.T) {
	d, hooks, pulses := newTestDetector(t)
	d.Enable(bothModalities())

	for _, msg := range []uint32{input.WM_LBUTTONDOWN, input.WM_RBUTTONDOWN, input.WM_MBUTTONDOWN, input.WM_XBUTTONDOWN} {
		hooks.mouse(msg)
	}
	for _, msg := range []uint32{input.WM_MOUSEMOVE, input.WM_LBUTTONUP, input.WM_RBUTTONUP, input.WM_MOUSEWHEEL} {
		hooks.mouse(msg)
	}
	// no de-duplication for mouse
	hooks.mouse(input.WM_LBUTTONDOWN)
	hooks.mouse(input.WM_LBUTTONDOWN)
	d.Dispatch()

	expectPulses(t, *pulses, 1, 2, 3, 4, 5, 6)
}

// TestDispatchIdempotent tests that an empty drain emits nothing
func TestDispatchIdempotent(t *testing.T) {
	d, hooks, pulses := newTestDetector(t)
	d.Enable(bothModalities())

	if n := d.Dispatch(); n != 0 {
		t.Errorf("Expected 0 pulses on empty drain, got %d", n)
	}

	hooks.keyDown(vkA)
	d.Dispatch()
	before := d.Count()

	for i := 0; i < 3; i++ {
		if n := d.Dispatch(); n != 0 {
			t.Errorf("Expected 0 pulses on repeated drain, got %d", n)
		}
	}
	if d.Count() != before {
		t.Errorf("Expected count to stay %d, got %d", before, d.Count())
	}
	expectPulses(t, *pulses, 1)
}

// TestBurstCoalescing tests that N events between ticks yield N ordered pulses
func TestBurstCoalescing(t *testing.T) {
	d, hooks, pulses := newTestDetector(t)
	d.Enable(bothModalities())

	hooks.keyDown(vkA)
	d.Dispatch()

	const n = 50
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			hooks.mouse(input.WM_LBUTTONDOWN)
		} else {
			vk := uint32(0x30 + i%10)
			hooks.keyDown(vk)
			hooks.keyUp(vk)
		}
	}

	if got := d.Dispatch(); got != n {
		t.Fatalf("Expected %d pulses, got %d", n, got)
	}

	if len(*pulses) != n+1 {
		t.Fatalf("Expected %d total pulses, got %d", n+1, len(*pulses))
	}
	for i, v := range *pulses {
		if v != uint32(i+1) {
			t.Fatalf("Expected gapless sequence, pulse %d carried %d", i, v)
		}
	}
}

// TestDisableClearsPressedKeys tests that a held key is forgotten on disable
func TestDisableClearsPressedKeys(t *testing.T) {
	d, hooks, pulses := newTestDetector(t)
	d.Enable(bothModalities())

	hooks.keyDown(vkA)
	d.Dispatch()
	if d.pressedCount() != 1 {
		t.Fatalf("Expected 1 pressed key, got %d", d.pressedCount())
	}

	d.Disable()
	if d.pressedCount() != 0 {
		t.Errorf("Expected pressed-key set empty after disable, got %d", d.pressedCount())
	}

	d.Enable(bothModalities())
	hooks.keyDown(vkA)
	d.Dispatch()

	expectPulses(t, *pulses, 1, 2)
}

// TestDisableDropsPending tests that undispatched activity does not survive disable
func TestDisableDropsPending(t *testing.T) {
	d, hooks, pulses := newTestDetector(t)
	d.Enable(bothModalities())

	hooks.keyDown(vkA)
	hooks.mouse(input.WM_LBUTTONDOWN)
	d.Disable()

	if n := d.Dispatch(); n != 0 {
		t.Errorf("Expected 0 pulses after disable, got %d", n)
	}

	// stale sink reference still held by a hook
	hooks.sink.HandleMouse(input.MouseEvent{Message: input.WM_LBUTTONDOWN})
	if n := d.Dispatch(); n != 0 {
		t.Errorf("Expected events after disable to be ignored, got %d pulses", n)
	}
	expectPulses(t, *pulses)
}

// TestDisableIdempotent tests double-disable and disable-without-enable
func TestDisableIdempotent(t *testing.T) {
	d, hooks, _ := newTestDetector(t)

	d.Disable()
	if hooks.uninstalls != 0 {
		t.Errorf("Expected no uninstall before enable, got %d", hooks.uninstalls)
	}

	d.Enable(bothModalities())
	d.Disable()
	d.Disable()
	if hooks.uninstalls != 1 {
		t.Errorf("Expected exactly 1 uninstall, got %d", hooks.uninstalls)
	}
	if d.State().Enabled {
		t.Error("Expected detector to be disabled")
	}
}

// TestEnableReconfigures tests that enabling twice reinstalls hooks
func TestEnableReconfigures(t *testing.T) {
	d, hooks, pulses := newTestDetector(t)

	state := d.Enable(Options{DetectKeyboard: true})
	if !state.Keyboard || state.Mouse {
		t.Errorf("Expected keyboard-only state, got %+v", state)
	}

	hooks.keyDown(vkA)
	state = d.Enable(Options{DetectMouseClick: true})
	if state.Keyboard || !state.Mouse {
		t.Errorf("Expected mouse-only state, got %+v", state)
	}
	if hooks.installs != 2 || hooks.uninstalls != 1 {
		t.Errorf("Expected 2 installs and 1 uninstall, got %d and %d", hooks.installs, hooks.uninstalls)
	}

	hooks.keyDown(vkB)
	hooks.mouse(input.WM_RBUTTONDOWN)
	d.Dispatch()
	expectPulses(t, *pulses, 1)
}

// TestReconfigureDropsPending tests that a reconfiguring Enable shares the
// Disable teardown
func TestReconfigureDropsPending(t *testing.T) {
	d, hooks, pulses := newTestDetector(t)
	d.Enable(bothModalities())

	hooks.keyDown(vkA)
	hooks.mouse(input.WM_LBUTTONDOWN)
	d.Enable(bothModalities())

	if n := d.Dispatch(); n != 0 {
		t.Errorf("Expected 0 pulses after reconfigure, got %d", n)
	}
	if d.pressedCount() != 0 {
		t.Errorf("Expected pressed-key set empty after reconfigure, got %d", d.pressedCount())
	}

	// A held key's next auto-repeat is now a fresh press
	hooks.keyDown(vkA)
	d.Dispatch()
	expectPulses(t, *pulses, 1)
}

// TestPartialInstall tests degraded mode when one hook fails
func TestPartialInstall(t *testing.T) {
	d, hooks, pulses := newTestDetector(t)
	hooks.failKeyboard = true

	state := d.Enable(bothModalities())
	if !state.Enabled || state.Keyboard || !state.Mouse {
		t.Fatalf("Expected enabled mouse-only state, got %+v", state)
	}

	hooks.keyDown(vkA)
	hooks.mouse(input.WM_LBUTTONDOWN)
	d.Dispatch()
	expectPulses(t, *pulses, 1)
}

// TestAllHooksFail tests that total failure still leaves a usable detector
func TestAllHooksFail(t *testing.T) {
	d, hooks, _ := newTestDetector(t)
	hooks.failKeyboard = true
	hooks.failMouse = true

	state := d.Enable(bothModalities())
	if !state.Enabled || state.Keyboard || state.Mouse {
		t.Errorf("Expected enabled state with no hooks, got %+v", state)
	}
	if n := d.Dispatch(); n != 0 {
		t.Errorf("Expected 0 pulses, got %d", n)
	}
	d.Disable()
}

// TestScenarioKeyboardRepeat covers enable, A, A (repeat), release A, A, tick
func TestScenarioKeyboardRepeat(t *testing.T) {
	d, hooks, pulses := newTestDetector(t)
	d.Enable(bothModalities())

	hooks.keyDown(vkA)
	hooks.keyDown(vkA)
	hooks.keyUp(vkA)
	hooks.keyDown(vkA)

	if n := d.Dispatch(); n != 2 {
		t.Errorf("Expected 2 pulses, got %d", n)
	}
	expectPulses(t, *pulses, 1, 2)
}

// TestScenarioMouseOnly covers mouse-only: left, right, five moves, tick
func TestScenarioMouseOnly(t *testing.T) {
	d, hooks, pulses := newTestDetector(t)
	d.Enable(Options{DetectMouseClick: true})

	hooks.mouse(input.WM_LBUTTONDOWN)
	hooks.mouse(input.WM_RBUTTONDOWN)
	for i := 0; i < 5; i++ {
		hooks.mouse(input.WM_MOUSEMOVE)
	}
	hooks.keyDown(vkA)

	if n := d.Dispatch(); n != 2 {
		t.Errorf("Expected 2 pulses, got %d", n)
	}
	expectPulses(t, *pulses, 1, 2)
}

// TestUnsubscribe tests handler removal
func TestUnsubscribe(t *testing.T) {
	d, hooks, pulses := newTestDetector(t)
	d.Enable(bothModalities())

	var other []uint32
	id := d.Subscribe(func(count uint32) { other = append(other, count) })
	if id == 0 {
		t.Fatal("Expected non-zero subscription ID")
	}

	hooks.mouse(input.WM_LBUTTONDOWN)
	d.Dispatch()

	d.Unsubscribe(id)
	d.Unsubscribe(id)
	d.Unsubscribe(9999)

	hooks.mouse(input.WM_LBUTTONDOWN)
	d.Dispatch()

	expectPulses(t, other, 1)
	expectPulses(t, *pulses, 1, 2)

	if d.Subscribe(nil) != 0 {
		t.Error("Expected nil handler to be rejected")
	}
}

// TestUnsubscribeDuringDispatch tests that a handler can remove itself mid-burst
func TestUnsubscribeDuringDispatch(t *testing.T) {
	d, hooks, pulses := newTestDetector(t)
	d.Enable(bothModalities())

	var once []uint32
	var id SubscriptionID
	id = d.Subscribe(func(count uint32) {
		once = append(once, count)
		d.Unsubscribe(id)
	})

	hooks.mouse(input.WM_LBUTTONDOWN)
	hooks.mouse(input.WM_LBUTTONDOWN)
	hooks.mouse(input.WM_LBUTTONDOWN)
	d.Dispatch()
	hooks.mouse(input.WM_LBUTTONDOWN)
	d.Dispatch()

	// the snapshot taken at drain time still covers the whole burst
	expectPulses(t, once, 1, 2, 3)
	expectPulses(t, *pulses, 1, 2, 3, 4)
}

// TestKeyObserver tests that the observer sees transitions but not repeats
func TestKeyObserver(t *testing.T) {
	d, hooks, _ := newTestDetector(t)

	type transition struct {
		vk   uint32
		down bool
	}
	var seen []transition
	opts := bothModalities()
	opts.KeyObserver = func(vk uint32, down bool) {
		seen = append(seen, transition{vk, down})
	}
	d.Enable(opts)

	hooks.keyDown(vkA)
	hooks.keyDown(vkA)
	hooks.keyUp(vkA)

	want := []transition{{vkA, true}, {vkA, false}}
	if len(seen) != len(want) {
		t.Fatalf("Expected %d transitions, got %v", len(want), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("Transition %d: expected %+v, got %+v", i, want[i], seen[i])
		}
	}

	d.Enable(bothModalities())
	hooks.keyDown(vkB)
	if len(seen) != len(want) {
		t.Errorf("Expected observer to be dropped on reconfigure, got %v", seen)
	}
}

// TestConcurrentProducers tests that concurrent hook events are all counted
func TestConcurrentProducers(t *testing.T) {
	hooks := &fakeHooks{}
	d := New(hooks, quietLogger())
	d.Enable(bothModalities())

	var (
		total uint32
		last  uint32
		gaps  int
	)
	d.Subscribe(func(count uint32) {
		total++
		if count != last+1 {
			gaps++
		}
		last = count
	})

	const (
		workers = 8
		presses = 500
	)

	stop := make(chan struct{})
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			select {
			case <-stop:
				d.Dispatch()
				return
			default:
				d.Dispatch()
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(vk uint32) {
			defer wg.Done()
			for i := 0; i < presses; i++ {
				hooks.keyDown(vk)
				hooks.keyDown(vk)
				hooks.keyUp(vk)
				hooks.mouse(input.WM_MBUTTONDOWN)
			}
		}(uint32(0x41 + w))
	}
	wg.Wait()
	close(stop)
	<-drained

	want := uint32(workers * presses * 2)
	if total != want {
		t.Errorf("Expected %d pulses, got %d", want, total)
	}
	if d.Count() != want {
		t.Errorf("Expected count %d, got %d", want, d.Count())
	}
	if gaps != 0 {
		t.Errorf("Expected no gaps in pulse sequence, got %d", gaps)
	}
}

// TestRun tests the periodic dispatch loop
func TestRun(t *testing.T) {
	d, hooks, pulses := newTestDetector(t)
	d.Enable(bothModalities())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hooks.mouse(input.WM_LBUTTONDOWN)
	hooks.keyDown(vkA)
	hooks.keyDown(vkB)

	ticks := 0
	err := d.Run(ctx, time.Millisecond, func(now time.Time) {
		ticks++
		if d.Count() == 3 {
			cancel()
		}
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if ticks == 0 {
		t.Error("Expected at least one tick")
	}
	expectPulses(t, *pulses, 1, 2, 3)
}
