package main

import (
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"oiiacat/internal/activity"
	"oiiacat/internal/config"
	"oiiacat/internal/hotkey"
	"oiiacat/internal/input"
)

const (
	vkLCtrl = 0xA2
	vkLAlt  = 0xA4
	vkK     = 0x4B
)

// fakeHooks delivers injected key events to the detector
type fakeHooks struct {
	mu       sync.Mutex
	sink     input.Sink
	keyboard bool
	installs int
}

func (f *fakeHooks) Install(sink input.Sink, keyboard, mouse bool) (input.Installed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installs++
	f.sink = sink
	f.keyboard = keyboard
	return input.Installed{Keyboard: keyboard, Mouse: mouse}, nil
}

func (f *fakeHooks) Uninstall() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keyboard = false
}

func (f *fakeHooks) key(vk, msg uint32) {
	f.mu.Lock()
	sink, live := f.sink, f.keyboard
	f.mu.Unlock()
	if live {
		sink.HandleKey(input.KeyEvent{VKCode: vk, Message: msg})
	}
}

func (f *fakeHooks) keyDown(vk uint32) { f.key(vk, input.WM_KEYDOWN) }
func (f *fakeHooks) keyUp(vk uint32)   { f.key(vk, input.WM_KEYUP) }

func (f *fakeHooks) installCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.installs
}

func newTestService(t *testing.T) (*service, *fakeHooks) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hooks := &fakeHooks{}

	s := &service{
		log:      logger,
		cfgMgr:   config.NewManagerAt(filepath.Join(t.TempDir(), "config.json")),
		det:      activity.New(hooks, logger),
		hkMgr:    hotkey.NewManager(logger),
		keyboard: true,
		mouse:    true,
	}

	cfg := config.DefaultConfig()
	cfg.General.MuteHotkey = ""
	cfg.General.ToggleHotkey = "Ctrl+Alt+K"
	s.registerHotkeys(cfg)
	s.buildTray()
	s.det.Enable(s.options())
	t.Cleanup(s.det.Disable)
	return s, hooks
}

// waitForInstalls waits until the detector has been enabled want times and
// the modality change holding s.mu has finished
func waitForInstalls(t *testing.T, s *service, hooks *fakeHooks, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hooks.installCount() < want {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d installs, got %d", want, hooks.installCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.mu.Lock()
	s.mu.Unlock()
}

func (s *service) mouseEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mouse
}

func TestToggleHotkeyHeldFiresOnce(t *testing.T) {
	s, hooks := newTestService(t)

	hooks.keyDown(vkLCtrl)
	hooks.keyDown(vkLAlt)
	hooks.keyDown(vkK)
	waitForInstalls(t, s, hooks, 2)

	if s.mouseEnabled() {
		t.Fatal("Expected toggle hotkey to disable mouse detection")
	}

	// Keep holding the chord while K auto-repeats
	for i := 0; i < 3; i++ {
		hooks.keyDown(vkK)
	}
	time.Sleep(100 * time.Millisecond)

	if n := hooks.installCount(); n != 2 {
		t.Errorf("Expected the held chord to toggle once, got %d toggles", n-1)
	}
	if s.mouseEnabled() {
		t.Error("Expected mouse detection to stay disabled while the chord is held")
	}
	if s.cfgMgr.Get().Detector.DetectMouseClick {
		t.Error("Expected saved config to have mouse detection disabled")
	}
}

func TestToggleHotkeyFiresAgainAfterRelease(t *testing.T) {
	s, hooks := newTestService(t)

	hooks.keyDown(vkLCtrl)
	hooks.keyDown(vkLAlt)
	hooks.keyDown(vkK)
	waitForInstalls(t, s, hooks, 2)

	hooks.keyUp(vkK)
	hooks.keyUp(vkLAlt)
	hooks.keyUp(vkLCtrl)

	hooks.keyDown(vkLCtrl)
	hooks.keyDown(vkLAlt)
	hooks.keyDown(vkK)
	waitForInstalls(t, s, hooks, 3)

	if !s.mouseEnabled() {
		t.Error("Expected a second press of the chord to re-enable mouse detection")
	}
}

func TestMuteWithoutAudioDevice(t *testing.T) {
	s, _ := newTestService(t)

	if !s.muted() {
		t.Error("Expected no audio device to count as muted")
	}
	s.setMuted(false)
	if !s.muted() {
		t.Error("Expected unmute without an audio device to stay muted")
	}
}
