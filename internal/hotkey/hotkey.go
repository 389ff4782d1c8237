// Package hotkey matches global key chords such as "Ctrl+Alt+M".
//
// The manager installs no hooks of its own. It is fed key transitions by
// the activity detector's key observer, so a single keyboard hook serves
// both activity detection and hotkeys.
package hotkey

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Manager handles global hotkey registration and matching
type Manager struct {
	log          *slog.Logger
	mu           sync.RWMutex
	hotkeys      []*registeredHotkey
	currentState map[string]bool // map of current keys pressed
}

type registeredHotkey struct {
	parts    []string // e.g., ["CTRL", "ALT", "M"]
	original string
	callback func()
}

// NewManager creates a new hotkey manager
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		log:          logger.With("component", "hotkey"),
		currentState: make(map[string]bool),
	}
}

// Parse splits a hotkey string into upper-case key tokens and checks that
// every token names a known key.
func Parse(hotkeyStr string) ([]string, error) {
	parts := strings.Split(strings.ToUpper(hotkeyStr), "+")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		switch p {
		case "CONTROL":
			p = "CTRL"
		case "CMD", "META", "SUPER":
			p = "WIN"
		case "ESCAPE":
			p = "ESC"
		}
		if !knownTokens[p] {
			return nil, fmt.Errorf("unknown key %q in hotkey %q", p, hotkeyStr)
		}
		parts[i] = p
	}
	return parts, nil
}

// Register registers a hotkey string (e.g. "Ctrl+Alt+1") and a callback.
// An empty string registers nothing.
func (m *Manager) Register(hotkeyStr string, callback func()) (int, error) {
	if hotkeyStr == "" {
		return 0, nil
	}

	parts, err := Parse(hotkeyStr)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.hotkeys = append(m.hotkeys, &registeredHotkey{
		parts:    parts,
		original: hotkeyStr,
		callback: callback,
	})

	return len(m.hotkeys) - 1, nil
}

// Clear removes all registered hotkeys
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hotkeys = nil
}

// ReleaseAll forgets every held key. Call it when the key source stops
// delivering releases, e.g. after the keyboard hook is removed.
func (m *Manager) ReleaseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentState = make(map[string]bool)
}

// HandleKey feeds one virtual-key transition. It matches the signature of
// the activity detector's key observer and does not block.
func (m *Manager) HandleKey(vkCode uint32, down bool) {
	if name := vkCodeToName(vkCode); name != "" {
		m.UpdateState(name, down)
	}
}

// UpdateState updates the internal state of a key and checks for matches.
func (m *Manager) UpdateState(key string, isDown bool) {
	m.mu.Lock()
	key = strings.ToUpper(key)
	if isDown {
		m.currentState[key] = true
	} else {
		delete(m.currentState, key)
	}
	m.mu.Unlock()

	if isDown {
		m.checkMatches(key)
	}
}

// checkMatches fires hotkeys completed by the key that just went down
func (m *Manager) checkMatches(trigger string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, hk := range m.hotkeys {
		match := true
		involved := false
		for _, part := range hk.parts {
			if !m.currentState[part] {
				match = false
				break
			}
			if part == trigger {
				involved = true
			}
		}

		if match && involved {
			m.log.Info("hotkey triggered", "hotkey", hk.original)
			go hk.callback()
		}
	}
}
