// Package config provides configuration management for oiiacat.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"oiiacat/internal/hotkey"
)

// ErrInvalidConfig is wrapped by every Validate failure
var ErrInvalidConfig = errors.New("invalid config")

// Config represents the application configuration
type Config struct {
	// Detector selects the monitored modalities
	Detector DetectorConfig `json:"detector"`

	// Chime configures the activity sound
	Chime ChimeConfig `json:"chime"`

	// Burst configures the activity burst window
	Burst BurstConfig `json:"burst"`

	// Tally configures persisted daily totals
	Tally TallyConfig `json:"tally"`

	// Feed configures the local WebSocket feed
	Feed FeedConfig `json:"feed"`

	// General contains general application settings
	General GeneralConfig `json:"general"`
}

// DetectorConfig contains activity detector settings
type DetectorConfig struct {
	// DetectKeyboard installs the low-level keyboard hook
	DetectKeyboard bool `json:"detect_keyboard"`

	// DetectMouseClick installs the low-level mouse hook
	DetectMouseClick bool `json:"detect_mouse_click"`

	// RunInBackground hides the console window at startup (Windows)
	RunInBackground bool `json:"run_in_background"`

	// TickIntervalMS is the dispatch cadence in milliseconds
	TickIntervalMS int `json:"tick_interval_ms"`
}

// ChimeConfig contains activity sound settings
type ChimeConfig struct {
	Enabled bool `json:"enabled"`

	// DurationMS is how long the chime keeps sounding after the last pulse
	DurationMS int `json:"duration_ms"`

	// Volume is between 0 and 1
	Volume float64 `json:"volume"`
}

// BurstConfig contains burst window settings
type BurstConfig struct {
	// DurationMS is how long a burst lasts after the last pulse
	DurationMS int `json:"duration_ms"`
}

// TallyConfig contains daily total persistence settings
type TallyConfig struct {
	Enabled bool `json:"enabled"`

	// Path is the SQLite file; empty means tally.db next to the config file
	Path string `json:"path,omitempty"`

	// FlushIntervalS is how often buffered pulses are written, in seconds
	FlushIntervalS int `json:"flush_interval_s"`
}

// FeedConfig contains WebSocket feed settings
type FeedConfig struct {
	Enabled bool `json:"enabled"`

	// Port is the local TCP port of the feed server
	Port int `json:"port"`

	// Token is an optional authentication token for feed requests
	Token string `json:"token,omitempty"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	// StartOnBoot determines if app starts on user login
	StartOnBoot bool `json:"start_on_boot"`

	// MuteHotkey toggles the chime (e.g. "Ctrl+Alt+M")
	MuteHotkey string `json:"mute_hotkey,omitempty"`

	// ToggleHotkey toggles mouse click detection (e.g. "Ctrl+Alt+K")
	ToggleHotkey string `json:"toggle_hotkey,omitempty"`

	// LogLevel is one of debug, info, warn, error
	LogLevel string `json:"log_level"`

	// LogFormat is one of auto, text, json
	LogFormat string `json:"log_format"`
}

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Detector: DetectorConfig{
			DetectKeyboard:   true,
			DetectMouseClick: true,
			RunInBackground:  true,
			TickIntervalMS:   16,
		},
		Chime: ChimeConfig{
			Enabled:    true,
			DurationMS: 1000,
			Volume:     0.6,
		},
		Burst: BurstConfig{
			DurationMS: 500,
		},
		Tally: TallyConfig{
			Enabled:        true,
			FlushIntervalS: 10,
		},
		Feed: FeedConfig{
			Enabled: false,
			Port:    18095,
		},
		General: GeneralConfig{
			StartOnBoot:  false,
			MuteHotkey:   "Ctrl+Alt+M",
			ToggleHotkey: "Ctrl+Alt+K",
			LogLevel:     "info",
			LogFormat:    "auto",
		},
	}
}

// TickInterval returns the dispatch cadence
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Detector.TickIntervalMS) * time.Millisecond
}

// ChimeDuration returns how long the chime sounds after the last pulse
func (c *Config) ChimeDuration() time.Duration {
	return time.Duration(c.Chime.DurationMS) * time.Millisecond
}

// BurstDuration returns how long a burst lasts after the last pulse
func (c *Config) BurstDuration() time.Duration {
	return time.Duration(c.Burst.DurationMS) * time.Millisecond
}

// FlushInterval returns the tally flush interval
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.Tally.FlushIntervalS) * time.Second
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Detector.TickIntervalMS < 1 || c.Detector.TickIntervalMS > 1000 {
		return fmt.Errorf("%w: tick interval must be between 1 and 1000 ms, got %d",
			ErrInvalidConfig, c.Detector.TickIntervalMS)
	}

	if c.Chime.Volume < 0 || c.Chime.Volume > 1 {
		return fmt.Errorf("%w: chime volume must be between 0 and 1, got %v", ErrInvalidConfig, c.Chime.Volume)
	}
	if c.Chime.DurationMS < 0 {
		return fmt.Errorf("%w: chime duration cannot be negative", ErrInvalidConfig)
	}
	if c.Burst.DurationMS < 0 {
		return fmt.Errorf("%w: burst duration cannot be negative", ErrInvalidConfig)
	}

	if c.Tally.Enabled && c.Tally.FlushIntervalS < 1 {
		return fmt.Errorf("%w: tally flush interval must be at least 1 s, got %d",
			ErrInvalidConfig, c.Tally.FlushIntervalS)
	}

	if c.Feed.Enabled && (c.Feed.Port < 1 || c.Feed.Port > 65535) {
		return fmt.Errorf("%w: feed port must be between 1 and 65535, got %d", ErrInvalidConfig, c.Feed.Port)
	}

	for _, hk := range []string{c.General.MuteHotkey, c.General.ToggleHotkey} {
		if hk == "" {
			continue
		}
		if _, err := hotkey.Parse(hk); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	switch c.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.General.LogLevel)
	}

	switch c.General.LogFormat {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.General.LogFormat)
	}

	return nil
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
}

// NewManager creates a new configuration manager at the OS-specific path
func NewManager() (*Manager, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	return NewManagerAt(configPath), nil
}

// NewManagerAt creates a configuration manager for an explicit file path
func NewManagerAt(path string) *Manager {
	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
	}
}

// getConfigPath returns the path to the configuration file
func getConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "oiiacat")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "oiiacat")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config", "oiiacat")
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}

	return filepath.Join(configDir, "config.json"), nil
}

// Path returns the configuration file path
func (m *Manager) Path() string {
	return m.configPath
}

// TallyPath returns the tally database path, defaulting to tally.db next
// to the config file
func (m *Manager) TallyPath(cfg *Config) string {
	if cfg.Tally.Path != "" {
		return cfg.Tally.Path
	}
	return filepath.Join(filepath.Dir(m.configPath), "tally.db")
}

// Load reads the configuration from disk. A missing file keeps the defaults.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", m.configPath, err)
	}
	m.config = cfg
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	slog.Debug("saving configuration", "path", m.configPath, "bytes", len(data))
	return os.WriteFile(m.configPath, data, 0644)
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg := *m.config
	return &cfg
}

// Update applies fn to the stored configuration under the lock
func (m *Manager) Update(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.config)
}
