package config

import (
	"os"
	"strconv"
)

// LoadFromEnv applies OIIACAT_* environment overrides to cfg.
// Invalid values are ignored.
func LoadFromEnv(cfg *Config) {
	// Detector configuration
	if v := os.Getenv("OIIACAT_DETECT_KEYBOARD"); v != "" {
		if val, err := strconv.ParseBool(v); err == nil {
			cfg.Detector.DetectKeyboard = val
		}
	}

	if v := os.Getenv("OIIACAT_DETECT_MOUSE"); v != "" {
		if val, err := strconv.ParseBool(v); err == nil {
			cfg.Detector.DetectMouseClick = val
		}
	}

	if v := os.Getenv("OIIACAT_TICK_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 1 && ms <= 1000 {
			cfg.Detector.TickIntervalMS = ms
		}
	}

	// Tally configuration
	if dbPath := os.Getenv("OIIACAT_DB_PATH"); dbPath != "" {
		cfg.Tally.Path = dbPath
	}

	// Feed configuration
	if v := os.Getenv("OIIACAT_FEED_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 && port <= 65535 {
			cfg.Feed.Port = port
		}
	}

	if token := os.Getenv("OIIACAT_FEED_TOKEN"); token != "" {
		cfg.Feed.Token = token
	}

	// Logging configuration
	if level := os.Getenv("OIIACAT_LOG_LEVEL"); level != "" {
		switch level {
		case "debug", "info", "warn", "error":
			cfg.General.LogLevel = level
		}
	}

	if format := os.Getenv("OIIACAT_LOG_FORMAT"); format != "" {
		switch format {
		case "auto", "text", "json":
			cfg.General.LogFormat = format
		}
	}
}
