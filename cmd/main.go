// oiiacat - global input activity detector
// Counts keystrokes and mouse clicks system-wide and reacts with a chirp,
// a tray counter, a daily tally and an optional local overlay feed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"oiiacat/internal/activity"
	"oiiacat/internal/burst"
	"oiiacat/internal/config"
	"oiiacat/internal/feed"
	"oiiacat/internal/input"
	"oiiacat/internal/logging"
	"oiiacat/internal/protocol"
	"oiiacat/internal/tally"

	"golang.org/x/term"
)

var (
	version   = "0.1.0"
	showVer   = flag.Bool("version", false, "Show version")
	watch     = flag.Bool("watch", false, "Print activity to the terminal instead of running the tray")
	showStats = flag.Bool("stats", false, "Show recorded daily activity")
	follow    = flag.Bool("follow", false, "Print pulses from a running instance's feed")
	cfgPath   = flag.String("config", "", "Path to config file (default: per-user config directory)")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("oiiacat version %s\n", version)
		return
	}

	// Initialize config
	cfgMgr, err := newConfigManager(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize config: %v\n", err)
		os.Exit(1)
	}
	loadErr := cfgMgr.Load()

	cfg := cfgMgr.Get()
	config.LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Config %s: %v\n", cfgMgr.Path(), err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.General.LogLevel,
		Format: cfg.General.LogFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if loadErr != nil {
		logger.Warn("failed to load config, using defaults", "path", cfgMgr.Path(), "error", loadErr)
	}

	switch {
	case *showStats:
		if err := runStats(cfgMgr, cfg); err != nil {
			logger.Error("stats failed", "error", err)
			os.Exit(1)
		}
	case *watch:
		runWatch(cfg, logger)
	case *follow:
		runFollow(cfg, logger)
	default:
		runService(cfgMgr, cfg, logger)
	}
}

func newConfigManager(path string) (*config.Manager, error) {
	if path != "" {
		return config.NewManagerAt(path), nil
	}
	return config.NewManager()
}

// runStats prints the last week of recorded activity
func runStats(cfgMgr *config.Manager, cfg *config.Config) error {
	db, err := tally.Open(cfgMgr.TallyPath(cfg))
	if err != nil {
		return err
	}
	defer db.Close()

	repo := tally.NewRepository(db)
	since := time.Now().AddDate(0, 0, -6)
	rows, err := repo.Since(tally.DayKey(since))
	if err != nil {
		return err
	}
	total, err := repo.Total()
	if err != nil {
		return err
	}

	var peak int64
	for _, row := range rows {
		if row.Count > peak {
			peak = row.Count
		}
	}

	fmt.Println("Daily Activity (last 7 days):")
	fmt.Println("-----------------------------")
	if len(rows) == 0 {
		fmt.Println("  (nothing recorded yet)")
	}
	for _, row := range rows {
		bar := 0
		if peak > 0 {
			bar = int(row.Count * 30 / peak)
		}
		fmt.Printf("  %s  %8d  %s\n", row.Day, row.Count, strings.Repeat("#", bar))
	}
	fmt.Println()
	fmt.Printf("All time: %d\n", total)
	return nil
}

// runWatch runs the detector in the foreground and prints activity
func runWatch(cfg *config.Config, logger *slog.Logger) {
	det := activity.New(input.NewHooks(logger), logger)

	state := det.Enable(activity.Options{
		DetectKeyboard:   cfg.Detector.DetectKeyboard,
		DetectMouseClick: cfg.Detector.DetectMouseClick,
	})
	defer det.Disable()

	if !state.Keyboard && !state.Mouse {
		logger.Warn("no input hooks are active; nothing will be counted")
	}

	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	gate := burst.New(cfg.BurstDuration(), nil, nil)

	if !interactive {
		det.Subscribe(func(count uint32) {
			fmt.Printf("pulse %d\n", count)
		})
	}
	det.Subscribe(func(uint32) {
		gate.Trigger(time.Now())
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "Watching (keyboard: %v, mouse: %v). Press Ctrl+C to stop.\n", state.Keyboard, state.Mouse)

	lastCount, lastActive := uint32(0), false
	det.Run(ctx, cfg.TickInterval(), func(now time.Time) {
		gate.Update(now)
		if !interactive {
			return
		}
		count, active := det.Count(), gate.Active()
		if count == lastCount && active == lastActive {
			return
		}
		lastCount, lastActive = count, active

		cat := "(=^.^=)      "
		if active {
			cat = "(=^o^=) oiia!"
		}
		fmt.Printf("\r%s  %d ", cat, count)
	})

	if interactive {
		fmt.Println()
	}
}

// runFollow prints pulses published by a running service's feed
func runFollow(cfg *config.Config, logger *slog.Logger) {
	if !cfg.Feed.Enabled {
		logger.Warn("feed is disabled in config; waiting for an instance with the feed enabled")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Feed.Port)
	client := feed.NewClient(addr, cfg.Feed.Token, logger)
	client.OnHello = func(p protocol.HelloPayload) {
		fmt.Printf("connected to oiiacat %s (count %d, keyboard: %v, mouse: %v)\n", p.Version, p.Count, p.Keyboard, p.Mouse)
	}
	client.OnPulse = func(p protocol.PulsePayload) {
		fmt.Printf("%s pulse %d\n", time.UnixMilli(p.Timestamp).Format("15:04:05.000"), p.Count)
	}
	client.OnState = func(p protocol.StatePayload) {
		fmt.Printf("detecting keyboard: %v, mouse: %v\n", p.Keyboard, p.Mouse)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	client.Run(ctx)
}
