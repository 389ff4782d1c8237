package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"oiiacat/internal/activity"
	"oiiacat/internal/autostart"
	"oiiacat/internal/burst"
	"oiiacat/internal/chime"
	"oiiacat/internal/config"
	"oiiacat/internal/feed"
	"oiiacat/internal/hotkey"
	"oiiacat/internal/input"
	"oiiacat/internal/osutils"
	"oiiacat/internal/tally"
	"oiiacat/internal/tray"
)

// service owns the long-lived components of the tray app
type service struct {
	log    *slog.Logger
	cfgMgr *config.Manager
	det    *activity.Detector
	hkMgr  *hotkey.Manager
	player *chime.Player
	feed   *feed.Server
	tray   *tray.Tray

	// mu serializes modality changes from the tray and hotkeys
	mu        sync.Mutex
	keyboard  bool
	mouse     bool
	kbItem    int
	mouseItem int
	muteItem  int
}

func runService(cfgMgr *config.Manager, cfg *config.Config, logger *slog.Logger) {
	logger.Info("oiiacat service starting", "version", version, "config", cfgMgr.Path())

	if cfg.Detector.RunInBackground {
		if hidden, err := osutils.HideConsole(); err != nil {
			logger.Warn("failed to hide console", "error", err)
		} else if hidden {
			logger.Debug("console window hidden")
		}
	}

	if runtime.GOOS == "windows" && !osutils.IsAdmin() {
		logger.Info("not running elevated; input to elevated windows will not be counted")
	}

	if err := autostart.Sync(cfg.General.StartOnBoot); err != nil {
		logger.Warn("failed to update start on boot", "enabled", cfg.General.StartOnBoot, "error", err)
	}

	s := &service{
		log:      logger,
		cfgMgr:   cfgMgr,
		det:      activity.New(input.NewHooks(logger), logger),
		hkMgr:    hotkey.NewManager(logger),
		keyboard: cfg.Detector.DetectKeyboard,
		mouse:    cfg.Detector.DetectMouseClick,
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	// Chime
	var chimeGate *burst.Gate
	if cfg.Chime.Enabled {
		player, err := chime.NewPlayer(cfg.Chime.Volume, logger)
		if err != nil {
			logger.Warn("audio unavailable, running silent", "error", err)
		} else {
			s.player = player
			chimeGate = burst.New(cfg.ChimeDuration(), player.Start, player.Stop)
		}
	}

	// Activity burst
	burstGate := burst.New(cfg.BurstDuration(), func() {
		logger.Debug("activity burst started", "count", s.det.Count())
	}, func() {
		logger.Debug("activity burst ended", "count", s.det.Count())
	})

	s.det.Subscribe(func(uint32) {
		now := time.Now()
		burstGate.Trigger(now)
		if chimeGate != nil {
			chimeGate.Trigger(now)
		}
	})

	// Tally
	var db *tally.DB
	var repo *tally.Repository
	if cfg.Tally.Enabled {
		path := cfgMgr.TallyPath(cfg)
		var err error
		db, err = tally.Open(path)
		if err != nil {
			logger.Warn("daily tally disabled", "path", path, "error", err)
		} else {
			repo = tally.NewRepository(db)
			rec := tally.NewRecorder(repo, cfg.FlushInterval(), logger)
			s.det.Subscribe(rec.OnPulse)

			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := rec.Run(ctx); err != nil {
					logger.Error("final tally flush failed", "error", err, "lost", rec.Pending())
				}
			}()
		}
	}

	// Feed
	if cfg.Feed.Enabled {
		opts := feed.Options{Token: cfg.Feed.Token, Version: version, Burst: cfg.BurstDuration()}
		if repo != nil {
			opts.Totals = repo
		}
		s.feed = feed.NewServer(s.det, opts, logger)
		s.det.Subscribe(s.feed.Publish)

		addr := fmt.Sprintf("127.0.0.1:%d", cfg.Feed.Port)
		go func() {
			if err := s.feed.Start(addr); err != nil {
				logger.Warn("feed unavailable", "addr", addr, "error", err)
			}
		}()
	}

	s.registerHotkeys(cfg)
	s.buildTray()

	state := s.det.Enable(s.options())
	if !state.Keyboard && !state.Mouse {
		logger.Warn("no input hooks are active; nothing will be counted")
	}

	// Dispatch loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		var lastCount uint32
		s.det.Run(ctx, cfg.TickInterval(), func(now time.Time) {
			burstGate.Update(now)
			if chimeGate != nil {
				chimeGate.Update(now)
			}
			if count := s.det.Count(); count != lastCount {
				lastCount = count
				s.tray.SetTooltip(fmt.Sprintf("oiiacat: %d", count))
			}
		})
	}()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		s.tray.Stop()
	}()

	logger.Info("oiiacat running", "keyboard", state.Keyboard, "mouse", state.Mouse)
	s.tray.Run()

	// Tray loop has exited; tear down in dependency order
	s.det.Disable()
	cancel()
	wg.Wait()

	if s.feed != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.feed.Shutdown(shutdownCtx); err != nil {
			logger.Warn("feed shutdown", "error", err)
		}
		done()
	}
	if s.player != nil {
		s.player.Close()
	}
	if db != nil {
		if err := db.Close(); err != nil {
			logger.Warn("failed to close tally database", "error", err)
		}
	}
	logger.Info("oiiacat stopped", "count", s.det.Count())
}

func (s *service) options() activity.Options {
	return activity.Options{
		DetectKeyboard:   s.keyboard,
		DetectMouseClick: s.mouse,
		KeyObserver:      s.hkMgr.HandleKey,
	}
}

// setModalities re-enables the detector with the modalities returned by
// change and persists them
func (s *service) setModalities(change func(keyboard, mouse bool) (bool, bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keyboard, mouse := change(s.keyboard, s.mouse)
	s.keyboard, s.mouse = keyboard, mouse

	// Enable forgets held keys, so the next auto-repeat of a chord key is
	// seen as a fresh press. The manager must not still hold the rest of
	// the chord when that happens.
	s.hkMgr.ReleaseAll()
	state := s.det.Enable(s.options())
	if !state.Keyboard {
		s.hkMgr.ReleaseAll()
	}

	s.tray.SetItemChecked(s.kbItem, keyboard)
	s.tray.SetItemChecked(s.mouseItem, mouse)
	if s.feed != nil {
		s.feed.PublishState(state)
	}

	s.cfgMgr.Update(func(c *config.Config) {
		c.Detector.DetectKeyboard = keyboard
		c.Detector.DetectMouseClick = mouse
	})
	if err := s.cfgMgr.Save(); err != nil {
		s.log.Warn("failed to save config", "error", err)
	}
}

func (s *service) setMuted(muted bool) {
	if s.player != nil {
		s.player.SetMuted(muted)
	}
	s.tray.SetItemChecked(s.muteItem, s.muted())
}

// muted reports the chime state shown in the tray; no audio device counts
// as muted
func (s *service) muted() bool {
	return s.player == nil || s.player.Muted()
}

func (s *service) registerHotkeys(cfg *config.Config) {
	s.hkMgr.Clear()

	if cfg.General.MuteHotkey != "" {
		_, err := s.hkMgr.Register(cfg.General.MuteHotkey, func() {
			if s.player == nil {
				return
			}
			s.tray.SetItemChecked(s.muteItem, s.player.ToggleMute())
		})
		if err != nil {
			s.log.Warn("failed to register mute hotkey", "hotkey", cfg.General.MuteHotkey, "error", err)
		}
	}

	if cfg.General.ToggleHotkey != "" {
		_, err := s.hkMgr.Register(cfg.General.ToggleHotkey, func() {
			s.setModalities(func(keyboard, mouse bool) (bool, bool) {
				return keyboard, !mouse
			})
		})
		if err != nil {
			s.log.Warn("failed to register toggle hotkey", "hotkey", cfg.General.ToggleHotkey, "error", err)
		}
	}
}

func (s *service) buildTray() {
	s.tray = tray.New("oiiacat: 0")

	s.kbItem = s.tray.AddCheckbox("Detect keyboard", s.keyboard, func(checked bool) {
		s.setModalities(func(_, mouse bool) (bool, bool) {
			return checked, mouse
		})
	})

	s.mouseItem = s.tray.AddCheckbox("Detect mouse clicks", s.mouse, func(checked bool) {
		s.setModalities(func(keyboard, _ bool) (bool, bool) {
			return keyboard, checked
		})
	})

	s.muteItem = s.tray.AddCheckbox("Mute sound", s.muted(), s.setMuted)

	s.tray.AddSeparator()

	s.tray.AddMenuItem("Quit", func() {
		s.tray.Stop()
	})
}
