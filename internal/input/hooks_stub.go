//go:build !windows

package input

import (
	"errors"
	"fmt"
	"log/slog"
)

// Hooks is the non-Windows stand-in; every install fails with ErrUnsupported
type Hooks struct {
	log *slog.Logger
}

// NewHooks creates a stub hook set
func NewHooks(logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{log: logger.With("component", "hooks")}
}

// Install reports every requested modality as failed
func (h *Hooks) Install(sink Sink, keyboard, mouse bool) (Installed, error) {
	var errs []error
	if keyboard {
		errs = append(errs, fmt.Errorf("keyboard hook: %w", ErrUnsupported))
	}
	if mouse {
		errs = append(errs, fmt.Errorf("mouse hook: %w", ErrUnsupported))
	}
	return Installed{}, errors.Join(errs...)
}

// Uninstall is a no-op
func (h *Hooks) Uninstall() {}
