//go:build !windows

package osutils

import "testing"

func TestStubs(t *testing.T) {
	if IsAdmin() {
		t.Error("Expected IsAdmin() to be false off Windows")
	}

	hidden, err := HideConsole()
	if err != nil {
		t.Errorf("HideConsole() error: %v", err)
	}
	if hidden {
		t.Error("Expected HideConsole() to hide nothing off Windows")
	}
}
