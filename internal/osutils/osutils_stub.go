//go:build !windows

// Package osutils holds small platform helpers used at startup.
package osutils

// IsAdmin is a stub for non-Windows platforms
func IsAdmin() bool {
	return false
}

// HideConsole is a no-op outside Windows; terminals are left alone
func HideConsole() (bool, error) {
	return false, nil
}
