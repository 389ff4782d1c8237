//go:build windows

// Package osutils holds small platform helpers used at startup.
package osutils

import (
	"fmt"

	"golang.org/x/sys/windows"
)

var (
	kernel32             = windows.NewLazySystemDLL("kernel32.dll")
	user32               = windows.NewLazySystemDLL("user32.dll")
	procGetConsoleWindow = kernel32.NewProc("GetConsoleWindow")
	procShowWindow       = user32.NewProc("ShowWindow")
)

const swHide = 0

// IsAdmin checks if the current process has administrative privileges
func IsAdmin() bool {
	var token windows.Token
	h, _ := windows.GetCurrentProcess()
	err := windows.OpenProcessToken(h, windows.TOKEN_QUERY, &token)
	if err != nil {
		return false
	}
	defer token.Close()

	var sid *windows.SID
	err = windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid,
	)
	if err != nil {
		return false
	}
	defer windows.FreeSid(sid)

	member, err := token.IsMember(sid)
	if err != nil {
		return false
	}

	return member
}

// HideConsole hides the console window the process was started with, if
// any. It reports whether a window was hidden.
func HideConsole() (bool, error) {
	if err := procGetConsoleWindow.Find(); err != nil {
		return false, fmt.Errorf("GetConsoleWindow unavailable: %w", err)
	}

	hwnd, _, _ := procGetConsoleWindow.Call()
	if hwnd == 0 {
		return false, nil
	}

	procShowWindow.Call(hwnd, swHide)
	return true, nil
}
