//go:build windows

package input

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	kernel32                = windows.NewLazySystemDLL("kernel32.dll")
	procSetWindowsHookEx    = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetMessage          = user32.NewProc("GetMessageW")
	procPeekMessage         = user32.NewProc("PeekMessageW")
	procPostThreadMessage   = user32.NewProc("PostThreadMessageW")
	procGetModuleHandle     = kernel32.NewProc("GetModuleHandleW")
)

const (
	WH_KEYBOARD_LL = 13
	WH_MOUSE_LL    = 14
	HC_ACTION      = 0
	WM_QUIT        = 0x0012
	WM_USER        = 0x0400
	PM_NOREMOVE    = 0x0000
)

type KBDLLHOOKSTRUCT struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type MSLLHOOKSTRUCT struct {
	Pt          struct{ X, Y int32 }
	MouseData   uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type MSG struct {
	Hwnd    windows.Handle
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

// Hooks owns the WH_KEYBOARD_LL and WH_MOUSE_LL hooks and the thread that
// pumps messages for them.
type Hooks struct {
	log *slog.Logger

	// Callback trampolines are allocated once and never released by the
	// runtime, so they are reused across install cycles.
	keyboardProc uintptr
	mouseProc    uintptr

	mu       sync.Mutex
	sink     Sink
	threadID uint32
	done     chan struct{}
}

type installResult struct {
	threadID  uint32
	installed Installed
	err       error
}

// NewHooks creates an uninstalled hook set
func NewHooks(logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hooks{log: logger.With("component", "hooks")}
	h.keyboardProc = windows.NewCallback(h.keyboardHook)
	h.mouseProc = windows.NewCallback(h.mouseHook)
	return h
}

// Install starts the hook thread and installs the requested hooks on it.
func (h *Hooks) Install(sink Sink, keyboard, mouse bool) (Installed, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.uninstallLocked()
	if !keyboard && !mouse {
		return Installed{}, nil
	}

	h.sink = sink
	done := make(chan struct{})
	ready := make(chan installResult, 1)
	go h.hookThread(keyboard, mouse, ready, done)

	res := <-ready
	if !res.installed.Keyboard && !res.installed.Mouse {
		<-done
		return res.installed, res.err
	}

	h.threadID = res.threadID
	h.done = done
	return res.installed, res.err
}

// Uninstall stops the hook thread. The thread unhooks before exiting, and
// Uninstall waits for it, so no callback is running once it returns.
func (h *Hooks) Uninstall() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.uninstallLocked()
}

func (h *Hooks) uninstallLocked() {
	if h.done == nil {
		return
	}

	ret, _, err := procPostThreadMessage.Call(uintptr(h.threadID), WM_QUIT, 0, 0)
	if ret == 0 {
		h.log.Warn("PostThreadMessage failed", "thread", h.threadID, "error", err)
	}
	<-h.done

	h.done = nil
	h.threadID = 0
}

// hookThread installs the hooks on a locked OS thread. Low-level hook
// callbacks are delivered to the installing thread while it waits in
// GetMessage.
func (h *Hooks) hookThread(keyboard, mouse bool, ready chan<- installResult, done chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)

	// Force creation of the thread message queue so WM_QUIT can be posted.
	var msg MSG
	procPeekMessage.Call(uintptr(unsafe.Pointer(&msg)), 0, WM_USER, WM_USER, PM_NOREMOVE)

	hMod, _, _ := procGetModuleHandle.Call(0)

	var (
		res       = installResult{threadID: windows.GetCurrentThreadId()}
		errs      []error
		keyHook   uintptr
		mouseHook uintptr
	)

	if keyboard {
		hk, _, err := procSetWindowsHookEx.Call(WH_KEYBOARD_LL, h.keyboardProc, hMod, 0)
		if hk == 0 {
			errs = append(errs, fmt.Errorf("keyboard hook: %w", err))
		} else {
			keyHook = hk
			res.installed.Keyboard = true
		}
	}

	if mouse {
		hk, _, err := procSetWindowsHookEx.Call(WH_MOUSE_LL, h.mouseProc, hMod, 0)
		if hk == 0 {
			errs = append(errs, fmt.Errorf("mouse hook: %w", err))
		} else {
			mouseHook = hk
			res.installed.Mouse = true
		}
	}

	res.err = errors.Join(errs...)
	ready <- res
	if keyHook == 0 && mouseHook == 0 {
		return
	}

	h.log.Debug("hook thread running", "thread", res.threadID, "keyboard", res.installed.Keyboard, "mouse", res.installed.Mouse)

	for {
		ret, _, _ := procGetMessage.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
		if int32(ret) <= 0 {
			break
		}
	}

	if keyHook != 0 {
		procUnhookWindowsHookEx.Call(keyHook)
	}
	if mouseHook != 0 {
		procUnhookWindowsHookEx.Call(mouseHook)
	}
	h.log.Debug("hook thread exiting", "thread", res.threadID)
}

func (h *Hooks) keyboardHook(nCode int, wParam uintptr, lParam uintptr) uintptr {
	if nCode == HC_ACTION {
		kbd := (*KBDLLHOOKSTRUCT)(unsafe.Pointer(lParam))
		deliverKey(h.log, h.sink, KeyEvent{VKCode: kbd.VkCode, Message: uint32(wParam)})
	}
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return ret
}

func (h *Hooks) mouseHook(nCode int, wParam uintptr, lParam uintptr) uintptr {
	if nCode == HC_ACTION {
		ms := (*MSLLHOOKSTRUCT)(unsafe.Pointer(lParam))
		deliverMouse(h.log, h.sink, MouseEvent{Message: uint32(wParam), MouseData: ms.MouseData})
	}
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return ret
}
