// Package input installs global low-level keyboard and mouse hooks and
// delivers raw transitions to a Sink.
package input

import "errors"

// Low-level hook message identifiers (wParam of WH_KEYBOARD_LL / WH_MOUSE_LL).
const (
	WM_KEYDOWN    = 0x0100
	WM_KEYUP      = 0x0101
	WM_SYSKEYDOWN = 0x0104
	WM_SYSKEYUP   = 0x0105

	WM_MOUSEMOVE   = 0x0200
	WM_LBUTTONDOWN = 0x0201
	WM_LBUTTONUP   = 0x0202
	WM_RBUTTONDOWN = 0x0204
	WM_RBUTTONUP   = 0x0205
	WM_MBUTTONDOWN = 0x0207
	WM_MBUTTONUP   = 0x0208
	WM_MOUSEWHEEL  = 0x020A
	WM_XBUTTONDOWN = 0x020B
	WM_XBUTTONUP   = 0x020C
	WM_MOUSEHWHEEL = 0x020E
)

// ErrUnsupported is returned when global hooks are not available on this platform.
var ErrUnsupported = errors.New("global input hooks not supported on this platform")

// KeyEvent is a raw keyboard transition as seen by the low-level hook
type KeyEvent struct {
	VKCode  uint32
	Message uint32
}

// MouseEvent is a raw mouse message as seen by the low-level hook
type MouseEvent struct {
	Message   uint32
	MouseData uint32
}

// Sink receives raw hook events. Implementations run on the hook thread and
// must not block.
type Sink interface {
	HandleKey(KeyEvent)
	HandleMouse(MouseEvent)
}

// Installer installs and removes global hooks
type Installer interface {
	// Install installs the requested hooks and routes their events to sink.
	// Each modality is installed independently; the returned Installed
	// reports which ones succeeded and err joins the failures.
	Install(sink Sink, keyboard, mouse bool) (Installed, error)

	// Uninstall removes every installed hook. It returns once no hook
	// callback can run anymore. Safe to call when nothing is installed.
	Uninstall()
}

// Installed reports which hooks are live
type Installed struct {
	Keyboard bool `json:"keyboard"`
	Mouse    bool `json:"mouse"`
}

// ClassifyKey maps a keyboard hook message to a down or up transition.
func ClassifyKey(msg uint32) (down, up bool) {
	switch msg {
	case WM_KEYDOWN, WM_SYSKEYDOWN:
		return true, false
	case WM_KEYUP, WM_SYSKEYUP:
		return false, true
	}
	return false, false
}

// IsButtonDown reports whether msg is a left/right/middle/extra button press.
// Motion, wheel and button-up messages are not.
func IsButtonDown(msg uint32) bool {
	switch msg {
	case WM_LBUTTONDOWN, WM_RBUTTONDOWN, WM_MBUTTONDOWN, WM_XBUTTONDOWN:
		return true
	}
	return false
}
