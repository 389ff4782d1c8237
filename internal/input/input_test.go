package input

import (
	"errors"
	"runtime"
	"testing"
)

// TestClassifyKey tests keyboard message classification
func TestClassifyKey(t *testing.T) {
	tests := []struct {
		msg      uint32
		wantDown bool
		wantUp   bool
	}{
		{WM_KEYDOWN, true, false},
		{WM_SYSKEYDOWN, true, false},
		{WM_KEYUP, false, true},
		{WM_SYSKEYUP, false, true},
		{WM_MOUSEMOVE, false, false},
		{0, false, false},
	}

	for _, tt := range tests {
		down, up := ClassifyKey(tt.msg)
		if down != tt.wantDown || up != tt.wantUp {
			t.Errorf("ClassifyKey(0x%X) = (%v, %v), expected (%v, %v)", tt.msg, down, up, tt.wantDown, tt.wantUp)
		}
	}
}

// TestIsButtonDown tests that only button presses qualify
func TestIsButtonDown(t *testing.T) {
	pressed := []uint32{WM_LBUTTONDOWN, WM_RBUTTONDOWN, WM_MBUTTONDOWN, WM_XBUTTONDOWN}
	for _, msg := range pressed {
		if !IsButtonDown(msg) {
			t.Errorf("Expected 0x%X to be a button press", msg)
		}
	}

	ignored := []uint32{WM_MOUSEMOVE, WM_LBUTTONUP, WM_RBUTTONUP, WM_MBUTTONUP, WM_XBUTTONUP, WM_MOUSEWHEEL, WM_MOUSEHWHEEL}
	for _, msg := range ignored {
		if IsButtonDown(msg) {
			t.Errorf("Expected 0x%X to be ignored", msg)
		}
	}
}

// TestStubInstall tests that unsupported platforms fail every modality
func TestStubInstall(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("real hooks are installed on windows")
	}

	h := NewHooks(nil)
	installed, err := h.Install(nil, true, true)
	if installed.Keyboard || installed.Mouse {
		t.Errorf("Expected no hooks installed, got %+v", installed)
	}
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported, got %v", err)
	}

	installed, err = h.Install(nil, false, false)
	if err != nil {
		t.Errorf("Expected no error when nothing requested, got %v", err)
	}
	h.Uninstall()
}
