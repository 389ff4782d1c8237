// Package tray provides system tray functionality using getlantern/systray.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// MenuItem represents a menu item
type MenuItem struct {
	ID        int
	Title     string
	Checkable bool
	Checked   bool

	// Callback runs on click for plain items
	Callback func()

	// OnToggle runs on click for checkbox items with the new checked state
	OnToggle func(checked bool)

	item *systray.MenuItem
}

// Tray manages the system tray icon and menu
type Tray struct {
	mu      sync.Mutex
	items   []*MenuItem
	tooltip string
	ready   bool

	onReady func()
	onExit  func()
	quitCh  chan struct{}
}

// New creates a new system tray
func New(tooltip string) *Tray {
	t := &Tray{
		items:   make([]*MenuItem, 0),
		tooltip: tooltip,
		quitCh:  make(chan struct{}),
	}

	t.onReady = func() {
		t.mu.Lock()
		tip := t.tooltip
		t.ready = true
		t.mu.Unlock()

		systray.SetTitle("oiiacat")
		systray.SetTooltip(tip)
		systray.SetIcon(getIcon())
	}

	t.onExit = func() {
		close(t.quitCh)
	}

	return t
}

// AddMenuItem adds a menu item to the tray
func (t *Tray) AddMenuItem(title string, callback func()) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := len(t.items)
	t.items = append(t.items, &MenuItem{
		ID:       id,
		Title:    title,
		Callback: callback,
	})
	return id
}

// AddCheckbox adds a checkbox item. Clicking flips its state and calls onToggle.
func (t *Tray) AddCheckbox(title string, checked bool, onToggle func(checked bool)) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := len(t.items)
	t.items = append(t.items, &MenuItem{
		ID:        id,
		Title:     title,
		Checkable: true,
		Checked:   checked,
		OnToggle:  onToggle,
	})
	return id
}

// AddSeparator adds a separator to the menu
func (t *Tray) AddSeparator() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, nil) // nil indicates separator
}

// SetItemChecked sets the checked state of a menu item
func (t *Tray) SetItemChecked(id int, checked bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id < 0 || id >= len(t.items) || t.items[id] == nil {
		return
	}
	mi := t.items[id]
	mi.Checked = checked
	if mi.item != nil {
		if checked {
			mi.item.Check()
		} else {
			mi.item.Uncheck()
		}
	}
}

// SetTooltip updates the tray tooltip. Before the tray is ready the text is
// kept and applied on startup.
func (t *Tray) SetTooltip(text string) {
	t.mu.Lock()
	if t.tooltip == text {
		t.mu.Unlock()
		return
	}
	t.tooltip = text
	ready := t.ready
	t.mu.Unlock()

	if ready {
		systray.SetTooltip(text)
	}
}

// Run starts the tray event loop (blocks)
func (t *Tray) Run() {
	systray.Run(t.setupMenu, t.onExit)
}

// setupMenu is called when systray is ready
func (t *Tray) setupMenu() {
	t.onReady()

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, menuItem := range t.items {
		if menuItem == nil {
			systray.AddSeparator()
			continue
		}

		if menuItem.Checkable {
			menuItem.item = systray.AddMenuItemCheckbox(menuItem.Title, "", menuItem.Checked)
		} else {
			menuItem.item = systray.AddMenuItem(menuItem.Title, "")
		}

		// Handle clicks in goroutine
		if menuItem.Callback != nil || menuItem.OnToggle != nil {
			go t.watchClicks(menuItem)
		}
	}
}

func (t *Tray) watchClicks(mi *MenuItem) {
	for {
		select {
		case <-mi.item.ClickedCh:
			if mi.Checkable {
				t.mu.Lock()
				checked := !mi.Checked
				t.mu.Unlock()
				t.SetItemChecked(mi.ID, checked)
				if mi.OnToggle != nil {
					mi.OnToggle(checked)
				}
				continue
			}
			mi.Callback()
		case <-t.quitCh:
			return
		}
	}
}

// Stop stops the tray
func (t *Tray) Stop() {
	systray.Quit()
}

const iconSize = 16

// getIcon returns a 16x16 32-bit ICO with an orange disc
func getIcon() []byte {
	const (
		headerLen = 6 + 16 + 40
		pixelLen  = iconSize * iconSize * 4
		maskLen   = iconSize * 4 // 1bpp rows padded to 32 bits
	)
	icon := make([]byte, headerLen+pixelLen+maskLen)

	// ICO Header
	copy(icon[0:6], []byte{0x00, 0x00, 0x01, 0x00, 0x01, 0x00})
	// Icon Directory
	copy(icon[6:22], []byte{
		iconSize, iconSize, 0x00, 0x00, 0x01, 0x00, 0x20, 0x00,
		0x68, 0x04, 0x00, 0x00, // Size: 40 (header) + 1024 (pixels) + 64 (mask) = 1128 bytes
		0x16, 0x00, 0x00, 0x00, // Offset
	})
	// DIB Header
	copy(icon[22:62], []byte{
		0x28, 0x00, 0x00, 0x00, // Size
		iconSize, 0x00, 0x00, 0x00, // Width
		iconSize * 2, 0x00, 0x00, 0x00, // Height (16 * 2 for icon)
		0x01, 0x00, // Planes
		0x20, 0x00, // BPP
		0x00, 0x00, 0x00, 0x00, // Compression
		0x00, 0x04, 0x00, 0x00, // Image Size
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	})

	// BGRA pixels, bottom-up; the AND mask stays zero
	const center, radius2 = 7.5, 7.0 * 7.0
	for y := 0; y < iconSize; y++ {
		for x := 0; x < iconSize; x++ {
			dx, dy := float64(x)-center, float64(y)-center
			if dx*dx+dy*dy > radius2 {
				continue
			}
			off := headerLen + ((iconSize-1-y)*iconSize+x)*4
			copy(icon[off:off+4], []byte{0x30, 0x90, 0xF0, 0xFF})
		}
	}
	return icon
}
