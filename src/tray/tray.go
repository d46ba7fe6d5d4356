package tray

import (
	"fmt"
	"log"
	"sync"

	"github.com/getlantern/systray"

	"flint/src/capture"
)

// windowSlots is the number of window entries kept in the Window submenu.
const windowSlots = 10

type Config struct {
	Title   string
	Tooltip string
	// OnCapture receives every capture the user picks from the menu.
	OnCapture func(capture.Request)
	OnExit    func()
	// ListWindows defaults to capture.ListWindows.
	ListWindows func() ([]capture.WindowInfo, error)
}

type Tray struct {
	cfg Config

	mu      sync.Mutex
	slots   []*systray.MenuItem
	slotIDs []uint32
}

var (
	tooltipMu      sync.Mutex
	defaultTooltip string
	ready          bool
)

func New(cfg Config) *Tray {
	if cfg.ListWindows == nil {
		cfg.ListWindows = capture.ListWindows
	}
	if cfg.Title == "" {
		cfg.Title = "Flint"
	}
	return &Tray{cfg: cfg}
}

// Run blocks running the tray until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit removes the icon and ends Run.
func (t *Tray) Quit() { systray.Quit() }

// UpdateTooltip replaces the tooltip; an empty string restores the default.
func UpdateTooltip(tt string) {
	tooltipMu.Lock()
	defer tooltipMu.Unlock()
	if !ready {
		return
	}
	if tt == "" {
		tt = defaultTooltip
	}
	systray.SetTooltip(tt)
}

func (t *Tray) onReady() {
	systray.SetIcon(Icon())
	systray.SetTitle(t.cfg.Title)
	systray.SetTooltip(t.cfg.Tooltip)

	tooltipMu.Lock()
	defaultTooltip = t.cfg.Tooltip
	ready = true
	tooltipMu.Unlock()

	mFull := systray.AddMenuItem("Full screen", "Capture the whole screen")
	mRegion := systray.AddMenuItem("Region", "Drag to capture part of the screen")
	mWindow := systray.AddMenuItem("Window", "Capture one window")
	mRefresh := mWindow.AddSubMenuItem("Refresh list", "Re-read the open windows")
	for i := 0; i < windowSlots; i++ {
		item := mWindow.AddSubMenuItem("", "")
		item.Hide()
		t.slots = append(t.slots, item)
		go t.watchSlot(i, item)
	}
	t.slotIDs = make([]uint32, windowSlots)
	t.refreshWindows()

	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Quit Flint")

	go func() {
		for {
			select {
			case <-mFull.ClickedCh:
				t.capture(capture.FullScreen())
			case <-mRegion.ClickedCh:
				t.capture(capture.Request{Mode: capture.ModeRegion})
			case <-mRefresh.ClickedCh:
				t.refreshWindows()
			case <-mQuit.ClickedCh:
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) watchSlot(i int, item *systray.MenuItem) {
	for range item.ClickedCh {
		t.mu.Lock()
		id := t.slotIDs[i]
		t.mu.Unlock()
		if id != 0 {
			t.capture(capture.Window(id))
		}
	}
}

func (t *Tray) refreshWindows() {
	windows, err := t.cfg.ListWindows()
	if err != nil {
		log.Printf("tray: window list unavailable: %v", err)
	}
	labels, ids := layoutSlots(windows, windowSlots)

	t.mu.Lock()
	defer t.mu.Unlock()
	copy(t.slotIDs, ids)
	for i, item := range t.slots {
		if labels[i] == "" {
			item.Hide()
			continue
		}
		item.SetTitle(labels[i])
		item.Show()
	}
}

func (t *Tray) capture(req capture.Request) {
	log.Printf("tray: %s capture requested", req.Mode)
	if t.cfg.OnCapture != nil {
		t.cfg.OnCapture(req)
	}
}

func (t *Tray) onExit() {
	tooltipMu.Lock()
	ready = false
	tooltipMu.Unlock()
	if t.cfg.OnExit != nil {
		t.cfg.OnExit()
	}
}

// layoutSlots assigns windows to n menu slots. Unused slots get an empty
// label and id 0.
func layoutSlots(windows []capture.WindowInfo, n int) ([]string, []uint32) {
	labels := make([]string, n)
	ids := make([]uint32, n)
	i := 0
	for _, w := range windows {
		if i == n {
			break
		}
		if w.Minimized {
			continue
		}
		labels[i] = windowLabel(w)
		ids[i] = w.ID
		i++
	}
	return labels, ids
}

func windowLabel(w capture.WindowInfo) string {
	title := w.Title
	if title == "" {
		title = w.Class
	}
	if title == "" {
		title = fmt.Sprintf("0x%x", w.ID)
	}
	if r := []rune(title); len(r) > 40 {
		title = string(r[:39]) + "..."
	}
	return fmt.Sprintf("%s (%dx%d)", title, w.Width, w.Height)
}
