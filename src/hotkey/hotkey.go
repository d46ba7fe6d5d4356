package hotkey

import (
	"fmt"
	"log"
	"strings"
	"sync"

	gohook "github.com/robotn/gohook"
)

// key is one member of a combination with every rawcode that counts as it
// (left/right modifiers, upper/lower case letters).
type key struct {
	name     string
	rawcodes []uint16
}

// Combo is a parsed hotkey such as "Ctrl+Shift+S".
type Combo struct {
	text string
	keys []key
}

func (c Combo) String() string { return c.text }

// ParseCombo validates s and resolves every key to its X11 keysyms.
func ParseCombo(s string) (Combo, error) {
	names := parseHotkey(s)
	if len(names) == 0 {
		return Combo{}, fmt.Errorf("empty hotkey")
	}
	c := Combo{text: s}
	for _, name := range names {
		codes := keyNameToRawcodes(name)
		if len(codes) == 0 {
			return Combo{}, fmt.Errorf("hotkey %q: unknown key %q", s, name)
		}
		c.keys = append(c.keys, key{name: name, rawcodes: codes})
	}
	return c, nil
}

// matcher tracks which members of a combo are held down.
type matcher struct {
	mu      sync.Mutex
	combo   Combo
	pressed []bool
}

func newMatcher(c Combo) *matcher {
	return &matcher{combo: c, pressed: make([]bool, len(c.keys))}
}

// handle feeds one key event and reports whether the combo just completed.
func (m *matcher) handle(kind uint8, rawcode uint16) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, k := range m.combo.keys {
		for _, rc := range k.rawcodes {
			if rc == rawcode {
				idx = i
				break
			}
		}
		if idx >= 0 {
			break
		}
	}
	if idx < 0 {
		return false
	}

	switch kind {
	case gohook.KeyUp:
		m.pressed[idx] = false
		return false
	case gohook.KeyDown, gohook.KeyHold:
		m.pressed[idx] = true
	default:
		return false
	}
	for _, p := range m.pressed {
		if !p {
			return false
		}
	}
	for i := range m.pressed {
		m.pressed[i] = false
	}
	return true
}

// Listen registers combo globally and invokes callback on every press. The
// callback runs on the hook goroutine and must not block.
func Listen(combo string, callback func()) error {
	c, err := ParseCombo(combo)
	if err != nil {
		return err
	}
	m := newMatcher(c)
	log.Printf("hotkey: listening for %s", c)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("hotkey: PANIC in hook goroutine: %v", r)
			}
		}()

		evChan := gohook.Start()
		if evChan == nil {
			log.Printf("hotkey: gohook.Start returned nil channel")
			return
		}
		for ev := range evChan {
			if ev.Kind != gohook.KeyDown && ev.Kind != gohook.KeyUp && ev.Kind != gohook.KeyHold {
				continue
			}
			if m.handle(ev.Kind, ev.Rawcode) {
				log.Printf("hotkey: %s activated", c)
				if callback != nil {
					callback()
				}
			}
		}
		log.Printf("hotkey: event channel closed")
	}()
	return nil
}

// Stop ends the global hook.
func Stop() { gohook.End() }

// parseHotkey converts "Ctrl+Alt+q" to normalized key names.
func parseHotkey(hotkeyConfig string) []string {
	var keys []string
	for _, part := range strings.Split(strings.ToLower(hotkeyConfig), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			continue
		case "control", "ctrl":
			keys = append(keys, "ctrl")
		case "win", "cmd", "super", "meta":
			keys = append(keys, "super")
		default:
			keys = append(keys, part)
		}
	}
	return keys
}

var namedKeys = map[string][]uint16{
	"ctrl":      {0xffe3, 0xffe4}, // Control_L, Control_R
	"shift":     {0xffe1, 0xffe2},
	"alt":       {0xffe9, 0xffea},
	"super":     {0xffeb, 0xffec},
	"space":     {0x0020},
	"enter":     {0xff0d},
	"return":    {0xff0d},
	"esc":       {0xff1b},
	"escape":    {0xff1b},
	"tab":       {0xff09},
	"backspace": {0xff08},
	"delete":    {0xffff},
	"del":       {0xffff},
	"insert":    {0xff63},
	"ins":       {0xff63},
	"home":      {0xff50},
	"end":       {0xff57},
	"pageup":    {0xff55},
	"pgup":      {0xff55},
	"pagedown":  {0xff56},
	"pgdn":      {0xff56},
	"left":      {0xff51},
	"up":        {0xff52},
	"right":     {0xff53},
	"down":      {0xff54},
	"print":     {0xff61},
}

// keyNameToRawcodes maps a key name to the X11 keysyms gohook reports as
// rawcodes on Linux.
func keyNameToRawcodes(keyName string) []uint16 {
	keyName = strings.ToLower(strings.TrimSpace(keyName))
	if codes, ok := namedKeys[keyName]; ok {
		return codes
	}
	if len(keyName) == 1 {
		c := keyName[0]
		switch {
		case c >= 'a' && c <= 'z':
			return []uint16{uint16(c), uint16(c - 'a' + 'A')}
		case c >= '0' && c <= '9':
			return []uint16{uint16(c)}
		}
	}
	var n int
	if _, err := fmt.Sscanf(keyName, "f%d", &n); err == nil && n >= 1 && n <= 24 && keyName == fmt.Sprintf("f%d", n) {
		return []uint16{uint16(0xffbe + n - 1)} // F1 = 0xffbe
	}
	log.Printf("hotkey: unknown key name %q", keyName)
	return nil
}
