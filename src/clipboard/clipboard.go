package clipboard

import (
	"errors"
	"sync"
	"time"

	"golang.design/x/clipboard"
)

var (
	writeMu sync.Mutex
	ready   bool
	// owned closes when another client replaces our last write.
	owned <-chan struct{}
)

// ErrNotInitialized is returned by writes before Init succeeded.
var ErrNotInitialized = errors.New("clipboard not initialized")

func Init() error {
	writeMu.Lock()
	defer writeMu.Unlock()
	if err := clipboard.Init(); err != nil {
		return err
	}
	ready = true
	return nil
}

// WriteImage publishes PNG-encoded image data. Writes are serialized so
// parallel callers cannot interleave.
func WriteImage(png []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	if !ready {
		return ErrNotInitialized
	}
	owned = clipboard.Write(clipboard.FmtImage, png)
	return nil
}

// Hold keeps the process serving the last write until another client takes
// the clipboard or timeout passes. On X11 the content is gone once the
// owning process exits.
func Hold(timeout time.Duration) {
	writeMu.Lock()
	ch := owned
	writeMu.Unlock()
	if ch == nil {
		return
	}
	select {
	case <-ch:
	case <-time.After(timeout):
	}
}
