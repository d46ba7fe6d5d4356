package logutil

import (
	"fmt"
	"io"
	"log"
	"os"
)

const (
	logFileName  = "flint_debug.log"
	maxSizeBytes = 10 * 1024 * 1024 // 10 MB
	maxArchives  = 3
)

// Setup enables file logging with basic size-based rotation (10MB, max 3 files).
// When disabled, logs are discarded to keep stdout clean.
func Setup(enableFileLogging bool) {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if !enableFileLogging {
		log.SetOutput(io.Discard)
		return
	}
	w, err := openRotating(logFileName, maxSizeBytes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		return
	}
	log.SetOutput(w)
}

// SetupStderr sends log output to stderr, used by the CLI's --verbose flag.
func SetupStderr() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetOutput(os.Stderr)
}

type rotatingWriter struct {
	f     *os.File
	path  string
	limit int64
}

func openRotating(path string, limit int64) (*rotatingWriter, error) {
	rotateIfNeeded(path, limit)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, err
	}
	return &rotatingWriter{f: f, path: path, limit: limit}, nil
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	// naive rotation check per write
	if st, err := w.f.Stat(); err == nil && st.Size()+int64(len(p)) > w.limit {
		_ = w.f.Close()
		rotate(w.path)
		nf, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return 0, err
		}
		w.f = nf
	}
	return w.f.Write(p)
}

func rotateIfNeeded(path string, limit int64) {
	if st, err := os.Stat(path); err == nil && st.Size() > limit {
		rotate(path)
	}
}

// rotate shifts path to .1, .2, .3 (oldest discarded).
func rotate(path string) {
	_ = os.Remove(archiveName(path, maxArchives))
	for i := maxArchives - 1; i >= 1; i-- {
		_ = os.Rename(archiveName(path, i), archiveName(path, i+1))
	}
	_ = os.Rename(path, archiveName(path, 1))
}

func archiveName(path string, n int) string { return fmt.Sprintf("%s.%d", path, n) }
