// Package export encodes flattened bitmaps and hands them to a destination.
package export

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"flint/src/clipboard"
)

// DefaultName is the file name used when saving without an explicit path.
func DefaultName(t time.Time) string {
	return "flint-screenshot-" + t.Format("20060102-150405") + ".png"
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Sink accepts a flattened bitmap and returns a status line for the user.
type Sink interface {
	Deliver(img *image.RGBA) (string, error)
}

// FileSink writes PNG files. Path, when set, is used as-is; otherwise a
// timestamped name is created in Dir.
type FileSink struct {
	Dir  string
	Path string
	Now  func() time.Time
}

func (f FileSink) Deliver(img *image.RGBA) (string, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	path := f.Path
	if path == "" {
		now := time.Now
		if f.Now != nil {
			now = f.Now
		}
		dir := f.Dir
		if dir == "" {
			dir = "."
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create output dir: %w", err)
		}
		path = filepath.Join(dir, DefaultName(now()))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	log.Printf("export: wrote %d bytes to %s", len(data), path)
	return "Saved to " + path, nil
}

// ClipboardSink publishes PNG data on the system clipboard.
type ClipboardSink struct {
	// Write defaults to clipboard.WriteImage.
	Write func(png []byte) error
}

func (c ClipboardSink) Deliver(img *image.RGBA) (string, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	write := c.Write
	if write == nil {
		write = clipboard.WriteImage
	}
	if err := write(data); err != nil {
		return "", fmt.Errorf("clipboard error: %w", err)
	}
	log.Printf("export: copied %d bytes to clipboard", len(data))
	return "Copied to clipboard", nil
}

// WriterSink streams PNG data, e.g. to stdout.
type WriterSink struct {
	W io.Writer
}

func (w WriterSink) Deliver(img *image.RGBA) (string, error) {
	out := w.W
	if out == nil {
		out = os.Stdout
	}
	if err := png.Encode(out, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return "", nil
}
