package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"time"

	"flint/src/annotate"
	"flint/src/capture"
	"flint/src/export"
	"flint/src/geometry"
	"flint/src/singleinstance"
)

var ErrSelectionCancelled = errors.New("selection cancelled")

// RegionSelectorFunc lets the user pick a rectangle over a frozen full
// frame. cancelled reports that the user backed out.
type RegionSelectorFunc func(ctx context.Context, frame *image.RGBA) (r geometry.Rect, cancelled bool, err error)

// EditFunc runs the interactive editor until the user closes it.
type EditFunc func(ctx context.Context, e *Editing) error

type ResultTarget interface {
	// OnSuccess delivers the final image and returns the status line.
	OnSuccess(img *image.RGBA) (string, error)
	OnFailure(err error) error
}

type Options struct {
	Capturer capture.Capturer
	Request  capture.Request
	Deadline time.Duration
	// SelectRegion is consulted for region requests without a rectangle.
	SelectRegion RegionSelectorFunc
	// ResolveWindow picks the window for window requests without an id.
	ResolveWindow func() (uint32, error)
	// Edit, when set, opens the editor on the captured frame instead of
	// delivering it directly to Target.
	Edit     EditFunc
	Settings annotate.Settings
	Save     export.Sink
	Copy     export.Sink
	Target   ResultTarget
}

type Result struct {
	Image   *image.RGBA
	Backend string
	Status  string
}

func Execute(ctx context.Context, opts Options) (Result, error) {
	if opts.Capturer == nil {
		return Result{}, errors.New("Capturer is required")
	}
	if opts.Target == nil && opts.Edit == nil {
		return Result{}, errors.New("Target or Edit is required")
	}
	target := opts.Target
	if target == nil {
		target = discardTarget{}
	}

	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = 90 * time.Second
	}

	req := opts.Request
	var res *capture.Result
	if req.Mode == capture.ModeRegion && req.Region.Empty() && !req.Interactive {
		if opts.SelectRegion == nil {
			// No overlay available: let the consent service draw its own picker.
			req.Interactive = true
		} else {
			// The user drew on the frozen frame, so the result is cut from it.
			r, err := selectRegion(ctx, opts, deadline)
			if err != nil {
				_ = target.OnFailure(err)
				return Result{}, err
			}
			res = r
		}
	}

	if res == nil {
		if req.Mode == capture.ModeWindow && req.WindowID == 0 && opts.ResolveWindow != nil {
			id, err := opts.ResolveWindow()
			if err != nil {
				_ = target.OnFailure(err)
				return Result{}, err
			}
			req.WindowID = id
		}

		jobCtx, cancel := context.WithTimeout(ctx, deadline)
		r, err := opts.Capturer.Capture(jobCtx, req)
		cancel()
		if err != nil {
			log.Printf("session: capture %s failed: %v", req.Mode, err)
			_ = target.OnFailure(err)
			return Result{}, err
		}
		res = r
	}
	log.Printf("session: captured %dx%d via %s", res.Width(), res.Height(), res.Backend)

	out := Result{Image: res.Pixels, Backend: res.Backend}
	if opts.Edit != nil {
		ed := NewEditing(res.Pixels, opts.Settings, opts.Save, opts.Copy)
		if err := opts.Edit(ctx, ed); err != nil {
			_ = target.OnFailure(err)
			return Result{}, err
		}
		out.Image = ed.Flatten()
		if opts.Target == nil {
			return out, nil
		}
	}

	status, err := target.OnSuccess(out.Image)
	if err != nil {
		_ = target.OnFailure(err)
		return Result{}, err
	}
	out.Status = status
	return out, nil
}

// selectRegion freezes a full frame for the overlay and returns the part of
// that frame the user picked.
func selectRegion(ctx context.Context, opts Options, deadline time.Duration) (*capture.Result, error) {
	frameCtx, cancel := context.WithTimeout(ctx, deadline)
	frame, err := opts.Capturer.Capture(frameCtx, capture.FullScreen())
	cancel()
	if err != nil {
		return nil, err
	}
	r, cancelled, err := opts.SelectRegion(ctx, frame.Pixels)
	if err != nil {
		return nil, err
	}
	if cancelled {
		return nil, ErrSelectionCancelled
	}
	px, err := capture.Crop(frame.Pixels, r)
	if err != nil {
		return nil, err
	}
	return &capture.Result{Pixels: px, Backend: frame.Backend}, nil
}

type discardTarget struct{}

func (discardTarget) OnSuccess(*image.RGBA) (string, error) { return "", nil }
func (discardTarget) OnFailure(error) error                 { return nil }

// SinkTarget hands the final image to an export sink.
type SinkTarget struct {
	Sink export.Sink
}

func (t SinkTarget) OnSuccess(img *image.RGBA) (string, error) {
	if t.Sink == nil {
		return "", ErrNoSink
	}
	return t.Sink.Deliver(img)
}

func (SinkTarget) OnFailure(err error) error { return nil }

// DelegatedTarget answers a run-once client. Stdout requests receive the PNG
// bytes; file and clipboard requests are delivered locally and the client
// gets the status line.
type DelegatedTarget struct {
	Conn singleinstance.Conn
	Save export.Sink
	Copy export.Sink
}

func (t DelegatedTarget) OnSuccess(img *image.RGBA) (string, error) {
	if t.Conn == nil {
		return "", errors.New("delegated target missing connection")
	}
	switch t.Conn.Request().Output {
	case singleinstance.OutputStdout:
		data, err := export.EncodePNG(img)
		if err != nil {
			return "", err
		}
		return "", t.Conn.RespondSuccess(data)
	case singleinstance.OutputFile:
		return t.respondVia(t.Save, img)
	default:
		return t.respondVia(t.Copy, img)
	}
}

func (t DelegatedTarget) respondVia(s export.Sink, img *image.RGBA) (string, error) {
	if s == nil {
		return "", ErrNoSink
	}
	status, err := s.Deliver(img)
	if err != nil {
		return "", fmt.Errorf("deliver: %w", err)
	}
	return status, t.Conn.RespondSuccess([]byte(status))
}

func (t DelegatedTarget) OnFailure(err error) error {
	if t.Conn == nil {
		return nil
	}
	if err == nil {
		return t.Conn.RespondError("unknown session error")
	}
	if errors.Is(err, ErrSelectionCancelled) {
		return t.Conn.RespondError(err.Error())
	}
	return t.Conn.RespondError(capture.Describe(err))
}
