package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// Capturer is the uniform capture contract handed to callers.
type Capturer interface {
	Capture(ctx context.Context, req Request) (*Result, error)
}

// Coordinator prefers the consent-service backend and falls back to the
// direct framebuffer read at most once. It never retries a backend.
type Coordinator struct {
	service Backend
	direct  Backend
}

// NewCoordinator wires the two backends. Either may be nil.
func NewCoordinator(service, direct Backend) *Coordinator {
	return &Coordinator{service: service, direct: direct}
}

// Options selects the backends built by New.
type Options struct {
	// Backend is "auto", "portal" or "x11".
	Backend       string
	PortalTimeout time.Duration
}

// New builds a coordinator for the running session.
func New(opts Options) *Coordinator {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "portal":
		return NewCoordinator(NewPortalBackend(opts.PortalTimeout), nil)
	case "x11":
		return NewCoordinator(nil, NewX11Backend())
	default:
		return NewCoordinator(NewPortalBackend(opts.PortalTimeout), NewX11Backend())
	}
}

// Capture returns exactly one terminal outcome for req.
func (c *Coordinator) Capture(ctx context.Context, req Request) (*Result, error) {
	if req.Mode == ModeRegion && !req.Interactive && req.Region.Empty() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegion, req.Region)
	}

	var reason error
	if c.service != nil && c.service.Available(ctx) {
		if c.service.Capabilities().Serves(req) {
			res, err := c.run(ctx, c.service, req)
			if err == nil {
				return res, nil
			}
			if !shouldFallBack(err) {
				log.Printf("capture: %s failed: %v", c.service.Name(), err)
				return nil, err
			}
			log.Printf("capture: %s cannot serve %s (%v), falling back", c.service.Name(), req.Mode, err)
			reason = err
		} else {
			log.Printf("capture: %s does not support %s, falling back", c.service.Name(), req.Mode)
			reason = fmt.Errorf("%s: %w: %s", c.service.Name(), ErrUnsupportedMode, req.Mode)
		}
	} else if c.service != nil {
		reason = fmt.Errorf("%s: %w", c.service.Name(), ErrBackendUnavailable)
	}

	if c.direct == nil || !c.direct.Available(ctx) {
		if reason != nil {
			return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, reason)
		}
		return nil, ErrBackendUnavailable
	}
	if !c.direct.Capabilities().Serves(req) {
		return nil, fmt.Errorf("%w: %s: %w: %s", ErrBackendUnavailable, c.direct.Name(), ErrUnsupportedMode, req.Mode)
	}
	return c.run(ctx, c.direct, req)
}

// run issues one backend call and crops when the backend only returned a
// full frame for a region request.
func (c *Coordinator) run(ctx context.Context, b Backend, req Request) (*Result, error) {
	breq := req
	crop := false
	if req.Mode == ModeRegion && !req.Interactive {
		breq = Request{Mode: ModeFullScreen}
		crop = true
	}

	start := time.Now()
	img, err := b.Capture(ctx, breq)
	if err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%s: %w: empty frame", b.Name(), ErrEncodingFailed)
	}
	frame := toRGBA(img)
	log.Printf("capture: %s returned %dx%d in %s", b.Name(), frame.Rect.Dx(), frame.Rect.Dy(), time.Since(start).Round(time.Millisecond))

	if crop {
		frame, err = Crop(frame, req.Region)
		if err != nil {
			return nil, err
		}
	}
	return &Result{Pixels: frame, Backend: b.Name()}, nil
}

func shouldFallBack(err error) bool {
	return errors.Is(err, ErrUnsupportedMode) || errors.Is(err, ErrBackendUnavailable)
}
