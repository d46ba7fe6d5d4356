package runtimeinit

import (
	"context"
	"fmt"
	"log"

	"flint/src/capture"
	"flint/src/clipboard"
	"flint/src/config"
	"flint/src/notification"
)

type Options struct {
	LoadOptions  config.LoadOptions
	SetupLogging func(bool)
	// RequireClipboard makes a clipboard init failure fatal.
	RequireClipboard bool
	// ShowBlockingErrors reports startup failures through the desktop
	// notification service as well as the returned error.
	ShowBlockingErrors bool
	// CheckBackends overrides the capture availability check.
	CheckBackends func(ctx context.Context, cfg *config.Config) error
}

func Bootstrap(ctx context.Context, opts Options) (*config.Config, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.SetupLogging != nil {
		opts.SetupLogging(cfg.EnableFileLogging)
	}
	log.Printf("config: backend=%s tool=%s output=%s hotkey=%s", cfg.CaptureBackend, cfg.DefaultTool, cfg.OutputDir, cfg.Hotkey)

	check := opts.CheckBackends
	if check == nil {
		check = checkBackends
	}
	if err := check(ctx, cfg); err != nil {
		if opts.ShowBlockingErrors {
			notification.ShowBlockingError("Screen capture unavailable", capture.Describe(err))
		}
		return nil, fmt.Errorf("startup check failed: %w", err)
	}

	if err := clipboard.Init(); err != nil {
		if opts.RequireClipboard {
			return nil, fmt.Errorf("failed to initialize clipboard: %w", err)
		}
		log.Printf("clipboard: unavailable, copy disabled: %v", err)
	}
	return cfg, nil
}

// checkBackends fails when no configured backend can run in this session.
func checkBackends(ctx context.Context, cfg *config.Config) error {
	var backends []capture.Backend
	switch cfg.CaptureBackend {
	case config.BackendPortal:
		backends = append(backends, capture.NewPortalBackend(cfg.PortalTimeout))
	case config.BackendX11:
		backends = append(backends, capture.NewX11Backend())
	default:
		backends = append(backends, capture.NewPortalBackend(cfg.PortalTimeout), capture.NewX11Backend())
	}
	for _, b := range backends {
		if b.Available(ctx) {
			log.Printf("capture: %s backend available", b.Name())
			return nil
		}
	}
	return capture.ErrBackendUnavailable
}
