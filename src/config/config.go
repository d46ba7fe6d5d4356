package config

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"flint/src/annotate"
	"flint/src/capture"
)

const (
	EnvFileEnvVar      = "FLINT_ENV"
	BackendAuto        = "auto"
	BackendPortal      = "portal"
	BackendX11         = "x11"
	defaultHotkey      = "Ctrl+Shift+S"
	defaultPortalSec   = 60
	defaultDefaultTool = "pencil"
)

// LoadOptions carries command-line overrides. Empty fields leave the
// environment value in place.
type LoadOptions struct {
	EnvFile           string
	BackendOverride   string
	ToolOverride      string
	ColorOverride     string
	OutputDirOverride string
}

// Config is immutable once loaded and is handed to every editing session.
type Config struct {
	DefaultTool       annotate.ToolKind
	DefaultColor      color.NRGBA
	DefaultThickness  float64 // 0 means the tool default
	CaptureBackend    string
	PortalTimeout     time.Duration
	MinSelection      int
	OutputDir         string
	Hotkey            string
	EnableFileLogging bool
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Load configuration from sources in priority order:
	// 1) explicit file from the command line
	// 2) .env in the application (executable) directory
	// 3) the file named by FLINT_ENV
	envPath := strings.TrimSpace(opts.EnvFile)
	if envPath == "" {
		envPath = resolveEnvPath()
	}
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && opts.EnvFile != "" {
			return nil, fmt.Errorf("load %s: %w", envPath, err)
		}
	}

	tool, err := annotate.ParseTool(override(opts.ToolOverride, getEnvWithDefault("DEFAULT_TOOL", defaultDefaultTool)))
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_TOOL: %w", err)
	}

	clr := annotate.Palette[0].Color
	if v := override(opts.ColorOverride, os.Getenv("DEFAULT_COLOR")); v != "" {
		if clr, err = annotate.ParseColor(v); err != nil {
			return nil, fmt.Errorf("DEFAULT_COLOR: %w", err)
		}
	}

	backend, err := resolveBackend(override(opts.BackendOverride, os.Getenv("CAPTURE_BACKEND")))
	if err != nil {
		return nil, err
	}

	var thickness float64
	if v := os.Getenv("DEFAULT_THICKNESS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			thickness = f
		}
	}

	cfg := &Config{
		DefaultTool:       tool,
		DefaultColor:      clr,
		DefaultThickness:  thickness,
		CaptureBackend:    backend,
		PortalTimeout:     time.Duration(positiveInt("PORTAL_TIMEOUT_SEC", defaultPortalSec)) * time.Second,
		MinSelection:      positiveInt("MIN_SELECTION", 10),
		OutputDir:         resolveOutputDir(override(opts.OutputDirOverride, os.Getenv("OUTPUT_DIR"))),
		Hotkey:            getEnvWithDefault("HOTKEY", defaultHotkey),
		EnableFileLogging: strings.ToLower(os.Getenv("ENABLE_FILE_LOGGING")) == "true",
	}
	return cfg, nil
}

// Settings returns the tool selection an editing session starts with.
func (c *Config) Settings() annotate.Settings {
	s := annotate.Settings{Color: c.DefaultColor}
	s.SelectTool(c.DefaultTool)
	if c.DefaultThickness > 0 {
		s.Thickness = c.DefaultThickness
	}
	return s
}

// CaptureOptions returns the coordinator options for this configuration.
func (c *Config) CaptureOptions() capture.Options {
	return capture.Options{Backend: c.CaptureBackend, PortalTimeout: c.PortalTimeout}
}

// captureMargin covers the work around a portal wait: the selector, any
// window lookup and the PNG hand-off.
const captureMargin = 15 * time.Second

// CaptureDeadline bounds one capture session. It outlasts the portal wait so
// an unanswered permission dialog surfaces as a denial, not a timeout.
func (c *Config) CaptureDeadline() time.Duration {
	return c.PortalTimeout + captureMargin
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err == nil {
		exeEnv := filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(exeEnv); err == nil {
			return exeEnv
		}
	}

	if alt := os.Getenv(EnvFileEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}
	return ""
}

func resolveBackend(value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", BackendAuto:
		return BackendAuto, nil
	case BackendPortal:
		return BackendPortal, nil
	case BackendX11, "direct":
		return BackendX11, nil
	}
	return "", fmt.Errorf("CAPTURE_BACKEND: unknown backend %q (want auto, portal or x11)", value)
}

func resolveOutputDir(value string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	if home, err := os.UserHomeDir(); err == nil {
		pictures := filepath.Join(home, "Pictures")
		if st, err := os.Stat(pictures); err == nil && st.IsDir() {
			return pictures
		}
	}
	return "."
}

func override(flag, env string) string {
	if v := strings.TrimSpace(flag); v != "" {
		return v
	}
	return env
}

func positiveInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
