package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"flint/src/annotate"
	"flint/src/capture"
	"flint/src/clipboard"
	"flint/src/compositor"
	"flint/src/config"
	"flint/src/editor"
	"flint/src/export"
	"flint/src/geometry"
	"flint/src/logutil"
	"flint/src/overlay"
	"flint/src/runtimeinit"
	"flint/src/session"
)

const (
	maxFileSizeMB = 64
	maxFileSize   = maxFileSizeMB * 1024 * 1024
	clipboardHold = 30 * time.Second
)

type cliOptions struct {
	verbose bool
	envFile string
	backend string

	mode      string
	rect      string
	window    string
	out       string
	clipboard bool

	jsonOutput bool

	in      string
	strokes string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return runWithArgs(normalizeLegacyArgs(os.Args))
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"flint"}
	}

	opts := &cliOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "flint",
		Short:         "Capture, annotate and export screenshots",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Configure logging BEFORE any other operations.
			if opts.verbose {
				logutil.SetupStderr()
				fmt.Fprintf(os.Stderr, "[verbose] Starting %s\n", cmd.Name())
			} else {
				log.SetOutput(io.Discard)
			}
		},
	}
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env", "", "Path to a .env file")
	cmd.PersistentFlags().StringVar(&opts.backend, "backend", "", "Capture backend: auto|portal|x11")

	cmd.AddCommand(newCaptureCmd(opts), newWindowsCmd(opts), newRenderCmd(opts), newEditCmd(opts))
	return cmd
}

func newCaptureCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture the screen, a region or a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(cmd.Context(), *opts)
		},
	}
	cmd.Flags().StringVar(&opts.mode, "mode", "full", "Capture mode: full|region|window")
	cmd.Flags().StringVar(&opts.rect, "rect", "", "Region as x,y,w,h (skips the selector)")
	cmd.Flags().StringVar(&opts.window, "window", "", "Window id (decimal or 0x hex); default is the active window")
	cmd.Flags().StringVar(&opts.out, "out", "", "Output PNG path ('-' for stdout)")
	cmd.Flags().BoolVar(&opts.clipboard, "clipboard", false, "Copy the capture to the clipboard")
	return cmd
}

func newWindowsCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "windows",
		Short: "List capturable windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			windows, err := capture.ListWindows()
			if err != nil {
				return fmt.Errorf("list windows: %w", err)
			}
			return writeWindows(os.Stdout, windows, opts.jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	return cmd
}

func newRenderCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Flatten a strokes file onto a PNG",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(*opts, os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&opts.in, "in", "", "Base PNG path ('-' for stdin)")
	cmd.Flags().StringVar(&opts.strokes, "strokes", "", "Strokes JSON path")
	cmd.Flags().StringVar(&opts.out, "out", "", "Output PNG path ('-' for stdout)")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("strokes")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newEditCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Capture and annotate interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd.Context(), *opts)
		},
	}
	cmd.Flags().StringVar(&opts.mode, "mode", "region", "Capture mode: full|region|window")
	return cmd
}

func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := make([]string, len(args))
	copy(normalized, args)

	names := []string{"verbose", "env", "backend", "mode", "rect", "window", "out", "clipboard", "json", "in", "strokes"}
	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		for _, name := range names {
			switch {
			case arg == "-"+name:
				normalized[i] = "--" + name
			case strings.HasPrefix(arg, "-"+name+"="):
				normalized[i] = "-" + arg
			}
		}
	}

	return normalized
}

func bootstrap(ctx context.Context, opts cliOptions, requireClipboard bool) (*config.Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return runtimeinit.Bootstrap(ctx, runtimeinit.Options{
		LoadOptions:      config.LoadOptions{EnvFile: opts.envFile, BackendOverride: opts.backend},
		RequireClipboard: requireClipboard,
	})
}

func buildRequest(opts cliOptions) (capture.Request, error) {
	mode, err := capture.ParseMode(opts.mode)
	if err != nil {
		return capture.Request{}, err
	}
	req := capture.Request{Mode: mode}
	if opts.rect != "" {
		if mode != capture.ModeRegion {
			return capture.Request{}, fmt.Errorf("--rect requires --mode region")
		}
		if req.Region, err = parseRect(opts.rect); err != nil {
			return capture.Request{}, err
		}
	}
	if opts.window != "" {
		if mode != capture.ModeWindow {
			return capture.Request{}, fmt.Errorf("--window requires --mode window")
		}
		id, err := strconv.ParseUint(opts.window, 0, 32)
		if err != nil || id == 0 {
			return capture.Request{}, fmt.Errorf("invalid window id %q", opts.window)
		}
		req.WindowID = uint32(id)
	}
	return req, nil
}

// parseRect reads "x,y,w,h".
func parseRect(s string) (geometry.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geometry.Rect{}, fmt.Errorf("rect %q: want x,y,w,h", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return geometry.Rect{}, fmt.Errorf("rect %q: %w", s, err)
		}
		v[i] = n
	}
	r := geometry.Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
	if r.Empty() {
		return geometry.Rect{}, fmt.Errorf("rect %q: %w", s, capture.ErrInvalidRegion)
	}
	return r, nil
}

// sinkList delivers to every sink in order and reports the last status.
type sinkList []export.Sink

func (l sinkList) Deliver(img *image.RGBA) (string, error) {
	var status string
	for _, s := range l {
		st, err := s.Deliver(img)
		if err != nil {
			return "", err
		}
		if st != "" {
			status = st
		}
	}
	return status, nil
}

func captureSinks(opts cliOptions, cfg *config.Config) sinkList {
	var sinks sinkList
	switch opts.out {
	case "":
	case "-":
		sinks = append(sinks, export.WriterSink{W: os.Stdout})
	default:
		sinks = append(sinks, export.FileSink{Path: opts.out})
	}
	if opts.clipboard {
		sinks = append(sinks, export.ClipboardSink{})
	}
	if len(sinks) == 0 {
		sinks = append(sinks, export.FileSink{Dir: cfg.OutputDir})
	}
	return sinks
}

func runCapture(ctx context.Context, opts cliOptions) error {
	req, err := buildRequest(opts)
	if err != nil {
		return err
	}
	cfg, err := bootstrap(ctx, opts, opts.clipboard)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := session.Execute(ctx, session.Options{
		Capturer:      capture.New(cfg.CaptureOptions()),
		Request:       req,
		SelectRegion:  overlay.New(cfg.MinSelection).Select,
		ResolveWindow: capture.ActiveWindow,
		Target:        session.SinkTarget{Sink: captureSinks(opts, cfg)},
		Deadline:      cfg.CaptureDeadline(),
	})
	if err != nil {
		return errors.New(capture.Describe(err))
	}
	if opts.verbose {
		fmt.Fprintf(os.Stderr, "[verbose] Captured %dx%d via %s in %v\n", res.Image.Rect.Dx(), res.Image.Rect.Dy(), res.Backend, time.Since(start))
	}
	if res.Status != "" {
		fmt.Fprintln(os.Stderr, res.Status)
	}
	if opts.clipboard {
		clipboard.Hold(clipboardHold)
	}
	return nil
}

func runEdit(ctx context.Context, opts cliOptions) error {
	req, err := buildRequest(opts)
	if err != nil {
		return err
	}
	cfg, err := bootstrap(ctx, opts, false)
	if err != nil {
		return err
	}

	_, err = session.Execute(ctx, session.Options{
		Capturer:      capture.New(cfg.CaptureOptions()),
		Request:       req,
		SelectRegion:  overlay.New(cfg.MinSelection).Select,
		ResolveWindow: capture.ActiveWindow,
		Edit:          editor.Run,
		Settings:      cfg.Settings(),
		Save:          export.FileSink{Dir: cfg.OutputDir},
		Copy:          export.ClipboardSink{},
		Deadline:      cfg.CaptureDeadline(),
	})
	if err != nil {
		return errors.New(capture.Describe(err))
	}
	// Returns at once unless the editor copied something.
	clipboard.Hold(clipboardHold)
	return nil
}

func runRender(opts cliOptions, stdin io.Reader, stdout io.Writer) error {
	data, err := readInput(opts.in, stdin)
	if err != nil {
		return err
	}
	if err := validatePNG(data); err != nil {
		return err
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode %s: %w", opts.in, err)
	}
	b := decoded.Bounds()
	base := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(base, base.Bounds(), decoded, b.Min, draw.Src)

	f, err := os.Open(opts.strokes)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", opts.strokes, err)
	}
	defer f.Close()
	strokes, err := annotate.ReadStrokes(f)
	if err != nil {
		return err
	}
	if opts.verbose {
		fmt.Fprintf(os.Stderr, "[verbose] Rendering %d strokes onto %dx%d\n", len(strokes), b.Dx(), b.Dy())
	}

	out := compositor.Render(base, strokes, nil)
	var sink export.Sink = export.FileSink{Path: opts.out}
	if opts.out == "-" {
		sink = export.WriterSink{W: stdout}
	}
	_, err = sink.Deliver(out)
	return err
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(io.LimitReader(stdin, maxFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", path, err)
		}
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("input file exceeds maximum size of %d MB", maxFileSizeMB)
	}
	return data, nil
}

func validatePNG(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("input file is empty")
	}
	if len(data) < 8 || !bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}) {
		return fmt.Errorf("input is not a valid PNG file (invalid magic number)")
	}
	return nil
}

type windowJSON struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Class  string `json:"class"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func writeWindows(w io.Writer, windows []capture.WindowInfo, jsonOutput bool) error {
	if jsonOutput {
		out := make([]windowJSON, 0, len(windows))
		for _, win := range windows {
			out = append(out, windowJSON{
				ID:     fmt.Sprintf("0x%x", win.ID),
				Title:  win.Title,
				Class:  win.Class,
				Width:  win.Width,
				Height: win.Height,
			})
		}
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(out); err != nil {
			return fmt.Errorf("failed to encode JSON output: %w", err)
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSIZE\tCLASS\tTITLE")
	for _, win := range windows {
		fmt.Fprintf(tw, "0x%x\t%dx%d\t%s\t%s\n", win.ID, win.Width, win.Height, win.Class, win.Title)
	}
	return tw.Flush()
}
