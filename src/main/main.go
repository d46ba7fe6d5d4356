package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"flint/src/capture"
	"flint/src/clipboard"
	"flint/src/config"
	"flint/src/editor"
	"flint/src/eventloop"
	"flint/src/export"
	"flint/src/logutil"
	"flint/src/overlay"
	"flint/src/runtimeinit"
	"flint/src/session"
	"flint/src/singleinstance"
	"flint/src/tray"
)

// clipboardHold bounds how long a standalone run keeps serving the clipboard.
const clipboardHold = 30 * time.Second

// normalizeFlagDashes maps GNU-style --flag[=v] to Go's -flag[=v] for the
// flags this binary defines.
func normalizeFlagDashes(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 1; i < len(out); i++ {
		for _, name := range []string{"run-once", "output", "env"} {
			switch {
			case out[i] == "--"+name:
				out[i] = "-" + name
			case strings.HasPrefix(out[i], "--"+name+"="):
				out[i] = out[i][1:]
			}
		}
	}
	return out
}

type runOnceClient interface {
	TryRunOnce(ctx context.Context, req singleinstance.Request) (bool, []byte, error)
}

// handleRunOnceWithDelegation hands req to a resident when one answers and
// otherwise calls fallback. It returns the process exit code.
func handleRunOnceWithDelegation(ctx context.Context, req singleinstance.Request, client runOnceClient, stdout io.Writer, fallback func() int) int {
	delegated, payload, err := client.TryRunOnce(ctx, req)
	if !delegated {
		log.Printf("No resident detected (not delegated), running standalone")
		return fallback()
	}
	if err != nil {
		log.Printf("Resident rejected run-once: %v", err)
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	if req.Output == singleinstance.OutputStdout {
		if _, err := stdout.Write(payload); err != nil {
			fmt.Fprintf(os.Stderr, "write stdout: %v\n", err)
			return 1
		}
		return 0
	}
	log.Printf("Delegated to resident: %s", payload)
	return 0
}

func parseRunOnce(mode, output string) (singleinstance.Request, error) {
	m, err := capture.ParseMode(mode)
	if err != nil {
		return singleinstance.Request{}, err
	}
	o, err := singleinstance.ParseOutput(output)
	if err != nil {
		return singleinstance.Request{}, err
	}
	return singleinstance.Request{Mode: m, Output: o}, nil
}

func main() {
	os.Args = normalizeFlagDashes(os.Args)
	runOnce := flag.String("run-once", "", "Capture once (full|region|window), deliver and exit")
	output := flag.String("output", "clipboard", "Run-once destination: clipboard|file|stdout")
	envFile := flag.String("env", "", "Path to a .env file")
	flag.Parse()

	loadOpts := config.LoadOptions{EnvFile: *envFile}

	if *runOnce != "" {
		req, err := parseRunOnce(*runOnce, *output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(2)
		}
		// Load .env early so SINGLEINSTANCE_PORT_* apply to the delegation scan.
		_, _ = config.LoadWithOptions(loadOpts)
		code := handleRunOnceWithDelegation(context.Background(), req, singleinstance.NewClient(), os.Stdout, func() int {
			return runStandalone(loadOpts, req)
		})
		os.Exit(code)
	}

	_, _ = config.LoadWithOptions(loadOpts)
	start, _ := singleinstance.PortRange()
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", start))
	if err != nil {
		log.Printf("Pre-flight: port %d busy, resident already exists", start)
		fmt.Printf("flint is already running on port %d\n", start)
		os.Exit(1)
	}
	// Release the port so the event loop can bind it.
	_ = listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := runtimeinit.Bootstrap(ctx, runtimeinit.Options{
		LoadOptions:        loadOpts,
		SetupLogging:       logutil.Setup,
		ShowBlockingErrors: true,
	})
	if err != nil {
		log.Printf("startup: %v", err)
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	log.Printf("Flint initialized, hotkey %s", cfg.Hotkey)

	loop := eventloop.New(eventloop.Options{
		Capturer:      capture.New(cfg.CaptureOptions()),
		SelectRegion:  overlay.New(cfg.MinSelection).Select,
		ResolveWindow: capture.ActiveWindow,
		Edit:          editor.Run,
		Settings:      cfg.Settings(),
		Save:          export.FileSink{Dir: cfg.OutputDir},
		Copy:          export.ClipboardSink{},
		Tooltip:       tray.UpdateTooltip,
		Deadline:      cfg.CaptureDeadline(),
	})

	trayIcon := tray.New(tray.Config{
		Title:       "Flint",
		Tooltip:     fmt.Sprintf("Flint - Press %s to capture a region", cfg.Hotkey),
		OnCapture:   loop.Trigger,
		OnExit:      cancel,
		ListWindows: capture.ListWindows,
	})
	go trayIcon.Run()
	defer trayIcon.Quit()

	if err := loop.StartHotkey(cfg.Hotkey); err != nil {
		log.Printf("hotkey: %v", err)
	}

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("event loop stopped: %v", err)
	}
}

// runStandalone performs one capture without a resident and returns the
// exit code.
func runStandalone(loadOpts config.LoadOptions, req singleinstance.Request) int {
	ctx := context.Background()
	cfg, err := runtimeinit.Bootstrap(ctx, runtimeinit.Options{
		LoadOptions:      loadOpts,
		SetupLogging:     logutil.Setup,
		RequireClipboard: req.Output == singleinstance.OutputClipboard,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	var sink export.Sink
	switch req.Output {
	case singleinstance.OutputStdout:
		sink = export.WriterSink{W: os.Stdout}
	case singleinstance.OutputFile:
		sink = export.FileSink{Dir: cfg.OutputDir}
	default:
		sink = export.ClipboardSink{}
	}

	res, err := session.Execute(ctx, session.Options{
		Capturer:      capture.New(cfg.CaptureOptions()),
		Request:       capture.Request{Mode: req.Mode},
		SelectRegion:  overlay.New(cfg.MinSelection).Select,
		ResolveWindow: capture.ActiveWindow,
		Target:        session.SinkTarget{Sink: sink},
		Deadline:      cfg.CaptureDeadline(),
	})
	if err != nil {
		if errors.Is(err, session.ErrSelectionCancelled) {
			log.Printf("Run-once cancelled")
			return 1
		}
		fmt.Fprintf(os.Stderr, "%s\n", capture.Describe(err))
		return 1
	}
	if res.Status != "" {
		log.Printf("Run-once: %s", res.Status)
	}
	if req.Output == singleinstance.OutputClipboard {
		clipboard.Hold(clipboardHold)
	}
	return 0
}
