package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"flint/src/capture"
	"flint/src/singleinstance"
)

type stressOptions struct {
	n        int
	mode     string
	output   string
	deadline time.Duration
}

type runOnceClient interface {
	TryRunOnce(ctx context.Context, req singleinstance.Request) (bool, []byte, error)
}

type tally struct {
	ok, busy, err int32
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &stressOptions{}
	cmd := newRootCmd(opts)
	return cmd.Execute()
}

func newRootCmd(opts *stressOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stress-runonce",
		Short:         "Stress test run-once delegation against a resident",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			port, ok := singleinstance.DetectResidentPort(cmd.Context())
			if !ok {
				start, end := singleinstance.PortRange()
				return fmt.Errorf("no resident listening on 127.0.0.1:%d-%d", start, end)
			}
			fmt.Fprintf(os.Stderr, "resident on port %d\n", port)
			return runWithOptions(*opts, os.Stdout, func() runOnceClient { return singleinstance.NewClient() })
		},
	}

	cmd.Flags().IntVar(&opts.n, "n", 50, "number of clients to launch")
	cmd.Flags().StringVar(&opts.mode, "mode", "full", "capture mode: full|region|window")
	cmd.Flags().StringVar(&opts.output, "output", "stdout", "clipboard|file|stdout")
	cmd.Flags().DurationVar(&opts.deadline, "deadline", 5*time.Second, "per-client timeout")

	return cmd
}

func runWithOptions(opts stressOptions, w io.Writer, newClient func() runOnceClient) error {
	mode, err := capture.ParseMode(opts.mode)
	if err != nil {
		return err
	}
	output, err := singleinstance.ParseOutput(opts.output)
	if err != nil {
		return err
	}
	req := singleinstance.Request{Mode: mode, Output: output}

	start := time.Now()
	t := launch(opts.n, opts.deadline, req, newClient)
	elapsed := time.Since(start)
	fmt.Fprintf(w, "launched=%d ok=%d busy=%d err=%d elapsed=%s\n", opts.n, t.ok, t.busy, t.err, elapsed)
	return nil
}

func launch(n int, deadline time.Duration, req singleinstance.Request, newClient func() runOnceClient) tally {
	var wg sync.WaitGroup
	var t tally
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), deadline)
			defer cancel()
			delegated, _, err := newClient().TryRunOnce(ctx, req)
			switch {
			case err != nil && strings.Contains(strings.ToLower(err.Error()), "busy"):
				atomic.AddInt32(&t.busy, 1)
			case err != nil, !delegated:
				atomic.AddInt32(&t.err, 1)
			default:
				atomic.AddInt32(&t.ok, 1)
			}
		}()
	}
	wg.Wait()
	return t
}
