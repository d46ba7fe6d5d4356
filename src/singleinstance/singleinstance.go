package singleinstance

// This file defines the API for resident ownership and run-once delegation.

import (
	"context"
	"fmt"
	"strings"

	"flint/src/capture"
)

// Server owns the loopback endpoint and answers run-once requests.
type Server interface {
	// Start binds the first port of the configured range.
	Start(ctx context.Context) error
	// Port returns the bound TCP port, or 0 if not started.
	Port() int
	// Next returns the next accepted connection, or the ctx error.
	Next(ctx context.Context) (Conn, error)
	Close() error
}

// Conn is one client connection waiting for its answer.
type Conn interface {
	Request() Request
	// RespondSuccess sends the payload: PNG bytes for stdout requests,
	// the status line otherwise.
	RespondSuccess(payload []byte) error
	RespondError(msg string) error
	Close() error
}

// Output says where a delegated capture ends up.
type Output int

const (
	OutputClipboard Output = iota
	OutputFile
	OutputStdout
)

func (o Output) String() string {
	switch o {
	case OutputFile:
		return "file"
	case OutputStdout:
		return "stdout"
	default:
		return "clipboard"
	}
}

func ParseOutput(s string) (Output, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "clipboard":
		return OutputClipboard, nil
	case "file":
		return OutputFile, nil
	case "stdout", "-":
		return OutputStdout, nil
	}
	return 0, fmt.Errorf("unknown output %q", s)
}

// Request is a single run-once capture request.
type Request struct {
	Mode   capture.Mode
	Output Output
}

// Client delegates a run-once capture to a resident instance.
type Client interface {
	// TryRunOnce scans the port range and hands req to the resident.
	// With no resident it returns delegated=false and a nil error.
	TryRunOnce(ctx context.Context, req Request) (delegated bool, payload []byte, err error)
}

func NewServer() Server { return newTcpServer() }

func NewClient() Client { return newTcpClient() }
