package eventloop

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net"
	"sync"
	"testing"
	"time"

	"flint/src/capture"
	"flint/src/singleinstance"
)

type fakeServer struct {
	conns chan singleinstance.Conn
}

func newFakeServer() *fakeServer { return &fakeServer{conns: make(chan singleinstance.Conn, 4)} }

func (s *fakeServer) Start(context.Context) error { return nil }
func (s *fakeServer) Port() int                   { return 0 }
func (s *fakeServer) Close() error                { return nil }

func (s *fakeServer) Next(ctx context.Context) (singleinstance.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case c, ok := <-s.conns:
		if !ok {
			return nil, net.ErrClosed
		}
		return c, nil
	}
}

type fakeConn struct {
	req  singleinstance.Request
	mu   sync.Mutex
	ok   []byte
	err  string
	done chan struct{}
}

func newConn(req singleinstance.Request) *fakeConn {
	return &fakeConn{req: req, done: make(chan struct{})}
}

func (c *fakeConn) Request() singleinstance.Request { return c.req }

func (c *fakeConn) RespondSuccess(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ok = p
	return nil
}

func (c *fakeConn) RespondError(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = msg
	return nil
}

func (c *fakeConn) Close() error { close(c.done); return nil }

func (c *fakeConn) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(3 * time.Second):
		t.Fatal("connection never closed")
	}
}

type gatedCapturer struct {
	gate chan struct{}
	err  error
}

func (g *gatedCapturer) Capture(ctx context.Context, req capture.Request) (*capture.Result, error) {
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	return &capture.Result{Pixels: image.NewRGBA(image.Rect(0, 0, 8, 6)), Backend: "fake"}, nil
}

type countingSink struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSink) Deliver(*image.RGBA) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return "Copied to clipboard", nil
}

type notes chan string

func (n notes) fn(title, message string) { n <- message }

func (n notes) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-n:
		if got != want {
			t.Fatalf("notification = %q, want %q", got, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no notification, want %q", want)
	}
}

func runLoop(t *testing.T, opts Options) *fakeServer {
	t.Helper()
	srv := newFakeServer()
	opts.Server = srv
	l := New(opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv
}

func TestLocalTriggerCopies(t *testing.T) {
	n := make(notes, 4)
	sink := &countingSink{}
	l := New(Options{Capturer: &gatedCapturer{}, Copy: sink, Notify: n.fn, NotifyError: n.fn, Server: newFakeServer()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	l.Trigger(capture.FullScreen())
	n.expect(t, "Copied to clipboard")
	if sink.calls != 1 {
		t.Errorf("sink calls = %d", sink.calls)
	}
}

func TestFailureNotifies(t *testing.T) {
	n := make(notes, 4)
	l := New(Options{
		Capturer:    &gatedCapturer{err: capture.ErrBackendUnavailable},
		Copy:        &countingSink{},
		Notify:      n.fn,
		NotifyError: n.fn,
		Server:      newFakeServer(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	l.Trigger(capture.FullScreen())
	n.expect(t, capture.Describe(capture.ErrBackendUnavailable))
}

func TestRunOnceStdoutGetsPNG(t *testing.T) {
	srv := runLoop(t, Options{Capturer: &gatedCapturer{}, Notify: func(string, string) {}})

	conn := newConn(singleinstance.Request{Mode: capture.ModeFullScreen, Output: singleinstance.OutputStdout})
	srv.conns <- conn
	conn.wait(t)

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.err != "" {
		t.Fatalf("error response %q", conn.err)
	}
	img, err := png.Decode(bytes.NewReader(conn.ok))
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if img.Bounds().Dx() != 8 {
		t.Errorf("bounds %v", img.Bounds())
	}
}

func TestBusyRejectsSecondRequest(t *testing.T) {
	gate := make(chan struct{})
	var tooltips []string
	var tmu sync.Mutex
	n := make(notes, 4)
	srv := runLoop(t, Options{
		Capturer:    &gatedCapturer{gate: gate},
		Copy:        &countingSink{},
		Notify:      n.fn,
		NotifyError: n.fn,
		Tooltip: func(s string) {
			tmu.Lock()
			tooltips = append(tooltips, s)
			tmu.Unlock()
		},
	})

	first := newConn(singleinstance.Request{Mode: capture.ModeFullScreen})
	srv.conns <- first
	second := newConn(singleinstance.Request{Mode: capture.ModeFullScreen})
	srv.conns <- second
	second.wait(t)
	second.mu.Lock()
	if second.err != BusyMessage {
		t.Errorf("second response %q", second.err)
	}
	second.mu.Unlock()

	close(gate)
	first.wait(t)
	first.mu.Lock()
	if string(first.ok) != "Copied to clipboard" {
		t.Errorf("first response ok=%q err=%q", first.ok, first.err)
	}
	first.mu.Unlock()

	tmu.Lock()
	defer tmu.Unlock()
	if len(tooltips) < 2 || tooltips[0] == "" || tooltips[len(tooltips)-1] != "" {
		t.Errorf("tooltips = %q", tooltips)
	}
}
