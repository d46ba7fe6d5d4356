package eventloop

import (
	"context"
	"errors"
	"log"
	"time"

	"flint/src/annotate"
	"flint/src/capture"
	"flint/src/export"
	"flint/src/hotkey"
	"flint/src/notification"
	"flint/src/session"
	"flint/src/singleinstance"
	"flint/src/worker"
)

// BusyMessage answers any trigger that arrives while a flow is running.
const BusyMessage = "Busy, please retry"

type Options struct {
	Capturer      capture.Capturer
	SelectRegion  session.RegionSelectorFunc
	ResolveWindow func() (uint32, error)
	// Edit opens the editor for hotkey and tray captures. Run-once
	// requests always deliver straight to the client.
	Edit     session.EditFunc
	Settings annotate.Settings
	Save     export.Sink
	Copy     export.Sink
	Deadline time.Duration

	// Server defaults to singleinstance.NewServer.
	Server singleinstance.Server
	// Notify defaults to notification.Show; NotifyError to notification.ShowError.
	Notify      func(title, message string)
	NotifyError func(title, message string)
	// Tooltip receives the busy text, and "" when idle.
	Tooltip func(string)
}

// Loop is the single-threaded coordinator of the resident process. Every
// trigger (hotkey, tray, run-once client) is posted into it, and it allows
// one capture flow at a time.
type Loop struct {
	opts     Options
	pool     *worker.Pool
	srv      singleinstance.Server
	busy     bool
	triggers chan trigger
	results  chan flowResult
}

type trigger struct {
	req  capture.Request
	conn singleinstance.Conn
}

type flowResult struct {
	res  session.Result
	err  error
	conn singleinstance.Conn
}

func New(opts Options) *Loop {
	if opts.Notify == nil {
		opts.Notify = notification.Show
	}
	if opts.NotifyError == nil {
		opts.NotifyError = notification.ShowError
	}
	if opts.Tooltip == nil {
		opts.Tooltip = func(string) {}
	}
	if opts.Server == nil {
		opts.Server = singleinstance.NewServer()
	}
	return &Loop{
		opts:     opts,
		pool:     worker.New(opts.Capturer),
		srv:      opts.Server,
		triggers: make(chan trigger, 4),
		results:  make(chan flowResult, 1),
	}
}

// Trigger posts a local capture request. It never blocks; requests beyond
// the queue are dropped.
func (l *Loop) Trigger(req capture.Request) {
	select {
	case l.triggers <- trigger{req: req}:
	default:
		log.Printf("eventloop: trigger queue full, dropping %s request", req.Mode)
	}
}

// StartHotkey registers combo to start a region capture.
func (l *Loop) StartHotkey(combo string) error {
	if combo == "" {
		return nil
	}
	return hotkey.Listen(combo, func() {
		l.Trigger(capture.Request{Mode: capture.ModeRegion})
	})
}

// Run starts the resident server and processes triggers until ctx ends.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.srv.Start(ctx); err != nil {
		return err
	}
	defer l.srv.Close()
	defer l.pool.Close()
	if p := l.srv.Port(); p > 0 {
		log.Printf("eventloop: resident listening on 127.0.0.1:%d", p)
	}

	// Accept in the background so results are handled while idle clients wait.
	reqCh := make(chan singleinstance.Conn, 4)
	go func() {
		defer close(reqCh)
		for {
			conn, err := l.srv.Next(ctx)
			if err != nil {
				return
			}
			reqCh <- conn
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-l.triggers:
			l.start(ctx, t)
		case conn, ok := <-reqCh:
			if !ok {
				return nil
			}
			req := conn.Request()
			l.start(ctx, trigger{req: capture.Request{Mode: req.Mode}, conn: conn})
		case res := <-l.results:
			l.finish(res)
		}
	}
}

func (l *Loop) start(ctx context.Context, t trigger) {
	if l.busy {
		log.Printf("eventloop: busy, rejecting %s request", t.req.Mode)
		if t.conn != nil {
			_ = t.conn.RespondError(BusyMessage)
			_ = t.conn.Close()
		} else {
			l.opts.Notify("Flint", BusyMessage)
		}
		return
	}
	l.setBusy(true)

	opts := session.Options{
		Capturer:      l.pool,
		Request:       t.req,
		Deadline:      l.opts.Deadline,
		SelectRegion:  l.opts.SelectRegion,
		ResolveWindow: l.opts.ResolveWindow,
		Settings:      l.opts.Settings,
		Save:          l.opts.Save,
		Copy:          l.opts.Copy,
	}
	if t.conn != nil {
		opts.Target = session.DelegatedTarget{Conn: t.conn, Save: l.opts.Save, Copy: l.opts.Copy}
	} else if l.opts.Edit != nil {
		opts.Edit = l.opts.Edit
	} else {
		opts.Target = session.SinkTarget{Sink: l.opts.Copy}
	}

	go func() {
		res, err := session.Execute(ctx, opts)
		l.results <- flowResult{res: res, err: err, conn: t.conn}
	}()
}

func (l *Loop) finish(r flowResult) {
	l.setBusy(false)
	if r.conn != nil {
		// The client was answered by the delegated target.
		_ = r.conn.Close()
		if r.err != nil {
			log.Printf("eventloop: run-once request failed: %v", r.err)
		}
		return
	}
	switch {
	case r.err == nil:
		if r.res.Status != "" {
			l.opts.Notify("Flint", r.res.Status)
		}
	case errors.Is(r.err, session.ErrSelectionCancelled), errors.Is(r.err, context.Canceled):
		log.Printf("eventloop: capture cancelled")
	default:
		log.Printf("eventloop: capture failed: %v", r.err)
		l.opts.NotifyError("Capture failed", capture.Describe(r.err))
	}
}

func (l *Loop) setBusy(b bool) {
	l.busy = b
	if b {
		l.opts.Tooltip("Flint: capturing...")
	} else {
		l.opts.Tooltip("")
	}
}
