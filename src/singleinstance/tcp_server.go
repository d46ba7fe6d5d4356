package singleinstance

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

const residentHost = "127.0.0.1"

// tcpServer implements Server over TCP loopback.
type tcpServer struct {
	mu       sync.Mutex
	lis      net.Listener
	incoming chan *tcpConn
	port     int
	closed   bool
}

func newTcpServer() *tcpServer { return &tcpServer{incoming: make(chan *tcpConn, 8)} }

// Start binds only the first port of the range. If it is taken another
// resident owns the session and Start fails.
func (s *tcpServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis != nil {
		return nil
	}
	start, _ := getPortRange()
	addr := fmt.Sprintf("%s:%d", residentHost, start)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("singleinstance: failed to bind %s: %v", addr, err)
		return err
	}
	s.lis = lis
	s.port = start
	log.Printf("singleinstance: listening on %s", addr)
	go s.acceptLoop(ctx, lis)
	return nil
}

func (s *tcpServer) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

func (s *tcpServer) acceptLoop(ctx context.Context, lis net.Listener) {
	for {
		c, err := lis.Accept()
		if err != nil {
			return
		}
		remote := c.RemoteAddr().String()
		_ = c.SetDeadline(time.Now().Add(3 * time.Second))
		br := bufio.NewReader(c)
		line, _ := br.ReadString('\n')
		bw := bufio.NewWriter(c)
		if line == pingRequest {
			log.Printf("singleinstance: PING from %s -> PONG", remote)
			_, _ = bw.WriteString(pongResponse)
			_ = bw.Flush()
			_ = c.Close()
			continue
		}
		req, err := parseRequest(line)
		if err != nil {
			log.Printf("singleinstance: rejecting %s: %v", remote, err)
			_, _ = bw.WriteString(errorResponse + err.Error())
			_ = bw.Flush()
			_ = c.Close()
			continue
		}
		// The capture may wait on the user for a long time.
		_ = c.SetDeadline(time.Time{})
		log.Printf("singleinstance: request from %s mode=%s output=%s", remote, req.Mode, req.Output)
		select {
		case s.incoming <- &tcpConn{c: c, r: req, w: bw}:
		case <-ctx.Done():
			_ = c.Close()
			return
		}
	}
}

func (s *tcpServer) Next(ctx context.Context) (Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case tc, ok := <-s.incoming:
		if !ok {
			return nil, net.ErrClosed
		}
		return tc, nil
	}
}

func (s *tcpServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.lis != nil {
		_ = s.lis.Close()
		s.lis = nil
	}
	return nil
}

type tcpConn struct {
	c net.Conn
	r Request
	w *bufio.Writer
}

func (tc *tcpConn) Request() Request { return tc.r }

func (tc *tcpConn) RespondSuccess(payload []byte) error {
	if _, err := tc.w.WriteString(successResponse); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := tc.w.Write(payload); err != nil {
			return err
		}
	}
	return tc.w.Flush()
}

func (tc *tcpConn) RespondError(msg string) error {
	if _, err := tc.w.WriteString(errorResponse + msg); err != nil {
		return err
	}
	return tc.w.Flush()
}

func (tc *tcpConn) Close() error { return tc.c.Close() }
