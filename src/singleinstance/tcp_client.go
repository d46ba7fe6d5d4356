package singleinstance

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"time"
)

type tcpClient struct {
	// pingTimeout bounds each ping of the port range.
	pingTimeout time.Duration
}

func newTcpClient() *tcpClient { return &tcpClient{pingTimeout: 300 * time.Millisecond} }

func (c *tcpClient) TryRunOnce(ctx context.Context, req Request) (bool, []byte, error) {
	start, end := getPortRange()
	for port := start; port <= end; port++ {
		addr := net.JoinHostPort(residentHost, strconv.Itoa(port))
		if !ping(addr, c.pingTimeout) {
			continue
		}
		log.Printf("singleinstance: resident found on %s", addr)
		payload, err := c.delegate(ctx, addr, req)
		return true, payload, err
	}
	return false, nil, nil
}

func (c *tcpClient) delegate(ctx context.Context, addr string, req Request) ([]byte, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// The resident answers only after the user finishes, so honor ctx
	// rather than a fixed deadline.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(encodeRequest(req)); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read status: %w", err)
	}
	body, err := io.ReadAll(br)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	switch status {
	case successResponse:
		return body, nil
	case errorResponse:
		return nil, errors.New(string(body))
	}
	return nil, fmt.Errorf("unexpected status %q", status)
}
