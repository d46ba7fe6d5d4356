package singleinstance

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"time"
)

// DetectResidentPort returns the port of a resident answering PING.
func DetectResidentPort(ctx context.Context) (int, bool) {
	timeout := 300 * time.Millisecond
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 && d < timeout {
			timeout = d
		}
	}
	start, end := getPortRange()
	for port := start; port <= end; port++ {
		if ctx.Err() != nil {
			return 0, false
		}
		addr := net.JoinHostPort(residentHost, strconv.Itoa(port))
		if ping(addr, timeout) {
			return port, true
		}
	}
	return 0, false
}

func ping(addr string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))
	if _, err := conn.Write([]byte(pingRequest)); err != nil {
		return false
	}
	resp, err := bufio.NewReader(conn).ReadString('\n')
	return err == nil && resp == pongResponse
}
