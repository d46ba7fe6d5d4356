package singleinstance

import (
	"os"
	"strconv"
)

const (
	defaultPortStart = 49650
	defaultPortEnd   = 49660
)

// getPortRange returns the inclusive port range from
// SINGLEINSTANCE_PORT_START and SINGLEINSTANCE_PORT_END, clamped to
// [1024, 65535]. Unset or invalid values fall back to the defaults.
func getPortRange() (int, int) {
	start := envPort("SINGLEINSTANCE_PORT_START", defaultPortStart)
	end := envPort("SINGLEINSTANCE_PORT_END", defaultPortEnd)
	if end < start {
		start, end = end, start
	}
	if start < 1024 {
		start = 1024
	}
	if end > 65535 {
		end = 65535
	}
	return start, end
}

func envPort(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// PortRange exposes the effective range for logging.
func PortRange() (int, int) { return getPortRange() }
