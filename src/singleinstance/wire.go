package singleinstance

import (
	"fmt"
	"strings"

	"flint/src/capture"
)

const (
	pingRequest     = "PING\n"
	pongResponse    = "PONG\n"
	captureVerb     = "CAPTURE"
	successResponse = "SUCCESS\n"
	errorResponse   = "ERROR\n"
)

// encodeRequest renders req as one protocol line, e.g. "CAPTURE region stdout\n".
func encodeRequest(req Request) string {
	return fmt.Sprintf("%s %s %s\n", captureVerb, req.Mode, req.Output)
}

func parseRequest(line string) (Request, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != captureVerb {
		return Request{}, fmt.Errorf("malformed request %q", strings.TrimSpace(line))
	}
	mode, err := capture.ParseMode(fields[1])
	if err != nil {
		return Request{}, err
	}
	out, err := ParseOutput(fields[2])
	if err != nil {
		return Request{}, err
	}
	return Request{Mode: mode, Output: out}, nil
}
