package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"flint/src/capture"
	"flint/src/singleinstance"
)

func TestNormalizeFlagDashes(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		out  []string
	}{
		{
			name: "Normalizes long double dash flags",
			in:   []string{"flint", "--run-once", "region", "--output", "stdout"},
			out:  []string{"flint", "-run-once", "region", "-output", "stdout"},
		},
		{
			name: "Normalizes equals form",
			in:   []string{"flint", "--run-once=full", "--env=/tmp/.env"},
			out:  []string{"flint", "-run-once=full", "-env=/tmp/.env"},
		},
		{
			name: "Leaves other flags unchanged",
			in:   []string{"flint", "-run-once", "window", "--other"},
			out:  []string{"flint", "-run-once", "window", "--other"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeFlagDashes(tt.in)
			if len(got) != len(tt.out) {
				t.Fatalf("Expected len=%d, got %d", len(tt.out), len(got))
			}
			for i := range got {
				if got[i] != tt.out[i] {
					t.Fatalf("Expected arg[%d]=%q, got %q", i, tt.out[i], got[i])
				}
			}
		})
	}
}

func TestParseRunOnce(t *testing.T) {
	req, err := parseRunOnce("region", "-")
	if err != nil {
		t.Fatalf("parseRunOnce: %v", err)
	}
	if req.Mode != capture.ModeRegion || req.Output != singleinstance.OutputStdout {
		t.Errorf("got %+v", req)
	}
	if _, err := parseRunOnce("desktop", "clipboard"); err == nil {
		t.Error("expected unknown mode error")
	}
	if _, err := parseRunOnce("full", "printer"); err == nil {
		t.Error("expected unknown output error")
	}
}

type fakeClient struct {
	delegated bool
	payload   []byte
	err       error
	called    bool
}

func (f *fakeClient) TryRunOnce(ctx context.Context, req singleinstance.Request) (bool, []byte, error) {
	f.called = true
	return f.delegated, f.payload, f.err
}

func TestHandleRunOnceWithDelegation_Delegated(t *testing.T) {
	client := &fakeClient{delegated: true, payload: []byte("Copied to clipboard")}
	fallbackCalled := false
	var out bytes.Buffer

	code := handleRunOnceWithDelegation(context.Background(), singleinstance.Request{}, client, &out, func() int {
		fallbackCalled = true
		return 0
	})

	if !client.called {
		t.Fatal("Expected client.TryRunOnce to be called")
	}
	if fallbackCalled {
		t.Fatal("Did not expect fallback when delegation succeeds")
	}
	if code != 0 || out.Len() != 0 {
		t.Fatalf("code=%d stdout=%q", code, out.String())
	}
}

func TestHandleRunOnceWithDelegation_StdoutPayload(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	client := &fakeClient{delegated: true, payload: png}
	var out bytes.Buffer

	code := handleRunOnceWithDelegation(context.Background(), singleinstance.Request{Output: singleinstance.OutputStdout}, client, &out, func() int { return 9 })
	if code != 0 || !bytes.Equal(out.Bytes(), png) {
		t.Fatalf("code=%d stdout=%v", code, out.Bytes())
	}
}

func TestHandleRunOnceWithDelegation_NoResidentFallback(t *testing.T) {
	client := &fakeClient{delegated: false}
	fallbackCalled := false

	code := handleRunOnceWithDelegation(context.Background(), singleinstance.Request{}, client, &bytes.Buffer{}, func() int {
		fallbackCalled = true
		return 7
	})

	if !fallbackCalled {
		t.Fatal("Expected fallback when no resident is delegated")
	}
	if code != 7 {
		t.Fatalf("Expected the fallback exit code, got %d", code)
	}
}

func TestHandleRunOnceWithDelegation_BusyDoesNotFallBack(t *testing.T) {
	client := &fakeClient{delegated: true, err: errors.New("Busy, please retry")}
	fallbackCalled := false

	code := handleRunOnceWithDelegation(context.Background(), singleinstance.Request{}, client, &bytes.Buffer{}, func() int {
		fallbackCalled = true
		return 0
	})

	if fallbackCalled {
		t.Fatal("A resident that answered must not trigger a standalone run")
	}
	if code != 1 {
		t.Fatalf("Expected exit code 1, got %d", code)
	}
}
