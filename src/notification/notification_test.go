package notification

import (
	"errors"
	"testing"
	"time"
)

type sent struct {
	title, message string
	urgency        byte
}

func capture(t *testing.T, err error) chan sent {
	t.Helper()
	ch := make(chan sent, 4)
	prev := notifier
	notifier = func(title, message string, urgency byte, timeoutMs int32) error {
		ch <- sent{title, message, urgency}
		return err
	}
	t.Cleanup(func() { notifier = prev })
	return ch
}

func TestShowIsAsynchronous(t *testing.T) {
	ch := capture(t, nil)
	Show("Screenshot", "Copied to clipboard")
	select {
	case got := <-ch:
		if got.message != "Copied to clipboard" || got.urgency != urgencyNormal {
			t.Fatalf("unexpected notification %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestShowErrorIsCritical(t *testing.T) {
	ch := capture(t, errors.New("no bus"))
	ShowError("Capture failed", "permission denied")
	got := <-ch
	if got.urgency != urgencyCritical {
		t.Fatalf("urgency = %d", got.urgency)
	}
}

func TestShowBlockingErrorReturnsAfterDelivery(t *testing.T) {
	ch := capture(t, errors.New("no bus"))
	ShowBlockingError("Startup", "no capture backend")
	select {
	case <-ch:
	default:
		t.Fatal("blocking error should be delivered before returning")
	}
}
