package notification

import (
	"log"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	appName       = "flint"
	notifyDest    = "org.freedesktop.Notifications"
	notifyPath    = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyMethod  = "org.freedesktop.Notifications.Notify"
	infoTimeoutMs = 4000
)

// Urgency hint values for org.freedesktop.Notifications.
const (
	urgencyNormal   byte = 1
	urgencyCritical byte = 2
)

// notifier delivers one message. Tests replace it.
var notifier = notifyDBus

var (
	replaceMu sync.Mutex
	lastID    uint32
)

// Show displays a transient status message, e.g. "Copied to clipboard".
func Show(title, message string) {
	// Run off the caller's goroutine; the event loop must not block on the bus.
	go func() {
		if err := notifier(title, message, urgencyNormal, infoTimeoutMs); err != nil {
			log.Printf("%s: %s", title, message)
			log.Printf("notification: desktop notification failed: %v", err)
		}
	}()
}

// ShowError displays a failure the user should act on.
func ShowError(title, message string) {
	go func() {
		if err := notifier(title, message, urgencyCritical, -1); err != nil {
			log.Printf("%s: %s", title, message)
			log.Printf("notification: desktop notification failed: %v", err)
		}
	}()
}

// ShowBlockingError reports a startup failure and returns once it has been
// handed to the notification service or logged.
func ShowBlockingError(title, message string) {
	log.Printf("%s: %s", title, message)
	if err := notifier(title, message, urgencyCritical, 0); err != nil {
		log.Printf("notification: desktop notification failed: %v", err)
	}
}

func notifyDBus(title, message string, urgency byte, timeoutMs int32) error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return err
	}
	defer conn.Close()

	// Consecutive status messages replace each other instead of stacking.
	replaceMu.Lock()
	replaces := lastID
	replaceMu.Unlock()

	hints := map[string]dbus.Variant{"urgency": dbus.MakeVariant(urgency)}
	var id uint32
	err = conn.Object(notifyDest, notifyPath).Call(notifyMethod, 0,
		appName, replaces, "", title, message, []string{}, hints, timeoutMs).Store(&id)
	if err != nil {
		return err
	}
	replaceMu.Lock()
	lastID = id
	replaceMu.Unlock()
	return nil
}
