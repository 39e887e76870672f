package systemd

import (
	"context"
	"testing"
	"time"
)

func TestNotifyOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	for name, fn := range map[string]func() (bool, error){
		"ready":    Ready,
		"stopping": Stopping,
		"status":   func() (bool, error) { return Status("ok") },
	} {
		sent, err := fn()
		if sent || err != nil {
			t.Fatalf("%s: sent=%v err=%v, want no-op", name, sent, err)
		}
	}
}

func TestWatchdogDisabledReturnsImmediately(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	t.Setenv("WATCHDOG_PID", "")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Watchdog(ctx, nil) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watchdog err = %v", err)
		}
	case <-ctx.Done():
		t.Fatal("Watchdog blocked without WATCHDOG_USEC")
	}
}
