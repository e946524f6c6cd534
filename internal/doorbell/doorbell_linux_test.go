//go:build linux

package doorbell

import (
	"testing"
	"time"
)

func TestSignalWakesWaiter(t *testing.T) {
	db, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer db.Close()

	done := make(chan error, 1)
	go func() {
		done <- db.Wait(5 * time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	if err := db.Signal(); err != nil {
		t.Fatalf("Signal failed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waiter was not woken")
	}
}

func TestWaitTimesOut(t *testing.T) {
	db, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer db.Close()

	start := time.Now()
	if err := db.Wait(50 * time.Millisecond); err != ErrTimedOut {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("Wait returned too early: %v", elapsed)
	}
}

func TestSignalBeforeWaitIsNotLost(t *testing.T) {
	db, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer db.Close()

	if err := db.Signal(); err != nil {
		t.Fatalf("Signal failed: %v", err)
	}
	if err := db.Wait(time.Second); err != nil {
		t.Fatalf("Wait should return immediately after prior Signal, got %v", err)
	}
}

func TestSignalBurstCollapsesToOneWake(t *testing.T) {
	db, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer db.Close()

	for i := 0; i < 100; i++ {
		if err := db.Signal(); err != nil {
			t.Fatalf("Signal %d failed: %v", i, err)
		}
	}
	if err := db.Wait(time.Second); err != nil {
		t.Fatalf("first Wait failed: %v", err)
	}
	// Counter was drained: the next wait sees no pending signal.
	if err := db.Wait(50 * time.Millisecond); err != ErrTimedOut {
		t.Fatalf("expected ErrTimedOut after drain, got %v", err)
	}
}

func TestImportedHandleSharesTheObject(t *testing.T) {
	db, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer db.Close()

	// Same process stand-in for an SCM_RIGHTS transfer: wrap a duplicate fd.
	imported, err := FromFd(dupFd(t, db.Fd()))
	if err != nil {
		t.Fatalf("FromFd failed: %v", err)
	}
	defer imported.Close()

	if err := imported.Signal(); err != nil {
		t.Fatalf("Signal on imported handle failed: %v", err)
	}
	if err := db.Wait(time.Second); err != nil {
		t.Fatalf("original handle missed signal from imported handle: %v", err)
	}
}

func TestWaitAfterCloseFails(t *testing.T) {
	db, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	db.Close()

	if err := db.Wait(time.Second); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := db.Signal(); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
