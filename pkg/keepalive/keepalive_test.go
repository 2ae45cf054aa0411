package keepalive

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPingsWhileRunning(t *testing.T) {
	var pings atomic.Int32
	k := New(func(context.Context) error {
		pings.Add(1)
		return nil
	}, WithInterval(10*time.Millisecond))

	k.Start(context.Background())
	defer k.Stop()

	deadline := time.After(2 * time.Second)
	for pings.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d pings observed", pings.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStartIdempotent(t *testing.T) {
	var pings atomic.Int32
	k := New(func(context.Context) error {
		pings.Add(1)
		return nil
	}, WithInterval(10*time.Millisecond))

	k.Start(context.Background())
	k.Start(context.Background()) // no second loop
	defer k.Stop()

	time.Sleep(105 * time.Millisecond)
	got := pings.Load()
	// One loop pings roughly every 10ms; two loops would double the count.
	if got > 15 {
		t.Errorf("ping count %d suggests more than one loop", got)
	}
	if !k.Running() {
		t.Error("Running() = false while started")
	}
}

func TestStopIdempotent(t *testing.T) {
	k := New(func(context.Context) error { return nil }, WithInterval(10*time.Millisecond))
	k.Start(context.Background())
	k.Stop()
	k.Stop() // second stop is a no-op
	if k.Running() {
		t.Error("Running() = true after Stop")
	}
}

func TestStopWithoutStart(t *testing.T) {
	k := New(nil)
	k.Stop() // must not panic or block
}

func TestStopHaltsPings(t *testing.T) {
	var pings atomic.Int32
	k := New(func(context.Context) error {
		pings.Add(1)
		return nil
	}, WithInterval(5*time.Millisecond))

	k.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	k.Stop()

	settled := pings.Load()
	time.Sleep(30 * time.Millisecond)
	if got := pings.Load(); got != settled {
		t.Errorf("pings continued after Stop: %d -> %d", settled, got)
	}
}
