// Package keepalive keeps the host process responsive during long scans by
// pinging a liveness target on a fixed interval. Browsers and service
// workers throttle idle extensions; a periodic no-op request prevents that.
package keepalive

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the ping cadence during an active scan.
const DefaultInterval = 20 * time.Second

// PingFunc performs one liveness ping. Errors are logged, never fatal.
type PingFunc func(ctx context.Context) error

// Keeper runs the keep-alive loop. Start and Stop are idempotent; calling
// Start twice does not spawn a second loop, and Stop on a stopped Keeper is
// a no-op.
type Keeper struct {
	interval time.Duration
	ping     PingFunc
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Keeper.
type Option func(*Keeper)

// WithInterval sets the ping interval.
func WithInterval(d time.Duration) Option {
	return func(k *Keeper) {
		if d > 0 {
			k.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(k *Keeper) {
		if logger != nil {
			k.logger = logger
		}
	}
}

// New creates a Keeper that calls ping every interval while started.
func New(ping PingFunc, opts ...Option) *Keeper {
	k := &Keeper{
		interval: DefaultInterval,
		ping:     ping,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Start begins the keep-alive loop. Safe to call while already running.
func (k *Keeper) Start(ctx context.Context) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	k.cancel = cancel
	k.done = make(chan struct{})
	go k.loop(loopCtx, k.done)
	k.logger.DebugContext(ctx, "keep-alive started", "interval", k.interval)
}

// Stop halts the loop and waits for it to exit. Safe to call when stopped.
func (k *Keeper) Stop() {
	k.mu.Lock()
	cancel, done := k.cancel, k.done
	k.cancel, k.done = nil, nil
	k.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	k.logger.Debug("keep-alive stopped")
}

// Running reports whether the loop is active.
func (k *Keeper) Running() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.cancel != nil
}

func (k *Keeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if k.ping == nil {
				continue
			}
			if err := k.ping(ctx); err != nil && ctx.Err() == nil {
				k.logger.DebugContext(ctx, "keep-alive ping failed", "error", err)
			}
		}
	}
}
