package gameserver

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTickRate is the simulation tick frequency in Hz.
const DefaultTickRate = 30

// TickFunc is invoked once per fired tick with the tick number (1-based).
type TickFunc func(tick uint64)

// TickScheduler fires registered callbacks at a fixed frequency.
// With nothing registered each tick is a no-op.
//
// Invariant: callbacks are invoked sequentially on the scheduler goroutine,
// outside the scheduler lock, at most once per tick. Ticks missed while a
// callback runs are dropped rather than queued.
type TickScheduler struct {
	interval time.Duration
	mu       sync.Mutex
	handlers map[string]TickFunc
	ticks    atomic.Uint64
}

// NewTickScheduler returns a scheduler that fires hz times per second.
//
// Precondition: hz must be > 0.
func NewTickScheduler(hz int) *TickScheduler {
	if hz <= 0 {
		panic("gameserver.NewTickScheduler: hz must be > 0")
	}
	return &TickScheduler{
		interval: time.Second / time.Duration(hz),
		handlers: make(map[string]TickFunc),
	}
}

// Interval returns the duration between ticks.
func (t *TickScheduler) Interval() time.Duration {
	return t.interval
}

// Register installs fn under name. Replaces any existing callback.
func (t *TickScheduler) Register(name string, fn TickFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[name] = fn
}

// Unregister removes the callback registered under name.
func (t *TickScheduler) Unregister(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handlers, name)
}

// Ticks returns the number of ticks fired so far.
func (t *TickScheduler) Ticks() uint64 {
	return t.ticks.Load()
}

// Start begins the tick loop on its own goroutine. Runs until ctx is cancelled.
//
// Postcondition: every registered callback is invoked once per fired tick, in
// name order.
func (t *TickScheduler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.fire(t.ticks.Add(1))
			}
		}
	}()
}

func (t *TickScheduler) fire(tick uint64) {
	t.mu.Lock()
	names := make([]string, 0, len(t.handlers))
	for name := range t.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	callbacks := make([]TickFunc, len(names))
	for i, name := range names {
		callbacks[i] = t.handlers[name]
	}
	t.mu.Unlock()

	for _, fn := range callbacks {
		fn(tick)
	}
}
