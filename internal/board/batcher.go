package board

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultFrameInterval approximates one display refresh.
const DefaultFrameInterval = 16 * time.Millisecond

// Batcher coalesces high-frequency updaters into at most one applied update
// per tick. It holds a single pending slot: Schedule overwrites whatever is
// waiting, so only the most recent updater survives to the next Flush.
// Updates are never reordered.
type Batcher struct {
	mu        sync.Mutex
	pending   Updater
	coalesced int
	apply     func(Updater) error
	logger    *slog.Logger
}

// NewBatcher returns a batcher that hands flushed updaters to apply.
func NewBatcher(apply func(Updater) error) *Batcher {
	return &Batcher{apply: apply, logger: slog.Default()}
}

// Schedule makes fn the pending updater, replacing any earlier one.
func (b *Batcher) Schedule(fn Updater) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending != nil {
		b.coalesced++
	}
	b.pending = fn
}

// Pending reports whether an updater is waiting.
func (b *Batcher) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending != nil
}

// Discard drops the pending updater without applying it.
func (b *Batcher) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
}

// Coalesced returns how many scheduled updaters were overwritten before
// being applied.
func (b *Batcher) Coalesced() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.coalesced
}

// Flush applies the pending updater, if any. It reports whether one ran.
func (b *Batcher) Flush() (bool, error) {
	b.mu.Lock()
	fn := b.pending
	b.pending = nil
	b.mu.Unlock()

	if fn == nil {
		return false, nil
	}
	return true, b.apply(fn)
}

// Run flushes once per interval until ctx is done. An updater still pending
// at that point is left for the caller to Flush or Discard.
func (b *Batcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := b.Flush(); err != nil {
				b.logger.Warn("apply batched update", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
