// Package metrics defines the instrumentation sink that the history store,
// spatial index and boards report to. Sinks are injected; nothing in the
// engine keeps package-level counters.
package metrics

import "sync"

// Entry kinds reported by HistoryCommitted.
const (
	KindSnapshot = "snapshot"
	KindPatch    = "patch"
	KindNoop     = "noop"
)

// Sink receives engine events. Implementations must be safe for concurrent use.
type Sink interface {
	HistoryCommitted(kind string)
	HistoryTrimmed(dropped int, promoted bool)
	Materialized(replayed int)
	OrderFallback(stragglers int)
	IndexBuilt(elements, cells int)
	IndexQueried(candidates, matches int)
	IndexCacheLookup(hit bool)
}

// Nop discards every event.
type Nop struct{}

func (Nop) HistoryCommitted(string) {}
func (Nop) HistoryTrimmed(int, bool) {}
func (Nop) Materialized(int) {}
func (Nop) OrderFallback(int) {}
func (Nop) IndexBuilt(int, int) {}
func (Nop) IndexQueried(int, int) {}
func (Nop) IndexCacheLookup(bool) {}

// OrNop returns s, or Nop when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return Nop{}
	}
	return s
}

// Counters is an in-memory sink. The zero value is ready to use; Reset
// returns it to that state.
type Counters struct {
	mu sync.Mutex
	c  Snapshot
}

// Snapshot is a point-in-time copy of Counters.
type Snapshot struct {
	Commits        map[string]int
	Trims          int
	Dropped        int
	Promotions     int
	Materializes   int
	Replayed       int
	OrderFallbacks int
	IndexBuilds    int
	IndexQueries   int
	Candidates     int
	Matches        int
	CacheHits      int
	CacheMisses    int
}

func (c *Counters) HistoryCommitted(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.c.Commits == nil {
		c.c.Commits = make(map[string]int)
	}
	c.c.Commits[kind]++
}

func (c *Counters) HistoryTrimmed(dropped int, promoted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.c.Trims++
	c.c.Dropped += dropped
	if promoted {
		c.c.Promotions++
	}
}

func (c *Counters) Materialized(replayed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.c.Materializes++
	c.c.Replayed += replayed
}

func (c *Counters) OrderFallback(stragglers int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.c.OrderFallbacks += stragglers
}

func (c *Counters) IndexBuilt(elements, cells int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.c.IndexBuilds++
}

func (c *Counters) IndexQueried(candidates, matches int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.c.IndexQueries++
	c.c.Candidates += candidates
	c.c.Matches += matches
}

func (c *Counters) IndexCacheLookup(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.c.CacheHits++
	} else {
		c.c.CacheMisses++
	}
}

// Snapshot returns a copy of the current counts.
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.c
	out.Commits = make(map[string]int, len(c.c.Commits))
	for k, v := range c.c.Commits {
		out.Commits[k] = v
	}
	return out
}

// Reset zeroes every counter.
func (c *Counters) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.c = Snapshot{}
}
