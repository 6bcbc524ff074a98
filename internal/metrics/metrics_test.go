package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersLifecycle(t *testing.T) {
	var c Counters

	c.HistoryCommitted(KindPatch)
	c.HistoryCommitted(KindPatch)
	c.HistoryCommitted(KindSnapshot)
	c.HistoryTrimmed(3, true)
	c.Materialized(4)
	c.IndexCacheLookup(true)
	c.IndexCacheLookup(false)
	c.IndexQueried(10, 2)

	s := c.Snapshot()
	assert.Equal(t, 2, s.Commits[KindPatch])
	assert.Equal(t, 1, s.Commits[KindSnapshot])
	assert.Equal(t, 3, s.Dropped)
	assert.Equal(t, 1, s.Promotions)
	assert.Equal(t, 4, s.Replayed)
	assert.Equal(t, 1, s.CacheHits)
	assert.Equal(t, 1, s.CacheMisses)
	assert.Equal(t, 10, s.Candidates)

	// Snapshot is a copy.
	s.Commits[KindPatch] = 100
	assert.Equal(t, 2, c.Snapshot().Commits[KindPatch])

	c.Reset()
	s = c.Snapshot()
	assert.Empty(t, s.Commits)
	assert.Zero(t, s.Dropped)
}

func TestOrNop(t *testing.T) {
	assert.Equal(t, Nop{}, OrNop(nil))
	c := &Counters{}
	assert.Same(t, c, OrNop(c))
}

func TestPrometheusSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg)
	require.NoError(t, err)

	p.HistoryCommitted(KindPatch)
	p.HistoryCommitted(KindSnapshot)
	p.HistoryCommitted(KindPatch)
	p.HistoryTrimmed(2, true)
	p.IndexCacheLookup(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.commits.WithLabelValues(KindPatch)))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.trimmed))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.promotions))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.cacheLookups.WithLabelValues("miss")))

	// A second sink on the same registry collides.
	_, err = NewPrometheus(reg)
	assert.Error(t, err)

	// A fresh registry is independent.
	_, err = NewPrometheus(prometheus.NewRegistry())
	assert.NoError(t, err)
}
