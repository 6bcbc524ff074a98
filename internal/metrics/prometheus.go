package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus reports engine events as Prometheus collectors registered on
// an explicit registerer, so several engines (or tests) never share state.
type Prometheus struct {
	commits        *prometheus.CounterVec
	trimmed        prometheus.Counter
	promotions     prometheus.Counter
	replayed       prometheus.Histogram
	orderFallbacks prometheus.Counter
	indexBuilds    prometheus.Counter
	indexElements  prometheus.Histogram
	queries        prometheus.Counter
	candidates     prometheus.Histogram
	cacheLookups   *prometheus.CounterVec
}

// NewPrometheus creates the collectors and registers them on reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whiteboard",
			Subsystem: "history",
			Name:      "commits_total",
			Help:      "History commits by stored entry kind.",
		}, []string{"kind"}),
		trimmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "whiteboard",
			Subsystem: "history",
			Name:      "trimmed_entries_total",
			Help:      "Entries dropped by retention.",
		}),
		promotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "whiteboard",
			Subsystem: "history",
			Name:      "snapshot_promotions_total",
			Help:      "Patches promoted to snapshots at the trim boundary.",
		}),
		replayed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "whiteboard",
			Subsystem: "history",
			Name:      "materialize_replayed_patches",
			Help:      "Patches replayed per materialization.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 200},
		}),
		orderFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "whiteboard",
			Subsystem: "history",
			Name:      "order_fallback_elements_total",
			Help:      "Elements placed by the order fallback while applying a patch.",
		}),
		indexBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "whiteboard",
			Subsystem: "spatial",
			Name:      "index_builds_total",
			Help:      "Grid index builds.",
		}),
		indexElements: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "whiteboard",
			Subsystem: "spatial",
			Name:      "index_elements",
			Help:      "Elements per built index.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		queries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "whiteboard",
			Subsystem: "spatial",
			Name:      "queries_total",
			Help:      "Rect and point queries served.",
		}),
		candidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "whiteboard",
			Subsystem: "spatial",
			Name:      "query_candidates",
			Help:      "Candidates examined per query.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whiteboard",
			Subsystem: "spatial",
			Name:      "cache_lookups_total",
			Help:      "Index cache lookups by result.",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{
		p.commits, p.trimmed, p.promotions, p.replayed, p.orderFallbacks,
		p.indexBuilds, p.indexElements, p.queries, p.candidates, p.cacheLookups,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) HistoryCommitted(kind string) {
	p.commits.WithLabelValues(kind).Inc()
}

func (p *Prometheus) HistoryTrimmed(dropped int, promoted bool) {
	p.trimmed.Add(float64(dropped))
	if promoted {
		p.promotions.Inc()
	}
}

func (p *Prometheus) Materialized(replayed int) {
	p.replayed.Observe(float64(replayed))
}

func (p *Prometheus) OrderFallback(stragglers int) {
	p.orderFallbacks.Add(float64(stragglers))
}

func (p *Prometheus) IndexBuilt(elements, cells int) {
	p.indexBuilds.Inc()
	p.indexElements.Observe(float64(elements))
}

func (p *Prometheus) IndexQueried(candidates, matches int) {
	p.queries.Inc()
	p.candidates.Observe(float64(candidates))
}

func (p *Prometheus) IndexCacheLookup(hit bool) {
	if hit {
		p.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	p.cacheLookups.WithLabelValues("miss").Inc()
}
