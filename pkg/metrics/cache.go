package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics counts cache layer traffic by key namespace.
type CacheMetrics struct {
	hits          *prometheus.CounterVec
	misses        *prometheus.CounterVec
	invalidations *prometheus.CounterVec
}

func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	if reg == nil {
		return &CacheMetrics{}
	}
	hits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cache_hits_total",
		Help: "Cache reads served from a live entry.",
	}, []string{"namespace"})
	misses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cache_misses_total",
		Help: "Cache reads that found no live entry.",
	}, []string{"namespace"})
	invalidations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cache_invalidations_total",
		Help: "Explicit cache invalidations by key or prefix.",
	}, []string{"namespace", "kind"})
	reg.MustRegister(hits, misses, invalidations)
	return &CacheMetrics{hits: hits, misses: misses, invalidations: invalidations}
}

func (c *CacheMetrics) Hit(namespace string) {
	if c == nil || c.hits == nil {
		return
	}
	c.hits.WithLabelValues(normalizeLabel(namespace)).Inc()
}

func (c *CacheMetrics) Miss(namespace string) {
	if c == nil || c.misses == nil {
		return
	}
	c.misses.WithLabelValues(normalizeLabel(namespace)).Inc()
}

// Invalidated records an invalidation; kind is "key" or "prefix".
func (c *CacheMetrics) Invalidated(namespace, kind string) {
	if c == nil || c.invalidations == nil {
		return
	}
	c.invalidations.WithLabelValues(normalizeLabel(namespace), normalizeLabel(kind)).Inc()
}
