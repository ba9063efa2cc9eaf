package bulkconsume

import "github.com/prometheus/client_golang/prometheus"

// dispatcherMetrics track chunk outcomes and sizes for the bulk consume
// route.
type dispatcherMetrics struct {
	chunksServed *prometheus.CounterVec
	chunkRecords prometheus.Histogram
}

func newDispatcherMetrics(reg prometheus.Registerer) *dispatcherMetrics {
	m := &dispatcherMetrics{
		chunksServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bulk_consume",
			Name:      "chunks_served_total",
			Help:      "Number of chunk responses served, by outcome.",
		}, []string{"outcome"}),
		chunkRecords: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bulk_consume",
			Name:      "chunk_records",
			Help:      "Number of records served per non-empty chunk.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.chunksServed, m.chunkRecords)
	}
	return m
}
