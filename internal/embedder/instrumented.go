package embedder

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/pdfqa/internal/rag"
)

// Metrics holds the Prometheus collectors for embedding calls.
type Metrics struct {
	// requestsTotal counts Embed calls partitioned by outcome: "ok" or "error".
	requestsTotal *prometheus.CounterVec

	// durationSeconds records Embed latency including retries.
	durationSeconds prometheus.Histogram

	// textsTotal counts texts sent for embedding.
	textsTotal prometheus.Counter
}

// NewMetrics registers the embedding collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfqa",
			Subsystem: "embedding",
			Name:      "requests_total",
			Help:      "Total number of embedding calls, partitioned by outcome.",
		}, []string{"outcome"}),

		durationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pdfqa",
			Subsystem: "embedding",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of embedding calls including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		textsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pdfqa",
			Subsystem: "embedding",
			Name:      "texts_total",
			Help:      "Total number of texts sent to the embedding service.",
		}),
	}
}

type instrumentedEmbedder struct {
	next rag.Embedder
	m    *Metrics
}

// Instrument wraps next so that every call is recorded in m. A nil m
// returns next unchanged.
func Instrument(next rag.Embedder, m *Metrics) rag.Embedder {
	if m == nil {
		return next
	}
	return &instrumentedEmbedder{next: next, m: m}
}

func (i *instrumentedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vecs, err := i.next.Embed(ctx, texts)
	i.m.durationSeconds.Observe(time.Since(start).Seconds())
	i.m.textsTotal.Add(float64(len(texts)))

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	i.m.requestsTotal.WithLabelValues(outcome).Inc()
	return vecs, err
}
