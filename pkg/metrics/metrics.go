package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Storage metrics
	DocumentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jmapcore_documents_total",
			Help: "Total number of live documents by collection",
		},
		[]string{"collection"},
	)

	ChangeLogLength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jmapcore_change_log_length",
			Help: "Current change-log length (next change id - 1) by collection",
		},
		[]string{"collection"},
	)

	BlobsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "jmapcore_blobs_total",
			Help: "Total number of distinct blob payloads stored",
		},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jmapcore_raft_is_leader",
			Help: "Whether this node is the Raft leader for a shard (1 = leader, 0 = follower)",
		},
		[]string{"shard"},
	)

	RaftPeers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jmapcore_raft_peers_total",
			Help: "Total and healthy Raft peers by shard and health",
		},
		[]string{"shard", "health"},
	)

	RaftTerm = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jmapcore_raft_term",
			Help: "Current Raft term by shard",
		},
		[]string{"shard"},
	)

	RaftCommitIndex = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jmapcore_raft_commit_index",
			Help: "Current Raft commit index by shard",
		},
		[]string{"shard"},
	)

	RaftCommitLag = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jmapcore_raft_commit_lag_seconds",
			Help:    "Time between a leader proposing an entry and it committing",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"shard"},
	)

	// JMAP method metrics
	MethodRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jmapcore_method_requests_total",
			Help: "Total number of JMAP method calls by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	MethodDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jmapcore_method_duration_seconds",
			Help:    "JMAP method call duration in seconds, by method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Query engine metrics
	QueryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jmapcore_query_latency_seconds",
			Help:    "Time taken to evaluate a query's filter, sort, and page, by collection",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	// Write pipeline metrics
	WriteBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jmapcore_write_batch_duration_seconds",
			Help:    "Time taken to apply a write pipeline batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	WriteBatchDocuments = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jmapcore_write_batch_documents",
			Help:    "Number of documents touched per write pipeline batch",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
		},
	)

	// Full-text index metrics
	IndexDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jmapcore_fts_index_duration_seconds",
			Help:    "Time taken to tokenize and index a field's text",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(DocumentsTotal)
	prometheus.MustRegister(ChangeLogLength)
	prometheus.MustRegister(BlobsTotal)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftPeers)
	prometheus.MustRegister(RaftTerm)
	prometheus.MustRegister(RaftCommitIndex)
	prometheus.MustRegister(RaftCommitLag)
	prometheus.MustRegister(MethodRequestsTotal)
	prometheus.MustRegister(MethodDuration)
	prometheus.MustRegister(QueryLatency)
	prometheus.MustRegister(WriteBatchDuration)
	prometheus.MustRegister(WriteBatchDocuments)
	prometheus.MustRegister(IndexDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
