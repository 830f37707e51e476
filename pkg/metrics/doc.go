/*
Package metrics provides Prometheus metrics collection and exposition for
the store.

The metrics package defines and registers metrics using the Prometheus
client library, providing observability into document counts, change-log
growth, Raft replication lag, and JMAP method/query latency. Metrics are
exposed via an HTTP endpoint for scraping by Prometheus servers.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Categories               │          │
	│  │                                              │          │
	│  │  Storage: document/blob counts, change log  │          │
	│  │  Raft: leader status, term, commit index    │          │
	│  │  Method: request count, duration by method  │          │
	│  │  Query: filter+sort+page latency             │          │
	│  │  Pipeline: batch duration, batch size        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Collector polls a store.Engine and a set of raft.Node shards on a fixed
tick, writing document/change-log/Raft gauges. Everything else (method,
query, pipeline timing) is observed inline by its own layer via Timer,
since those values only exist at the moment the call completes.

Gauge Metrics:
  - Instant value that can go up or down
  - Examples: documents total, change-log length, Raft commit index

Counter Metrics:
  - Monotonically increasing value
  - Examples: method requests total

Histogram Metrics:
  - Distribution of observed values, bucketed for latency percentiles
  - Examples: method duration, query latency, write batch duration

Timer Helper:
  - Convenience wrapper: start a timer, observe its duration to a
    histogram (optionally with label values) when the operation completes

# Metrics Catalog

Storage:

jmapcore_documents_total{collection}: live document count, by collection.
jmapcore_change_log_length{collection}: current change-log length.
jmapcore_blobs_total: distinct blob payloads stored.

Raft (labeled by shard):

jmapcore_raft_is_leader{shard}: 1 if this node leads shard, else 0.
jmapcore_raft_peers_total{shard,health=total|healthy}: peer counts.
jmapcore_raft_term{shard}: current term.
jmapcore_raft_commit_index{shard}: current commit index.
jmapcore_raft_commit_lag_seconds{shard}: propose-to-commit latency.

Method surface:

jmapcore_method_requests_total{method,outcome}: Foo/get|set|query|... calls.
jmapcore_method_duration_seconds{method}: per-method call latency.

Query engine:

jmapcore_query_latency_seconds{collection}: filter+sort+page time.

Write pipeline:

jmapcore_write_batch_duration_seconds: time to apply one WriteBatch.
jmapcore_write_batch_documents: documents touched per batch.

Full-text index:

jmapcore_fts_index_duration_seconds: time to tokenize+index one field.

# Usage

Register a Collector once at startup:

	c := metrics.NewCollector(engine, watched, shards)
	c.Start()
	defer c.Stop()

Expose the endpoint:

	http.Handle("/metrics", metrics.Handler())

Time an operation inline:

	t := metrics.NewTimer()
	defer t.ObserveDurationVec(metrics.MethodDuration, "Mailbox/get")
*/
package metrics
