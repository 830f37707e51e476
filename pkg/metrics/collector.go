package metrics

import (
	"strconv"
	"time"

	"github.com/jmapstore/core/pkg/bitmap"
	"github.com/jmapstore/core/pkg/changelog"
	"github.com/jmapstore/core/pkg/raft"
	"github.com/jmapstore/core/pkg/store"
	"github.com/jmapstore/core/pkg/types"
)

// Watched names one (account, collection) pair a Collector samples on
// every tick. The set of accounts/collections worth polling is operator
// knowledge (which accounts are actually provisioned), so it's supplied
// rather than discovered.
type Watched struct {
	Account    types.AccountID
	Collection types.Collection
}

// Collector periodically samples document counts, change-log length, and
// Raft replication state into the package's Prometheus gauges.
type Collector struct {
	engine  store.Engine
	log     *changelog.Log
	watched []Watched
	shards  []*raft.Node
	stopCh  chan struct{}
}

// NewCollector creates a new metrics collector over engine, sampling every
// pair in watched and every shard in shards.
func NewCollector(engine store.Engine, watched []Watched, shards []*raft.Node) *Collector {
	return &Collector{
		engine:  engine,
		log:     changelog.New(),
		watched: watched,
		shards:  shards,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15-second tick.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectStorageMetrics()
	c.collectRaftMetrics()
}

func (c *Collector) collectStorageMetrics() {
	_ = c.engine.View(func(r store.Reader) error {
		for _, w := range c.watched {
			label := w.Collection.String()

			live, err := bitmap.Live(r, w.Account, w.Collection)
			if err == nil {
				DocumentsTotal.WithLabelValues(label).Set(float64(live.GetCardinality()))
			}

			next, err := c.log.NextChangeID(r, w.Account, w.Collection)
			if err == nil {
				length := float64(0)
				if next > 1 {
					length = float64(next - 1)
				}
				ChangeLogLength.WithLabelValues(label).Set(length)
			}
		}
		return nil
	})
}

func (c *Collector) collectRaftMetrics() {
	for _, n := range c.shards {
		stats := n.Stats()
		shard := strconv.FormatUint(uint64(stats.ShardID), 10)

		if stats.IsLeader {
			RaftLeader.WithLabelValues(shard).Set(1)
		} else {
			RaftLeader.WithLabelValues(shard).Set(0)
		}
		RaftPeers.WithLabelValues(shard, "total").Set(float64(stats.PeersTotal))
		RaftPeers.WithLabelValues(shard, "healthy").Set(float64(stats.PeersHealthy))
		RaftTerm.WithLabelValues(shard).Set(float64(stats.Term))
		RaftCommitIndex.WithLabelValues(shard).Set(float64(stats.CommitIndex))
	}
}
