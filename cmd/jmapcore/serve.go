package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmapstore/core/pkg/alloc"
	"github.com/jmapstore/core/pkg/blobstore"
	"github.com/jmapstore/core/pkg/changelog"
	"github.com/jmapstore/core/pkg/config"
	"github.com/jmapstore/core/pkg/events"
	"github.com/jmapstore/core/pkg/log"
	"github.com/jmapstore/core/pkg/metrics"
	"github.com/jmapstore/core/pkg/pipeline"
	"github.com/jmapstore/core/pkg/raft"
	"github.com/jmapstore/core/pkg/raftapply"
	"github.com/jmapstore/core/pkg/rafttransport"
	"github.com/jmapstore/core/pkg/security"
	"github.com/jmapstore/core/pkg/store"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/credentials"
)

// peerTLSConfig builds the mTLS config every Raft peer connection uses:
// present cert as this node's identity, and require/verify the remote
// peer's certificate against ca's root.
func peerTLSConfig(cert *tls.Certificate, ca *security.CertAuthority) *tls.Config {
	pool := x509.NewCertPool()
	if root, err := x509.ParseCertificate(ca.GetRootCACert()); err == nil {
		pool.AddCert(root)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    pool,
		RootCAs:      pool,
	}
}

// allocCacheSize bounds the in-process free-ID cache independently of the
// change-log retention cap in Housekeeping.MaxChangelogEntries: one is a
// per-process LRU hint, the other an on-disk retention policy.
const allocCacheSize = 4096

func newServeCommand() *cobra.Command {
	var clusterID string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run this node: store, write pipeline, Raft shard, metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			initLogging()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, clusterID)
		},
	}
	cmd.Flags().StringVar(&clusterID, "cluster-id", "", "cluster ID used to derive the shared encryption key (required on first boot)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, clusterID string) error {
	log.Logger.Info().Str("data_dir", cfg.DataDir).Str("bind_addr", cfg.BindAddr).Msg("jmapcore: starting")

	engine, err := store.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer engine.Close()

	changeLog := changelog.New()
	blobs := blobstore.New(engine)
	// allocator is constructed here so a future JMAP request-handling
	// layer has one ready per node; this command does not yet expose an
	// HTTP method-dispatch surface to drive it.
	allocator, err := alloc.New(engine, allocCacheSize)
	if err != nil {
		return fmt.Errorf("create allocator: %w", err)
	}
	_ = allocator

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	applier, assigner := raftapply.New()
	pl := pipeline.New(engine, changeLog, assigner, blobs)
	applier.Bind(pl)

	node, creds, err := bootstrapRaftNode(cfg, clusterID, applier)
	if err != nil {
		return err
	}

	var shards []*raft.Node
	if node != nil {
		shards = []*raft.Node{node}
	}
	collector := metrics.NewCollector(engine, nil, shards)
	collector.Start()
	defer collector.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger.Error().Err(err).Msg("jmapcore: metrics server stopped")
		}
	}()
	defer metricsSrv.Close()

	var rpcServer *rafttransport.Server
	if node != nil && creds != nil {
		lis, err := net.Listen("tcp", cfg.BindAddr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.BindAddr, err)
		}
		rpcServer = rafttransport.NewServer(node, creds)
		go func() {
			if err := rpcServer.Serve(lis); err != nil {
				log.Logger.Error().Err(err).Msg("jmapcore: raft transport server stopped")
			}
		}()

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go node.Run(runCtx)
	}

	log.Logger.Info().
		Str("schedule_purge_accounts", cfg.Housekeeping.PurgeAccounts).
		Str("schedule_purge_blobs", cfg.Housekeeping.PurgeBlobs).
		Str("schedule_snapshot_log", cfg.Housekeeping.SnapshotLog).
		Str("schedule_compact_db", cfg.Housekeeping.CompactDB).
		Int("max_changelog_entries", cfg.Housekeeping.MaxChangelogEntries).
		Msg("jmapcore: housekeeping schedule configured (execution delegated to an external scheduler)")

	waitForShutdown()
	if rpcServer != nil {
		rpcServer.Stop()
	}
	log.Logger.Info().Msg("jmapcore: shut down")
	return nil
}

// bootstrapRaftNode constructs a raft.Node and its mTLS transport
// credentials when cfg names peers, or returns a nil Node for a
// single-node deployment where pipeline writes are assigned IDs locally
// instead of through Raft consensus.
func bootstrapRaftNode(cfg *config.Config, clusterID string, applier *raftapply.Applier) (*raft.Node, credentials.TransportCredentials, error) {
	if len(cfg.Peers) == 0 {
		log.Logger.Info().Msg("jmapcore: no peers configured, running single-node")
		return nil, nil, nil
	}
	if clusterID == "" {
		return nil, nil, fmt.Errorf("--cluster-id is required when peers are configured")
	}

	key := security.DeriveKeyFromClusterID(clusterID)
	if err := security.SetClusterEncryptionKey(key); err != nil {
		return nil, nil, fmt.Errorf("set cluster encryption key: %w", err)
	}

	caStore, err := security.OpenCAStore(cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open CA store: %w", err)
	}
	ca := security.NewCertAuthority(caStore)
	if err := ca.LoadFromStore(); err != nil {
		if err := ca.Initialize(); err != nil {
			return nil, nil, fmt.Errorf("initialize CA: %w", err)
		}
		if err := ca.SaveToStore(); err != nil {
			return nil, nil, fmt.Errorf("persist CA: %w", err)
		}
	}

	shard := fmt.Sprintf("shard-%d", cfg.ShardID)
	peerID := fmt.Sprintf("%d", cfg.PeerID)
	host, _, _ := net.SplitHostPort(cfg.BindAddr)
	cert, err := ca.IssuePeerCertificate(peerID, shard, []string{host}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("issue peer certificate: %w", err)
	}
	creds := credentials.NewTLS(peerTLSConfig(cert, ca))

	storage, err := raft.OpenStorage(cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open raft storage: %w", err)
	}
	transport := rafttransport.NewClient(raft.PeerID(cfg.PeerID), creds)
	node := raft.NewNode(raft.PeerID(cfg.PeerID), cfg.ShardID, cfg.BindAddr, storage, applier, transport)
	for _, p := range cfg.Peers {
		node.AddPeer(&raft.Peer{ID: raft.PeerID(p.ID), ShardID: p.Shard, Address: p.Address})
	}
	return node, creds, nil
}

func waitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
