// Command jmapcore runs one node of a jmapcore cluster: the document
// store, write pipeline, and (once peers are configured) the Raft shard
// that replicates it, plus the housekeeping schedule surface spec.md §6
// requires every deployment to expose.
//
// Mirrors the teacher's cobra root-command/persistent-flags style (the
// former cmd/warren/main.go's clusterCmd/managerCmd split), replacing the
// orchestrator's cluster/worker/service vocabulary with jmapcore's own:
// serve runs a node, raft bootstrap/join/status manage shard membership.
package main

import (
	"fmt"
	"os"

	"github.com/jmapstore/core/pkg/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	dataDir    string
	bindAddr   string
	jsonLogs   bool
)

func main() {
	root := &cobra.Command{
		Use:          "jmapcore",
		Short:        "jmapcore runs a JMAP mail-store node",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override config data_dir")
	root.PersistentFlags().StringVar(&bindAddr, "bind-addr", "", "override config bind_addr")
	root.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit structured JSON logs instead of console output")

	root.AddCommand(newServeCommand())
	root.AddCommand(newRaftCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initLogging() {
	level := log.InfoLevel
	if os.Getenv("JMAPCORE_DEBUG") != "" {
		level = log.DebugLevel
	}
	log.Init(log.Config{Level: level, JSONOutput: jsonLogs, Output: os.Stderr})
}
