// Package config loads jmapcore's on-disk YAML configuration and the
// housekeeping schedule strings spec.md §6 requires every deployment to
// expose, following the teacher's cobra-flags-plus-struct style: this
// package owns the struct and its validation, cmd/jmapcore's cobra
// commands bind flags directly into it and call Load to layer a file
// underneath them.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// PeerConfig is one other member of this node's Raft shard.
type PeerConfig struct {
	ID      uint64 `yaml:"id"`
	Shard   uint32 `yaml:"shard"`
	Address string `yaml:"address"`
}

// Housekeeping holds the four cron-like schedule strings spec.md §6
// requires ("MM HH DOW": minute, hour, `*` or 1-7 for weekday) plus the
// change-log retention cap. The jobs themselves are the housekeeping
// scheduler's responsibility — out of scope per spec.md §1 — this package
// only parses and validates the strings an operator configures.
type Housekeeping struct {
	PurgeAccounts       string `yaml:"schedule_purge_accounts"`
	PurgeBlobs          string `yaml:"schedule_purge_blobs"`
	SnapshotLog         string `yaml:"schedule_snapshot_log"`
	CompactDB           string `yaml:"schedule_compact_db"`
	MaxChangelogEntries int    `yaml:"max_changelog_entries"`
}

// Config is jmapcore's full runtime configuration.
type Config struct {
	DataDir string `yaml:"data_dir"`

	BindAddr string `yaml:"bind_addr"`

	PeerID  uint64       `yaml:"peer_id"`
	ShardID uint32       `yaml:"shard_id"`
	Peers   []PeerConfig `yaml:"peers"`

	ClusterSize int `yaml:"cluster_size"`

	MetricsAddr string `yaml:"metrics_addr"`

	Housekeeping Housekeeping `yaml:"housekeeping"`
}

// Default returns the configuration a fresh single-node deployment starts
// from, before any file or flag overrides it.
func Default() *Config {
	return &Config{
		DataDir:     "./data",
		BindAddr:    "127.0.0.1:7420",
		PeerID:      1,
		ShardID:     0,
		ClusterSize: 1,
		MetricsAddr: "127.0.0.1:9420",
		Housekeeping: Housekeeping{
			PurgeAccounts:       "0 3 *",
			PurgeBlobs:          "30 3 *",
			SnapshotLog:         "0 4 *",
			CompactDB:           "0 5 7",
			MaxChangelogEntries: 100000,
		},
	}
}

// Load reads a YAML file at path into cfg, leaving fields the file omits
// at whatever cfg already held (so callers load Default(), then Load, then
// apply flag overrides on top).
func Load(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Validate checks every field Load or flag parsing can't catch on its own:
// the four housekeeping schedules must be well-formed cron-like strings,
// and the change-log cap must be positive.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir must not be empty")
	}
	if c.BindAddr == "" {
		return fmt.Errorf("config: bind_addr must not be empty")
	}
	if c.ClusterSize < 1 {
		return fmt.Errorf("config: cluster_size must be >= 1, got %d", c.ClusterSize)
	}
	for name, raw := range map[string]string{
		"schedule_purge_accounts": c.Housekeeping.PurgeAccounts,
		"schedule_purge_blobs":    c.Housekeeping.PurgeBlobs,
		"schedule_snapshot_log":   c.Housekeeping.SnapshotLog,
		"schedule_compact_db":     c.Housekeeping.CompactDB,
	} {
		if _, err := ParseSchedule(raw); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	if c.Housekeeping.MaxChangelogEntries <= 0 {
		return fmt.Errorf("config: max_changelog_entries must be > 0, got %d", c.Housekeeping.MaxChangelogEntries)
	}
	return nil
}

// Schedule is a parsed "MM HH DOW" housekeeping schedule string: a minute
// (0-59), an hour (0-23), and a weekday that is either "*" (every day) or
// 1-7 (Monday=1 .. Sunday=7, ISO 8601 numbering).
type Schedule struct {
	Minute  int
	Hour    int
	Weekday int // 0 means "*" (every day)
}

// ParseSchedule parses a spec.md §6 schedule string of the form "MM HH
// DOW", e.g. "30 3 *" (03:30 every day) or "0 5 7" (05:00 on Sundays).
func ParseSchedule(s string) (Schedule, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return Schedule{}, fmt.Errorf("expected \"MM HH DOW\", got %q", s)
	}

	minute, err := strconv.Atoi(fields[0])
	if err != nil || minute < 0 || minute > 59 {
		return Schedule{}, fmt.Errorf("invalid minute %q: must be 0-59", fields[0])
	}

	hour, err := strconv.Atoi(fields[1])
	if err != nil || hour < 0 || hour > 23 {
		return Schedule{}, fmt.Errorf("invalid hour %q: must be 0-23", fields[1])
	}

	var weekday int
	if fields[2] == "*" {
		weekday = 0
	} else {
		weekday, err = strconv.Atoi(fields[2])
		if err != nil || weekday < 1 || weekday > 7 {
			return Schedule{}, fmt.Errorf("invalid weekday %q: must be \"*\" or 1-7", fields[2])
		}
	}

	return Schedule{Minute: minute, Hour: hour, Weekday: weekday}, nil
}

// String renders the schedule back to its "MM HH DOW" form.
func (s Schedule) String() string {
	day := "*"
	if s.Weekday != 0 {
		day = strconv.Itoa(s.Weekday)
	}
	return fmt.Sprintf("%d %d %s", s.Minute, s.Hour, day)
}
