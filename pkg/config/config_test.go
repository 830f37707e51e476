package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v, want nil", err)
	}
}

func TestParseScheduleValid(t *testing.T) {
	tests := []struct {
		in   string
		want Schedule
	}{
		{"0 3 *", Schedule{Minute: 0, Hour: 3, Weekday: 0}},
		{"30 3 *", Schedule{Minute: 30, Hour: 3, Weekday: 0}},
		{"0 5 7", Schedule{Minute: 0, Hour: 5, Weekday: 7}},
		{"59 23 1", Schedule{Minute: 59, Hour: 23, Weekday: 1}},
	}
	for _, tt := range tests {
		got, err := ParseSchedule(tt.in)
		if err != nil {
			t.Fatalf("ParseSchedule(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseSchedule(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
		if got.String() != tt.in {
			t.Fatalf("Schedule.String() = %q, want %q", got.String(), tt.in)
		}
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	tests := []string{
		"",
		"3 *",
		"60 3 *",
		"0 24 *",
		"0 3 8",
		"0 3 0",
		"a b c",
	}
	for _, in := range tests {
		if _, err := ParseSchedule(in); err == nil {
			t.Fatalf("ParseSchedule(%q) expected error, got nil", in)
		}
	}
}

func TestValidateRejectsBadSchedule(t *testing.T) {
	cfg := Default()
	cfg.Housekeeping.PurgeAccounts = "not a schedule"
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() expected error for malformed schedule, got nil")
	}
}

func TestValidateRejectsNonPositiveMaxChangelogEntries(t *testing.T) {
	cfg := Default()
	cfg.Housekeeping.MaxChangelogEntries = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() expected error for max_changelog_entries=0, got nil")
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jmapcore.yaml")
	yaml := "data_dir: /var/lib/jmapcore\ncluster_size: 3\nhousekeeping:\n  schedule_compact_db: \"0 2 7\"\n  max_changelog_entries: 5000\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Default()
	if err := Load(path, cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DataDir != "/var/lib/jmapcore" {
		t.Errorf("DataDir = %q, want /var/lib/jmapcore", cfg.DataDir)
	}
	if cfg.ClusterSize != 3 {
		t.Errorf("ClusterSize = %d, want 3", cfg.ClusterSize)
	}
	if cfg.Housekeeping.CompactDB != "0 2 7" {
		t.Errorf("CompactDB = %q, want \"0 2 7\"", cfg.Housekeeping.CompactDB)
	}
	if cfg.Housekeeping.MaxChangelogEntries != 5000 {
		t.Errorf("MaxChangelogEntries = %d, want 5000", cfg.Housekeeping.MaxChangelogEntries)
	}
	// Fields the file omits keep their Default() value.
	if cfg.Housekeeping.PurgeAccounts != "0 3 *" {
		t.Errorf("PurgeAccounts = %q, want unchanged default \"0 3 *\"", cfg.Housekeeping.PurgeAccounts)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg := Default()
	if err := Load(filepath.Join(t.TempDir(), "missing.yaml"), cfg); err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}
