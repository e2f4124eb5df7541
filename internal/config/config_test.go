package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Store.Timeout != 5*time.Second {
		t.Fatalf("store timeout = %s", cfg.Store.Timeout)
	}
	if cfg.Team.Supervisor != "ceo" || len(cfg.Team.Roster) != 5 {
		t.Fatalf("unexpected team %+v", cfg.Team)
	}
	if !cfg.IsSupervisor("ceo") || cfg.IsSupervisor("qa_claude") || cfg.IsSupervisor("") {
		t.Fatalf("unexpected supervisor check")
	}
}

func TestFromYAMLKeepsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("store:\n  backend: sqlite\nreports:\n  high_priority: 5\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Store.Backend != BackendSQLite || cfg.Reports.HighPriority != 5 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Polling.Interval != 10*time.Second || cfg.Reports.Hour != 18 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"backend":    "store:\n  backend: s3\n",
		"roster dup": "team:\n  roster: [a, a]\n",
		"threshold":  "reports:\n  high_priority: 9\n",
		"timezone":   "reports:\n  timezone: Mars/Olympus\n",
		"supervisor": "team:\n  supervisor: \"\"\n",
	}
	for name, raw := range cases {
		if _, err := FromYAML([]byte(raw)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if cfg.Store.Backend != BackendFS {
		t.Fatalf("expected default backend")
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected error for missing config")
	}
	if err := os.WriteFile(filepath.Join(dir, "huddle.yml"), []byte("polling:\n  interval: 2s\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Polling.Interval != 2*time.Second {
		t.Fatalf("interval = %s", cfg.Polling.Interval)
	}
}
