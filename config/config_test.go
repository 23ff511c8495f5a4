package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
providers:
  - id: kie
    base_url: https://api.example.com
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	g := cfg.Generation
	if g.LiveMode {
		t.Errorf("live mode must default to off")
	}
	if g.PollConcurrency != 4 {
		t.Errorf("poll concurrency = %d, want 4", g.PollConcurrency)
	}
	if g.MaxJobRuntime() != 120*time.Second {
		t.Errorf("max runtime = %v", g.MaxJobRuntime())
	}
	if g.SignedURLTTL() != time.Hour {
		t.Errorf("signed url ttl = %v", g.SignedURLTTL())
	}
	if g.DefaultProvider != "kie" {
		t.Errorf("default provider = %q, want kie", g.DefaultProvider)
	}
	if cfg.Providers[0].CreatePath != "/api/v1/jobs/createTask" {
		t.Errorf("create path = %q", cfg.Providers[0].CreatePath)
	}
	if cfg.Log.Output != "stdout" {
		t.Errorf("log output = %q", cfg.Log.Output)
	}
	if cfg.MinIO.Region != "us-east-1" {
		t.Errorf("minio region = %q", cfg.MinIO.Region)
	}
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	path := writeConfig(t, `
generation:
  live_mode: true
  poll_concurrency: 8
  persistence_required: true
  max_job_runtime_seconds: 30
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Generation.LiveMode || !cfg.Generation.PersistenceRequired {
		t.Errorf("explicit switches lost: %+v", cfg.Generation)
	}
	if cfg.Generation.PollConcurrency != 8 {
		t.Errorf("poll concurrency = %d", cfg.Generation.PollConcurrency)
	}
	if cfg.Generation.MaxJobRuntime() != 30*time.Second {
		t.Errorf("max runtime = %v", cfg.Generation.MaxJobRuntime())
	}
}

func TestLoadRejectsInvalidProviders(t *testing.T) {
	cases := map[string]string{
		"missing id": `
providers:
  - base_url: https://a
`,
		"missing base url": `
providers:
  - id: a
`,
		"duplicate": `
providers:
  - id: a
    base_url: https://a
  - id: a
    base_url: https://b
`,
		"unknown default": `
generation:
  default_provider: b
providers:
  - id: a
    base_url: https://a
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
