package runtime

import (
	"os"
	"testing"
)

const sampleTOML = `
trace_dir = "/tmp/trace"

[[host]]
address = "10.0.0.1"
base_port = 9000
num_cores = 4
layer = "cpu"

[[host]]
address = "10.0.0.2"
base_port = 9000
num_cores = 2
layer = "gpu"

[[group_connections]]
from = "ingest"
to = "compute"
`

func TestLoadConfigStringParsesHosts(t *testing.T) {
	cfg, err := LoadConfigString(sampleTOML)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cfg.Hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %d", len(cfg.Hosts))
	}
	if cfg.Hosts[1].Layer != "gpu" || cfg.Hosts[1].NumCores != 2 {
		t.Fatalf("unexpected second host: %+v", cfg.Hosts[1])
	}
	if !cfg.GroupConnectionAllowed("ingest", "compute") {
		t.Fatal("expected ingest->compute to be allowed")
	}
	if cfg.GroupConnectionAllowed("ingest", "other") {
		t.Fatal("expected ingest->other to be disallowed")
	}
}

func TestHostFromEnv(t *testing.T) {
	cfg, err := LoadConfigString(sampleTOML)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	t.Setenv(EnvHostID, "1")
	h, err := cfg.HostFromEnv()
	if err != nil {
		t.Fatalf("HostFromEnv: %v", err)
	}
	if h.Address != "10.0.0.2" {
		t.Fatalf("expected second host, got %+v", h)
	}
}

func TestLoadFromEnvPrefersInlineConfig(t *testing.T) {
	t.Setenv(EnvConfig, sampleTOML)
	cfg, err := LoadFromEnv("")
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if len(cfg.Hosts) != 2 {
		t.Fatalf("expected 2 hosts from inline config, got %d", len(cfg.Hosts))
	}
}

func TestLoadFromEnvRequiresSomeSource(t *testing.T) {
	os.Unsetenv(EnvConfig)
	if _, err := LoadFromEnv(""); err == nil {
		t.Fatal("expected error with neither env nor fallback path set")
	}
}
