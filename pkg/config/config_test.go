package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hwoffload.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Driver != "fake" {
		t.Errorf("driver = %q, want fake", cfg.Driver)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != ":9477" || cfg.Metrics.Path != "/metrics" {
		t.Errorf("metrics defaults = %+v", cfg.Metrics)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
hwoffload:
  driver: fake
  log:
    debug: true
  metrics:
    listen: ":19477"
  ports:
    - name: dpdk0
      kind: dpdk
      port: 1
      queues: 4
      hw_port: 0
      uplink: true
    - name: vxlan0
      kind: vxlan
      port: 10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if !cfg.Log.Debug {
		t.Error("debug logging not loaded")
	}
	if cfg.Metrics.Listen != ":19477" {
		t.Errorf("metrics listen = %q, want :19477", cfg.Metrics.Listen)
	}
	if len(cfg.Ports) != 2 {
		t.Fatalf("ports = %d, want 2", len(cfg.Ports))
	}
	if cfg.Ports[0].Name != "dpdk0" || cfg.Ports[0].Queues != 4 || !cfg.Ports[0].Uplink {
		t.Errorf("port 0 = %+v", cfg.Ports[0])
	}
	if cfg.Ports[1].Kind != "vxlan" || cfg.Ports[1].Port != 10 {
		t.Errorf("port 1 = %+v", cfg.Ports[1])
	}
}

func TestLoadRejectsBadPorts(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown kind", `
hwoffload:
  ports:
    - name: gre0
      kind: gre
      port: 1
`},
		{"missing name", `
hwoffload:
  ports:
    - kind: dpdk
      port: 1
`},
		{"duplicate port", `
hwoffload:
  ports:
    - name: a
      kind: dpdk
      port: 1
    - name: b
      kind: dpdk
      port: 1
`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Error("Load() accepted invalid config")
			}
		})
	}
}
