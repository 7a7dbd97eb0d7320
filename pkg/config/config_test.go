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
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
app:
  name: tradlet-core
  env: dev
  log_level: debug
  api_addr: ":9090"
feed:
  url: wss://md.example.com/stream
  instruments: [au2606, rb2610]
  reconnect_wait: 2s
archive:
  path: /tmp/tradlet.db
engine:
  noop_timeout: 10s
groups:
  - id: g1
    text: |
      instrument=au2606
      threshold=0.5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.App.Name != "tradlet-core" || cfg.App.APIAddr != ":9090" {
		t.Fatalf("app=%+v", cfg.App)
	}
	if len(cfg.Feed.Instruments) != 2 || cfg.Feed.ReconnectWait.Std() != 2*time.Second {
		t.Fatalf("feed=%+v", cfg.Feed)
	}
	if cfg.Engine.NoopTimeout.Std() != 10*time.Second {
		t.Fatalf("engine=%+v", cfg.Engine)
	}
	if len(cfg.Groups) != 1 || cfg.Groups[0].ID != "g1" {
		t.Fatalf("groups=%+v", cfg.Groups)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `app: {name: x}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.App.APIAddr != ":8080" || cfg.Archive.Path != "./data/tradlet.db" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadRejectsDuplicateGroups(t *testing.T) {
	_, err := Load(writeConfig(t, `
groups:
  - {id: g1, text: "instrument=a"}
  - {id: g1, text: "instrument=b"}
`))
	if err == nil {
		t.Fatal("expected duplicate group error")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("API_ADDR", ":7070")
	cfg, err := Load(writeConfig(t, `app: {api_addr: ":9090"}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.App.APIAddr != ":7070" {
		t.Fatalf("apiAddr=%s, expected env override", cfg.App.APIAddr)
	}
}
