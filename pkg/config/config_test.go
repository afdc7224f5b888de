package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	rlerrors "github.com/routelens/routelens/pkg/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFrom_MergesInOrder(t *testing.T) {
	dir := t.TempDir()
	user := writeFile(t, dir, "user.yaml", `
source:
  dir: /data/logs
log:
  level: debug
watch:
  debounce: 2s
`)
	project := writeFile(t, dir, "project.yaml", `
log:
  level: warn
server:
  port: 9090
export:
  redis:
    ttl: 1h
`)

	m := NewManager()
	if err := m.LoadFrom(user, filepath.Join(dir, "missing.yaml"), project); err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	cfg := m.Get()

	if cfg.Source.Dir != "/data/logs" {
		t.Errorf("Source.Dir = %q, want /data/logs", cfg.Source.Dir)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
	if cfg.Server.Port != 9090 || cfg.Server.Host != "localhost" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Watch.Debounce != 2*time.Second {
		t.Errorf("Watch.Debounce = %v, want 2s", cfg.Watch.Debounce)
	}
	if cfg.Export.Redis.TTL != time.Hour || cfg.Export.Redis.Prefix != "routelens:" {
		t.Errorf("Export.Redis = %+v", cfg.Export.Redis)
	}
	if got := m.GetPaths(); len(got) != 2 {
		t.Errorf("GetPaths() = %v, want the two existing files", got)
	}
}

func TestLoadFrom_Env(t *testing.T) {
	t.Setenv("ROUTELENS_S3_BUCKET", "trade-logs")
	t.Setenv("ROUTELENS_PORT", "7000")
	t.Setenv("ROUTELENS_LOG_LEVEL", "error")

	m := NewManager()
	if err := m.LoadFrom(); err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	cfg := m.Get()

	if cfg.Source.Kind != SourceS3 || cfg.Source.Bucket != "trade-logs" {
		t.Errorf("Source = %+v", cfg.Source)
	}
	if cfg.Server.Port != 7000 || cfg.Log.Level != "error" {
		t.Errorf("port/level = %d/%q", cfg.Server.Port, cfg.Log.Level)
	}
}

func TestLoadFrom_BrokenFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", "source: [unclosed")

	err := NewManager().LoadFrom(path)
	if !rlerrors.IsCode(err, rlerrors.CodeConfig) {
		t.Errorf("LoadFrom() error = %v, want %s", err, rlerrors.CodeConfig)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"s3 without bucket", func(c *Config) { c.Source.Kind = SourceS3 }, true},
		{"s3 with bucket", func(c *Config) { c.Source.Kind = SourceS3; c.Source.Bucket = "b" }, false},
		{"unknown kind", func(c *Config) { c.Source.Kind = "ftp" }, true},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, true},
		{"bad timezone", func(c *Config) { c.Parser.Timezone = "Mars/Olympus" }, true},
		{"utc timezone", func(c *Config) { c.Parser.Timezone = "UTC" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	m := NewManager()
	m.Get().Source.Dir = "/srv/logs"
	if err := m.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded := NewManager()
	if err := loaded.LoadFrom(path); err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if loaded.Get().Source.Dir != "/srv/logs" {
		t.Errorf("Source.Dir = %q after round trip", loaded.Get().Source.Dir)
	}
}
