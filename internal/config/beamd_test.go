// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDaemonConfig_ExampleFile(t *testing.T) {
	cfgPath := filepath.Join("..", "..", "configs", "beamd.example.yaml")
	cfg, err := LoadDaemonConfig(cfgPath)
	if err != nil {
		t.Fatalf("failed to load beamd example config: %v", err)
	}

	if len(cfg.Producer.Sources) != 1 || cfg.Producer.Sources[0] != "/var/lib/app/data" {
		t.Errorf("unexpected producer.sources: %+v", cfg.Producer.Sources)
	}
	if cfg.Producer.Compression != "zstd" {
		t.Errorf("expected compression zstd, got %q", cfg.Producer.Compression)
	}
	if cfg.Producer.ChunkSizeRaw != 1024*1024 {
		t.Errorf("expected chunk size 1mb, got %d", cfg.Producer.ChunkSizeRaw)
	}
	if cfg.Producer.RateLimitRaw != 50*1024*1024 {
		t.Errorf("expected rate limit 50mb, got %d", cfg.Producer.RateLimitRaw)
	}
	if cfg.Consumer.Backend != "local" {
		t.Errorf("expected consumer.backend local, got %q", cfg.Consumer.Backend)
	}
	if cfg.Consumer.Key != "nightly-snapshot" {
		t.Errorf("expected consumer.key nightly-snapshot, got %q", cfg.Consumer.Key)
	}
	if cfg.Beam.MaxBufSizeRaw != 8*1024*1024 {
		t.Errorf("expected beam.max_buf_size 8mb, got %d", cfg.Beam.MaxBufSizeRaw)
	}
	if cfg.Beam.Timeout != 30*time.Second {
		t.Errorf("expected beam.timeout 30s, got %v", cfg.Beam.Timeout)
	}
	if cfg.Schedule.Cron != "0 2 * * *" {
		t.Errorf("expected schedule.cron '0 2 * * *', got %q", cfg.Schedule.Cron)
	}
	if cfg.Logging.SessionDir != "/var/log/beamd/sessions" {
		t.Errorf("expected logging.session_dir, got %q", cfg.Logging.SessionDir)
	}
}

func TestLoadDaemonConfig_MissingSources(t *testing.T) {
	content := `
consumer:
  backend: local
  local_dir: /tmp/out
  key: x
`
	cfgPath := writeTempConfig(t, content)
	_, err := LoadDaemonConfig(cfgPath)
	if err == nil {
		t.Fatal("expected error for missing producer.sources")
	}
}

func TestLoadDaemonConfig_InvalidCompression(t *testing.T) {
	content := `
producer:
  sources: [/tmp]
  compression: lz4
consumer:
  backend: local
  local_dir: /tmp/out
  key: x
`
	cfgPath := writeTempConfig(t, content)
	_, err := LoadDaemonConfig(cfgPath)
	if err == nil {
		t.Fatal("expected error for invalid producer.compression")
	}
}

func TestLoadDaemonConfig_MissingConsumerKey(t *testing.T) {
	content := `
producer:
  sources: [/tmp]
consumer:
  backend: local
  local_dir: /tmp/out
`
	cfgPath := writeTempConfig(t, content)
	_, err := LoadDaemonConfig(cfgPath)
	if err == nil {
		t.Fatal("expected error for missing consumer.key")
	}
}

func TestLoadDaemonConfig_S3RequiresBucket(t *testing.T) {
	content := `
producer:
  sources: [/tmp]
consumer:
  backend: s3
  key: x
`
	cfgPath := writeTempConfig(t, content)
	_, err := LoadDaemonConfig(cfgPath)
	if err == nil {
		t.Fatal("expected error for missing consumer.s3_bucket")
	}
}

func TestLoadDaemonConfig_UnknownBackend(t *testing.T) {
	content := `
producer:
  sources: [/tmp]
consumer:
  backend: ftp
  key: x
`
	cfgPath := writeTempConfig(t, content)
	_, err := LoadDaemonConfig(cfgPath)
	if err == nil {
		t.Fatal("expected error for unknown consumer.backend")
	}
}

func TestLoadDaemonConfig_Defaults(t *testing.T) {
	content := `
producer:
  sources: [/tmp]
consumer:
  backend: local
  local_dir: /tmp/out
  key: x
`
	cfgPath := writeTempConfig(t, content)
	cfg, err := LoadDaemonConfig(cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Producer.ChunkSizeRaw != 1024*1024 {
		t.Errorf("expected default chunk size 1mb, got %d", cfg.Producer.ChunkSizeRaw)
	}
	if cfg.Beam.MaxBufSizeRaw != 256*1024 {
		t.Errorf("expected default max_buf_size 256kb, got %d", cfg.Beam.MaxBufSizeRaw)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default logging level info, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected default logging format json, got %q", cfg.Logging.Format)
	}
}

func TestLoadDaemonConfig_FileNotFound(t *testing.T) {
	_, err := LoadDaemonConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadDaemonConfig_InvalidYAML(t *testing.T) {
	cfgPath := writeTempConfig(t, "producer: [this is not valid: yaml")
	_, err := LoadDaemonConfig(cfgPath)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestParseByteSize(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"256kb", 256 * 1024, false},
		{"1gb", 1024 * 1024 * 1024, false},
		{"4mb", 4 * 1024 * 1024, false},
		{"128b", 128, false},
		{"1024", 1024, false},
		{"", 0, true},
		{"banana", 0, true},
	}
	for _, c := range cases {
		got, err := ParseByteSize(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseByteSize(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseByteSize(%q): unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseByteSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}
