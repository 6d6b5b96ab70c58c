// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DaemonConfig is the top-level configuration for cmd/beamd: a yaml
// struct tree that LoadDaemonConfig checks and fills with defaults via
// validate.
type DaemonConfig struct {
	Producer ProducerConfig `yaml:"producer"`
	Consumer ConsumerConfig `yaml:"consumer"`
	Beam     BeamConfig     `yaml:"beam"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Logging  LoggingInfo    `yaml:"logging"`
}

// ProducerConfig configures the sender-side walk and chunking.
type ProducerConfig struct {
	Sources     []string `yaml:"sources"`
	Exclude     []string `yaml:"exclude"`
	ChunkSize   string   `yaml:"chunk_size"`
	Compression string   `yaml:"compression"` // "none" (default), "gzip", "zstd"
	RateLimit   string   `yaml:"rate_limit"`  // bytes/sec, e.g. "10mb"; empty = unlimited

	ChunkSizeRaw int64 `yaml:"-"`
	RateLimitRaw int64 `yaml:"-"`
}

// ConsumerConfig selects the consumer-side storage.Backend.
type ConsumerConfig struct {
	Backend  string `yaml:"backend"` // "local" or "s3"
	Key      string `yaml:"key"`
	LocalDir string `yaml:"local_dir"`

	S3Bucket    string `yaml:"s3_bucket"`
	S3Region    string `yaml:"s3_region"`
	S3Prefix    string `yaml:"s3_prefix"`
	AccessKeyID string `yaml:"access_key_id"`
	SecretKey   string `yaml:"secret_access_key"`
}

// BeamConfig configures the Beam itself.
type BeamConfig struct {
	MaxBufSize    string `yaml:"max_buf_size"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxBufSizeRaw int64 `yaml:"-"`
}

// ScheduleConfig drives cmd/beamd's cron scheduler.
type ScheduleConfig struct {
	Cron string `yaml:"cron"` // empty = run once and exit
}

// LoadDaemonConfig reads and validates the beamd YAML config at path.
func LoadDaemonConfig(path string) (*DaemonConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading daemon config: %w", err)
	}

	var cfg DaemonConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing daemon config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating daemon config: %w", err)
	}
	return &cfg, nil
}

func (c *DaemonConfig) validate() error {
	if len(c.Producer.Sources) == 0 {
		return fmt.Errorf("producer.sources must have at least one entry")
	}
	if c.Producer.ChunkSize == "" {
		c.Producer.ChunkSize = "1mb"
	}
	chunkSize, err := ParseByteSize(c.Producer.ChunkSize)
	if err != nil {
		return fmt.Errorf("producer.chunk_size: %w", err)
	}
	c.Producer.ChunkSizeRaw = chunkSize

	if c.Producer.RateLimit != "" {
		rate, err := ParseByteSize(c.Producer.RateLimit)
		if err != nil {
			return fmt.Errorf("producer.rate_limit: %w", err)
		}
		c.Producer.RateLimitRaw = rate
	}
	switch c.Producer.Compression {
	case "", "none", "gzip", "zstd":
	default:
		return fmt.Errorf("producer.compression must be none, gzip, or zstd, got %q", c.Producer.Compression)
	}

	switch c.Consumer.Backend {
	case "local":
		if c.Consumer.LocalDir == "" {
			return fmt.Errorf("consumer.local_dir is required when consumer.backend is local")
		}
	case "s3":
		if c.Consumer.S3Bucket == "" {
			return fmt.Errorf("consumer.s3_bucket is required when consumer.backend is s3")
		}
	default:
		return fmt.Errorf("consumer.backend must be local or s3, got %q", c.Consumer.Backend)
	}
	if c.Consumer.Key == "" {
		return fmt.Errorf("consumer.key is required")
	}

	if c.Beam.MaxBufSize == "" {
		c.Beam.MaxBufSize = "256kb"
	}
	bufSize, err := ParseByteSize(c.Beam.MaxBufSize)
	if err != nil {
		return fmt.Errorf("beam.max_buf_size: %w", err)
	}
	c.Beam.MaxBufSizeRaw = bufSize

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}
