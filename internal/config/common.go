// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"strconv"
	"strings"
)

// LoggingInfo contains the logging section shared by every daemon config.
type LoggingInfo struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// SessionDir, when non-empty, makes each beam run additionally log to
	// its own file under SessionDir/<tag>/<session-id>.log (see
	// logging.NewSessionLogger). Empty disables per-run session logs.
	SessionDir string `yaml:"session_dir"`
}

// ParseByteSize converts human-readable strings like "256mb", "1gb" into
// a byte count.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Ordered longest-suffix-first so "mb" doesn't match as "b".
	type suffix struct {
		s string
		m int64
	}
	suffixes := []suffix{
		{"gb", 1024 * 1024 * 1024},
		{"mb", 1024 * 1024},
		{"kb", 1024},
		{"b", 1},
	}

	for _, sfx := range suffixes {
		if strings.HasSuffix(s, sfx.s) {
			numStr := strings.TrimSuffix(s, sfx.s)
			num, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid number %q: %w", numStr, err)
			}
			return num * sfx.m, nil
		}
	}

	// Plain number, interpreted as bytes.
	num, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unknown size format %q", s)
	}
	return num, nil
}
