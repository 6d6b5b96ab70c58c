// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalBackend writes a beamed stream atomically: temp file in the same
// directory as the final key, written in full, then renamed into place.
// Adapted from the teacher's AtomicWriter (temp → validate → rename),
// generalized from a fixed agent/backup directory layout to an
// arbitrary key.
type LocalBackend struct {
	baseDir string
}

// NewLocalBackend creates a LocalBackend rooted at baseDir, creating it
// if necessary.
func NewLocalBackend(baseDir string) (*LocalBackend, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("creating storage base dir: %w", err)
	}
	return &LocalBackend{baseDir: baseDir}, nil
}

// Put writes r to {baseDir}/{key} via a temp-file-then-rename, so a
// reader never observes a partially written file.
func (b *LocalBackend) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	dst := filepath.Join(b.baseDir, key)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".beam-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file for %s: %w", key, err)
	}

	if err := ctx.Err(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp to %s: %w", key, err)
	}
	return nil
}
