// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package pipeline puts a beam to work: a Producer walks a source tree
// and Sends chunks, a Consumer Receives them and hands the reassembled
// stream to a storage.Backend.
package pipeline

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileEntry is one file the scanner found, queued for the producer to
// read and chunk.
type FileEntry struct {
	Path    string
	RelPath string
	Info    fs.FileInfo
}

// Scanner walks a set of source directories, applying exclude globs.
// Adapted from the teacher's directory walk: same glob rules
// (trailing-slash directory match, "/**" recursive exclude, basename
// match), generalized to feed a chunk producer instead of a tar writer.
type Scanner struct {
	sources  []string
	excludes []string
}

// NewScanner builds a Scanner over sources, skipping any path matching
// excludes.
func NewScanner(sources, excludes []string) *Scanner {
	return &Scanner{sources: sources, excludes: excludes}
}

// Walk calls fn once per eligible file; ctx cancellation stops the walk
// at the next directory entry.
func (s *Scanner) Walk(ctx context.Context, fn func(FileEntry) error) error {
	for _, src := range s.sources {
		src = filepath.Clean(src)

		err := filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			rel := strings.TrimPrefix(path, "/")
			if s.excluded(rel, d.IsDir()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return nil
			}
			if info.IsDir() {
				return nil
			}
			return fn(FileEntry{Path: path, RelPath: rel, Info: info})
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Scanner) excluded(relPath string, isDir bool) bool {
	base := filepath.Base(relPath)
	parts := strings.Split(relPath, string(os.PathSeparator))

	for _, pattern := range s.excludes {
		if strings.HasSuffix(pattern, "/") {
			if isDir {
				dirPattern := strings.TrimPrefix(strings.TrimSuffix(pattern, "/"), "*/")
				for _, part := range parts {
					if matched, _ := filepath.Match(dirPattern, part); matched {
						return true
					}
				}
			}
			continue
		}
		if strings.HasSuffix(pattern, "/**") {
			prefix := strings.TrimSuffix(pattern, "/**")
			for _, part := range parts {
				if matched, _ := filepath.Match(prefix, part); matched {
					return true
				}
			}
			continue
		}
		if matched, _ := filepath.Match(pattern, relPath); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
