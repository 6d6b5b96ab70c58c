// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package storage holds the consumer-side destinations a
// pipeline.Consumer streams received chunk bytes into while it drains a
// beam.
package storage

import (
	"context"
	"io"
)

// Backend is the consumer-side destination for a beamed stream. Put
// must consume r to completion (or return an error) before returning;
// size is advisory (some backends use it to choose a multipart
// threshold) and may be -1 if unknown.
type Backend interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
}
