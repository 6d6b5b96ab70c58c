// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/nishisan-dev/bucketbeam/internal/arena"
	"github.com/nishisan-dev/bucketbeam/internal/beam"
	"github.com/nishisan-dev/bucketbeam/internal/storage"
)

// Consumer drains a beam in a loop and streams the reassembled bytes to
// a storage.Backend. Reassembly is trivial (concatenate chunks in
// receive order) since a beam already guarantees per-beam FIFO (§5);
// the interesting work is turning Receive's batches of heterogeneous
// chunks into one io.Reader the backend can consume while the receiver
// goroutine keeps draining.
type Consumer struct {
	backend   storage.Backend
	key       string
	chunkSize int64
	logger    *slog.Logger
}

// NewConsumer builds a Consumer that will Put the assembled stream to
// backend under key.
func NewConsumer(backend storage.Backend, key string, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{backend: backend, key: key, logger: logger.With("component", "pipeline.consumer")}
}

// Run binds recvArena as the receiver's arena and drains b until EOF,
// streaming every chunk's bytes to the backend as they arrive. Intended
// to run on its own goroutine — the receiver side of the beam.
func (c *Consumer) Run(ctx context.Context, recvArena *arena.Arena, b *beam.Beam) error {
	b.BindReceiverArena(recvArena)

	pr, pw := io.Pipe()

	putErr := make(chan error, 1)
	go func() {
		putErr <- c.backend.Put(ctx, c.key, pr, -1)
	}()

	drainErr := c.drain(ctx, recvArena, b, pw)
	pw.CloseWithError(drainErr)

	if err := <-putErr; err != nil && drainErr == nil {
		return fmt.Errorf("pipeline: storage put: %w", err)
	}
	return drainErr
}

func (c *Consumer) drain(ctx context.Context, recvArena *arena.Arena, b *beam.Beam, w io.Writer) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunks, err := b.Receive(recvArena, beam.Blocking, -1)
		if errors.Is(err, beam.ErrEndOfFile) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("pipeline: receive: %w", err)
		}

		for _, chunk := range chunks {
			err := c.writeChunk(w, chunk)
			chunk.Release()
			if err != nil {
				return err
			}
		}
	}
}

func (c *Consumer) writeChunk(w io.Writer, chunk *beam.Chunk) error {
	switch chunk.Kind {
	case beam.KindMeta:
		if chunk.Meta == beam.MetaError {
			return fmt.Errorf("pipeline: upstream reported error status %d", chunk.MetaStatus)
		}
		return nil

	case beam.KindFile:
		f := chunk.File
		if _, err := f.File.Seek(f.Start, io.SeekStart); err != nil {
			return fmt.Errorf("pipeline: seeking beamed file: %w", err)
		}
		if _, err := io.CopyN(w, f.File, f.Length); err != nil {
			return fmt.Errorf("pipeline: reading beamed file: %w", err)
		}
		return nil

	case beam.KindProxy:
		data, err := chunk.ReadProxy()
		if err != nil {
			return fmt.Errorf("pipeline: reading proxy chunk: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("pipeline: writing chunk: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("pipeline: unexpected receiver chunk kind %d", chunk.Kind)
	}
}
