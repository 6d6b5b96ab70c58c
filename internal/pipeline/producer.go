// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/nishisan-dev/bucketbeam/internal/arena"
	"github.com/nishisan-dev/bucketbeam/internal/beam"
)

// Compression selects how Producer compresses a file's bytes before
// queuing them, mirroring the teacher's tar→gzip pipeline generalized
// to a selectable codec.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
)

// fileBeamThreshold is the size above which Producer prefers a File
// chunk (handle handoff) over reading the whole file into a Heap chunk;
// OnFileBeam may still veto per file.
const fileBeamThreshold = 4 * 1024 * 1024

// Options configures a Producer.
type Options struct {
	Sources     []string
	Excludes    []string
	ChunkSize   int64
	Compression Compression
	Logger      *slog.Logger
}

// Producer walks a source tree (Scanner) and Sends each file's content
// to a beam as a sequence of chunks, closing the beam once the walk
// completes.
type Producer struct {
	scanner     *Scanner
	chunkSize   int64
	compression Compression
	logger      *slog.Logger
}

// NewProducer builds a Producer from opts.
func NewProducer(opts Options) *Producer {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 1 << 20
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		scanner:     NewScanner(opts.Sources, opts.Excludes),
		chunkSize:   chunkSize,
		compression: opts.Compression,
		logger:      logger.With("component", "pipeline.producer"),
	}
}

// Run walks the source tree, binds sendArena as the sender's arena, and
// Sends every file's bytes before closing b. Intended to run on its own
// goroutine — the sender side of the beam.
func (p *Producer) Run(ctx context.Context, sendArena *arena.Arena, b *beam.Beam) error {
	b.BindSenderArena(sendArena)

	walkErr := p.scanner.Walk(ctx, func(entry FileEntry) error {
		return p.sendFile(ctx, sendArena, b, entry)
	})

	if err := b.Append(beam.NewEOS(), beam.Blocking); err != nil {
		p.logger.Warn("failed to append EOS", "error", err)
	}
	if walkErr != nil {
		p.logger.Error("producer walk failed", "error", walkErr)
		return fmt.Errorf("pipeline: producer walk: %w", walkErr)
	}
	return nil
}

func (p *Producer) sendFile(ctx context.Context, sendArena *arena.Arena, b *beam.Beam, entry FileEntry) error {
	if entry.Info.Size() >= fileBeamThreshold && p.compression == CompressionNone {
		return p.sendAsFileChunk(sendArena, b, entry)
	}
	return p.sendAsHeapChunks(ctx, sendArena, b, entry)
}

// sendAsFileChunk hands the open file handle straight to the beam,
// letting OnFileBeam veto it (the classifier then falls back to the
// Unknown read-now path, per §4.2 step 2). Append's appendFile setasides
// the handle's cleanup onto the send arena for us.
func (p *Producer) sendAsFileChunk(_ *arena.Arena, b *beam.Beam, entry FileEntry) error {
	f, err := os.Open(entry.Path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", entry.RelPath, err)
	}

	fc := &beam.FileChunk{File: f, Start: 0, Length: entry.Info.Size()}
	if err := b.Append(beam.NewFile(fc), beam.Blocking); err != nil {
		_ = f.Close()
		return fmt.Errorf("appending file %s: %w", entry.RelPath, err)
	}
	return nil
}

// sendAsHeapChunks reads (and optionally compresses) the whole file,
// then queues it as one or more Heap chunks of at most p.chunkSize.
func (p *Producer) sendAsHeapChunks(ctx context.Context, _ *arena.Arena, b *beam.Beam, entry FileEntry) error {
	data, err := os.ReadFile(entry.Path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", entry.RelPath, err)
	}

	data, err = p.compress(data)
	if err != nil {
		return fmt.Errorf("compressing %s: %w", entry.RelPath, err)
	}

	for len(data) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := int64(len(data))
		if n > p.chunkSize {
			n = p.chunkSize
		}
		chunk := beam.NewHeap(data[:n])
		data = data[n:]
		if err := b.Append(chunk, beam.Blocking); err != nil {
			return fmt.Errorf("appending chunk of %s: %w", entry.RelPath, err)
		}
	}
	return nil
}

func (p *Producer) compress(data []byte) ([]byte, error) {
	switch p.compression {
	case CompressionGzip:
		var buf bytes.Buffer
		w, err := pgzip.NewWriterLevel(&buf, pgzip.BestSpeed)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			w.Close()
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	case CompressionZstd:
		var buf bytes.Buffer
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			w.Close()
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	default:
		return data, nil
	}
}
