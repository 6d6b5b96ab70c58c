// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package pipeline

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/nishisan-dev/bucketbeam/internal/arena"
	"github.com/nishisan-dev/bucketbeam/internal/beam"
	"github.com/nishisan-dev/bucketbeam/internal/storage"
)

// runProducerConsumer wires a Producer and a Consumer across one beam,
// mirroring cmd/beamd's runOnce, and returns what the backend received.
func runProducerConsumer(t *testing.T, srcDir string, compression Compression) []byte {
	t.Helper()

	outDir := t.TempDir()
	backend, err := storage.NewLocalBackend(outDir)
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}

	ctx := context.Background()
	sendArena := arena.New(ctx)
	recvArena := arena.New(ctx)

	b := beam.Create(sendArena, beam.Options{Tag: "test", Owner: beam.SenderOwned, MaxBufSize: 64})
	defer b.Destroy()

	producer := NewProducer(Options{Sources: []string{srcDir}, Compression: compression, ChunkSize: 4})
	consumer := NewConsumer(backend, "out.bin", nil)

	producerErr := make(chan error, 1)
	consumerErr := make(chan error, 1)
	go func() { producerErr <- producer.Run(ctx, sendArena, b) }()
	go func() { consumerErr <- consumer.Run(ctx, recvArena, b) }()

	if err := <-producerErr; err != nil {
		t.Fatalf("producer.Run: %v", err)
	}
	if err := <-consumerErr; err != nil {
		t.Fatalf("consumer.Run: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(outDir, "out.bin"))
	if err != nil {
		t.Fatalf("reading consumer output: %v", err)
	}
	return got
}

func TestProducerConsumer_RoundTrip_NoCompression(t *testing.T) {
	srcDir := t.TempDir()
	content := bytes.Repeat([]byte("abcdefghij"), 50)
	if err := os.WriteFile(filepath.Join(srcDir, "payload.txt"), content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got := runProducerConsumer(t, srcDir, CompressionNone)
	if !bytes.Equal(got, content) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d bytes", len(got), len(content))
	}
}

func TestProducerConsumer_RoundTrip_MultipleFiles(t *testing.T) {
	srcDir := t.TempDir()
	var all [][]byte
	for i := 0; i < 3; i++ {
		data := bytes.Repeat([]byte{byte('A' + i)}, 37)
		all = append(all, data)
		if err := os.WriteFile(filepath.Join(srcDir, string(rune('a'+i))+".bin"), data, 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	got := runProducerConsumer(t, srcDir, CompressionNone)
	want := bytes.Join(all, nil)
	if !bytes.Equal(got, want) {
		t.Fatalf("round trip mismatch across files: got %d bytes, want %d bytes", len(got), len(want))
	}
}

func TestProducerConsumer_RoundTrip_Zstd(t *testing.T) {
	srcDir := t.TempDir()
	content := bytes.Repeat([]byte("the quick brown fox "), 200)
	if err := os.WriteFile(filepath.Join(srcDir, "payload.txt"), content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	compressed := runProducerConsumer(t, srcDir, CompressionZstd)

	dec, err := zstd.NewReader(bytes.NewReader(compressed))
	if err != nil {
		t.Fatalf("zstd.NewReader: %v", err)
	}
	defer dec.Close()

	got, err := io.ReadAll(dec)
	if err != nil {
		t.Fatalf("decoding zstd output: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("decompressed round trip mismatch: got %d bytes, want %d bytes", len(got), len(content))
	}
}
