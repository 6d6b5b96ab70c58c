// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package beam

import (
	"bytes"
	"context"
	"testing"

	"github.com/nishisan-dev/bucketbeam/internal/arena"
)

// TestProxySplitPurgesOnlyAfterBothHalvesRelease exercises splitChunkAt's
// use of Proxy.Retain (§8 scenario 4): a read_bytes split hands out two
// references to the same Proxy, and the source sender chunk must not
// purge from holdList until both halves have been released.
func TestProxySplitPurgesOnlyAfterBothHalvesRelease(t *testing.T) {
	sa := arena.New(context.Background())
	defer sa.Close()

	b := Create(sa, Options{Owner: SenderOwned})
	if err := b.Append(NewHeap([]byte("abcdefghij")), Blocking); err != nil {
		t.Fatalf("Append: %v", err)
	}
	b.Close()

	ra := arena.New(context.Background())
	defer ra.Close()

	head, err := b.Receive(ra, Blocking, 4)
	if err != nil {
		t.Fatalf("Receive (head): %v", err)
	}
	if len(head) != 1 || head[0].Kind != KindProxy {
		t.Fatalf("expected a single proxy chunk, got %+v", head)
	}
	headChunk := head[0]

	tail, err := b.Receive(ra, Blocking, 6)
	if err != nil {
		t.Fatalf("Receive (tail): %v", err)
	}
	var tailChunk *Chunk
	for _, c := range tail {
		if c.Kind == KindProxy {
			tailChunk = c
		}
	}
	if tailChunk == nil {
		t.Fatalf("expected a proxy chunk among %+v", tail)
	}

	if headChunk.proxy != tailChunk.proxy {
		t.Fatalf("expected both halves to share the same underlying proxy")
	}

	headData, err := headChunk.ReadProxy()
	if err != nil {
		t.Fatalf("ReadProxy (head): %v", err)
	}
	if !bytes.Equal(headData, []byte("abcd")) {
		t.Fatalf("expected %q, got %q", "abcd", headData)
	}
	tailData, err := tailChunk.ReadProxy()
	if err != nil {
		t.Fatalf("ReadProxy (tail): %v", err)
	}
	if !bytes.Equal(tailData, []byte("efghij")) {
		t.Fatalf("expected %q, got %q", "efghij", tailData)
	}

	headChunk.proxy.Release()
	if !b.HoldsProxies() {
		t.Fatalf("expected the source chunk to remain held after only one release")
	}

	tailChunk.proxy.Release()
	if b.HoldsProxies() {
		t.Fatalf("expected the source chunk to purge once both halves released")
	}
}
