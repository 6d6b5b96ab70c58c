// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package beam

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nishisan-dev/bucketbeam/internal/arena"
)

// TestSmallHeapRoundtrip covers §8 scenario 1.
func TestSmallHeapRoundtrip(t *testing.T) {
	senderArena := arena.New(context.Background())
	defer senderArena.Close()

	b := Create(senderArena, Options{MaxBufSize: 64, Owner: SenderOwned})

	if err := b.Append(NewHeap([]byte("hello")), Blocking); err != nil {
		t.Fatalf("Append: %v", err)
	}
	b.Close()

	recvArena := arena.New(context.Background())
	defer recvArena.Close()

	out, err := b.Receive(recvArena, Blocking, -1)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected data chunk + EOS, got %d chunks", len(out))
	}
	data, err := out[0].ReadProxy()
	if err != nil {
		t.Fatalf("ReadProxy: %v", err)
	}
	if !bytes.Equal(data, []byte("hello")) {
		t.Fatalf("expected %q, got %q", "hello", data)
	}
	if out[1].Kind != KindMeta || out[1].Meta != MetaEOS {
		t.Fatalf("expected trailing EOS, got %+v", out[1])
	}

	out[0].proxy.Release()
	if b.HoldsProxies() {
		t.Fatalf("expected no live proxies after release")
	}
}

// TestBlockingOnFull covers §8 scenario 2.
func TestBlockingOnFull(t *testing.T) {
	senderArena := arena.New(context.Background())
	defer senderArena.Close()

	b := Create(senderArena, Options{MaxBufSize: 8, Owner: SenderOwned})

	if err := b.Append(NewHeap(make([]byte, 8)), Blocking); err != nil {
		t.Fatalf("first Append: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- b.Append(NewHeap(make([]byte, 4)), Blocking)
	}()

	select {
	case err := <-done:
		t.Fatalf("second Append should have blocked, returned %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	recvArena := arena.New(context.Background())
	defer recvArena.Close()
	if _, err := b.Receive(recvArena, Blocking, 8); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("second Append returned error after drain: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("second Append should have unblocked once space freed")
	}

	if got := b.GetBuffered(); got != 4 {
		t.Fatalf("expected buffered=4, got %d", got)
	}
}

// TestAbortWhileBlocked covers §8 scenario 3.
func TestAbortWhileBlocked(t *testing.T) {
	senderArena := arena.New(context.Background())
	defer senderArena.Close()

	b := Create(senderArena, Options{MaxBufSize: 8, Owner: SenderOwned})
	if err := b.Append(NewHeap(make([]byte, 8)), Blocking); err != nil {
		t.Fatalf("Append: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- b.Append(NewHeap(make([]byte, 4)), Blocking)
	}()
	time.Sleep(50 * time.Millisecond)

	b.Abort()

	select {
	case err := <-done:
		if !errors.Is(err, ErrConnectionAborted) {
			t.Fatalf("expected ErrConnectionAborted, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Append should have returned after Abort")
	}

	if got := b.GetBuffered(); got != 0 {
		t.Fatalf("expected buffered=0 after abort, got %d", got)
	}
	if b.HoldsProxies() {
		t.Fatalf("expected no proxies after abort")
	}
}

// TestSplitAcrossReceiveCalls covers §8 scenario 4.
func TestSplitAcrossReceiveCalls(t *testing.T) {
	senderArena := arena.New(context.Background())
	defer senderArena.Close()

	b := Create(senderArena, Options{Owner: SenderOwned})
	if err := b.Append(NewHeap([]byte("0123456789")), Blocking); err != nil {
		t.Fatalf("Append: %v", err)
	}
	b.Close()

	recvArena := arena.New(context.Background())
	defer recvArena.Close()

	out1, err := b.Receive(recvArena, Blocking, 4)
	if err != nil {
		t.Fatalf("first Receive: %v", err)
	}
	if got := sumLen(out1); got != 4 {
		t.Fatalf("expected 4 bytes from first Receive, got %d", got)
	}
	data1, err := out1[0].ReadProxy()
	if err != nil {
		t.Fatalf("ReadProxy: %v", err)
	}
	if !bytes.Equal(data1, []byte("0123")) {
		t.Fatalf("expected %q, got %q", "0123", data1)
	}

	out2, err := b.Receive(nil, Blocking, -1)
	if err != nil {
		t.Fatalf("second Receive: %v", err)
	}
	var total int64
	var sawEOS bool
	var data2 []byte
	for _, c := range out2 {
		if c.Kind == KindMeta && c.Meta == MetaEOS {
			sawEOS = true
			continue
		}
		d, err := c.ReadProxy()
		if err != nil {
			t.Fatalf("ReadProxy: %v", err)
		}
		data2 = append(data2, d...)
		total += c.Length
	}
	if total != 6 {
		t.Fatalf("expected 6 bytes from second Receive, got %d", total)
	}
	if !bytes.Equal(data2, []byte("456789")) {
		t.Fatalf("expected %q, got %q", "456789", data2)
	}
	if !sawEOS {
		t.Fatalf("expected trailing EOS on second Receive")
	}
}

// TestFileBeamVeto covers §8 scenario 5.
func TestFileBeamVeto(t *testing.T) {
	senderArena := arena.New(context.Background())
	defer senderArena.Close()

	b := Create(senderArena, Options{Owner: SenderOwned})
	b.OnFileBeam(func(f *FileChunk) bool { return false })

	tmp, err := os.CreateTemp("", "beam-test-*")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer os.Remove(tmp.Name())
	content := bytes.Repeat([]byte("x"), 4096)
	if _, err := tmp.Write(content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}

	fc := &FileChunk{File: tmp, Start: 0, Length: int64(len(content))}
	if err := b.Append(NewFile(fc), Blocking); err != nil {
		t.Fatalf("Append: %v", err)
	}
	b.Close()

	recvArena := arena.New(context.Background())
	defer recvArena.Close()

	out, err := b.Receive(recvArena, Blocking, -1)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	var data []byte
	for _, c := range out {
		if c.Kind != KindProxy {
			continue
		}
		d, err := c.ReadProxy()
		if err != nil {
			t.Fatalf("ReadProxy: %v", err)
		}
		data = append(data, d...)
	}
	if !bytes.Equal(data, content) {
		t.Fatalf("content mismatch after vetoed file beam")
	}
	if got := b.GetFilesBeamed(); got != 0 {
		t.Fatalf("expected 0 files beamed after veto, got %d", got)
	}
}

// TestOutlivedSource covers §8 scenario 6.
func TestOutlivedSource(t *testing.T) {
	senderArena := arena.New(context.Background())

	b := Create(senderArena, Options{Owner: SenderOwned})
	if err := b.Append(NewHeap([]byte("hello")), Blocking); err != nil {
		t.Fatalf("Append: %v", err)
	}

	recvArena := arena.New(context.Background())
	defer recvArena.Close()

	out, err := b.Receive(recvArena, Blocking, 5)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected exactly 1 chunk, got %d", len(out))
	}

	senderArena.Close()

	data, err := out[0].ReadProxy()
	if !errors.Is(err, ErrConnectionReset) {
		t.Fatalf("expected ErrConnectionReset, got %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("expected zero-length read, got %d bytes", len(data))
	}
}
