// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package beam

import "github.com/nishisan-dev/bucketbeam/internal/arena"

// Receive implements §4.3: drain recv_buffer, pop sender chunks off
// send_list and materialize their receiver-side counterparts, synthesize
// a trailing EOS once the beam is closed and fully drained, and split
// any overshoot back into recv_buffer so a following call resumes
// exactly where this one left off. recvArena is recorded the first time
// it is seen, exactly like BindReceiverArena; pass nil on calls after
// the first if the caller already bound it explicitly. readBytes <= 0
// means unlimited.
func (b *Beam) Receive(recvArena *arena.Arena, block BlockMode, readBytes int64) ([]*Chunk, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if recvArena != nil && !b.recvHookDone {
		b.recvPool = recvArena
		b.recvHookDone = true
		b.receiverHook = recvArena.OnCleanup(b.onReceiverArenaGone)
	}

	deadline, hasDeadline := b.waitDeadline()

	for {
		if b.aborted {
			b.recvBuffer = nil
			return nil, ErrConnectionAborted
		}

		output := b.recvBuffer
		b.recvBuffer = nil
		transferred := len(output) > 0
		running := sumLen(output)

		for b.sendList.len() > 0 && (readBytes <= 0 || running < readBytes) {
			c, _ := b.sendList.popFront()
			out := b.materializeLocked(c)
			output = append(output, out)
			transferred = true
			running += out.Length
		}

		if !b.closeSent && b.closed && b.sendList.len() == 0 && len(b.recvBuffer) == 0 {
			output = append(output, NewEOS())
			b.closeSent = true
			transferred = true
		}

		output = b.applyReadBudget(output, readBytes)

		if transferred {
			b.reportConsumed()
			b.cv.Broadcast()
			return output, nil
		}
		if b.closed {
			return nil, ErrEndOfFile
		}
		if block != Blocking {
			b.cv.Broadcast()
			return nil, ErrWouldBlock
		}
		if b.condWaitUntil(deadline, hasDeadline) {
			return nil, ErrTimedOut
		}
	}
}

// materializeLocked converts one popped sender chunk into its
// receiver-side counterpart per §4.3 step 3. Must be called with b.mu
// held; it also moves c into hold_list (or, for Meta, leaves it
// unreferenced since metadata carries no back-reference) and updates
// received_bytes / files_beamed / buckets_sent as appropriate.
func (b *Beam) materializeLocked(c *Chunk) *Chunk {
	switch c.Kind {
	case KindMeta:
		if c.Meta == MetaEOS {
			b.closeSent = true
		}
		return &Chunk{Kind: KindMeta, Meta: c.Meta, MetaStatus: c.MetaStatus, MetaData: c.MetaData}

	case KindFile:
		f := c.File
		if f.Pool != b.recvPool {
			f.setaside(b.recvPool)
			b.filesBeamed++
		}
		b.holdList.pushBack(c)
		b.receivedBytes += c.Length
		return &Chunk{
			Kind:   KindFile,
			Length: c.Length,
			File: &FileChunk{
				File:         f.File,
				Start:        f.Start,
				Length:       f.Length,
				Pool:         f.Pool,
				Cleanup:      f.Cleanup,
				MmapDisabled: true,
			},
		}

	default:
		for _, beamer := range b.beamers {
			if replacement := beamer(b, c); replacement != nil {
				b.holdList.pushBack(c)
				b.receivedBytes += c.Length
				return replacement
			}
		}
		b.bucketsSent++
		p := newProxy(b, c, b.bucketsSent)
		b.proxies[p] = struct{}{}
		elem := b.holdList.pushBack(c)
		b.holdElems[c] = elem
		b.receivedBytes += c.Length
		return &Chunk{Kind: KindProxy, Length: c.Length, proxy: p}
	}
}

// sumLen totals Length over a set of already-materialized receiver
// chunks (Meta contributes 0).
func sumLen(chunks []*Chunk) int64 {
	var total int64
	for _, c := range chunks {
		total += c.Length
	}
	return total
}

// applyReadBudget implements §4.3 step 5: if output carries more than
// readBytes of payload, split the chunk that first crosses the
// boundary at the exact byte offset and push it plus everything after
// it back into recv_buffer, returning only the prefix that fits. Must
// be called with b.mu held (it may write b.recvBuffer).
func (b *Beam) applyReadBudget(output []*Chunk, readBytes int64) []*Chunk {
	if readBytes <= 0 {
		return output
	}
	var total int64
	for i, c := range output {
		if total+c.Length <= readBytes {
			total += c.Length
			continue
		}
		offset := readBytes - total
		if offset <= 0 {
			b.recvBuffer = append(append([]*Chunk{}, output[i:]...), b.recvBuffer...)
			return output[:i]
		}
		head, tail := splitChunkAt(c, offset)
		kept := append(output[:i:i], head)
		var rest []*Chunk
		if tail != nil {
			rest = append(rest, tail)
		}
		rest = append(rest, output[i+1:]...)
		b.recvBuffer = append(rest, b.recvBuffer...)
		return kept
	}
	return output
}

// splitChunkAt splits a materialized receiver chunk at offset bytes
// into [0, offset) and [offset, Length). Proxy chunks retain the shared
// Proxy (both halves release independently; the sender chunk purges
// only once the last one releases). File chunks just narrow the
// on-disk range; no refcounting is involved. Metadata and anything
// else is zero-length and never needs splitting.
func splitChunkAt(c *Chunk, offset int64) (head, tail *Chunk) {
	switch c.Kind {
	case KindProxy:
		c.proxy.Retain()
		head = &Chunk{Kind: KindProxy, Length: offset, proxy: c.proxy, ProxyOffset: c.ProxyOffset}
		tail = &Chunk{Kind: KindProxy, Length: c.Length - offset, proxy: c.proxy, ProxyOffset: c.ProxyOffset + offset}
		return head, tail

	case KindFile:
		head = &Chunk{
			Kind:   KindFile,
			Length: offset,
			File: &FileChunk{
				File:         c.File.File,
				Start:        c.File.Start,
				Length:       offset,
				Pool:         c.File.Pool,
				Cleanup:      c.File.Cleanup,
				MmapDisabled: c.File.MmapDisabled,
			},
		}
		tail = &Chunk{
			Kind:   KindFile,
			Length: c.Length - offset,
			File: &FileChunk{
				File:         c.File.File,
				Start:        c.File.Start + offset,
				Length:       c.File.Length - offset,
				Pool:         c.File.Pool,
				MmapDisabled: c.File.MmapDisabled,
			},
		}
		return head, tail

	default:
		return c, nil
	}
}
