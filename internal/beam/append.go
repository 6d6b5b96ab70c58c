// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package beam

// minUnknownSpace is the nominal amount of room append tries to make
// available before splitting an Unknown chunk, so a tight max_buf_size
// still permits forward progress (§4.2 step 3, Unknown case).
const minUnknownSpace = 16 * 1024

// Send appends chunks to the beam in order via Append, stopping at the
// first failure. It returns how many chunks were fully enqueued;
// per §7, the caller retains ownership of chunks[sent:] and may retry
// or discard them.
func (b *Beam) Send(chunks []*Chunk, block BlockMode) (sent int, err error) {
	for i, c := range chunks {
		if err = b.Append(c, block); err != nil {
			return i, err
		}
		sent = i + 1
	}
	return sent, nil
}

// Append classifies and enqueues a single sender chunk (§4.2). It must
// be called only from the sender goroutine.
func (b *Beam) Append(c *Chunk, block BlockMode) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.aborted {
		return ErrConnectionAborted
	}
	if b.closed {
		return ErrClosed
	}

	switch c.Kind {
	case KindMeta:
		return b.appendMeta(c)
	case KindFile:
		return b.appendFile(c, block)
	default:
		return b.appendSized(c, block)
	}
}

// appendMeta handles step 1: EOS marks the beam closed; every metadata
// chunk is queued verbatim with zero flow-control weight. Must be
// called with b.mu held.
func (b *Beam) appendMeta(c *Chunk) error {
	if c.Meta == MetaEOS {
		b.closed = true
	}
	b.sendList.pushBack(c)
	b.cv.Broadcast()
	return nil
}

// appendFile handles step 2: file length never counts toward flow
// control. canBeamFile may veto; a veto demotes the chunk to the
// Unknown path by reading its bytes now instead of re-homing the
// handle. Must be called with b.mu held.
func (b *Beam) appendFile(c *Chunk, block BlockMode) error {
	f := c.File
	accept := true
	if b.canBeamFile != nil && f.File != b.lastBeamedFD {
		accept = b.canBeamFile(f)
	}

	if !accept {
		data, err := readFileRange(f)
		if err != nil {
			return err
		}
		c.Kind = KindUnknown
		c.Length = int64(len(data))
		c.Read = ReaderFunc(func(bool) ([]byte, error) { return data, nil })
		return b.appendSized(c, block)
	}

	f.setaside(b.sendPool)
	b.lastBeamedFD = f.File
	b.sendList.pushBack(c)
	b.sentBytes += c.Length
	b.cv.Broadcast()
	return nil
}

func readFileRange(f *FileChunk) ([]byte, error) {
	if _, err := f.File.Seek(f.Start, 0); err != nil {
		return nil, err
	}
	buf := make([]byte, f.Length)
	if _, err := readFull(f.File, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readFull(r interface{ Read([]byte) (int, error) }, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// appendSized handles step 3 (Transient, Heap, ArenaBound, Unknown).
// Must be called with b.mu held.
func (b *Beam) appendSized(c *Chunk, block BlockMode) error {
	originalKind := c.Kind

	// Materialize anything backed by a Reader under sender-goroutine
	// control: Transient (copy), ArenaBound (read now, before the arena
	// can reclaim it), Unknown (read now, length was unknown).
	if c.Kind != KindHeap {
		data, err := c.Read.ReadChunk(true)
		if err != nil {
			return err
		}
		c.Kind = KindHeap
		c.Heap = data
		c.Length = int64(len(data))
		c.Read = nil
	}

	if err := b.waitForSpace(block); err != nil {
		return err
	}

	// waitForSpace only guarantees some room, not a full chunk's worth
	// (§3 invariant 8 allows one chunk to momentarily overshoot
	// max_buf_size). Unknown chunks are the one case worth splitting
	// instead of overshooting, since the caller can resubmit the
	// remainder (§4.1's split rule, §4.2 step 3's Unknown case).
	if originalKind == KindUnknown {
		space, unbounded := b.calcSpaceLeft()
		if !unbounded && space > 0 && space < c.Length {
			// Never split down to a sliver: nominally guarantee at least
			// minUnknownSpace so a tight cap still makes real progress.
			splitAt := space
			if splitAt < minUnknownSpace {
				splitAt = minUnknownSpace
			}
			if splitAt > c.Length {
				splitAt = c.Length
			}
			if splitAt < c.Length {
				head := c.Heap[:splitAt]
				tail := c.Heap[splitAt:]
				b.enqueueHeap(NewHeap(head))
				*c = *NewHeap(tail)
				return ErrWouldBlock
			}
		}
	}

	b.enqueueHeap(c)
	return nil
}

// enqueueHeap pushes a materialized Heap chunk onto sendList and
// updates sentBytes. Must be called with b.mu held.
func (b *Beam) enqueueHeap(c *Chunk) {
	b.sendList.pushBack(c)
	b.sentBytes += c.Length
	b.cv.Broadcast()
}
