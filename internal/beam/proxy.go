// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package beam

import (
	"sync"
	"sync/atomic"
)

// Proxy is a receiver-side, shared-ownership handle into a sender chunk
// still sitting in holdList (§3 Proxy, §4.4 Proxy registry). Proxies may
// be retained/released independently of the beam's own goroutine —
// release commonly happens on the receiver side when its output
// container is torn down, but per §5 it may also run on the sender's
// goroutine, so it re-acquires the beam lock itself.
type Proxy struct {
	n uint64

	mu    sync.Mutex
	beam  *Beam  // nulled by Lifecycle teardown; guarded by mu
	chunk *Chunk // nulled once the source is destroyed; guarded by mu

	refs int32
}

func newProxy(b *Beam, c *Chunk, n uint64) *Proxy {
	p := &Proxy{beam: b, chunk: c, n: n, refs: 1}
	c.proxy = p
	return p
}

// Retain increments the proxy's reference count. Callers that copy or
// split a proxy chunk during transfer must Retain before handing out
// the extra reference.
func (p *Proxy) Retain() { atomic.AddInt32(&p.refs, 1) }

// Release decrements the reference count; at zero it runs the §4.4
// final-reference cleanup algorithm.
func (p *Proxy) Release() {
	if atomic.AddInt32(&p.refs, -1) != 0 {
		return
	}

	p.mu.Lock()
	b := p.beam
	p.mu.Unlock()

	if b == nil {
		// Beam already tore down and nulled our back-reference; nothing
		// left to purge.
		return
	}
	b.onProxyReleased(p)
}

// Read returns the bytes behind the proxy, or ErrConnectionReset with a
// zero-length result if the sender's arena has already destroyed the
// source chunk (§7 user-visible behavior).
func (p *Proxy) Read() ([]byte, error) {
	p.mu.Lock()
	c := p.chunk
	p.mu.Unlock()

	if c == nil {
		return nil, ErrConnectionReset
	}
	return c.Heap, nil
}

// ReadRange returns the [start, start+length) slice of the proxy's
// underlying payload, used by receiver chunks produced by a
// read_bytes-driven split (transfer.go). Same ErrConnectionReset
// behavior as Read when the source is already gone.
func (p *Proxy) ReadRange(start, length int64) ([]byte, error) {
	p.mu.Lock()
	c := p.chunk
	p.mu.Unlock()

	if c == nil {
		return nil, ErrConnectionReset
	}
	end := start + length
	if end > int64(len(c.Heap)) {
		end = int64(len(c.Heap))
	}
	if start > end {
		start = end
	}
	return c.Heap[start:end], nil
}

// Serial returns the proxy's diagnostic serial number (n in §3).
func (p *Proxy) Serial() uint64 { return p.n }

// onProxyReleased implements §4.4 steps 1-4: locate the proxy's source
// chunk in holdList, sweep any contiguous leading metadata run together
// with it into purgeList, and wake a blocked sender.
func (b *Beam) onProxyReleased(p *Proxy) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.proxies, p)

	p.mu.Lock()
	target := p.chunk
	p.chunk = nil
	p.mu.Unlock()

	if target == nil {
		// Sender arena already tore down and cleared every proxy's chunk.
		b.cv.Broadcast()
		return
	}

	elem, ok := b.holdElems[target]
	if !ok {
		b.logger.Warn("beam: emitted bucket not in hold", "serial", p.n)
		b.cv.Broadcast()
		return
	}
	delete(b.holdElems, target)
	b.holdList.remove(elem)
	b.purgeList.pushBack(target)

	// Eagerly sweep any contiguous run of metadata chunks sitting ahead
	// of (before) the one we just purged — they were only held back to
	// preserve destruction ordering relative to the data chunk behind
	// them (§3 invariant 4).
	for front := b.holdList.front(); front != nil; {
		ch := front.Value.(*Chunk)
		if ch.Kind != KindMeta {
			break
		}
		next := front.Next()
		b.holdList.remove(front)
		b.purgeList.pushBack(ch)
		front = next
	}

	b.cv.Broadcast()
}
