// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package beam

// GetBuffered returns the current buffered byte count, §3 invariant 8's
// Σ length(b) over send_list excluding File and unknown-length chunks.
func (b *Beam) GetBuffered() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffered()
}

// GetMemUsed returns the heap bytes this beam currently retains on the
// sender side: everything still in send_list or hold_list that counts
// toward flow control. hold_list entries are kept alive by a receiver
// proxy, not by the beam's own buffering budget, but they're still
// memory the beam is responsible for until the proxy releases.
func (b *Beam) GetMemUsed() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := b.buffered()
	for e := b.holdList.front(); e != nil; e = e.Next() {
		c := e.Value.(*Chunk)
		if c.Kind == KindFile || c.Length == LengthUnknown {
			continue
		}
		total += c.Length
	}
	return total
}

// GetFilesBeamed returns how many File chunks have been re-homed onto
// the receiver's arena so far.
func (b *Beam) GetFilesBeamed() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filesBeamed
}

// Empty reports whether send_list currently holds no sender chunks.
func (b *Beam) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sendList.len() == 0
}

// HoldsProxies reports whether any receiver-side proxy is still live,
// i.e. some sender chunk is only safe to destroy once that proxy
// releases.
func (b *Beam) HoldsProxies() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.proxies) > 0
}

// WasReceived reports whether the receiver has ever pulled anything off
// this beam (diagnostic: distinguishes an idle beam from one that's
// simply caught up).
func (b *Beam) WasReceived() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.receivedBytes > 0 || b.closeSent
}
