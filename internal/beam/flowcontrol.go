// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package beam

// calcSpaceLeft returns maxBufSize - buffered, saturating at 0; a
// maxBufSize of 0 or less (unbounded) is reported as "no limit" via the
// bool return. Must be called with b.mu held.
func (b *Beam) calcSpaceLeft() (space int64, unbounded bool) {
	if b.maxBufSize <= 0 {
		return 0, true
	}
	buffered := b.buffered()
	if buffered >= b.maxBufSize {
		return 0, false
	}
	return b.maxBufSize - buffered, false
}

// buffered sums the length of every non-File, known-length chunk
// currently in sendList (§3 invariant 8). Must be called with b.mu
// held.
func (b *Beam) buffered() int64 {
	var total int64
	for e := b.sendList.front(); e != nil; e = e.Next() {
		c := e.Value.(*Chunk)
		if c.Kind == KindFile || c.Length == LengthUnknown {
			continue
		}
		total += c.Length
	}
	return total
}

// waitForSpace implements §4.1's block protocol: while the beam isn't
// aborted, there's no room, and the caller allows blocking, report
// production progress, wait on the condvar (honoring timeout), and
// purge whatever the receiver has released on wakeup. Must be called
// with b.mu held.
func (b *Beam) waitForSpace(block BlockMode) error {
	deadline, hasDeadline := b.waitDeadline()

	for {
		space, unbounded := b.calcSpaceLeft()
		if b.aborted {
			return ErrConnectionAborted
		}
		if unbounded || space > 0 {
			return nil
		}
		if block != Blocking {
			return ErrWouldBlock
		}

		b.reportProduced()
		if b.condWaitUntil(deadline, hasDeadline) {
			return ErrTimedOut
		}
		b.applyPurges()
	}
}

// reportProduced invokes onProduced with bytes sent since the last
// report, per §4.1's rationale: publish progress before sleeping so the
// other side knows to drain. Must be called with b.mu held.
func (b *Beam) reportProduced() {
	if b.onProduced == nil {
		return
	}
	delta := b.sentBytes - b.reportedProducedBytes
	if delta <= 0 {
		return
	}
	b.reportedProducedBytes = b.sentBytes
	b.onProduced(delta)
}

// reportConsumed invokes onConsumed with bytes received since the last
// report. Must be called with b.mu held.
func (b *Beam) reportConsumed() {
	if b.onConsumed == nil {
		return
	}
	delta := b.receivedBytes - b.reportedConsumedBytes
	if delta <= 0 {
		return
	}
	b.reportedConsumedBytes = b.receivedBytes
	b.onConsumed(delta)
}

// applyPurges drains purgeList on wake, destroying every chunk
// onProxyReleased moved there (proxy.go). purgeList only ever holds
// chunks whose last receiver reference is already gone, so nothing
// here can race a live proxy; without this step a released chunk's
// payload would sit in purgeList for the beam's entire lifetime,
// since Destroy is the only other drain. Must be called with b.mu
// held.
func (b *Beam) applyPurges() {
	for _, c := range b.purgeList.drain() {
		b.destroyChunk(c)
	}
}
