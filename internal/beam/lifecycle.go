// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package beam

import (
	"container/list"

	"github.com/nishisan-dev/bucketbeam/internal/arena"
)

// BindSenderArena records the sender-side arena the first time the
// producer goroutine observes it, lazily registering the counterpart
// cleanup hook (§3 Lifecycle: "send and receive each lazily register a
// cleanup hook on the counterpart's arena the first time they observe
// it"). A no-op once a sender arena is already bound (whether set here
// or at Create for a SenderOwned beam).
func (b *Beam) BindSenderArena(a *arena.Arena) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendHookDone {
		return
	}
	b.sendPool = a
	b.sendHookDone = true
	b.senderHook = a.OnCleanup(b.onSenderArenaGone)
}

// BindReceiverArena is BindSenderArena's receiver-side counterpart,
// called by the consumer goroutine before its first Receive.
func (b *Beam) BindReceiverArena(a *arena.Arena) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.recvHookDone {
		return
	}
	b.recvPool = a
	b.recvHookDone = true
	b.receiverHook = a.OnCleanup(b.onReceiverArenaGone)
}

// onSenderArenaGone is the hook always sitting on whichever arena holds
// send_pool, regardless of which side owns the beam (§3 Lifecycle, §4.5:
// "the sender hook wipes everything"). It destroys every sender chunk
// across all three lists and severs every live proxy's back-reference,
// so subsequent proxy reads observe ErrConnectionReset rather than
// touching freed sender memory.
func (b *Beam) onSenderArenaGone() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wipeSenderSideLocked()
}

// onReceiverArenaGone is the conservative hook on the receiver's arena:
// it only drops recv_buffer and the recv_pool reference, per §4.5
// ("receiver hook just nulls recv_buffer and recv_pool"). The sender
// side is left untouched; it may still be drained by a later receiver,
// though in practice the beam is now dormant.
func (b *Beam) onReceiverArenaGone() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recvBuffer = nil
	b.recvPool = nil
	b.cv.Broadcast()
}

// wipeSenderSideLocked implements the sender-side cleanup shared by
// onSenderArenaGone and cleanupSenderSide: purge send/hold/purge lists,
// null every proxy's chunk and beam back-reference, and mark closed so
// no further enqueue is attempted. Idempotent; must be called with
// b.mu held.
func (b *Beam) wipeSenderSideLocked() {
	if b.senderWiped {
		return
	}
	b.senderWiped = true
	b.closed = true

	for _, c := range b.sendList.drain() {
		b.destroyChunk(c)
	}
	for _, c := range b.holdList.drain() {
		b.destroyChunk(c)
	}
	for _, c := range b.purgeList.drain() {
		b.destroyChunk(c)
	}
	b.holdElems = make(map[*Chunk]*list.Element)

	for p := range b.proxies {
		p.mu.Lock()
		p.chunk = nil
		p.beam = nil
		p.mu.Unlock()
	}
	b.proxies = make(map[*Proxy]struct{})

	b.cv.Broadcast()
}

// cleanupSenderSide is the Destroy strategy for a SenderOwned beam
// (§4.5): run the sender-side wipe and drop the recv_buffer reference.
func (b *Beam) cleanupSenderSide() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wipeSenderSideLocked()
	b.recvBuffer = nil
}

// cleanupReceiverSide is the Destroy strategy for a ReceiverOwned beam
// (§4.5): destroy recv_buffer, deregister the hook this beam lazily
// registered on the sender's arena (if any), then run the same
// sender-side wipe. Asserts every list and the proxy set end up empty.
func (b *Beam) cleanupReceiverSide() {
	b.mu.Lock()
	b.recvBuffer = nil
	b.recvPool = nil
	hadSenderHook := b.sendPool != nil && b.senderHook != (arena.Cleanup{})
	hook := b.senderHook
	b.mu.Unlock()

	if hadSenderHook {
		hook.Cancel()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.wipeSenderSideLocked()

	if b.sendList.len() != 0 || b.holdList.len() != 0 || b.purgeList.len() != 0 || len(b.proxies) != 0 {
		b.logger.Error("beam: lists non-empty after receiver-owned teardown",
			"send_list", b.sendList.len(), "hold_list", b.holdList.len(),
			"purge_list", b.purgeList.len(), "proxies", len(b.proxies))
	}
}
