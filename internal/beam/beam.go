// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package beam

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"github.com/nishisan-dev/bucketbeam/internal/arena"
)

// Owner determines which side's arena shutdown is fatal to the beam and
// which is merely survivable (§3 Lifecycle).
type Owner int

const (
	// SenderOwned means the beam's cleanup hook is registered on the
	// sender's arena; sender shutdown runs full teardown.
	SenderOwned Owner = iota
	// ReceiverOwned means the beam's cleanup hook is registered on the
	// receiver's arena.
	ReceiverOwned
)

// BlockMode selects whether Send/Receive may block the calling
// goroutine.
type BlockMode int

const (
	Blocking BlockMode = iota
	NonBlocking
)

// BeamerFunc is a custom materializer tried before the default proxy
// path in Receive (§4.3 step 3, §6 RegisterBeamer). Returning a nil
// chunk falls through to the default Proxy chunk.
type BeamerFunc func(b *Beam, src *Chunk) *Chunk

// Options configures a beam at Create time.
type Options struct {
	ID         uint64
	Tag        string
	Owner      Owner
	MaxBufSize int64 // 0 = unbounded
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Beam is a bounded, FIFO, single-producer/single-consumer chunk pipe
// between two arena-owning goroutines (spec.md §3).
type Beam struct {
	id     uint64
	tag    string
	owner  Owner
	logger *slog.Logger

	// mu is a sync.Locker rather than an embedded sync.Mutex so SetMutex
	// can swap in a locker shared by a group of beams (§4.6) without ever
	// copying lock state — copying a live sync.Mutex is both a go vet
	// copylocks violation and silently breaks the sharing it's meant to
	// enable.
	mu sync.Locker
	cv *sync.Cond

	maxBufSize int64
	timeout    time.Duration

	closed    bool
	aborted   bool
	closeSent bool

	sentBytes              int64
	receivedBytes          int64
	reportedProducedBytes  int64
	reportedConsumedBytes  int64
	filesBeamed            int64
	bucketsSent            uint64

	sendList  *chunkList
	holdList  *chunkList
	purgeList *chunkList

	// holdElems lets proxy release locate its chunk's element in holdList
	// in O(1) instead of a linear walk, while the leading-metadata sweep
	// in proxy.go still walks from the front as §4.4 describes.
	holdElems map[*Chunk]*list.Element

	recvBuffer []*Chunk

	proxies map[*Proxy]struct{}

	onConsumed   func(deltaBytes int64)
	onProduced   func(deltaBytes int64)
	canBeamFile  func(f *FileChunk) bool
	beamers      []BeamerFunc

	sendPool *arena.Arena
	recvPool *arena.Arena
	sendHookDone bool
	recvHookDone bool

	// senderHook / receiverHook are populated only when the counterpart
	// side's arena is bound lazily (BindSenderArena / BindReceiverArena)
	// rather than at Create; cleanupReceiverSide cancels senderHook per
	// §4.5 ("deregister our hook on the sender pool").
	senderHook   arena.Cleanup
	receiverHook arena.Cleanup

	senderWiped bool

	lastBeamedFD ReadSeekCloser
}

// Create allocates a beam bound to its owner's arena (ownerArena: the
// sender's arena for SenderOwned, the receiver's for ReceiverOwned) and
// registers the matching lifecycle cleanup hook on it.
func Create(ownerArena *arena.Arena, opts Options) *Beam {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	b := &Beam{
		id:         opts.ID,
		tag:        opts.Tag,
		owner:      opts.Owner,
		logger:     opts.Logger.With("beam_id", opts.ID, "beam_tag", opts.Tag),
		maxBufSize: opts.MaxBufSize,
		timeout:    opts.Timeout,
		sendList:   newChunkList(),
		holdList:   newChunkList(),
		purgeList:  newChunkList(),
		holdElems:  make(map[*Chunk]*list.Element),
		proxies:    make(map[*Proxy]struct{}),
	}
	b.mu = &sync.Mutex{}
	b.cv = sync.NewCond(b.mu)

	switch opts.Owner {
	case SenderOwned:
		b.sendPool = ownerArena
		b.sendHookDone = true
		ownerArena.OnCleanup(b.onSenderArenaGone)
	case ReceiverOwned:
		b.recvPool = ownerArena
		b.recvHookDone = true
		ownerArena.OnCleanup(b.onReceiverArenaGone)
	}
	return b
}

// Destroy unregisters the beam's cleanup hook (implicitly, by making
// the hook idempotent) and runs it now. Per §6, double-Destroy is a
// caller error, but double-cleanup inside it is safe.
func (b *Beam) Destroy() {
	b.mu.Lock()
	owner := b.owner
	b.mu.Unlock()

	switch owner {
	case SenderOwned:
		b.cleanupSenderSide()
	case ReceiverOwned:
		b.cleanupReceiverSide()
	}
}

// enterYellow / leaveYellow name the lock-shim entry/exit points of
// §4.6. This rewrite always installs a real mutex at Create (see
// DESIGN.md Open Question #1), and the public operations lock and
// unlock b.mu directly rather than calling these; SetMutex below is for
// sharing one lock across beams.
func (b *Beam) enterYellow() { b.mu.Lock() }
func (b *Beam) leaveYellow() { b.mu.Unlock() }

// SetMutex installs locker as the beam's lock, letting an embedder
// group several beams under one shared mutex (§4.6's stated
// rationale). cond must be a *sync.Cond built over the same locker.
// Must be called before the beam is used concurrently from more than
// one goroutine.
func (b *Beam) SetMutex(locker sync.Locker, cond *sync.Cond) {
	b.mu.Lock()
	defer b.mu.Unlock()
	// b.mu is a sync.Locker field, not an embedded sync.Mutex, so this
	// assignment swaps which lock the beam enters/leaves without ever
	// copying lock state — the beam and every other beam sharing locker
	// now genuinely contend on the same lock.
	b.mu = locker
	b.cv = cond
}

// SetBufferSize updates max_buf_size; it takes effect on the next flow
// check.
func (b *Beam) SetBufferSize(n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxBufSize = n
	b.cv.Broadcast()
}

// GetBufferSize returns the current max_buf_size.
func (b *Beam) GetBufferSize() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxBufSize
}

// SetTimeout updates the per-wait timeout (0 = wait indefinitely).
func (b *Beam) SetTimeout(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeout = d
}

// GetTimeout returns the current timeout.
func (b *Beam) GetTimeout() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.timeout
}

// OnConsumed registers a callback invoked synchronously under the beam
// lock with the delta of received bytes since the last report.
func (b *Beam) OnConsumed(fn func(deltaBytes int64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onConsumed = fn
}

// OnProduced registers a callback invoked synchronously under the beam
// lock with the delta of sent bytes since the last report.
func (b *Beam) OnProduced(fn func(deltaBytes int64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onProduced = fn
}

// OnFileBeam installs a policy hook that may veto sending a given file
// handle (§4.2 step 2).
func (b *Beam) OnFileBeam(fn func(f *FileChunk) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.canBeamFile = fn
}

// RegisterBeamer adds a custom materializer tried before the default
// proxy path in Receive (§4.3 step 3, §6). Per DESIGN.md Open Question
// #2, beamers are per-beam, not a process-wide registry.
func (b *Beam) RegisterBeamer(fn BeamerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.beamers = append(b.beamers, fn)
}

// Close marks the beam closed: no further sender chunk will be
// enqueued, but already-buffered data is still deliverable. Idempotent.
func (b *Beam) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cv.Broadcast()
}

// Abort terminates the beam immediately, discarding buffered data.
// Idempotent. Must be called from the sender goroutine: only the
// sender may safely free sender chunks (§5 Cancellation).
func (b *Beam) Abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.aborted {
		return
	}
	b.aborted = true
	b.closed = true
	for _, c := range b.sendList.drain() {
		b.destroyChunk(c)
	}
	b.cv.Broadcast()
}

// WaitEmpty blocks (per block) until sendList and proxies are both
// empty.
func (b *Beam) WaitEmpty(block BlockMode) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	deadline, hasDeadline := b.waitDeadline()
	for b.sendList.len() > 0 || len(b.proxies) > 0 {
		if b.aborted {
			return ErrConnectionAborted
		}
		if block != Blocking {
			return ErrWouldBlock
		}
		if b.condWaitUntil(deadline, hasDeadline) {
			return ErrTimedOut
		}
	}
	return nil
}

// waitDeadline computes the absolute deadline for a blocking wait that
// started now, honoring b.timeout (0 = wait indefinitely). Must be
// called with b.mu held.
func (b *Beam) waitDeadline() (time.Time, bool) {
	if b.timeout <= 0 {
		return time.Time{}, false
	}
	return time.Now().Add(b.timeout), true
}

// condWaitUntil waits on the beam's condition variable for one cycle,
// waking spuriously, on broadcast, or once deadline passes when
// hasDeadline is set. It must be called with b.mu held and returns true
// once deadline has passed — callers re-check their own predicate (and
// this return value) in a loop, per the standard condvar discipline.
func (b *Beam) condWaitUntil(deadline time.Time, hasDeadline bool) bool {
	if !hasDeadline {
		b.cv.Wait()
		return false
	}

	remaining := time.Until(deadline)
	if remaining <= 0 {
		return true
	}

	timer := time.AfterFunc(remaining, func() {
		b.mu.Lock()
		b.cv.Broadcast()
		b.mu.Unlock()
	})
	b.cv.Wait()
	timer.Stop()
	return time.Now().After(deadline)
}

// destroyChunk releases whatever resource a chunk holds. Metadata and
// Heap chunks need no action beyond GC; File chunks close the handle.
func (b *Beam) destroyChunk(c *Chunk) {
	if c.Kind == KindFile && c.File != nil && c.File.File != nil {
		_ = c.File.File.Close()
	}
}
