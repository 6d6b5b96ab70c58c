// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package beam implements a single-producer/single-consumer chunk pipe
// between two arena-owning goroutines: the bucket beam.
package beam

import "errors"

// Transient errors — the caller should retry.
var (
	// ErrWouldBlock is returned by Send/Receive in non-blocking mode when
	// there is no room (Send) or no data (Receive) available right now.
	// Append (and so Send) also returns it, in either mode, after
	// splitting an Unknown chunk: the head was enqueued and the chunk now
	// holds the remainder, which the caller resubmits.
	ErrWouldBlock = errors.New("beam: would block")
	// ErrTimedOut is returned when a blocking wait exceeds the beam's Timeout.
	ErrTimedOut = errors.New("beam: timed out")
)

// Terminal-for-the-stream errors.
var (
	// ErrEndOfFile is returned by Receive once the stream has closed and
	// fully drained.
	ErrEndOfFile = errors.New("beam: end of file")
	// ErrConnectionAborted is returned after Abort has been called.
	ErrConnectionAborted = errors.New("beam: connection aborted")
	// ErrClosed is returned by Append once Close has been called without
	// Abort: a clean close, not an abort, but the stream still refuses
	// further sender chunks (§3 invariant 9). Distinct from
	// ErrConnectionAborted so a caller can tell the two apart, though the
	// normal producer never sends after its own Close.
	ErrClosed = errors.New("beam: closed")
	// ErrConnectionReset is returned when a proxy's source chunk is gone
	// because the sender's arena tore down before the proxy was released.
	ErrConnectionReset = errors.New("beam: connection reset")
)

// Fatal errors.
var (
	// ErrOutOfMemory mirrors the reference implementation's allocation
	// failure status. No code path in this package returns it (allocation
	// failure panics in Go); it is kept so callers written against the C
	// API's error taxonomy still compile against a matching sentinel.
	ErrOutOfMemory = errors.New("beam: out of memory")
)
