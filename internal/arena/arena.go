// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package arena provides the Go-idiomatic stand-in for the reference
// implementation's pool/arena system: a bulk owner that runs registered
// cleanup hooks exactly once, either on explicit Close or when its
// parent context is canceled. A beam registers one cleanup hook per
// side the first time it observes that side's arena, per
// h2_bucket_beam.c's pool-cleanup registration.
package arena

import (
	"context"
	"sync"
)

// Arena is a bulk-owned resource scope. Goroutines on one side of a
// beam own exactly one Arena; chunks may be bound to it (ArenaBound,
// File) and must not be touched by the other side's goroutine.
type Arena struct {
	mu       sync.Mutex
	closed   bool
	nextID   uint64
	cleanups []cleanupEntry

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

type cleanupEntry struct {
	id uint64
	fn func()
}

// Cleanup is a token returned by OnCleanup that lets a caller cancel a
// registered hook before it runs — the Go stand-in for
// apr_pool_cleanup_kill, used when re-homing (setting aside) a resource
// from one arena to another.
type Cleanup struct {
	arena *Arena
	id    uint64
}

// Cancel removes the hook if it has not already run. It reports
// whether the hook was still pending. The zero Cleanup (no hook ever
// registered) is a safe no-op.
func (c Cleanup) Cancel() bool {
	a := c.arena
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, e := range a.cleanups {
		if e.id == c.id {
			a.cleanups = append(a.cleanups[:i], a.cleanups[i+1:]...)
			return true
		}
	}
	return false
}

// New creates an Arena whose lifetime is bound to parent: canceling
// parent runs the arena's cleanup hooks just as explicitly calling
// Close does.
func New(parent context.Context) *Arena {
	ctx, cancel := context.WithCancel(parent)
	a := &Arena{
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		<-ctx.Done()
		a.Close()
	}()
	return a
}

// Context returns the arena's lifetime context. A goroutine producing
// or consuming chunks bound to this arena should select on
// Context().Done() alongside its normal work.
func (a *Arena) Context() context.Context { return a.ctx }

// OnCleanup registers fn to run when the arena shuts down. Hooks run in
// LIFO order, the same order h2_bucket_beam.c's pool pre-cleanups run
// in. Registering on an already-closed arena runs fn immediately. The
// returned token lets the caller cancel the hook later (see Cleanup),
// e.g. when re-homing a File chunk's handle onto a different arena.
func (a *Arena) OnCleanup(fn func()) Cleanup {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		fn()
		return Cleanup{}
	}
	a.nextID++
	id := a.nextID
	a.cleanups = append(a.cleanups, cleanupEntry{id: id, fn: fn})
	a.mu.Unlock()
	return Cleanup{arena: a, id: id}
}

// Close runs every registered cleanup hook exactly once, in LIFO order,
// and cancels the arena's context if Close was called directly (rather
// than as a reaction to context cancellation).
func (a *Arena) Close() {
	a.once.Do(func() {
		a.mu.Lock()
		hooks := a.cleanups
		a.cleanups = nil
		a.closed = true
		a.mu.Unlock()

		for i := len(hooks) - 1; i >= 0; i-- {
			hooks[i].fn()
		}
		a.cancel()
		close(a.done)
	})
}

// Done reports when the arena has finished shutting down.
func (a *Arena) Done() <-chan struct{} { return a.done }

// Closed reports whether Close has already run.
func (a *Arena) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}
