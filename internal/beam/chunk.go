// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package beam

import "github.com/nishisan-dev/bucketbeam/internal/arena"

// LengthUnknown marks a Chunk whose Length has not been determined yet;
// append forces a blocking read to populate it before the chunk is queued.
const LengthUnknown int64 = -1

// Kind identifies which arm of the Chunk tagged union is populated.
// This is the Go rewrite of the bucket type switch described in Design
// Notes §9: one sum type matched with a type switch instead of a
// virtual-dispatch bucket hierarchy.
type Kind int

const (
	// KindMeta carries an end-of-stream, flush, or error marker. Its
	// Length never counts toward buffered bytes.
	KindMeta Kind = iota
	// KindHeap is an opaque immutable byte range safe to read from any
	// goroutine.
	KindHeap
	// KindArenaBound is a byte range that the sender's arena may reclaim
	// at any moment; it must be read and converted to KindHeap under
	// sender-goroutine control before it is queued.
	KindArenaBound
	// KindTransient is a short-lived slice (e.g. a stack buffer reused by
	// the caller after the call returns); it must be copied before
	// queuing.
	KindTransient
	// KindFile is a file handle plus (start, length); the handle's
	// lifetime is arena-scoped and must be re-homed at transfer time.
	KindFile
	// KindProxy is a receiver-side handle into a still-queued sender
	// chunk. Only ever produced internally by Receive; never passed to
	// Send.
	KindProxy
	// KindUnknown is a chunk type the beam has no special knowledge of:
	// read now, hope the data stays stable for the chunk's lifetime.
	KindUnknown
)

// MetaKind distinguishes the three metadata markers.
type MetaKind int

const (
	MetaEOS MetaKind = iota
	MetaFlush
	MetaError
)

// Reader materializes the bytes behind an ArenaBound, Transient, or
// Unknown chunk. ReadChunk must be safe to call only from the goroutine
// that owns the originating arena; the beam never calls it from the
// other side.
type Reader interface {
	// ReadChunk returns the full payload. block selects whether the read
	// may block the calling goroutine (mirrors apr_read_type_e).
	ReadChunk(block bool) ([]byte, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(block bool) ([]byte, error)

func (f ReaderFunc) ReadChunk(block bool) ([]byte, error) { return f(block) }

// FileChunk describes a File kind chunk: an open handle plus the byte
// range within it that this chunk represents.
type FileChunk struct {
	File   ReadSeekCloser
	Start  int64
	Length int64
	// Pool is the arena that currently owns the handle's cleanup. Set-aside
	// (see append.go / transfer.go) updates this as the handle moves
	// between the sender and receiver arena.
	Pool *arena.Arena
	// Cleanup is the token for the hook currently registered on Pool that
	// closes File. Set-aside cancels it and registers a fresh one on the
	// destination arena.
	Cleanup arena.Cleanup
	// MmapDisabled is set on the receiver-side copy: mmap'ing a file whose
	// backing bytes can still change underneath a held pointer would
	// crash, so the materialized chunk on the receiver side disables it.
	MmapDisabled bool
}

// setaside re-homes f's cleanup from its current Pool onto dst: the Go
// analogue of apr_file_setaside. It cancels the hook on the old arena
// (if any) and registers a fresh one on dst that closes the handle.
func (f *FileChunk) setaside(dst *arena.Arena) {
	if f.Pool == dst {
		return
	}
	f.Cleanup.Cancel()
	f.Pool = dst
	f.Cleanup = dst.OnCleanup(func() {
		if f.File != nil {
			_ = f.File.Close()
		}
	})
}

// ReadSeekCloser is the minimal file-like handle the beam re-homes
// between arenas. *os.File satisfies it.
type ReadSeekCloser interface {
	Read(p []byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
	Close() error
}

// Chunk is the tagged union transported by a beam. Exactly one group of
// fields is meaningful, selected by Kind.
type Chunk struct {
	Kind   Kind
	Length int64 // LengthUnknown until determined

	// KindMeta
	Meta       MetaKind
	MetaStatus int
	MetaData   []byte

	// KindHeap
	Heap []byte

	// KindArenaBound / KindTransient / KindUnknown
	Read Reader

	// KindFile
	File *FileChunk

	// KindProxy (receiver-side only, produced by the beam itself)
	proxy *Proxy
	// ProxyOffset is this chunk's start within proxy's underlying bytes;
	// set when a receive-side split (transfer.go) hands out the tail of
	// a chunk that was only partially consumed by read_bytes.
	ProxyOffset int64
}

// ReadProxy returns the bytes a Proxy chunk represents: proxy's
// underlying payload sliced to [ProxyOffset, ProxyOffset+Length).
// Returns ErrConnectionReset if the sender's arena already destroyed
// the source chunk.
func (c *Chunk) ReadProxy() ([]byte, error) {
	return c.proxy.ReadRange(c.ProxyOffset, c.Length)
}

// Release drops this chunk's reference to its sender-side original, if
// any (§4.4 Proxy registry). Callers that received a KindProxy chunk
// from Receive must call Release once they are done reading it, so the
// sender chunk can move from hold_list to purge_list and, eventually,
// be destroyed. A no-op for every other chunk kind.
func (c *Chunk) Release() {
	if c.Kind == KindProxy && c.proxy != nil {
		c.proxy.Release()
	}
}

// NewEOS builds the end-of-stream metadata chunk.
func NewEOS() *Chunk { return &Chunk{Kind: KindMeta, Meta: MetaEOS} }

// NewFlush builds a flush metadata chunk.
func NewFlush() *Chunk { return &Chunk{Kind: KindMeta, Meta: MetaFlush} }

// NewErrorMeta builds an error metadata chunk carrying a status code and
// optional diagnostic data.
func NewErrorMeta(status int, data []byte) *Chunk {
	return &Chunk{Kind: KindMeta, Meta: MetaError, MetaStatus: status, MetaData: data}
}

// NewHeap wraps an immutable byte range already safe to share across
// goroutines.
func NewHeap(b []byte) *Chunk {
	return &Chunk{Kind: KindHeap, Length: int64(len(b)), Heap: b}
}

// NewTransient wraps a slice the caller may mutate or reuse once Send
// returns; the beam copies it before queuing.
func NewTransient(b []byte) *Chunk {
	return &Chunk{Kind: KindTransient, Length: int64(len(b)), Read: ReaderFunc(func(bool) ([]byte, error) {
		cp := make([]byte, len(b))
		copy(cp, b)
		return cp, nil
	})}
}

// NewArenaBound wraps a reader over storage that the sender's arena may
// reclaim at any time; it must be read before the arena's next cleanup
// cycle, which append.go guarantees by reading synchronously.
func NewArenaBound(length int64, r Reader) *Chunk {
	return &Chunk{Kind: KindArenaBound, Length: length, Read: r}
}

// NewUnknown wraps a reader of undetermined length and unknown stability
// guarantees.
func NewUnknown(r Reader) *Chunk {
	return &Chunk{Kind: KindUnknown, Length: LengthUnknown, Read: r}
}

// NewFile wraps a file handle and byte range.
func NewFile(f *FileChunk) *Chunk {
	length := f.Length
	return &Chunk{Kind: KindFile, Length: length, File: f}
}

// isData reports whether the chunk counts as real payload for flow
// control and FIFO purposes (i.e. not metadata).
func (c *Chunk) isData() bool { return c.Kind != KindMeta }
