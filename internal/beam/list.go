// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package beam

import "container/list"

// chunkList is a thin FIFO wrapper over container/list.List, used for
// sendList, holdList, and purgeList (§3). Each of the three lists only
// ever holds sender-side chunks; callers must already hold the beam
// lock.
type chunkList struct {
	l *list.List
}

func newChunkList() *chunkList { return &chunkList{l: list.New()} }

func (c *chunkList) pushBack(ch *Chunk) *list.Element { return c.l.PushBack(ch) }

func (c *chunkList) front() *list.Element { return c.l.Front() }

func (c *chunkList) popFront() (*Chunk, bool) {
	e := c.l.Front()
	if e == nil {
		return nil, false
	}
	c.l.Remove(e)
	return e.Value.(*Chunk), true
}

func (c *chunkList) remove(e *list.Element) *Chunk {
	return c.l.Remove(e).(*Chunk)
}

func (c *chunkList) len() int { return c.l.Len() }

// drain removes and returns every chunk currently queued, in order.
func (c *chunkList) drain() []*Chunk {
	out := make([]*Chunk, 0, c.l.Len())
	for {
		ch, ok := c.popFront()
		if !ok {
			break
		}
		out = append(out, ch)
	}
	return out
}
