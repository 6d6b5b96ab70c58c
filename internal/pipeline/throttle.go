// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package pipeline

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/nishisan-dev/bucketbeam/internal/beam"
)

// maxBurstSize caps a single reservation so one oversized chunk doesn't
// demand an enormous burst allowance, same rationale as the teacher's
// ThrottledWriter.
const maxBurstSize = 256 * 1024

// ThrottledProducer paces a beam's OnProduced callback against a
// bytes/sec budget: the producer keeps calling Send as fast as flow
// control allows, but Attach installs an OnProduced hook that blocks
// further production once more bytes have gone out than the rate
// allows. This is the beam-callback analogue of the teacher's
// ThrottledWriter wrapping an io.Writer.
type ThrottledProducer struct {
	limiter *rate.Limiter
	ctx     context.Context
}

// NewThrottledProducer builds a limiter for bytesPerSec; bytesPerSec <=
// 0 disables throttling (Attach becomes a no-op).
func NewThrottledProducer(ctx context.Context, bytesPerSec int64) *ThrottledProducer {
	if bytesPerSec <= 0 {
		return &ThrottledProducer{ctx: ctx}
	}
	burst := int(bytesPerSec)
	if burst > maxBurstSize {
		burst = maxBurstSize
	}
	return &ThrottledProducer{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		ctx:     ctx,
	}
}

// Attach installs an OnProduced callback on b that waits for the
// limiter to admit each reported delta before returning, pacing the
// sender's next wait_for_space cycle (§4.1 calls OnProduced
// synchronously under the beam lock before sleeping). Callbacks run
// under the beam lock, so WaitN's wall-clock wait holds it for the
// throttle interval; this only stalls a receiver that's trying to
// acquire the same lock concurrently, not the pacing itself, but it is
// added latency worth knowing about on a heavily-contended beam.
func (t *ThrottledProducer) Attach(b *beam.Beam) {
	if t.limiter == nil {
		return
	}
	b.OnProduced(func(delta int64) {
		n := int(delta)
		for n > 0 {
			chunk := n
			if chunk > t.limiter.Burst() {
				chunk = t.limiter.Burst()
			}
			if err := t.limiter.WaitN(t.ctx, chunk); err != nil {
				return
			}
			n -= chunk
		}
	})
}
