// Package queue implements the queueing thread: it demultiplexes an
// interleaved sample stream into the per-channel sample ring, publishing a
// batch at a time under the ring's writer lock.
package queue

import (
	"sync/atomic"

	"github.com/hollowcode/antinoise/internal/ring"
)

// Queue buffers incoming interleaved float32 samples into a local staging
// slice and flushes it into the ring once the staging slice reaches a
// threshold: WindowSize*channels during initial priming, then HopSize*
// channels in steady state. Each flush updates TotalLength (in frames, not
// samples) and signals Ready so the FFT scheduler can re-check its dispatch
// condition without waiting on a worker's End token.
type Queue struct {
	ring        *ring.FftQueue
	channels    int
	windowSize  int
	hopSize     int
	staging     []float32
	primed      bool
	totalLength atomic.Uint64

	// Ready is signalled (non-blocking, coalesced) after every successful
	// flush so the FFT scheduler can re-evaluate its dispatch condition.
	Ready chan struct{}
}

// New creates a Queue writing into r.
func New(r *ring.FftQueue, channels, windowSize, hopSize int) *Queue {
	return &Queue{
		ring:       r,
		channels:   channels,
		windowSize: windowSize,
		hopSize:    hopSize,
		Ready:      make(chan struct{}, 1),
	}
}

// TotalLength returns the cumulative number of frames published to the ring.
func (q *Queue) TotalLength() uint64 {
	return q.totalLength.Load()
}

// Run consumes samples until the channel is closed, demultiplexing them into
// the ring in batches. Dropping the sender (closing samples) drains the loop
// and lets Run return; any trailing partial batch is flushed unconditionally
// so no samples are silently dropped on shutdown.
func (q *Queue) Run(samples <-chan float32) {
	for s := range samples {
		q.staging = append(q.staging, s)
		q.drainThresholds()
	}
	q.flush(len(q.staging), true)
}

// threshold returns the staging-buffer size (in samples, across all
// channels) that triggers a flush: WindowSize*C while priming, HopSize*C once
// primed.
func (q *Queue) threshold() int {
	if !q.primed {
		return q.windowSize * q.channels
	}
	return q.hopSize * q.channels
}

// drainThresholds flushes as many whole threshold-sized batches as the
// staging buffer currently holds.
func (q *Queue) drainThresholds() {
	for {
		t := q.threshold()
		if t <= 0 || len(q.staging) < t {
			return
		}
		if !q.flush(t, false) {
			return // writer lock unavailable; retry on the next sample or close
		}
	}
}

// flush publishes the first n samples of the staging buffer into the ring.
// blocking selects whether to block for the writer lock (priming, and the
// final forced flush on shutdown) or use TryLock (steady state), per the
// spec's back-pressure rule that a reader holding the lock must never stall
// ingestion. Returns false only when TryLock failed; the batch is left
// staged for a later attempt.
func (q *Queue) flush(n int, blocking bool) bool {
	if n == 0 {
		return true
	}
	if blocking || !q.primed {
		q.ring.Lock()
	} else if !q.ring.TryLock() {
		return false
	}

	for _, s := range q.staging[:n] {
		q.ring.Push(s)
	}
	q.ring.Unlock()

	q.totalLength.Add(uint64(n / q.channels))
	q.staging = append(q.staging[:0], q.staging[n:]...)
	q.primed = true

	select {
	case q.Ready <- struct{}{}:
	default:
	}
	return true
}
