// Package feedback implements the render-prepare stage: for each narrow-band
// FFT result it estimates the original, un-cancelled signal and pushes a new
// (amplitude, phase) target to the synthesizer so the next render period
// drives the captured signal further toward anti-phase.
package feedback

import (
	"math"
	"math/cmplx"
	"time"

	"github.com/hollowcode/antinoise/internal/fftworker"
	"github.com/hollowcode/antinoise/internal/synth"
)

// Controller holds the gating state (one entry per channel) and commits
// corrections directly into the shared RenderQueue.
type Controller struct {
	synth          *synth.RenderQueue
	windowSize     int
	windowDuration time.Duration
	bufferMs       float64
	targetBin      int // offset into a Result.Bins slice

	lastCheckIndex []int // -1 means "no accepted result yet" on that channel
	lastUpdateAt   []time.Time
}

// New creates a Controller that commits corrections to synth. windowSize and
// windowDuration gate on the non-overlapping-window rule; bufferMs is the
// settling latency added on top of windowDuration before a new correction is
// trusted. targetBin is the offset within a Result.Bins slice of the bin
// closest to the emitted tone.
func New(s *synth.RenderQueue, windowSize int, windowDuration time.Duration, bufferMs float64, targetBin int) *Controller {
	n := s.ChannelCount()
	last := make([]int, n)
	for i := range last {
		last[i] = -1
	}
	return &Controller{
		synth:          s,
		windowSize:     windowSize,
		windowDuration: windowDuration,
		bufferMs:       bufferMs,
		targetBin:      targetBin,
		lastCheckIndex: last,
		lastUpdateAt:   make([]time.Time, n),
	}
}

// Run consumes results, applying Process to each, until stop is closed. The
// results channel has multiple producers (one per FFT worker) so it is never
// closed; stop is the only termination signal.
func (c *Controller) Run(results <-chan fftworker.Result, stop <-chan struct{}) {
	for {
		select {
		case res := <-results:
			c.Process(res, time.Now())
		case <-stop:
			return
		}
	}
}

// Process applies the sparse-in-time and quiet-settling gates to res, and on
// acceptance estimates the residual and commits a new synthesizer target.
// now is passed explicitly so the gating logic is deterministically
// testable.
func (c *Controller) Process(res fftworker.Result, now time.Time) {
	if !c.accept(res.Chan, res.StartIndex, now) {
		return
	}
	if c.targetBin < 0 || c.targetBin >= len(res.Bins) {
		return
	}

	aCur, phiCur := c.synth.State(res.Chan)
	r := res.Bins[c.targetBin]
	magR, argR := cmplx.Abs(r), cmplx.Phase(r)

	sinDelta := magR*math.Sin(argR) - aCur*math.Sin(phiCur)
	cosDelta := magR*math.Cos(argR) - aCur*math.Cos(phiCur)

	aOrig := math.Hypot(sinDelta, cosDelta)
	// atan2, not atan: atan collapses quadrants, silently flipping the
	// correction's direction whenever cosDelta is negative.
	phiOrig := math.Atan2(sinDelta, cosDelta)

	phiNew := phiOrig + math.Pi
	c.synth.Update(res.Chan, aOrig, phiNew)

	c.lastCheckIndex[res.Chan] = res.StartIndex
	c.lastUpdateAt[res.Chan] = now
}

// accept reports whether a result at (chan, index) measured at now passes
// both gates: sparse-in-time (act once per non-overlapping window; the first
// ever result on a channel is accepted unconditionally) and quiet-settling
// (the correction must have had time to propagate through the render buffer
// before being trusted).
func (c *Controller) accept(ch, index int, now time.Time) bool {
	last := c.lastCheckIndex[ch]
	if last != -1 && index != last+c.windowSize {
		return false
	}
	if lastUpdate := c.lastUpdateAt[ch]; !lastUpdate.IsZero() {
		settled := lastUpdate.Add(time.Duration(c.bufferMs*float64(time.Millisecond)) + c.windowDuration)
		if now.Before(settled) {
			return false
		}
	}
	return true
}
