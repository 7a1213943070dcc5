// Package synth implements the cosine oscillator bank driven by the feedback
// controller and sampled by the render thread.
package synth

import (
	"math"
	"sync"
)

// oscillator is one channel's phase-continuous-within-an-update-epoch cosine
// generator. t resets to zero on every Update, so phase is expressed
// absolutely per update epoch rather than carried across updates.
type oscillator struct {
	t         float64
	freqHz    float64
	dt        float64
	amplitude float64
	phaseRad  float64
}

func (o *oscillator) next() float64 {
	v := math.Cos(2*math.Pi*o.freqHz*o.t+o.phaseRad) * o.amplitude
	o.t += o.dt
	return v
}

func (o *oscillator) update(amplitude, phaseRad float64) {
	o.amplitude = amplitude
	o.phaseRad = phaseRad
	o.t = 0
}

// RenderQueue holds one oscillator per channel. A single mutex serializes
// Next and Update so an Update is never torn across a single-sample fill,
// matching the render path's single-mutex discipline rather than adding a
// second lock for what is already a microsecond-scale critical section.
type RenderQueue struct {
	mu    sync.Mutex
	chans []oscillator
}

// New creates a RenderQueue for channelCount channels, each emitting
// targetFreqHz at the given sampleRateHz until the first Update.
func New(channelCount int, targetFreqHz float64, sampleRateHz uint32) *RenderQueue {
	chans := make([]oscillator, channelCount)
	dt := 1.0 / float64(sampleRateHz)
	for i := range chans {
		chans[i] = oscillator{freqHz: targetFreqHz, dt: dt}
	}
	return &RenderQueue{chans: chans}
}

// Next returns the next sample for channel ch and advances its phase clock.
// Called once per output sample by the render callback.
func (q *RenderQueue) Next(ch int) float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.chans[ch].next()
}

// Update atomically substitutes channel ch's (amplitude, phase) and resets
// its phase clock to zero. Called from the feedback controller.
func (q *RenderQueue) Update(ch int, amplitude, phaseRad float64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.chans[ch].update(amplitude, phaseRad)
}

// Amplitude reports channel ch's currently applied amplitude.
func (q *RenderQueue) Amplitude(ch int) float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.chans[ch].amplitude
}

// State reports channel ch's currently applied (amplitude, phase), used by
// the feedback controller's residual estimator to know what it believes is
// currently being injected.
func (q *RenderQueue) State(ch int) (amplitude, phaseRad float64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	o := q.chans[ch]
	return o.amplitude, o.phaseRad
}

// ChannelCount returns the number of channels.
func (q *RenderQueue) ChannelCount() int {
	return len(q.chans)
}
