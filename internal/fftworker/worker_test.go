package fftworker

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hollowcode/antinoise/internal/ring"
	"github.com/hollowcode/antinoise/internal/sched"
)

func TestHannWindowEndpointsAreZero(t *testing.T) {
	w := HannWindow(9) // odd length, so one sample sits exactly at the centre
	assert.InDelta(t, 0, w[0], 1e-9)
	assert.InDelta(t, 0, w[len(w)-1], 1e-9)
	assert.InDelta(t, 1, w[len(w)/2], 1e-2, "the window's peak should sit near its center")
}

func TestHannWindowSingleSample(t *testing.T) {
	w := HannWindow(1)
	assert.Equal(t, []float64{1}, w)
}

func TestProcessExtractsTargetBand(t *testing.T) {
	const windowSize = 64
	r := ring.New(1)
	r.Lock()
	for i := 0; i < windowSize; i++ {
		t := float64(i) / float64(windowSize)
		r.Push(float32(math.Cos(2 * math.Pi * 4 * t))) // 4 cycles over the window
	}
	r.Unlock()

	hann := HannWindow(windowSize)
	w := New(0, windowSize, 2, 6, hann)

	r.RLock()
	res, ok := w.process(r, sched.WorkItem{Chan: 0, StartIndex: 0})
	r.RUnlock()

	assert.True(t, ok)
	assert.Len(t, res.Bins, 5)

	// Bin 4 (offset 2 within [2,6]) should carry nearly all the energy.
	peak := 0
	for i, b := range res.Bins {
		if cmplx.Abs(b) > cmplx.Abs(res.Bins[peak]) {
			peak = i
		}
	}
	assert.Equal(t, 2, peak)
}

func TestProcessRejectsUnavailableWindow(t *testing.T) {
	r := ring.New(1)
	r.Lock()
	r.Push(1)
	r.Unlock()

	hann := HannWindow(8)
	w := New(0, 8, 0, 0, hann)

	r.RLock()
	_, ok := w.process(r, sched.WorkItem{Chan: 0, StartIndex: 0})
	r.RUnlock()

	assert.False(t, ok)
}
