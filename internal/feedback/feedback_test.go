package feedback

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/hollowcode/antinoise/internal/fftworker"
	"github.com/hollowcode/antinoise/internal/synth"
)

func TestFirstResultAcceptedUnconditionally(t *testing.T) {
	s := synth.New(1, 1000, 48000)
	c := New(s, 1024, 21*time.Millisecond, 1.0, 0)

	res := fftworker.Result{Chan: 0, StartIndex: 777, Bins: []complex128{complex(1, 0)}}
	c.Process(res, time.Unix(0, 0))

	assert.Equal(t, 777, c.lastCheckIndex[0])
	assert.False(t, c.lastUpdateAt[0].IsZero())
}

func TestSparseInTimeGateRejectsOverlappingWindow(t *testing.T) {
	s := synth.New(1, 1000, 48000)
	c := New(s, 1024, 21*time.Millisecond, 1.0, 0)

	now := time.Unix(100, 0)
	c.Process(fftworker.Result{Chan: 0, StartIndex: 0, Bins: []complex128{1}}, now)

	aBefore, phiBefore := s.State(0)

	// Overlapping window (not a full WINDOW_SIZE hop past the last accepted
	// index) must be rejected even though enough time has passed.
	later := now.Add(time.Second)
	c.Process(fftworker.Result{Chan: 0, StartIndex: 512, Bins: []complex128{complex(5, 5)}}, later)

	aAfter, phiAfter := s.State(0)
	assert.Equal(t, aBefore, aAfter)
	assert.Equal(t, phiBefore, phiAfter)
}

func TestQuietSettlingGateRejectsTooSoon(t *testing.T) {
	s := synth.New(1, 1000, 48000)
	c := New(s, 1024, 21*time.Millisecond, 1.0, 0)

	now := time.Unix(100, 0)
	c.Process(fftworker.Result{Chan: 0, StartIndex: 0, Bins: []complex128{1}}, now)
	aBefore, phiBefore := s.State(0)

	// Next non-overlapping window, but arriving before BUFFER_MS+WINDOW_MS
	// has elapsed: must be rejected.
	tooSoon := now.Add(time.Microsecond)
	c.Process(fftworker.Result{Chan: 0, StartIndex: 1024, Bins: []complex128{complex(9, 9)}}, tooSoon)

	aAfter, phiAfter := s.State(0)
	assert.Equal(t, aBefore, aAfter)
	assert.Equal(t, phiBefore, phiAfter)
}

func TestResidualEstimationUsesAtan2ForQuadrant(t *testing.T) {
	s := synth.New(1, 1000, 48000)
	c := New(s, 1024, 21*time.Millisecond, 1.0, 0)

	// Currently injecting nothing, so the residual is exactly the
	// measurement itself; place it in the quadrant where cosDelta < 0 to
	// exercise atan2's quadrant disambiguation.
	r := complex(-3.0, 4.0) // |r|=5, arg ~ 2.214 rad
	c.Process(fftworker.Result{Chan: 0, StartIndex: 0, Bins: []complex128{r}}, time.Unix(0, 0))

	a, phi := s.State(0)
	assert.InDelta(t, 5.0, a, 1e-9)
	wantPhi := math.Atan2(4.0, -3.0) + math.Pi
	assert.InDelta(t, wantPhi, phi, 1e-9)
}

// The measured bin is modeled as the sum of the (unknown) original signal and
// whatever the synthesizer is currently injecting. For any such original
// amplitude/phase and any currently-injected amplitude/phase, the residual
// estimator must recover the original amplitude and phase to within 1e-5.
func TestResidualEstimatorRecoversOriginalSignal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		aOrig := rapid.Float64Range(0, 10).Draw(t, "aOrig")
		phiOrig := rapid.Float64Range(-math.Pi, math.Pi).Draw(t, "phiOrig")
		aCur := rapid.Float64Range(0, 10).Draw(t, "aCur")
		phiCur := rapid.Float64Range(-math.Pi, math.Pi).Draw(t, "phiCur")

		s := synth.New(1, 1000, 48000)
		s.Update(0, aCur, phiCur)
		c := New(s, 1024, 21*time.Millisecond, 1.0, 0)

		re := aOrig*math.Cos(phiOrig) + aCur*math.Cos(phiCur)
		im := aOrig*math.Sin(phiOrig) + aCur*math.Sin(phiCur)
		r := complex(re, im)

		c.Process(fftworker.Result{Chan: 0, StartIndex: 0, Bins: []complex128{r}}, time.Unix(0, 0))

		aGot, phiGot := s.State(0)
		assert.InDelta(t, aOrig, aGot, 1e-5)

		wantPhi := phiOrig + math.Pi
		gotDelta := math.Mod(phiGot-wantPhi+3*math.Pi, 2*math.Pi) - math.Pi
		if aOrig > 1e-6 {
			assert.InDelta(t, 0, gotDelta, 1e-5)
		}
	})
}

func TestOutOfRangeTargetBinIsIgnored(t *testing.T) {
	s := synth.New(1, 1000, 48000)
	c := New(s, 1024, 21*time.Millisecond, 1.0, 5)

	c.Process(fftworker.Result{Chan: 0, StartIndex: 0, Bins: []complex128{1, 2, 3}}, time.Unix(0, 0))

	a, _ := s.State(0)
	assert.Equal(t, 0.0, a, "an out-of-range target bin must leave the synthesizer untouched")
}
