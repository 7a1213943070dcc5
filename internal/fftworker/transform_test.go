package fftworker

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/dsp/fourier"
	"pgregory.net/rapid"
)

// Forward-then-inverse transform of a WINDOW_SIZE buffer with imag=0 must
// round-trip the real parts to within a small tolerance relative to the
// input's peak magnitude (sanity property for the transform layer itself,
// independent of windowing/worker plumbing).
func TestForwardInverseRoundTrips(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.SampledFrom([]int{8, 16, 64, 128}).Draw(t, "n")
		plan := fourier.NewCmplxFFT(n)

		in := make([]complex128, n)
		maxAbs := 0.0
		for i := range in {
			v := rapid.Float64Range(-10, 10).Draw(t, "sample")
			in[i] = complex(v, 0)
			if math.Abs(v) > maxAbs {
				maxAbs = math.Abs(v)
			}
		}

		coeffs := plan.Coefficients(nil, in)
		out := plan.Sequence(nil, coeffs)

		tol := 1e-4 * math.Max(maxAbs, 1)
		for i := range in {
			assert.InDelta(t, real(in[i]), real(out[i])/float64(n), tol)
		}
	})
}
