// Package config provides run-time configuration and CLI argument parsing for
// the anti-noise pipeline.
package config

import (
	"flag"
	"fmt"
	"runtime"
	"time"
)

// Params holds the timing constants the pipeline's core depends on. These are
// compile-time constants in the original source; here they are run-time
// configurable and the target-band bin indices are recomputed from the
// negotiated sample rate once the capture stream reports it (see Bins).
type Params struct {
	// FS is the nominal sample rate in Hz, used only until the capture
	// thread reports the negotiated mix format's actual rate.
	FS uint32

	// WindowSize is the number of samples per FFT window.
	WindowSize int

	// HopSize is the number of samples between successive FFT starts on a
	// given channel.
	HopSize int

	// MinTargetFreqHz and MaxTargetFreqHz bound the narrow band forwarded
	// from the FFT workers to the feedback controller.
	MinTargetFreqHz float64
	MaxTargetFreqHz float64

	// TargetFreqHz is the single tone frequency the synthesizer emits.
	TargetFreqHz float64

	// Workers is the size of the FFT worker pool. Minimum 2.
	Workers int

	// BufferMs is the settling-latency constant the feedback controller
	// waits out after each update before trusting a new measurement.
	BufferMs float64

	// RunDuration is how long the coordinator runs before stopping the
	// pipeline. Zero means run until externally cancelled.
	RunDuration time.Duration

	// Verbose enables additional per-stage logging.
	Verbose bool

	// ListDevices, when set by the CLI, prints active render endpoints and
	// exits instead of starting the pipeline.
	ListDevices bool
}

// WindowDuration returns the wall-clock duration a single FFT window spans at
// the nominal sample rate, used by the feedback controller's quiet-settling
// gate (BUFFER_MS + WINDOW_MS).
func (p Params) WindowDuration() time.Duration {
	return time.Duration(float64(p.WindowSize) / float64(p.FS) * float64(time.Second))
}

// Bins recomputes the inclusive [MIN_BIN, MAX_BIN] range for the negotiated
// sample rate sampleRateHz, addressing the open question that the original
// source hard-codes these as compile-time constants derived from a fixed FS.
// bin = freq * WindowSize / sampleRateHz.
func (p Params) Bins(sampleRateHz uint32) (min, max int) {
	binHz := float64(sampleRateHz) / float64(p.WindowSize)
	min = int(p.MinTargetFreqHz / binHz)
	max = int(p.MaxTargetFreqHz / binHz)
	if max < min {
		min, max = max, min
	}
	if nyquistBin := p.WindowSize/2 + 1 - 1; max > nyquistBin {
		max = nyquistBin
	}
	if min < 0 {
		min = 0
	}
	return min, max
}

// TargetBinOffset returns the index within a forwarded bin slice ([MIN_BIN,
// MAX_BIN]) closest to TargetFreqHz at the negotiated sample rate. The
// feedback controller uses this to pick which forwarded bin drives the
// residual estimate.
func (p Params) TargetBinOffset(sampleRateHz uint32) int {
	binHz := float64(sampleRateHz) / float64(p.WindowSize)
	target := int(p.TargetFreqHz / binHz)
	min, max := p.Bins(sampleRateHz)
	offset := target - min
	if offset < 0 {
		return 0
	}
	if offset > max-min {
		return max - min
	}
	return offset
}

// DefaultParams returns sensible defaults: a 48kHz nominal rate, a 1024-sample
// window with 512-sample hop (50% overlap), a narrow band around 1kHz, and a
// worker pool sized to the host's hardware threads (minimum 2).
func DefaultParams() *Params {
	return &Params{
		FS:              48000,
		WindowSize:      1024,
		HopSize:         512,
		MinTargetFreqHz: 950,
		MaxTargetFreqHz: 1050,
		TargetFreqHz:    1000,
		Workers:         workerDefault(),
		BufferMs:        1.0,
		RunDuration:     30 * time.Second,
	}
}

func workerDefault() int {
	n := runtime.NumCPU()
	if n < 2 {
		return 2
	}
	return n
}

// ParseFlags parses command-line flags and returns a Params, overriding the
// defaults from DefaultParams.
func ParseFlags(args []string) (*Params, error) {
	p := DefaultParams()

	fs := flag.NewFlagSet("antinoise", flag.ContinueOnError)
	fs.Func("sample-rate", "nominal sample rate in Hz (actual rate comes from the negotiated mix format)", func(s string) error {
		var n uint32
		if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
			return fmt.Errorf("invalid sample rate %q: %w", s, err)
		}
		p.FS = n
		return nil
	})
	fs.IntVar(&p.WindowSize, "window", p.WindowSize, "FFT window size in samples")
	fs.IntVar(&p.HopSize, "hop", p.HopSize, "hop size in samples between successive FFT starts")
	fs.Float64Var(&p.MinTargetFreqHz, "min-freq", p.MinTargetFreqHz, "lower edge of the target band in Hz")
	fs.Float64Var(&p.MaxTargetFreqHz, "max-freq", p.MaxTargetFreqHz, "upper edge of the target band in Hz")
	fs.Float64Var(&p.TargetFreqHz, "target-freq", p.TargetFreqHz, "frequency of the cosine the synthesizer emits")
	fs.IntVar(&p.Workers, "workers", p.Workers, "number of FFT worker goroutines (minimum 2)")
	fs.Float64Var(&p.BufferMs, "buffer-ms", p.BufferMs, "settling latency the feedback controller waits out after each update")
	fs.DurationVar(&p.RunDuration, "duration", p.RunDuration, "how long to run before stopping (0 = run until interrupted)")
	fs.BoolVar(&p.Verbose, "verbose", p.Verbose, "enable verbose per-stage logging")
	fs.BoolVar(&p.ListDevices, "list-devices", p.ListDevices, "print active render endpoints and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if p.Workers < 2 {
		p.Workers = 2
	}
	if p.HopSize <= 0 || p.HopSize > p.WindowSize {
		return nil, fmt.Errorf("invalid -hop %d: must be in (0, %d]", p.HopSize, p.WindowSize)
	}
	if p.MinTargetFreqHz <= 0 || p.MaxTargetFreqHz <= p.MinTargetFreqHz {
		return nil, fmt.Errorf("invalid target band [%.1f, %.1f]", p.MinTargetFreqHz, p.MaxTargetFreqHz)
	}

	return p, nil
}
