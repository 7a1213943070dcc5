// Package perr defines the pipeline's error taxonomy and stage tagging.
//
// Every goroutine in the pipeline wraps the error it returns to its join point
// with Stage so the coordinator's first-error-wins propagation carries a short
// tag identifying which component failed (capture, render, fft, feedback, ...).
package perr

import (
	"errors"
	"fmt"
)

// Sentinel errors for the taxonomy described in the pipeline's error handling
// design. Use errors.Is against these to classify a returned error.
var (
	// ErrAudioPlatform marks any failure from the external audio endpoint
	// service: activation, buffer access, start/stop. Always fatal.
	ErrAudioPlatform = errors.New("audio platform error")

	// ErrTiming marks a waitable timer or wait call returning an unexpected
	// code. Always fatal.
	ErrTiming = errors.New("timing error")

	// ErrProtocol marks GetBuffer returning zero frames, or a first-packet
	// data discontinuity when that check is enabled. Always fatal.
	ErrProtocol = errors.New("protocol error")

	// ErrChannelSend marks a downstream receiver going away while its
	// producer is still live. The coordinator returns it when the pipeline
	// stops before the capture thread has published the wave format.
	ErrChannelSend = errors.New("channel send error")

	// ErrLockPoisoned should be unreachable under the pipeline's invariants;
	// observing it is treated as an abort.
	ErrLockPoisoned = errors.New("lock poisoned")
)

// Stage wraps err with a short stage tag (e.g. "capture", "render", "fft",
// "feedback", "queue", "sched") so the coordinator can report a one-line,
// stage-tagged error as specified by the pipeline's error handling design.
// Returns nil if err is nil.
func Stage(stage string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", stage, err)
}
