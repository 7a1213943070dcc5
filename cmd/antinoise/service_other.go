//go:build !windows

package main

import "github.com/hollowcode/antinoise/internal/platform"

// newEndpointService backs non-Windows builds with the in-memory stub so the
// binary still links and runs (against a synthetic 1kHz tone) on platforms
// with no WASAPI, matching how the retrieval pack's audio examples keep a
// build free of platform-specific COM bindings outside their *_windows.go
// files.
func newEndpointService() (platform.EndpointService, error) {
	format := platform.WaveFormat{Channels: 2, SampleRate: 48000, BitsPerSample: 32}
	tone := platform.StubTone{FreqHz: 1000, Amplitude: 0.2}
	return platform.NewStubService(format, tone), nil
}
