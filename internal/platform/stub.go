//go:build !windows

package platform

import (
	"context"
	"math"
	"sync"
	"time"
)

// StubService is an in-memory EndpointService backing scenario tests S4-S6 on
// non-Windows builds: DefaultRenderEndpoint always returns the same synthetic
// device, seeded with a tone the stub loopback path "captures" and a render
// path that records each ReleaseBuffer call.
type StubService struct {
	Format WaveFormat
	Tone   StubTone
}

// StubTone describes the synthetic signal a stub capture client emits.
type StubTone struct {
	FreqHz    float64
	Amplitude float64
}

// NewStubService creates a StubService emitting a single cosine tone at format.
func NewStubService(format WaveFormat, tone StubTone) *StubService {
	return &StubService{Format: format, Tone: tone}
}

func (s *StubService) DefaultRenderEndpoint(ctx context.Context) (Device, error) {
	return &stubDevice{service: s}, nil
}

func (s *StubService) ListRenderEndpoints(ctx context.Context) ([]EndpointInfo, error) {
	return []EndpointInfo{{ID: "stub-0", Name: "Stub Render Endpoint"}}, nil
}

type stubDevice struct {
	service *StubService
}

func (d *stubDevice) ActivateClient(lowLatency bool) (Client, error) {
	return &stubClient{service: d.service}, nil
}

func (d *stubDevice) Close() error { return nil }

type stubClient struct {
	mu      sync.Mutex
	service *StubService
	format  WaveFormat
	started bool
	samples uint64 // frames emitted by capture packets so far, for tone phase continuity

	// RenderedFrames records one entry per render ReleaseBuffer call, for test
	// assertions: the frame count and the flags, each truncated to a byte.
	// Captured under mu.
	RenderedFrames [][]byte
}

func (c *stubClient) DevicePeriod() (time.Duration, error) {
	return 10 * time.Millisecond, nil
}

func (c *stubClient) MixFormat() (WaveFormat, error) {
	return c.service.Format, nil
}

func (c *stubClient) Initialize(mode ShareMode, flags StreamFlags, format WaveFormat) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.format = format
	return nil
}

func (c *stubClient) GetService(kind ServiceKind) (any, error) {
	switch kind {
	case ServiceCaptureClient:
		return &stubCaptureClient{client: c}, nil
	case ServiceRenderClient:
		return &stubRenderClient{client: c}, nil
	default:
		return nil, nil
	}
}

func (c *stubClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	return nil
}

func (c *stubClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
	return nil
}

func (c *stubClient) BufferSize() (uint32, error) {
	return uint32(c.service.Format.SampleRate / 5), nil // 200ms buffer, in frames
}

func (c *stubClient) CurrentPadding() (uint32, error) {
	return 0, nil
}

func (c *stubClient) SetEventHandle(h Event) error {
	return nil
}

func (c *stubClient) Close() error { return nil }

type stubCaptureClient struct {
	client *stubClient
	served bool // whether the last NextPacketSize call reported a packet
}

// stubCapturePacketFrames is the fixed packet size the stub hands back on
// every NextPacketSize/GetBuffer pair, large enough to exercise the queueing
// thread's batching without special-casing test code.
const stubCapturePacketFrames = 480

// NextPacketSize alternates between one ready packet and none, so a capture
// loop that drains until the size is 0 receives one packet per poll.
func (c *stubCaptureClient) NextPacketSize() (uint32, error) {
	c.served = !c.served
	if !c.served {
		return 0, nil
	}
	return stubCapturePacketFrames, nil
}

func (c *stubCaptureClient) GetBuffer() (data []byte, frames uint32, flags BufferFlags, err error) {
	c.client.mu.Lock()
	defer c.client.mu.Unlock()

	format := c.client.format
	tone := c.client.service.Tone
	channels := format.Channels
	frames = stubCapturePacketFrames

	buf := make([]byte, 0, int(frames)*channels*4)
	for i := uint32(0); i < frames; i++ {
		t := float64(c.client.samples+uint64(i)) / float64(format.SampleRate)
		v := float32(tone.Amplitude * math.Cos(2*math.Pi*tone.FreqHz*t))
		for ch := 0; ch < channels; ch++ {
			buf = appendFloat32LE(buf, v)
		}
	}
	c.client.samples += uint64(frames)
	return buf, frames, 0, nil
}

func (c *stubCaptureClient) ReleaseBuffer(frames uint32) error {
	return nil
}

type stubRenderClient struct {
	client *stubClient
}

func (r *stubRenderClient) GetBuffer(frames uint32) ([]byte, error) {
	channels := r.client.format.Channels
	return make([]byte, int(frames)*channels*4), nil
}

func (r *stubRenderClient) ReleaseBuffer(frames uint32, flags BufferFlags) error {
	r.client.mu.Lock()
	defer r.client.mu.Unlock()
	r.client.RenderedFrames = append(r.client.RenderedFrames, []byte{byte(frames), byte(flags)})
	return nil
}

func appendFloat32LE(buf []byte, v float32) []byte {
	bits := math.Float32bits(v)
	return append(buf, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
}

// NewEvent creates a software event for non-Windows builds: nothing ever
// signals it, so Wait returns only when its context ends. The render loop
// waits on it with a timeout and re-checks its stop signal after each
// timeout; the capture loop paces itself with a ticker and uses no event.
func NewEvent() (Event, error) {
	return &stubEvent{ch: make(chan struct{})}, nil
}

type stubEvent struct {
	ch chan struct{}
}

func (e *stubEvent) Wait(ctx context.Context) error {
	select {
	case <-e.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *stubEvent) Close() error {
	return nil
}
