// Package platform declares the audio endpoint collaborator the pipeline
// depends on but never implements a concrete codec or COM stack inline: a
// real Windows backend and an in-memory stub satisfy the same interfaces,
// keeping every other package free of platform build tags.
package platform

import (
	"context"
	"time"
)

// ShareMode mirrors AUDCLNT_SHAREMODE.
type ShareMode int

const (
	ShareModeShared ShareMode = iota
	ShareModeExclusive
)

// StreamFlags mirrors the AUDCLNT_STREAMFLAGS bitfield, narrowed to the bits
// this pipeline cares about.
type StreamFlags uint32

const (
	StreamFlagLoopback StreamFlags = 1 << iota
	StreamFlagEventCallback
)

// ServiceKind selects which sub-interface GetService activates.
type ServiceKind int

const (
	ServiceCaptureClient ServiceKind = iota
	ServiceRenderClient
)

// BufferFlags mirrors AUDCLNT_BUFFERFLAGS, narrowed to the bits the capture
// and render loops branch on.
type BufferFlags uint32

const (
	BufferFlagSilent BufferFlags = 1 << iota
	BufferFlagDataDiscontinuity
)

// WaveFormat is the negotiated PCM format, independent of any COM struct
// layout.
type WaveFormat struct {
	Channels      int
	SampleRate    uint32
	BitsPerSample int
}

// Event is an opaque OS-level waitable handle; only the platform package
// constructs and waits on one.
type Event interface {
	Wait(ctx context.Context) error
	Close() error
}

// EndpointService resolves the active render endpoint the pipeline should
// loopback-capture and render anti-noise into.
type EndpointService interface {
	DefaultRenderEndpoint(ctx context.Context) (Device, error)
	// ListRenderEndpoints enumerates active render endpoints, used by the
	// CLI's diagnostic -list-devices mode.
	ListRenderEndpoints(ctx context.Context) ([]EndpointInfo, error)
}

// EndpointInfo is a human-readable summary of one render endpoint.
type EndpointInfo struct {
	ID   string
	Name string
}

// Device is an activated audio endpoint, not yet bound to a share mode.
type Device interface {
	ActivateClient(lowLatency bool) (Client, error)
	Close() error
}

// Client is an initialized audio client, shared by the capture and render
// paths (a loopback client is a capture client wrapping a render endpoint;
// the render path activates its own, separate client on the same endpoint).
type Client interface {
	DevicePeriod() (time.Duration, error)
	MixFormat() (WaveFormat, error)
	Initialize(mode ShareMode, flags StreamFlags, format WaveFormat) error
	GetService(kind ServiceKind) (any, error)
	Start() error
	Stop() error
	BufferSize() (uint32, error)
	CurrentPadding() (uint32, error)
	SetEventHandle(h Event) error
	Close() error
}

// CaptureClient reads interleaved PCM frames out of a loopback capture
// client's buffer.
type CaptureClient interface {
	NextPacketSize() (uint32, error)
	GetBuffer() (data []byte, frames uint32, flags BufferFlags, err error)
	ReleaseBuffer(frames uint32) error
}

// RenderClient writes interleaved PCM frames into a render client's buffer.
type RenderClient interface {
	GetBuffer(frames uint32) ([]byte, error)
	ReleaseBuffer(frames uint32, flags BufferFlags) error
}
