// Package capture implements the capture thread: it loopback-captures the
// default render endpoint's mix, force-negotiates IEEE-float 32-bit, and
// forwards interleaved samples to the queueing thread.
package capture

import (
	"context"
	"math"
	"time"

	"github.com/hollowcode/antinoise/internal/guard"
	"github.com/hollowcode/antinoise/internal/perr"
	"github.com/hollowcode/antinoise/internal/platform"
	"github.com/hollowcode/antinoise/internal/wire"
)

const stage = "capture"

// Capturer drives a loopback capture stream and publishes samples and the
// negotiated wave format.
type Capturer struct {
	service    platform.EndpointService
	lowLatency bool

	// Format publishes the negotiated wave format exactly once, as soon as
	// it is known, unblocking every downstream component sized by channel
	// count or sample rate.
	Format *wire.Once[platform.WaveFormat]
	// Started is closed once the audio client has begun streaming,
	// satisfying the coordinator's WaitStart -> Running transition.
	Started chan struct{}
	// Samples carries interleaved float32 frames in capture order; the
	// queueing thread relies on that order to demultiplex by channel.
	Samples chan float32

	// firstPacket gates the DATA_DISCONTINUITY check: fatal only on the very
	// first packet of a run, ignored afterwards.
	firstPacket bool
}

// New creates a Capturer against the given endpoint service.
func New(service platform.EndpointService, lowLatency bool) *Capturer {
	return &Capturer{
		service:     service,
		lowLatency:  lowLatency,
		Format:      wire.NewOnce[platform.WaveFormat](),
		Started:     make(chan struct{}),
		Samples:     make(chan float32, 4096),
		firstPacket: true,
	}
}

// Run captures until stop is closed, or a fatal error occurs. It always
// closes Samples on return so the queueing thread observes termination.
func (c *Capturer) Run(ctx context.Context, stop <-chan struct{}) error {
	defer close(c.Samples)

	chain := &guard.Chain{}
	defer chain.Close()

	dev, err := c.service.DefaultRenderEndpoint(ctx)
	if err != nil {
		return perr.Stage(stage, err)
	}
	chain.Add(guard.New("device", dev.Close))

	client, err := dev.ActivateClient(c.lowLatency)
	if err != nil {
		return perr.Stage(stage, err)
	}
	chain.Add(guard.New("audio client", client.Close))

	period, err := client.DevicePeriod()
	if err != nil {
		return perr.Stage(stage, err)
	}

	format, err := client.MixFormat()
	if err != nil {
		return perr.Stage(stage, err)
	}
	format.BitsPerSample = 32 // force IEEE-float 32-bit per spec

	if err := client.Initialize(platform.ShareModeShared, platform.StreamFlagLoopback, format); err != nil {
		return perr.Stage(stage, err)
	}

	c.Format.Publish(format)

	svc, err := client.GetService(platform.ServiceCaptureClient)
	if err != nil {
		return perr.Stage(stage, err)
	}
	capClient, ok := svc.(platform.CaptureClient)
	if !ok {
		return perr.Stage(stage, perr.ErrProtocol)
	}

	if err := client.Start(); err != nil {
		return perr.Stage(stage, err)
	}
	chain.Add(guard.New("audio stream", client.Stop))
	close(c.Started)

	ticker := time.NewTicker(period / 2)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
		}

		if err := c.drain(capClient, format); err != nil {
			return perr.Stage(stage, err)
		}
	}
}

// drain reads every ready packet off capClient and forwards its samples.
func (c *Capturer) drain(capClient platform.CaptureClient, format platform.WaveFormat) error {
	for {
		n, err := capClient.NextPacketSize()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		data, frames, flags, err := capClient.GetBuffer()
		if err != nil {
			return err
		}
		if frames == 0 {
			return perr.ErrProtocol
		}

		// DATA_DISCONTINUITY is fatal only on the very first packet of a run,
		// ignored afterwards: it's an enforced sanity check that the stream
		// actually started clean, not a guarantee held for its lifetime.
		if flags&platform.BufferFlagDataDiscontinuity != 0 && c.firstPacket {
			return perr.ErrProtocol
		}
		c.firstPacket = false

		if flags&platform.BufferFlagSilent == 0 {
			c.pushInterleaved(data, int(frames), format.Channels)
		} else {
			c.pushSilence(int(frames), format.Channels)
		}

		if err := capClient.ReleaseBuffer(frames); err != nil {
			return err
		}
	}
}

func (c *Capturer) pushInterleaved(data []byte, frames, channels int) {
	for i := 0; i < frames*channels; i++ {
		off := i * 4
		if off+4 > len(data) {
			return
		}
		c.Samples <- decodeFloat32LE(data[off : off+4])
	}
}

func (c *Capturer) pushSilence(frames, channels int) {
	for i := 0; i < frames*channels; i++ {
		c.Samples <- 0
	}
}

func decodeFloat32LE(b []byte) float32 {
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits)
}
