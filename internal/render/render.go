// Package render implements the render thread: it opens an event-callback
// render stream on the default endpoint and fills it from the synthesizer's
// per-channel oscillators.
package render

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/hollowcode/antinoise/internal/guard"
	"github.com/hollowcode/antinoise/internal/perr"
	"github.com/hollowcode/antinoise/internal/platform"
	"github.com/hollowcode/antinoise/internal/synth"
)

const stage = "render"

// feedMePollInterval bounds how long a single feed-me wait blocks before the
// loop re-checks stop. A real WASAPI event fires well inside this window;
// it only acts as a polling period on backends (including the stub used by
// tests) where nothing ever signals the event.
const feedMePollInterval = 50 * time.Millisecond

// Renderer drives the anti-noise playback stream from a RenderQueue.
type Renderer struct {
	service  platform.EndpointService
	synth    *synth.RenderQueue
	isSilent func() bool // external silence override, checked every buffer
}

// New creates a Renderer that fills buffers from q. isSilent, if non-nil, is
// consulted every buffer to force a SILENT release even when samples were
// produced (e.g. a user-facing mute toggle); a nil isSilent never forces
// silence.
func New(service platform.EndpointService, q *synth.RenderQueue, isSilent func() bool) *Renderer {
	if isSilent == nil {
		isSilent = func() bool { return false }
	}
	return &Renderer{service: service, synth: q, isSilent: isSilent}
}

// Run renders until stop is closed or a fatal error occurs.
func (r *Renderer) Run(ctx context.Context, format platform.WaveFormat, stop <-chan struct{}) error {
	chain := &guard.Chain{}
	defer chain.Close()

	dev, err := r.service.DefaultRenderEndpoint(ctx)
	if err != nil {
		return perr.Stage(stage, err)
	}
	chain.Add(guard.New("device", dev.Close))

	client, err := dev.ActivateClient(false)
	if err != nil {
		return perr.Stage(stage, err)
	}
	chain.Add(guard.New("audio client", client.Close))

	if err := client.Initialize(platform.ShareModeShared, platform.StreamFlagEventCallback, format); err != nil {
		return perr.Stage(stage, err)
	}

	feedMe, err := platform.NewEvent()
	if err != nil {
		return perr.Stage(stage, err)
	}
	chain.Add(guard.New("feed-me event", feedMe.Close))

	if err := client.SetEventHandle(feedMe); err != nil {
		return perr.Stage(stage, err)
	}

	svc, err := client.GetService(platform.ServiceRenderClient)
	if err != nil {
		return perr.Stage(stage, err)
	}
	renClient, ok := svc.(platform.RenderClient)
	if !ok {
		return perr.Stage(stage, perr.ErrProtocol)
	}

	bufferSize, err := client.BufferSize()
	if err != nil {
		return perr.Stage(stage, err)
	}
	if err := r.prefillSilence(renClient, bufferSize, format); err != nil {
		return perr.Stage(stage, err)
	}

	if err := client.Start(); err != nil {
		return perr.Stage(stage, err)
	}
	chain.Add(guard.New("audio stream", client.Stop))

	for {
		select {
		case <-stop:
			return nil
		default:
		}

		waitCtx, cancel := context.WithTimeout(ctx, feedMePollInterval)
		err := feedMe.Wait(waitCtx)
		cancel()
		if err != nil {
			select {
			case <-stop:
				return nil
			default:
			}
			continue
		}

		if err := r.fillOnce(client, renClient, bufferSize, format); err != nil {
			return perr.Stage(stage, err)
		}
	}
}

func (r *Renderer) prefillSilence(renClient platform.RenderClient, bufferSize uint32, format platform.WaveFormat) error {
	data, err := renClient.GetBuffer(bufferSize)
	if err != nil {
		return err
	}
	for i := range data {
		data[i] = 0
	}
	return renClient.ReleaseBuffer(bufferSize, platform.BufferFlagSilent)
}

func (r *Renderer) fillOnce(client platform.Client, renClient platform.RenderClient, bufferSize uint32, format platform.WaveFormat) error {
	padding, err := client.CurrentPadding()
	if err != nil {
		return err
	}
	available := bufferSize - padding
	if available == 0 {
		log.Printf("🔈 render: buffer full, skipping this period")
		return nil
	}

	data, err := renClient.GetBuffer(available)
	if err != nil {
		return err
	}

	produced := false
	bytesPerSample := format.BitsPerSample / 8
	for f := 0; f < int(available); f++ {
		for ch := 0; ch < format.Channels; ch++ {
			sample := r.synth.Next(ch)
			if sample != 0 {
				produced = true
			}
			off := (f*format.Channels + ch) * bytesPerSample
			encodeFloat32LE(data[off:off+bytesPerSample], float32(sample))
		}
	}

	flags := platform.BufferFlags(0)
	if !produced || r.isSilent() {
		flags = platform.BufferFlagSilent
	}
	return renClient.ReleaseBuffer(available, flags)
}

func encodeFloat32LE(dst []byte, v float32) {
	bits := math.Float32bits(v)
	dst[0] = byte(bits)
	dst[1] = byte(bits >> 8)
	dst[2] = byte(bits >> 16)
	dst[3] = byte(bits >> 24)
}
