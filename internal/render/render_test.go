package render

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hollowcode/antinoise/internal/platform"
	"github.com/hollowcode/antinoise/internal/synth"
)

// fakeRenderClient records the flags passed to ReleaseBuffer so tests can
// assert on the SILENT bit directly, rather than only on fillOnce's error.
type fakeRenderClient struct {
	data         []byte
	releaseFlags platform.BufferFlags
	released     bool
}

func (f *fakeRenderClient) GetBuffer(frames uint32) ([]byte, error) {
	f.data = make([]byte, int(frames)*4)
	return f.data, nil
}

func (f *fakeRenderClient) ReleaseBuffer(frames uint32, flags platform.BufferFlags) error {
	f.releaseFlags = flags
	f.released = true
	return nil
}

func TestFillOnceMarksSilentWhenAmplitudeZero(t *testing.T) {
	format := platform.WaveFormat{Channels: 1, SampleRate: 48000, BitsPerSample: 32}
	svc := platform.NewStubService(format, platform.StubTone{})

	dev, err := svc.DefaultRenderEndpoint(context.Background())
	assert.NoError(t, err)
	client, err := dev.ActivateClient(false)
	assert.NoError(t, err)
	assert.NoError(t, client.Initialize(platform.ShareModeShared, platform.StreamFlagEventCallback, format))

	renClient := &fakeRenderClient{}

	q := synth.New(1, 1000, 48000) // amplitude defaults to zero until Update
	r := New(svc, q, nil)

	assert.NoError(t, r.fillOnce(client, renClient, 128, format))
	assert.True(t, renClient.released)
	assert.NotZero(t, renClient.releaseFlags&platform.BufferFlagSilent, "a zero-amplitude buffer must be released SILENT")
}

func TestFillOnceClearsSilentWhenAmplitudeNonZero(t *testing.T) {
	format := platform.WaveFormat{Channels: 1, SampleRate: 48000, BitsPerSample: 32}
	svc := platform.NewStubService(format, platform.StubTone{})

	dev, _ := svc.DefaultRenderEndpoint(context.Background())
	client, _ := dev.ActivateClient(false)
	_ = client.Initialize(platform.ShareModeShared, platform.StreamFlagEventCallback, format)

	renClient := &fakeRenderClient{}

	q := synth.New(1, 1000, 48000)
	q.Update(0, 0.5, 0)
	r := New(svc, q, nil)

	assert.NoError(t, r.fillOnce(client, renClient, 128, format))
	assert.True(t, renClient.released)
	assert.Zero(t, renClient.releaseFlags&platform.BufferFlagSilent, "a nonzero-amplitude buffer must not be released SILENT")
}

func TestIsSilentOverrideForcesSilenceEvenWithSignal(t *testing.T) {
	format := platform.WaveFormat{Channels: 1, SampleRate: 48000, BitsPerSample: 32}
	svc := platform.NewStubService(format, platform.StubTone{})

	dev, _ := svc.DefaultRenderEndpoint(context.Background())
	client, _ := dev.ActivateClient(false)
	_ = client.Initialize(platform.ShareModeShared, platform.StreamFlagEventCallback, format)

	renClient := &fakeRenderClient{}

	q := synth.New(1, 1000, 48000)
	q.Update(0, 0.5, 0)
	r := New(svc, q, func() bool { return true })

	assert.NoError(t, r.fillOnce(client, renClient, 128, format))
	assert.True(t, renClient.released)
	assert.NotZero(t, renClient.releaseFlags&platform.BufferFlagSilent, "the isSilent override must force SILENT even with a nonzero-amplitude signal")
}
