//go:build windows

package platform

import (
	"context"
	"fmt"
	"runtime"
	"time"
	"unsafe"

	"github.com/go-ole/go-ole"
	"github.com/moutend/go-wca/pkg/wca"
	"golang.org/x/sys/windows"
)

// wasapiService resolves the default render endpoint through an
// IMMDeviceEnumerator, grounded on the vtable-call sequence shown in the
// retrieval pack's hand-rolled loopback capturer, but routed through go-wca's
// typed COM bindings instead of raw syscalls.
type wasapiService struct {
	enumerator *wca.IMMDeviceEnumerator
}

// NewEndpointService initializes COM on the calling goroutine (which must
// stay locked to its OS thread for the service's lifetime) and returns an
// EndpointService backed by WASAPI.
func NewEndpointService() (EndpointService, error) {
	runtime.LockOSThread()
	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		return nil, fmt.Errorf("CoInitializeEx: %w", err)
	}

	var enumerator *wca.IMMDeviceEnumerator
	if err := wca.CoCreateInstance(
		wca.CLSID_MMDeviceEnumerator,
		0,
		wca.CLSCTX_ALL,
		wca.IID_IMMDeviceEnumerator,
		&enumerator,
	); err != nil {
		ole.CoUninitialize()
		return nil, fmt.Errorf("CoCreateInstance IMMDeviceEnumerator: %w", err)
	}
	return &wasapiService{enumerator: enumerator}, nil
}

func (s *wasapiService) DefaultRenderEndpoint(ctx context.Context) (Device, error) {
	var dev *wca.IMMDevice
	if err := s.enumerator.GetDefaultAudioEndpoint(wca.ERender, wca.EConsole, &dev); err != nil {
		return nil, fmt.Errorf("GetDefaultAudioEndpoint: %w", err)
	}
	return &wasapiDevice{dev: dev}, nil
}

func (s *wasapiService) ListRenderEndpoints(ctx context.Context) ([]EndpointInfo, error) {
	var collection *wca.IMMDeviceCollection
	if err := s.enumerator.EnumAudioEndpoints(wca.ERender, wca.DEVICE_STATE_ACTIVE, &collection); err != nil {
		return nil, fmt.Errorf("EnumAudioEndpoints: %w", err)
	}
	defer collection.Release()

	var count uint32
	if err := collection.GetCount(&count); err != nil {
		return nil, fmt.Errorf("GetCount: %w", err)
	}

	infos := make([]EndpointInfo, 0, count)
	for i := uint32(0); i < count; i++ {
		var dev *wca.IMMDevice
		if err := collection.Item(i, &dev); err != nil {
			continue
		}
		infos = append(infos, describeEndpoint(dev))
		dev.Release()
	}
	return infos, nil
}

func describeEndpoint(dev *wca.IMMDevice) EndpointInfo {
	info := EndpointInfo{}
	var id string
	if err := dev.GetId(&id); err == nil {
		info.ID = id
	}

	var props *wca.IPropertyStore
	if err := dev.OpenPropertyStore(wca.STGM_READ, &props); err != nil {
		return info
	}
	defer props.Release()

	var pv wca.PROPVARIANT
	if err := props.GetValue(&wca.PKEY_Device_FriendlyName, &pv); err == nil {
		info.Name = pv.String()
	}
	return info
}

type wasapiDevice struct {
	dev *wca.IMMDevice
}

func (d *wasapiDevice) ActivateClient(lowLatency bool) (Client, error) {
	var client *wca.IAudioClient
	if err := d.dev.Activate(wca.IID_IAudioClient, wca.CLSCTX_ALL, nil, &client); err != nil {
		return nil, fmt.Errorf("Activate IAudioClient: %w", err)
	}
	return &wasapiClient{client: client, lowLatency: lowLatency}, nil
}

func (d *wasapiDevice) Close() error {
	d.dev.Release()
	return nil
}

type wasapiClient struct {
	client     *wca.IAudioClient
	lowLatency bool
}

func (c *wasapiClient) DevicePeriod() (time.Duration, error) {
	var defaultPeriod, minPeriod wca.REFERENCE_TIME
	if err := c.client.GetDevicePeriod(&defaultPeriod, &minPeriod); err != nil {
		return 0, fmt.Errorf("GetDevicePeriod: %w", err)
	}
	period := defaultPeriod
	if c.lowLatency {
		period = minPeriod
	}
	return time.Duration(period) * 100 * time.Nanosecond, nil
}

func (c *wasapiClient) MixFormat() (WaveFormat, error) {
	var wfx *wca.WAVEFORMATEX
	if err := c.client.GetMixFormat(&wfx); err != nil {
		return WaveFormat{}, fmt.Errorf("GetMixFormat: %w", err)
	}
	defer ole.CoTaskMemFree(uintptr(unsafe.Pointer(wfx)))
	return WaveFormat{
		Channels:      int(wfx.NChannels),
		SampleRate:    wfx.NSamplesPerSec,
		BitsPerSample: int(wfx.WBitsPerSample),
	}, nil
}

func (c *wasapiClient) Initialize(mode ShareMode, flags StreamFlags, format WaveFormat) error {
	wfx := &wca.WAVEFORMATEX{
		WFormatTag:      wca.WAVE_FORMAT_IEEE_FLOAT,
		NChannels:       uint16(format.Channels),
		NSamplesPerSec:  format.SampleRate,
		WBitsPerSample:  uint16(format.BitsPerSample),
		NBlockAlign:     uint16(format.Channels * format.BitsPerSample / 8),
		NAvgBytesPerSec: format.SampleRate * uint32(format.Channels*format.BitsPerSample/8),
	}

	var shareMode wca.AUDCLNT_SHAREMODE
	if mode == ShareModeExclusive {
		shareMode = wca.AUDCLNT_SHAREMODE_EXCLUSIVE
	} else {
		shareMode = wca.AUDCLNT_SHAREMODE_SHARED
	}

	var streamFlags uint32
	if flags&StreamFlagLoopback != 0 {
		streamFlags |= wca.AUDCLNT_STREAMFLAGS_LOOPBACK
	}
	if flags&StreamFlagEventCallback != 0 {
		streamFlags |= wca.AUDCLNT_STREAMFLAGS_EVENTCALLBACK
	}

	const bufferDuration = wca.REFERENCE_TIME(200 * 10000) // 200ms, in 100ns units
	if err := c.client.Initialize(shareMode, streamFlags, bufferDuration, 0, wfx, nil); err != nil {
		return fmt.Errorf("Initialize: %w", err)
	}
	return nil
}

func (c *wasapiClient) GetService(kind ServiceKind) (any, error) {
	switch kind {
	case ServiceCaptureClient:
		var cap *wca.IAudioCaptureClient
		if err := c.client.GetService(wca.IID_IAudioCaptureClient, &cap); err != nil {
			return nil, fmt.Errorf("GetService IAudioCaptureClient: %w", err)
		}
		return &wasapiCaptureClient{cap: cap}, nil
	case ServiceRenderClient:
		var ren *wca.IAudioRenderClient
		if err := c.client.GetService(wca.IID_IAudioRenderClient, &ren); err != nil {
			return nil, fmt.Errorf("GetService IAudioRenderClient: %w", err)
		}
		return &wasapiRenderClient{ren: ren}, nil
	default:
		return nil, fmt.Errorf("unknown service kind %d", kind)
	}
}

func (c *wasapiClient) Start() error { return c.client.Start() }
func (c *wasapiClient) Stop() error  { return c.client.Stop() }

func (c *wasapiClient) BufferSize() (uint32, error) {
	var n uint32
	err := c.client.GetBufferSize(&n)
	return n, err
}

func (c *wasapiClient) CurrentPadding() (uint32, error) {
	var n uint32
	err := c.client.GetCurrentPadding(&n)
	return n, err
}

func (c *wasapiClient) SetEventHandle(h Event) error {
	we, ok := h.(*winEvent)
	if !ok {
		return fmt.Errorf("SetEventHandle: not a windows event")
	}
	return c.client.SetEventHandle(we.handle)
}

func (c *wasapiClient) Close() error {
	c.client.Release()
	return nil
}

type wasapiCaptureClient struct {
	cap *wca.IAudioCaptureClient
}

func (c *wasapiCaptureClient) NextPacketSize() (uint32, error) {
	var n uint32
	err := c.cap.GetNextPacketSize(&n)
	return n, err
}

func (c *wasapiCaptureClient) GetBuffer() (data []byte, frames uint32, flags BufferFlags, err error) {
	var ptr *byte
	var numFrames uint32
	var rawFlags uint32
	if err := c.cap.GetBuffer(&ptr, &numFrames, &rawFlags, nil, nil); err != nil {
		return nil, 0, 0, fmt.Errorf("GetBuffer: %w", err)
	}
	var out BufferFlags
	if rawFlags&wca.AUDCLNT_BUFFERFLAGS_SILENT != 0 {
		out |= BufferFlagSilent
	}
	if rawFlags&wca.AUDCLNT_BUFFERFLAGS_DATA_DISCONTINUITY != 0 {
		out |= BufferFlagDataDiscontinuity
	}
	if numFrames == 0 || ptr == nil {
		return nil, numFrames, out, nil
	}
	return unsafe.Slice(ptr, numFrames*4), numFrames, out, nil
}

func (c *wasapiCaptureClient) ReleaseBuffer(frames uint32) error {
	return c.cap.ReleaseBuffer(frames)
}

type wasapiRenderClient struct {
	ren *wca.IAudioRenderClient
}

func (r *wasapiRenderClient) GetBuffer(frames uint32) ([]byte, error) {
	var ptr *byte
	if err := r.ren.GetBuffer(frames, &ptr); err != nil {
		return nil, fmt.Errorf("GetBuffer: %w", err)
	}
	return unsafe.Slice(ptr, frames*4), nil
}

func (r *wasapiRenderClient) ReleaseBuffer(frames uint32, flags BufferFlags) error {
	var rawFlags uint32
	if flags&BufferFlagSilent != 0 {
		rawFlags |= wca.AUDCLNT_BUFFERFLAGS_SILENT
	}
	return r.ren.ReleaseBuffer(frames, rawFlags)
}

// winEvent wraps a Win32 waitable event handle used for event-driven render
// and capture callbacks.
type winEvent struct {
	handle windows.Handle
}

// NewEvent creates an auto-reset, manual-initial-state-false waitable event.
func NewEvent() (Event, error) {
	h, err := windows.CreateEvent(nil, 0, 0, nil)
	if err != nil {
		return nil, fmt.Errorf("CreateEvent: %w", err)
	}
	return &winEvent{handle: h}, nil
}

func (e *winEvent) Wait(ctx context.Context) error {
	deadline := windows.INFINITE
	if dl, ok := ctx.Deadline(); ok {
		deadline = uint32(time.Until(dl) / time.Millisecond)
	}
	s, err := windows.WaitForSingleObject(e.handle, deadline)
	if err != nil {
		return fmt.Errorf("WaitForSingleObject: %w", err)
	}
	if s == uint32(windows.WAIT_TIMEOUT) {
		return ctx.Err()
	}
	return nil
}

func (e *winEvent) Close() error {
	return windows.CloseHandle(e.handle)
}
