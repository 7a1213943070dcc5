// Package coordinator implements the pipeline's state machine: Init ->
// WaitStart -> Running -> Stopping -> Joined. It spawns every component in
// dependency order, waits for the capture thread's Start handshake, runs for
// the configured duration (or until externally cancelled), then stops and
// joins every goroutine through a single WaitGroup, propagating the first
// error any component reported. Goroutines are not joined one by one in a
// fixed order, and errors are ranked by the order they arrived, not by stage.
package coordinator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/hollowcode/antinoise/internal/capture"
	"github.com/hollowcode/antinoise/internal/config"
	"github.com/hollowcode/antinoise/internal/feedback"
	"github.com/hollowcode/antinoise/internal/fftworker"
	"github.com/hollowcode/antinoise/internal/perr"
	"github.com/hollowcode/antinoise/internal/platform"
	"github.com/hollowcode/antinoise/internal/queue"
	"github.com/hollowcode/antinoise/internal/render"
	"github.com/hollowcode/antinoise/internal/ring"
	"github.com/hollowcode/antinoise/internal/sched"
	"github.com/hollowcode/antinoise/internal/synth"
)

// State names the coordinator's position in Init -> WaitStart -> Running ->
// Stopping -> Joined.
type State int

const (
	StateInit State = iota
	StateWaitStart
	StateRunning
	StateStopping
	StateJoined
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateWaitStart:
		return "WaitStart"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateJoined:
		return "Joined"
	default:
		return "Unknown"
	}
}

// Coordinator wires every component of the anti-noise pipeline and drives the
// Init/WaitStart/Running/Stopping/Joined state machine.
type Coordinator struct {
	params  *config.Params
	service platform.EndpointService

	mu    sync.Mutex
	state State
}

// New creates a Coordinator for the given parameters and endpoint service.
func New(params *config.Params, service platform.EndpointService) *Coordinator {
	return &Coordinator{params: params, service: service, state: StateInit}
}

// State reports the coordinator's current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run spawns the full pipeline and blocks until it stops: either the
// configured run duration elapses, ctx is cancelled, or a fatal error occurs
// in any component. It returns the first non-nil error reported by any
// component, stage-tagged.
func (c *Coordinator) Run(ctx context.Context) error {
	c.setState(StateWaitStart)

	p := c.params
	stop := make(chan struct{})
	var stopOnce sync.Once
	requestStop := func() { stopOnce.Do(func() { close(stop) }) }

	var wg sync.WaitGroup
	errs := make(chan error, 6)

	capt := capture.New(c.service, true)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := capt.Run(ctx, stop); err != nil {
			errs <- err
			requestStop()
		}
	}()

	select {
	case <-capt.Started:
		c.setState(StateRunning)
	case <-ctx.Done():
		requestStop()
	}

	format, ok := capt.Format.Receive(stop)
	if !ok {
		requestStop()
		wg.Wait()
		return c.firstError(errs, perr.Stage("coordinator", perr.ErrChannelSend))
	}

	minBin, maxBin := p.Bins(format.SampleRate)
	targetBin := p.TargetBinOffset(format.SampleRate)

	r := ring.New(format.Channels)
	q := queue.New(r, format.Channels, p.WindowSize, p.HopSize)
	sc := sched.New(p.Workers, format.Channels, p.WindowSize, p.HopSize, q.TotalLength)
	synthQueue := synth.New(format.Channels, p.TargetFreqHz, format.SampleRate)
	fc := feedback.New(synthQueue, p.WindowSize, p.WindowDuration(), p.BufferMs, targetBin)

	ends := make(chan int, p.Workers)
	results := make(chan fftworker.Result, p.Workers)
	hann := fftworker.HannWindow(p.WindowSize)

	wg.Add(1)
	go func() {
		defer wg.Done()
		q.Run(capt.Samples)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sc.Run(ends, q.Ready, stop)
	}()

	for i := 0; i < p.Workers; i++ {
		w := fftworker.New(i, p.WindowSize, minBin, maxBin, hann)
		jobs := sc.Jobs(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(r, jobs, ends, results, stop)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		fc.Run(results, stop)
	}()

	rend := render.New(c.service, synthQueue, nil)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := rend.Run(ctx, format, stop); err != nil {
			errs <- err
			requestStop()
		}
	}()

	if p.RunDuration > 0 {
		go func() {
			select {
			case <-time.After(p.RunDuration):
				requestStop()
			case <-stop:
			case <-ctx.Done():
				requestStop()
			}
		}()
	} else {
		go func() {
			<-ctx.Done()
			requestStop()
		}()
	}

	<-stop
	c.setState(StateStopping)

	wg.Wait()
	close(errs)
	c.setState(StateJoined)

	return c.firstError(errs, nil)
}

func (c *Coordinator) firstError(errs <-chan error, fallback error) error {
	var first error
	for err := range errs {
		if first == nil {
			first = err
		} else {
			log.Printf("coordinator: additional error after first: %v", err)
		}
	}
	if first != nil {
		return first
	}
	return fallback
}
