// Package sched implements the FFT scheduler: it hands out (channel,
// start_index) work items to a pool of FFT workers in strict round-robin,
// advancing by HopSize once every channel has been issued a given
// start_index.
package sched

// WorkItem is a scheduled FFT job: read WindowSize samples on Chan starting
// at StartIndex (relative to the ring's current head on that channel).
type WorkItem struct {
	Chan       int
	StartIndex int
}

// lengthFunc reports the ring's current total length in frames, as published
// by the queueing thread.
type lengthFunc func() uint64

// Scheduler owns the round-robin dispatch state and a FIFO of workers
// currently idle (having emitted an End token with no work available).
type Scheduler struct {
	channels   int
	windowSize int
	hopSize    int
	totalLen   lengthFunc

	jobs []chan WorkItem // one per worker, closed on Stop

	nextChan  int
	nextIndex int
	pending   []int // worker ids waiting for work, FIFO
}

// New creates a Scheduler for workerCount workers over a ring with the given
// channel count, consulting totalLen to decide when enough samples have
// landed to dispatch the next window.
func New(workerCount, channels, windowSize, hopSize int, totalLen lengthFunc) *Scheduler {
	jobs := make([]chan WorkItem, workerCount)
	for i := range jobs {
		jobs[i] = make(chan WorkItem, 1)
	}
	return &Scheduler{
		channels:   channels,
		windowSize: windowSize,
		hopSize:    hopSize,
		totalLen:   totalLen,
		jobs:       jobs,
	}
}

// Jobs returns the per-worker job channel for workerID. A worker reads from
// its own channel only.
func (s *Scheduler) Jobs(workerID int) <-chan WorkItem {
	return s.jobs[workerID]
}

// Run drives the scheduler until stop is closed: it waits for a worker's End
// token (ends) or a fresh-data signal from the queueing thread (ready), and
// dispatches as much pending work as the current ring length allows. On stop
// it closes every worker's job channel so workers observe disconnection and
// exit their receive loops.
func (s *Scheduler) Run(ends <-chan int, ready <-chan struct{}, stop <-chan struct{}) {
	defer func() {
		for _, j := range s.jobs {
			close(j)
		}
	}()
	for {
		select {
		case <-stop:
			return
		case id, ok := <-ends:
			if !ok {
				return
			}
			s.pending = append(s.pending, id)
			s.dispatchPending()
		case <-ready:
			s.dispatchPending()
		}
	}
}

// dispatchPending sends work items to waiting workers for as long as the
// ring holds at least WindowSize+nextIndex frames. Dispatch order guarantees
// channels 0..C-1 are issued for a given start_index before start_index
// advances by HopSize.
func (s *Scheduler) dispatchPending() {
	for len(s.pending) > 0 {
		if s.totalLen() < uint64(s.windowSize+s.nextIndex) {
			return
		}
		id := s.pending[0]
		s.pending = s.pending[1:]

		s.jobs[id] <- WorkItem{Chan: s.nextChan, StartIndex: s.nextIndex}

		s.nextChan++
		if s.nextChan == s.channels {
			s.nextChan = 0
			s.nextIndex += s.hopSize
		}
	}
}
