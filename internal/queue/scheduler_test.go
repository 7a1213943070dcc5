package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hollowcode/antinoise/internal/ring"
	"github.com/hollowcode/antinoise/internal/sched"
)

// Plumbing: C=2, WINDOW_SIZE=4, HOP_SIZE=2. Pushing interleaved floats
// [1,10, 2,20, 3,30, 4,40, 5,50, 6,60] should yield a first dispatch
// (0,0)/[1,2,3,4] and (1,0)/[10,20,30,40], then a second dispatch at
// start_index=2 once the hop's worth of new samples has landed.
func TestSchedulerDispatchesExpectedWindows(t *testing.T) {
	r := ring.New(2)
	q := New(r, 2, 4, 2)

	sc := sched.New(2, 2, 4, 2, func() uint64 { return q.TotalLength() })
	ends := make(chan int, 2)
	stop := make(chan struct{})
	defer close(stop)
	go sc.Run(ends, q.Ready, stop)

	samples := make(chan float32, 16)
	go q.Run(samples)

	interleaved := []float32{1, 10, 2, 20, 3, 30, 4, 40, 5, 50, 6, 60}
	for _, s := range interleaved {
		samples <- s
	}

	ends <- 0
	ends <- 1

	item0 := mustRecv(t, sc.Jobs(0))
	item1 := mustRecv(t, sc.Jobs(1))
	assert.Equal(t, sched.WorkItem{Chan: 0, StartIndex: 0}, item0)
	assert.Equal(t, sched.WorkItem{Chan: 1, StartIndex: 0}, item1)

	r.RLock()
	buf0 := make([]complex128, 4)
	ok0 := r.WindowCopy(buf0, 0, 0, 4)
	buf1 := make([]complex128, 4)
	ok1 := r.WindowCopy(buf1, 1, 0, 4)
	r.RUnlock()
	assert.True(t, ok0)
	assert.True(t, ok1)
	assert.Equal(t, []complex128{1, 2, 3, 4}, buf0)
	assert.Equal(t, []complex128{10, 20, 30, 40}, buf1)

	ends <- 0
	ends <- 1
	item2 := mustRecv(t, sc.Jobs(0))
	item3 := mustRecv(t, sc.Jobs(1))
	assert.Equal(t, sched.WorkItem{Chan: 0, StartIndex: 2}, item2)
	assert.Equal(t, sched.WorkItem{Chan: 1, StartIndex: 2}, item3)

	close(samples)
}

// Scheduler back-pressure: with only 3 frames pushed (fewer than WINDOW_SIZE),
// no dispatch should occur and the scheduler's cursor stays at (0, 0).
func TestSchedulerWithholdsDispatchUntilEnoughSamples(t *testing.T) {
	r := ring.New(2)
	q := New(r, 2, 4, 2)

	sc := sched.New(1, 2, 4, 2, func() uint64 { return q.TotalLength() })
	ends := make(chan int, 1)
	stop := make(chan struct{})
	defer close(stop)
	go sc.Run(ends, q.Ready, stop)

	samples := make(chan float32, 8)
	go q.Run(samples)

	for _, s := range []float32{1, 10, 2, 20, 3, 30} {
		samples <- s
	}

	ends <- 0

	select {
	case <-sc.Jobs(0):
		t.Fatal("should not dispatch with fewer than WINDOW_SIZE frames available")
	case <-time.After(100 * time.Millisecond):
	}

	close(samples)
}

func mustRecv(t *testing.T, ch <-chan sched.WorkItem) sched.WorkItem {
	t.Helper()
	select {
	case item := <-ch:
		return item
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatched work item")
		return sched.WorkItem{}
	}
}
