package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestPushRoundRobin(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		channels := rapid.IntRange(1, 6).Draw(t, "channels")
		frames := rapid.IntRange(0, 200).Draw(t, "frames")

		q := New(channels)
		q.Lock()
		for f := 0; f < frames; f++ {
			for c := 0; c < channels; c++ {
				q.Push(float32(f*channels + c))
			}
		}
		q.Unlock()

		for c := 0; c < channels; c++ {
			assert.Equal(t, frames, q.Len(c), "channel %d should hold one sample per pushed frame", c)
		}
	})
}

func TestWindowCopy(t *testing.T) {
	q := New(2)
	q.Lock()
	for i := 0; i < 10; i++ {
		q.Push(float32(i))
		q.Push(float32(100 + i))
	}
	q.Unlock()

	dst := make([]complex128, 4)
	q.RLock()
	ok := q.WindowCopy(dst, 0, 2, 4)
	q.RUnlock()

	assert.True(t, ok)
	assert.Equal(t, []complex128{2, 3, 4, 5}, dst)
}

func TestWindowCopyOutOfRange(t *testing.T) {
	q := New(1)
	q.Lock()
	q.Push(1)
	q.Push(2)
	q.Unlock()

	dst := make([]complex128, 4)
	q.RLock()
	ok := q.WindowCopy(dst, 0, 0, 4)
	q.RUnlock()

	assert.False(t, ok, "a window extending past available samples must be rejected")
}

func TestReadAdvancesPopCount(t *testing.T) {
	q := New(1)
	q.Lock()
	q.Push(1)
	q.Push(2)

	v, ok := q.Read(0)
	assert.True(t, ok)
	assert.Equal(t, float32(1), v)
	assert.Equal(t, uint64(1), q.popCount)
	q.Unlock()
}
