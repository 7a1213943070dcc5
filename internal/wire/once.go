// Package wire provides the one-shot publish primitive used to hand
// immutable, negotiated state (the wave format) from the capture thread to
// every downstream component exactly once.
package wire

// Once publishes a single value of type T from one producer to any number of
// consumers. Receive blocks until Publish is called (or the pipeline stops and
// the zero value is returned along with ok=false).
type Once[T any] struct {
	ch chan T
	v  T
}

// NewOnce creates an unpublished one-shot value.
func NewOnce[T any]() *Once[T] {
	return &Once[T]{ch: make(chan T, 1)}
}

// Publish stores the value and unblocks every pending and future Receive.
// Publish must be called at most once.
func (o *Once[T]) Publish(v T) {
	o.v = v
	close(o.ch)
}

// Receive blocks until Publish has been called, or until stop is closed, in
// which case ok is false.
func (o *Once[T]) Receive(stop <-chan struct{}) (v T, ok bool) {
	select {
	case <-o.ch:
		return o.v, true
	case <-stop:
		var zero T
		return zero, false
	}
}
