// Package guard provides deterministic release of OS handles, apartments,
// timers, and stream-start state on every exit path, including panics.
package guard

import (
	"log"
)

// Scope runs release when it goes out of scope, including during a panic.
// Construct one immediately after acquiring a resource and defer scope.Close():
//
//	timer, err := newWaitableTimer()
//	if err != nil { return err }
//	timerScope := guard.New("timer", timer.Cancel)
//	defer timerScope.Close()
//
// Release failures are logged, not propagated, since by the time a guard
// fires the caller has usually already decided to unwind.
type Scope struct {
	name    string
	release func() error
	fatal   bool
	closed  bool
}

// New creates a guard named name whose release function runs on Close.
func New(name string, release func() error) *Scope {
	return &Scope{name: name, release: release}
}

// Fatal marks the guard so that a release failure aborts the process instead
// of merely being logged. Use this for resources where a leaked handle would
// keep firing into freed state (a periodic waitable timer is the canonical
// example): cancellation failure there is worse than a hard stop.
func (s *Scope) Fatal() *Scope {
	s.fatal = true
	return s
}

// Close runs the release function exactly once. Safe to call multiple times
// and safe to call via defer during a panicking unwind.
func (s *Scope) Close() {
	if s == nil || s.closed || s.release == nil {
		return
	}
	s.closed = true
	if err := s.release(); err != nil {
		if s.fatal {
			log.Fatalf("guard %q: release failed, aborting: %v", s.name, err)
		}
		log.Printf("guard %q: release failed: %v", s.name, err)
	}
}

// Chain releases multiple guards in reverse acquisition order, the usual
// discipline for nested resources (apartment, then client, then stream).
type Chain struct {
	scopes []*Scope
}

// Add appends a guard to the chain, returning the chain for fluent use.
func (c *Chain) Add(s *Scope) *Chain {
	c.scopes = append(c.scopes, s)
	return c
}

// Close releases every guard in the chain in reverse order.
func (c *Chain) Close() {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		c.scopes[i].Close()
	}
}
