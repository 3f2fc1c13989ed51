// Package notify provides the broadcast primitive used to announce that the
// served artifact was recompiled.
package notify

import (
	"context"
	"sync"
)

// Signal is a broadcast notification mechanism with no payload. Callers wait
// on C() or one of the Wait methods, and any call to Notify() wakes all
// waiters by closing the channel and creating a fresh one.
//
// Every Notify bumps a generation counter. A waiter that remembers the last
// generation it handled can use WaitAfter to pick up a notification that
// arrived while it was busy, so no wakeup is missed between two waits.
// Notifications that pile up before a waiter comes back collapse into one.
type Signal struct {
	mu  sync.Mutex
	ch  chan struct{}
	gen uint64
}

// NewSignal creates a ready-to-use Signal.
func NewSignal() *Signal { return &Signal{ch: make(chan struct{})} }

// Notify wakes all current waiters.
func (s *Signal) Notify() {
	s.mu.Lock()
	s.gen++
	close(s.ch)
	s.ch = make(chan struct{})
	s.mu.Unlock()
}

// C returns a channel that is closed on the next Notify() call.
// Callers should re-call C() after each wakeup to get the next channel.
func (s *Signal) C() <-chan struct{} {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	return ch
}

// Generation returns the number of Notify calls so far.
func (s *Signal) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Wait blocks until the next Notify. It only returns an error when ctx is
// done.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.C():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitAfter returns as soon as the generation is past seen. If that already
// happened it does not block. The returned generation is the one the caller
// should pass on its next call.
func (s *Signal) WaitAfter(ctx context.Context, seen uint64) (uint64, error) {
	for {
		s.mu.Lock()
		gen, ch := s.gen, s.ch
		s.mu.Unlock()

		if gen > seen {
			return gen, nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return seen, ctx.Err()
		}
	}
}
