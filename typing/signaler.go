////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package typing debounces the local user's keystroke activity into
// at-most-once-per-interval typing signals on the conversation channel.
package typing

import (
	"sync"
	"time"

	jww "github.com/spf13/jwalterweatherman"
)

// DefaultIdleTimeout is how long after the last keystroke the signaler
// reports that typing stopped.
const DefaultIdleTimeout = 3 * time.Second

// Emitter carries typing signals to the peer. Both methods are
// fire-and-forget from the signaler's point of view: errors are logged and
// never retried.
type Emitter interface {
	TypingStarted(peerID string) error
	TypingStopped(peerID string) error
}

// Signaler tracks whether the local user is typing to one peer. Every
// keystroke restarts a single inactivity timer; the first keystroke of a
// burst emits "started", and the timer expiry or an explicit Flush emits
// "stopped". Only one timer is ever live.
type Signaler struct {
	emitter Emitter
	peerID  string
	idle    time.Duration

	typing bool
	timer  *time.Timer

	mux sync.Mutex
}

// NewSignaler returns a Signaler for the given peer. A zero idle duration
// selects DefaultIdleTimeout.
func NewSignaler(emitter Emitter, peerID string, idle time.Duration) *Signaler {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Signaler{
		emitter: emitter,
		peerID:  peerID,
		idle:    idle,
	}
}

// Keystroke records one unit of typing activity. The first call of a burst
// emits a started signal; every call rearms the inactivity timer.
func (s *Signaler) Keystroke() {
	s.mux.Lock()
	defer s.mux.Unlock()

	if !s.typing {
		s.typing = true
		if err := s.emitter.TypingStarted(s.peerID); err != nil {
			jww.WARN.Printf("[TYP] Failed to emit typing started to "+
				"%s: %+v", s.peerID, err)
		}
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.idle, s.expire)
}

// Flush emits a stopped signal immediately if one is pending. It is called
// on send and on teardown; calling it while idle is a no-op.
func (s *Signaler) Flush() {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.stopLocked()
}

// IsTyping reports whether a started signal is outstanding.
func (s *Signaler) IsTyping() bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.typing
}

// expire fires on the inactivity timer.
func (s *Signaler) expire() {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.stopLocked()
}

// stopLocked clears the typing state and emits the stopped signal. Callers
// must hold the mutex.
func (s *Signaler) stopLocked() {
	if !s.typing {
		return
	}

	s.typing = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	if err := s.emitter.TypingStopped(s.peerID); err != nil {
		jww.WARN.Printf("[TYP] Failed to emit typing stopped to %s: %+v",
			s.peerID, err)
	}
}
