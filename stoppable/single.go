////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package stoppable

import (
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Single stops one goroutine through a quit channel. The goroutine must
// select on Quit and call ToStopped once it has wound down; Close blocks
// until the send on the quit channel is received.
type Single struct {
	name   string
	quit   chan struct{}
	status Status
	once   sync.Once
}

// NewSingle returns a new Single in the Running state.
func NewSingle(name string) *Single {
	return &Single{
		name:   name,
		quit:   make(chan struct{}),
		status: Running,
	}
}

// Name returns the name of the Single.
func (s *Single) Name() string {
	return s.name
}

// GetStatus returns the current status.
func (s *Single) GetStatus() Status {
	return loadStatus(&s.status)
}

// IsRunning returns true if the Single is marked as running.
func (s *Single) IsRunning() bool {
	return s.GetStatus() == Running
}

// IsStopped returns true if the Single is marked as stopped.
func (s *Single) IsStopped() bool {
	return s.GetStatus() == Stopped
}

// Quit returns the channel the owned goroutine must select on. It is
// signalled exactly once, by Close.
func (s *Single) Quit() <-chan struct{} {
	return s.quit
}

// ToStopped marks the Single stopped. The owned goroutine calls this after
// draining; it panics on an out-of-order transition because that always
// indicates a goroutine lifecycle bug.
func (s *Single) ToStopped() {
	if !swapStatus(&s.status, Stopping, Stopped) {
		jww.FATAL.Panicf("Single stoppable %q cannot transition to %s "+
			"from %s.", s.name, Stopped, s.GetStatus())
	}

	jww.TRACE.Printf("Single stoppable %q is now %s.", s.name, Stopped)
}

// Close signals the goroutine to quit. It returns an error if the Single is
// not running; repeated calls are no-ops returning the first result.
func (s *Single) Close() error {
	var err error

	s.once.Do(func() {
		if !swapStatus(&s.status, Running, Stopping) {
			err = errors.Errorf("cannot close single stoppable %q "+
				"with status %s", s.name, s.GetStatus())
			return
		}

		jww.TRACE.Printf("Sending quit signal to single stoppable %q.",
			s.name)
		s.quit <- struct{}{}
	})

	if err != nil {
		jww.ERROR.Print(err.Error())
	}

	return err
}
