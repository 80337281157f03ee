////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package stoppable tracks the lifecycle of named long-running goroutines:
// the feed reconciler, the capture duration ticker, and anything else the
// engine spins up. Each goroutine owns a Single and selects on its Quit
// channel; owners group them under a Multi and stop everything at teardown.
package stoppable

import (
	"strconv"
	"sync/atomic"
)

// Stoppable is the interface for stopping a named goroutine.
type Stoppable interface {
	// Close signals the goroutine(s) to quit. It is an error to close a
	// Stoppable that is not running.
	Close() error

	// IsRunning returns true until Close is called.
	IsRunning() bool

	// Name returns the name given at construction, for debugging.
	Name() string
}

// Status of a Stoppable.
type Status uint32

const (
	Running Status = iota
	Stopping
	Stopped
)

// String adheres to the fmt.Stringer interface.
func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "invalid status: " + strconv.Itoa(int(s))
	}
}

// loadStatus atomically reads a Status stored as a uint32.
func loadStatus(s *Status) Status {
	return Status(atomic.LoadUint32((*uint32)(s)))
}

// swapStatus atomically transitions from the expected status to the target
// status, reporting whether the swap happened.
func swapStatus(s *Status, from, to Status) bool {
	return atomic.CompareAndSwapUint32((*uint32)(s), uint32(from), uint32(to))
}
