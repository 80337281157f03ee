////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package stoppable

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Multi groups Stoppables so a whole subsystem can be stopped with one
// call. A Multi may contain other Multis.
type Multi struct {
	name       string
	stoppables []Stoppable
	stopped    bool

	mux sync.RWMutex
}

// NewMulti returns a new empty Multi.
func NewMulti(name string) *Multi {
	return &Multi{name: name}
}

// Add adds the given Stoppable to the group.
func (m *Multi) Add(stoppable Stoppable) {
	m.mux.Lock()
	m.stoppables = append(m.stoppables, stoppable)
	m.mux.Unlock()
}

// Name returns the name of the Multi and the names of everything it holds.
func (m *Multi) Name() string {
	m.mux.RLock()
	defer m.mux.RUnlock()

	names := make([]string, len(m.stoppables))
	for i, s := range m.stoppables {
		names[i] = s.Name()
	}

	return m.name + "{" + strings.Join(names, ", ") + "}"
}

// IsRunning returns true if any member is still running.
func (m *Multi) IsRunning() bool {
	m.mux.RLock()
	defer m.mux.RUnlock()

	for _, s := range m.stoppables {
		if s.IsRunning() {
			return true
		}
	}

	return false
}

// Close closes every member. Every member is closed even if some fail; the
// returned error reports the number of failures, with details in the log.
func (m *Multi) Close() error {
	m.mux.Lock()
	defer m.mux.Unlock()

	if m.stopped {
		return nil
	}
	m.stopped = true

	numErrors := 0
	for _, s := range m.stoppables {
		if err := s.Close(); err != nil {
			jww.ERROR.Printf("Failed to close %q in multi stoppable "+
				"%q: %+v", s.Name(), m.name, err)
			numErrors++
		}
	}

	if numErrors > 0 {
		return errors.Errorf("multi stoppable %q failed to close %d of "+
			"%d stoppables", m.name, numErrors, len(m.stoppables))
	}

	return nil
}
