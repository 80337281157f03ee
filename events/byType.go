////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package events

import (
	"github.com/golang-collections/collections/set"
)

// byType indexes listener sets by event type. Listeners registered under
// AnyType land in the generic set and match every event.
type byType struct {
	list    map[Type]*set.Set
	generic *set.Set
}

func newByType() *byType {
	bt := &byType{
		list:    make(map[Type]*set.Set),
		generic: set.New(),
	}

	// The zero type is defined as AnyType and points at the generic set.
	bt.list[AnyType] = bt.generic

	return bt
}

// Get returns the set for the passed event type unioned with the generic
// set.
func (bt *byType) Get(t Type) *set.Set {
	lookup, ok := bt.list[t]
	if !ok {
		return bt.generic
	}
	return lookup.Union(bt.generic)
}

// Add inserts the listener into the set for the given event type, creating
// the set if it does not exist yet.
func (bt *byType) Add(t Type, l Listener) *set.Set {
	s, ok := bt.list[t]
	if !ok {
		s = set.New(l)
		bt.list[t] = s
	} else {
		s.Insert(l)
	}

	return s
}

// Remove deletes the listener from the set for the given event type and
// deletes the set if it is empty afterwards.
func (bt *byType) Remove(t Type, l Listener) {
	s, ok := bt.list[t]
	if !ok {
		return
	}

	s.Remove(l)
	if s.Len() == 0 && t != AnyType {
		delete(bt.list, t)
	}
}
