////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package events

import (
	jww "github.com/spf13/jwalterweatherman"
)

// Listener is implemented by anything that wants to hear feed events.
type Listener interface {
	// Hear is called once per matching event, in feed order. It must not
	// block for long; slow consumers should hand off to their own
	// goroutine or use RegisterChannel.
	Hear(item Event)

	// Name returns a name used for debugging.
	Name() string
}

// ListenerFunc adapts a plain function to the Listener interface via
// RegisterFunc.
type ListenerFunc func(item Event)

// ListenerID is returned on registration and is used to unregister the
// listener later. Consumers must keep it and call Switchboard.Unregister on
// teardown; a conversation switch that abandons its listeners will keep
// hearing events for the old peer.
type ListenerID struct {
	eventType Type
	listener  Listener
}

// EventType returns the type the listener was registered under.
func (lid ListenerID) EventType() Type {
	return lid.eventType
}

// Name returns the registered listener's debug name.
func (lid ListenerID) Name() string {
	return lid.listener.Name()
}

// funcListener wraps a ListenerFunc.
type funcListener struct {
	listener ListenerFunc
	name     string
}

func newFuncListener(listener ListenerFunc, name string) *funcListener {
	return &funcListener{listener: listener, name: name}
}

func (fl *funcListener) Hear(item Event) {
	fl.listener(item)
}

func (fl *funcListener) Name() string {
	return fl.name
}

// chanListener forwards events into a channel. Delivery drops the event if
// the channel is full rather than stalling the feed.
type chanListener struct {
	listener chan Event
	name     string
}

func newChanListener(listener chan Event, name string) *chanListener {
	return &chanListener{listener: listener, name: name}
}

func (cl *chanListener) Hear(item Event) {
	select {
	case cl.listener <- item:
	default:
		jww.WARN.Printf("[EV] Dropped %q event on full channel "+
			"listener %q", item.Type, cl.name)
	}
}

func (cl *chanListener) Name() string {
	return cl.name
}
