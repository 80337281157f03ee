////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package events

import (
	"sync"

	jww "github.com/spf13/jwalterweatherman"
)

// Switchboard routes feed events to registered listeners.
//
// Unlike a fan-out that runs each listener on its own goroutine, Speak
// delivers synchronously: the feed reader drives it, so every listener
// hears events in exact receipt order. Reconciliation depends on that
// ordering; do not reintroduce per-event goroutines here.
type Switchboard struct {
	eventType *byType

	mux sync.RWMutex
}

// New generates and returns a new Switchboard.
func New() *Switchboard {
	return &Switchboard{
		eventType: newByType(),
	}
}

// RegisterListener registers the listener for the given event type, or for
// all types if AnyType is passed. The returned ListenerID must be kept to
// unregister the listener later.
func (sw *Switchboard) RegisterListener(t Type, newListener Listener) ListenerID {
	if newListener == nil {
		jww.FATAL.Panicf("cannot register nil listener")
	}

	sw.mux.Lock()
	sw.eventType.Add(t, newListener)
	sw.mux.Unlock()

	return ListenerID{
		eventType: t,
		listener:  newListener,
	}
}

// RegisterFunc registers a listener built around the passed function. The
// name is used for debug printing and is not checked for uniqueness.
func (sw *Switchboard) RegisterFunc(
	name string, t Type, newListener ListenerFunc) ListenerID {
	if newListener == nil {
		jww.FATAL.Panicf(
			"cannot register function listener %q with nil func", name)
	}

	return sw.RegisterListener(t, newFuncListener(newListener, name))
}

// RegisterChannel registers a listener built around the passed channel.
// Events are dropped, with a warning, if the channel is full when one
// arrives; size the channel for the expected burst.
func (sw *Switchboard) RegisterChannel(
	name string, t Type, newListener chan Event) ListenerID {
	if newListener == nil {
		jww.FATAL.Panicf(
			"cannot register channel listener %q with nil channel", name)
	}

	return sw.RegisterListener(t, newChanListener(newListener, name))
}

// Speak delivers an event to every matching listener, synchronously and in
// registration-set order. It is intended to be called from a single feed
// reader goroutine.
func (sw *Switchboard) Speak(item Event) {
	sw.mux.RLock()
	defer sw.mux.RUnlock()

	matches := sw.eventType.Get(item.Type)

	matches.Do(func(i interface{}) {
		r := i.(Listener)
		r.Hear(item)
	})

	if matches.Len() == 0 {
		jww.WARN.Printf(
			"[EV] Event of type %q matched no listeners", item.Type)
	}
}

// Unregister removes the listener with the specified ID so it will no
// longer be called.
func (sw *Switchboard) Unregister(listenerID ListenerID) {
	sw.mux.Lock()
	sw.eventType.Remove(listenerID.eventType, listenerID.listener)
	sw.mux.Unlock()
}
