////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package dm

import (
	"sync"
	"time"

	jww "github.com/spf13/jwalterweatherman"
)

// highlightWindow is how long a scroll-anchor highlight stays active before
// it clears itself.
const highlightWindow = time.Second

// Timeline is the ordered collection of messages for one open conversation.
// It is insertion-ordered and unique by ID, and it is rebuilt from scratch
// on a peer change. Both the send pipeline and the reconciler mutate it.
type Timeline struct {
	msgs  []Message
	index map[MessageID]int

	highlighted    MessageID
	highlightTimer *time.Timer

	mux sync.RWMutex
}

// NewTimeline returns an empty Timeline.
func NewTimeline() *Timeline {
	return &Timeline{
		index: make(map[MessageID]int),
	}
}

// Len returns the number of messages, deleted records included.
func (t *Timeline) Len() int {
	t.mux.RLock()
	defer t.mux.RUnlock()
	return len(t.msgs)
}

// Append adds the message to the end of the timeline. A message whose ID is
// already present is dropped with a warning; the timeline never holds two
// records with the same ID.
func (t *Timeline) Append(msg Message) bool {
	t.mux.Lock()
	defer t.mux.Unlock()

	if _, exists := t.index[msg.ID]; exists {
		jww.WARN.Printf("[DM] Dropped duplicate append of message %s",
			msg.ID)
		return false
	}

	t.index[msg.ID] = len(t.msgs)
	t.msgs = append(t.msgs, msg)
	return true
}

// Replace swaps the placeholder with the given temp ID for the confirmed
// message, in place. The message keeps its position in the sequence so that
// in-flight scroll or highlight references stay valid across confirmation.
//
// When a record with the confirmed ID is already present (the feed echo
// landed before the confirmation), the placeholder is removed and the
// existing record absorbs the confirmation instead; the timeline never
// holds two records with the same ID.
func (t *Timeline) Replace(tempID MessageID, confirmed Message) bool {
	t.mux.Lock()
	defer t.mux.Unlock()

	pos, exists := t.index[tempID]
	if !exists {
		return false
	}

	if echoPos, dup := t.index[confirmed.ID]; dup {
		t.msgs[echoPos].Status = t.msgs[echoPos].Status.Upgrade(
			confirmed.Status)
		t.removeAt(tempID, pos)
		if t.highlighted == tempID {
			t.highlighted = confirmed.ID
		}
		return true
	}

	delete(t.index, tempID)
	t.index[confirmed.ID] = pos
	t.msgs[pos] = confirmed

	// Carry a highlight across the swap.
	if t.highlighted == tempID {
		t.highlighted = confirmed.ID
	}

	return true
}

// UpdateByID applies the patch function to the message with the given ID
// under the timeline lock. Returns false if the ID is not present.
func (t *Timeline) UpdateByID(id MessageID, patch func(*Message)) bool {
	t.mux.Lock()
	defer t.mux.Unlock()

	pos, exists := t.index[id]
	if !exists {
		return false
	}

	patch(&t.msgs[pos])
	return true
}

// RemoveByID deletes the message with the given ID, closing the gap.
func (t *Timeline) RemoveByID(id MessageID) bool {
	t.mux.Lock()
	defer t.mux.Unlock()

	pos, exists := t.index[id]
	if !exists {
		return false
	}

	t.removeAt(id, pos)

	if t.highlighted == id {
		t.highlighted = ""
	}

	return true
}

// removeAt drops the entry at pos and reindexes everything behind it.
// Callers must hold the lock.
func (t *Timeline) removeAt(id MessageID, pos int) {
	delete(t.index, id)
	t.msgs = append(t.msgs[:pos], t.msgs[pos+1:]...)
	for i := pos; i < len(t.msgs); i++ {
		t.index[t.msgs[i].ID] = i
	}
}

// FindByID returns a copy of the message with the given ID.
func (t *Timeline) FindByID(id MessageID) (Message, bool) {
	t.mux.RLock()
	defer t.mux.RUnlock()

	pos, exists := t.index[id]
	if !exists {
		return Message{}, false
	}
	return t.msgs[pos], true
}

// Messages returns a copy of the full ordered sequence.
func (t *Timeline) Messages() []Message {
	t.mux.RLock()
	defer t.mux.RUnlock()

	out := make([]Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Clear empties the timeline. Used on conversation wipe and peer change.
func (t *Timeline) Clear() {
	t.mux.Lock()
	defer t.mux.Unlock()

	t.msgs = nil
	t.index = make(map[MessageID]int)
	t.highlighted = ""
	if t.highlightTimer != nil {
		t.highlightTimer.Stop()
		t.highlightTimer = nil
	}
}

// ScrollAnchor locates the message with the given ID for reply-preview
// navigation and arms a transient highlight on it that clears itself after
// highlightWindow. If the target is outside the loaded window it returns
// (-1, false) and the caller reports the message as not available here.
func (t *Timeline) ScrollAnchor(id MessageID) (int, bool) {
	t.mux.Lock()
	defer t.mux.Unlock()

	pos, exists := t.index[id]
	if !exists {
		jww.DEBUG.Printf("[DM] Scroll anchor %s is outside the loaded "+
			"window", id)
		return -1, false
	}

	t.highlighted = id
	if t.highlightTimer != nil {
		t.highlightTimer.Stop()
	}
	t.highlightTimer = time.AfterFunc(highlightWindow, func() {
		t.mux.Lock()
		if t.highlighted == id {
			t.highlighted = ""
		}
		t.mux.Unlock()
	})

	return pos, true
}

// Highlighted returns the currently highlighted message ID, if any.
func (t *Timeline) Highlighted() (MessageID, bool) {
	t.mux.RLock()
	defer t.mux.RUnlock()
	return t.highlighted, t.highlighted != ""
}
