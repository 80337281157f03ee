////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package dm

import (
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/ekv"
)

const (
	sendTrackerUnsentStorageKey = "dmSendTrackerUnsent"
)

// sendTracker follows outbound messages across their confirmation. It
// serves two jobs: it remembers which placeholder each in-flight send
// belongs to, and it captures feed echoes of messages this client sent so
// they are diverted into status updates instead of duplicate appends.
//
// Reconciliation is by ID bookkeeping, never content matching: two
// identical texts sent in quick succession must stay distinct.
type sendTracker struct {
	// unsent maps placeholder IDs of in-flight sends to their peer.
	unsent map[MessageID]string

	// confirmed maps server-issued IDs of completed sends back to the
	// placeholder they replaced.
	confirmed map[MessageID]MessageID

	kv ekv.KeyValue

	mux sync.Mutex
}

// newSendTracker loads a tracker from the key-value store. Any unsent
// entries left over from a previous run can no longer complete; they are
// returned so the caller can report them failed, and the stored set is
// cleared.
func newSendTracker(kv ekv.KeyValue) (*sendTracker, []MessageID) {
	st := &sendTracker{
		unsent:    make(map[MessageID]string),
		confirmed: make(map[MessageID]MessageID),
		kv:        kv,
	}

	var leftover []MessageID
	stored := make(map[MessageID]string)
	err := kv.GetInterface(sendTrackerUnsentStorageKey, &stored)
	if err == nil {
		for id := range stored {
			leftover = append(leftover, id)
		}
	} else if ekv.Exists(err) {
		jww.ERROR.Printf("[DM] Failed to load unsent sends: %+v", err)
	}

	if err = st.storeUnsent(); err != nil {
		jww.ERROR.Printf("[DM] Failed to clear unsent sends: %+v", err)
	}

	return st, leftover
}

// DenotePendingSend registers a placeholder before its network submission
// starts.
func (st *sendTracker) DenotePendingSend(tempID MessageID, peerID string) {
	st.mux.Lock()
	defer st.mux.Unlock()

	if _, exists := st.unsent[tempID]; exists {
		return
	}

	st.unsent[tempID] = peerID
	if err := st.storeUnsent(); err != nil {
		jww.ERROR.Printf("[DM] Failed to store unsent sends: %+v", err)
	}
}

// Sent records the server-issued ID for a completed send so a later feed
// echo of it can be recognized.
func (st *sendTracker) Sent(tempID, confirmedID MessageID) error {
	st.mux.Lock()
	defer st.mux.Unlock()

	if _, exists := st.unsent[tempID]; !exists {
		return errors.Errorf(
			"cannot mark unprepared send %s as sent", tempID)
	}

	delete(st.unsent, tempID)
	st.confirmed[confirmedID] = tempID

	if err := st.storeUnsent(); err != nil {
		jww.ERROR.Printf("[DM] Failed to store unsent sends: %+v", err)
	}
	return nil
}

// FailedSend drops a placeholder whose submission failed.
func (st *sendTracker) FailedSend(tempID MessageID) error {
	st.mux.Lock()
	defer st.mux.Unlock()

	if _, exists := st.unsent[tempID]; !exists {
		return errors.Errorf(
			"cannot mark unprepared send %s as failed", tempID)
	}

	delete(st.unsent, tempID)

	if err := st.storeUnsent(); err != nil {
		jww.ERROR.Printf("[DM] Failed to store unsent sends: %+v", err)
	}
	return nil
}

// CheckIfSent reports whether the given confirmed ID belongs to a message
// this client sent itself.
func (st *sendTracker) CheckIfSent(confirmedID MessageID) bool {
	st.mux.Lock()
	defer st.mux.Unlock()
	_, exists := st.confirmed[confirmedID]
	return exists
}

// Resolve maps a placeholder ID to its confirmed ID, if the send has
// completed. Scroll and highlight references taken before confirmation use
// this to follow the swap.
func (st *sendTracker) Resolve(tempID MessageID) (MessageID, bool) {
	st.mux.Lock()
	defer st.mux.Unlock()

	for confirmedID, tid := range st.confirmed {
		if tid == tempID {
			return confirmedID, true
		}
	}
	return "", false
}

// StopTracking forgets a confirmed send once its echo has been handled.
func (st *sendTracker) StopTracking(confirmedID MessageID) bool {
	st.mux.Lock()
	defer st.mux.Unlock()

	if _, exists := st.confirmed[confirmedID]; !exists {
		return false
	}
	delete(st.confirmed, confirmedID)
	return true
}

// storeUnsent persists the in-flight set. Callers must hold the mutex.
func (st *sendTracker) storeUnsent() error {
	return st.kv.SetInterface(sendTrackerUnsentStorageKey, st.unsent)
}
