////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package dm

import "strconv"

// Status is the delivery state of a message. For a locally authored message
// it is monotonically non-decreasing from Pending through Read; for a
// peer-authored message only Delivered and Read are meaningful locally.
type Status uint8

const (
	// Pending is the status of an optimistic message before the server
	// confirms it.
	Pending Status = iota

	// Sent is the status of a message once the server has accepted it.
	Sent

	// Delivered is the status of a message once it has reached the peer.
	Delivered

	// Read is the status of a message once the peer has read it. Terminal.
	Read
)

// String returns a human-readable version of [Status], used for debugging
// and logging. This function adheres to the [fmt.Stringer] interface.
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Sent:
		return "sent"
	case Delivered:
		return "delivered"
	case Read:
		return "read"
	default:
		return "Invalid Status: " + strconv.Itoa(int(s))
	}
}

// Upgrade returns the later of the two statuses. Delivery state never
// regresses; apply every remote status change through this.
func (s Status) Upgrade(next Status) Status {
	if next > s {
		return next
	}
	return s
}
