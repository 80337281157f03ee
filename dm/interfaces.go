////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package dm

import (
	"context"
)

// Transport is the network collaborator a Session submits work to. The
// engine defines no timeouts of its own; implementations own retry and
// timeout policy and honor the passed context.
type Transport interface {
	// FetchHistory returns the loaded window of messages for the peer,
	// oldest first.
	FetchHistory(ctx context.Context, peerID string) ([]Message, error)

	// SubmitMessage sends one outgoing message and returns the confirmed
	// Message as issued by the server.
	SubmitMessage(ctx context.Context, out OutgoingMessage) (Message, error)

	// AcknowledgeRead reports that the local user has read the
	// conversation with the peer.
	AcknowledgeRead(ctx context.Context, peerID string) error

	// ToggleReaction flips the local user's reaction on the given message.
	ToggleReaction(ctx context.Context, id MessageID, emoji string) error
}

// OutgoingMessage is the payload handed to Transport.SubmitMessage. TempID
// is the local placeholder the server response will be reconciled against;
// it is not transmitted as the message identity.
type OutgoingMessage struct {
	TempID     MessageID
	PeerID     string
	Kind       Kind
	Body       string
	Attachment *Attachment
	ReplyToID  MessageID
}

// Callbacks receives engine notifications. All methods are called without
// internal locks held and may call back into the Session; they should
// return promptly.
type Callbacks interface {
	// TimelineChanged is called after any mutation of the timeline,
	// carrying the ID of the affected message. The ID is empty for bulk
	// changes such as a conversation clear.
	TimelineChanged(id MessageID)

	// SendFailed is called exactly once per failed send, after the
	// optimistic placeholder has been removed.
	SendFailed(tempID MessageID, err error)

	// PeerTyping is called when the peer starts or stops typing.
	PeerTyping(typing bool)
}

// Archive mirrors confirmed conversation state into local storage. The
// server stays authoritative; the archive is a sliding-window cache and
// every method is best-effort from the Session's point of view.
type Archive interface {
	// StoreMessage inserts the message, or updates it if the ID exists.
	StoreMessage(msg Message) error

	// UpdateStatus sets the delivery status of a stored message.
	UpdateStatus(id MessageID, status Status) error

	// UpdateReactions replaces the reaction list of a stored message.
	UpdateReactions(id MessageID, reactions []Reaction) error

	// MarkEdited replaces the body and sets the edited flag.
	MarkEdited(id MessageID, body string) error

	// MarkDeleted soft-deletes a stored message.
	MarkDeleted(id MessageID) error

	// Clear drops every stored message for the peer.
	Clear(peerID string) error
}

// noopCallbacks is substituted when a Session is built without callbacks.
type noopCallbacks struct{}

func (noopCallbacks) TimelineChanged(MessageID)   {}
func (noopCallbacks) SendFailed(MessageID, error) {}
func (noopCallbacks) PeerTyping(bool)             {}
