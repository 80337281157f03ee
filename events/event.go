////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package events defines the vocabulary of the conversation feed and the
// switchboard used to fan inbound events out to registered listeners.
//
// The feed is a single ordered stream scoped to the authenticated user.
// Every transport adapter (websocket, test double) decodes its wire format
// into an Event and hands it to a Switchboard; consumers register listeners
// per event type and must unregister them on teardown.
package events

import "time"

// Type identifies the kind of event delivered over the conversation feed.
type Type string

const (
	// MessageReceived carries a full message authored by the peer or by
	// another session of the local user.
	MessageReceived Type = "message-received"

	// MessageEdited carries a replacement body for an existing message.
	MessageEdited Type = "message-edited"

	// MessageDeleted marks an existing message as deleted. The record is
	// retained by consumers for timeline continuity.
	MessageDeleted Type = "message-deleted"

	// ReadReceipt reports that every message authored by the local user in
	// the conversation has been read by ByUserID.
	ReadReceipt Type = "read-receipt"

	// ReactionUpdated carries the full authoritative reaction list for one
	// message. Consumers replace, never merge.
	ReactionUpdated Type = "reaction-updated"

	// TypingStarted and TypingStopped report peer typing activity. They
	// never modify message state.
	TypingStarted Type = "typing-started"
	TypingStopped Type = "typing-stopped"

	// AnyType matches every event type when registering a listener.
	AnyType Type = ""
)

// Event is a single item on the conversation feed. It is a flat structure
// with per-type optional fields so that it can be decoded directly from the
// wire; which fields are meaningful depends on Type.
type Event struct {
	Type Type  `json:"op"`
	Seq  int64 `json:"seq,omitempty"`

	// Message is set for MessageReceived.
	Message *MessagePayload `json:"message,omitempty"`

	// ByUserID is set for ReadReceipt.
	ByUserID string `json:"by_user_id,omitempty"`

	// MessageID is the target for ReactionUpdated, MessageEdited and
	// MessageDeleted.
	MessageID string `json:"message_id,omitempty"`

	// Reactions is the full replacement list for ReactionUpdated.
	Reactions []ReactionEntry `json:"reactions,omitempty"`

	// FromUserID is set for TypingStarted and TypingStopped.
	FromUserID string `json:"from_user_id,omitempty"`

	// PeerID is the target conversation on outbound typing emissions. It
	// is never set on inbound events.
	PeerID string `json:"peer_id,omitempty"`

	// Body is the replacement text for MessageEdited.
	Body string `json:"body,omitempty"`
}

// MessagePayload is the wire form of a message. It is defined here, rather
// than reusing the engine's message type, to keep transport adapters free of
// a dependency on the core packages.
type MessagePayload struct {
	ID            string          `json:"id"`
	SenderID      string          `json:"sender_id"`
	RecipientID   string          `json:"recipient_id"`
	Kind          uint16          `json:"kind"`
	Body          string          `json:"body,omitempty"`
	AttachmentRef string          `json:"attachment_ref,omitempty"`
	ReplyToID     string          `json:"reply_to_id,omitempty"`
	Reactions     []ReactionEntry `json:"reactions,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Edited        bool            `json:"edited,omitempty"`
	Deleted       bool            `json:"deleted,omitempty"`
}

// ReactionEntry is a single (user, emoji) pair on the wire.
type ReactionEntry struct {
	UserID string `json:"user_id"`
	Emoji  string `json:"emoji"`
}
