////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package dm

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"gitlab.com/elixxir/dmsync/events"
)

// localIDPrefix marks placeholder IDs minted by this client. The server
// never issues IDs with this prefix, so a local ID can always be told apart
// from a confirmed one.
const localIDPrefix = "local-"

// MessageID identifies a message. It is a server-issued stable identifier
// once confirmed, and a locally minted placeholder before that.
type MessageID string

// NewLocalID mints a placeholder MessageID. UUIDs make collisions within a
// session effectively impossible, which the reconciliation swap depends on.
func NewLocalID() MessageID {
	return MessageID(localIDPrefix + uuid.NewString())
}

// IsLocal reports whether the ID is a placeholder awaiting confirmation.
func (mid MessageID) IsLocal() bool {
	return strings.HasPrefix(string(mid), localIDPrefix)
}

// String adheres to the fmt.Stringer interface.
func (mid MessageID) String() string {
	return string(mid)
}

// Reaction is a single (user, emoji) pair on a message. A user holds at
// most one active reaction per message.
type Reaction struct {
	UserID string
	Emoji  string
}

// Message is a single entry in a conversation timeline.
type Message struct {
	ID       MessageID
	PeerID   string
	SenderID string
	Kind     Kind

	// Body is the textual content. It may be empty for attachment-only
	// kinds.
	Body string

	// AttachmentRef is an opaque reference to uploaded media, issued by
	// the server.
	AttachmentRef string

	// ReplyToID optionally references another message in the same
	// conversation.
	ReplyToID MessageID

	// Reactions holds at most one entry per user, in server order.
	Reactions []Reaction

	Status    Status
	CreatedAt time.Time

	Deleted bool
	Edited  bool
}

// Attachment is binary media staged for an outgoing message.
type Attachment struct {
	Data        []byte
	ContentType string
}

// SendRequest describes one outgoing message. All fields are optional, but
// at least one of Text or Attachment must be set.
type SendRequest struct {
	Text       string
	Attachment *Attachment
	ReplyToID  MessageID
}

// kindFor determines the outgoing kind from the request contents.
func (sr SendRequest) kindFor() Kind {
	if sr.Attachment != nil {
		if strings.HasPrefix(sr.Attachment.ContentType, "audio/") {
			return KindAudio
		}
		return KindImage
	}
	return ClassifyBody(sr.Text)
}

// fromWire converts a feed payload into a Message. The peer of the
// conversation is supplied by the caller because the wire form carries
// sender and recipient, not a conversation key.
func fromWire(p *events.MessagePayload, peerID string, status Status) Message {
	reactions := make([]Reaction, 0, len(p.Reactions))
	for _, r := range p.Reactions {
		reactions = append(reactions, Reaction{UserID: r.UserID, Emoji: r.Emoji})
	}

	return Message{
		ID:            MessageID(p.ID),
		PeerID:        peerID,
		SenderID:      p.SenderID,
		Kind:          Kind(p.Kind),
		Body:          p.Body,
		AttachmentRef: p.AttachmentRef,
		ReplyToID:     MessageID(p.ReplyToID),
		Reactions:     reactions,
		Status:        status,
		CreatedAt:     p.CreatedAt,
		Deleted:       p.Deleted,
		Edited:        p.Edited,
	}
}

// reactionsFromWire converts feed reaction entries into Reactions.
func reactionsFromWire(entries []events.ReactionEntry) []Reaction {
	reactions := make([]Reaction, 0, len(entries))
	for _, r := range entries {
		reactions = append(reactions, Reaction{UserID: r.UserID, Emoji: r.Emoji})
	}
	return reactions
}
