////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package storage mirrors confirmed conversation state into a local SQLite
// database behind the dm.Archive interface. The server stays authoritative;
// this is a sliding-window cache the client can render from while offline.
package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/gorm"

	"gitlab.com/elixxir/dmsync/dm"
)

const (
	// Can be provided to SqlLite to create a temporary, in-memory DB.
	temporaryDbPath = "file::memory:?cache=shared"

	// Determines maximum runtime of DB queries.
	dbTimeout = 3 * time.Second
)

// impl implements the dm.Archive interface with an underlying DB.
type impl struct {
	db *gorm.DB // Stored database connection
}

// newContext builds a context for database operations.
func newContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), dbTimeout)
}

// buildMessage converts an engine message into its row form.
func buildMessage(msg dm.Message) (*Message, error) {
	reactions, err := encodeReactions(msg.Reactions)
	if err != nil {
		return nil, err
	}

	return &Message{
		MessageId:     string(msg.ID),
		PeerId:        msg.PeerID,
		SenderId:      msg.SenderID,
		Kind:          uint16(msg.Kind),
		Body:          msg.Body,
		AttachmentRef: msg.AttachmentRef,
		ReplyToId:     string(msg.ReplyToID),
		Reactions:     reactions,
		Status:        uint8(msg.Status),
		Timestamp:     msg.CreatedAt,
		Edited:        msg.Edited,
		Deleted:       msg.Deleted,
	}, nil
}

// StoreMessage inserts the message, or overwrites the row that already
// holds its ID.
func (i *impl) StoreMessage(msg dm.Message) error {
	jww.TRACE.Printf("[DM SQL] StoreMessage(%s)", msg.ID)

	row, err := buildMessage(msg)
	if err != nil {
		return errors.Errorf("failed to StoreMessage: %+v", err)
	}

	// Reuse the autoincrement key of an existing row so Save updates
	// instead of colliding on the unique message ID.
	existing, err := i.getMessage(msg.ID)
	if err == nil {
		row.Id = existing.Id
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Errorf("failed to StoreMessage: %+v", err)
	}

	ctx, cancel := newContext()
	err = i.db.WithContext(ctx).Save(row).Error
	cancel()
	if err != nil {
		return errors.Errorf("failed to StoreMessage: %+v", err)
	}
	return nil
}

// UpdateStatus sets the delivery status of a stored message.
func (i *impl) UpdateStatus(id dm.MessageID, status dm.Status) error {
	jww.TRACE.Printf("[DM SQL] UpdateStatus(%s, %s)", id, status)
	return i.updateColumns(id, "UpdateStatus",
		map[string]interface{}{"status": uint8(status)})
}

// UpdateReactions replaces the reaction list of a stored message.
func (i *impl) UpdateReactions(id dm.MessageID, reactions []dm.Reaction) error {
	jww.TRACE.Printf("[DM SQL] UpdateReactions(%s)", id)

	encoded, err := encodeReactions(reactions)
	if err != nil {
		return errors.Errorf("failed to UpdateReactions: %+v", err)
	}
	return i.updateColumns(id, "UpdateReactions",
		map[string]interface{}{"reactions": encoded})
}

// MarkEdited replaces the body and sets the edited flag.
func (i *impl) MarkEdited(id dm.MessageID, body string) error {
	jww.TRACE.Printf("[DM SQL] MarkEdited(%s)", id)
	return i.updateColumns(id, "MarkEdited",
		map[string]interface{}{"body": body, "edited": true})
}

// MarkDeleted soft-deletes a stored message. The row is kept for timeline
// continuity, matching the engine's in-memory behavior.
func (i *impl) MarkDeleted(id dm.MessageID) error {
	jww.TRACE.Printf("[DM SQL] MarkDeleted(%s)", id)
	return i.updateColumns(id, "MarkDeleted",
		map[string]interface{}{"deleted": true})
}

// Clear drops every stored message for the peer.
func (i *impl) Clear(peerID string) error {
	jww.TRACE.Printf("[DM SQL] Clear(%s)", peerID)

	ctx, cancel := newContext()
	err := i.db.WithContext(ctx).
		Where("peer_id = ?", peerID).Delete(&Message{}).Error
	cancel()
	if err != nil {
		return errors.Errorf("failed to Clear: %+v", err)
	}
	return nil
}

// updateColumns applies the column changes to the row holding the message
// ID. Updating a message that was never stored is an error; the caller
// treats the archive as best-effort and logs it.
func (i *impl) updateColumns(
	id dm.MessageID, op string, columns map[string]interface{}) error {
	ctx, cancel := newContext()
	result := i.db.WithContext(ctx).Model(&Message{}).
		Where("message_id = ?", string(id)).Updates(columns)
	cancel()

	if result.Error != nil {
		return errors.Errorf("failed to %s: %+v", op, result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.Errorf(
			"failed to %s: no stored message %s", op, id)
	}
	return nil
}

// getMessage returns the row holding the given message ID.
func (i *impl) getMessage(id dm.MessageID) (*Message, error) {
	result := &Message{}
	ctx, cancel := newContext()
	err := i.db.WithContext(ctx).
		Where("message_id = ?", string(id)).Take(result).Error
	cancel()
	if err != nil {
		return nil, err
	}
	return result, nil
}

// countMessages returns how many rows the peer's conversation holds.
func (i *impl) countMessages(peerID string) (int64, error) {
	var count int64
	ctx, cancel := newContext()
	err := i.db.WithContext(ctx).Model(&Message{}).
		Where("peer_id = ?", peerID).Count(&count).Error
	cancel()
	return count, err
}

// encodeReactions flattens the reaction list for the row. A nil list
// encodes to nil so the column stays NULL for unreacted messages.
func encodeReactions(reactions []dm.Reaction) ([]byte, error) {
	if len(reactions) == 0 {
		return nil, nil
	}
	return json.Marshal(reactions)
}

// decodeReactions reverses encodeReactions.
func decodeReactions(data []byte) ([]dm.Reaction, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var reactions []dm.Reaction
	if err := json.Unmarshal(data, &reactions); err != nil {
		return nil, err
	}
	return reactions, nil
}
