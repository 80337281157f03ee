////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gitlab.com/elixxir/dmsync/dm"
)

var dbSeq int

// newTestImpl opens a uniquely named in-memory database so tests do not
// share state through the shared cache.
func newTestImpl(t *testing.T) *impl {
	dbSeq++
	path := fmt.Sprintf("file:storagetest%d?mode=memory&cache=shared", dbSeq)
	i, err := newImpl(path, false)
	require.NoError(t, err)
	return i
}

func testMessage(id dm.MessageID) dm.Message {
	return dm.Message{
		ID:        id,
		PeerID:    "peer",
		SenderID:  "me",
		Kind:      dm.KindText,
		Body:      "archived body",
		Status:    dm.Sent,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

// Tests storing a message and overwriting it under the same ID.
func TestImpl_StoreMessage(t *testing.T) {
	i := newTestImpl(t)

	msg := testMessage("srv-1")
	msg.Reactions = []dm.Reaction{{UserID: "peer", Emoji: "👍"}}
	require.NoError(t, i.StoreMessage(msg))

	row, err := i.getMessage("srv-1")
	require.NoError(t, err)
	require.Equal(t, "archived body", row.Body)
	require.Equal(t, uint8(dm.Sent), row.Status)

	reactions, err := decodeReactions(row.Reactions)
	require.NoError(t, err)
	require.Equal(t, msg.Reactions, reactions)

	// Storing again under the same ID overwrites, not duplicates.
	msg.Body = "rewritten"
	require.NoError(t, i.StoreMessage(msg))

	count, err := i.countMessages("peer")
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	row, err = i.getMessage("srv-1")
	require.NoError(t, err)
	require.Equal(t, "rewritten", row.Body)
}

// Tests the column-level update operations.
func TestImpl_Updates(t *testing.T) {
	i := newTestImpl(t)
	require.NoError(t, i.StoreMessage(testMessage("srv-1")))

	require.NoError(t, i.UpdateStatus("srv-1", dm.Read))
	require.NoError(t, i.UpdateReactions("srv-1",
		[]dm.Reaction{{UserID: "peer", Emoji: "❤️"}}))
	require.NoError(t, i.MarkEdited("srv-1", "edited body"))
	require.NoError(t, i.MarkDeleted("srv-1"))

	row, err := i.getMessage("srv-1")
	require.NoError(t, err)
	require.Equal(t, uint8(dm.Read), row.Status)
	require.Equal(t, "edited body", row.Body)
	require.True(t, row.Edited)
	require.True(t, row.Deleted)

	reactions, err := decodeReactions(row.Reactions)
	require.NoError(t, err)
	require.Equal(t,
		[]dm.Reaction{{UserID: "peer", Emoji: "❤️"}}, reactions)
}

// Tests that updates against a message that was never stored error out
// instead of silently affecting nothing.
func TestImpl_UpdateMissing(t *testing.T) {
	i := newTestImpl(t)

	require.Error(t, i.UpdateStatus("ghost", dm.Read))
	require.Error(t, i.MarkEdited("ghost", "body"))
	require.Error(t, i.MarkDeleted("ghost"))
	require.Error(t, i.UpdateReactions("ghost", nil))
}

// Tests that Clear wipes one peer's rows and leaves other conversations
// alone.
func TestImpl_Clear(t *testing.T) {
	i := newTestImpl(t)

	require.NoError(t, i.StoreMessage(testMessage("srv-1")))
	require.NoError(t, i.StoreMessage(testMessage("srv-2")))

	other := testMessage("srv-3")
	other.PeerID = "other"
	require.NoError(t, i.StoreMessage(other))

	require.NoError(t, i.Clear("peer"))

	count, err := i.countMessages("peer")
	require.NoError(t, err)
	require.Zero(t, count)

	count, err = i.countMessages("other")
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

// Tests the reaction codec round trip and its NULL handling.
func TestReactionCodec(t *testing.T) {
	encoded, err := encodeReactions(nil)
	require.NoError(t, err)
	require.Nil(t, encoded)

	decoded, err := decodeReactions(nil)
	require.NoError(t, err)
	require.Nil(t, decoded)

	in := []dm.Reaction{
		{UserID: "a", Emoji: "👍"},
		{UserID: "b", Emoji: "❤️"},
	}
	encoded, err = encodeReactions(in)
	require.NoError(t, err)
	decoded, err = decodeReactions(encoded)
	require.NoError(t, err)
	require.Equal(t, in, decoded)
}
