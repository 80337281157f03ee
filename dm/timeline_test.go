////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package dm

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func makeTestMessage(id MessageID, sender string) Message {
	return Message{
		ID:        id,
		PeerID:    "peer",
		SenderID:  sender,
		Kind:      KindText,
		Body:      "body of " + string(id),
		Status:    Sent,
		CreatedAt: time.Now(),
	}
}

// Tests that append preserves order, rejects duplicate IDs, and keeps the
// index consistent.
func TestTimeline_Append(t *testing.T) {
	tl := NewTimeline()

	for i := 0; i < 5; i++ {
		id := MessageID(fmt.Sprintf("m%d", i))
		require.True(t, tl.Append(makeTestMessage(id, "peer")))
	}
	require.Equal(t, 5, tl.Len())

	// A second record with an existing ID is dropped.
	require.False(t, tl.Append(makeTestMessage("m3", "peer")))
	require.Equal(t, 5, tl.Len())

	msgs := tl.Messages()
	for i, msg := range msgs {
		require.Equal(t, MessageID(fmt.Sprintf("m%d", i)), msg.ID)
	}
}

// Tests that replacing a placeholder keeps its position and that the old ID
// is no longer resolvable.
func TestTimeline_Replace(t *testing.T) {
	tl := NewTimeline()
	tl.Append(makeTestMessage("m0", "peer"))
	tempID := NewLocalID()
	tl.Append(makeTestMessage(tempID, "me"))
	tl.Append(makeTestMessage("m2", "peer"))

	confirmed := makeTestMessage("srv-1", "me")
	require.True(t, tl.Replace(tempID, confirmed))

	msgs := tl.Messages()
	require.Len(t, msgs, 3)
	require.Equal(t, MessageID("srv-1"), msgs[1].ID)

	_, found := tl.FindByID(tempID)
	require.False(t, found)

	// Replacing an absent placeholder reports false.
	require.False(t, tl.Replace("local-gone", confirmed))
}

// Tests that replacing a placeholder whose confirmed ID is already present
// merges into the existing record instead of indexing a duplicate.
func TestTimeline_ReplaceCollision(t *testing.T) {
	tl := NewTimeline()
	tempID := NewLocalID()
	tl.Append(makeTestMessage(tempID, "me"))

	echo := makeTestMessage("srv-1", "me")
	echo.Status = Delivered
	tl.Append(echo)

	require.True(t, tl.Replace(tempID, makeTestMessage("srv-1", "me")))

	msgs := tl.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, MessageID("srv-1"), msgs[0].ID)
	// The existing record's status is never regressed by the merge.
	require.Equal(t, Delivered, msgs[0].Status)

	_, found := tl.FindByID(tempID)
	require.False(t, found)

	// The index still points at the surviving record.
	pos, ok := tl.ScrollAnchor("srv-1")
	require.True(t, ok)
	require.Equal(t, 0, pos)
}

// Tests that a highlight armed on a placeholder survives the confirmation
// swap under the new ID.
func TestTimeline_ReplaceCarriesHighlight(t *testing.T) {
	tl := NewTimeline()
	tempID := NewLocalID()
	tl.Append(makeTestMessage(tempID, "me"))

	_, ok := tl.ScrollAnchor(tempID)
	require.True(t, ok)

	require.True(t, tl.Replace(tempID, makeTestMessage("srv-1", "me")))

	highlighted, ok := tl.Highlighted()
	require.True(t, ok)
	require.Equal(t, MessageID("srv-1"), highlighted)
}

// Tests that removal closes the gap and reindexes the tail.
func TestTimeline_RemoveByID(t *testing.T) {
	tl := NewTimeline()
	for i := 0; i < 4; i++ {
		tl.Append(makeTestMessage(MessageID(fmt.Sprintf("m%d", i)), "peer"))
	}

	require.True(t, tl.RemoveByID("m1"))
	require.False(t, tl.RemoveByID("m1"))
	require.Equal(t, 3, tl.Len())

	// Lookups after the removed position still hit the right records.
	msg, found := tl.FindByID("m3")
	require.True(t, found)
	require.Equal(t, MessageID("m3"), msg.ID)

	msgs := tl.Messages()
	require.Equal(t,
		[]MessageID{"m0", "m2", "m3"},
		[]MessageID{msgs[0].ID, msgs[1].ID, msgs[2].ID})
}

// Tests that UpdateByID patches in place and reports absent IDs.
func TestTimeline_UpdateByID(t *testing.T) {
	tl := NewTimeline()
	tl.Append(makeTestMessage("m0", "me"))

	require.True(t, tl.UpdateByID("m0", func(msg *Message) {
		msg.Status = msg.Status.Upgrade(Read)
	}))
	msg, _ := tl.FindByID("m0")
	require.Equal(t, Read, msg.Status)

	require.False(t, tl.UpdateByID("missing", func(*Message) {
		t.Error("patch ran for an absent ID")
	}))
}

// Tests that a scroll anchor degrades gracefully outside the loaded window
// and that the highlight clears itself.
func TestTimeline_ScrollAnchor(t *testing.T) {
	tl := NewTimeline()
	tl.Append(makeTestMessage("m0", "peer"))
	tl.Append(makeTestMessage("m1", "peer"))

	pos, ok := tl.ScrollAnchor("m1")
	require.True(t, ok)
	require.Equal(t, 1, pos)

	highlighted, ok := tl.Highlighted()
	require.True(t, ok)
	require.Equal(t, MessageID("m1"), highlighted)

	// Outside the loaded window: no crash, no highlight change.
	pos, ok = tl.ScrollAnchor("ancient")
	require.False(t, ok)
	require.Equal(t, -1, pos)

	// The highlight clears on its own.
	require.Eventually(t, func() bool {
		_, ok := tl.Highlighted()
		return !ok
	}, 3*highlightWindow, 10*time.Millisecond)
}

// Tests that Clear empties everything, including an armed highlight.
func TestTimeline_Clear(t *testing.T) {
	tl := NewTimeline()
	tl.Append(makeTestMessage("m0", "peer"))
	tl.ScrollAnchor("m0")

	tl.Clear()

	require.Zero(t, tl.Len())
	_, ok := tl.Highlighted()
	require.False(t, ok)

	// The timeline is reusable after a clear.
	require.True(t, tl.Append(makeTestMessage("m0", "peer")))
}
