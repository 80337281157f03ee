////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package dm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Tests grouping, count ordering, and the first-seen tiebreak.
func TestAggregateReactions(t *testing.T) {
	raw := []Reaction{
		{UserID: "a", Emoji: "❤️"},
		{UserID: "b", Emoji: "👍"},
		{UserID: "c", Emoji: "👍"},
		{UserID: "d", Emoji: "🎉"},
	}

	groups := AggregateReactions(raw, "c")
	require.Equal(t, []ReactionGroup{
		{Emoji: "👍", Count: 2, DidReact: true},
		{Emoji: "❤️", Count: 1},
		{Emoji: "🎉", Count: 1},
	}, groups)
}

// Tests that ties keep first-seen emoji order.
func TestAggregateReactions_TieOrder(t *testing.T) {
	raw := []Reaction{
		{UserID: "a", Emoji: "🎉"},
		{UserID: "b", Emoji: "👍"},
		{UserID: "c", Emoji: "❤️"},
	}

	groups := AggregateReactions(raw, "nobody")
	require.Equal(t, []string{"🎉", "👍", "❤️"},
		[]string{groups[0].Emoji, groups[1].Emoji, groups[2].Emoji})
	for _, g := range groups {
		require.False(t, g.DidReact)
	}
}

// Tests that duplicate entries for one user are collapsed to the first
// rather than double-counted.
func TestAggregateReactions_CollapsesDuplicates(t *testing.T) {
	raw := []Reaction{
		{UserID: "a", Emoji: "👍"},
		{UserID: "a", Emoji: "❤️"},
		{UserID: "a", Emoji: "👍"},
	}

	groups := AggregateReactions(raw, "a")
	require.Equal(t, []ReactionGroup{
		{Emoji: "👍", Count: 1, DidReact: true},
	}, groups)
}

// Tests that aggregation never mutates its input.
func TestAggregateReactions_PureInput(t *testing.T) {
	raw := []Reaction{
		{UserID: "a", Emoji: "👍"},
		{UserID: "b", Emoji: "❤️"},
	}
	snapshot := make([]Reaction, len(raw))
	copy(snapshot, raw)

	AggregateReactions(raw, "a")
	require.Equal(t, snapshot, raw)

	require.Empty(t, AggregateReactions(nil, "a"))
}

// Tests the toggle state machine: absent appends, same removes, different
// replaces in place.
func TestToggleReactions(t *testing.T) {
	var reactions []Reaction

	// Absent: append.
	reactions = toggleReactions(reactions, "me", "👍")
	require.Equal(t, []Reaction{{UserID: "me", Emoji: "👍"}}, reactions)

	// Same emoji again: toggle off.
	reactions = toggleReactions(reactions, "me", "👍")
	require.Empty(t, reactions)

	// Append, then switch: exactly one entry, new emoji.
	reactions = toggleReactions(reactions, "me", "👍")
	reactions = toggleReactions(reactions, "me", "❤️")
	require.Equal(t, []Reaction{{UserID: "me", Emoji: "❤️"}}, reactions)
}

// Tests that a toggle keeps the user's list position and leaves other
// users' entries alone.
func TestToggleReactions_KeepsPosition(t *testing.T) {
	reactions := []Reaction{
		{UserID: "a", Emoji: "👍"},
		{UserID: "me", Emoji: "👍"},
		{UserID: "b", Emoji: "🎉"},
	}
	snapshot := make([]Reaction, len(reactions))
	copy(snapshot, reactions)

	out := toggleReactions(reactions, "me", "❤️")
	require.Equal(t, []Reaction{
		{UserID: "a", Emoji: "👍"},
		{UserID: "me", Emoji: "❤️"},
		{UserID: "b", Emoji: "🎉"},
	}, out)

	// Input untouched.
	require.Equal(t, snapshot, reactions)
}

// Tests that two identical toggles in a row restore the pre-toggle state
// regardless of the starting list.
func TestToggleReactions_Idempotence(t *testing.T) {
	start := []Reaction{{UserID: "a", Emoji: "🎉"}}

	once := toggleReactions(start, "me", "👍")
	twice := toggleReactions(once, "me", "👍")
	require.Equal(t, start, twice)
}
