////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package dm

import (
	jww "github.com/spf13/jwalterweatherman"
)

// ReactionGroup is one rendered reaction bucket: an emoji, how many users
// picked it, and whether the local user is among them.
type ReactionGroup struct {
	Emoji    string
	Count    int
	DidReact bool
}

// AggregateReactions turns the raw per-user reaction list of one message
// into deduplicated, counted, display-ordered groups: descending by count,
// ties broken by first-seen emoji order. The input is never mutated.
//
// A well-formed list holds at most one entry per user; that invariant is
// enforced upstream by the server and by the toggle logic. If a duplicate
// user is seen anyway, later entries for that user are collapsed away
// rather than crashing or double-counting.
func AggregateReactions(reactions []Reaction, localUserID string) []ReactionGroup {
	groups := make(map[string]*ReactionGroup)
	order := make([]string, 0, len(reactions))
	seen := make(map[string]struct{}, len(reactions))

	for _, r := range reactions {
		if _, dup := seen[r.UserID]; dup {
			jww.WARN.Printf("[DM] Collapsed duplicate reaction entry "+
				"for user %s", r.UserID)
			continue
		}
		seen[r.UserID] = struct{}{}

		g, ok := groups[r.Emoji]
		if !ok {
			g = &ReactionGroup{Emoji: r.Emoji}
			groups[r.Emoji] = g
			order = append(order, r.Emoji)
		}
		g.Count++
		if r.UserID == localUserID {
			g.DidReact = true
		}
	}

	// Insertion sort on count keeps the first-seen order among ties.
	out := make([]ReactionGroup, 0, len(order))
	for _, emoji := range order {
		out = append(out, *groups[emoji])
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Count > out[j-1].Count; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}

	return out
}

// toggleReactions returns a new reaction list with the user's reaction
// toggled: absent → appended; same emoji → removed; different emoji →
// replaced in place. The input is never mutated and the single-reaction-
// per-user invariant holds on the output by construction.
func toggleReactions(reactions []Reaction, userID, emoji string) []Reaction {
	out := make([]Reaction, 0, len(reactions)+1)
	replaced := false

	for _, r := range reactions {
		if r.UserID != userID {
			out = append(out, r)
			continue
		}

		if r.Emoji == emoji {
			// Same emoji: toggle off by omission.
			replaced = true
			continue
		}

		// Different emoji: replace in place, keeping list position.
		out = append(out, Reaction{UserID: userID, Emoji: emoji})
		replaced = true
	}

	if !replaced {
		out = append(out, Reaction{UserID: userID, Emoji: emoji})
	}

	return out
}
