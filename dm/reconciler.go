////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package dm

import (
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/dmsync/events"
	"gitlab.com/elixxir/dmsync/stoppable"
)

// reconcile drains the feed listener channel and applies each event in
// receipt order. It is the only goroutine that applies remote events, so no
// reordering or batching across event kinds can occur.
func (s *Session) reconcile(stop *stoppable.Single) {
	for {
		select {
		case <-stop.Quit():
			stop.ToStopped()
			return

		case ev := <-s.eventCh:
			s.apply(ev)
		}
	}
}

// apply merges one feed event into the timeline. Events that reference a
// message outside the loaded window are silent no-ops; the timeline is a
// sliding window, not the full history.
func (s *Session) apply(ev events.Event) {
	switch ev.Type {
	case events.MessageReceived:
		s.applyMessage(ev)

	case events.ReadReceipt:
		s.applyReadReceipt(ev)

	case events.ReactionUpdated:
		s.applyReactions(ev)

	case events.MessageEdited:
		s.applyEdit(ev)

	case events.MessageDeleted:
		s.applyDelete(ev)

	case events.TypingStarted, events.TypingStopped:
		if ev.FromUserID == s.peerID {
			s.cbs.PeerTyping(ev.Type == events.TypingStarted)
		}

	default:
		jww.WARN.Printf("[DM] Ignored feed event of unknown type %q",
			ev.Type)
	}
}

// applyMessage handles message-received. Three origins are possible: the
// peer wrote it, this client wrote it and this is the feed echo, or another
// session of the local user wrote it.
func (s *Session) applyMessage(ev events.Event) {
	p := ev.Message
	if p == nil {
		jww.WARN.Printf("[DM] Dropped message-received event with no " +
			"message payload")
		return
	}

	switch {
	case p.SenderID == s.peerID && p.RecipientID == s.me:
		// Peer-authored message for this conversation.
		msg := fromWire(p, s.peerID, Delivered)
		if !s.timeline.Append(msg) {
			// Redelivery of a message already held; nothing to do.
			return
		}
		s.archiveStore(msg)
		s.cbs.TimelineChanged(msg.ID)

		// Seen live means read; acknowledge exactly once per event.
		if s.isViewing() {
			s.acknowledgeRead()
		}

	case p.SenderID == s.me && p.RecipientID == s.peerID:
		confirmedID := MessageID(p.ID)
		if s.tracker.CheckIfSent(confirmedID) {
			// Echo of this client's own send. The round trip through the
			// server promotes the record, never duplicates it.
			s.timeline.UpdateByID(confirmedID, func(msg *Message) {
				msg.Status = msg.Status.Upgrade(Delivered)
			})
			s.archiveStatus(confirmedID, Delivered)
			s.tracker.StopTracking(confirmedID)
			s.cbs.TimelineChanged(confirmedID)
			return
		}

		// Authored by another session of the local user.
		msg := fromWire(p, s.peerID, Sent)
		if s.timeline.Append(msg) {
			s.archiveStore(msg)
			s.cbs.TimelineChanged(msg.ID)
		}

	default:
		// The feed is scoped to the user, not the conversation; messages
		// for other peers belong to other sessions.
		jww.DEBUG.Printf("[DM] Ignored message %s outside conversation "+
			"with %s", p.ID, s.peerID)
	}
}

// applyReadReceipt handles read-receipt: every locally-authored message is
// promoted to read. Promotion is monotonic, so a repeated receipt is a
// no-op.
func (s *Session) applyReadReceipt(ev events.Event) {
	if ev.ByUserID != s.peerID {
		jww.DEBUG.Printf("[DM] Ignored read receipt by %s outside "+
			"conversation with %s", ev.ByUserID, s.peerID)
		return
	}

	for _, msg := range s.timeline.Messages() {
		if msg.SenderID != s.me || msg.Status == Read {
			continue
		}

		id := msg.ID
		s.timeline.UpdateByID(id, func(m *Message) {
			m.Status = m.Status.Upgrade(Read)
		})
		s.archiveStatus(id, Read)
		s.cbs.TimelineChanged(id)
	}
}

// applyReactions handles reaction-updated: the server's list replaces the
// local one wholesale. No merge, so a repeated event is a no-op.
func (s *Session) applyReactions(ev events.Event) {
	id := MessageID(ev.MessageID)
	reactions := reactionsFromWire(ev.Reactions)

	found := s.timeline.UpdateByID(id, func(msg *Message) {
		msg.Reactions = reactions
	})
	if !found {
		jww.DEBUG.Printf("[DM] Reaction update for %s targets a message "+
			"outside the loaded window", id)
		return
	}

	if s.archive != nil {
		if err := s.archive.UpdateReactions(id, reactions); err != nil {
			jww.WARN.Printf("[DM] Failed to archive reactions of %s: %+v",
				id, err)
		}
	}
	s.cbs.TimelineChanged(id)
}

// applyEdit handles message-edited: the body is replaced and the record is
// flagged edited.
func (s *Session) applyEdit(ev events.Event) {
	id := MessageID(ev.MessageID)

	found := s.timeline.UpdateByID(id, func(msg *Message) {
		msg.Body = ev.Body
		msg.Edited = true
	})
	if !found {
		jww.DEBUG.Printf("[DM] Edit of %s targets a message outside the "+
			"loaded window", id)
		return
	}

	if s.archive != nil {
		if err := s.archive.MarkEdited(id, ev.Body); err != nil {
			jww.WARN.Printf("[DM] Failed to archive edit of %s: %+v",
				id, err)
		}
	}
	s.cbs.TimelineChanged(id)
}

// applyDelete handles message-deleted: the record is soft-deleted and kept
// for timeline continuity.
func (s *Session) applyDelete(ev events.Event) {
	id := MessageID(ev.MessageID)

	found := s.timeline.UpdateByID(id, func(msg *Message) {
		msg.Deleted = true
	})
	if !found {
		jww.DEBUG.Printf("[DM] Delete of %s targets a message outside "+
			"the loaded window", id)
		return
	}

	if s.archive != nil {
		if err := s.archive.MarkDeleted(id); err != nil {
			jww.WARN.Printf("[DM] Failed to archive delete of %s: %+v",
				id, err)
		}
	}
	s.cbs.TimelineChanged(id)
}

// acknowledgeRead reports the conversation as read, best-effort.
func (s *Session) acknowledgeRead() {
	s.mux.Lock()
	ctx := s.ctx
	s.mux.Unlock()

	if err := s.transport.AcknowledgeRead(ctx, s.peerID); err != nil {
		jww.WARN.Printf("[DM] Failed to acknowledge read of %s: %+v",
			s.peerID, err)
	}
}
