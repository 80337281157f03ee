////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package dm

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"golang.org/x/crypto/blake2b"

	"gitlab.com/elixxir/dmsync/capture"
	"gitlab.com/elixxir/dmsync/emoji"
)

// ErrEmptySend is returned when a send request carries neither text nor an
// attachment and no recording is staged.
var ErrEmptySend = errors.New("cannot send an empty message")

// Send runs the optimistic send pipeline. A placeholder message is appended
// to the timeline immediately, marked pending, and submitted in the
// background. On confirmation the placeholder is replaced in place with the
// server's message; on failure it is removed and Callbacks.SendFailed fires
// exactly once. The returned ID is the placeholder ID.
//
// Sending consumes any recording staged in the capture unit as the
// attachment, and flushes a pending typing signal; the compose surface can
// treat a nil error as "input cleared".
func (s *Session) Send(req SendRequest) (MessageID, error) {
	s.mux.Lock()
	if !s.started {
		s.mux.Unlock()
		return "", errors.New("session is not started")
	}
	ctx := s.ctx
	s.mux.Unlock()

	// A staged recording rides along as the attachment unless the request
	// already carries one.
	var staged *capture.Recording
	if s.recorder != nil {
		if rec, ok := s.recorder.Take(); ok {
			if req.Attachment == nil {
				req.Attachment = &Attachment{
					Data:        rec.Blob,
					ContentType: rec.ContentType,
				}
				staged = rec
			} else {
				// The request supersedes the staged blob; discard it.
				rec.Release()
			}
		}
	}

	if req.Text == "" && req.Attachment == nil {
		if staged != nil {
			staged.Release()
		}
		return "", errors.WithStack(ErrEmptySend)
	}

	// Typing necessarily stops on send.
	if s.signaler != nil {
		s.signaler.Flush()
	}

	placeholder := Message{
		ID:        NewLocalID(),
		PeerID:    s.peerID,
		SenderID:  s.me,
		Kind:      req.kindFor(),
		Body:      req.Text,
		ReplyToID: req.ReplyToID,
		Status:    Pending,
		CreatedAt: time.Now(),
	}

	tag := makeDebugTag(s.peerID, []byte(req.Text), "dmSend")
	jww.INFO.Printf("[DM] [%s] Sending %s message to %s as %s",
		tag, placeholder.Kind, s.peerID, placeholder.ID)

	s.tracker.DenotePendingSend(placeholder.ID, s.peerID)
	s.timeline.Append(placeholder)
	s.cbs.TimelineChanged(placeholder.ID)

	out := OutgoingMessage{
		TempID:     placeholder.ID,
		PeerID:     s.peerID,
		Kind:       placeholder.Kind,
		Body:       req.Text,
		Attachment: req.Attachment,
		ReplyToID:  req.ReplyToID,
	}

	go func() {
		confirmed, err := s.transport.SubmitMessage(ctx, out)

		// The pipeline no longer needs the staged blob either way.
		if staged != nil {
			staged.Release()
		}

		if err != nil {
			jww.ERROR.Printf("[DM] [%s] Send of %s failed: %+v",
				tag, placeholder.ID, err)
			if err2 := s.tracker.FailedSend(placeholder.ID); err2 != nil {
				jww.ERROR.Printf("[DM] [%s] Failed to untrack %s: %+v",
					tag, placeholder.ID, err2)
			}
			s.timeline.RemoveByID(placeholder.ID)
			s.cbs.TimelineChanged(placeholder.ID)
			s.cbs.SendFailed(placeholder.ID, err)
			return
		}

		// The server's record is authoritative, but delivery state only
		// ever moves forward.
		confirmed.Status = Pending.Upgrade(confirmed.Status).Upgrade(Sent)
		if confirmed.PeerID == "" {
			confirmed.PeerID = s.peerID
		}

		if err = s.tracker.Sent(placeholder.ID, confirmed.ID); err != nil {
			jww.ERROR.Printf("[DM] [%s] Failed to track confirmation of "+
				"%s: %+v", tag, placeholder.ID, err)
		}

		if _, echoed := s.timeline.FindByID(confirmed.ID); echoed {
			// The feed echo outran the confirmation, so the confirmed
			// record is already in the timeline. Drop the placeholder and
			// promote that record instead of swapping in a duplicate.
			s.timeline.RemoveByID(placeholder.ID)
			s.timeline.UpdateByID(confirmed.ID, func(m *Message) {
				m.Status = m.Status.Upgrade(Delivered)
			})
			s.tracker.StopTracking(confirmed.ID)
			s.archiveStatus(confirmed.ID, Delivered)
		} else if !s.timeline.Replace(placeholder.ID, confirmed) {
			jww.WARN.Printf("[DM] [%s] Placeholder %s vanished before "+
				"confirmation", tag, placeholder.ID)
		} else {
			s.archiveStore(confirmed)
		}

		jww.INFO.Printf("[DM] [%s] Send confirmed as %s", tag, confirmed.ID)
		s.cbs.TimelineChanged(confirmed.ID)
	}()

	return placeholder.ID, nil
}

// ToggleReaction flips the local user's reaction on the message. The
// mutation is applied optimistically and the network call is fire-and
// forget: on failure nothing is rolled back, because the next
// reaction-updated feed event carries the authoritative list anyway.
func (s *Session) ToggleReaction(id MessageID, reaction string) error {
	s.mux.Lock()
	if !s.started {
		s.mux.Unlock()
		return errors.New("session is not started")
	}
	ctx := s.ctx
	s.mux.Unlock()

	if err := emoji.ValidateReaction(reaction); err != nil {
		return err
	}

	id = s.resolve(id)
	if id.IsLocal() {
		return errors.Errorf(
			"cannot react to unconfirmed message %s", id)
	}

	var updated []Reaction
	found := s.timeline.UpdateByID(id, func(msg *Message) {
		msg.Reactions = toggleReactions(msg.Reactions, s.me, reaction)
		updated = msg.Reactions
	})
	if !found {
		return errors.Errorf("no message %s in the loaded window", id)
	}

	if s.archive != nil {
		if err := s.archive.UpdateReactions(id, updated); err != nil {
			jww.WARN.Printf("[DM] Failed to archive reactions of %s: %+v",
				id, err)
		}
	}
	s.cbs.TimelineChanged(id)

	go func() {
		if err := s.transport.ToggleReaction(ctx, id, reaction); err != nil {
			jww.WARN.Printf("[DM] Reaction toggle on %s failed, awaiting "+
				"server correction: %+v", id, err)
		}
	}()

	return nil
}

// makeDebugTag builds a per-send log tag from the destination and content,
// so one send's log lines can be grepped out of a noisy session.
func makeDebugTag(peerID string, msg []byte, baseTag string) string {
	h, _ := blake2b.New256(nil)
	h.Write(msg)
	h.Write([]byte(peerID))

	tripCode := base64.RawStdEncoding.EncodeToString(h.Sum(nil))[:12]
	return fmt.Sprintf("%s-%s", baseTag, tripCode)
}
