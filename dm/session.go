////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package dm is the message-state reconciliation engine behind a one-to-one
// conversation. A Session owns the timeline for a single peer and mutates it
// from two directions: the optimistic send pipeline and the remote event
// reconciler. Reconciliation between the two is by ID bookkeeping through
// the send tracker, never by content matching.
package dm

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/ekv"

	"gitlab.com/elixxir/dmsync/capture"
	"gitlab.com/elixxir/dmsync/events"
	"gitlab.com/elixxir/dmsync/stoppable"
	"gitlab.com/elixxir/dmsync/typing"
)

// defaultEventBuffer sizes the feed listener channel. Events are dropped
// with a warning when the reconciler falls this far behind.
const defaultEventBuffer = 64

// Config collects the collaborators a Session is built from. Transport,
// Switchboard, LocalUserID and PeerID are required; everything else has a
// working default.
type Config struct {
	// LocalUserID is the authenticated user this engine acts for.
	LocalUserID string

	// PeerID is the other participant of the conversation.
	PeerID string

	// Transport submits network work. Required.
	Transport Transport

	// Switchboard delivers the inbound conversation feed. Required.
	Switchboard *events.Switchboard

	// Callbacks receives engine notifications. Optional.
	Callbacks Callbacks

	// Archive mirrors confirmed state into local storage. Optional.
	Archive Archive

	// KV persists send-tracker state across runs. Defaults to an
	// in-memory store.
	KV ekv.KeyValue

	// TypingEmitter carries outbound typing signals. Optional; when nil,
	// Keystroke is a no-op.
	TypingEmitter typing.Emitter

	// TypingIdle overrides the typing inactivity timeout. Zero selects
	// the default.
	TypingIdle time.Duration

	// Recorder is the media capture unit whose staged recordings feed the
	// send pipeline. Optional.
	Recorder *capture.Recorder

	// EventBuffer overrides the feed listener channel size. Zero selects
	// the default.
	EventBuffer int
}

// Session is one open conversation. All exported methods are safe for
// concurrent use; internally the reconciler goroutine and the send pipeline
// serialize their timeline mutations through the Timeline's own lock and
// the send tracker.
type Session struct {
	me     string
	peerID string

	transport Transport
	cbs       Callbacks
	archive   Archive

	timeline *Timeline
	tracker  *sendTracker

	// leftover holds placeholder IDs of sends that were still in flight
	// when a previous run died. They are reported failed on Start.
	leftover []MessageID

	swb        *events.Switchboard
	eventCh    chan events.Event
	listenerID events.ListenerID

	signaler *typing.Signaler
	recorder *capture.Recorder

	reconciler *stoppable.Single

	ctx     context.Context
	viewing bool
	started bool
	mux     sync.Mutex
}

// NewSession builds a Session from the config. It does no network work;
// call Start to load history and begin hearing the feed.
func NewSession(cfg Config) (*Session, error) {
	switch {
	case cfg.LocalUserID == "":
		return nil, errors.New("session requires a local user ID")
	case cfg.PeerID == "":
		return nil, errors.New("session requires a peer ID")
	case cfg.LocalUserID == cfg.PeerID:
		return nil, errors.New("cannot open a conversation with yourself")
	case cfg.Transport == nil:
		return nil, errors.New("session requires a transport")
	case cfg.Switchboard == nil:
		return nil, errors.New("session requires a switchboard")
	}

	if cfg.Callbacks == nil {
		cfg.Callbacks = noopCallbacks{}
	}
	if cfg.KV == nil {
		cfg.KV = ekv.MakeMemstore()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}

	tracker, leftover := newSendTracker(cfg.KV)

	s := &Session{
		me:        cfg.LocalUserID,
		peerID:    cfg.PeerID,
		transport: cfg.Transport,
		cbs:       cfg.Callbacks,
		archive:   cfg.Archive,
		timeline:  NewTimeline(),
		tracker:   tracker,
		leftover:  leftover,
		swb:       cfg.Switchboard,
		eventCh:   make(chan events.Event, cfg.EventBuffer),
		recorder:  cfg.Recorder,
	}

	if cfg.TypingEmitter != nil {
		s.signaler = typing.NewSignaler(
			cfg.TypingEmitter, cfg.PeerID, cfg.TypingIdle)
	}

	return s, nil
}

// Start loads the history window, registers on the feed, and starts the
// reconciler goroutine. The context bounds the history fetch and every
// later network call made on this session's behalf.
func (s *Session) Start(ctx context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.started {
		return errors.New("session already started")
	}

	history, err := s.transport.FetchHistory(ctx, s.peerID)
	if err != nil {
		return errors.Wrapf(err,
			"failed to fetch history for %s", s.peerID)
	}
	for i := range history {
		s.timeline.Append(history[i])
	}

	// Sends left in flight by a previous run can no longer complete.
	for _, tempID := range s.leftover {
		jww.WARN.Printf("[DM] Reporting send %s from a previous run as "+
			"failed", tempID)
		s.cbs.SendFailed(tempID, errors.New(
			"send did not complete before shutdown"))
	}
	s.leftover = nil

	s.listenerID = s.swb.RegisterChannel(
		"dm-session-"+s.peerID, events.AnyType, s.eventCh)

	s.ctx = ctx
	s.reconciler = stoppable.NewSingle("dm-reconciler-" + s.peerID)
	go s.reconcile(s.reconciler)

	s.started = true
	jww.INFO.Printf("[DM] Session with %s started, %d messages loaded",
		s.peerID, len(history))
	return nil
}

// Close tears the session down: it detaches from the feed, stops the
// reconciler, flushes a pending typing signal, and cancels any recording.
// Safe to call more than once.
func (s *Session) Close() error {
	// The reconciler takes the session mutex while applying events, so it
	// must not be held while waiting for that goroutine to quit.
	s.mux.Lock()
	if !s.started {
		s.mux.Unlock()
		return nil
	}
	s.started = false
	s.mux.Unlock()

	s.swb.Unregister(s.listenerID)
	if err := s.reconciler.Close(); err != nil {
		jww.ERROR.Printf("[DM] Failed to stop reconciler: %+v", err)
	}

	if s.signaler != nil {
		s.signaler.Flush()
	}
	if s.recorder != nil {
		s.recorder.Cancel()
	}

	jww.INFO.Printf("[DM] Session with %s closed", s.peerID)
	return nil
}

// Keystroke reports one unit of local typing activity to the presence
// signaler. It is a no-op when no typing emitter was configured.
func (s *Session) Keystroke() {
	if s.signaler != nil {
		s.signaler.Keystroke()
	}
}

// MarkViewing records whether the conversation is on screen. While viewing,
// each peer message heard on the feed is acknowledged as read.
func (s *Session) MarkViewing(viewing bool) {
	s.mux.Lock()
	s.viewing = viewing
	s.mux.Unlock()
}

// isViewing reports the current viewing flag.
func (s *Session) isViewing() bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.viewing
}

// Messages returns a copy of the ordered timeline.
func (s *Session) Messages() []Message {
	return s.timeline.Messages()
}

// FindMessage looks the message up by ID. A placeholder ID whose send has
// since confirmed is followed to the confirmed record.
func (s *Session) FindMessage(id MessageID) (Message, bool) {
	id = s.resolve(id)
	return s.timeline.FindByID(id)
}

// ScrollTo locates the message for reply-preview navigation and arms a
// transient highlight on it. It returns the timeline position, or
// (-1, false) when the target is outside the loaded window; the caller
// reports the message as not available here.
func (s *Session) ScrollTo(id MessageID) (int, bool) {
	id = s.resolve(id)
	return s.timeline.ScrollAnchor(id)
}

// ClearConversation wipes the timeline and the archived copy. The server's
// record is untouched; a fresh Start rebuilds the window from it.
func (s *Session) ClearConversation() {
	s.timeline.Clear()
	if s.archive != nil {
		if err := s.archive.Clear(s.peerID); err != nil {
			jww.WARN.Printf("[DM] Failed to clear archive for %s: %+v",
				s.peerID, err)
		}
	}
	s.cbs.TimelineChanged("")
}

// resolve follows a placeholder ID to its confirmed ID once the send has
// completed, so references taken before confirmation stay valid.
func (s *Session) resolve(id MessageID) MessageID {
	if id.IsLocal() {
		if confirmedID, ok := s.tracker.Resolve(id); ok {
			return confirmedID
		}
	}
	return id
}

// archiveStore is a best-effort write-through to the archive.
func (s *Session) archiveStore(msg Message) {
	if s.archive == nil {
		return
	}
	if err := s.archive.StoreMessage(msg); err != nil {
		jww.WARN.Printf("[DM] Failed to archive message %s: %+v",
			msg.ID, err)
	}
}

// archiveStatus is a best-effort status write-through to the archive.
func (s *Session) archiveStatus(id MessageID, status Status) {
	if s.archive == nil {
		return
	}
	if err := s.archive.UpdateStatus(id, status); err != nil {
		jww.WARN.Printf("[DM] Failed to archive status of %s: %+v",
			id, err)
	}
}
