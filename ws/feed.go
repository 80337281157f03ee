////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package ws connects the engine to a live conversation feed over a
// websocket. Inbound frames decode into events and are spoken on the
// switchboard from a single read goroutine, which preserves receipt order
// end to end. Outbound emissions are typing signals only and are paced so a
// fast typist cannot flood the socket.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"go.uber.org/ratelimit"

	"gitlab.com/elixxir/dmsync/events"
	"gitlab.com/elixxir/dmsync/stoppable"
)

const (
	// writeWait bounds a single frame write before the connection is
	// considered dead.
	writeWait = 10 * time.Second

	// pongWait is how long the feed may stay silent before the read loop
	// gives up. Server pings arrive well inside this window.
	pongWait = 90 * time.Second

	// pingPeriod spaces the client's keepalive pings inside pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound frames. Feed events are small; bulk
	// data rides HTTP.
	maxMessageSize = 4096

	// outboundPerSecond paces outbound emissions.
	outboundPerSecond = 10
)

// Feed is one live websocket connection to the conversation feed. It
// implements typing.Emitter for the outbound direction.
type Feed struct {
	conn *websocket.Conn
	swb  *events.Switchboard

	// limiter paces every outbound frame.
	limiter ratelimit.Limiter

	// onClosed, when set, fires once when the read loop dies for any
	// reason other than Close.
	onClosed func(err error)

	reader *stoppable.Single
	pinger *stoppable.Single

	writeMux  sync.Mutex
	closeOnce sync.Once
	closing   bool
	mux       sync.Mutex
}

// Dial connects to the feed URL (ws:// or wss://), hands inbound events to
// the switchboard, and starts the keepalive. The header carries
// authentication.
func Dial(ctx context.Context, url string, header http.Header,
	swb *events.Switchboard) (*Feed, error) {
	if swb == nil {
		return nil, errors.New("feed requires a switchboard")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial feed at %s", url)
	}

	f := &Feed{
		conn:    conn,
		swb:     swb,
		limiter: ratelimit.New(outboundPerSecond),
		reader:  stoppable.NewSingle("ws-feed-reader"),
		pinger:  stoppable.NewSingle("ws-feed-pinger"),
	}

	conn.SetReadLimit(maxMessageSize)
	if err = conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "failed to arm read deadline")
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go f.readLoop(f.reader)
	go f.pingLoop(f.pinger)

	jww.INFO.Printf("[WS] Feed connected to %s", url)
	return f, nil
}

// OnClosed registers a callback fired once if the connection dies on its
// own. Must be called before the connection can fail, i.e. right after
// Dial.
func (f *Feed) OnClosed(cb func(err error)) {
	f.mux.Lock()
	f.onClosed = cb
	f.mux.Unlock()
}

// readLoop decodes inbound frames and speaks them on the switchboard. It is
// the only goroutine that reads the connection, so listeners hear events in
// exact receipt order.
func (f *Feed) readLoop(stop *stoppable.Single) {
	for {
		_, raw, err := f.conn.ReadMessage()
		if err != nil {
			if !f.isClosing() {
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseGoingAway,
					websocket.CloseNormalClosure) {
					jww.ERROR.Printf("[WS] Feed read failed: %+v", err)
				} else {
					jww.INFO.Printf("[WS] Feed closed: %v", err)
				}

				f.mux.Lock()
				cb := f.onClosed
				f.mux.Unlock()
				if cb != nil {
					cb(err)
				}
			}
			break
		}

		var ev events.Event
		if err = json.Unmarshal(raw, &ev); err != nil {
			jww.WARN.Printf("[WS] Dropped undecodable feed frame: %+v", err)
			continue
		}

		f.swb.Speak(ev)
	}

	<-stop.Quit()
	stop.ToStopped()
}

// pingLoop keeps the connection alive while the feed is quiet.
func (f *Feed) pingLoop(stop *stoppable.Single) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop.Quit():
			stop.ToStopped()
			return

		case <-ticker.C:
			f.writeMux.Lock()
			err := f.conn.WriteControl(websocket.PingMessage, nil,
				time.Now().Add(writeWait))
			f.writeMux.Unlock()
			if err != nil {
				jww.WARN.Printf("[WS] Keepalive ping failed: %+v", err)
			}
		}
	}
}

// TypingStarted implements typing.Emitter.
func (f *Feed) TypingStarted(peerID string) error {
	return f.writeEvent(events.Event{
		Type:   events.TypingStarted,
		PeerID: peerID,
	})
}

// TypingStopped implements typing.Emitter.
func (f *Feed) TypingStopped(peerID string) error {
	return f.writeEvent(events.Event{
		Type:   events.TypingStopped,
		PeerID: peerID,
	})
}

// writeEvent emits one outbound frame, paced by the limiter.
func (f *Feed) writeEvent(ev events.Event) error {
	f.limiter.Take()

	f.writeMux.Lock()
	defer f.writeMux.Unlock()

	if err := f.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return errors.Wrap(err, "failed to arm write deadline")
	}
	if err := f.conn.WriteJSON(ev); err != nil {
		return errors.Wrapf(err, "failed to emit %s", ev.Type)
	}
	return nil
}

// isClosing reports whether Close initiated the teardown.
func (f *Feed) isClosing() bool {
	f.mux.Lock()
	defer f.mux.Unlock()
	return f.closing
}

// Close sends a close frame, drops the connection, and winds down both
// goroutines. Safe to call more than once.
func (f *Feed) Close() error {
	f.closeOnce.Do(func() {
		f.mux.Lock()
		f.closing = true
		f.mux.Unlock()

		f.writeMux.Lock()
		err := f.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		f.writeMux.Unlock()
		if err != nil {
			jww.DEBUG.Printf("[WS] Close frame not delivered: %v", err)
		}

		if err = f.pinger.Close(); err != nil {
			jww.ERROR.Printf("[WS] Failed to stop pinger: %+v", err)
		}

		// Closing the connection unblocks the read loop, which then
		// waits for the quit signal.
		if err = f.conn.Close(); err != nil {
			jww.DEBUG.Printf("[WS] Connection close: %v", err)
		}
		if err = f.reader.Close(); err != nil {
			jww.ERROR.Printf("[WS] Failed to stop reader: %+v", err)
		}

		jww.INFO.Printf("[WS] Feed disconnected")
	})
	return nil
}
