////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package dm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gitlab.com/elixxir/dmsync/capture"
	"gitlab.com/elixxir/dmsync/events"
)

// stubDevice hands out inputs that immediately deliver one canned chunk.
type stubDevice struct{}

type stubInput struct {
	chunks chan []byte
}

func (stubDevice) Open() (capture.Input, error) {
	in := &stubInput{chunks: make(chan []byte, 1)}
	in.chunks <- []byte("audio-bytes")
	return in, nil
}

func (in *stubInput) Chunks() <-chan []byte { return in.chunks }
func (in *stubInput) Close() error          { return nil }

// stubEmitter records typing signals.
type stubEmitter struct {
	signals []string
	mux     sync.Mutex
}

func (se *stubEmitter) TypingStarted(string) error {
	se.mux.Lock()
	defer se.mux.Unlock()
	se.signals = append(se.signals, "started")
	return nil
}

func (se *stubEmitter) TypingStopped(string) error {
	se.mux.Lock()
	defer se.mux.Unlock()
	se.signals = append(se.signals, "stopped")
	return nil
}

func (se *stubEmitter) get() []string {
	se.mux.Lock()
	defer se.mux.Unlock()
	out := make([]string, len(se.signals))
	copy(out, se.signals)
	return out
}

// Tests that a staged recording rides out as the attachment of the next
// send and is released after submission.
func TestSession_SendStagedRecording(t *testing.T) {
	rec := capture.NewRecorder(stubDevice{}, &capture.MemoryPreviews{})
	mt := &mockTransport{}

	s, err := NewSession(Config{
		LocalUserID: "me",
		PeerID:      "peer",
		Transport:   mt,
		Switchboard: events.New(),
		Recorder:    rec,
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, rec.Start())
	staged, err := rec.Stop()
	require.NoError(t, err)
	require.NotEmpty(t, staged.Blob)

	// No text needed; the staged blob carries the send.
	tempID, err := s.Send(SendRequest{})
	require.NoError(t, err)

	msg, ok := s.FindMessage(tempID)
	require.True(t, ok)
	require.Equal(t, KindAudio, msg.Kind)

	require.Eventually(t, func() bool {
		msgs := s.Messages()
		return len(msgs) == 1 && !msgs[0].ID.IsLocal()
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, "blob-audio/webm", s.Messages()[0].AttachmentRef)

	// The capture unit is idle again; a fresh recording may begin.
	require.Equal(t, capture.StateIdle, rec.State())
	require.NoError(t, rec.Start())
	rec.Cancel()
}

// Tests that sending with nothing staged and no content still fails even
// when a recorder is attached.
func TestSession_SendEmptyWithRecorder(t *testing.T) {
	rec := capture.NewRecorder(stubDevice{}, nil)
	s, err := NewSession(Config{
		LocalUserID: "me",
		PeerID:      "peer",
		Transport:   &mockTransport{},
		Switchboard: events.New(),
		Recorder:    rec,
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.Send(SendRequest{})
	require.ErrorIs(t, err, ErrEmptySend)
}

// Tests that a send flushes the pending typing signal before submitting.
func TestSession_SendFlushesTyping(t *testing.T) {
	se := &stubEmitter{}
	s, err := NewSession(Config{
		LocalUserID:   "me",
		PeerID:        "peer",
		Transport:     &mockTransport{},
		Switchboard:   events.New(),
		TypingEmitter: se,
		TypingIdle:    time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	s.Keystroke()
	s.Keystroke()
	require.Equal(t, []string{"started"}, se.get())

	_, err = s.Send(SendRequest{Text: "done typing"})
	require.NoError(t, err)
	require.Equal(t, []string{"started", "stopped"}, se.get())
}

// Tests that the per-send debug tag is stable for identical input and
// distinct for different peers.
func TestMakeDebugTag(t *testing.T) {
	a := makeDebugTag("peer", []byte("hello"), "dmSend")
	b := makeDebugTag("peer", []byte("hello"), "dmSend")
	c := makeDebugTag("other", []byte("hello"), "dmSend")

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Contains(t, a, "dmSend-")
}
