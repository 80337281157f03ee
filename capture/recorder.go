////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package capture records microphone audio into a transferable blob with
// cancel/replace semantics, and builds revocable preview handles for staged
// media.
//
// The microphone is held exclusively between Start and Stop/Cancel; every
// acquired input and every created handle is released exactly once on every
// exit path. Leaking either is the dominant failure mode of this unit, so
// the tests exercise it with counting doubles.
package capture

import (
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/dmsync/stoppable"
)

// State of a Recorder.
type State uint8

const (
	// StateIdle means no input is held and nothing is staged.
	StateIdle State = iota

	// StateRecording means the microphone is open and buffering.
	StateRecording

	// StateStopped means a finished blob is staged, waiting to be sent or
	// discarded.
	StateStopped
)

// String adheres to the fmt.Stringer interface.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped-with-blob"
	default:
		return "invalid state: " + strconv.Itoa(int(s))
	}
}

// ErrBusy is returned by Start while a recording is already active or
// staged. Overlapping captures are rejected, never silently merged.
var ErrBusy = errors.New("a recording is already in progress")

// ErrNotRecording is returned by Stop when no recording is active.
var ErrNotRecording = errors.New("no recording in progress")

// Device opens the audio input. Open returns an error when the user denies
// microphone access; the recorder surfaces it and stays idle.
type Device interface {
	Open() (Input, error)
}

// Input is one open microphone stream. Chunks delivers buffered audio until
// the input is closed; Close releases the underlying resource and must be
// called exactly once.
type Input interface {
	Chunks() <-chan []byte
	Close() error
}

// Recording is a finished capture staged for sending. It exists only
// between "recording stopped" and "sent or discarded".
type Recording struct {
	Blob        []byte
	ContentType string
	Seconds     int
	Preview     Handle

	release sync.Once
}

// Release revokes the preview handle. It is idempotent; whichever exit path
// is reached first wins.
func (r *Recording) Release() {
	r.release.Do(func() {
		if r.Preview != nil {
			if err := r.Preview.Revoke(); err != nil {
				jww.WARN.Printf("[CAP] Failed to revoke preview: %+v",
					err)
			}
		}
	})
}

// audioContentType is the container the input device buffers into.
const audioContentType = "audio/webm"

// Recorder is the media capture state machine:
// idle → recording → (stopped-with-blob | cancelled).
type Recorder struct {
	dev      Device
	previews PreviewFactory

	// onTick, when set, is called once per second of recording with the
	// running duration.
	onTick func(seconds int)

	state   State
	input   Input
	stop    *stoppable.Single
	buf     []byte
	seconds int
	staged  *Recording

	mux sync.Mutex
}

// NewRecorder returns an idle Recorder. The preview factory may be nil, in
// which case stopped recordings carry no preview handle.
func NewRecorder(dev Device, previews PreviewFactory) *Recorder {
	return &Recorder{dev: dev, previews: previews}
}

// OnTick registers a per-second duration callback for the UI counter. Must
// be called before Start.
func (r *Recorder) OnTick(f func(seconds int)) {
	r.mux.Lock()
	r.onTick = f
	r.mux.Unlock()
}

// State returns the current state.
func (r *Recorder) State() State {
	r.mux.Lock()
	defer r.mux.Unlock()
	return r.state
}

// Seconds returns the running (or final) duration of the capture.
func (r *Recorder) Seconds() int {
	r.mux.Lock()
	defer r.mux.Unlock()
	return r.seconds
}

// Start acquires the microphone and begins buffering. It is rejected with
// ErrBusy unless the recorder is idle; a denied device error is returned
// as-is and leaves the recorder idle.
func (r *Recorder) Start() error {
	r.mux.Lock()
	defer r.mux.Unlock()

	if r.state != StateIdle {
		return errors.WithStack(ErrBusy)
	}

	input, err := r.dev.Open()
	if err != nil {
		return errors.Wrap(err, "failed to acquire audio input")
	}

	r.input = input
	r.buf = nil
	r.seconds = 0
	r.state = StateRecording
	r.stop = stoppable.NewSingle("capture-buffer")

	go r.buffer(r.stop, input.Chunks())

	jww.INFO.Printf("[CAP] Recording started")
	return nil
}

// buffer drains audio chunks and ticks the duration counter once per
// second until told to quit.
func (r *Recorder) buffer(stop *stoppable.Single, chunks <-chan []byte) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop.Quit():
			stop.ToStopped()
			return

		case chunk, ok := <-chunks:
			if !ok {
				// Input ended on its own; stop draining but keep
				// ticking until Stop or Cancel is called.
				chunks = nil
				continue
			}
			r.mux.Lock()
			r.buf = append(r.buf, chunk...)
			r.mux.Unlock()

		case <-ticker.C:
			r.mux.Lock()
			r.seconds++
			seconds := r.seconds
			onTick := r.onTick
			r.mux.Unlock()
			if onTick != nil {
				onTick(seconds)
			}
		}
	}
}

// Stop finalizes the buffer into a single blob, builds a revocable preview
// handle, releases the microphone, and stages the result. The staged
// recording is retrievable once via Take, or discarded via Cancel.
func (r *Recorder) Stop() (*Recording, error) {
	r.mux.Lock()
	if r.state != StateRecording || r.input == nil {
		r.mux.Unlock()
		return nil, errors.WithStack(ErrNotRecording)
	}
	stop, input := r.stop, r.input
	// Claim the input and the goroutine so a concurrent Cancel cannot
	// close them a second time.
	r.stop, r.input = nil, nil
	r.mux.Unlock()

	// Wind the buffer goroutine down before sealing the blob.
	if err := stop.Close(); err != nil {
		jww.ERROR.Printf("[CAP] Failed to stop buffer goroutine: %+v", err)
	}
	r.drain(input.Chunks())

	if err := input.Close(); err != nil {
		jww.WARN.Printf("[CAP] Failed to release audio input: %+v", err)
	}

	r.mux.Lock()
	defer r.mux.Unlock()

	if r.state != StateRecording {
		// Cancelled while finalizing; the capture is discarded.
		r.buf = nil
		return nil, errors.WithStack(ErrNotRecording)
	}

	rec := &Recording{
		Blob:        r.buf,
		ContentType: audioContentType,
		Seconds:     r.seconds,
	}

	if r.previews != nil {
		handle, err := r.previews.NewPreview(rec.Blob, rec.ContentType)
		if err != nil {
			jww.WARN.Printf("[CAP] Failed to build audio preview: %+v",
				err)
		} else {
			rec.Preview = handle
		}
	}

	r.buf = nil
	r.staged = rec
	r.state = StateStopped

	jww.INFO.Printf("[CAP] Recording stopped after %ds (%d bytes)",
		rec.Seconds, len(rec.Blob))
	return rec, nil
}

// Take hands the staged recording off to the send pipeline and returns the
// recorder to idle. The pipeline now owns the preview handle and must call
// Release after submission or discard.
func (r *Recorder) Take() (*Recording, bool) {
	r.mux.Lock()
	defer r.mux.Unlock()

	if r.state != StateStopped || r.staged == nil {
		return nil, false
	}

	rec := r.staged
	r.staged = nil
	r.seconds = 0
	r.state = StateIdle
	return rec, true
}

// Cancel aborts from any state: it releases a held input, revokes a staged
// preview, discards the blob, and resets the duration. Calling it while
// idle is a no-op, so it is safe to run unconditionally on teardown.
func (r *Recorder) Cancel() {
	r.mux.Lock()
	state := r.state
	stop, input, staged := r.stop, r.input, r.staged
	r.input = nil
	r.stop = nil
	r.staged = nil
	r.buf = nil
	r.seconds = 0
	r.state = StateIdle
	r.mux.Unlock()

	// A nil input while recording means a concurrent Stop already claimed
	// it; Stop sees the state change and discards the capture itself.
	if state == StateRecording && input != nil {
		if err := stop.Close(); err != nil {
			jww.ERROR.Printf("[CAP] Failed to stop buffer goroutine: %+v",
				err)
		}
		if err := input.Close(); err != nil {
			jww.WARN.Printf("[CAP] Failed to release audio input: %+v",
				err)
		}
	}

	if staged != nil {
		staged.Release()
	}

	if state != StateIdle {
		jww.INFO.Printf("[CAP] Recording cancelled from %s", state)
	}
}

// drain consumes whatever the input buffered between the goroutine exiting
// and the input closing.
func (r *Recorder) drain(chunks <-chan []byte) {
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			r.mux.Lock()
			r.buf = append(r.buf, chunk...)
			r.mux.Unlock()
		default:
			return
		}
	}
}
