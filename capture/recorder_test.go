////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package capture

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// trackingDevice counts acquisitions and releases so leak tests can assert
// that every open input is closed.
type trackingDevice struct {
	opens   int32
	closes  int32
	denied  bool
	current *trackingInput
}

type trackingInput struct {
	dev    *trackingDevice
	chunks chan []byte
}

func (d *trackingDevice) Open() (Input, error) {
	if d.denied {
		return nil, errors.New("permission denied")
	}
	atomic.AddInt32(&d.opens, 1)
	d.current = &trackingInput{dev: d, chunks: make(chan []byte, 16)}
	return d.current, nil
}

func (in *trackingInput) Chunks() <-chan []byte {
	return in.chunks
}

func (in *trackingInput) Close() error {
	atomic.AddInt32(&in.dev.closes, 1)
	return nil
}

func (d *trackingDevice) outstanding() int32 {
	return atomic.LoadInt32(&d.opens) - atomic.LoadInt32(&d.closes)
}

// trackingFactory counts created and revoked handles.
type trackingFactory struct {
	created int32
	revoked int32
}

type trackingHandle struct {
	f *trackingFactory
}

func (f *trackingFactory) NewPreview([]byte, string) (Handle, error) {
	atomic.AddInt32(&f.created, 1)
	return &trackingHandle{f: f}, nil
}

func (h *trackingHandle) URI() string { return "tracking:handle" }

func (h *trackingHandle) Revoke() error {
	atomic.AddInt32(&h.f.revoked, 1)
	return nil
}

func (f *trackingFactory) outstanding() int32 {
	return atomic.LoadInt32(&f.created) - atomic.LoadInt32(&f.revoked)
}

// Tests the full happy path: start buffers chunks, stop seals the blob and
// builds a preview, take hands the recording off, release revokes once.
func TestRecorder_StartStopTake(t *testing.T) {
	dev := &trackingDevice{}
	pf := &trackingFactory{}
	r := NewRecorder(dev, pf)

	require.NoError(t, r.Start())
	require.Equal(t, StateRecording, r.State())

	dev.current.chunks <- []byte("abc")
	dev.current.chunks <- []byte("def")

	// Stop drains whatever the goroutine has not consumed yet, so the
	// blob is complete regardless of scheduling.
	stopped, err := r.Stop()
	require.NoError(t, err)
	require.Equal(t, "abcdef", string(stopped.Blob))

	require.Equal(t, StateStopped, r.State())
	require.Equal(t, int32(0), dev.outstanding())
	require.Equal(t, int32(1), pf.created)

	rec, ok := r.Take()
	require.True(t, ok)
	require.Equal(t, StateIdle, r.State())

	rec.Release()
	rec.Release() // idempotent
	require.Equal(t, int32(0), pf.outstanding())
	require.Equal(t, int32(1), pf.revoked)
}

// Tests that starting while recording or while a blob is staged is
// rejected with ErrBusy.
func TestRecorder_StartWhileBusy(t *testing.T) {
	dev := &trackingDevice{}
	r := NewRecorder(dev, nil)

	require.NoError(t, r.Start())
	require.ErrorIs(t, r.Start(), ErrBusy)

	_, err := r.Stop()
	require.NoError(t, err)
	require.ErrorIs(t, r.Start(), ErrBusy)

	r.Cancel()
	require.NoError(t, r.Start())
	r.Cancel()
	require.Equal(t, int32(0), dev.outstanding())
}

// Tests that start followed by cancel leaves zero acquired inputs and zero
// live handles, from both the recording and the stopped state.
func TestRecorder_CancelLeavesNothingOutstanding(t *testing.T) {
	dev := &trackingDevice{}
	pf := &trackingFactory{}
	r := NewRecorder(dev, pf)

	// Cancel mid-recording.
	require.NoError(t, r.Start())
	r.Cancel()
	require.Equal(t, StateIdle, r.State())
	require.Equal(t, 0, r.Seconds())
	require.Equal(t, int32(0), dev.outstanding())
	require.Equal(t, int32(0), pf.outstanding())

	// Cancel a staged blob.
	require.NoError(t, r.Start())
	_, err := r.Stop()
	require.NoError(t, err)
	r.Cancel()
	require.Equal(t, StateIdle, r.State())
	require.Equal(t, int32(0), dev.outstanding())
	require.Equal(t, int32(0), pf.outstanding())

	// Cancel while idle is a no-op.
	r.Cancel()
	require.Equal(t, int32(0), dev.outstanding())
}

// Tests that a stop racing a cancel releases the input exactly once and
// leaves the recorder idle and restartable, whichever wins.
func TestRecorder_StopCancelRace(t *testing.T) {
	for i := 0; i < 20; i++ {
		dev := &trackingDevice{}
		pf := &trackingFactory{}
		r := NewRecorder(dev, pf)

		require.NoError(t, r.Start())
		dev.current.chunks <- []byte("abc")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = r.Stop()
		}()
		go func() {
			defer wg.Done()
			r.Cancel()
		}()
		wg.Wait()

		// Whoever lost, cancel ran after or during stop, so nothing may
		// survive: one close per open, no live handles, no staged blob.
		r.Cancel()
		require.Equal(t, int32(1), atomic.LoadInt32(&dev.opens))
		require.Equal(t, int32(0), dev.outstanding())
		require.Equal(t, int32(0), pf.outstanding())
		_, ok := r.Take()
		require.False(t, ok)
		require.Equal(t, StateIdle, r.State())

		require.NoError(t, r.Start())
		r.Cancel()
		require.Equal(t, int32(0), dev.outstanding())
	}
}

// Tests that a denied device surfaces the error and leaves the recorder
// idle with nothing acquired.
func TestRecorder_DeviceDenied(t *testing.T) {
	dev := &trackingDevice{denied: true}
	r := NewRecorder(dev, nil)

	err := r.Start()
	require.Error(t, err)
	require.Equal(t, StateIdle, r.State())
	require.Equal(t, int32(0), dev.outstanding())
}

// Tests that stopping without a recording is rejected.
func TestRecorder_StopWhileIdle(t *testing.T) {
	r := NewRecorder(&trackingDevice{}, nil)
	_, err := r.Stop()
	require.ErrorIs(t, err, ErrNotRecording)
}

// Tests that the duration counter ticks while recording.
func TestRecorder_DurationTicks(t *testing.T) {
	dev := &trackingDevice{}
	r := NewRecorder(dev, nil)

	var ticks int32
	r.OnTick(func(int) { atomic.AddInt32(&ticks, 1) })

	require.NoError(t, r.Start())
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&ticks) >= 1 && r.Seconds() >= 1
	}, 3*time.Second, 50*time.Millisecond)

	rec, err := r.Stop()
	require.NoError(t, err)
	require.GreaterOrEqual(t, rec.Seconds, 1)
	r.Cancel()
}
