////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package capture

import (
	"bytes"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// Handle is a revocable reference to staged preview media. Whoever creates
// a handle owns it and must revoke it exactly once, on the first exit path
// reached.
type Handle interface {
	// URI returns an opaque reference the UI can hand to its media view.
	URI() string

	// Revoke frees the preview. A second call is an error.
	Revoke() error
}

// PreviewFactory builds preview handles for staged media.
type PreviewFactory interface {
	NewPreview(data []byte, contentType string) (Handle, error)
}

// memHandle is an in-memory Handle.
type memHandle struct {
	uri     string
	data    []byte
	revoked bool
	mux     sync.Mutex
}

func (h *memHandle) URI() string {
	return h.uri
}

func (h *memHandle) Revoke() error {
	h.mux.Lock()
	defer h.mux.Unlock()

	if h.revoked {
		return errors.Errorf("preview %s already revoked", h.uri)
	}
	h.revoked = true
	h.data = nil
	return nil
}

// MemoryPreviews is the default PreviewFactory. Audio blobs are referenced
// as-is; image blobs are decoded and downscaled into a jpeg thumbnail
// before being staged, so a full-resolution photo never sits behind a
// preview handle.
type MemoryPreviews struct {
	// MaxThumbEdge bounds the longer edge of image thumbnails, in pixels.
	// Zero selects the default of 320.
	MaxThumbEdge uint
}

const defaultMaxThumbEdge = 320

// NewPreview implements PreviewFactory.
func (mp *MemoryPreviews) NewPreview(data []byte, contentType string) (
	Handle, error) {
	if len(data) == 0 {
		return nil, errors.New("cannot build a preview of empty media")
	}

	stored := data
	if strings.HasPrefix(contentType, "image/") {
		thumb, err := thumbnail(data, mp.maxEdge())
		if err != nil {
			return nil, errors.Wrap(err, "failed to build image thumbnail")
		}
		stored = thumb
	}

	return &memHandle{
		uri:  "preview:" + uuid.NewString(),
		data: stored,
	}, nil
}

func (mp *MemoryPreviews) maxEdge() uint {
	if mp.MaxThumbEdge == 0 {
		return defaultMaxThumbEdge
	}
	return mp.MaxThumbEdge
}

// thumbnail decodes the image and downscales it so its longer edge fits
// maxEdge, preserving aspect ratio.
func thumbnail(data []byte, maxEdge uint) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	scaled := resize.Thumbnail(maxEdge, maxEdge, img, resize.Lanczos3)

	var out bytes.Buffer
	if err = jpeg.Encode(&out, scaled, nil); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
