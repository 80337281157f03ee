////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"gitlab.com/elixxir/dmsync/dm"
	"gitlab.com/elixxir/dmsync/events"
)

// httpTransport implements dm.Transport against the REST surface of the
// chat server. Timeouts and retries live in the http.Client; the engine
// passes its context through.
type httpTransport struct {
	base  string
	token string
	me    string
	hc    *http.Client
}

func newHTTPTransport(base, token, me string) *httpTransport {
	return &httpTransport{
		base:  base,
		token: token,
		me:    me,
		hc:    http.DefaultClient,
	}
}

// outgoingPayload is the POST body of a message submission.
type outgoingPayload struct {
	TempID     string `json:"temp_id"`
	Kind       uint16 `json:"kind"`
	Body       string `json:"body,omitempty"`
	ReplyToID  string `json:"reply_to_id,omitempty"`
	Attachment string `json:"attachment,omitempty"`
	MimeType   string `json:"mime_type,omitempty"`
}

func (ht *httpTransport) FetchHistory(
	ctx context.Context, peerID string) ([]dm.Message, error) {
	var payloads []events.MessagePayload
	err := ht.do(ctx, http.MethodGet,
		fmt.Sprintf("/dm/%s/messages", url.PathEscape(peerID)),
		nil, &payloads)
	if err != nil {
		return nil, err
	}

	msgs := make([]dm.Message, 0, len(payloads))
	for i := range payloads {
		msgs = append(msgs, ht.toMessage(&payloads[i], peerID))
	}
	return msgs, nil
}

func (ht *httpTransport) SubmitMessage(
	ctx context.Context, out dm.OutgoingMessage) (dm.Message, error) {
	body := outgoingPayload{
		TempID:    string(out.TempID),
		Kind:      uint16(out.Kind),
		Body:      out.Body,
		ReplyToID: string(out.ReplyToID),
	}
	if out.Attachment != nil {
		body.Attachment = base64.StdEncoding.
			EncodeToString(out.Attachment.Data)
		body.MimeType = out.Attachment.ContentType
	}

	var confirmed events.MessagePayload
	err := ht.do(ctx, http.MethodPost,
		fmt.Sprintf("/dm/%s/messages", url.PathEscape(out.PeerID)),
		body, &confirmed)
	if err != nil {
		return dm.Message{}, err
	}
	return ht.toMessage(&confirmed, out.PeerID), nil
}

func (ht *httpTransport) AcknowledgeRead(
	ctx context.Context, peerID string) error {
	return ht.do(ctx, http.MethodPost,
		fmt.Sprintf("/dm/%s/read", url.PathEscape(peerID)), nil, nil)
}

func (ht *httpTransport) ToggleReaction(
	ctx context.Context, id dm.MessageID, emoji string) error {
	return ht.do(ctx, http.MethodPost,
		fmt.Sprintf("/messages/%s/reactions", url.PathEscape(string(id))),
		map[string]string{"emoji": emoji}, nil)
}

// toMessage converts a wire payload into an engine message. Delivery state
// is inferred from authorship; the server reports read separately.
func (ht *httpTransport) toMessage(
	p *events.MessagePayload, peerID string) dm.Message {
	status := dm.Delivered
	if p.SenderID == ht.me {
		status = dm.Sent
	}

	reactions := make([]dm.Reaction, 0, len(p.Reactions))
	for _, r := range p.Reactions {
		reactions = append(reactions,
			dm.Reaction{UserID: r.UserID, Emoji: r.Emoji})
	}

	return dm.Message{
		ID:            dm.MessageID(p.ID),
		PeerID:        peerID,
		SenderID:      p.SenderID,
		Kind:          dm.Kind(p.Kind),
		Body:          p.Body,
		AttachmentRef: p.AttachmentRef,
		ReplyToID:     dm.MessageID(p.ReplyToID),
		Reactions:     reactions,
		Status:        status,
		CreatedAt:     p.CreatedAt,
		Edited:        p.Edited,
		Deleted:       p.Deleted,
	}
}

// do runs one JSON request against the server.
func (ht *httpTransport) do(ctx context.Context, method, path string,
	body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(
		ctx, method, ht.base+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if ht.token != "" {
		req.Header.Set("Authorization", "Bearer "+ht.token)
	}

	resp, err := ht.hc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s failed", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("%s %s returned %s: %s",
			method, path, resp.Status, bytes.TrimSpace(data))
	}

	if out != nil {
		if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, "failed to decode response")
		}
	}
	return nil
}
