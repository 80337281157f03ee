////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package dm

import (
	"regexp"
	"strconv"
)

// Kind is the kind of content a message carries.
type Kind uint16

const (
	// KindText is the default kind. The message only contains text.
	KindText Kind = 1

	// KindImage denotes a message whose attachment is an image.
	KindImage Kind = 2

	// KindAudio denotes a message whose attachment is a voice recording.
	KindAudio Kind = 3

	// KindSharedPost denotes a text message recognized as a reference to a
	// post. Classification is heuristic; see ClassifyBody.
	KindSharedPost Kind = 4

	// KindPollReference denotes a message referencing a poll. These are
	// only ever created remotely.
	KindPollReference Kind = 5

	// KindSystem denotes a server-generated notice inside the
	// conversation.
	KindSystem Kind = 6
)

// String returns a human-readable version of [Kind], used for debugging and
// logging. This function adheres to the [fmt.Stringer] interface.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "Text"
	case KindImage:
		return "Image"
	case KindAudio:
		return "Audio"
	case KindSharedPost:
		return "SharedPost"
	case KindPollReference:
		return "PollReference"
	case KindSystem:
		return "System"
	default:
		return "Unknown kind " + strconv.Itoa(int(k))
	}
}

// sharedPostPattern recognizes a post reference in a message body: a link
// whose path contains a /post/<id> or /posts/<id> segment.
//
// This is a heuristic, not a guaranteed classification. Downstream
// consumers depend on the current pattern, so it must not be silently
// strengthened or replaced.
var sharedPostPattern = regexp.MustCompile(
	`(?i)\bhttps?://\S+/posts?/[A-Za-z0-9_-]+\b`)

// ClassifyBody determines the Kind for an outgoing text body. It is pure
// and deterministic: the same body always yields the same kind.
func ClassifyBody(body string) Kind {
	if sharedPostPattern.MatchString(body) {
		return KindSharedPost
	}
	return KindText
}
