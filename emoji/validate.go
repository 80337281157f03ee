////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package emoji validates reaction strings. A reaction must be exactly one
// emoji with no surrounding characters; anything else is refused before it
// reaches the network and dropped when it arrives from it.
package emoji

import (
	"strings"

	"github.com/forPelevin/gomoji"
	"github.com/pkg/errors"
)

// variationSelector requests emoji presentation of the preceding character.
// Keyboards disagree on whether to append it, so it is ignored when
// comparing the input against the matched emoji.
const variationSelector = "\ufe0f"

// InvalidReaction is returned if the passed reaction string is not a single
// valid emoji.
var InvalidReaction = errors.New(
	"The reaction is not valid, it must be a single emoji")

// SupportedEmojis returns the list of emojis the engine accepts as
// reactions.
func SupportedEmojis() []gomoji.Emoji {
	return gomoji.AllEmojis()
}

// ValidateReaction checks that the reaction is exactly one emoji. Returns
// InvalidReaction otherwise.
func ValidateReaction(reaction string) error {
	emojisList := gomoji.CollectAll(reaction)
	if len(emojisList) != 1 {
		return InvalidReaction
	}
	if trimVariation(emojisList[0].Character) != trimVariation(reaction) {
		// Non-emoji characters found alongside the emoji.
		return InvalidReaction
	}

	return nil
}

func trimVariation(s string) string {
	return strings.ReplaceAll(s, variationSelector, "")
}
