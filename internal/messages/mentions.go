package messages

import (
	"regexp"
	"strings"
)

var mentionPattern = regexp.MustCompile(`@(\d+)`)

// mentionFallback replaces tokens whose digit run is too long to be any
// real identifier.
const mentionFallback = "@participant"

// maxMentionDigits mirrors the phone plausibility cap: longer runs are
// leaked internal identifiers.
const maxMentionDigits = 15

// rewriteMentions replaces @<digits> tokens in text. resolve maps a digit
// run to a display value; an empty return leaves the token unchanged.
func rewriteMentions(text string, resolve func(digits string) string) string {
	if !strings.ContainsRune(text, '@') {
		return text
	}
	return mentionPattern.ReplaceAllStringFunc(text, func(token string) string {
		digits := token[1:]
		if len(digits) > maxMentionDigits {
			return mentionFallback
		}
		if name := resolve(digits); name != "" {
			return "@" + name
		}
		return token
	})
}
