package identity

import "strings"

// Kind classifies a raw gateway identifier.
type Kind int

const (
	KindUnknown Kind = iota
	KindDirect       // stable, phone-shaped (user@s.whatsapp.net)
	KindInternal     // opaque gateway-assigned LID (user@lid)
	KindGroup        // group chat (id@g.us)
	KindBroadcast    // broadcast/system pseudo-chat
)

const (
	directSuffix    = "@s.whatsapp.net"
	groupSuffix     = "@g.us"
	internalSuffix  = "@lid"
	broadcastSuffix = "@broadcast"
)

// maxPhoneDigits is the longest plausible E.164 phone number. Anything
// longer after suffix stripping is an opaque identifier, not a phone.
const maxPhoneDigits = 15

// KindOf classifies a raw identifier by its server suffix. Bare values with
// no suffix are treated as direct when they are phone-plausible.
func KindOf(raw string) Kind {
	switch {
	case raw == "":
		return KindUnknown
	case strings.HasSuffix(raw, directSuffix):
		return KindDirect
	case strings.HasSuffix(raw, groupSuffix):
		return KindGroup
	case strings.HasSuffix(raw, internalSuffix):
		return KindInternal
	case strings.HasSuffix(raw, broadcastSuffix):
		return KindBroadcast
	case strings.Contains(raw, "@"):
		return KindUnknown
	default:
		return KindDirect
	}
}

// IsGroup reports whether raw names a group chat.
func IsGroup(raw string) bool { return KindOf(raw) == KindGroup }

// IsInternal reports whether raw is an opaque internal identifier.
func IsInternal(raw string) bool { return KindOf(raw) == KindInternal }

// IsBroadcast reports whether raw is a broadcast/system pseudo-chat.
func IsBroadcast(raw string) bool { return KindOf(raw) == KindBroadcast }

// Normalize reduces a raw identifier to its canonical phone-like form.
//
// The server suffix is stripped. Old-style group identifiers of the form
// "<creatorphone>-<timestamp>" keep only the leading digit run. A result
// longer than maxPhoneDigits is not a real phone number and normalizes to
// the empty string; callers must treat empty as "use a fallback display
// value", never as an error.
func Normalize(raw string) string {
	if raw == "" || IsBroadcast(raw) {
		return ""
	}
	s := raw
	for _, suffix := range []string{directSuffix, groupSuffix, internalSuffix} {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSuffix(s, suffix)
			break
		}
	}
	// Device part of an agent JID (phone:device) is not part of the number.
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		s = s[:i]
	}
	if len(s) > maxPhoneDigits {
		return ""
	}
	return s
}

// PlausiblePhone reports whether s is a non-empty digit run short enough to
// be a phone number.
func PlausiblePhone(s string) bool {
	if s == "" || len(s) > maxPhoneDigits {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// DirectJID builds a direct-kind identifier from a bare phone number.
func DirectJID(phone string) string {
	if phone == "" {
		return ""
	}
	return phone + directSuffix
}
