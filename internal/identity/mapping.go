package identity

import "net/url"

// Mapping is a best-effort association from internal identifiers to the
// direct identifiers of the same real contact. It is rebuilt per resolution
// pass and never persisted.
type Mapping struct {
	byInternal map[string]string
	strong     map[string]bool
}

// NewMapping returns an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{
		byInternal: make(map[string]string),
		strong:     make(map[string]bool),
	}
}

// AvatarContact is the slice of a raw contact record the mapping builder
// correlates on.
type AvatarContact struct {
	ID        string
	AvatarURL string
}

// Build correlates contact records across identifier kinds by avatar-URL
// fingerprint. Contacts sharing the same profile picture path are assumed
// to be the same real contact. First match wins; an entry set earlier in
// the same pass is never overwritten by a later, weaker one.
func Build(contacts []AvatarContact) *Mapping {
	m := NewMapping()

	byFingerprint := make(map[string]string)
	for _, c := range contacts {
		if KindOf(c.ID) != KindDirect {
			continue
		}
		phone := Normalize(c.ID)
		if phone == "" {
			continue
		}
		fp := avatarFingerprint(c.AvatarURL)
		if fp == "" {
			continue
		}
		if _, ok := byFingerprint[fp]; !ok {
			byFingerprint[fp] = phone
		}
	}

	for _, c := range contacts {
		if KindOf(c.ID) != KindInternal {
			continue
		}
		fp := avatarFingerprint(c.AvatarURL)
		if fp == "" {
			continue
		}
		phone, ok := byFingerprint[fp]
		if !ok {
			continue
		}
		if _, exists := m.byInternal[c.ID]; !exists {
			m.byInternal[c.ID] = phone
		}
	}

	return m
}

// Observe records message-embedded evidence that internalID belongs to the
// contact with the given direct phone number. This signal is stronger than
// avatar-fingerprint correlation and replaces it.
func (m *Mapping) Observe(internalID, phone string) {
	if internalID == "" || !PlausiblePhone(phone) {
		return
	}
	if m.strong[internalID] {
		return
	}
	m.byInternal[internalID] = phone
	m.strong[internalID] = true
}

// Direct returns the mapped phone number for an internal identifier.
func (m *Mapping) Direct(internalID string) (string, bool) {
	phone, ok := m.byInternal[internalID]
	return phone, ok
}

// Len returns the number of mapped internal identifiers.
func (m *Mapping) Len() int { return len(m.byInternal) }

// Resolve returns the best display identifier for raw: the mapped phone for
// internal identifiers, otherwise the normalized form, otherwise raw
// itself. Resolution failures are non-fatal by design.
func (m *Mapping) Resolve(raw string) string {
	if KindOf(raw) == KindInternal {
		if phone, ok := m.byInternal[raw]; ok {
			return phone
		}
	}
	if n := Normalize(raw); n != "" {
		return n
	}
	return raw
}

// avatarFingerprint extracts the path segment of an avatar URL. The path
// uniquely identifies the stored picture regardless of query parameters.
func avatarFingerprint(avatarURL string) string {
	if avatarURL == "" {
		return ""
	}
	u, err := url.Parse(avatarURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return ""
	}
	return u.Path
}
