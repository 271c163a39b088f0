// Package messages produces merged, deduplicated message pages for one
// chat. When the chat is known under both an internal and a direct
// identifier, the first page is assembled from both upstream histories.
package messages

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/abda11atar3k/leblebbot/internal/cache"
	"github.com/abda11atar3k/leblebbot/internal/chats"
	"github.com/abda11atar3k/leblebbot/internal/gateway"
	"github.com/abda11atar3k/leblebbot/internal/identity"
)

// Gateway is the slice of the gateway client the merger consumes.
type Gateway interface {
	FetchContacts(ctx context.Context) ([]gateway.Contact, error)
	FetchMessages(ctx context.Context, remoteJID string, limit, page int) (gateway.MessagePage, error)
	FetchGroupParticipants(ctx context.Context, groupJID string) ([]gateway.Participant, error)
	FetchInstanceInfo(ctx context.Context) (gateway.InstanceInfo, error)
	FetchMediaBase64(ctx context.Context, key gateway.MessageKey) (gateway.Media, error)
}

// Page is one merged message page with its chat header.
type Page struct {
	Items  []Record      `json:"items"`
	Total  int           `json:"total"`
	Header chats.Summary `json:"header"`
}

const defaultPageLimit = 50

// senderFallback labels group senders nothing could resolve.
const senderFallback = "participant"

// Merger assembles message pages.
type Merger struct {
	gw     Gateway
	caches *cache.Manager
	logger *zap.Logger

	mu         sync.Mutex
	owner      string
	ownerKnown bool
}

// NewMerger creates a merger.
func NewMerger(gw Gateway, caches *cache.Manager, logger *zap.Logger) *Merger {
	return &Merger{gw: gw, caches: caches, logger: logger}
}

// MessagePage returns one page of records for chatID, oldest-first, plus
// the pre-merge total and the best-known chat header. Page numbers are
// 1-indexed. refresh drops the chat's cached pages first.
func (m *Merger) MessagePage(ctx context.Context, chatID string, limit, page int, refresh bool) (Page, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if page <= 0 {
		page = 1
	}
	if refresh {
		m.caches.InvalidateChat(chatID)
	}

	contacts := m.directory(ctx)
	mapping := buildMapping(contacts)

	primary, err := m.fetchPage(ctx, chatID, limit, page)
	if err != nil {
		return Page{}, err
	}
	for i := range primary.Records {
		observeKey(mapping, &primary.Records[i].Key)
	}

	records := primary.Records
	if page == 1 && identity.IsInternal(chatID) {
		if phone, ok := mapping.Direct(chatID); ok {
			alt := identity.DirectJID(phone)
			altPage, err := m.fetchPage(ctx, alt, limit, 1)
			if err != nil {
				m.logger.Warn("alternate history fetch failed",
					zap.String("chat", chatID),
					zap.String("alternate", alt),
					zap.Error(err))
			} else {
				records = mergeRecords(primary.Records, altPage.Records, limit)
			}
		}
	}

	isGroup := identity.IsGroup(chatID)
	var roster rosterIndex
	if isGroup {
		roster = m.fetchRoster(ctx, chatID, mapping)
	}
	owner := m.ownerID(ctx)
	contactIndex := indexContacts(contacts)

	items := make([]Record, 0, len(records))
	for i := range records {
		items = append(items, m.buildRecord(&records[i], chatID, isGroup, owner, mapping, contactIndex, roster))
	}
	// Output is chronological, oldest first.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp < items[j].Timestamp
	})

	return Page{
		Items: items,
		// The total reflects the primary history only; the secondary
		// merge must not inflate it.
		Total:  primary.Total,
		Header: m.chatHeader(chatID, isGroup, mapping, contactIndex),
	}, nil
}

// Media fetches and decodes one media payload. Retry and the typed
// unavailable error come from the gateway client.
func (m *Merger) Media(ctx context.Context, chatID, messageID string, direction Direction) ([]byte, string, error) {
	media, err := m.gw.FetchMediaBase64(ctx, gateway.MessageKey{
		ID:        messageID,
		RemoteJID: chatID,
		FromMe:    direction == Outbound,
	})
	if err != nil {
		return nil, "", err
	}
	data, err := decodeBase64(media.Base64)
	if err != nil {
		return nil, "", err
	}
	return data, media.Mimetype, nil
}

// fetchPage is a read-through on the message-page cache domain.
func (m *Merger) fetchPage(ctx context.Context, jid string, limit, page int) (gateway.MessagePage, error) {
	key := cache.PageKey(jid, limit, page)
	if cached, ok := m.caches.Pages.Get(key); ok {
		return cached, nil
	}
	fetched, err := m.gw.FetchMessages(ctx, jid, limit, page)
	if err != nil {
		return gateway.MessagePage{}, err
	}
	m.caches.Pages.Set(key, fetched)
	return fetched, nil
}

// mergeRecords combines two histories newest-first, deduplicates by message
// id (first occurrence wins) and keeps at most limit records.
func mergeRecords(primary, alternate []gateway.Message, limit int) []gateway.Message {
	combined := make([]gateway.Message, 0, len(primary)+len(alternate))
	combined = append(combined, primary...)
	combined = append(combined, alternate...)
	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].MessageTimestamp > combined[j].MessageTimestamp
	})

	seen := make(map[string]struct{}, len(combined))
	merged := combined[:0]
	for _, rec := range combined {
		id := rec.Key.ID
		if id != "" {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
		}
		merged = append(merged, rec)
		if len(merged) == limit {
			break
		}
	}
	return merged
}

func (m *Merger) buildRecord(raw *gateway.Message, chatID string, isGroup bool, owner string, mapping *identity.Mapping, contactIndex map[string]gateway.Contact, roster rosterIndex) Record {
	direction := Inbound
	switch {
	case raw.Key.FromMe:
		direction = Outbound
	case identity.IsInternal(chatID) && owner != "" && deviceOriginatedID(raw.Key.ID):
		// The raw flag lies for internal-kind chats; ids minted by the
		// owning device mark the message as ours.
		direction = Outbound
	}

	typeTag, content, media := classify(raw)
	if media != nil {
		media.ProxyURL = mediaProxyURL(direction, chatID, raw.Key.ID)
	}
	if content != "" {
		content = rewriteMentions(content, m.mentionResolver(mapping, contactIndex, roster))
	}

	rec := Record{
		ID:        raw.Key.ID,
		Content:   content,
		Direction: direction,
		Timestamp: raw.MessageTimestamp,
		Type:      typeTag,
		Media:     media,
		RemoteJID: raw.Key.RemoteJID,
	}

	if isGroup && direction == Inbound {
		rec.SenderName, rec.SenderAvatar = m.resolveSender(raw, mapping, contactIndex, roster)
	}
	return rec
}

// resolveSender determines the display name and avatar of a group message
// sender. An embedded direct identifier beats the raw internal participant;
// purely numeric "names" longer than ten digits are leaked identifiers and
// never usable.
func (m *Merger) resolveSender(raw *gateway.Message, mapping *identity.Mapping, contactIndex map[string]gateway.Contact, roster rosterIndex) (string, string) {
	participant := raw.Key.Participant

	phone := ""
	if alt := embeddedAlt(&raw.Key); alt != "" {
		phone = identity.Normalize(alt)
	}
	if phone == "" && identity.IsInternal(participant) {
		if mapped, ok := mapping.Direct(participant); ok {
			phone = mapped
		}
	}
	if phone == "" {
		phone = identity.Normalize(participant)
	}

	var candidates []string
	if c, ok := contactIndex[phone]; ok {
		candidates = append(candidates, c.PushName)
	}
	if c, ok := contactIndex[participant]; ok {
		candidates = append(candidates, c.PushName)
	}
	if entry, ok := roster.lookup(participant, phone); ok {
		candidates = append(candidates, entry.Name)
	}
	candidates = append(candidates, raw.PushName)

	name := ""
	for _, cand := range candidates {
		if usableName(cand) {
			name = cand
			break
		}
	}
	if name == "" {
		if phone != "" {
			name = phone
		} else {
			name = senderFallback
		}
	}

	avatar := ""
	if entry, ok := roster.lookup(participant, phone); ok {
		avatar = entry.ImgURL
	}
	if avatar == "" && phone != "" {
		if profile, ok := m.caches.Profiles.Get(phone); ok {
			avatar = profile.PictureURL
		}
	}
	return name, avatar
}

// mentionResolver maps an @-mention digit run to a display value: mapped
// contact name first, then the resolved phone number, else empty to leave
// the token alone.
func (m *Merger) mentionResolver(mapping *identity.Mapping, contactIndex map[string]gateway.Contact, roster rosterIndex) func(string) string {
	return func(digits string) string {
		phone := digits
		if mapped, ok := mapping.Direct(digits + "@lid"); ok {
			phone = mapped
		}
		if c, ok := contactIndex[phone]; ok && usableName(c.PushName) {
			return c.PushName
		}
		if entry, ok := roster.lookup(digits, phone); ok && usableName(entry.Name) {
			return entry.Name
		}
		if phone != digits {
			return phone
		}
		return ""
	}
}

// chatHeader resolves the best-known header for the chat, reusing profiles
// recorded by the chat aggregator when present.
func (m *Merger) chatHeader(chatID string, isGroup bool, mapping *identity.Mapping, contactIndex map[string]gateway.Contact) chats.Summary {
	canonical := chatID
	phone := identity.Normalize(chatID)
	if !isGroup {
		canonical = mapping.Resolve(chatID)
		if phone == "" {
			if mapped, ok := mapping.Direct(chatID); ok {
				phone = mapped
			}
		}
	}

	header := chats.Summary{ID: chatID, Phone: phone, IsGroup: isGroup}

	if profile, ok := m.caches.Profiles.Get(canonical); ok {
		header.Name = profile.Name
		header.AvatarURL = profile.PictureURL
		if profile.Phone != "" {
			header.Phone = profile.Phone
		}
		if header.Name != "" {
			return header
		}
	}

	if isGroup {
		if subject, ok := m.caches.Subjects.Get(chatID); ok && subject != "" {
			header.Name = subject
		}
		if pic, ok := m.caches.Pictures.Get(chatID); ok {
			header.AvatarURL = pic
		}
	} else if c, ok := contactIndex[canonical]; ok {
		header.Name = c.PushName
		header.AvatarURL = c.ProfilePicURL
	}

	if header.Name == "" {
		if header.Phone != "" {
			header.Name = header.Phone
		} else {
			header.Name = chatID
		}
	}

	m.caches.Profiles.Set(canonical, cache.Profile{
		Name:       header.Name,
		PictureURL: header.AvatarURL,
		Phone:      header.Phone,
		IsGroup:    isGroup,
	})
	return header
}

// directory returns the cached contact directory, degrading to empty on
// fetch failure.
func (m *Merger) directory(ctx context.Context) []gateway.Contact {
	if contacts, ok := m.caches.Directory(); ok {
		return contacts
	}
	contacts, err := m.gw.FetchContacts(ctx)
	if err != nil {
		m.logger.Warn("contact directory fetch failed", zap.Error(err))
		return nil
	}
	m.caches.SetDirectory(contacts)
	return contacts
}

// ownerID lazily resolves the owning account's phone. A fetch failure just
// disables the direction heuristic until the next request.
func (m *Merger) ownerID(ctx context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ownerKnown {
		return m.owner
	}
	info, err := m.gw.FetchInstanceInfo(ctx)
	if err != nil {
		m.logger.Debug("instance info fetch failed", zap.Error(err))
		return ""
	}
	m.owner = identity.Normalize(info.OwnerJID)
	m.ownerKnown = true
	return m.owner
}

// rosterIndex indexes a group roster by raw participant id and phone.
type rosterIndex struct {
	byID    map[string]gateway.Participant
	byPhone map[string]gateway.Participant
}

func (r rosterIndex) lookup(rawID, phone string) (gateway.Participant, bool) {
	if r.byID != nil {
		if p, ok := r.byID[rawID]; ok {
			return p, true
		}
		if p, ok := r.byID[identity.Normalize(rawID)]; ok {
			return p, true
		}
	}
	if r.byPhone != nil && phone != "" {
		if p, ok := r.byPhone[phone]; ok {
			return p, true
		}
	}
	return gateway.Participant{}, false
}

// fetchRoster retrieves the group roster and feeds its id↔phone pairs into
// the identity mapping. Failures degrade to an empty roster.
func (m *Merger) fetchRoster(ctx context.Context, groupJID string, mapping *identity.Mapping) rosterIndex {
	participants, err := m.gw.FetchGroupParticipants(ctx, groupJID)
	if err != nil {
		m.logger.Debug("group roster fetch failed", zap.String("group", groupJID), zap.Error(err))
		return rosterIndex{}
	}
	idx := rosterIndex{
		byID:    make(map[string]gateway.Participant, len(participants)),
		byPhone: make(map[string]gateway.Participant, len(participants)),
	}
	for _, p := range participants {
		idx.byID[p.ID] = p
		if n := identity.Normalize(p.ID); n != "" {
			idx.byID[n] = p
		}
		phone := identity.Normalize(p.PhoneNumber)
		if phone != "" {
			idx.byPhone[phone] = p
			if identity.IsInternal(p.ID) {
				mapping.Observe(p.ID, phone)
			}
		}
	}
	return idx
}

// buildMapping correlates the contact directory by avatar fingerprint.
func buildMapping(contacts []gateway.Contact) *identity.Mapping {
	avatars := make([]identity.AvatarContact, 0, len(contacts))
	for _, c := range contacts {
		avatars = append(avatars, identity.AvatarContact{ID: c.JID(), AvatarURL: c.ProfilePicURL})
	}
	return identity.Build(avatars)
}

// observeKey records message-embedded alternate identifiers.
func observeKey(m *identity.Mapping, key *gateway.MessageKey) {
	alt := embeddedAlt(key)
	if alt == "" {
		return
	}
	phone := identity.Normalize(alt)
	if identity.IsInternal(key.Participant) {
		m.Observe(key.Participant, phone)
	}
	if identity.IsInternal(key.RemoteJID) {
		m.Observe(key.RemoteJID, phone)
	}
}

// embeddedAlt returns the direct-kind alternate identifier carried by a
// message key, if any.
func embeddedAlt(key *gateway.MessageKey) string {
	for _, alt := range []string{key.SenderPN, key.ParticipantAlt} {
		if alt != "" && identity.KindOf(alt) == identity.KindDirect {
			return alt
		}
	}
	return ""
}

// usableName rejects empty strings and purely numeric values longer than
// ten digits.
func usableName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	if len(name) > 10 && isAllDigits(name) {
		return false
	}
	return true
}

func isAllDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func indexContacts(contacts []gateway.Contact) map[string]gateway.Contact {
	index := make(map[string]gateway.Contact, len(contacts))
	for _, c := range contacts {
		jid := c.JID()
		if phone := identity.Normalize(jid); phone != "" {
			if _, ok := index[phone]; !ok {
				index[phone] = c
			}
		}
		if _, ok := index[jid]; !ok {
			index[jid] = c
		}
	}
	return index
}
