// Package chats produces the deduplicated, recency-sorted chat list from
// raw gateway data. The same real contact can surface under a direct and an
// internal identifier at once; the aggregator collapses the pair into one
// row, keeping whichever side carries the newer message.
package chats

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abda11atar3k/leblebbot/internal/cache"
	"github.com/abda11atar3k/leblebbot/internal/gateway"
	"github.com/abda11atar3k/leblebbot/internal/identity"
)

// Gateway is the slice of the gateway client the aggregator consumes.
type Gateway interface {
	FetchContacts(ctx context.Context) ([]gateway.Contact, error)
	FetchChats(ctx context.Context) ([]gateway.Chat, error)
	FetchGroupInfo(ctx context.Context, groupJID string) (gateway.GroupInfo, error)
	FetchProfilePicture(ctx context.Context, jid string) (string, error)
}

// Banlist reports whether a phone number is banned. The backing store is an
// external collaborator.
type Banlist interface {
	IsBanned(phone string) bool
}

// NopBanlist bans nobody.
type NopBanlist struct{}

func (NopBanlist) IsBanned(string) bool { return false }

// StaticBanlist bans a fixed set of phone numbers, typically loaded from
// configuration.
type StaticBanlist struct {
	numbers map[string]struct{}
}

// NewStaticBanlist builds a banlist from normalized phone numbers.
func NewStaticBanlist(numbers []string) *StaticBanlist {
	set := make(map[string]struct{}, len(numbers))
	for _, n := range numbers {
		n = strings.TrimSpace(n)
		if n != "" {
			set[n] = struct{}{}
		}
	}
	return &StaticBanlist{numbers: set}
}

// IsBanned implements Banlist.
func (b *StaticBanlist) IsBanned(phone string) bool {
	_, ok := b.numbers[phone]
	return ok
}

// Summary is one row of the aggregated chat list.
type Summary struct {
	ID            string `json:"id"`
	Phone         string `json:"phone"`
	Name          string `json:"name"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	Preview       string `json:"preview"`
	PreviewType   string `json:"preview_type"`
	LastMessageAt int64  `json:"last_message_at"`
	UnreadCount   int    `json:"unread_count"`
	IsGroup       bool   `json:"is_group"`
	Banned        bool   `json:"banned"`
}

const (
	defaultPageLimit = 50
	// prefetchWorkers bounds the concurrent group-metadata fan-out.
	prefetchWorkers = 5
)

// Aggregator builds chat-list pages.
type Aggregator struct {
	gw        Gateway
	caches    *cache.Manager
	banlist   Banlist
	selfNames map[string]struct{}
	logger    *zap.Logger
}

// NewAggregator creates an aggregator. selfNames is the set of display
// strings that mean "me" in some locale and must never win name resolution.
func NewAggregator(gw Gateway, caches *cache.Manager, banlist Banlist, selfNames []string, logger *zap.Logger) *Aggregator {
	set := make(map[string]struct{}, len(selfNames))
	for _, n := range selfNames {
		set[strings.ToLower(strings.TrimSpace(n))] = struct{}{}
	}
	if banlist == nil {
		banlist = NopBanlist{}
	}
	return &Aggregator{
		gw:        gw,
		caches:    caches,
		banlist:   banlist,
		selfNames: set,
		logger:    logger,
	}
}

// candidate is one chat surviving the dedup pass.
type candidate struct {
	chat      gateway.Chat
	jid       string
	canonical string
	phone     string
	isGroup   bool
	lastAt    int64
}

// ChatPage returns one page of chat summaries sorted by recency, plus the
// pre-pagination total. Any single contact or group resolution failure
// degrades to a fallback value; it never aborts the page.
func (a *Aggregator) ChatPage(ctx context.Context, limit, offset int, search string, includeBanned bool) ([]Summary, int, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	contacts := a.directory(ctx)
	raw, err := a.gw.FetchChats(ctx)
	if err != nil {
		return nil, 0, err
	}

	mapping := buildMapping(contacts, raw)
	rows := a.dedupe(raw, mapping)

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].lastAt > rows[j].lastAt
	})

	contactIndex := indexContacts(contacts)

	if !includeBanned {
		kept := rows[:0]
		for _, r := range rows {
			if !a.banlist.IsBanned(r.phone) {
				kept = append(kept, r)
			}
		}
		rows = kept
	}

	if search != "" {
		needle := strings.ToLower(search)
		kept := rows[:0]
		for _, r := range rows {
			name := a.displayName(r, contactIndex)
			if strings.Contains(strings.ToLower(name), needle) || strings.Contains(r.phone, needle) {
				kept = append(kept, r)
			}
		}
		rows = kept
	}

	total := len(rows)
	if offset >= total {
		return []Summary{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := rows[offset:end]

	a.prefetchGroupMeta(ctx, page)

	summaries := make([]Summary, 0, len(page))
	for _, r := range page {
		summaries = append(summaries, a.summarize(r, contactIndex))
	}
	return summaries, total, nil
}

// directory returns the cached contact directory, refetching on TTL expiry.
// A fetch failure degrades to an empty directory.
func (a *Aggregator) directory(ctx context.Context) []gateway.Contact {
	if contacts, ok := a.caches.Directory(); ok {
		return contacts
	}
	contacts, err := a.gw.FetchContacts(ctx)
	if err != nil {
		a.logger.Warn("contact directory fetch failed", zap.Error(err))
		return nil
	}
	a.caches.SetDirectory(contacts)
	return contacts
}

// buildMapping correlates internal and direct identifiers from the contact
// directory and from alternate identifiers embedded in last messages.
func buildMapping(contacts []gateway.Contact, raw []gateway.Chat) *identity.Mapping {
	avatars := make([]identity.AvatarContact, 0, len(contacts))
	for _, c := range contacts {
		avatars = append(avatars, identity.AvatarContact{ID: c.JID(), AvatarURL: c.ProfilePicURL})
	}
	mapping := identity.Build(avatars)

	for _, c := range raw {
		last := c.LastMessage
		if last == nil {
			continue
		}
		observeKey(mapping, &last.Key)
	}
	return mapping
}

// observeKey records message-embedded alternate identifiers, the strongest
// correlation signal available.
func observeKey(m *identity.Mapping, key *gateway.MessageKey) {
	alt := key.SenderPN
	if alt == "" {
		alt = key.ParticipantAlt
	}
	if alt == "" || identity.KindOf(alt) != identity.KindDirect {
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

// dedupe collapses chats to one row per canonical identity, keeping the
// entry with the more recent last message. Broadcast pseudo-chats and empty
// conversations are dropped.
func (a *Aggregator) dedupe(raw []gateway.Chat, mapping *identity.Mapping) []candidate {
	byCanonical := make(map[string]int)
	var rows []candidate

	for _, c := range raw {
		jid := c.JID()
		if jid == "" || identity.IsBroadcast(jid) {
			continue
		}

		lastAt := int64(0)
		if c.LastMessage != nil {
			lastAt = c.LastMessage.MessageTimestamp
		}
		if lastAt == 0 && c.UnreadCount == 0 {
			continue
		}

		isGroup := identity.IsGroup(jid)
		canonical := jid
		phone := ""
		if !isGroup {
			canonical = mapping.Resolve(jid)
			phone = identity.Normalize(jid)
			if phone == "" {
				if mapped, ok := mapping.Direct(jid); ok {
					phone = mapped
				}
			}
		} else {
			phone = identity.Normalize(jid)
		}

		cand := candidate{
			chat:      c,
			jid:       jid,
			canonical: canonical,
			phone:     phone,
			isGroup:   isGroup,
			lastAt:    lastAt,
		}

		if i, seen := byCanonical[canonical]; seen {
			// A migrated identifier must not produce a duplicate stale
			// row: keep whichever side has the newer message.
			if cand.lastAt > rows[i].lastAt {
				rows[i] = cand
			}
			continue
		}
		byCanonical[canonical] = len(rows)
		rows = append(rows, cand)
	}
	return rows
}

// prefetchGroupMeta fans out subject and avatar fetches for every group on
// the current page that has no cached entry, bounded by prefetchWorkers.
// Failures are tolerated per identifier.
func (a *Aggregator) prefetchGroupMeta(ctx context.Context, page []candidate) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchWorkers)

	for _, r := range page {
		if !r.isGroup {
			continue
		}
		jid := r.jid
		if _, ok := a.caches.Subjects.Get(jid); !ok {
			g.Go(func() error {
				info, err := a.gw.FetchGroupInfo(ctx, jid)
				if err != nil {
					a.logger.Debug("group info prefetch failed", zap.String("group", jid), zap.Error(err))
					return nil
				}
				a.caches.Subjects.Set(jid, info.Subject)
				if info.PictureURL != "" {
					a.caches.Pictures.Set(jid, info.PictureURL)
				}
				return nil
			})
		}
		if _, ok := a.caches.Pictures.Get(jid); !ok {
			g.Go(func() error {
				pic, err := a.gw.FetchProfilePicture(ctx, jid)
				if err != nil {
					a.logger.Debug("group picture prefetch failed", zap.String("group", jid), zap.Error(err))
					return nil
				}
				a.caches.Pictures.Set(jid, pic)
				return nil
			})
		}
	}
	_ = g.Wait()
}

// summarize resolves display attributes for one candidate and records the
// result in the profile cache for reuse by message-page headers.
func (a *Aggregator) summarize(r candidate, contactIndex map[string]gateway.Contact) Summary {
	name := a.displayName(r, contactIndex)
	avatar := a.avatarURL(r, contactIndex)
	preview, previewType := Preview(r.chat.LastMessage)

	a.caches.Profiles.Set(r.canonical, cache.Profile{
		Name:       name,
		PictureURL: avatar,
		Phone:      r.phone,
		IsGroup:    r.isGroup,
	})

	return Summary{
		ID:            r.jid,
		Phone:         r.phone,
		Name:          name,
		AvatarURL:     avatar,
		Preview:       preview,
		PreviewType:   previewType,
		LastMessageAt: r.lastAt,
		UnreadCount:   r.chat.UnreadCount,
		IsGroup:       r.isGroup,
		Banned:        a.banlist.IsBanned(r.phone),
	}
}

// displayName walks the fallback chain and returns the first acceptable
// candidate.
func (a *Aggregator) displayName(r candidate, contactIndex map[string]gateway.Contact) string {
	if r.isGroup {
		return a.groupName(r)
	}

	var fromDirectory string
	if c, ok := contactIndex[r.canonical]; ok {
		fromDirectory = c.PushName
	}

	chain := []string{
		fromDirectory,
		r.chat.NotifyName,
		r.chat.VerifiedName,
		r.chat.PushName,
		r.chat.Name,
	}
	if r.chat.LastMessage != nil {
		chain = append(chain, r.chat.LastMessage.PushName)
	}
	chain = append(chain, r.phone, r.jid)

	for _, name := range chain {
		if a.acceptable(name) {
			return name
		}
	}
	return r.jid
}

// groupName prefers the prefetched subject cache, then the chat-level name,
// then a generated label.
func (a *Aggregator) groupName(r candidate) string {
	if subject, ok := a.caches.Subjects.Get(r.jid); ok && subject != "" {
		return subject
	}
	if r.chat.Name != "" {
		return r.chat.Name
	}
	return "Group " + groupSuffix(r.jid)
}

// groupSuffix derives a short human tag from a group identifier.
func groupSuffix(jid string) string {
	s := jid
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 4 {
		s = s[len(s)-4:]
	}
	return s
}

func (a *Aggregator) avatarURL(r candidate, contactIndex map[string]gateway.Contact) string {
	if r.isGroup {
		if pic, ok := a.caches.Pictures.Get(r.jid); ok && pic != "" {
			return pic
		}
		return r.chat.ProfilePicURL
	}
	if c, ok := contactIndex[r.canonical]; ok && c.ProfilePicURL != "" {
		return c.ProfilePicURL
	}
	return r.chat.ProfilePicURL
}

// acceptable rejects empty candidates and self-referential placeholders
// ("You" and its locale variants).
func (a *Aggregator) acceptable(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	_, self := a.selfNames[strings.ToLower(name)]
	return !self
}

// indexContacts maps canonical identities to their directory rows. Internal
// rows are indexed by their raw identifier so mapped lookups still land.
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
