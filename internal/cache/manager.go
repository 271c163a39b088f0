package cache

import (
	"fmt"
	"time"

	"github.com/abda11atar3k/leblebbot/internal/gateway"
)

// Default TTLs per domain. The profile domain never expires; it is flushed
// only by explicit invalidation so that empty lookups stay cached instead
// of hammering the gateway.
const (
	DefaultContactsTTL = 5 * time.Minute
	DefaultSubjectTTL  = 5 * time.Minute
	DefaultPictureTTL  = 30 * time.Minute
	DefaultPageTTL     = 30 * time.Second
)

// directoryKey is the single key under which the full contact directory is
// cached.
const directoryKey = "directory"

// Profile is a resolved contact's display attributes, derived from merged
// gateway records.
type Profile struct {
	Name       string
	PictureURL string
	Phone      string
	IsGroup    bool
}

// TTLs configures per-domain expiry. Zero fields fall back to defaults.
type TTLs struct {
	Contacts time.Duration
	Subject  time.Duration
	Picture  time.Duration
	Page     time.Duration
}

func (t TTLs) withDefaults() TTLs {
	if t.Contacts == 0 {
		t.Contacts = DefaultContactsTTL
	}
	if t.Subject == 0 {
		t.Subject = DefaultSubjectTTL
	}
	if t.Picture == 0 {
		t.Picture = DefaultPictureTTL
	}
	if t.Page == 0 {
		t.Page = DefaultPageTTL
	}
	return t
}

// Manager owns the independent cache domains used by the pipeline. It is
// created once at process start and passed by handle to all consumers;
// there is no persistence beyond process lifetime.
type Manager struct {
	Contacts *Domain[[]gateway.Contact]
	Subjects *Domain[string]
	Pictures *Domain[string]
	Profiles *Domain[Profile]
	Pages    *Domain[gateway.MessagePage]
}

// NewManager creates the cache domains with the given TTL configuration.
func NewManager(ttls TTLs) *Manager {
	ttls = ttls.withDefaults()
	return &Manager{
		Contacts: NewDomain[[]gateway.Contact](ttls.Contacts),
		Subjects: NewDomain[string](ttls.Subject),
		Pictures: NewDomain[string](ttls.Picture),
		Profiles: NewDomain[Profile](0),
		Pages:    NewDomain[gateway.MessagePage](ttls.Page),
	}
}

// Directory returns the cached contact directory.
func (m *Manager) Directory() ([]gateway.Contact, bool) {
	return m.Contacts.Get(directoryKey)
}

// SetDirectory replaces the cached contact directory.
func (m *Manager) SetDirectory(contacts []gateway.Contact) {
	m.Contacts.Set(directoryKey, contacts)
}

// PageKey builds the message-page cache key for one chat page. The chat
// identifier prefix makes targeted per-chat invalidation possible.
func PageKey(chatID string, limit, page int) string {
	return fmt.Sprintf("%s|%d|%d", chatID, limit, page)
}

// InvalidateChat removes only the message-page entries belonging to one
// chat, leaving every other domain untouched. Triggered by inbound-message
// webhook events.
func (m *Manager) InvalidateChat(chatID string) int {
	return m.Pages.DeletePrefix(chatID + "|")
}

// FlushAll clears every domain. Called on logout, disconnect and explicit
// cache-clear requests.
func (m *Manager) FlushAll() {
	m.Contacts.Flush()
	m.Subjects.Flush()
	m.Pictures.Flush()
	m.Profiles.Flush()
	m.Pages.Flush()
}
