package cache

import (
	"testing"
	"time"

	"github.com/abda11atar3k/leblebbot/internal/gateway"
)

// fakeClock lets tests advance domain time manually.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time       { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func clockedDomain[V any](ttl time.Duration) (*Domain[V], *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	d := NewDomain[V](ttl)
	d.now = clock.now
	return d, clock
}

func TestGetPastTTLIsMiss(t *testing.T) {
	d, clock := clockedDomain[string](5 * time.Minute)
	d.Set("k", "v")

	if v, ok := d.Get("k"); !ok || v != "v" {
		t.Fatalf("fresh entry: got %q, %v", v, ok)
	}

	clock.advance(5 * time.Minute)
	if _, ok := d.Get("k"); ok {
		t.Error("entry at TTL boundary should be a miss")
	}
}

func TestSetResetsTimestamp(t *testing.T) {
	d, clock := clockedDomain[string](time.Minute)
	d.Set("k", "old")
	clock.advance(50 * time.Second)
	d.Set("k", "new")
	clock.advance(30 * time.Second)

	v, ok := d.Get("k")
	if !ok {
		t.Fatal("rewritten entry expired too early")
	}
	if v != "new" {
		t.Errorf("value = %q, want last write", v)
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	d, clock := clockedDomain[string](0)
	d.Set("k", "v")
	clock.advance(24 * time.Hour)
	if _, ok := d.Get("k"); !ok {
		t.Error("zero-TTL domain should only miss on explicit invalidation")
	}
	d.Delete("k")
	if _, ok := d.Get("k"); ok {
		t.Error("deleted entry still readable")
	}
}

func TestNegativeProfileEntryIsAHit(t *testing.T) {
	m := NewManager(TTLs{})
	m.Profiles.Set("201141689099", Profile{})

	// An empty result is still a hit; it must not trigger refetches.
	if _, ok := m.Profiles.Get("201141689099"); !ok {
		t.Error("cached empty profile should be a hit")
	}
}

func TestInvalidateChatIsTargeted(t *testing.T) {
	m := NewManager(TTLs{})
	m.Pages.Set(PageKey("a@s.whatsapp.net", 50, 1), gateway.MessagePage{Total: 1})
	m.Pages.Set(PageKey("a@s.whatsapp.net", 50, 2), gateway.MessagePage{Total: 1})
	m.Pages.Set(PageKey("b@s.whatsapp.net", 50, 1), gateway.MessagePage{Total: 2})

	if n := m.InvalidateChat("a@s.whatsapp.net"); n != 2 {
		t.Errorf("invalidated %d entries, want 2", n)
	}
	if _, ok := m.Pages.Get(PageKey("b@s.whatsapp.net", 50, 1)); !ok {
		t.Error("other chat's pages must survive a targeted invalidation")
	}
}

func TestFlushAllClearsEveryDomain(t *testing.T) {
	m := NewManager(TTLs{})
	m.SetDirectory([]gateway.Contact{{ID: "x@s.whatsapp.net"}})
	m.Subjects.Set("g@g.us", "Family")
	m.Pictures.Set("g@g.us", "https://example.net/p.jpg")
	m.Profiles.Set("2011", Profile{Name: "Alice"})
	m.Pages.Set(PageKey("x@s.whatsapp.net", 50, 1), gateway.MessagePage{})

	m.FlushAll()

	if _, ok := m.Directory(); ok {
		t.Error("contacts not flushed")
	}
	if m.Subjects.Len()+m.Pictures.Len()+m.Profiles.Len()+m.Pages.Len() != 0 {
		t.Error("domains not empty after FlushAll")
	}
}
