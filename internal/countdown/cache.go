package countdown

import (
	"math"
	"sort"
	"time"

	"bot-panel/internal/snapshot"
)

// Entry is one rendered countdown.
type Entry struct {
	OrderID   string `json:"order_id"`
	Remaining int    `json:"remaining"`
}

// Cache projects server-reported time_left values onto absolute expiry
// instants so countdowns keep ticking between snapshots. It is owned by a
// single goroutine.
type Cache struct {
	expiry map[string]time.Time
	prune  bool
}

// New returns an empty cache. With pruneAbsent set, a full snapshot drops
// entries for orders it no longer lists.
func New(pruneAbsent bool) *Cache {
	return &Cache{expiry: make(map[string]time.Time), prune: pruneAbsent}
}

// Observe refreshes orderID. A nil remaining removes the entry.
func (c *Cache) Observe(orderID string, remaining *float64, now time.Time) {
	if orderID == "" {
		return
	}
	if remaining == nil {
		delete(c.expiry, orderID)
		return
	}
	secs := *remaining
	if secs < 0 || math.IsNaN(secs) {
		secs = 0
	}
	c.expiry[orderID] = now.Add(time.Duration(secs * float64(time.Second)))
}

// ObserveSnapshot applies a full trades list.
func (c *Cache) ObserveSnapshot(trades []snapshot.Trade, now time.Time) {
	seen := make(map[string]struct{}, len(trades))
	for _, trade := range trades {
		seen[trade.ID] = struct{}{}
		c.Observe(trade.ID, trade.TimeLeft, now)
	}
	if !c.prune {
		return
	}
	for id := range c.expiry {
		if _, ok := seen[id]; !ok {
			delete(c.expiry, id)
		}
	}
}

// Tick renders every entry as of now, sorted by order id, and removes those
// that reached zero.
func (c *Cache) Tick(now time.Time) []Entry {
	out := make([]Entry, 0, len(c.expiry))
	for id, expiry := range c.expiry {
		remaining := remainingAt(expiry, now)
		out = append(out, Entry{OrderID: id, Remaining: remaining})
		if remaining == 0 {
			delete(c.expiry, id)
		}
	}
	sortEntries(out)
	return out
}

// Entries renders every entry as of now without removing any.
func (c *Cache) Entries(now time.Time) []Entry {
	out := make([]Entry, 0, len(c.expiry))
	for id, expiry := range c.expiry {
		out = append(out, Entry{OrderID: id, Remaining: remainingAt(expiry, now)})
	}
	sortEntries(out)
	return out
}

func (c *Cache) Remaining(orderID string, now time.Time) (int, bool) {
	expiry, ok := c.expiry[orderID]
	if !ok {
		return 0, false
	}
	return remainingAt(expiry, now), true
}

func (c *Cache) Len() int {
	return len(c.expiry)
}

func remainingAt(expiry, now time.Time) int {
	ms := expiry.Sub(now).Milliseconds()
	if ms <= 0 {
		return 0
	}
	return int(ms / 1000)
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].OrderID < entries[j].OrderID })
}
