// Package demotransport is the in-memory stand-in for the RTPS transport
// that a real Discovery Server would sit on top of: a CacheChange pool and
// per-builtin-endpoint histories, wired so cmd/discoveryd and integration
// tests can drive a full update -> reconcile -> send -> ack cycle without a
// wire protocol. It is not part of the Discovery Database itself.
package demotransport

import (
	"sync"

	"github.com/meshdisco/discoveryd/internal/ddb"
)

// History is a builtin endpoint's reader/writer history: every CacheChange
// currently held for that endpoint, in arrival order. Satisfies both
// routine.History (Add/FindBySampleIdentity in addition to Entries/Remove)
// and listener.ChangeSource.
type History struct {
	mu      sync.Mutex
	entries []*ddb.CacheChange
}

// NewHistory constructs an empty History.
func NewHistory() *History {
	return &History{}
}

// Entries returns a snapshot of the history's current contents.
func (h *History) Entries() []*ddb.CacheChange {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*ddb.CacheChange, len(h.entries))
	copy(out, h.entries)
	return out
}

// FindBySampleIdentity returns the entry matching id, or nil.
func (h *History) FindBySampleIdentity(id ddb.SampleIdentity) *ddb.CacheChange {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.entries {
		if c.SampleIdentity == id {
			return c
		}
	}
	return nil
}

// Add appends c to the history.
func (h *History) Add(c *ddb.CacheChange) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, c)
}

// Remove deletes c from the history without releasing it to any pool.
func (h *History) Remove(c *ddb.CacheChange) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, e := range h.entries {
		if e == c {
			h.entries = append(h.entries[:i], h.entries[i+1:]...)
			return true
		}
	}
	return false
}
