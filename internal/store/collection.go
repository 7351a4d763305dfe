// Package store holds the client's canonical copy of a project's memory
// records and the rules for keeping it in step with the backend.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/user/cortexdash/internal/types"
)

// ChangeKind describes how the collection was mutated.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeUpdated  ChangeKind = "updated"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeReplaced ChangeKind = "replaced"
	ChangeResorted ChangeKind = "resorted"
)

// Change is published to observers after every mutation. ID is empty for
// whole-collection changes.
type Change struct {
	Kind ChangeKind
	ID   types.RecordID
}

// DefaultRecentWindow is how long a newly arrived record stays flagged.
const DefaultRecentWindow = 5 * time.Second

// Collection is an ordered set of records, unique by id and kept sorted by
// the active Sort. Reads never observe a partially applied mutation.
type Collection struct {
	mu      sync.RWMutex
	records []types.Record
	sort    types.Sort

	recent *cache.Cache

	obsMu     sync.RWMutex
	observers []func(Change)
}

// NewCollection creates an empty collection. Records inserted through
// ApplyCreate are flagged as recently arrived for recentWindow.
func NewCollection(s types.Sort, recentWindow time.Duration) *Collection {
	if recentWindow <= 0 {
		recentWindow = DefaultRecentWindow
	}
	return &Collection{
		sort:   s,
		recent: cache.New(recentWindow, time.Minute),
	}
}

// OnChange registers an observer. Observers run after the collection lock
// is released and may read the collection.
func (c *Collection) OnChange(fn func(Change)) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Collection) notify(ch Change) {
	c.obsMu.RLock()
	obs := c.observers
	c.obsMu.RUnlock()
	for _, fn := range obs {
		fn(ch)
	}
}

// ApplyCreate inserts r at its sorted position. A record whose id is
// already present is treated as an update.
func (c *Collection) ApplyCreate(r types.Record) Change {
	c.mu.Lock()
	if i := c.indexOf(r.ID); i >= 0 {
		c.replaceAt(i, r)
		c.mu.Unlock()
		ch := Change{Kind: ChangeUpdated, ID: r.ID}
		c.notify(ch)
		return ch
	}
	c.insert(r)
	c.mu.Unlock()

	c.recent.SetDefault(string(r.ID), struct{}{})
	ch := Change{Kind: ChangeCreated, ID: r.ID}
	c.notify(ch)
	return ch
}

// ApplyUpdate replaces the record with r's id wholesale. An update for an
// id that is not present inserts it.
func (c *Collection) ApplyUpdate(r types.Record) Change {
	c.mu.Lock()
	ch := Change{Kind: ChangeUpdated, ID: r.ID}
	if i := c.indexOf(r.ID); i >= 0 {
		c.replaceAt(i, r)
	} else {
		c.insert(r)
		ch.Kind = ChangeCreated
	}
	c.mu.Unlock()

	c.notify(ch)
	return ch
}

// ApplyDelete removes the record with id. It reports false, and publishes
// nothing, when the id is unknown.
func (c *Collection) ApplyDelete(id types.RecordID) (Change, bool) {
	c.mu.Lock()
	i := c.indexOf(id)
	if i < 0 {
		c.mu.Unlock()
		return Change{}, false
	}
	c.records = append(c.records[:i], c.records[i+1:]...)
	c.mu.Unlock()

	c.recent.Delete(string(id))
	ch := Change{Kind: ChangeDeleted, ID: id}
	c.notify(ch)
	return ch, true
}

// Replace discards the current contents and loads records. Later
// duplicates of an id win.
func (c *Collection) Replace(records []types.Record) {
	seen := make(map[types.RecordID]int, len(records))
	next := make([]types.Record, 0, len(records))
	for _, r := range records {
		if i, ok := seen[r.ID]; ok {
			next[i] = r.Clone()
			continue
		}
		seen[r.ID] = len(next)
		next = append(next, r.Clone())
	}

	c.mu.Lock()
	c.records = next
	c.resort()
	c.mu.Unlock()

	c.recent.Flush()
	c.notify(Change{Kind: ChangeReplaced})
}

// SetSort changes the active ordering and re-sorts.
func (c *Collection) SetSort(s types.Sort) {
	c.mu.Lock()
	c.sort = s
	c.resort()
	c.mu.Unlock()
	c.notify(Change{Kind: ChangeResorted})
}

// Sort returns the active ordering.
func (c *Collection) Sort() types.Sort {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sort
}

// Snapshot returns a copy of the records in display order.
func (c *Collection) Snapshot() []types.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.Record, len(c.records))
	for i, r := range c.records {
		out[i] = r.Clone()
	}
	return out
}

// Get returns a copy of the record with id.
func (c *Collection) Get(id types.RecordID) (types.Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexOf(id); i >= 0 {
		return c.records[i].Clone(), true
	}
	return types.Record{}, false
}

// Len returns the number of records.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// IsRecent reports whether id arrived through ApplyCreate within the recent
// window. The flag is display state and is not part of the record.
func (c *Collection) IsRecent(id types.RecordID) bool {
	_, ok := c.recent.Get(string(id))
	return ok
}

// indexOf is a linear scan; caller holds mu.
func (c *Collection) indexOf(id types.RecordID) int {
	for i := range c.records {
		if c.records[i].ID == id {
			return i
		}
	}
	return -1
}

// insert places r at its sorted position; caller holds mu.
func (c *Collection) insert(r types.Record) {
	r = r.Clone()
	i := sort.Search(len(c.records), func(i int) bool {
		return !c.sort.Less(&c.records[i], &r)
	})
	c.records = append(c.records, types.Record{})
	copy(c.records[i+1:], c.records[i:])
	c.records[i] = r
}

// replaceAt swaps in r for the record at i, moving it if its sort key
// changed; caller holds mu.
func (c *Collection) replaceAt(i int, r types.Record) {
	c.records = append(c.records[:i], c.records[i+1:]...)
	c.insert(r)
}

func (c *Collection) resort() {
	sort.SliceStable(c.records, func(i, j int) bool {
		return c.sort.Less(&c.records[i], &c.records[j])
	})
}
