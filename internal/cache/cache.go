// Package cache is a bounded FIFO cache of per-channel video result
// sets, with a TTL and a priority carve-out from eviction.
package cache

import (
	"encoding/json"
	"sync"
	"time"

	"ytgate/internal/store"
	"ytgate/internal/types"
)

const (
	// MaxChannels is the capacity bound enforced through eviction
	MaxChannels = 100
	// TTL is the age after which an entry is treated as stale on access
	TTL = 24 * time.Hour
)

// Stats is the read-only cache introspection result. ApproximateBytes is
// the serialized size of the whole cache record, for operator visibility
// only; eviction never looks at it.
type Stats struct {
	Count            int      `json:"count"`
	ApproximateBytes int      `json:"approximateBytes"`
	Order            []string `json:"order"`
}

// Cache stores per-channel result sets keyed by channel id. Every
// operation reads, mutates and writes the persisted record, so the
// in-store copy is always current.
type Cache struct {
	mu         sync.Mutex
	store      *store.Store
	isPriority func(channelID string) bool
	capacity   int
	ttl        time.Duration
	nowFunc    func() time.Time
}

// New creates a cache over the given store. isPriority supplies the
// current priority-channel set; its answer is snapshotted into each
// entry at insertion time and not re-evaluated afterwards.
func New(st *store.Store, isPriority func(string) bool) *Cache {
	if isPriority == nil {
		isPriority = func(string) bool { return false }
	}
	return &Cache{
		store:      st,
		isPriority: isPriority,
		capacity:   MaxChannels,
		ttl:        TTL,
		nowFunc:    time.Now,
	}
}

// Get returns the channel's cached result set. An entry older than the
// TTL is removed and reported as a miss; expiry is only discovered here,
// there is no background sweep.
func (c *Cache) Get(channelID string) ([]types.VideoRecord, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	record, err := c.store.LoadCacheRecord()
	if err != nil {
		return nil, false, err
	}

	entry, ok := record.Channels[channelID]
	if !ok {
		return nil, false, nil
	}

	if c.nowFunc().Sub(entry.InsertedAt) > c.ttl {
		removeEntry(record, channelID)
		if err := c.store.SaveCacheRecord(record); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	return entry.Videos, true, nil
}

// Put stores the channel's result set, replacing any previous entry.
// When the cache is at capacity the oldest non-priority entry is
// evicted first; if every resident entry is priority the insert goes
// through anyway and capacity is temporarily exceeded.
func (c *Cache) Put(channelID string, videos []types.VideoRecord, label string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	record, err := c.store.LoadCacheRecord()
	if err != nil {
		return err
	}

	priority := c.isPriority(channelID)

	// A replace does not count against capacity
	removeEntry(record, channelID)

	for len(record.Order) >= c.capacity {
		victim := ""
		for _, id := range record.Order {
			if entry, ok := record.Channels[id]; ok && !entry.Priority {
				victim = id
				break
			}
		}
		if victim == "" {
			break
		}
		removeEntry(record, victim)
	}

	record.Channels[channelID] = &store.CacheEntry{
		ChannelID:  channelID,
		Videos:     videos,
		Label:      label,
		InsertedAt: c.nowFunc(),
		Priority:   priority,
	}
	if priority {
		record.Order = append([]string{channelID}, record.Order...)
	} else {
		record.Order = append(record.Order, channelID)
	}

	return c.store.SaveCacheRecord(record)
}

// Remove deletes the channel's entry. Absent channels are a no-op.
func (c *Cache) Remove(channelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	record, err := c.store.LoadCacheRecord()
	if err != nil {
		return err
	}
	removeEntry(record, channelID)
	return c.store.SaveCacheRecord(record)
}

// Clear drops every entry
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.SaveCacheRecord(store.NewCacheRecord())
}

// Cleanup removes every expired non-priority entry in one pass.
// Maintenance operation for the admin surface; normal expiry stays lazy.
func (c *Cache) Cleanup() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	record, err := c.store.LoadCacheRecord()
	if err != nil {
		return 0, err
	}

	now := c.nowFunc()
	removed := 0
	for id, entry := range record.Channels {
		if !entry.Priority && now.Sub(entry.InsertedAt) > c.ttl {
			removeEntry(record, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, c.store.SaveCacheRecord(record)
}

// Stats returns entry count, approximate serialized size and the
// eviction order
func (c *Cache) Stats() (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	record, err := c.store.LoadCacheRecord()
	if err != nil {
		return Stats{}, err
	}

	size := 0
	if data, err := json.Marshal(record); err == nil {
		size = len(data)
	}

	return Stats{
		Count:            len(record.Channels),
		ApproximateBytes: size,
		Order:            append([]string(nil), record.Order...),
	}, nil
}

// removeEntry deletes channelID from both the entry map and the order,
// keeping them bijective
func removeEntry(record *store.CacheRecord, channelID string) {
	if _, ok := record.Channels[channelID]; !ok {
		// Still scrub the order in case of a stale id
		record.Order = filterOut(record.Order, channelID)
		return
	}
	delete(record.Channels, channelID)
	record.Order = filterOut(record.Order, channelID)
}

func filterOut(order []string, channelID string) []string {
	kept := order[:0]
	for _, id := range order {
		if id != channelID {
			kept = append(kept, id)
		}
	}
	return kept
}
