// README: Client-side order cache keyed by id with version-aware upserts.
package reconcile

import (
	"sort"
	"sync"

	"kitchenline/internal/modules/order"
	"kitchenline/internal/types"
)

type ChangeKind string

const (
	ChangeNew     ChangeKind = "new"
	ChangeStatus  ChangeKind = "status"
	ChangeUpdate  ChangeKind = "update"
	ChangeRemoved ChangeKind = "removed"
)

type Change struct {
	Kind  ChangeKind
	Order *order.Order
}

type Cache struct {
	mu     sync.RWMutex
	orders map[types.ID]*order.Order
}

func NewCache() *Cache {
	return &Cache{orders: make(map[types.ID]*order.Order)}
}

// Upsert replaces the entry for o.ID unless the cached copy is newer.
// Re-applying the same version is a no-op, so duplicate deliveries are harmless.
func (c *Cache) Upsert(o *order.Order) (Change, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upsertLocked(o)
}

func (c *Cache) upsertLocked(o *order.Order) (Change, bool) {
	cur, ok := c.orders[o.ID]
	if ok && cur.Version >= o.Version {
		return Change{}, false
	}
	c.orders[o.ID] = o.Clone()
	switch {
	case !ok:
		return Change{Kind: ChangeNew, Order: o}, true
	case cur.Status != o.Status || cur.DeliveryStatus != o.DeliveryStatus:
		return Change{Kind: ChangeStatus, Order: o}, true
	default:
		return Change{Kind: ChangeUpdate, Order: o}, true
	}
}

func (c *Cache) Remove(id types.ID) (Change, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(id)
}

func (c *Cache) removeLocked(id types.ID) (Change, bool) {
	cur, ok := c.orders[id]
	if !ok {
		return Change{}, false
	}
	delete(c.orders, id)
	return Change{Kind: ChangeRemoved, Order: cur}, true
}

// Merge applies a poll result. With MergePrune, ids absent from list are removed.
func (c *Cache) Merge(list []*order.Order, mode MergeMode) []Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	var changes []Change
	seen := make(map[types.ID]struct{}, len(list))
	for _, o := range list {
		seen[o.ID] = struct{}{}
		if ch, ok := c.upsertLocked(o); ok {
			changes = append(changes, ch)
		}
	}
	if mode == MergePrune {
		for id := range c.orders {
			if _, ok := seen[id]; ok {
				continue
			}
			if ch, ok := c.removeLocked(id); ok {
				changes = append(changes, ch)
			}
		}
	}
	return changes
}

func (c *Cache) Get(id types.ID) (*order.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.orders[id]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// Snapshot returns copies of every cached order, oldest first.
func (c *Cache) Snapshot() []*order.Order {
	c.mu.RLock()
	out := make([]*order.Order, 0, len(c.orders))
	for _, o := range c.orders {
		out = append(out, o.Clone())
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.orders)
}
