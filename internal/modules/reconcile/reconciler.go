// README: Reconciler merges hub events into the cache and polls as the correctness backstop.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"kitchenline/internal/logging"
	"kitchenline/internal/modules/order"
	"kitchenline/internal/modules/realtime"
	"kitchenline/internal/types"
)

// Lister is the read side of the order API.
type Lister interface {
	List(ctx context.Context, f order.Filter) ([]*order.Order, error)
}

// Notifier is invoked after the cache changed, outside any lock.
type Notifier interface {
	CacheChanged(changes []Change)
}

type NotifierFunc func(changes []Change)

func (f NotifierFunc) CacheChanged(changes []Change) { f(changes) }

type Reconciler struct {
	policy   Policy
	lister   Lister
	cache    *Cache
	notifier Notifier
}

func NewReconciler(policy Policy, lister Lister, cache *Cache, notifier Notifier) *Reconciler {
	if cache == nil {
		cache = NewCache()
	}
	return &Reconciler{policy: policy, lister: lister, cache: cache, notifier: notifier}
}

func (r *Reconciler) Cache() *Cache  { return r.cache }
func (r *Reconciler) Policy() Policy { return r.policy }

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// HandleFrame applies one hub frame. Frames that are not order events are ignored.
func (r *Reconciler) HandleFrame(frame []byte) error {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	switch env.Type {
	case realtime.EventNewOrder, realtime.EventOrderStatusUpdated:
		var o order.Order
		if err := json.Unmarshal(env.Payload, &o); err != nil {
			return fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
		r.Apply(&o)
	case realtime.EventOrderDeleted:
		var id types.ID
		if err := json.Unmarshal(env.Payload, &id); err != nil {
			return fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
		r.Remove(id)
	}
	return nil
}

// Apply upserts o, or drops it when it no longer belongs to this role (a completed order on the kitchen screen).
func (r *Reconciler) Apply(o *order.Order) {
	var (
		ch Change
		ok bool
	)
	if r.policy.Matches(o) {
		ch, ok = r.cache.Upsert(o)
	} else {
		ch, ok = r.cache.Remove(o.ID)
	}
	if ok {
		r.notify([]Change{ch})
	}
}

func (r *Reconciler) Remove(id types.ID) {
	if ch, ok := r.cache.Remove(id); ok {
		r.notify([]Change{ch})
	}
}

// Poll lists the role's orders once and merges them.
func (r *Reconciler) Poll(ctx context.Context) error {
	list, err := r.lister.List(ctx, r.policy.Filter)
	if err != nil {
		return err
	}
	if changes := r.cache.Merge(list, r.policy.Mode); len(changes) > 0 {
		r.notify(changes)
	}
	return nil
}

// Run polls immediately and then every policy interval until ctx ends.
// Poll failures are logged and retried on the next tick.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.policy.Interval)
	defer ticker.Stop()
	for {
		if err := r.Poll(ctx); err != nil && ctx.Err() == nil {
			logging.Warn().Err(err).Str("role", string(r.policy.Role)).Msg("reconcile poll failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Reconciler) notify(changes []Change) {
	if r.notifier != nil {
		r.notifier.CacheChanged(changes)
	}
}
