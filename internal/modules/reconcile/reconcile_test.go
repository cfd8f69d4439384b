package reconcile

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"kitchenline/internal/logging"
	"kitchenline/internal/modules/order"
	"kitchenline/internal/modules/realtime"
	"kitchenline/internal/types"
)

func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

type fakeLister struct {
	mu     sync.Mutex
	orders []*order.Order
	err    error
	calls  int
	filter order.Filter
}

func (f *fakeLister) List(_ context.Context, flt order.Filter) ([]*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.filter = flt
	if f.err != nil {
		return nil, f.err
	}
	var out []*order.Order
	for _, o := range f.orders {
		if flt.Match(o) {
			out = append(out, o.Clone())
		}
	}
	return out, nil
}

func (f *fakeLister) set(orders ...*order.Order) {
	f.mu.Lock()
	f.orders = orders
	f.mu.Unlock()
}

type changeLog struct {
	mu      sync.Mutex
	changes []Change
}

func (c *changeLog) CacheChanged(ch []Change) {
	c.mu.Lock()
	c.changes = append(c.changes, ch...)
	c.mu.Unlock()
}

func (c *changeLog) kinds() []ChangeKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChangeKind, len(c.changes))
	for i, ch := range c.changes {
		out[i] = ch.Kind
	}
	return out
}

func mk(id string, st order.Status, version int) *order.Order {
	return &order.Order{ID: types.ID(id), Status: st, Version: version, OrderType: order.TypeDineIn, CustomerName: "alice", CreatedAt: time.Unix(int64(len(id)), 0)}
}

func frame(t *testing.T, typ string, payload any) []byte {
	t.Helper()
	b, err := json.Marshal(realtime.Message{Type: typ, Payload: payload})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestCacheUpsertIsIdempotent(t *testing.T) {
	c := NewCache()
	if ch, ok := c.Upsert(mk("a", order.StatusPending, 1)); !ok || ch.Kind != ChangeNew {
		t.Fatalf("first upsert: %v %v", ch, ok)
	}
	if _, ok := c.Upsert(mk("a", order.StatusPending, 1)); ok {
		t.Fatalf("same version twice must be a no-op")
	}
	if ch, ok := c.Upsert(mk("a", order.StatusPreparing, 2)); !ok || ch.Kind != ChangeStatus {
		t.Fatalf("status change: %v %v", ch, ok)
	}
	if _, ok := c.Upsert(mk("a", order.StatusPending, 1)); ok {
		t.Fatalf("older version must not overwrite newer")
	}
	if o, _ := c.Get("a"); o.Status != order.StatusPreparing {
		t.Fatalf("cache regressed to %s", o.Status)
	}
}

func TestMergeModes(t *testing.T) {
	c := NewCache()
	c.Upsert(mk("a", order.StatusPending, 1))
	c.Upsert(mk("b", order.StatusPending, 1))

	changes := c.Merge([]*order.Order{mk("a", order.StatusReady, 3)}, MergeReplace)
	if len(changes) != 1 || c.Len() != 2 {
		t.Fatalf("replace: changes=%v len=%d", changes, c.Len())
	}
	changes = c.Merge([]*order.Order{mk("a", order.StatusReady, 3)}, MergePrune)
	if len(changes) != 1 || changes[0].Kind != ChangeRemoved || c.Len() != 1 {
		t.Fatalf("prune: changes=%v len=%d", changes, c.Len())
	}
}

func TestHandleFrame(t *testing.T) {
	log := &changeLog{}
	r := NewReconciler(KitchenPolicy(time.Second), &fakeLister{}, nil, log)

	if err := r.HandleFrame(frame(t, realtime.EventNewOrder, mk("o1", order.StatusPending, 1))); err != nil {
		t.Fatalf("new-order: %v", err)
	}
	// duplicate delivery
	_ = r.HandleFrame(frame(t, realtime.EventNewOrder, mk("o1", order.StatusPending, 1)))
	_ = r.HandleFrame(frame(t, realtime.EventOrderStatusUpdated, mk("o1", order.StatusPreparing, 2)))
	// a completed order leaves the kitchen cache
	_ = r.HandleFrame(frame(t, realtime.EventOrderStatusUpdated, mk("o1", order.StatusCompleted, 4)))
	_ = r.HandleFrame(frame(t, realtime.EventNewOrder, mk("o2", order.StatusPending, 1)))
	_ = r.HandleFrame(frame(t, realtime.EventOrderDeleted, "o2"))
	_ = r.HandleFrame(frame(t, realtime.EventMenuUpdated, map[string]string{"v": "2"}))

	want := []ChangeKind{ChangeNew, ChangeStatus, ChangeRemoved, ChangeNew, ChangeRemoved}
	got := log.kinds()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if r.Cache().Len() != 0 {
		t.Fatalf("cache should be empty")
	}
	if err := r.HandleFrame([]byte("not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}

// TestPollRecoversMissedEvents simulates a disconnect window: nothing arrives on the
// socket, but the next poll brings the cache back in line.
func TestPollRecoversMissedEvents(t *testing.T) {
	lister := &fakeLister{}
	r := NewReconciler(KitchenPolicy(time.Second), lister, nil, nil)
	ctx := context.Background()

	lister.set(mk("a", order.StatusPending, 1), mk("b", order.StatusPending, 1))
	if err := r.Poll(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if r.Cache().Len() != 2 {
		t.Fatalf("expected 2 cached orders")
	}

	lister.set(mk("a", order.StatusReady, 3), mk("b", order.StatusCompleted, 4))
	if err := r.Poll(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}
	snap := r.Cache().Snapshot()
	if len(snap) != 1 || snap[0].ID != "a" || snap[0].Status != order.StatusReady {
		t.Fatalf("unexpected cache %v", snap)
	}
	if len(lister.filter.Statuses) != 3 {
		t.Fatalf("kitchen should poll active statuses, got %v", lister.filter.Statuses)
	}
}

// TestPollDropsMissedDeletes covers an order-deleted frame lost while disconnected.
func TestPollDropsMissedDeletes(t *testing.T) {
	ctx := context.Background()
	for _, p := range []Policy{AdminPolicy(time.Second), CustomerPolicy("alice", time.Second)} {
		t.Run(string(p.Role), func(t *testing.T) {
			lister := &fakeLister{}
			r := NewReconciler(p, lister, nil, nil)

			lister.set(mk("a", order.StatusPending, 1), mk("bb", order.StatusCompleted, 4))
			if err := r.Poll(ctx); err != nil {
				t.Fatalf("poll: %v", err)
			}
			if r.Cache().Len() != 2 {
				t.Fatalf("expected 2 cached orders, got %d", r.Cache().Len())
			}

			lister.set(mk("a", order.StatusPending, 1))
			if err := r.Poll(ctx); err != nil {
				t.Fatalf("poll: %v", err)
			}
			if _, ok := r.Cache().Get("bb"); ok || r.Cache().Len() != 1 {
				t.Fatalf("deleted order still cached; len=%d", r.Cache().Len())
			}
		})
	}
}

func TestRunPollsUntilCancelled(t *testing.T) {
	lister := &fakeLister{err: errors.New("boom")}
	r := NewReconciler(AdminPolicy(10*time.Millisecond), lister, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()

	if err := r.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	lister.mu.Lock()
	defer lister.mu.Unlock()
	if lister.calls < 2 {
		t.Fatalf("expected repeated polls despite errors, got %d", lister.calls)
	}
}

func TestPolicies(t *testing.T) {
	cases := []struct {
		p        Policy
		join     string
		interval time.Duration
		mode     MergeMode
	}{
		{KitchenPolicy(0), "join-kitchen", 10 * time.Second, MergePrune},
		{AdminPolicy(0), "join-admin", 15 * time.Second, MergePrune},
		{CustomerPolicy("alice", 0), "join-customer:alice", 10 * time.Second, MergePrune},
		{DriverPolicy("d1", 0), "join-driver:d1", 15 * time.Second, MergePrune},
	}
	for _, tc := range cases {
		if tc.p.JoinMessage() != tc.join || tc.p.Interval != tc.interval || tc.p.Mode != tc.mode {
			t.Errorf("%s: join=%s interval=%s mode=%d", tc.p.Role, tc.p.JoinMessage(), tc.p.Interval, tc.p.Mode)
		}
	}
	if !CustomerPolicy("alice", 0).Matches(mk("x", order.StatusCompleted, 1)) {
		t.Errorf("customer keeps finished orders")
	}
	if CustomerPolicy("bob", 0).Matches(mk("x", order.StatusPending, 1)) {
		t.Errorf("customer filter leaked another customer's order")
	}
}
