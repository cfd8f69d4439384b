// README: Concurrency tests for order state transitions (run with -race).
package order

import (
	"context"
	"errors"
	"sync"
	"testing"

	"kitchenline/internal/types"
)

// TestConcurrentPreparingVsCancelled races the two exits from pending, both issued
// against pending. Exactly one wins; the loser sees the winner's status.
func TestConcurrentPreparingVsCancelled(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			rec := &recordingNotifier{}
			svc := NewService(store, rec)
			ctx := context.Background()
			o := mustCreateOrder(t, svc, TypeDineIn)

			type outcome struct {
				to  Status
				err error
			}
			var wg sync.WaitGroup
			results := make(chan outcome, 2)
			for _, to := range []Status{StatusPreparing, StatusCancelled} {
				wg.Add(1)
				go func(to Status) {
					defer wg.Done()
					_, err := svc.Transition(ctx, TransitionCommand{OrderID: o.ID, From: StatusPending, To: to, Actor: ActorKitchen})
					results <- outcome{to: to, err: err}
				}(to)
			}
			wg.Wait()
			close(results)

			var winner Status
			success := 0
			for res := range results {
				if res.err == nil {
					success++
					winner = res.to
					continue
				}
				var te *TransitionError
				if !errors.As(res.err, &te) || !errors.Is(res.err, ErrInvalidTransition) {
					t.Fatalf("unexpected error: %v", res.err)
				}
				if te.From == string(StatusPending) {
					t.Fatalf("loser should observe the winner's status, got %s", te.From)
				}
			}
			if success != 1 {
				t.Fatalf("expected exactly one success, got %d", success)
			}

			final := assertStatus(t, svc, o.ID, winner)
			if got := len(rec.kinds()); got != 2 {
				t.Fatalf("expected 2 notifications, got %d", got)
			}
			if final.Version != 2 {
				t.Fatalf("expected version 2, got %d", final.Version)
			}
		})
	}
}

// TestUnpinnedCancelAfterPreparing shows the sequential case: without From, cancel
// from preparing is a legal second edge.
func TestUnpinnedCancelAfterPreparing(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)
	ctx := context.Background()
	o := mustCreateOrder(t, svc, TypeDineIn)

	if _, err := svc.Transition(ctx, TransitionCommand{OrderID: o.ID, To: StatusPreparing}); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if _, err := svc.Transition(ctx, TransitionCommand{OrderID: o.ID, To: StatusCancelled}); err != nil {
		t.Fatalf("cancel without From: %v", err)
	}
	assertStatus(t, svc, o.ID, StatusCancelled)
}

// TestConcurrentSameTransition sends the same edge many times; exactly one applies.
func TestConcurrentSameTransition(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			svc := NewService(store, nil)
			ctx := context.Background()
			o := mustCreateOrder(t, svc, TypePickup)

			const n = 16
			var wg sync.WaitGroup
			results := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := svc.Transition(ctx, TransitionCommand{OrderID: o.ID, To: StatusPreparing})
					results <- err
				}()
			}
			wg.Wait()
			close(results)

			success := 0
			for err := range results {
				if err == nil {
					success++
				} else if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("unexpected error: %v", err)
				}
			}
			if success != 1 {
				t.Fatalf("expected exactly 1 success, got %d", success)
			}
			assertStatus(t, svc, o.ID, StatusPreparing)
		})
	}
}

// TestNotificationsFollowCommitOrder checks that per-order notifications carry increasing versions.
func TestNotificationsFollowCommitOrder(t *testing.T) {
	rec := &recordingNotifier{}
	svc := NewService(NewMemoryStore(), rec)
	ctx := context.Background()
	o := mustCreateOrder(t, svc, TypeDelivery)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, to := range []Status{StatusPreparing, StatusReady, StatusCompleted} {
			_, _ = svc.Transition(ctx, TransitionCommand{OrderID: o.ID, To: to})
		}
	}()
	go func() {
		defer wg.Done()
		_, _ = svc.AssignDriver(ctx, AssignDriverCommand{OrderID: o.ID, DriverID: "d1"})
	}()
	wg.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i := 1; i < len(rec.orders); i++ {
		if rec.orders[i].Version <= rec.orders[i-1].Version {
			t.Fatalf("notification %d has version %d after %d", i, rec.orders[i].Version, rec.orders[i-1].Version)
		}
	}
}

// TestConcurrentAssignDriver lets two drivers grab the same delivery; one wins.
func TestConcurrentAssignDriver(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			svc := NewService(store, nil)
			ctx := context.Background()
			o := mustCreateOrder(t, svc, TypeDelivery)

			var wg sync.WaitGroup
			results := make(chan error, 2)
			for _, d := range []types.ID{"d1", "d2"} {
				wg.Add(1)
				go func(d types.ID) {
					defer wg.Done()
					_, err := svc.AssignDriver(ctx, AssignDriverCommand{OrderID: o.ID, DriverID: d})
					results <- err
				}(d)
			}
			wg.Wait()
			close(results)

			success := 0
			for err := range results {
				if err == nil {
					success++
				}
			}
			if success != 1 {
				t.Fatalf("expected exactly 1 assignment, got %d", success)
			}
		})
	}
}
