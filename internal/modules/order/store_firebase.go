// README: Order store backed by Firebase Realtime Database under /orders/{id}.
package order

import (
	"context"
	"errors"
	"fmt"

	"firebase.google.com/go/v4/db"

	"kitchenline/internal/types"
)

const ordersNode = "orders"

// errAbort stops a transaction without writing; the real outcome travels in a closure variable.
var errAbort = errors.New("abort transaction")

// FirebaseStore keeps one JSON document per order. Queries on status use
// OrderByChild and need ".indexOn": ["status"] in the database rules.
// Order number uniqueness is not enforced here.
type FirebaseStore struct {
	client *db.Client
}

func NewFirebaseStore(client *db.Client) *FirebaseStore {
	return &FirebaseStore{client: client}
}

func (s *FirebaseStore) ref(id types.ID) *db.Ref {
	return s.client.NewRef(ordersNode + "/" + string(id))
}

func (s *FirebaseStore) Create(ctx context.Context, o *Order) error {
	var exists bool
	err := s.ref(o.ID).Transaction(ctx, func(tn db.TransactionNode) (interface{}, error) {
		var cur Order
		if err := tn.Unmarshal(&cur); err != nil {
			return nil, err
		}
		if cur.ID != "" {
			exists = true
			return nil, errAbort
		}
		return o, nil
	})
	if exists {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("firebase create order %s: %w", o.ID, err)
	}
	return nil
}

func (s *FirebaseStore) Get(ctx context.Context, id types.ID) (*Order, error) {
	var o Order
	if err := s.ref(id).Get(ctx, &o); err != nil {
		return nil, fmt.Errorf("firebase get order %s: %w", id, err)
	}
	if o.ID == "" {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (s *FirebaseStore) List(ctx context.Context, f Filter) ([]*Order, error) {
	var data map[string]*Order
	ref := s.client.NewRef(ordersNode)
	var err error
	if len(f.Statuses) == 1 {
		err = ref.OrderByChild("status").EqualTo(string(f.Statuses[0])).Get(ctx, &data)
	} else {
		err = ref.Get(ctx, &data)
	}
	if err != nil {
		return nil, fmt.Errorf("firebase list orders: %w", err)
	}
	out := make([]*Order, 0, len(data))
	for _, o := range data {
		if o != nil && f.Match(o) {
			out = append(out, o)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *FirebaseStore) Update(ctx context.Context, o *Order, expectVersion int) error {
	var outcome error
	err := s.ref(o.ID).Transaction(ctx, func(tn db.TransactionNode) (interface{}, error) {
		var cur Order
		if err := tn.Unmarshal(&cur); err != nil {
			return nil, err
		}
		switch {
		case cur.ID == "":
			outcome = ErrNotFound
			return nil, errAbort
		case cur.Version != expectVersion:
			outcome = ErrConflict
			return nil, errAbort
		}
		outcome = nil
		return o, nil
	})
	if outcome != nil {
		return outcome
	}
	if err != nil {
		return fmt.Errorf("firebase update order %s: %w", o.ID, err)
	}
	return nil
}

func (s *FirebaseStore) Delete(ctx context.Context, id types.ID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.ref(id).Delete(ctx); err != nil {
		return fmt.Errorf("firebase delete order %s: %w", id, err)
	}
	return nil
}
