// README: Order service implements the two state machines and notifies subscribers of every applied change.
package order

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"kitchenline/internal/logging"
	"kitchenline/internal/metrics"
	"kitchenline/internal/types"
)

// Notifier receives committed snapshots. Calls happen while the order's lock
// is held, so per-order notifications arrive in commit order.
type Notifier interface {
	OrderCreated(ctx context.Context, o *Order)
	OrderUpdated(ctx context.Context, o *Order)
	OrderDeleted(ctx context.Context, o *Order)
}

type nopNotifier struct{}

func (nopNotifier) OrderCreated(context.Context, *Order) {}
func (nopNotifier) OrderUpdated(context.Context, *Order) {}
func (nopNotifier) OrderDeleted(context.Context, *Order) {}

// Notifiers fans a change out to several subscribers in order.
type Notifiers []Notifier

func (ns Notifiers) OrderCreated(ctx context.Context, o *Order) {
	for _, n := range ns {
		n.OrderCreated(ctx, o)
	}
}

func (ns Notifiers) OrderUpdated(ctx context.Context, o *Order) {
	for _, n := range ns {
		n.OrderUpdated(ctx, o)
	}
}

func (ns Notifiers) OrderDeleted(ctx context.Context, o *Order) {
	for _, n := range ns {
		n.OrderDeleted(ctx, o)
	}
}

const maxConflictRetries = 3

type Service struct {
	store    Store
	notifier Notifier
	locks    *keyLocks
	now      func() time.Time
}

func NewService(store Store, notifier Notifier) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{store: store, notifier: notifier, locks: newKeyLocks(), now: time.Now}
}

type CreateCommand struct {
	OrderNumber  string
	OrderType    Type
	CustomerName string
	Items        []Item
	Pickup       types.Slot
	Delivery     types.Slot
	Preorder     types.Slot
	DeliveryLat  *float64
	DeliveryLng  *float64
	Total        types.Money
	DeliveryFee  types.Money
}

type TransitionCommand struct {
	OrderID types.ID
	// From, when set, pins the status the request was issued against.
	From  Status
	To    Status
	Actor Actor
}

type AssignDriverCommand struct {
	OrderID  types.ID
	DriverID types.ID
	Actor    Actor
}

type AdvanceDeliveryCommand struct {
	OrderID  types.ID
	DriverID types.ID
	To       DeliveryStatus
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
	if err := validateCreate(cmd); err != nil {
		return nil, err
	}
	now := s.now()
	o := &Order{
		ID:             types.NewID(),
		OrderNumber:    cmd.OrderNumber,
		OrderType:      cmd.OrderType,
		Status:         StatusPending,
		CustomerName:   cmd.CustomerName,
		Items:          append([]Item(nil), cmd.Items...),
		DeliveryStatus: DeliveryNone,
		DeliveryLat:    cmd.DeliveryLat,
		DeliveryLng:    cmd.DeliveryLng,
		Total:          cmd.Total,
		DeliveryFee:    cmd.DeliveryFee,
		Version:        1,
		LastActor:      ActorSystem,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if o.OrderNumber == "" {
		o.OrderNumber = newOrderNumber(now)
	}
	switch cmd.OrderType {
	case TypePickup:
		o.PickupDate, o.PickupTime = cmd.Pickup.Date, cmd.Pickup.Time
	case TypeDelivery:
		o.DeliveryDate, o.DeliveryTime = cmd.Delivery.Date, cmd.Delivery.Time
		o.DeliveryStatus = DeliveryPending
	case TypePreorder:
		o.PreorderDate, o.PreorderTime = cmd.Preorder.Date, cmd.Preorder.Time
	}

	if err := s.store.Create(ctx, o); err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().
		Str("order_id", o.ID.String()).
		Str("order_number", o.OrderNumber).
		Str("order_type", string(o.OrderType)).
		Stringer("total", o.Total).
		Msg("order created")
	s.notifier.OrderCreated(ctx, o.Clone())
	return o, nil
}

func validateCreate(cmd CreateCommand) error {
	if !cmd.OrderType.Valid() {
		return badRequest("unknown orderType")
	}
	if len(cmd.Items) == 0 {
		return badRequest("items required")
	}
	for _, it := range cmd.Items {
		if strings.TrimSpace(it.Name) == "" || it.Quantity <= 0 {
			return badRequest("item needs a name and a positive quantity")
		}
	}
	if cmd.Total.IsNegative() || cmd.DeliveryFee.IsNegative() {
		return badRequest("amounts must not be negative")
	}
	if (cmd.DeliveryLat == nil) != (cmd.DeliveryLng == nil) {
		return badRequest("deliveryLat and deliveryLng go together")
	}
	if cmd.DeliveryLat != nil && !(types.Point{Lat: *cmd.DeliveryLat, Lng: *cmd.DeliveryLng}).Valid() {
		return badRequest("delivery coordinates out of range")
	}
	var slot types.Slot
	switch cmd.OrderType {
	case TypePickup:
		slot = cmd.Pickup
	case TypeDelivery:
		slot = cmd.Delivery
	case TypePreorder:
		slot = cmd.Preorder
	}
	if cmd.OrderType == TypeDineIn {
		return nil
	}
	if slot.IsZero() {
		return badRequest(string(cmd.OrderType) + " orders need a date and time")
	}
	if _, err := slot.At(time.UTC); err != nil {
		return badRequest(err.Error())
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Order, error) {
	return s.store.List(ctx, f)
}

// Transition moves the main status along AllowedTransitions.
func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) (*Order, error) {
	if cmd.Actor == "" {
		cmd.Actor = ActorSystem
	}
	return s.mutate(ctx, cmd.OrderID, "status", string(cmd.To), func(o *Order, now time.Time) error {
		if cmd.From != "" && cmd.From != o.Status {
			return statusError(o.Status, cmd.To)
		}
		if !CanTransition(o.Status, cmd.To) {
			return statusError(o.Status, cmd.To)
		}
		o.applyStatus(cmd.To, now, cmd.Actor)
		return nil
	})
}

// AssignDriver binds a driver to a pending delivery.
func (s *Service) AssignDriver(ctx context.Context, cmd AssignDriverCommand) (*Order, error) {
	if cmd.DriverID == "" {
		return nil, badRequest("driverId required")
	}
	if cmd.Actor == "" {
		cmd.Actor = ActorAdmin
	}
	return s.mutate(ctx, cmd.OrderID, "delivery", string(DeliveryAssigned), func(o *Order, now time.Time) error {
		if o.OrderType != TypeDelivery || o.Status == StatusCancelled {
			return deliveryError(o.DeliveryStatus, DeliveryAssigned)
		}
		if !CanAdvanceDelivery(o.DeliveryStatus, DeliveryAssigned) {
			return deliveryError(o.DeliveryStatus, DeliveryAssigned)
		}
		id := cmd.DriverID
		o.DriverID = &id
		o.applyDelivery(DeliveryAssigned, now, cmd.Actor)
		return nil
	})
}

// AdvanceDelivery moves an assigned delivery forward on behalf of its driver.
func (s *Service) AdvanceDelivery(ctx context.Context, cmd AdvanceDeliveryCommand) (*Order, error) {
	if cmd.DriverID == "" {
		return nil, badRequest("driverId required")
	}
	return s.mutate(ctx, cmd.OrderID, "delivery", string(cmd.To), func(o *Order, now time.Time) error {
		if o.DriverID == nil || *o.DriverID != cmd.DriverID {
			return ErrNotAssigned
		}
		if cmd.To == DeliveryAssigned || !CanAdvanceDelivery(o.DeliveryStatus, cmd.To) {
			return deliveryError(o.DeliveryStatus, cmd.To)
		}
		o.applyDelivery(cmd.To, now, ActorDriver)
		return nil
	})
}

func (s *Service) Delete(ctx context.Context, id types.ID) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	o, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	logging.Ctx(ctx).Info().Str("order_id", id.String()).Msg("order deleted")
	s.notifier.OrderDeleted(ctx, o)
	return nil
}

// mutate runs apply against a fresh read under the per-order lock and stores the
// result with a version check, re-reading when another writer got there first.
func (s *Service) mutate(ctx context.Context, id types.ID, machine, to string, apply func(*Order, time.Time) error) (*Order, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		o, err := s.store.Get(ctx, id)
		if err != nil {
			metrics.OrderTransitions.WithLabelValues(machine, to, resultLabel(err)).Inc()
			return nil, err
		}
		prev := o.Version
		from := string(o.Status)
		if machine == "delivery" {
			from = string(o.DeliveryStatus)
		}
		now := s.now()
		if err := apply(o, now); err != nil {
			metrics.OrderTransitions.WithLabelValues(machine, to, resultLabel(err)).Inc()
			logging.Ctx(ctx).Debug().Err(err).
				Str("order_id", id.String()).
				Str("machine", machine).
				Str("from", from).
				Str("to", to).
				Msg("transition rejected")
			return nil, err
		}
		o.Version = prev + 1
		o.UpdatedAt = now

		err = s.store.Update(ctx, o, prev)
		if errors.Is(err, ErrConflict) {
			metrics.StoreConflictRetries.Inc()
			logging.Ctx(ctx).Debug().Str("order_id", id.String()).Int("attempt", attempt).Msg("version conflict, re-reading")
			continue
		}
		if err != nil {
			metrics.OrderTransitions.WithLabelValues(machine, to, "error").Inc()
			return nil, err
		}
		metrics.OrderTransitions.WithLabelValues(machine, to, "applied").Inc()
		logging.Ctx(ctx).Info().
			Str("order_id", id.String()).
			Str("machine", machine).
			Str("from", from).
			Str("to", to).
			Str("actor", string(o.LastActor)).
			Int("version", o.Version).
			Msg("order transitioned")
		s.notifier.OrderUpdated(ctx, o.Clone())
		return o, nil
	}
	metrics.OrderTransitions.WithLabelValues(machine, to, "error").Inc()
	return nil, ErrConflict
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidTransition):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotAssigned):
		return "not_assigned"
	default:
		return "error"
	}
}

func newOrderNumber(now time.Time) string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return "ORD-" + now.Format("20060102") + "-" + strings.ToUpper(hex.EncodeToString(b))
}
