// README: Order aggregate, status and delivery sub-status definitions.
package order

import (
	"time"

	"kitchenline/internal/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPreparing, StatusReady, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ActiveStatuses are the statuses shown on the kitchen queue.
var ActiveStatuses = []Status{StatusPending, StatusPreparing, StatusReady}

type Type string

const (
	TypeDineIn   Type = "dine-in"
	TypePickup   Type = "pickup"
	TypeDelivery Type = "delivery"
	TypePreorder Type = "preorder"
)

func (t Type) Valid() bool {
	switch t {
	case TypeDineIn, TypePickup, TypeDelivery, TypePreorder:
		return true
	}
	return false
}

// DeliveryStatus advances independently of Status and only for delivery orders.
type DeliveryStatus string

const (
	DeliveryNone      DeliveryStatus = "none"
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryAssigned  DeliveryStatus = "assigned"
	DeliveryPickedUp  DeliveryStatus = "picked-up"
	DeliveryOnTheWay  DeliveryStatus = "on-the-way"
	DeliveryDelivered DeliveryStatus = "delivered"
)

// InTransit reports whether a driver currently holds the delivery.
func (d DeliveryStatus) InTransit() bool {
	return d == DeliveryAssigned || d == DeliveryPickedUp || d == DeliveryOnTheWay
}

type Actor string

const (
	ActorKitchen Actor = "kitchen"
	ActorAdmin   Actor = "admin"
	ActorDriver  Actor = "driver"
	ActorSystem  Actor = "system"
)

func (a Actor) Valid() bool {
	switch a {
	case ActorKitchen, ActorAdmin, ActorDriver, ActorSystem:
		return true
	}
	return false
}

type Item struct {
	Name                string `json:"name"`
	Quantity            int    `json:"quantity"`
	SpecialInstructions string `json:"specialInstructions,omitempty"`
}

// Order is the full snapshot broadcast to clients and returned by reads.
type Order struct {
	ID           types.ID `json:"id"`
	OrderNumber  string   `json:"orderNumber"`
	OrderType    Type     `json:"orderType"`
	Status       Status   `json:"status"`
	CustomerName string   `json:"customerName,omitempty"`
	Items        []Item   `json:"items"`

	PickupDate   string `json:"pickupDate,omitempty"`
	PickupTime   string `json:"pickupTime,omitempty"`
	DeliveryDate string `json:"deliveryDate,omitempty"`
	DeliveryTime string `json:"deliveryTime,omitempty"`
	PreorderDate string `json:"preorderDate,omitempty"`
	PreorderTime string `json:"preorderTime,omitempty"`

	DeliveryStatus DeliveryStatus `json:"deliveryStatus"`
	DriverID       *types.ID      `json:"driverId,omitempty"`
	DeliveryLat    *float64       `json:"deliveryLat,omitempty"`
	DeliveryLng    *float64       `json:"deliveryLng,omitempty"`

	Total       types.Money `json:"total"`
	DeliveryFee types.Money `json:"deliveryFee"`

	Version   int       `json:"version"`
	LastActor Actor     `json:"lastActor,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	PreparingAt *time.Time `json:"preparingAt,omitempty"`
	ReadyAt     *time.Time `json:"readyAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	AssignedAt  *time.Time `json:"assignedAt,omitempty"`
	PickedUpAt  *time.Time `json:"pickedUpAt,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
}

// Slot returns the promised slot matching the order type, nil when the order has none.
func (o *Order) Slot() *types.Slot {
	var s types.Slot
	switch o.OrderType {
	case TypePickup:
		s = types.Slot{Date: o.PickupDate, Time: o.PickupTime}
	case TypeDelivery:
		s = types.Slot{Date: o.DeliveryDate, Time: o.DeliveryTime}
	case TypePreorder:
		s = types.Slot{Date: o.PreorderDate, Time: o.PreorderTime}
	default:
		return nil
	}
	if s.IsZero() {
		return nil
	}
	return &s
}

// AssignedTo reports whether driverID holds this delivery right now.
func (o *Order) AssignedTo(driverID types.ID) bool {
	return o.OrderType == TypeDelivery &&
		o.DriverID != nil && *o.DriverID == driverID &&
		o.DeliveryStatus.InTransit()
}

// Clone returns a deep copy so callers never share slices or pointers with a store.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	c.DriverID = clonePtr(o.DriverID)
	c.DeliveryLat = clonePtr(o.DeliveryLat)
	c.DeliveryLng = clonePtr(o.DeliveryLng)
	c.PreparingAt = clonePtr(o.PreparingAt)
	c.ReadyAt = clonePtr(o.ReadyAt)
	c.CompletedAt = clonePtr(o.CompletedAt)
	c.CancelledAt = clonePtr(o.CancelledAt)
	c.AssignedAt = clonePtr(o.AssignedAt)
	c.PickedUpAt = clonePtr(o.PickedUpAt)
	c.DeliveredAt = clonePtr(o.DeliveredAt)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// AllowedTransitions represents the order state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusPending:   {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusReady, StatusCancelled},
	StatusReady:     {StatusCompleted},
}

// AllowedDeliveryTransitions is the forward-only delivery chain.
var AllowedDeliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryPending:  {DeliveryAssigned},
	DeliveryAssigned: {DeliveryPickedUp},
	DeliveryPickedUp: {DeliveryOnTheWay},
	DeliveryOnTheWay: {DeliveryDelivered},
}

func CanTransition(from, to Status) bool {
	return contains(AllowedTransitions[from], to)
}

func CanAdvanceDelivery(from, to DeliveryStatus) bool {
	return contains(AllowedDeliveryTransitions[from], to)
}

func contains[T comparable](list []T, v T) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (o *Order) applyStatus(to Status, at time.Time, actor Actor) {
	o.Status = to
	o.LastActor = actor
	t := at
	switch to {
	case StatusPreparing:
		o.PreparingAt = &t
	case StatusReady:
		o.ReadyAt = &t
	case StatusCompleted:
		o.CompletedAt = &t
	case StatusCancelled:
		o.CancelledAt = &t
	}
}

func (o *Order) applyDelivery(to DeliveryStatus, at time.Time, actor Actor) {
	o.DeliveryStatus = to
	o.LastActor = actor
	t := at
	switch to {
	case DeliveryAssigned:
		o.AssignedAt = &t
	case DeliveryPickedUp:
		o.PickedUpAt = &t
	case DeliveryDelivered:
		o.DeliveredAt = &t
	}
}
