// README: Per-role reconciliation policy: which orders to poll, how often, how to merge.
package reconcile

import (
	"time"

	"kitchenline/internal/modules/order"
	"kitchenline/internal/modules/realtime"
	"kitchenline/internal/types"
)

type Role string

const (
	RoleKitchen  Role = "kitchen"
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
	RoleDriver   Role = "driver"
)

type MergeMode int

const (
	// MergeReplace replaces cached orders by id and keeps everything else.
	// Only safe when the poll returns a subset of the role's view.
	MergeReplace MergeMode = iota
	// MergePrune also drops cached orders the poll no longer returns.
	MergePrune
)

type Policy struct {
	Role     Role
	Room     realtime.Room
	Interval time.Duration
	Filter   order.Filter
	Mode     MergeMode
}

// Matches reports whether an order belongs in this role's cache.
func (p Policy) Matches(o *order.Order) bool {
	return p.Filter.Match(o)
}

// JoinMessage is the first frame a client of this role sends after connecting.
func (p Policy) JoinMessage() string {
	return "join-" + string(p.Room)
}

func KitchenPolicy(interval time.Duration) Policy {
	return Policy{
		Role:     RoleKitchen,
		Room:     realtime.RoomKitchen,
		Interval: orDefault(interval, 10*time.Second),
		Filter:   order.Filter{Statuses: order.ActiveStatuses},
		Mode:     MergePrune,
	}
}

func AdminPolicy(interval time.Duration) Policy {
	return Policy{
		Role:     RoleAdmin,
		Room:     realtime.RoomAdmin,
		Interval: orDefault(interval, 15*time.Second),
		Mode:     MergePrune,
	}
}

func CustomerPolicy(name string, interval time.Duration) Policy {
	return Policy{
		Role:     RoleCustomer,
		Room:     realtime.CustomerRoom(name),
		Interval: orDefault(interval, 10*time.Second),
		Filter:   order.Filter{CustomerName: name},
		Mode:     MergePrune,
	}
}

func DriverPolicy(driverID types.ID, interval time.Duration) Policy {
	return Policy{
		Role:     RoleDriver,
		Room:     realtime.DriverRoom(driverID.String()),
		Interval: orDefault(interval, 15*time.Second),
		Filter:   order.Filter{DriverID: driverID},
		Mode:     MergePrune,
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
