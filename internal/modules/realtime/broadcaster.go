// README: Broadcaster routes order and location changes to the rooms that should see them.
package realtime

import (
	"context"

	"kitchenline/internal/logging"
	"kitchenline/internal/modules/location"
	"kitchenline/internal/modules/order"
)

// Broadcaster implements order.Notifier and location.Publisher on top of a Hub.
type Broadcaster struct {
	hub *Hub
}

func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// OrderRooms lists the rooms for an order event: kitchen and admin always,
// the customer room when the order names a customer, the driver room once assigned.
func OrderRooms(o *order.Order) []Room {
	rooms := []Room{RoomKitchen, RoomAdmin}
	if o.CustomerName != "" {
		rooms = append(rooms, CustomerRoom(o.CustomerName))
	}
	if o.DriverID != nil && *o.DriverID != "" {
		rooms = append(rooms, DriverRoom(o.DriverID.String()))
	}
	return rooms
}

func (b *Broadcaster) OrderCreated(ctx context.Context, o *order.Order) {
	b.publish(ctx, EventNewOrder, o, OrderRooms(o))
}

func (b *Broadcaster) OrderUpdated(ctx context.Context, o *order.Order) {
	b.publish(ctx, EventOrderStatusUpdated, o, OrderRooms(o))
}

func (b *Broadcaster) OrderDeleted(ctx context.Context, o *order.Order) {
	b.publish(ctx, EventOrderDeleted, o.ID, OrderRooms(o))
}

func (b *Broadcaster) DriverLocationUpdated(ctx context.Context, ev location.Event) {
	rooms := []Room{RoomAdmin}
	if ev.CustomerName != "" {
		rooms = append(rooms, CustomerRoom(ev.CustomerName))
	}
	b.publish(ctx, EventDriverLocationUpdated, ev, rooms)
}

// MenuUpdated tells every connected client to refresh its menu.
func (b *Broadcaster) MenuUpdated(ctx context.Context, payload any) (int, error) {
	n, err := b.hub.Broadcast(EventMenuUpdated, payload)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("menu-updated rejected")
	}
	return n, err
}

func (b *Broadcaster) publish(ctx context.Context, eventType string, payload any, rooms []Room) {
	n, err := b.hub.Publish(eventType, payload, rooms...)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("type", eventType).Msg("event rejected before fan-out")
		return
	}
	logging.Ctx(ctx).Debug().Str("type", eventType).Int("delivered", n).Msg("event published")
}
