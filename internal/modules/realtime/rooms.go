// README: Room keys and parsing of client join/leave messages.
package realtime

import (
	"errors"
	"strings"
)

var (
	ErrInvalidPayload = errors.New("invalid payload")
	ErrUnknownRoom    = errors.New("unknown room")
)

// Room is a hub routing key: kitchen, admin, customer:<name> or driver:<id>.
type Room string

const (
	RoomKitchen Room = "kitchen"
	RoomAdmin   Room = "admin"

	customerPrefix = "customer:"
	driverPrefix   = "driver:"
)

func CustomerRoom(name string) Room { return Room(customerPrefix + name) }
func DriverRoom(id string) Room     { return Room(driverPrefix + id) }

// Kind is the room family used as a metrics label.
func (r Room) Kind() string {
	s := string(r)
	switch {
	case r == RoomKitchen, r == RoomAdmin:
		return s
	case strings.HasPrefix(s, customerPrefix):
		return "customer"
	case strings.HasPrefix(s, driverPrefix):
		return "driver"
	}
	return "unknown"
}

func (r Room) Valid() bool {
	s := string(r)
	switch {
	case r == RoomKitchen, r == RoomAdmin:
		return true
	case strings.HasPrefix(s, customerPrefix):
		return len(s) > len(customerPrefix)
	case strings.HasPrefix(s, driverPrefix):
		return len(s) > len(driverPrefix)
	}
	return false
}

type Action string

const (
	ActionJoin  Action = "join"
	ActionLeave Action = "leave"
)

// ParseMembership turns "join-kitchen", "leave-driver:7" or ("join-customer", "alice")
// into an action and a room.
func ParseMembership(kind, data string) (Action, Room, error) {
	var action Action
	var rest string
	switch {
	case strings.HasPrefix(kind, "join-"):
		action, rest = ActionJoin, strings.TrimPrefix(kind, "join-")
	case strings.HasPrefix(kind, "leave-"):
		action, rest = ActionLeave, strings.TrimPrefix(kind, "leave-")
	default:
		return "", "", ErrUnknownRoom
	}
	data = strings.TrimSpace(data)
	if (rest == "customer" || rest == "driver") && data != "" {
		rest += ":" + data
	}
	room := Room(rest)
	if !room.Valid() {
		return "", "", ErrUnknownRoom
	}
	return action, room, nil
}
