// README: Driver identity, last known position and location ping shapes.
package location

import (
	"errors"
	"time"

	"kitchenline/internal/types"
)

var (
	ErrNotAssigned    = errors.New("order not assigned to driver")
	ErrBadRequest     = errors.New("bad request")
	ErrDriverNotFound = errors.New("driver not found")
)

// Driver is identity and contact data. DeviceToken is the FCM target and never serialized.
type Driver struct {
	ID                  types.ID  `json:"id"`
	FirstName           string    `json:"firstName"`
	LastName            string    `json:"lastName"`
	Phone               string    `json:"phone"`
	VehicleType         string    `json:"vehicleType"`
	VehicleRegistration string    `json:"vehicleRegistration"`
	DeviceToken         string    `json:"-"`
	CreatedAt           time.Time `json:"createdAt"`
}

// Position is the driver's current location. Only the latest one is kept.
type Position struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	RecordedAt time.Time `json:"recordedAt"`
}

func (p Position) Point() types.Point { return types.Point{Lat: p.Lat, Lng: p.Lng} }

// Ping is one report from a driver client. A zero Timestamp means receive time.
type Ping struct {
	DriverID  types.ID
	OrderID   types.ID
	Position  types.Point
	Timestamp time.Time
}

// Event is the driver-location-updated payload.
type Event struct {
	DriverID     types.ID `json:"driverId"`
	OrderID      types.ID `json:"orderId"`
	Lat          float64  `json:"lat"`
	Lng          float64  `json:"lng"`
	Timestamp    int64    `json:"timestamp"`
	DistanceKm   *float64 `json:"distanceKm,omitempty"`
	CustomerName string   `json:"-"`
}

// Result tells the caller whether the ping replaced the stored position.
type Result struct {
	Success bool `json:"success"`
	Applied bool `json:"applied"`
}

// DriverView is identity plus last known position.
type DriverView struct {
	Driver   *Driver   `json:"driver"`
	Position *Position `json:"position,omitempty"`
}

// Nearby is one result of a radius search, closest first.
type Nearby struct {
	DriverID   types.ID `json:"driverId"`
	Lat        float64  `json:"lat"`
	Lng        float64  `json:"lng"`
	DistanceKm float64  `json:"distanceKm"`
}
