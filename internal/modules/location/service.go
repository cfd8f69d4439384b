// README: Location relay validates driver pings against the live assignment and republishes them.
package location

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kitchenline/internal/logging"
	"kitchenline/internal/metrics"
	"kitchenline/internal/modules/order"
	"kitchenline/internal/types"
)

type OrderReader interface {
	Get(ctx context.Context, id types.ID) (*order.Order, error)
}

// Publisher fans an applied ping out to watchers of the order.
type Publisher interface {
	DriverLocationUpdated(ctx context.Context, ev Event)
}

type Service struct {
	repo      Repository
	orders    OrderReader
	publisher Publisher
	now       func() time.Time
}

func NewService(repo Repository, orders OrderReader, publisher Publisher) *Service {
	return &Service{repo: repo, orders: orders, publisher: publisher, now: time.Now}
}

// ReportLocation overwrites the driver's position when the ping is not older than
// the stored one. Pings for orders the driver does not hold fail with ErrNotAssigned.
func (s *Service) ReportLocation(ctx context.Context, p Ping) (Result, error) {
	if p.DriverID == "" || p.OrderID == "" {
		metrics.LocationPings.WithLabelValues("invalid").Inc()
		return Result{}, fmt.Errorf("%w: driverId and orderId required", ErrBadRequest)
	}
	if !p.Position.Valid() {
		metrics.LocationPings.WithLabelValues("invalid").Inc()
		return Result{}, fmt.Errorf("%w: coordinates out of range", ErrBadRequest)
	}

	o, err := s.orders.Get(ctx, p.OrderID)
	if errors.Is(err, order.ErrNotFound) || (err == nil && !o.AssignedTo(p.DriverID)) {
		metrics.LocationPings.WithLabelValues("not_assigned").Inc()
		logging.Ctx(ctx).Debug().
			Str("driver_id", p.DriverID.String()).
			Str("order_id", p.OrderID.String()).
			Msg("location ping for unassigned order discarded")
		return Result{}, ErrNotAssigned
	}
	if err != nil {
		metrics.LocationPings.WithLabelValues("error").Inc()
		return Result{}, err
	}

	at := p.Timestamp
	if at.IsZero() {
		at = s.now()
	}
	pos := Position{Lat: p.Position.Lat, Lng: p.Position.Lng, RecordedAt: at}
	applied, err := s.repo.SetPosition(ctx, p.DriverID, pos)
	if err != nil {
		metrics.LocationPings.WithLabelValues("error").Inc()
		return Result{}, err
	}
	if !applied {
		metrics.LocationPings.WithLabelValues("stale").Inc()
		return Result{Success: true}, nil
	}
	metrics.LocationPings.WithLabelValues("applied").Inc()

	ev := Event{
		DriverID:     p.DriverID,
		OrderID:      p.OrderID,
		Lat:          pos.Lat,
		Lng:          pos.Lng,
		Timestamp:    at.UnixMilli(),
		CustomerName: o.CustomerName,
	}
	if o.DeliveryLat != nil && o.DeliveryLng != nil {
		km := roundKm(haversineKm(pos.Point(), types.Point{Lat: *o.DeliveryLat, Lng: *o.DeliveryLng}))
		ev.DistanceKm = &km
	}
	if s.publisher != nil {
		s.publisher.DriverLocationUpdated(ctx, ev)
	}
	return Result{Success: true, Applied: true}, nil
}

func (s *Service) RegisterDriver(ctx context.Context, d Driver) (*Driver, error) {
	d.FirstName = strings.TrimSpace(d.FirstName)
	d.LastName = strings.TrimSpace(d.LastName)
	d.Phone = strings.TrimSpace(d.Phone)
	d.VehicleType = strings.TrimSpace(d.VehicleType)
	d.VehicleRegistration = strings.TrimSpace(d.VehicleRegistration)
	if d.FirstName == "" || d.LastName == "" {
		return nil, fmt.Errorf("%w: firstName and lastName required", ErrBadRequest)
	}
	if d.Phone == "" {
		return nil, fmt.Errorf("%w: phone required", ErrBadRequest)
	}
	if (d.VehicleType == "") != (d.VehicleRegistration == "") {
		return nil, fmt.Errorf("%w: vehicleType and vehicleRegistration go together", ErrBadRequest)
	}
	if d.ID == "" {
		d.ID = types.NewID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now()
	}
	if err := s.repo.SaveDriver(ctx, &d); err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Str("driver_id", d.ID.String()).Msg("driver saved")
	return &d, nil
}

func (s *Service) Driver(ctx context.Context, id types.ID) (*DriverView, error) {
	d, err := s.repo.Driver(ctx, id)
	if err != nil {
		return nil, err
	}
	pos, err := s.repo.Position(ctx, id)
	if err != nil {
		return nil, err
	}
	return &DriverView{Driver: d, Position: pos}, nil
}

// DeviceToken resolves the push token for a driver, empty when unknown.
func (s *Service) DeviceToken(ctx context.Context, id types.ID) (string, error) {
	d, err := s.repo.Driver(ctx, id)
	if errors.Is(err, ErrDriverNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return d.DeviceToken, nil
}

func (s *Service) Nearby(ctx context.Context, center types.Point, radiusKm float64, limit int) ([]Nearby, error) {
	if !center.Valid() || radiusKm <= 0 {
		return nil, fmt.Errorf("%w: invalid search area", ErrBadRequest)
	}
	if limit <= 0 {
		limit = 20
	}
	return s.repo.Nearby(ctx, center, radiusKm, limit)
}
