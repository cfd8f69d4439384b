package location

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"kitchenline/internal/logging"
	"kitchenline/internal/modules/order"
	"kitchenline/internal/types"
)

func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

type fakeOrders map[types.ID]*order.Order

func (f fakeOrders) Get(_ context.Context, id types.ID) (*order.Order, error) {
	o, ok := f[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingPublisher) DriverLocationUpdated(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func deliveryOrder(id, driver types.ID, ds order.DeliveryStatus) *order.Order {
	lat, lng := 40.7580, -73.9855
	return &order.Order{
		ID:             id,
		OrderType:      order.TypeDelivery,
		Status:         order.StatusPreparing,
		CustomerName:   "alice",
		DeliveryStatus: ds,
		DriverID:       types.IDPtr(driver),
		DeliveryLat:    &lat,
		DeliveryLng:    &lng,
	}
}

func TestReportLocationApplied(t *testing.T) {
	repo := NewMemoryStore()
	pub := &recordingPublisher{}
	orders := fakeOrders{"O1": deliveryOrder("O1", "D1", order.DeliveryOnTheWay)}
	svc := NewService(repo, orders, pub)
	ctx := context.Background()

	res, err := svc.ReportLocation(ctx, Ping{DriverID: "D1", OrderID: "O1", Position: types.Point{Lat: 40.7359, Lng: -73.9911}})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if !res.Success || !res.Applied {
		t.Fatalf("unexpected result %+v", res)
	}
	pos, _ := repo.Position(ctx, "D1")
	if pos == nil || pos.Lat != 40.7359 {
		t.Fatalf("position not stored: %+v", pos)
	}
	if pub.count() != 1 {
		t.Fatalf("expected one event, got %d", pub.count())
	}
	ev := pub.events[0]
	if ev.CustomerName != "alice" || ev.DistanceKm == nil || *ev.DistanceKm <= 0 {
		t.Fatalf("unexpected event %+v", ev)
	}
}

// TestReportLocationNotAssigned covers the O3 scenario and other non-holding states.
func TestReportLocationNotAssigned(t *testing.T) {
	orders := fakeOrders{
		"O3":        deliveryOrder("O3", "D2", order.DeliveryAssigned),
		"pending":   deliveryOrder("pending", "", order.DeliveryPending),
		"delivered": deliveryOrder("delivered", "D1", order.DeliveryDelivered),
		"pickup":    {ID: "pickup", OrderType: order.TypePickup, DeliveryStatus: order.DeliveryNone},
	}
	for _, id := range []types.ID{"O3", "pending", "delivered", "pickup", "missing"} {
		t.Run(string(id), func(t *testing.T) {
			repo := NewMemoryStore()
			pub := &recordingPublisher{}
			svc := NewService(repo, orders, pub)
			ctx := context.Background()

			_, err := svc.ReportLocation(ctx, Ping{DriverID: "D1", OrderID: id, Position: types.Point{Lat: 1, Lng: 1}})
			if !errors.Is(err, ErrNotAssigned) {
				t.Fatalf("expected ErrNotAssigned, got %v", err)
			}
			if pos, _ := repo.Position(ctx, "D1"); pos != nil {
				t.Fatalf("position must not be overwritten")
			}
			if pub.count() != 0 {
				t.Fatalf("no event may be published")
			}
		})
	}
}

func TestReportLocationOutOfOrder(t *testing.T) {
	repo := NewMemoryStore()
	pub := &recordingPublisher{}
	svc := NewService(repo, fakeOrders{"O1": deliveryOrder("O1", "D1", order.DeliveryPickedUp)}, pub)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	if _, err := svc.ReportLocation(ctx, Ping{DriverID: "D1", OrderID: "O1", Position: types.Point{Lat: 2, Lng: 2}, Timestamp: base.Add(time.Second)}); err != nil {
		t.Fatalf("newer ping: %v", err)
	}
	res, err := svc.ReportLocation(ctx, Ping{DriverID: "D1", OrderID: "O1", Position: types.Point{Lat: 1, Lng: 1}, Timestamp: base})
	if err != nil {
		t.Fatalf("older ping: %v", err)
	}
	if !res.Success || res.Applied {
		t.Fatalf("older ping should succeed without applying: %+v", res)
	}
	pos, _ := repo.Position(ctx, "D1")
	if pos.Lat != 2 {
		t.Fatalf("older ping overwrote the position: %+v", pos)
	}
	if pub.count() != 1 {
		t.Fatalf("stale ping must not be republished, got %d events", pub.count())
	}
}

func TestReportLocationValidation(t *testing.T) {
	svc := NewService(NewMemoryStore(), fakeOrders{}, nil)
	cases := []Ping{
		{OrderID: "O1", Position: types.Point{Lat: 1, Lng: 1}},
		{DriverID: "D1", Position: types.Point{Lat: 1, Lng: 1}},
		{DriverID: "D1", OrderID: "O1", Position: types.Point{Lat: 91, Lng: 1}},
	}
	for i, p := range cases {
		if _, err := svc.ReportLocation(context.Background(), p); !errors.Is(err, ErrBadRequest) {
			t.Errorf("case %d: expected ErrBadRequest, got %v", i, err)
		}
	}
}

func TestDriverRegistryAndNearby(t *testing.T) {
	repo := NewMemoryStore()
	svc := NewService(repo, fakeOrders{}, nil)
	ctx := context.Background()

	d, err := svc.RegisterDriver(ctx, Driver{
		FirstName:           " Bob ",
		LastName:            "Rossi",
		Phone:               "+1-212-555-0142",
		VehicleType:         "scooter",
		VehicleRegistration: "NY-4417",
		DeviceToken:         "tok",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	invalid := map[string]Driver{
		"blank first name":      {FirstName: "  ", LastName: "Rossi", Phone: "1"},
		"missing last name":     {FirstName: "Bob", Phone: "1"},
		"missing phone":         {FirstName: "Bob", LastName: "Rossi"},
		"vehicle without plate": {FirstName: "Bob", LastName: "Rossi", Phone: "1", VehicleType: "bike"},
	}
	for name, in := range invalid {
		if _, err := svc.RegisterDriver(ctx, in); !errors.Is(err, ErrBadRequest) {
			t.Fatalf("%s: expected ErrBadRequest, got %v", name, err)
		}
	}
	view, err := svc.Driver(ctx, d.ID)
	if err != nil || view.Position != nil {
		t.Fatalf("unexpected view %+v (%v)", view, err)
	}
	if got := view.Driver; got.FirstName != "Bob" || got.LastName != "Rossi" || got.VehicleType != "scooter" || got.VehicleRegistration != "NY-4417" {
		t.Fatalf("unexpected view %+v (%v)", view, err)
	}
	if _, err := svc.Driver(ctx, "nobody"); !errors.Is(err, ErrDriverNotFound) {
		t.Fatalf("expected ErrDriverNotFound, got %v", err)
	}
	if tok, _ := svc.DeviceToken(ctx, d.ID); tok != "tok" {
		t.Fatalf("unexpected token %q", tok)
	}

	now := time.Now()
	_, _ = repo.SetPosition(ctx, "near", Position{Lat: 40.7368, Lng: -73.9903, RecordedAt: now})
	_, _ = repo.SetPosition(ctx, "mid", Position{Lat: 40.7580, Lng: -73.9855, RecordedAt: now})
	_, _ = repo.SetPosition(ctx, "far", Position{Lat: 40.6413, Lng: -73.7781, RecordedAt: now})

	got, err := svc.Nearby(ctx, types.Point{Lat: 40.7359, Lng: -73.9911}, 10, 0)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(got) != 2 || got[0].DriverID != "near" || got[1].DriverID != "mid" {
		t.Fatalf("unexpected nearby result %+v", got)
	}
}

func TestRedisStoreLastWriteWins(t *testing.T) {
	redisAddr := os.Getenv("KITCHENLINE_REDIS_ADDR")
	if redisAddr == "" {
		t.Skip("KITCHENLINE_REDIS_ADDR not set; skipping integration test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	store := NewStore(nil, rdb)
	ctx := context.Background()
	id := types.ID(fmt.Sprintf("driver_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		rdb.Del(ctx, positionKey(id))
		rdb.ZRem(ctx, geoDriversKey, string(id))
	})

	base := time.UnixMilli(1_700_000_000_000)
	applied, err := store.SetPosition(ctx, id, Position{Lat: 40.7368, Lng: -73.9903, RecordedAt: base.Add(time.Second)})
	if err != nil || !applied {
		t.Fatalf("first write: applied=%v err=%v", applied, err)
	}
	applied, err = store.SetPosition(ctx, id, Position{Lat: 1, Lng: 1, RecordedAt: base})
	if err != nil || applied {
		t.Fatalf("older write: applied=%v err=%v", applied, err)
	}
	pos, err := store.Position(ctx, id)
	if err != nil || pos == nil || pos.Lat != 40.7368 || !pos.RecordedAt.Equal(base.Add(time.Second)) {
		t.Fatalf("unexpected position %+v (%v)", pos, err)
	}

	near, err := store.Nearby(ctx, types.Point{Lat: 40.7359, Lng: -73.9911}, 1, 50)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	found := false
	for _, n := range near {
		if n.DriverID == id {
			found = true
		}
	}
	if !found {
		t.Fatalf("driver missing from GEO index")
	}
}
