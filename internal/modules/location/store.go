// README: Driver store: identity in Postgres, current position in Redis (hash + GEO index).
package location

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"kitchenline/internal/types"
)

// Repository holds driver identity and the single latest position per driver.
// SetPosition is last-write-wins on RecordedAt and reports whether it applied.
type Repository interface {
	Driver(ctx context.Context, id types.ID) (*Driver, error)
	SaveDriver(ctx context.Context, d *Driver) error
	SetPosition(ctx context.Context, id types.ID, pos Position) (bool, error)
	Position(ctx context.Context, id types.ID) (*Position, error)
	Nearby(ctx context.Context, center types.Point, radiusKm float64, limit int) ([]Nearby, error)
}

const geoDriversKey = "geo:drivers"

func positionKey(id types.ID) string { return "driver:" + string(id) + ":location" }

// setIfNewer writes the hash and GEO member only when the stored timestamp is not newer.
// GEOADD rejects latitudes beyond the Web Mercator limit, so those only update the hash.
var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'ts')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'ts', ARGV[1], 'lat', ARGV[2], 'lng', ARGV[3])
if math.abs(tonumber(ARGV[2])) <= 85.05112878 then
	redis.call('GEOADD', KEYS[2], ARGV[3], ARGV[2], ARGV[4])
end
return 1
`)

type Store struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewStore(db *pgxpool.Pool, redis *redis.Client) *Store {
	return &Store{db: db, redis: redis}
}

func (s *Store) Driver(ctx context.Context, id types.ID) (*Driver, error) {
	var d Driver
	err := s.db.QueryRow(ctx, `
		SELECT id, first_name, last_name, phone, vehicle_type, vehicle_registration, device_token, created_at
		FROM drivers WHERE id = $1`, string(id),
	).Scan(&d.ID, &d.FirstName, &d.LastName, &d.Phone, &d.VehicleType, &d.VehicleRegistration, &d.DeviceToken, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDriverNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) SaveDriver(ctx context.Context, d *Driver) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO drivers (id, first_name, last_name, phone, vehicle_type, vehicle_registration, device_token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			phone = EXCLUDED.phone,
			vehicle_type = EXCLUDED.vehicle_type,
			vehicle_registration = EXCLUDED.vehicle_registration,
			device_token = EXCLUDED.device_token`,
		string(d.ID), d.FirstName, d.LastName, d.Phone, d.VehicleType, d.VehicleRegistration, d.DeviceToken, d.CreatedAt,
	)
	return err
}

func (s *Store) SetPosition(ctx context.Context, id types.ID, pos Position) (bool, error) {
	n, err := setIfNewer.Run(ctx, s.redis,
		[]string{positionKey(id), geoDriversKey},
		pos.RecordedAt.UnixMilli(),
		strconv.FormatFloat(pos.Lat, 'f', -1, 64),
		strconv.FormatFloat(pos.Lng, 'f', -1, 64),
		string(id),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis set position %s: %w", id, err)
	}
	return n == 1, nil
}

type redisPosition struct {
	TS  int64   `redis:"ts"`
	Lat float64 `redis:"lat"`
	Lng float64 `redis:"lng"`
}

func (s *Store) Position(ctx context.Context, id types.ID) (*Position, error) {
	cmd := s.redis.HGetAll(ctx, positionKey(id))
	if err := cmd.Err(); err != nil {
		return nil, fmt.Errorf("redis get position %s: %w", id, err)
	}
	if len(cmd.Val()) == 0 {
		return nil, nil
	}
	var rp redisPosition
	if err := cmd.Scan(&rp); err != nil {
		return nil, err
	}
	return &Position{Lat: rp.Lat, Lng: rp.Lng, RecordedAt: time.UnixMilli(rp.TS)}, nil
}

func (s *Store) Nearby(ctx context.Context, center types.Point, radiusKm float64, limit int) ([]Nearby, error) {
	locs, err := s.redis.GeoSearchLocation(ctx, geoDriversKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Lng,
			Latitude:   center.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis geosearch: %w", err)
	}
	out := make([]Nearby, 0, len(locs))
	for _, l := range locs {
		out = append(out, Nearby{DriverID: types.ID(l.Name), Lat: l.Latitude, Lng: l.Longitude, DistanceKm: roundKm(l.Dist)})
	}
	return out, nil
}

// MemoryStore keeps drivers and positions in process.
type MemoryStore struct {
	mu        sync.RWMutex
	drivers   map[types.ID]*Driver
	positions map[types.ID]Position
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		drivers:   make(map[types.ID]*Driver),
		positions: make(map[types.ID]Position),
	}
}

func (m *MemoryStore) Driver(_ context.Context, id types.ID) (*Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, ErrDriverNotFound
	}
	c := *d
	return &c, nil
}

func (m *MemoryStore) SaveDriver(_ context.Context, d *Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *d
	if prev, ok := m.drivers[d.ID]; ok {
		c.CreatedAt = prev.CreatedAt
	}
	m.drivers[d.ID] = &c
	return nil
}

func (m *MemoryStore) SetPosition(_ context.Context, id types.ID, pos Position) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.positions[id]; ok && cur.RecordedAt.After(pos.RecordedAt) {
		return false, nil
	}
	m.positions[id] = pos
	return true, nil
}

func (m *MemoryStore) Position(_ context.Context, id types.ID) (*Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[id]
	if !ok {
		return nil, nil
	}
	return &pos, nil
}

func (m *MemoryStore) Nearby(_ context.Context, center types.Point, radiusKm float64, limit int) ([]Nearby, error) {
	m.mu.RLock()
	var out []Nearby
	for id, pos := range m.positions {
		if d := haversineKm(center, pos.Point()); d <= radiusKm {
			out = append(out, Nearby{DriverID: id, Lat: pos.Lat, Lng: pos.Lng, DistanceKm: roundKm(d)})
		}
	}
	m.mu.RUnlock()
	sortByDistance(out, func(n Nearby) float64 { return n.DistanceKm })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
