// README: Order store backed by PostgreSQL with an optimistic version column.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"kitchenline/internal/types"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const orderColumns = `id, order_number, order_type, status, customer_name, items,
	pickup_date, pickup_time, delivery_date, delivery_time, preorder_date, preorder_time,
	delivery_status, driver_id, delivery_lat, delivery_lng,
	total_amount, delivery_fee, currency, version, last_actor, created_at, updated_at,
	preparing_at, ready_at, completed_at, cancelled_at, assigned_at, picked_up_at, delivered_at`

const uniqueViolation = "23505"

func (s *PGStore) Create(ctx context.Context, o *Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23,
			$24, $25, $26, $27, $28, $29, $30
		)`,
		string(o.ID), o.OrderNumber, string(o.OrderType), string(o.Status), o.CustomerName, items,
		o.PickupDate, o.PickupTime, o.DeliveryDate, o.DeliveryTime, o.PreorderDate, o.PreorderTime,
		string(o.DeliveryStatus), toStringPtr(o.DriverID), o.DeliveryLat, o.DeliveryLng,
		o.Total.Amount, o.DeliveryFee.Amount, o.Total.Currency, o.Version, string(o.LastActor), o.CreatedAt, o.UpdatedAt,
		o.PreparingAt, o.ReadyAt, o.CompletedAt, o.CancelledAt, o.AssignedAt, o.PickedUpAt, o.DeliveredAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if pgErr.ConstraintName == "orders_order_number_key" {
			return ErrDuplicateNumber
		}
		return ErrConflict
	}
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, string(id))
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (s *PGStore) List(ctx context.Context, f Filter) ([]*Order, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}
	if f.OrderType != "" {
		where = append(where, "order_type = "+arg(string(f.OrderType)))
	}
	if f.DriverID != "" {
		where = append(where, "driver_id = "+arg(string(f.DriverID)))
	}
	if f.CustomerName != "" {
		where = append(where, "customer_name = "+arg(f.CustomerName))
	}
	if f.From != nil {
		where = append(where, "created_at >= "+arg(*f.From))
	}
	if f.To != nil {
		where = append(where, "created_at < "+arg(*f.To))
	}
	q := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at, id"

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PGStore) Update(ctx context.Context, o *Order, expectVersion int) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $1,
			delivery_status = $2,
			driver_id = $3,
			version = $4,
			last_actor = $5,
			updated_at = $6,
			preparing_at = $7,
			ready_at = $8,
			completed_at = $9,
			cancelled_at = $10,
			assigned_at = $11,
			picked_up_at = $12,
			delivered_at = $13
		WHERE id = $14 AND version = $15`,
		string(o.Status), string(o.DeliveryStatus), toStringPtr(o.DriverID), o.Version, string(o.LastActor), o.UpdatedAt,
		o.PreparingAt, o.ReadyAt, o.CompletedAt, o.CancelledAt, o.AssignedAt, o.PickedUpAt, o.DeliveredAt,
		string(o.ID), expectVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, string(o.ID)).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func (s *PGStore) Delete(ctx context.Context, id types.ID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM orders WHERE id = $1`, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o        Order
		items    []byte
		driverID *string
		currency string
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.OrderType, &o.Status, &o.CustomerName, &items,
		&o.PickupDate, &o.PickupTime, &o.DeliveryDate, &o.DeliveryTime, &o.PreorderDate, &o.PreorderTime,
		&o.DeliveryStatus, &driverID, &o.DeliveryLat, &o.DeliveryLng,
		&o.Total.Amount, &o.DeliveryFee.Amount, &currency, &o.Version, &o.LastActor, &o.CreatedAt, &o.UpdatedAt,
		&o.PreparingAt, &o.ReadyAt, &o.CompletedAt, &o.CancelledAt, &o.AssignedAt, &o.PickedUpAt, &o.DeliveredAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode items for %s: %w", o.ID, err)
	}
	if driverID != nil {
		d := types.ID(*driverID)
		o.DriverID = &d
	}
	o.Total.Currency = currency
	o.DeliveryFee.Currency = currency
	return &o, nil
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
