// README: Bench cases: environment checks, order and delivery flows, transition races and load.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"kitchenline/internal/client"
	"kitchenline/internal/infra"
	"kitchenline/internal/modules/order"
	"kitchenline/internal/types"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	api   *client.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{cfg: cfg, api: client.New(cfg.BaseURL, nil)}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		start := time.Now()
		res := tc.Run(ctx, r)
		if res.Latency == 0 {
			res.Latency = time.Since(start)
		}
		results = append(results, res)
		fmt.Printf("%-5s %s (%s)", res.Status, tc.Name, res.Latency.Round(time.Millisecond))
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: checkPostgres},
		{Name: "Env: Redis connect", Run: checkRedis},
		{Name: "Migration: apply (optional)", Run: applyMigration},
		{Name: "Migration: tables exist", Run: tablesExist},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			return fromErr(r.api.Health(ctx))
		}},
		{Name: "Order: kitchen flow pending -> completed", Run: kitchenFlow},
		{Name: "Order: retried transition reports already applied", Run: retriedTransition},
		{Name: "Order: missing items -> 400", Run: rejectInvalidCreate},
		{Name: "Order: preparing vs cancelled race has one winner", Run: cancelRace},
		{Name: "Delivery: assign, ping, stale ping for other driver", Run: deliveryFlow},
		{Name: "Kitchen: queue lists active orders", Run: kitchenQueue},
		{Name: "Perf: order create throughput", Run: createLoad},
	}
}

func checkPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "dsn not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return fromErr(r.db.Ping(ctx))
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: statusSkip, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return fromErr(r.redis.Ping(ctx).Err())
}

func applyMigration(ctx context.Context, r *Runner) Result {
	if !r.cfg.ApplyMigration {
		return Result{Status: statusSkip, Note: "apply-migration=false"}
	}
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	sql, err := os.ReadFile(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, stmt := range infra.SplitSQL(string(sql)) {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
	}
	return Result{Status: statusPass}
}

func tablesExist(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "dsn not configured"}
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: statusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("%d tables", len(tables))}
}

func kitchenFlow(ctx context.Context, r *Runner) Result {
	o, err := r.api.Create(ctx, dineIn("bench-flow"))
	if err != nil {
		return fromErr(err)
	}
	for _, to := range []order.Status{order.StatusPreparing, order.StatusReady, order.StatusCompleted} {
		got, err := r.api.Transition(ctx, o.ID, to, order.ActorKitchen)
		if err != nil {
			return Result{Status: statusFail, Note: fmt.Sprintf("-> %s: %v", to, err)}
		}
		if got.Status != to {
			return Result{Status: statusFail, Note: fmt.Sprintf("status %s, want %s", got.Status, to)}
		}
	}
	_, err = r.api.Transition(ctx, o.ID, order.StatusCancelled, order.ActorAdmin)
	if !isConflict(err) {
		return Result{Status: statusFail, Note: fmt.Sprintf("cancel after completed: %v", err)}
	}
	return Result{Status: statusPass}
}

func retriedTransition(ctx context.Context, r *Runner) Result {
	o, err := r.api.Create(ctx, dineIn("bench-retry"))
	if err != nil {
		return fromErr(err)
	}
	if _, err := r.api.Transition(ctx, o.ID, order.StatusPreparing, order.ActorKitchen); err != nil {
		return fromErr(err)
	}
	_, err = r.api.Transition(ctx, o.ID, order.StatusPreparing, order.ActorKitchen)
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || !apiErr.AlreadyApplied(order.StatusPreparing) {
		return Result{Status: statusFail, Note: fmt.Sprintf("retry: %v", err)}
	}
	return Result{Status: statusPass}
}

func rejectInvalidCreate(ctx context.Context, r *Runner) Result {
	_, err := r.api.Create(ctx, client.NewOrder{OrderType: order.TypeDineIn})
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 400 {
		return Result{Status: statusPass}
	}
	return Result{Status: statusFail, Note: fmt.Sprintf("got %v", err)}
}

// cancelRace fires kitchen "start" and admin "cancel", both pinned to pending, at the same order from many goroutines.
func cancelRace(ctx context.Context, r *Runner) Result {
	o, err := r.api.Create(ctx, dineIn("bench-race"))
	if err != nil {
		return fromErr(err)
	}
	var wins, conflicts, other atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		to, actor := order.StatusPreparing, order.ActorKitchen
		if i%2 == 1 {
			to, actor = order.StatusCancelled, order.ActorAdmin
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.api.TransitionFrom(ctx, o.ID, order.StatusPending, to, actor)
			switch {
			case err == nil:
				wins.Add(1)
			case isConflict(err):
				conflicts.Add(1)
			default:
				other.Add(1)
			}
		}()
	}
	wg.Wait()

	final, err := r.api.Get(ctx, o.ID)
	if err != nil {
		return fromErr(err)
	}
	note := fmt.Sprintf("wins=%d conflicts=%d errors=%d final=%s", wins.Load(), conflicts.Load(), other.Load(), final.Status)
	if other.Load() > 0 || wins.Load() != 1 || final.Status == order.StatusPending {
		return Result{Status: statusFail, Note: note}
	}
	return Result{Status: statusPass, Note: note}
}

func deliveryFlow(ctx context.Context, r *Runner) Result {
	lat, lng := 40.7128, -74.0060
	in := dineIn("bench-delivery")
	in.OrderType = order.TypeDelivery
	in.DeliveryDate, in.DeliveryTime = time.Now().Format("2006-01-02"), time.Now().Add(time.Hour).Format("15:04")
	in.DeliveryLat, in.DeliveryLng = &lat, &lng
	o, err := r.api.Create(ctx, in)
	if err != nil {
		return fromErr(err)
	}
	driver := types.NewID()
	if _, err := r.api.AssignDriver(ctx, o.ID, driver); err != nil {
		return fromErr(err)
	}
	res, err := r.api.ReportLocation(ctx, driver, o.ID, types.Point{Lat: 40.73, Lng: -73.99})
	if err != nil || !res.Success || !res.Applied {
		return Result{Status: statusFail, Note: fmt.Sprintf("assigned ping: %+v %v", res, err)}
	}
	res, err = r.api.ReportLocation(ctx, types.NewID(), o.ID, types.Point{Lat: 40.73, Lng: -73.99})
	if err != nil || res.Success {
		return Result{Status: statusFail, Note: fmt.Sprintf("foreign ping: %+v %v", res, err)}
	}
	if r.redis != nil {
		n, err := r.redis.Exists(ctx, "driver:"+driver.String()+":location").Result()
		if err != nil || n != 1 {
			return Result{Status: statusFail, Note: fmt.Sprintf("redis position missing: %v", err)}
		}
	}
	return Result{Status: statusPass}
}

func kitchenQueue(ctx context.Context, r *Runner) Result {
	o, err := r.api.Create(ctx, dineIn("bench-queue"))
	if err != nil {
		return fromErr(err)
	}
	defer func() { _ = r.api.Delete(context.WithoutCancel(ctx), o.ID) }()
	queue, err := r.api.KitchenQueue(ctx)
	if err != nil {
		return fromErr(err)
	}
	for _, e := range queue {
		if e.Order.Status == order.StatusCompleted || e.Order.Status == order.StatusCancelled {
			return Result{Status: statusFail, Note: "terminal order in queue: " + e.Order.ID.String()}
		}
		if e.Order.ID == o.ID {
			return Result{Status: statusPass, Note: fmt.Sprintf("len=%d", len(queue))}
		}
	}
	return Result{Status: statusFail, Note: "new order missing from queue"}
}

func createLoad(ctx context.Context, r *Runner) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				if _, err := r.api.Create(ctx, dineIn("bench-load")); err != nil {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: statusFail, Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Latency: r.cfg.Duration, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}

func dineIn(customer string) client.NewOrder {
	return client.NewOrder{
		OrderType:    order.TypeDineIn,
		CustomerName: customer,
		Items:        []order.Item{{Name: "Tonkotsu ramen", Quantity: 1}},
		Total:        types.Money{Amount: 1450, Currency: "USD"},
	}
}

func isConflict(err error) bool {
	var apiErr *client.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 409
}

func fromErr(err error) Result {
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}
