// README: Terminal kitchen display; joins the kitchen room, reconciles by polling and prints the priority queue on change.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"kitchenline/internal/client"
	"kitchenline/internal/config"
	"kitchenline/internal/logging"
	"kitchenline/internal/modules/kitchen"
	"kitchenline/internal/modules/reconcile"
)

func main() {
	apiURL := flag.String("api", "http://localhost:8080", "kitchenline-api base URL")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: "console", Output: os.Stderr})

	tz, err := cfg.Kitchen.Location()
	if err != nil {
		logging.Fatal().Err(err).Msg("kitchen timezone")
	}
	scheduler := kitchen.NewScheduler(kitchen.Thresholds{
		WarningAfter:   cfg.Kitchen.WarningAfter,
		DangerAfter:    cfg.Kitchen.DangerAfter,
		CriticalWithin: cfg.Kitchen.CriticalWithin,
		UrgentWithin:   cfg.Kitchen.UrgentWithin,
	}, tz)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.New(*apiURL, nil)
	policy := reconcile.KitchenPolicy(cfg.Reconcile.Kitchen.Interval)
	display := newDisplay(os.Stdout, scheduler)
	var rec *reconcile.Reconciler
	rec = reconcile.NewReconciler(policy, api, nil, reconcile.NotifierFunc(func([]reconcile.Change) {
		display.Render(rec.Cache().Snapshot(), time.Now())
	}))

	stream := client.NewStream(wsURL(*apiURL), policy.JoinMessage())
	stream.OnConnect = func() {
		// Catch up on whatever was missed while disconnected.
		if err := rec.Poll(ctx); err != nil {
			logging.Warn().Err(err).Msg("resync after reconnect failed")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rec.Run(gctx) })
	g.Go(func() error {
		return stream.Run(gctx, func(frame []byte) {
			if err := rec.HandleFrame(frame); err != nil {
				logging.Debug().Err(err).Msg("ignored hub frame")
			}
		})
	})
	// Elapsed tiers move with the clock even when nothing changes.
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case now := <-ticker.C:
				display.Render(rec.Cache().Snapshot(), now)
			}
		}
	})
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logging.Fatal().Err(err).Msg("kitchen-display stopped")
	}
}

func wsURL(api string) string {
	switch {
	case strings.HasPrefix(api, "https://"):
		return "wss://" + strings.TrimPrefix(api, "https://") + "/ws"
	case strings.HasPrefix(api, "http://"):
		return "ws://" + strings.TrimPrefix(api, "http://") + "/ws"
	}
	return api + "/ws"
}
