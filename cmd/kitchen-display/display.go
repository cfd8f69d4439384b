package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"kitchenline/internal/modules/kitchen"
	"kitchenline/internal/modules/order"
)

type display struct {
	mu        sync.Mutex
	out       io.Writer
	scheduler *kitchen.Scheduler
}

func newDisplay(out io.Writer, scheduler *kitchen.Scheduler) *display {
	return &display{out: out, scheduler: scheduler}
}

// Render prints the active orders in priority order.
func (d *display) Render(orders []*order.Order, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	queue := d.scheduler.KitchenQueue(orders, now)
	tw := tabwriter.NewWriter(d.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "\n== kitchen queue %s (%d) ==\n", now.Format("15:04"), len(queue))
	fmt.Fprintln(tw, "#\tORDER\tTYPE\tSTATUS\tAGE\tDUE\tITEMS")
	for i, e := range queue {
		mark := ""
		if e.Urgent {
			mark = "!"
		}
		fmt.Fprintf(tw, "%d%s\t%s\t%s\t%s\t%dm %s\t%s\t%s\n",
			i+1, mark,
			e.Order.OrderNumber,
			e.Order.OrderType,
			e.Order.Status,
			e.ElapsedMinutes, e.ElapsedTier,
			due(e),
			items(e.Order.Items),
		)
	}
	_ = tw.Flush()
}

func due(e kitchen.Entry) string {
	if e.MinutesUntil == nil {
		return "-"
	}
	return fmt.Sprintf("%dm %s", *e.MinutesUntil, e.DeadlineTier)
}

func items(list []order.Item) string {
	parts := make([]string, 0, len(list))
	for _, it := range list {
		parts = append(parts, fmt.Sprintf("%dx %s", it.Quantity, it.Name))
	}
	return strings.Join(parts, ", ")
}
