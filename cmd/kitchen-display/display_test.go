package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"kitchenline/internal/modules/kitchen"
	"kitchenline/internal/modules/order"
)

func TestRenderOrdersByPriority(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	orders := []*order.Order{
		{ID: "a", OrderNumber: "ORD-A", OrderType: order.TypeDineIn, Status: order.StatusPending, CreatedAt: now.Add(-5 * time.Minute),
			Items: []order.Item{{Name: "Ramen", Quantity: 2}}},
		{ID: "b", OrderNumber: "ORD-B", OrderType: order.TypePickup, Status: order.StatusPreparing, CreatedAt: now.Add(-2 * time.Minute),
			PickupDate: "2026-03-01", PickupTime: "12:03", Items: []order.Item{{Name: "Gyoza", Quantity: 1}}},
		{ID: "c", OrderNumber: "ORD-C", OrderType: order.TypeDineIn, Status: order.StatusCompleted, CreatedAt: now.Add(-time.Hour)},
	}
	var buf bytes.Buffer
	newDisplay(&buf, kitchen.NewScheduler(kitchen.DefaultThresholds(), time.UTC)).Render(orders, now)
	out := buf.String()

	if strings.Contains(out, "ORD-C") {
		t.Fatalf("completed order rendered:\n%s", out)
	}
	b, a := strings.Index(out, "ORD-B"), strings.Index(out, "ORD-A")
	if b < 0 || a < 0 || b > a {
		t.Fatalf("expected the critical pickup first:\n%s", out)
	}
	if !strings.Contains(out, "2x Ramen") || !strings.Contains(out, "(2)") {
		t.Fatalf("missing details:\n%s", out)
	}
}

func TestWSURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080":   "ws://localhost:8080/ws",
		"https://kitchen.example": "wss://kitchen.example/ws",
	}
	for in, want := range cases {
		if got := wsURL(in); got != want {
			t.Errorf("wsURL(%q) = %q, want %q", in, got, want)
		}
	}
}
