package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"kitchenline/internal/logging"
	"kitchenline/internal/modules/order"
)

func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

func TestListSendsFilter(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/orders" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"orders": []*order.Order{
			{ID: "o1", Status: order.StatusPending, OrderType: order.TypeDineIn, Version: 1},
		}})
	}))
	defer srv.Close()

	c := New(srv.URL+"/", nil)
	list, err := c.List(context.Background(), order.Filter{Statuses: order.ActiveStatuses})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != "o1" {
		t.Fatalf("list = %+v", list)
	}
	if !strings.Contains(gotQuery, "status=pending%2Cpreparing%2Cready") {
		t.Fatalf("query = %q", gotQuery)
	}
}

func TestTransitionConflictCarriesCurrentStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"invalid transition","currentStatus":"preparing"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil).Transition(context.Background(), "o1", order.StatusPreparing, order.ActorKitchen)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if !apiErr.AlreadyApplied(order.StatusPreparing) {
		t.Fatalf("AlreadyApplied = false for %+v", apiErr)
	}
}

func TestTransitionFromSendsPinnedStatus(t *testing.T) {
	bodies := make(chan map[string]string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies <- body
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"o1","status":"cancelled","version":2}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	if _, err := c.TransitionFrom(context.Background(), "o1", order.StatusPending, order.StatusCancelled, order.ActorAdmin); err != nil {
		t.Fatalf("TransitionFrom: %v", err)
	}
	if got := <-bodies; got["fromStatus"] != "pending" || got["status"] != "cancelled" || got["actor"] != "admin" {
		t.Fatalf("pinned body = %v", got)
	}
	if _, err := c.Transition(context.Background(), "o1", order.StatusCancelled, order.ActorAdmin); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if got := <-bodies; got["fromStatus"] != "" {
		t.Fatalf("unpinned body carries fromStatus: %v", got)
	}
}

func TestStreamJoinsAndReconnects(t *testing.T) {
	var sessions atomic.Int32
	joins := make(chan string, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		joins <- string(msg)
		n := sessions.Add(1)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"new-order","payload":{"id":"o`+string(rune('0'+n))+`"}}`))
		if n == 1 {
			return // drop the first session to force a redial
		}
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	s := NewStream("ws"+strings.TrimPrefix(srv.URL, "http"), "join-kitchen")
	var connects atomic.Int32
	s.OnConnect = func() { connects.Add(1) }

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	frames := make(chan string, 4)
	go func() { _ = s.Run(ctx, func(f []byte) { frames <- string(f) }) }()

	for i := 1; i <= 2; i++ {
		select {
		case j := <-joins:
			if j != "join-kitchen" {
				t.Fatalf("join = %q", j)
			}
		case <-ctx.Done():
			t.Fatalf("session %d never joined", i)
		}
		select {
		case f := <-frames:
			if !strings.Contains(f, `"o`) {
				t.Fatalf("frame = %q", f)
			}
		case <-ctx.Done():
			t.Fatalf("session %d delivered no frame", i)
		}
	}
	if connects.Load() < 2 {
		t.Fatalf("OnConnect ran %d times", connects.Load())
	}
}
