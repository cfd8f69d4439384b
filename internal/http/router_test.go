package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"kitchenline/internal/logging"
	"kitchenline/internal/modules/kitchen"
	"kitchenline/internal/modules/location"
	"kitchenline/internal/modules/order"
	"kitchenline/internal/modules/realtime"
)

func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

func newTestRouter(t *testing.T, checks map[string]HealthCheck) (*gin.Engine, *realtime.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := realtime.NewHub()
	b := realtime.NewBroadcaster(hub)
	orders := order.NewService(order.NewMemoryStore(), b)
	locations := location.NewService(location.NewMemoryStore(), orders, b)
	t.Cleanup(hub.CloseAll)
	return NewRouter(RouterDeps{
		Orders:      orders,
		Locations:   locations,
		Scheduler:   kitchen.NewScheduler(kitchen.DefaultThresholds(), time.UTC),
		Hub:         hub,
		Broadcaster: b,
		SendBuffer:  8,
		Checks:      checks,
	}), hub
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t, map[string]HealthCheck{
		"db":    func(context.Context) error { return nil },
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "redis") {
		t.Fatalf("health = %d %s", w.Code, w.Body.String())
	}

	r, _ = newTestRouter(t, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health = %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "kitchenline_") {
		t.Fatalf("metrics = %d", w.Code)
	}
}

func TestKitchenClientSeesNewOrder(t *testing.T) {
	r, hub := newTestRouter(t, nil)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"join-kitchen"}`)); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, ack, err := conn.ReadMessage(); err != nil || !strings.Contains(string(ack), "ack") {
		t.Fatalf("ack = %s, %v", ack, err)
	}
	if !hub.HasMembers(realtime.RoomKitchen) {
		t.Fatal("client not in kitchen room")
	}

	body, _ := json.Marshal(map[string]any{
		"orderType": "dine-in",
		"items":     []map[string]any{{"name": "Gyoza", "quantity": 6}},
	})
	resp, err := http.Post(srv.URL+"/api/orders", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create = %d", resp.StatusCode)
	}

	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg struct {
		Type    string      `json:"type"`
		Payload order.Order `json:"payload"`
	}
	if err := json.Unmarshal(frame, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != realtime.EventNewOrder || msg.Payload.Items[0].Name != "Gyoza" {
		t.Fatalf("frame = %s", frame)
	}

	resp, err = http.Get(srv.URL + "/api/realtime/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var stats realtime.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Clients != 1 || stats.Rooms["kitchen"] != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestMenuUpdatedReachesEveryone(t *testing.T) {
	r, hub := newTestRouter(t, nil)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Stats().Clients == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Post(srv.URL+"/api/menu/updated", "application/json", strings.NewReader(`{"item":"ramen","available":false}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("menu = %d", resp.StatusCode)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil || !strings.Contains(string(frame), realtime.EventMenuUpdated) {
		t.Fatalf("frame = %s, %v", frame, err)
	}
}
