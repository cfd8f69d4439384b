// README: HTTP client for the order API; satisfies reconcile.Lister.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"kitchenline/internal/modules/kitchen"
	"kitchenline/internal/modules/location"
	"kitchenline/internal/modules/order"
	"kitchenline/internal/types"
)

// APIError is a non-2xx answer. CurrentStatus is set on 409 transition rejections.
type APIError struct {
	StatusCode    int
	Message       string
	CurrentStatus string
}

func (e *APIError) Error() string {
	if e.CurrentStatus != "" {
		return fmt.Sprintf("api %d: %s (current status %s)", e.StatusCode, e.Message, e.CurrentStatus)
	}
	return fmt.Sprintf("api %d: %s", e.StatusCode, e.Message)
}

// AlreadyApplied reports whether a retried transition lost only because it had already happened.
func (e *APIError) AlreadyApplied(to order.Status) bool {
	return e.StatusCode == http.StatusConflict && e.CurrentStatus == string(to)
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for baseURL (e.g. http://localhost:8080). A nil httpClient gets a 10s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) List(ctx context.Context, f order.Filter) ([]*order.Order, error) {
	var resp struct {
		Orders []*order.Order `json:"orders"`
	}
	path := "/api/orders"
	if q := f.Values().Encode(); q != "" {
		path += "?" + q
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// NewOrder is the POST /api/orders body.
type NewOrder struct {
	OrderNumber  string       `json:"orderNumber,omitempty"`
	OrderType    order.Type   `json:"orderType"`
	CustomerName string       `json:"customerName,omitempty"`
	Items        []order.Item `json:"items"`
	PickupDate   string       `json:"pickupDate,omitempty"`
	PickupTime   string       `json:"pickupTime,omitempty"`
	DeliveryDate string       `json:"deliveryDate,omitempty"`
	DeliveryTime string       `json:"deliveryTime,omitempty"`
	PreorderDate string       `json:"preorderDate,omitempty"`
	PreorderTime string       `json:"preorderTime,omitempty"`
	DeliveryLat  *float64     `json:"deliveryLat,omitempty"`
	DeliveryLng  *float64     `json:"deliveryLng,omitempty"`
	Total        types.Money  `json:"total"`
}

func (c *Client) Create(ctx context.Context, in NewOrder) (*order.Order, error) {
	var o order.Order
	if err := c.do(ctx, http.MethodPost, "/api/orders", in, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *Client) Get(ctx context.Context, id types.ID) (*order.Order, error) {
	var o order.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders/"+url.PathEscape(id.String()), nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *Client) Transition(ctx context.Context, id types.ID, to order.Status, actor order.Actor) (*order.Order, error) {
	return c.TransitionFrom(ctx, id, "", to, actor)
}

// TransitionFrom fails with a 409 unless the order is still in from. An empty from skips the check.
func (c *Client) TransitionFrom(ctx context.Context, id types.ID, from, to order.Status, actor order.Actor) (*order.Order, error) {
	body := map[string]string{"status": string(to), "actor": string(actor)}
	if from != "" {
		body["fromStatus"] = string(from)
	}
	var o order.Order
	if err := c.do(ctx, http.MethodPatch, "/api/orders/"+url.PathEscape(id.String())+"/status", body, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *Client) AssignDriver(ctx context.Context, id, driverID types.ID) (*order.Order, error) {
	var o order.Order
	body := map[string]string{"driverId": driverID.String(), "actor": string(order.ActorAdmin)}
	if err := c.do(ctx, http.MethodPost, "/api/orders/"+url.PathEscape(id.String())+"/assign", body, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *Client) Delete(ctx context.Context, id types.ID) error {
	return c.do(ctx, http.MethodDelete, "/api/orders/"+url.PathEscape(id.String()), nil, nil)
}

// ReportLocation posts one driver ping. Success is false when the driver does not hold the order.
func (c *Client) ReportLocation(ctx context.Context, driverID, orderID types.ID, p types.Point) (location.Result, error) {
	body := map[string]any{"driverId": driverID, "orderId": orderID, "lat": p.Lat, "lng": p.Lng}
	var res location.Result
	err := c.do(ctx, http.MethodPost, "/api/location", body, &res)
	return res, err
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) KitchenQueue(ctx context.Context) ([]kitchen.Entry, error) {
	var resp struct {
		Queue []kitchen.Entry `json:"queue"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/kitchen/queue", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Queue, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error         string `json:"error"`
			CurrentStatus string `json:"currentStatus"`
		}
		_ = json.Unmarshal(raw, &e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error, CurrentStatus: e.CurrentStatus}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
