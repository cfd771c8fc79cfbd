// Package rest is the HTTP client for the hub's REST API. It backs the order
// coordinator's authoritative resync path and the verification gate's code
// check.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"marketlink/orders"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("rest GET %s: %w", path, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rest GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	return c.decode(resp, result)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("rest marshal: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("rest POST %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rest POST %s: %w", path, err)
	}
	defer resp.Body.Close()
	return c.decode(resp, result)
}

func (c *Client) decode(resp *http.Response, result any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("rest read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("rest HTTP %d: %s", resp.StatusCode, string(data))
	}
	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("rest decode: %w", err)
		}
	}
	return nil
}

// BaseURL returns the client's base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// FetchOrder returns the authoritative state of one order.
func (c *Client) FetchOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	var o orders.Order
	if err := c.get(ctx, "/api/orders/"+orderID, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// FetchOrders returns all orders visible to the caller.
func (c *Client) FetchOrders(ctx context.Context) ([]orders.Order, error) {
	var out []orders.Order
	if err := c.get(ctx, "/api/orders", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchBooking returns the authoritative state of one booking.
func (c *Client) FetchBooking(ctx context.Context, bookingID string) (*orders.Booking, error) {
	var b orders.Booking
	if err := c.get(ctx, "/api/bookings/"+bookingID, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateOrderStatus persists a track transition through the hub's status
// endpoint. The hub re-validates against the transition tables, so a
// conflicting concurrent change comes back as an error.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID, track, status string) error {
	body := map[string]string{"track": track, "status": status}
	return c.post(ctx, "/api/orders/"+orderID+"/status", body, nil)
}

// ConfirmCheckIn redeems a booking's QR code with the hub.
func (c *Client) ConfirmCheckIn(ctx context.Context, bookingID, code string) error {
	body := map[string]string{"code": code}
	return c.post(ctx, "/api/bookings/"+bookingID+"/checkin", body, nil)
}

// CheckCode validates a one-time verification code for a target. Satisfies
// the verification gate's Checker.
func (c *Client) CheckCode(ctx context.Context, targetID, code string) error {
	body := map[string]string{"target_id": targetID, "code": code}
	return c.post(ctx, "/api/verify", body, nil)
}
