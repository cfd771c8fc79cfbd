package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketlink/orders"
)

func TestFetchOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/orders/o1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(orders.Order{ID: "o1", Status: orders.StatusProcessing})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	o, err := c.FetchOrder(context.Background(), "o1")
	if err != nil {
		t.Fatal(err)
	}
	if o.ID != "o1" || o.Status != orders.StatusProcessing {
		t.Errorf("order = %+v", o)
	}
}

func TestFetchOrderHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such order", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	if _, err := c.FetchOrder(context.Background(), "ghost"); err == nil {
		t.Fatal("want error on 404")
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	if err := c.UpdateOrderStatus(context.Background(), "o1", orders.TrackStatus, orders.StatusProcessing); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/api/orders/o1/status" {
		t.Errorf("path = %s", gotPath)
	}
	if gotBody["track"] != "status" || gotBody["status"] != orders.StatusProcessing {
		t.Errorf("body = %v", gotBody)
	}
}

func TestUpdateOrderStatusConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid transition", http.StatusConflict)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	if err := c.UpdateOrderStatus(context.Background(), "o1", orders.TrackStatus, orders.StatusPending); err == nil {
		t.Fatal("want error on 409")
	}
}

func TestConfirmCheckIn(t *testing.T) {
	var gotPath, gotCode string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		gotCode = body["code"]
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	if err := c.ConfirmCheckIn(context.Background(), "b1", "654321"); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/api/bookings/b1/checkin" {
		t.Errorf("path = %s", gotPath)
	}
	if gotCode != "654321" {
		t.Errorf("code = %s", gotCode)
	}
}

func TestCheckCodeRejectsBadCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["code"] != "123456" {
			http.Error(w, "invalid code", http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	if err := c.CheckCode(context.Background(), "o1", "123456"); err != nil {
		t.Fatal(err)
	}
	if err := c.CheckCode(context.Background(), "o1", "000000"); err == nil {
		t.Fatal("want error for bad code")
	}
}

func TestContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := NewClient(srv.URL, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.FetchOrder(ctx, "o1"); err == nil {
		t.Fatal("want error on cancelled context")
	}
}
