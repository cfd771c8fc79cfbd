package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marketlink/orders"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("store: not found")

// StoredOrder is an order row plus its owner.
type StoredOrder struct {
	orders.Order
	UserID int64
}

func (db *DB) CreateOrder(o *StoredOrder) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	status := o.Status
	if status == "" {
		status = orders.StatusPending
	}
	delivery := o.DeliveryStatus
	if delivery == "" {
		delivery = orders.DeliveryPending
	}
	payment := o.PaymentStatus
	if payment == "" {
		payment = orders.PaymentPending
	}
	_, err = db.Exec(db.Q(`INSERT INTO orders (id, user_id, status, delivery_status, payment_status, items) VALUES (?, ?, ?, ?, ?, ?)`),
		o.ID, o.UserID, status, delivery, payment, string(items))
	return err
}

func (db *DB) GetOrder(id string) (*StoredOrder, error) {
	row := db.QueryRow(db.Q(`SELECT id, user_id, status, delivery_status, payment_status, items, updated_at FROM orders WHERE id=?`), id)
	return scanOrder(row)
}

func (db *DB) ListOrdersByUser(userID int64) ([]*StoredOrder, error) {
	rows, err := db.Query(db.Q(`SELECT id, user_id, status, delivery_status, payment_status, items, updated_at FROM orders WHERE user_id=? ORDER BY created_at`), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (db *DB) ListOrders() ([]*StoredOrder, error) {
	rows, err := db.Query(db.Q(`SELECT id, user_id, status, delivery_status, payment_status, items, updated_at FROM orders ORDER BY created_at`))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*StoredOrder, error) {
	var o StoredOrder
	var items string
	var updatedAt any
	err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.DeliveryStatus, &o.PaymentStatus, &items, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	o.UpdatedAt = parseTime(updatedAt)
	return &o, nil
}

func collectOrders(rows *sql.Rows) ([]*StoredOrder, error) {
	var out []*StoredOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// History track names, shared with the coordinator's wire vocabulary.
const (
	TrackStatus   = orders.TrackStatus
	TrackDelivery = orders.TrackDelivery
	TrackPayment  = orders.TrackPayment
)

// UpdateOrderStatus validates the transition against the shared tables,
// applies it, and appends a history row, all in one transaction.
func (db *DB) UpdateOrderStatus(id, track, newStatus string) (*StoredOrder, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	o, err := scanOrder(tx.QueryRow(db.Q(`SELECT id, user_id, status, delivery_status, payment_status, items, updated_at FROM orders WHERE id=?`), id))
	if err != nil {
		return nil, err
	}

	var column, old string
	var valid bool
	switch track {
	case TrackStatus:
		column, old = "status", o.Status
		valid = orders.IsValidTransition(old, newStatus)
		o.Status = newStatus
	case TrackDelivery:
		column, old = "delivery_status", o.DeliveryStatus
		valid = orders.IsValidDeliveryTransition(old, newStatus)
		if valid && newStatus == orders.DeliveryDelivered && o.Status != orders.StatusCompleted {
			return nil, fmt.Errorf("%w: delivery requires completed order", orders.ErrPreconditionFailed)
		}
		o.DeliveryStatus = newStatus
	case TrackPayment:
		column, old = "payment_status", o.PaymentStatus
		valid = orders.IsValidPaymentTransition(old, newStatus)
		o.PaymentStatus = newStatus
	default:
		return nil, fmt.Errorf("unknown track: %s", track)
	}
	if !valid {
		return nil, fmt.Errorf("%w: %s %s -> %s", orders.ErrInvalidTransition, track, old, newStatus)
	}

	now := time.Now().UTC().Truncate(time.Second)
	if _, err := tx.Exec(db.Q(fmt.Sprintf(`UPDATE orders SET %s=?, updated_at=? WHERE id=?`, column)), newStatus, now.Format("2006-01-02 15:04:05"), id); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(db.Q(`INSERT INTO order_history (order_id, track, old_status, new_status) VALUES (?, ?, ?, ?)`),
		id, track, old, newStatus); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	o.UpdatedAt = now
	return o, nil
}

// HistoryEntry is one recorded transition.
type HistoryEntry struct {
	OrderID   string
	Track     string
	OldStatus string
	NewStatus string
}

func (db *DB) OrderHistory(orderID string) ([]HistoryEntry, error) {
	rows, err := db.Query(db.Q(`SELECT order_id, track, old_status, new_status FROM order_history WHERE order_id=? ORDER BY id`), orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.OrderID, &h.Track, &h.OldStatus, &h.NewStatus); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
