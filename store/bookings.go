package store

import (
	"database/sql"
	"errors"
	"fmt"

	"marketlink/orders"
)

// StoredBooking is a booking row plus its owner.
type StoredBooking struct {
	orders.Booking
	UserID int64
}

func (db *DB) CreateBooking(b *StoredBooking) error {
	status := b.Status
	if status == "" {
		status = orders.BookingPending
	}
	_, err := db.Exec(db.Q(`INSERT INTO bookings (id, user_id, event_id, qr_code, status) VALUES (?, ?, ?, ?, ?)`),
		b.ID, b.UserID, b.EventID, b.QRCode, status)
	return err
}

func (db *DB) GetBooking(id string) (*StoredBooking, error) {
	var b StoredBooking
	var updatedAt any
	err := db.QueryRow(db.Q(`SELECT id, user_id, event_id, qr_code, status, updated_at FROM bookings WHERE id=?`), id).
		Scan(&b.ID, &b.UserID, &b.EventID, &b.QRCode, &b.Status, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.UpdatedAt = parseTime(updatedAt)
	return &b, nil
}

func (db *DB) ListBookingsByUser(userID int64) ([]*StoredBooking, error) {
	rows, err := db.Query(db.Q(`SELECT id, user_id, event_id, qr_code, status, updated_at FROM bookings WHERE user_id=? ORDER BY created_at`), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*StoredBooking
	for rows.Next() {
		var b StoredBooking
		var updatedAt any
		if err := rows.Scan(&b.ID, &b.UserID, &b.EventID, &b.QRCode, &b.Status, &updatedAt); err != nil {
			return nil, err
		}
		b.UpdatedAt = parseTime(updatedAt)
		out = append(out, &b)
	}
	return out, rows.Err()
}

// CheckInBooking flips a booking to CHECKED_IN exactly once. The conditional
// update makes concurrent scans race-safe: only one wins, the rest get
// ErrInvalidTransition.
func (db *DB) CheckInBooking(id string) error {
	res, err := db.Exec(db.Q(`UPDATE bookings SET status=?, updated_at=datetime('now') WHERE id=? AND status=?`),
		orders.BookingCheckedIn, id, orders.BookingPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := db.GetBooking(id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: booking already checked in", orders.ErrInvalidTransition)
	}
	return nil
}
