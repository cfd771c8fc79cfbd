package store

import "time"

// Challenge audit outcomes.
const (
	OTPIssued   = "issued"
	OTPAccepted = "accepted"
	OTPRejected = "rejected"
)

// OTPEvent is one row of the challenge audit journal.
type OTPEvent struct {
	ID        int64     `json:"id"`
	TargetID  string    `json:"target_id"`
	Outcome   string    `json:"outcome"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordOTPEvent appends an audit row for a challenge against a target.
// Codes themselves are never stored.
func (db *DB) RecordOTPEvent(targetID, outcome string) error {
	_, err := db.Exec(db.Q(`INSERT INTO otp_challenges (target_id, outcome) VALUES (?, ?)`),
		targetID, outcome)
	return err
}

// OTPHistory returns a target's challenge audit trail, oldest first.
func (db *DB) OTPHistory(targetID string) ([]OTPEvent, error) {
	rows, err := db.Query(db.Q(`SELECT id, target_id, outcome, created_at FROM otp_challenges WHERE target_id=? ORDER BY id`),
		targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OTPEvent
	for rows.Next() {
		var e OTPEvent
		var createdAt any
		if err := rows.Scan(&e.ID, &e.TargetID, &e.Outcome, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
