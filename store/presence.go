package store

import (
	"time"
)

// PresenceEntry is a connected user's durable presence record, the SQL
// fallback behind the Redis layer.
type PresenceEntry struct {
	UserID   string
	NodeID   string
	LastSeen time.Time
}

func (db *DB) UpsertPresence(userID, nodeID string) error {
	res, err := db.Exec(db.Q(`UPDATE presence SET node_id=?, last_seen=datetime('now') WHERE user_id=?`), nodeID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = db.Exec(db.Q(`INSERT INTO presence (user_id, node_id) VALUES (?, ?)`), userID, nodeID)
	return err
}

func (db *DB) DeletePresence(userID string) error {
	_, err := db.Exec(db.Q(`DELETE FROM presence WHERE user_id=?`), userID)
	return err
}

func (db *DB) ListPresence(since time.Duration) ([]PresenceEntry, error) {
	cutoff := time.Now().UTC().Add(-since).Format("2006-01-02 15:04:05")
	rows, err := db.Query(db.Q(`SELECT user_id, node_id, last_seen FROM presence WHERE last_seen > ?`), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PresenceEntry
	for rows.Next() {
		var p PresenceEntry
		var lastSeen any
		if err := rows.Scan(&p.UserID, &p.NodeID, &lastSeen); err != nil {
			return nil, err
		}
		p.LastSeen = parseTime(lastSeen)
		out = append(out, p)
	}
	return out, rows.Err()
}
