package store

import (
	"database/sql"
	"errors"
	"time"
)

// User is a platform account: attendee, organizer, or courier.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

func (db *DB) GetUser(username string) (*User, error) {
	u := &User{}
	var createdAt any
	err := db.QueryRow(db.Q(`SELECT id, username, password_hash, display_name, role, created_at FROM users WHERE username=?`), username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.DisplayName, &u.Role, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = parseTime(createdAt)
	return u, nil
}

func (db *DB) CreateUser(username, passwordHash, displayName, role string) (int64, error) {
	if db.driver == "postgres" {
		var id int64
		err := db.QueryRow(db.Q(`INSERT INTO users (username, password_hash, display_name, role) VALUES (?, ?, ?, ?) RETURNING id`),
			username, passwordHash, displayName, role).Scan(&id)
		return id, err
	}
	res, err := db.Exec(db.Q(`INSERT INTO users (username, password_hash, display_name, role) VALUES (?, ?, ?, ?)`),
		username, passwordHash, displayName, role)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (db *DB) UserExists() (bool, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
	return count > 0, err
}
