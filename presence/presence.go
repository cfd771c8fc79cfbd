// Package presence tracks which users are connected and on which hub node.
// Write-through: SQL first for durability, then Redis with a TTL for fast
// cross-node lookups. Without Redis the SQL fallback serves reads alone.
package presence

import (
	"context"
	"log"
	"time"

	"marketlink/store"
)

// Manager provides write-through presence management.
type Manager struct {
	db     *store.DB
	redis  *RedisStore
	nodeID string
	ttl    time.Duration
}

func NewManager(db *store.DB, redis *RedisStore, nodeID string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &Manager{db: db, redis: redis, nodeID: nodeID, ttl: ttl}
}

// Connected records a user as online on this node.
func (m *Manager) Connected(ctx context.Context, userID string) error {
	if err := m.db.UpsertPresence(userID, m.nodeID); err != nil {
		return err
	}
	if m.redis != nil {
		if err := m.redis.Set(ctx, userID, m.nodeID, m.ttl); err != nil {
			log.Printf("presence: redis set %s: %v", userID, err)
		}
	}
	return nil
}

// Heartbeat refreshes a connected user's liveness.
func (m *Manager) Heartbeat(ctx context.Context, userID string) error {
	if err := m.db.UpsertPresence(userID, m.nodeID); err != nil {
		return err
	}
	if m.redis != nil {
		if err := m.redis.Refresh(ctx, userID, m.ttl); err != nil {
			log.Printf("presence: redis refresh %s: %v", userID, err)
		}
	}
	return nil
}

// Disconnected removes a user's presence record.
func (m *Manager) Disconnected(ctx context.Context, userID string) error {
	if err := m.db.DeletePresence(userID); err != nil {
		return err
	}
	if m.redis != nil {
		if err := m.redis.Delete(ctx, userID); err != nil {
			log.Printf("presence: redis delete %s: %v", userID, err)
		}
	}
	return nil
}

// Lookup returns the node a user is connected to, or "" when offline. Redis
// answers when available; the SQL fallback bounds staleness by the TTL.
func (m *Manager) Lookup(ctx context.Context, userID string) (string, error) {
	if m.redis != nil {
		node, err := m.redis.Get(ctx, userID)
		if err == nil {
			return node, nil
		}
		log.Printf("presence: redis lookup %s: %v, falling back to sql", userID, err)
	}
	entries, err := m.db.ListPresence(m.ttl)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.UserID == userID {
			return e.NodeID, nil
		}
	}
	return "", nil
}

// Rebuild repopulates Redis from the SQL fallback table. Called on startup
// so a restarted node's live entries survive a cold Redis.
func (m *Manager) Rebuild(ctx context.Context) error {
	if m.redis == nil {
		return nil
	}
	entries, err := m.db.ListPresence(m.ttl)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := m.redis.Set(ctx, e.UserID, e.NodeID, m.ttl); err != nil {
			log.Printf("presence: rebuild %s: %v", e.UserID, err)
		}
	}
	if len(entries) > 0 {
		log.Printf("presence: rebuilt %d redis entries from sql", len(entries))
	}
	return nil
}

// Online returns all users currently considered online.
func (m *Manager) Online(ctx context.Context) ([]store.PresenceEntry, error) {
	return m.db.ListPresence(m.ttl)
}
