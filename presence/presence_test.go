package presence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"marketlink/config"
	"marketlink/store"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	db, err := store.Open(&config.StoreConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewManager(db, nil, "hub-1", time.Minute)
}

func TestConnectLookupDisconnect(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	if err := m.Connected(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	node, err := m.Lookup(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if node != "hub-1" {
		t.Errorf("node = %q, want hub-1", node)
	}

	online, err := m.Online(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(online) != 1 || online[0].UserID != "u1" {
		t.Errorf("online = %+v", online)
	}

	if err := m.Disconnected(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	node, _ = m.Lookup(ctx, "u1")
	if node != "" {
		t.Errorf("node after disconnect = %q, want empty", node)
	}
}

func TestLookupUnknownUser(t *testing.T) {
	m := testManager(t)
	node, err := m.Lookup(context.Background(), "ghost")
	if err != nil {
		t.Fatal(err)
	}
	if node != "" {
		t.Errorf("node = %q, want empty", node)
	}
}

func TestRebuildWithoutRedisIsNoop(t *testing.T) {
	m := testManager(t)
	if err := m.Connected(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	if err := m.Rebuild(context.Background()); err != nil {
		t.Fatal(err)
	}
}
