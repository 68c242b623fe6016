package api

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("redis close: %v", cerr)
		}
	})
	return m, client
}

func TestRedisDeduperAddMany(t *testing.T) {
	_, client := newMiniredisClient(t)
	deduper := NewRedisDeduper(client, time.Minute)
	ctx := context.Background()
	keys := []string{"k1", "k2", "k3"}

	first, err := deduper.AddMany(ctx, "b1", keys)
	if err != nil {
		t.Fatalf("add many: %v", err)
	}
	for i, added := range first {
		if !added {
			t.Fatalf("expected key %d to be added", i)
		}
	}

	second, err := deduper.AddMany(ctx, "b1", []string{"k1", "k4"})
	if err != nil {
		t.Fatalf("second add many: %v", err)
	}
	if second[0] || !second[1] {
		t.Fatalf("unexpected second results: %v", second)
	}
}

func TestRedisDeduperKeysAreScopedPerBoard(t *testing.T) {
	m, client := newMiniredisClient(t)
	deduper := NewRedisDeduper(client, time.Minute)
	ctx := context.Background()

	if _, err := deduper.AddMany(ctx, "b1", []string{"k"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	added, err := deduper.AddMany(ctx, "b2", []string{"k"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !added[0] {
		t.Fatalf("expected key on another board to be new")
	}
	if !m.Exists("dedupe:b1:k") || !m.Exists("dedupe:b2:k") {
		t.Fatalf("expected namespaced keys, got %v", m.Keys())
	}
	if ttl := m.TTL("dedupe:b1:k"); ttl != time.Minute {
		t.Fatalf("unexpected ttl: %v", ttl)
	}
}

func TestRedisDeduperRemoveAllowsRetry(t *testing.T) {
	_, client := newMiniredisClient(t)
	deduper := NewRedisDeduper(client, time.Minute)
	ctx := context.Background()

	if _, err := deduper.AddMany(ctx, "b1", []string{"k"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := deduper.Remove(ctx, "b1", "k"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	added, err := deduper.AddMany(ctx, "b1", []string{"k"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !added[0] {
		t.Fatalf("expected removed key to be accepted again")
	}
}

func TestRedisDeduperEmpty(t *testing.T) {
	_, client := newMiniredisClient(t)
	got, err := NewRedisDeduper(client, time.Minute).AddMany(context.Background(), "b1", nil)
	if err != nil || got != nil {
		t.Fatalf("expected nil result, got %v, %v", got, err)
	}
}
