package api

import (
	"context"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Adarsh9315/task-palette-organize/board"
)

func receive(t *testing.T, ch <-chan board.Settlement) board.Settlement {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatalf("subscription closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for settlement")
	}
	return board.Settlement{}
}

func TestLocalBroadcasterDeliversPerBoard(t *testing.T) {
	b := NewLocalBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch1, _ := b.Subscribe(ctx, "b1")
	ch2, _ := b.Subscribe(ctx, "b2")
	events := []board.Settlement{
		{BoardID: "b1", Seq: 1, State: board.Committed},
		{BoardID: "b2", Seq: 2, State: board.RolledBack},
	}
	if err := b.Publish(ctx, events); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if ev := receive(t, ch1); ev.Seq != 1 {
		t.Fatalf("unexpected event for b1: %#v", ev)
	}
	if ev := receive(t, ch2); ev.Seq != 2 || ev.State != board.RolledBack {
		t.Fatalf("unexpected event for b2: %#v", ev)
	}
}

func TestLocalBroadcasterUnsubscribesOnCancel(t *testing.T) {
	b := NewLocalBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, "b1")
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("subscription not closed")
	}
	b.mu.Lock()
	n := len(b.subs)
	b.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected subscriber map to be empty, got %d", n)
	}
	if err := b.Publish(context.Background(), []board.Settlement{{BoardID: "b1"}}); err != nil {
		t.Fatalf("publish after cancel: %v", err)
	}
}

func TestRedisBroadcasterRoundTrip(t *testing.T) {
	_, client := newMiniredisClient(t)
	b := NewRedisBroadcaster(client, log.New())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx, "b1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sent := board.Settlement{
		BoardID:        "b1",
		Seq:            7,
		IdempotencyKey: "k7",
		Kind:           board.KindTask,
		Op:             board.OpCreate,
		EntityID:       "t-1",
		TempID:         board.TempIDPrefix + "1",
		State:          board.Committed,
	}
	if err := b.Publish(ctx, []board.Settlement{{BoardID: "b2", Seq: 1}, sent}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got := receive(t, ch)
	if got != sent {
		t.Fatalf("unexpected settlement: %#v", got)
	}
}
