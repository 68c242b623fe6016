package api

import (
	"context"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/Adarsh9315/task-palette-organize/board"
)

const subscriberBuffer = 16

func boardChannel(boardID string) string { return "board-events:" + boardID }

// RedisBroadcaster fans settlements out to every instance through Redis
// pub/sub so stream clients see writes made elsewhere.
type RedisBroadcaster struct {
	client *redis.Client
	logger *log.Logger
}

func NewRedisBroadcaster(client *redis.Client, logger *log.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, logger: logger}
}

// Publish sends each settlement on its board channel.
func (b *RedisBroadcaster) Publish(ctx context.Context, events []board.Settlement) error {
	for _, ev := range events {
		data, err := sonic.Marshal(ev)
		if err != nil {
			return err
		}
		if err := b.client.Publish(ctx, boardChannel(ev.BoardID), data).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe streams the settlements of boardID until ctx ends. Slow readers
// miss events rather than blocking the subscription.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, boardID string) (<-chan board.Settlement, error) {
	sub := b.client.Subscribe(ctx, boardChannel(boardID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	out := make(chan board.Settlement, subscriberBuffer)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev board.Settlement
				if err := sonic.UnmarshalString(msg.Payload, &ev); err != nil {
					b.logger.WithError(err).WithField("board", boardID).Warn("dropping malformed board event")
					continue
				}
				select {
				case out <- ev:
				default:
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// LocalBroadcaster delivers settlements to subscribers of this process only.
// It serves single-instance deployments without Redis.
type LocalBroadcaster struct {
	mu   sync.Mutex
	subs map[string]map[chan board.Settlement]struct{}
}

func NewLocalBroadcaster() *LocalBroadcaster {
	return &LocalBroadcaster{subs: make(map[string]map[chan board.Settlement]struct{})}
}

func (b *LocalBroadcaster) Publish(_ context.Context, events []board.Settlement) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ev := range events {
		for ch := range b.subs[ev.BoardID] {
			select {
			case ch <- ev:
			default:
			}
		}
	}
	return nil
}

func (b *LocalBroadcaster) Subscribe(ctx context.Context, boardID string) (<-chan board.Settlement, error) {
	ch := make(chan board.Settlement, subscriberBuffer)
	b.mu.Lock()
	if b.subs[boardID] == nil {
		b.subs[boardID] = make(map[chan board.Settlement]struct{})
	}
	b.subs[boardID][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.subs[boardID]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(b.subs, boardID)
			}
		}
		close(ch)
	}()
	return ch, nil
}
