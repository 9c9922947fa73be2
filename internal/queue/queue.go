// Package queue is the durable transport between collectors and the
// republisher: a single Redis list, pushed to by LPUSH and drained by RPOP so
// that messages are delivered in the order they were enqueued (§5, §6).
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned by Pop when the queue currently has no messages.
var ErrEmpty = errors.New("queue: empty")

// Queue wraps a single named Redis list.
type Queue struct {
	rdb  *redis.Client
	name string
}

// New returns a Queue bound to the given list key, defaulting to
// "message_queue" when name is empty.
func New(rdb *redis.Client, name string) *Queue {
	if name == "" {
		name = "message_queue"
	}
	return &Queue{rdb: rdb, name: name}
}

// Push marshals payload as JSON and appends it to the queue.
func (q *Queue) Push(ctx context.Context, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal queue payload: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.name, data).Err(); err != nil {
		return fmt.Errorf("push to %s: %w", q.name, err)
	}
	return nil
}

// Pop removes and returns the oldest raw payload in the queue, blocking for
// up to timeout. It returns ErrEmpty if nothing arrived within that window.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	result, err := q.rdb.BRPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("pop from %s: %w", q.name, err)
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("pop from %s: unexpected reply shape %v", q.name, result)
	}
	return []byte(result[1]), nil
}

// Len reports how many payloads are currently queued.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.name).Result()
	if err != nil {
		return 0, fmt.Errorf("length of %s: %w", q.name, err)
	}
	return n, nil
}
