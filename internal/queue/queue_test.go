package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, "")
}

type payload struct {
	Value string `json:"value"`
}

func TestPushPopOrdering(t *testing.T) {
	t.Parallel()
	q := newTestQueue(t)
	ctx := context.Background()

	if err := q.Push(ctx, payload{Value: "first"}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if err := q.Push(ctx, payload{Value: "second"}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	for _, want := range []string{"first", "second"} {
		raw, err := q.Pop(ctx, time.Second)
		if err != nil {
			t.Fatalf("Pop() error = %v", err)
		}
		var got payload
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatalf("unmarshal popped payload: %v", err)
		}
		if got.Value != want {
			t.Errorf("Pop() = %q, want %q (FIFO order)", got.Value, want)
		}
	}
}

func TestPopEmpty(t *testing.T) {
	t.Parallel()
	q := newTestQueue(t)

	_, err := q.Pop(context.Background(), 50*time.Millisecond)
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("Pop() error = %v, want ErrEmpty", err)
	}
}

func TestLen(t *testing.T) {
	t.Parallel()
	q := newTestQueue(t)
	ctx := context.Background()

	if err := q.Push(ctx, payload{Value: "a"}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if err := q.Push(ctx, payload{Value: "b"}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	n, err := q.Len(ctx)
	if err != nil {
		t.Fatalf("Len() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Len() = %d, want 2", n)
	}
}

func TestDefaultName(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := New(client, "")
	if q.name != "message_queue" {
		t.Errorf("name = %q, want %q", q.name, "message_queue")
	}
}
