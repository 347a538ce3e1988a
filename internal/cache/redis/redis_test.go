package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/alanyoungcy/triarbot/internal/domain"
	"github.com/google/uuid"
)

// testClient connects to the Redis named by TRIARB_TEST_REDIS_ADDR or skips.
func testClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("TRIARB_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TRIARB_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := New(ctx, ClientConfig{Addr: addr, PoolSize: 4})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewRejectsEmptyAddr(t *testing.T) {
	if _, err := New(context.Background(), ClientConfig{}); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func TestLockManager(t *testing.T) {
	c := testClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	unlock, err := lm.Acquire(ctx, key, 10*time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := lm.Acquire(ctx, key, 10*time.Second); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("second acquire err = %v, want ErrLockHeld", err)
	}
	unlock()
	unlock()

	unlock2, err := lm.Acquire(ctx, key, 10*time.Second)
	if err != nil {
		t.Fatalf("acquire after unlock: %v", err)
	}
	unlock2()
}

func TestEventBusStream(t *testing.T) {
	c := testClient(t)
	bus := NewEventBus(c, 100)
	ctx := context.Background()
	stream := "test:events:" + uuid.NewString()
	t.Cleanup(func() { _ = c.rdb.Del(context.Background(), stream).Err() })

	msgs, err := bus.StreamRead(ctx, stream, "", 10)
	if err != nil || len(msgs) != 0 {
		t.Fatalf("empty stream read = %v, %v", msgs, err)
	}

	for _, p := range []string{"a", "b", "c"} {
		if err := bus.StreamAppend(ctx, stream, []byte(p)); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err = bus.StreamRead(ctx, stream, "0-0", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || string(msgs[0].Payload) != "a" || string(msgs[1].Payload) != "b" {
		t.Fatalf("read = %+v", msgs)
	}

	rest, err := bus.StreamRead(ctx, stream, msgs[1].ID, 10)
	if err != nil || len(rest) != 1 || string(rest[0].Payload) != "c" {
		t.Fatalf("read after = %+v, %v", rest, err)
	}

	latest, err := bus.StreamLatest(ctx, stream, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 2 || string(latest[0].Payload) != "b" || string(latest[1].Payload) != "c" {
		t.Fatalf("latest = %+v", latest)
	}

	if err := bus.Publish(ctx, stream+":live", []byte("x")); err != nil {
		t.Fatalf("publish: %v", err)
	}
}
