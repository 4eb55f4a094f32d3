package redis

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/prober-service/internal/repository"
)

// newTestClient connects to REDIS_TEST_ADDR and flushes the selected database.
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLockKeyIsScopedByStore(t *testing.T) {
	a := lockKey("postgres://db-a")
	b := lockKey("postgres://db-b")
	if a == b {
		t.Fatal("different stores share a lock key")
	}
	if !strings.HasPrefix(a, runLockPrefix) {
		t.Fatalf("key %q missing prefix %q", a, runLockPrefix)
	}
	if a != lockKey("postgres://db-a") {
		t.Fatal("lock key is not stable")
	}
}

func TestRunLockExclusive(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	lock := NewRunLock(client, "sqlite:test")

	ok, err := lock.Acquire(ctx, "run-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first Acquire = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = lock.Acquire(ctx, "run-2", time.Minute)
	if err != nil || ok {
		t.Fatalf("second Acquire = (%v, %v), want (false, nil)", ok, err)
	}
	if err := lock.Refresh(ctx, "run-2", time.Minute); !errors.Is(err, repository.ErrLockLost) {
		t.Fatalf("Refresh by non-owner = %v, want ErrLockLost", err)
	}
	if err := lock.Release(ctx, "run-2"); err != nil {
		t.Fatalf("Release by non-owner: %v", err)
	}
	if err := lock.Refresh(ctx, "run-1", time.Minute); err != nil {
		t.Fatalf("Refresh by owner: %v", err)
	}
	if err := lock.Release(ctx, "run-1"); err != nil {
		t.Fatalf("Release by owner: %v", err)
	}
	ok, err = lock.Acquire(ctx, "run-2", time.Minute)
	if err != nil || !ok {
		t.Fatalf("Acquire after release = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestQueueFIFOAndDrain(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	q := NewQueueRepo(client)

	if err := q.Push(ctx, "a", "b"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := q.Push(ctx, "c"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if n, _ := q.Size(ctx); n != 3 {
		t.Fatalf("Size = %d, want 3", n)
	}

	got, err := q.Candidates(ctx, 2)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if strings.Join(got, ",") != "a,b" {
		t.Fatalf("Candidates(2) = %v, want [a b]", got)
	}
	rest, err := q.Candidates(ctx, 0)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if strings.Join(rest, ",") != "c" {
		t.Fatalf("Candidates(0) = %v, want [c]", rest)
	}
	if _, err := q.Pop(ctx); !errors.Is(err, redis.Nil) {
		t.Fatalf("Pop on empty queue = %v, want redis.Nil", err)
	}
}
