package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestResetStore(t *testing.T) (*resetStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return newResetStore(client), mr
}

func TestResetConsumeOnce(t *testing.T) {
	s, mr := newTestResetStore(t)
	ctx := context.Background()
	now := time.Now()

	rec := &resetRecord{UserID: "user-1", ExpiresAt: now.Add(15 * time.Minute).Unix()}
	if err := s.Save(ctx, "txn-1", rec, 15*time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Consume(ctx, "txn-1", now)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if got.UserID != "user-1" {
		t.Fatalf("UserID = %q", got.UserID)
	}

	// The tombstone distinguishes a replay from a never-issued id.
	if !mr.Exists("apr:c:txn-1") {
		t.Fatalf("consumed tombstone missing")
	}
	if _, err := s.Consume(ctx, "txn-1", now); !errors.Is(err, errResetConsumed) {
		t.Fatalf("replay err = %v, want errResetConsumed", err)
	}
	if _, err := s.Consume(ctx, "txn-other", now); !errors.Is(err, errResetNotFound) {
		t.Fatalf("unknown err = %v, want errResetNotFound", err)
	}
}

func TestResetConsumeExpired(t *testing.T) {
	s, _ := newTestResetStore(t)
	ctx := context.Background()
	now := time.Now()

	rec := &resetRecord{UserID: "user-1", ExpiresAt: now.Add(15 * time.Minute).Unix()}
	if err := s.Save(ctx, "txn-1", rec, 15*time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}

	later := now.Add(20 * time.Minute)
	if _, err := s.Consume(ctx, "txn-1", later); !errors.Is(err, errResetExpired) {
		t.Fatalf("err = %v, want errResetExpired", err)
	}
}

func TestResetConcurrentConsumeSingleWinner(t *testing.T) {
	s, _ := newTestResetStore(t)
	ctx := context.Background()
	now := time.Now()

	rec := &resetRecord{UserID: "user-1", ExpiresAt: now.Add(15 * time.Minute).Unix()}
	if err := s.Save(ctx, "txn-1", rec, 15*time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}

	const workers = 8

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		consumed int
	)

	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			_, err := s.Consume(ctx, "txn-1", now)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, errResetConsumed):
				consumed++
			default:
				t.Errorf("unexpected consume error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if winners != 1 {
		t.Fatalf("winners = %d consumed = %d, want exactly 1", winners, consumed)
	}
}

func TestResetGet(t *testing.T) {
	s, _ := newTestResetStore(t)
	ctx := context.Background()
	now := time.Now()

	rec := &resetRecord{UserID: "user-1", ExpiresAt: now.Add(15 * time.Minute).Unix()}
	if err := s.Save(ctx, "txn-1", rec, 15*time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get(ctx, "txn-1", now)
	if err != nil || got.UserID != "user-1" {
		t.Fatalf("Get = %+v err = %v", got, err)
	}
	if _, err := s.Get(ctx, "txn-1", now.Add(time.Hour)); !errors.Is(err, errResetExpired) {
		t.Fatalf("expired Get err = %v, want errResetExpired", err)
	}
	if _, err := s.Get(ctx, "missing", now); !errors.Is(err, errResetNotFound) {
		t.Fatalf("missing Get err = %v, want errResetNotFound", err)
	}
}
