package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client, cfg), mr
}

func TestLoginBudget(t *testing.T) {
	l, _ := newTestLimiter(t, Config{
		MaxLoginAttempts:      3,
		LoginCooldownDuration: time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.CheckLogin(ctx, "a@b.c", ""); err != nil {
			t.Fatalf("attempt %d blocked early: %v", i, err)
		}
		if err := l.IncrementLogin(ctx, "a@b.c", ""); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}

	if err := l.IncrementLogin(ctx, "a@b.c", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if err := l.CheckLogin(ctx, "a@b.c", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("check err = %v, want ErrRateLimited", err)
	}
}

func TestLoginBudgetExpiresWithWindow(t *testing.T) {
	l, mr := newTestLimiter(t, Config{
		MaxLoginAttempts:      1,
		LoginCooldownDuration: time.Minute,
	})
	ctx := context.Background()

	_ = l.IncrementLogin(ctx, "a@b.c", "")
	_ = l.IncrementLogin(ctx, "a@b.c", "")
	if err := l.CheckLogin(ctx, "a@b.c", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected limit before window expiry, got %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if err := l.CheckLogin(ctx, "a@b.c", ""); err != nil {
		t.Fatalf("window expiry did not clear limit: %v", err)
	}
}

func TestResetLoginClearsCounters(t *testing.T) {
	l, _ := newTestLimiter(t, Config{
		EnableIPThrottle:      true,
		MaxLoginAttempts:      1,
		LoginCooldownDuration: time.Minute,
	})
	ctx := context.Background()

	_ = l.IncrementLogin(ctx, "a@b.c", "10.0.0.1")
	_ = l.IncrementLogin(ctx, "a@b.c", "10.0.0.1")

	if err := l.ResetLogin(ctx, "a@b.c", "10.0.0.1"); err != nil {
		t.Fatalf("ResetLogin: %v", err)
	}
	if err := l.CheckLogin(ctx, "a@b.c", "10.0.0.1"); err != nil {
		t.Fatalf("counters survived reset: %v", err)
	}

	n, err := l.GetLoginAttempts(ctx, "a@b.c")
	if err != nil || n != 0 {
		t.Fatalf("attempts = %d err = %v", n, err)
	}
}

func TestIPThrottleIndependentOfEmail(t *testing.T) {
	l, _ := newTestLimiter(t, Config{
		EnableIPThrottle:      true,
		MaxLoginAttempts:      2,
		LoginCooldownDuration: time.Minute,
	})
	ctx := context.Background()

	// different emails, same IP
	_ = l.IncrementLogin(ctx, "a@b.c", "10.0.0.9")
	_ = l.IncrementLogin(ctx, "x@y.z", "10.0.0.9")
	if err := l.IncrementLogin(ctx, "q@r.s", "10.0.0.9"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("IP budget not enforced: %v", err)
	}
}

func TestRefreshBudget(t *testing.T) {
	l, _ := newTestLimiter(t, Config{
		EnableRefreshThrottle:   true,
		MaxRefreshAttempts:      2,
		RefreshCooldownDuration: time.Minute,
	})
	ctx := context.Background()

	if err := l.CheckRefresh(ctx, "tok-1"); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if err := l.CheckRefresh(ctx, "tok-1"); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if err := l.CheckRefresh(ctx, "tok-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}

func TestRefreshThrottleDisabled(t *testing.T) {
	l, _ := newTestLimiter(t, Config{})
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if err := l.CheckRefresh(ctx, "tok-1"); err != nil {
			t.Fatalf("disabled throttle blocked: %v", err)
		}
	}
}
