package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewStore(client, "rt"), mr
}

func newTestRecord(t *testing.T, userID string, now time.Time, ttl time.Duration) (*Record, [32]byte) {
	t.Helper()

	var id [16]byte
	if _, err := rand.Read(id[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}
	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}

	rec := &Record{
		TokenID:    base64.RawURLEncoding.EncodeToString(id[:]),
		UserID:     userID,
		SecretHash: sha256.Sum256(secret[:]),
		IssuedAt:   now.Unix(),
		ExpiresAt:  now.Add(ttl).Unix(),
	}
	return rec, rec.SecretHash
}

func TestIssueAndGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	rec, _ := newTestRecord(t, "user-1", now, time.Hour)
	if err := store.Issue(ctx, rec, time.Hour); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	got, err := store.Get(ctx, rec.TokenID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.UserID != "user-1" {
		t.Fatalf("UserID = %q", got.UserID)
	}
	if got.SecretHash != rec.SecretHash {
		t.Fatal("secret hash mismatch after round trip")
	}

	ids, err := store.ActiveTokenIDs(ctx, "user-1")
	if err != nil {
		t.Fatalf("ActiveTokenIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != rec.TokenID {
		t.Fatalf("live set = %v", ids)
	}
}

func TestRotateRetiresOldAndInstallsNext(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	old, oldHash := newTestRecord(t, "user-1", now, time.Hour)
	if err := store.Issue(ctx, old, time.Hour); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	next, _ := newTestRecord(t, "user-1", now, time.Hour)
	uid, err := store.Rotate(ctx, old.TokenID, oldHash, next, time.Hour, time.Hour, now)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if uid != "user-1" {
		t.Fatalf("rotate uid = %q", uid)
	}

	if _, err := store.Get(ctx, old.TokenID); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("old record still readable: %v", err)
	}
	if !mr.Exists("rt:d:" + old.TokenID) {
		t.Fatal("tombstone missing for retired id")
	}
	if _, err := store.Get(ctx, next.TokenID); err != nil {
		t.Fatalf("next record not installed: %v", err)
	}

	ids, err := store.ActiveTokenIDs(ctx, "user-1")
	if err != nil {
		t.Fatalf("ActiveTokenIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != next.TokenID {
		t.Fatalf("live set after rotate = %v", ids)
	}
}

func TestRotateUnknownID(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	next, hash := newTestRecord(t, "user-1", now, time.Hour)
	if _, err := store.Rotate(ctx, "nope", hash, next, time.Hour, time.Hour, now); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("err = %v, want ErrRecordNotFound", err)
	}
}

func TestRotateExpiredRecord(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	old, oldHash := newTestRecord(t, "user-1", now, 5*time.Minute)
	if err := store.Issue(ctx, old, time.Hour); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	later := now.Add(6 * time.Minute)
	next, _ := newTestRecord(t, "user-1", later, time.Hour)
	if _, err := store.Rotate(ctx, old.TokenID, oldHash, next, time.Hour, time.Hour, later); !errors.Is(err, ErrRecordExpired) {
		t.Fatalf("err = %v, want ErrRecordExpired", err)
	}

	if _, err := store.Get(ctx, old.TokenID); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expired record not cleaned up: %v", err)
	}
}

func TestRotateWrongSecretDestroysRecord(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	old, _ := newTestRecord(t, "user-1", now, time.Hour)
	if err := store.Issue(ctx, old, time.Hour); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var wrong [32]byte
	next, _ := newTestRecord(t, "user-1", now, time.Hour)
	if _, err := store.Rotate(ctx, old.TokenID, wrong, next, time.Hour, time.Hour, now); !errors.Is(err, ErrHashMismatch) {
		t.Fatalf("err = %v, want ErrHashMismatch", err)
	}

	if _, err := store.Get(ctx, old.TokenID); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("record survived wrong secret: %v", err)
	}
	if mr.Exists("rt:d:" + old.TokenID) {
		t.Fatal("wrong secret must not leave a tombstone")
	}
}

func TestRotateReuseRevokesFamily(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	old, oldHash := newTestRecord(t, "user-1", now, time.Hour)
	if err := store.Issue(ctx, old, time.Hour); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	// a second live token of the same user, e.g. another device
	other, _ := newTestRecord(t, "user-1", now, time.Hour)
	if err := store.Issue(ctx, other, time.Hour); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	next, _ := newTestRecord(t, "user-1", now, time.Hour)
	if _, err := store.Rotate(ctx, old.TokenID, oldHash, next, time.Hour, time.Hour, now); err != nil {
		t.Fatalf("first rotate: %v", err)
	}

	// replaying the retired id is theft evidence
	again, _ := newTestRecord(t, "user-1", now, time.Hour)
	uid, err := store.Rotate(ctx, old.TokenID, oldHash, again, time.Hour, time.Hour, now)
	if !errors.Is(err, ErrReuseDetected) {
		t.Fatalf("err = %v, want ErrReuseDetected", err)
	}
	if uid != "user-1" {
		t.Fatalf("reuse uid = %q", uid)
	}

	for _, id := range []string{next.TokenID, other.TokenID} {
		if _, err := store.Get(ctx, id); !errors.Is(err, ErrRecordNotFound) {
			t.Fatalf("token %s survived family revocation: %v", id, err)
		}
	}
	count, err := store.ActiveTokenCount(ctx, "user-1")
	if err != nil {
		t.Fatalf("ActiveTokenCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("live set not emptied, count = %d", count)
	}
}

func TestRotateConcurrentSingleWinner(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	old, oldHash := newTestRecord(t, "user-1", now, time.Hour)
	if err := store.Issue(ctx, old, time.Hour); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		rotated int
		others  []error
	)

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			next, _ := newTestRecord(t, "user-1", now, time.Hour)
			_, err := store.Rotate(ctx, old.TokenID, oldHash, next, time.Hour, time.Hour, now)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				rotated++
			} else {
				others = append(others, err)
			}
		}()
	}
	wg.Wait()

	if rotated != 1 {
		t.Fatalf("winners = %d, want exactly 1", rotated)
	}
	for _, err := range others {
		if !errors.Is(err, ErrReuseDetected) {
			t.Fatalf("loser error = %v, want ErrReuseDetected", err)
		}
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	rec, _ := newTestRecord(t, "user-1", now, time.Hour)
	if err := store.Issue(ctx, rec, time.Hour); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := store.Revoke(ctx, rec.TokenID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := store.Revoke(ctx, rec.TokenID); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}

	if _, err := store.Get(ctx, rec.TokenID); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("record survived revoke: %v", err)
	}
	count, err := store.ActiveTokenCount(ctx, "user-1")
	if err != nil {
		t.Fatalf("ActiveTokenCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("live set count = %d", count)
	}
}

func TestRevokeAllForUser(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	var recs []*Record
	for i := 0; i < 3; i++ {
		rec, _ := newTestRecord(t, "user-1", now, time.Hour)
		if err := store.Issue(ctx, rec, time.Hour); err != nil {
			t.Fatalf("Issue: %v", err)
		}
		recs = append(recs, rec)
	}
	stranger, _ := newTestRecord(t, "user-2", now, time.Hour)
	if err := store.Issue(ctx, stranger, time.Hour); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := store.RevokeAllForUser(ctx, "user-1"); err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}

	for _, rec := range recs {
		if _, err := store.Get(ctx, rec.TokenID); !errors.Is(err, ErrRecordNotFound) {
			t.Fatalf("token %s survived revoke-all: %v", rec.TokenID, err)
		}
	}
	if _, err := store.Get(ctx, stranger.TokenID); err != nil {
		t.Fatalf("unrelated user's token was revoked: %v", err)
	}
}
