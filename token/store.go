package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrRecordNotFound is returned when the presented token id has no live
// record and no tombstone.
var ErrRecordNotFound = errors.New("refresh record not found")

// ErrRecordExpired is returned when the record exists but its deadline passed.
var ErrRecordExpired = errors.New("refresh record expired")

// ErrHashMismatch is returned when the presented secret does not hash to the
// stored value. The record is destroyed.
var ErrHashMismatch = errors.New("refresh hash mismatch")

// ErrReuseDetected is returned when a retired token id is presented again.
// The script revokes every live token of the owning user before returning.
var ErrReuseDetected = errors.New("refresh reuse detected")

// ErrRecordCorrupt is returned when a stored blob fails to parse.
var ErrRecordCorrupt = errors.New("refresh record corrupt")

const (
	rotateStatusNotFound    int64 = 0
	rotateStatusExpired     int64 = 1
	rotateStatusMismatch    int64 = 2
	rotateStatusRotated     int64 = 3
	rotateStatusReused      int64 = 4
	rotateStatusInvalidBlob int64 = 5
)

const rotateScript = `
local function read_be64(s, i)
  local b1 = string.byte(s, i)
  local b2 = string.byte(s, i + 1)
  local b3 = string.byte(s, i + 2)
  local b4 = string.byte(s, i + 3)
  local b5 = string.byte(s, i + 4)
  local b6 = string.byte(s, i + 5)
  local b7 = string.byte(s, i + 6)
  local b8 = string.byte(s, i + 7)
  if not b8 then
    return nil
  end
  return ((((((((b1 * 256) + b2) * 256 + b3) * 256 + b4) * 256 + b5) * 256 + b6) * 256 + b7) * 256 + b8)
end

local function parse_record(data)
  local version = string.byte(data, 1)
  if version ~= 1 then
    return nil
  end

  local uid_len = string.byte(data, 2)
  if not uid_len or uid_len == 0 then
    return nil
  end

  local idx = 3
  if #data < idx + uid_len - 1 then
    return nil
  end
  local user_id = string.sub(data, idx, idx + uid_len - 1)
  idx = idx + uid_len

  if #data < idx + 31 then
    return nil
  end
  local secret_hash = string.sub(data, idx, idx + 31)
  idx = idx + 32

  if #data ~= idx + 15 then
    return nil
  end
  idx = idx + 8
  local expires_at = read_be64(data, idx)
  if not expires_at then
    return nil
  end

  return {
    user_id = user_id,
    secret_hash = secret_hash,
    expires_at = expires_at
  }
end

local live_key = KEYS[1]
local tomb_key = KEYS[2]
local next_live_key = KEYS[3]

local token_id = ARGV[1]
local next_token_id = ARGV[2]
local live_prefix = ARGV[3]
local user_prefix = ARGV[4]
local provided_hash = ARGV[5]
local next_blob = ARGV[6]
local now_unix = tonumber(ARGV[7])
local live_ttl_ms = tonumber(ARGV[8])
local tomb_ttl_ms = tonumber(ARGV[9])

local tomb = redis.call("GET", tomb_key)
if tomb then
  local user_key = user_prefix .. tomb
  local ids = redis.call("SMEMBERS", user_key)
  for i = 1, #ids do
    redis.call("DEL", live_prefix .. ids[i])
  end
  redis.call("DEL", user_key)
  return {4, tomb}
end

local data = redis.call("GET", live_key)
if not data then
  return {0}
end

local parsed = parse_record(data)
if not parsed then
  return {5}
end

local user_key = user_prefix .. parsed.user_id

if parsed.expires_at <= now_unix then
  redis.call("DEL", live_key)
  redis.call("SREM", user_key, token_id)
  return {1}
end

if parsed.secret_hash ~= provided_hash then
  redis.call("DEL", live_key)
  redis.call("SREM", user_key, token_id)
  return {2}
end

redis.call("DEL", live_key)
redis.call("SET", tomb_key, parsed.user_id, "PX", tomb_ttl_ms)
redis.call("SET", next_live_key, next_blob, "PX", live_ttl_ms)
redis.call("SREM", user_key, token_id)
redis.call("SADD", user_key, next_token_id)
redis.call("PEXPIRE", user_key, live_ttl_ms)

return {3, parsed.user_id}
`

var rotateLua = redis.NewScript(rotateScript)

const revokeScript = `
local existed = redis.call("EXISTS", KEYS[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
redis.call("SREM", KEYS[2], ARGV[1])
return existed
`

var revokeLua = redis.NewScript(revokeScript)

// Store persists refresh-token records in Redis. Safe for concurrent use.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore returns a store namespaced under prefix.
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	return &Store{redis: rdb, prefix: prefix}
}

func (s *Store) liveKey(tokenID string) string {
	return s.prefix + ":t:" + tokenID
}

func (s *Store) tombKey(tokenID string) string {
	return s.prefix + ":d:" + tokenID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// Issue stores a fresh record and registers it in the owner's live set.
func (s *Store) Issue(ctx context.Context, rec *Record, ttl time.Duration) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.liveKey(rec.TokenID), data, ttl)
		pipe.SAdd(ctx, s.userKey(rec.UserID), rec.TokenID)
		pipe.Expire(ctx, s.userKey(rec.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Rotate atomically retires the presented token id and installs next in its
// place. Exactly one concurrent caller can win; losers observe the tombstone
// and get ErrReuseDetected after the owner's live set has been revoked.
// The owning user id is returned on both the rotated and reused outcomes.
func (s *Store) Rotate(
	ctx context.Context,
	tokenID string,
	providedHash [32]byte,
	next *Record,
	liveTTL, tombTTL time.Duration,
	now time.Time,
) (string, error) {
	nextBlob, err := Encode(next)
	if err != nil {
		return "", err
	}

	result, err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{s.liveKey(tokenID), s.tombKey(tokenID), s.liveKey(next.TokenID)},
		tokenID,
		next.TokenID,
		s.prefix+":t:",
		s.prefix+":u:",
		providedHash[:],
		nextBlob,
		now.Unix(),
		liveTTL.Milliseconds(),
		tombTTL.Milliseconds(),
	).Result()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return "", fmt.Errorf("%w: invalid rotate script response", ErrRedisUnavailable)
	}

	code, ok := parts[0].(int64)
	if !ok {
		return "", fmt.Errorf("%w: invalid rotate script status", ErrRedisUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return "", ErrRecordNotFound
	case rotateStatusExpired:
		return "", ErrRecordExpired
	case rotateStatusMismatch:
		return "", ErrHashMismatch
	case rotateStatusRotated:
		uid, err := scriptPayloadString(parts)
		if err != nil {
			return "", err
		}
		return uid, nil
	case rotateStatusReused:
		uid, err := scriptPayloadString(parts)
		if err != nil {
			return "", err
		}
		return uid, ErrReuseDetected
	case rotateStatusInvalidBlob:
		return "", ErrRecordCorrupt
	default:
		return "", fmt.Errorf("%w: unknown rotate script status", ErrRedisUnavailable)
	}
}

func scriptPayloadString(parts []interface{}) (string, error) {
	if len(parts) < 2 {
		return "", fmt.Errorf("%w: missing rotate script payload", ErrRedisUnavailable)
	}
	switch v := parts[1].(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("%w: invalid rotate script payload", ErrRedisUnavailable)
	}
}

// Get fetches a live record without mutating any state.
func (s *Store) Get(ctx context.Context, tokenID string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.liveKey(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, errors.Join(ErrRecordCorrupt, err)
	}
	rec.TokenID = tokenID
	return rec, nil
}

// Revoke removes a single live token without leaving a tombstone. A token
// presented after Revoke reads as not found, not as reuse.
func (s *Store) Revoke(ctx context.Context, tokenID string) error {
	rec, err := s.Get(ctx, tokenID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil
		}
		return err
	}

	_, err = revokeLua.Run(
		ctx,
		s.redis,
		[]string{s.liveKey(tokenID), s.userKey(rec.UserID)},
		tokenID,
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// RevokeAllForUser removes every live token of a user.
//
// ATOMICITY NOTE: the live set is read first and deleted second, so a token
// issued between the two phases survives this call. The window is narrow and
// the stray token expires on its own; callers needing certainty can invoke
// RevokeAllForUser again.
func (s *Store) RevokeAllForUser(ctx context.Context, userID string) error {
	userKey := s.userKey(userID)

	tokenIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range tokenIDs {
			pipe.Del(ctx, s.liveKey(id))
		}
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// ActiveTokenIDs returns the tracked live token ids of a user.
func (s *Store) ActiveTokenIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// ActiveTokenCount returns the size of a user's live set.
func (s *Store) ActiveTokenCount(ctx context.Context, userID string) (int, error) {
	count, err := s.redis.SCard(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

// Ping reports Redis availability and round-trip latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
