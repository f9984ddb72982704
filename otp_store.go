package authcore

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	otpKeyPrefix      = "asv"
	otpRecordVersionV1 = 1
)

var (
	errOTPNotFound         = errors.New("otp record not found")
	errOTPExpired          = errors.New("otp record expired")
	errOTPMismatch         = errors.New("otp code mismatch")
	errOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	errOTPResendCooldown   = errors.New("otp resend cooldown")
	errOTPRedisUnavailable = errors.New("otp redis unavailable")
)

type otpRecord struct {
	UserID            string
	SecretHash        [32]byte
	ExpiresAt         int64
	ResendAvailableAt int64
	AttemptsRemaining uint16
}

// otpStore holds pending signup verification transactions. One transaction
// is one Redis key; every mutation runs inside a WATCH transaction so that
// concurrent verify and resend calls cannot double-spend the attempt budget.
type otpStore struct {
	redis  redis.UniversalClient
	prefix string
}

func newOTPStore(redisClient redis.UniversalClient) *otpStore {
	return &otpStore{
		redis:  redisClient,
		prefix: otpKeyPrefix,
	}
}

func (s *otpStore) key(txnID string) string {
	return s.prefix + ":" + txnID
}

func (s *otpStore) Save(ctx context.Context, txnID string, record *otpRecord, ttl time.Duration) error {
	encoded, err := encodeOTPRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(txnID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errOTPRedisUnavailable, err)
	}

	return nil
}

// Consume checks providedHash against the stored code hash. A match destroys
// the record and returns it. A mismatch burns one attempt; burning the last
// attempt destroys the record and reports errOTPAttemptsExceeded.
func (s *otpStore) Consume(
	ctx context.Context,
	txnID string,
	providedHash [32]byte,
	now time.Time,
) (*otpRecord, error) {
	const maxRetries = 4
	key := s.key(txnID)

	for i := 0; i < maxRetries; i++ {
		var matched *otpRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeOTPRecord(data)
			if err != nil {
				return err
			}

			if now.Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errOTPExpired
			}

			if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
				if record.AttemptsRemaining <= 1 {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return errOTPAttemptsExceeded
				}
				record.AttemptsRemaining--

				ttl := time.Unix(record.ExpiresAt, 0).Sub(now)
				if ttl <= 0 {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return errOTPNotFound
				}

				updated, err := encodeOTPRecord(record)
				if err != nil {
					return err
				}

				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return errOTPMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, errOTPNotFound
			case errors.Is(err, errOTPNotFound), errors.Is(err, errOTPExpired),
				errors.Is(err, errOTPMismatch), errors.Is(err, errOTPAttemptsExceeded):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", errOTPRedisUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, errOTPNotFound
}

// Resend swaps in a fresh code hash once the cooldown window has passed.
// The transaction deadline is never extended: the key TTL is recomputed from
// the unchanged ExpiresAt, and the attempt budget carries over.
func (s *otpStore) Resend(
	ctx context.Context,
	txnID string,
	nextHash [32]byte,
	cooldown time.Duration,
	now time.Time,
) (*otpRecord, error) {
	const maxRetries = 4
	key := s.key(txnID)

	for i := 0; i < maxRetries; i++ {
		var updated *otpRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeOTPRecord(data)
			if err != nil {
				return err
			}

			if now.Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errOTPExpired
			}

			if now.Unix() < record.ResendAvailableAt {
				return errOTPResendCooldown
			}

			record.SecretHash = nextHash
			record.ResendAvailableAt = now.Add(cooldown).Unix()

			ttl := time.Unix(record.ExpiresAt, 0).Sub(now)
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errOTPNotFound
			}

			encoded, err := encodeOTPRecord(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, ttl)
				return nil
			})
			if err != nil {
				return err
			}

			updated = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, errOTPNotFound
			case errors.Is(err, errOTPNotFound), errors.Is(err, errOTPExpired), errors.Is(err, errOTPResendCooldown):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", errOTPRedisUnavailable, err)
			}
		}

		return updated, nil
	}

	return nil, errOTPNotFound
}

func (s *otpStore) Get(ctx context.Context, txnID string, now time.Time) (*otpRecord, error) {
	data, err := s.redis.Get(ctx, s.key(txnID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errOTPNotFound
		}
		return nil, fmt.Errorf("%w: %v", errOTPRedisUnavailable, err)
	}

	record, err := decodeOTPRecord(data)
	if err != nil {
		return nil, err
	}
	if now.Unix() > record.ExpiresAt {
		return nil, errOTPExpired
	}

	return record, nil
}

func encodeOTPRecord(record *otpRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(otpRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.AttemptsRemaining); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ResendAvailableAt); err != nil {
		return nil, err
	}

	if len(record.UserID) > 65535 {
		return nil, errors.New("otp record user id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)
	buf.Write(record.SecretHash[:])

	return buf.Bytes(), nil
}

func decodeOTPRecord(data []byte) (*otpRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != otpRecordVersionV1 {
		return nil, errors.New("invalid otp record version")
	}

	record := &otpRecord{}

	if err := binary.Read(reader, binary.BigEndian, &record.AttemptsRemaining); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ResendAvailableAt); err != nil {
		return nil, err
	}

	var userIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userIDLen); err != nil {
		return nil, err
	}

	userID := make([]byte, userIDLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	record.UserID = string(userID)

	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
